package authz

import (
	"context"
	"testing"
)

func TestNewEvaluator_DefaultPolicy(t *testing.T) {
	e, err := NewEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestNewEvaluator_InvalidModule(t *testing.T) {
	_, err := NewEvaluator(context.Background(), "package broken\nallow {")
	if err == nil {
		t.Fatal("invalid Rego should fail to compile")
	}
}

func TestAuthorize(t *testing.T) {
	e, err := NewEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	ctx := context.Background()

	testCases := []struct {
		name  string
		input Input
		want  bool
	}{
		{"admin allowed anything", Input{Kind: "admin", Role: "operator", Action: "sessions.revoke"}, true},
		{"client with permission", Input{Kind: "client", Role: "customer", Permissions: []string{"booking.read", "sessions.list"}, Action: "sessions.list"}, true},
		{"client without permission", Input{Kind: "client", Role: "customer", Permissions: []string{"booking.read"}, Action: "sessions.revoke"}, false},
		{"client with no permissions", Input{Kind: "client", Role: "customer", Action: "sessions.list"}, false},
		{"unknown kind denied", Input{Kind: "service", Action: "sessions.list"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Authorize(ctx, tc.input)
			if err != nil {
				t.Fatalf("Authorize: %v", err)
			}
			if got != tc.want {
				t.Errorf("Authorize = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAuthorize_CustomPolicy(t *testing.T) {
	module := `package reservo.authz

default allow = false

allow if {
	input.principal.role == "support"
}
`
	e, err := NewEvaluator(context.Background(), module)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	ok, err := e.Authorize(context.Background(), Input{Kind: "client", Role: "support", Action: "anything"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !ok {
		t.Error("custom policy should allow support role")
	}

	ok, err = e.Authorize(context.Background(), Input{Kind: "admin", Role: "operator", Action: "anything"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if ok {
		t.Error("custom policy replaces the default admin rule")
	}
}
