package otel

import (
	"context"
	"testing"
	"time"

	sdklog "go.opentelemetry.io/otel/sdk/log"

	"reservo/authcore/internal/telemetry/domain"
)

func TestNewEventEmitter_NilProvider(t *testing.T) {
	e := NewEventEmitter(nil)
	if e == nil {
		t.Fatal("emitter should not be nil")
	}
	if err := e.Emit(context.Background(), &domain.Event{EventType: domain.EventLoginSuccess}); err != nil {
		t.Errorf("no-op emit: %v", err)
	}
}

func TestEmit(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer provider.Shutdown(context.Background())
	e := NewEventEmitter(provider)

	event := &domain.Event{
		ID:          "ev-1",
		EventType:   domain.EventTokenRotated,
		PrincipalID: "p-1",
		SessionID:   "sess-1",
		Source:      "auth",
		IP:          "10.0.0.1",
		Metadata:    map[string]string{"device": "ios"},
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.Emit(context.Background(), event); err != nil {
		t.Errorf("Emit: %v", err)
	}
	if err := e.Emit(context.Background(), nil); err != nil {
		t.Errorf("nil event should be a no-op: %v", err)
	}
}
