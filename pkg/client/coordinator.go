// Package client provides an HTTP client for the auth API with transparent
// access token refresh. A coordinator serializes refreshes so that any number
// of concurrent requests hitting an expired token trigger exactly one rotation.
package client

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrAuthenticationRequired means the stored credentials are gone for good and
// the caller must log in again.
var ErrAuthenticationRequired = errors.New("authentication required")

// State is the coordinator's lifecycle state.
type State int

const (
	// StateIdle means credentials are held and no refresh is running.
	StateIdle State = iota
	// StateRefreshing means a refresh flight is in progress.
	StateRefreshing
	// StateLoggedOut means credentials were cleared; only a new login leaves
	// this state.
	StateLoggedOut
)

// Credentials is one access/refresh token pair held by the coordinator.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// RefreshFunc exchanges a refresh token for new credentials. It must return an
// error wrapping ErrAuthenticationRequired when the server rejects the token
// permanently (revoked, replayed, expired) and any other error for transient
// failures (network, 5xx).
type RefreshFunc func(ctx context.Context, refreshToken string) (Credentials, error)

// Coordinator owns the token pair for one principal and serializes refreshes.
// Safe for concurrent use.
type Coordinator struct {
	mu      sync.Mutex
	state   State
	creds   Credentials
	refresh RefreshFunc
	sf      singleflight.Group
}

// NewCoordinator returns a coordinator holding the initial credentials. An
// empty pair starts the coordinator logged out.
func NewCoordinator(refresh RefreshFunc, initial Credentials) *Coordinator {
	state := StateIdle
	if initial.RefreshToken == "" {
		state = StateLoggedOut
	}
	return &Coordinator{state: state, creds: initial, refresh: refresh}
}

// Credentials returns the current token pair.
func (c *Coordinator) Credentials() Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// State returns the coordinator's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetCredentials installs a fresh pair after login and returns to idle.
func (c *Coordinator) SetCredentials(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	c.state = StateIdle
}

// Logout clears the credentials. Subsequent Refresh calls fail with
// ErrAuthenticationRequired until SetCredentials is called again.
func (c *Coordinator) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = Credentials{}
	c.state = StateLoggedOut
}

// Refresh obtains credentials newer than stale. Callers pass the pair that
// just failed; if another flight already replaced it the current pair is
// returned without a network round trip. Otherwise exactly one caller runs the
// refresh and every concurrent caller shares its outcome.
//
// A permanent rejection clears the credentials and latches the logged-out
// state; a transient failure leaves the stored pair untouched so a later call
// can retry.
func (c *Coordinator) Refresh(ctx context.Context, stale Credentials) (Credentials, error) {
	c.mu.Lock()
	if c.state == StateLoggedOut {
		c.mu.Unlock()
		return Credentials{}, ErrAuthenticationRequired
	}
	if c.creds.AccessToken != stale.AccessToken {
		// Someone already refreshed past the pair the caller saw.
		creds := c.creds
		c.mu.Unlock()
		return creds, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do("refresh", func() (interface{}, error) {
		c.mu.Lock()
		if c.state == StateLoggedOut {
			c.mu.Unlock()
			return Credentials{}, ErrAuthenticationRequired
		}
		if c.creds.AccessToken != stale.AccessToken {
			creds := c.creds
			c.mu.Unlock()
			return creds, nil
		}
		c.state = StateRefreshing
		refreshToken := c.creds.RefreshToken
		c.mu.Unlock()

		fresh, err := c.refresh(ctx, refreshToken)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			if errors.Is(err, ErrAuthenticationRequired) {
				c.creds = Credentials{}
				c.state = StateLoggedOut
				return Credentials{}, ErrAuthenticationRequired
			}
			c.state = StateIdle
			return Credentials{}, err
		}
		c.creds = fresh
		c.state = StateIdle
		return fresh, nil
	})
	if err != nil {
		return Credentials{}, err
	}
	return v.(Credentials), nil
}
