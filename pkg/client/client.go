package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client calls the auth API and transparently refreshes the access token. All
// methods are safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	coord   *Coordinator
}

// New returns a client for the auth API at baseURL. httpClient may be nil;
// then http.DefaultClient is used.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
	}
	c.coord = NewCoordinator(c.refreshCredentials, Credentials{})
	return c
}

// Coordinator exposes the client's refresh coordinator, mainly for observing
// state in callers that surface login prompts.
func (c *Client) Coordinator() *Coordinator {
	return c.coord
}

// Device describes this client installation to the server.
type Device struct {
	Platform    string `json:"platform,omitempty"`
	UserAgent   string `json:"userAgent,omitempty"`
	Name        string `json:"name,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type loginRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	Device Device `json:"device"`
}

type tokenResponse struct {
	SessionID    string `json:"sessionId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Login signs in and installs the returned token pair.
func (c *Client) Login(ctx context.Context, email, secret string, device Device) error {
	var res tokenResponse
	if err := c.postJSON(ctx, "/auth/login", loginRequest{Email: email, Secret: secret, Device: device}, &res); err != nil {
		return err
	}
	c.coord.SetCredentials(Credentials{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken})
	return nil
}

// Logout revokes the session server-side and clears local credentials. Local
// state is cleared even if the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	creds := c.coord.Credentials()
	c.coord.Logout()
	if creds.RefreshToken == "" {
		return nil
	}
	return c.postJSON(ctx, "/auth/logout", map[string]string{"refreshToken": creds.RefreshToken}, nil)
}

// Do sends the request with a Bearer access token. On an authentication
// failure it refreshes once and retries; a second failure, or a failed
// refresh, returns ErrAuthenticationRequired. Requests with a body must be
// built with a non-nil GetBody (http.NewRequest does this for common body
// types) so the retry can rewind it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	creds := c.coord.Credentials()
	if creds.AccessToken == "" {
		return nil, ErrAuthenticationRequired
	}

	resp, err := c.send(req, creds.AccessToken)
	if err != nil {
		return nil, err
	}
	if !isAuthFailure(resp) {
		return resp, nil
	}
	drainAndClose(resp)

	fresh, err := c.coord.Refresh(req.Context(), creds)
	if err != nil {
		return nil, err
	}

	retry, err := rewind(req)
	if err != nil {
		return nil, err
	}
	resp, err = c.send(retry, fresh.AccessToken)
	if err != nil {
		return nil, err
	}
	if isAuthFailure(resp) {
		drainAndClose(resp)
		return nil, ErrAuthenticationRequired
	}
	return resp, nil
}

// refreshCredentials is the coordinator's RefreshFunc: one POST /auth/refresh.
func (c *Client) refreshCredentials(ctx context.Context, refreshToken string) (Credentials, error) {
	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return Credentials{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Credentials{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return Credentials{}, fmt.Errorf("refresh rejected (%s): %w", e.Error, ErrAuthenticationRequired)
	}
	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("refresh failed with status %d", resp.StatusCode)
	}
	var res tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Credentials{}, err
	}
	return Credentials{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
}

func (c *Client) send(req *http.Request, accessToken string) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return c.http.Do(req)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("%s: %s", e.Error, e.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// isAuthFailure reports whether the response means the access token was
// rejected, as opposed to the endpoint denying the action.
func isAuthFailure(resp *http.Response) bool {
	return resp.StatusCode == http.StatusUnauthorized
}

// rewind clones the request for a retry, rewinding the body via GetBody.
func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot retry request without GetBody")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry.Body = body
	return retry, nil
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
