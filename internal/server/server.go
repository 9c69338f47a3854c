package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	authsvc "reservo/authcore/internal/auth/service"
	"reservo/authcore/internal/authz"
	"reservo/authcore/internal/credential"
	ledgersvc "reservo/authcore/internal/ledger/service"
	principal "reservo/authcore/internal/principal/domain"
	"reservo/authcore/internal/security"
	sessiondomain "reservo/authcore/internal/session/domain"
	"reservo/authcore/internal/server/httpctx"
	"reservo/authcore/internal/throttle"
)

// Server exposes the auth core over HTTP.
type Server struct {
	auth       *authsvc.AuthService
	tokens     *security.TokenProvider
	authorizer *authz.Evaluator
	limiter    *throttle.LoginLimiter
	db         *sql.DB

	logins    metric.Int64Counter
	rotations metric.Int64Counter
	replays   metric.Int64Counter
	lockouts  metric.Int64Counter
}

// New wires the HTTP server. limiter and db may be nil; meterProvider may be a
// no-op provider.
func New(auth *authsvc.AuthService, tokens *security.TokenProvider, authorizer *authz.Evaluator, limiter *throttle.LoginLimiter, db *sql.DB, meterProvider metric.MeterProvider) *Server {
	s := &Server{
		auth:       auth,
		tokens:     tokens,
		authorizer: authorizer,
		limiter:    limiter,
		db:         db,
	}
	meter := meterProvider.Meter("authcore.server")
	var err error
	if s.logins, err = meter.Int64Counter("auth.logins"); err != nil {
		log.Printf("server: create logins counter: %v", err)
	}
	if s.rotations, err = meter.Int64Counter("auth.rotations"); err != nil {
		log.Printf("server: create rotations counter: %v", err)
	}
	if s.replays, err = meter.Int64Counter("auth.replays"); err != nil {
		log.Printf("server: create replays counter: %v", err)
	}
	if s.lockouts, err = meter.Int64Counter("auth.lockouts"); err != nil {
		log.Printf("server: create lockouts counter: %v", err)
	}
	return s
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth(s.tokens))
			r.Get("/sessions", s.handleSessions)
			r.Delete("/sessions/{id}", s.handleCloseSession)

			r.With(requireAction(s.authorizer, "principals.revoke")).
				Post("/principals/{id}/revoke", s.handleRevokePrincipal)
		})
	})
	return r
}

type deviceJSON struct {
	Platform    string `json:"platform"`
	UserAgent   string `json:"userAgent"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
}

type loginRequest struct {
	Email  string     `json:"email"`
	Secret string     `json:"secret"`
	Device deviceJSON `json:"device"`
}

type tokenResponse struct {
	SessionID    string `json:"sessionId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Email == "" || req.Secret == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and secret are required")
		return
	}

	ip := clientIP(r)
	if ok, _ := s.limiter.Allow(r.Context(), ip); !ok {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
		return
	}

	device := sessiondomain.Device{
		Platform:    req.Device.Platform,
		UserAgent:   req.Device.UserAgent,
		DisplayName: req.Device.Name,
		IP:          ip,
		Fingerprint: req.Device.Fingerprint,
	}
	res, err := s.auth.Login(r.Context(), req.Email, req.Secret, device)
	if err != nil {
		s.count(r.Context(), s.logins, attribute.String("result", "failure"))
		if errors.Is(err, credential.ErrAccountLocked) {
			s.count(r.Context(), s.lockouts)
		}
		writeServiceError(w, err)
		return
	}

	s.count(r.Context(), s.logins, attribute.String("result", "success"))
	writeJSON(w, http.StatusOK, tokenResponse{
		SessionID:    res.Session.ID,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresIn:    res.Tokens.ExpiresIn,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	res, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ledgersvc.ErrTokenReplayed) {
			s.count(r.Context(), s.replays)
		}
		writeServiceError(w, err)
		return
	}

	s.count(r.Context(), s.rotations)
	writeJSON(w, http.StatusOK, tokenResponse{
		SessionID:    res.SessionID,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresIn:    res.Tokens.ExpiresIn,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}
	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	ID         string     `json:"id"`
	Platform   string     `json:"platform,omitempty"`
	UserAgent  string     `json:"userAgent,omitempty"`
	Name       string     `json:"name,omitempty"`
	IP         string     `json:"ip,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
	Current    bool       `json:"current"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	principalID, _ := httpctx.GetPrincipalID(r.Context())
	currentSession, _ := httpctx.GetSessionID(r.Context())

	sessions, err := s.auth.Sessions(r.Context(), principalID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			ID:         sess.ID,
			Platform:   sess.Device.Platform,
			UserAgent:  sess.Device.UserAgent,
			Name:       sess.Device.DisplayName,
			IP:         sess.Device.IP,
			CreatedAt:  sess.CreatedAt,
			LastSeenAt: sess.LastSeenAt,
			Current:    sess.ID == currentSession,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	principalID, _ := httpctx.GetPrincipalID(r.Context())
	sessionID := chi.URLParam(r, "id")

	if err := s.auth.CloseSession(r.Context(), principalID, sessionID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerRequest struct {
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Secret      string   `json:"secret"`
	Kind        string   `json:"kind"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Email == "" || req.Secret == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and secret are required")
		return
	}
	kind := principal.Kind(req.Kind)
	if kind == "" {
		kind = principal.KindClient
	}
	if kind != principal.KindAdmin && kind != principal.KindClient {
		writeError(w, http.StatusBadRequest, "invalid_request", "kind must be admin or client")
		return
	}

	p, err := s.auth.Register(r.Context(), authsvc.RegisterInput{
		Email:       req.Email,
		Name:        req.Name,
		Secret:      req.Secret,
		Kind:        kind,
		Role:        req.Role,
		Permissions: req.Permissions,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":    p.ID,
		"email": p.Email,
		"kind":  string(p.Kind),
		"role":  p.Role,
	})
}

func (s *Server) handleRevokePrincipal(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.RevokePrincipal(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unhealthy", "database unreachable")
			return
		}
	}
	if s.authorizer != nil {
		if err := s.authorizer.HealthCheck(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unhealthy", "policy engine failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) count(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// clientIP returns the request's client address without the port. The RealIP
// middleware has already folded X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
