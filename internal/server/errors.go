package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	authsvc "reservo/authcore/internal/auth/service"
	"reservo/authcore/internal/credential"
	ledgersvc "reservo/authcore/internal/ledger/service"
	sessionsvc "reservo/authcore/internal/session/service"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Printf("server: encode response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeServiceError maps service sentinel errors onto the wire taxonomy.
// Credential failures share one generic message so callers cannot probe which
// part was wrong; the machine-readable code still distinguishes them.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, credential.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, "invalid_credential", "sign-in failed")
	case errors.Is(err, credential.ErrAccountLocked):
		writeError(w, http.StatusUnauthorized, "account_locked", "sign-in failed")
	case errors.Is(err, ledgersvc.ErrTokenNotFound):
		writeError(w, http.StatusUnauthorized, "token_not_found", "refresh token rejected")
	case errors.Is(err, ledgersvc.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "refresh token rejected")
	case errors.Is(err, ledgersvc.ErrTokenReplayed):
		writeError(w, http.StatusUnauthorized, "token_replayed", "refresh token rejected")
	case errors.Is(err, sessionsvc.ErrConsistencyFault):
		writeError(w, http.StatusUnauthorized, "consistency_fault", "session state inconsistent, sign in again")
	case errors.Is(err, sessionsvc.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session not found")
	case errors.Is(err, authsvc.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "email already registered")
	case errors.Is(err, authsvc.ErrPrincipalNotFound):
		writeError(w, http.StatusNotFound, "principal_not_found", "principal not found")
	default:
		log.Printf("server: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
