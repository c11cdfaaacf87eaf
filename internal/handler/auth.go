package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shellbox/internal/auth"
)

// tokenTTL is how long issued access tokens live. Kept in sync with
// auth.TokenService.Generate so ExpiresIn in the response is honest.
const tokenTTL = 15 * time.Minute

// AuthHandler exchanges the provisioned API key for short-lived JWTs.
//
// HANDLER RESPONSIBILITIES:
//   - HandleToken → verify the API key, issue a Bearer token
//
// DEPENDENCY CHAIN:
//   - keys   *auth.APIKey       → verifies candidates against the bcrypt hash
//   - tokens *auth.TokenService → issues JWT access tokens
type AuthHandler struct {
	keys   *auth.APIKey
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(keys *auth.APIKey, tokens *auth.TokenService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		keys:   keys,
		tokens: tokens,
		logger: logger,
	}
}

// TokenRequest is the body of POST /api/auth/token.
//
// Client is an optional label recorded as the token subject — it shows up
// in request logs, which is how you tell two automations apart when both
// hold the same key.
type TokenRequest struct {
	APIKey string `json:"apiKey"`
	Client string `json:"client,omitempty"`
}

// TokenResponse carries the issued token and its lifetime in seconds.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// HandleToken verifies the API key and issues a JWT.
//
// HTTP: POST /api/auth/token
// REQUEST BODY: {"apiKey": "...", "client": "ci-runner"}
//
// A wrong key gets the same 401 as a missing one; the logs carry the
// detail, the client doesn't need it.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid token request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_json",
			Message: "request body must be valid JSON",
		})
		return
	}

	if err := h.keys.Verify(req.APIKey); err != nil {
		h.logger.Warn("API key verification failed",
			slog.String("client", req.Client),
			slog.String("remote", r.RemoteAddr),
		)
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "invalid API key",
		})
		return
	}

	subject := strings.TrimSpace(req.Client)
	if subject == "" {
		subject = "operator"
	}

	tokenStr, err := h.tokens.Generate(subject)
	if err != nil {
		h.logger.Error("token generation failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "could not issue token",
		})
		return
	}

	h.logger.Info("token issued", slog.String("subject", subject))

	writeJSON(w, http.StatusOK, TokenResponse{
		Token:     tokenStr,
		ExpiresIn: int(tokenTTL.Seconds()),
	})
}
