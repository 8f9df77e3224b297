package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/obs"
)

// Handler issues and ends cart sessions and resolves them on incoming requests.
type Handler struct {
	Registry *Registry
	Tokens   Tokens
}

// Create starts a new session and returns its bearer token.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "session registry not configured", nil)
		return
	}
	s := h.Registry.Create()
	if !h.issue(w, http.StatusCreated, s.ID) {
		h.Registry.Delete(s.ID)
	}
}

// Refresh re-issues the bearer token for the resolved session. The registry slides its
// expiry on every request while a token's expiry is fixed, so active clients call this
// before expiresAt to keep both lifetimes aligned.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := common.SessionID(r.Context())
	if !ok || h.Registry == nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return
	}
	h.issue(w, http.StatusOK, id)
}

func (h *Handler) issue(w http.ResponseWriter, status int, sessionID string) bool {
	token, expiresAt, err := h.Tokens.Sign(sessionID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to issue session token", nil)
		return false
	}
	common.Data(w, status, map[string]any{
		"sessionId": sessionID,
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
	return true
}

// End deletes the session resolved for the request.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := common.SessionID(r.Context())
	if !ok || h.Registry == nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return
	}
	h.Registry.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// RequireSession resolves the bearer token to a live session and injects its cart.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := h.resolve(r)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) {
				common.WriteAppError(w, appErr)
				return
			}
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to resolve session", nil)
			return
		}
		ctx := common.WithSessionID(r.Context(), s.ID)
		ctx = cart.WithStore(ctx, s.Store)
		obs.AnnotateSession(ctx, s.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) resolve(r *http.Request) (Session, error) {
	if h.Registry == nil {
		return Session{}, errors.New("session registry not configured")
	}
	token := bearerToken(r)
	if token == "" {
		return Session{}, common.Unauthorized("session token required", nil)
	}
	id, err := h.Tokens.Verify(token)
	if err != nil {
		return Session{}, common.Unauthorized("invalid session token", err)
	}
	s, err := h.Registry.Get(id)
	if err != nil {
		return Session{}, common.NewAppError("SESSION_EXPIRED", "session expired", http.StatusUnauthorized, err)
	}
	return s, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
