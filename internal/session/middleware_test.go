package session_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/session"
)

type createResponse struct {
	Data struct {
		SessionID string `json:"sessionId"`
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
	} `json:"data"`
}

func newRouter(h *session.Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/sessions", h.Create)
	r.Group(func(g chi.Router) {
		g.Use(h.RequireSession)
		g.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
			id, _ := common.SessionID(r.Context())
			store, ok := cart.StoreFrom(r.Context())
			if !ok {
				http.Error(w, "no store", http.StatusInternalServerError)
				return
			}
			common.Data(w, http.StatusOK, map[string]any{"sessionId": id, "empty": store.IsEmpty()})
		})
		g.Post("/sessions/refresh", h.Refresh)
		g.Delete("/sessions/current", h.End)
	})
	return r
}

func createSession(t *testing.T, router http.Handler) createResponse {
	t.Helper()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	require.Equal(t, http.StatusCreated, rr.Code)
	var resp createResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp
}

func TestSessionLifecycle(t *testing.T) {
	h := &session.Handler{
		Registry: &session.Registry{TTL: time.Hour},
		Tokens:   session.Tokens{Secret: []byte("secret"), TTL: time.Hour},
	}
	router := newRouter(h)
	created := createSession(t, router)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+created.Data.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), created.Data.SessionID))

	req = httptest.NewRequest(http.MethodDelete, "/sessions/current", nil)
	req.Header.Set("Authorization", "Bearer "+created.Data.Token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+created.Data.Token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "SESSION_EXPIRED")
}

func TestRequireSessionRejectsMissingOrBadToken(t *testing.T) {
	h := &session.Handler{
		Registry: &session.Registry{},
		Tokens:   session.Tokens{Secret: []byte("secret")},
	}
	router := newRouter(h)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "UNAUTHORIZED")
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func authed(t *testing.T, router http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRefreshKeepsActiveSessionUsable(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := &session.Registry{TTL: time.Hour, Now: c.Now}
	h := &session.Handler{
		Registry: reg,
		Tokens:   session.Tokens{Secret: []byte("secret"), TTL: time.Hour, Now: c.Now},
	}
	router := newRouter(h)
	created := createSession(t, router)

	s, err := reg.Get(created.Data.SessionID)
	require.NoError(t, err)
	_, err = s.Store.AddItem(cart.Item{ID: "1", Name: "Cap", Price: decimal.NewFromInt(10)}, 1)
	require.NoError(t, err)

	c.t = c.t.Add(time.Hour - time.Second)
	rr := authed(t, router, http.MethodPost, "/sessions/refresh", created.Data.Token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var refreshed createResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &refreshed))
	require.Equal(t, created.Data.SessionID, refreshed.Data.SessionID)
	require.NotEqual(t, created.Data.ExpiresAt, refreshed.Data.ExpiresAt)

	c.t = c.t.Add(2 * time.Second)
	rr = authed(t, router, http.MethodGet, "/whoami", created.Data.Token)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "UNAUTHORIZED")

	rr = authed(t, router, http.MethodGet, "/whoami", refreshed.Data.Token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"empty":false`)
}

func TestRefreshRequiresLiveSession(t *testing.T) {
	h := &session.Handler{
		Registry: &session.Registry{TTL: time.Hour},
		Tokens:   session.Tokens{Secret: []byte("secret"), TTL: time.Hour},
	}
	router := newRouter(h)
	created := createSession(t, router)

	rr := authed(t, router, http.MethodDelete, "/sessions/current", created.Data.Token)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = authed(t, router, http.MethodPost, "/sessions/refresh", created.Data.Token)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "SESSION_EXPIRED")
}
