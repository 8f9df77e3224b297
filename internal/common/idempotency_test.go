package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestIdemRejectsReplay(t *testing.T) {
	_, client := newRedis(t)
	calls := 0
	h := Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	send := func(session string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
		req.Header.Set("Idempotency-Key", "abc")
		req = req.WithContext(WithSessionID(req.Context(), session))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, send("s1"))
	require.Equal(t, http.StatusConflict, send("s1"))
	require.Equal(t, http.StatusOK, send("s2"))
	require.Equal(t, 2, calls)
}

func TestIdemReleasesKeyOnServerError(t *testing.T) {
	_, client := newRedis(t)
	status := http.StatusInternalServerError
	h := Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	req.Header.Set("Idempotency-Key", "retry-me")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req.Clone(req.Context()))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	status = http.StatusOK
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestIdemWithoutHeaderPassesThrough(t *testing.T) {
	h := Idem{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestIdemKeySeparatesParts(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	a := idemKey(req.WithContext(WithSessionID(req.Context(), "s1")), "2|x")
	b := idemKey(req.WithContext(WithSessionID(req.Context(), "s1|2")), "x")
	require.NotEqual(t, a, b)
	require.Len(t, a, len("idem:")+64)
	require.NotContains(t, a, "s1")
}
