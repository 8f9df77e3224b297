package session

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/cart"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRegistryCreateAndGet(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	reg := &Registry{TTL: time.Hour, Now: clock.Now}

	s := reg.Create()
	require.NotEmpty(t, s.ID)
	require.True(t, s.Store.IsEmpty())
	require.Equal(t, clock.t.Add(time.Hour), s.ExpiresAt)

	got, err := reg.Get(s.ID)
	require.NoError(t, err)
	require.Same(t, s.Store, got.Store)

	_, err = reg.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistrySlidingExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	reg := &Registry{TTL: time.Hour, Now: clock.Now}
	s := reg.Create()

	clock.Advance(50 * time.Minute)
	_, err := reg.Get(s.ID)
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	_, err = reg.Get(s.ID)
	require.NoError(t, err, "activity extends the session")

	clock.Advance(time.Hour)
	_, err = reg.Get(s.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 0, reg.Len())
}

func TestRegistrySweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	var evicted []string
	reg := &Registry{TTL: time.Minute, Now: clock.Now, OnEvict: func(s Session) { evicted = append(evicted, s.ID) }}
	a := reg.Create()
	clock.Advance(30 * time.Second)
	b := reg.Create()

	clock.Advance(45 * time.Second)
	require.Equal(t, 1, reg.Sweep())
	require.Equal(t, []string{a.ID}, evicted)
	_, err := reg.Get(b.ID)
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())

	require.True(t, reg.Delete(b.ID))
	require.False(t, reg.Delete(b.ID))
	require.Equal(t, 0, reg.Len())
}

func TestRegistryAttachesListener(t *testing.T) {
	var seen []string
	reg := &Registry{Listen: func(id string) cart.Listener {
		return cart.ListenerFunc(func(cart.Change) { seen = append(seen, id) })
	}}
	s := reg.Create()
	_, err := s.Store.AddItem(cart.Item{ID: "1", Name: "Cap", Price: decimal.NewFromInt(10)}, 1)
	require.NoError(t, err)
	require.Equal(t, []string{s.ID}, seen)
}

func TestRegistryRunStopsOnCancel(t *testing.T) {
	reg := &Registry{TTL: time.Millisecond}
	reg.Create()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx, 5*time.Millisecond, nil)
		close(done)
	}()
	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry sweeper did not stop")
	}
}

func TestRegistryLifecycleHooks(t *testing.T) {
	active := 0
	reg := &Registry{
		OnCreate: func(Session) { active++ },
		OnEvict:  func(Session) { active-- },
	}
	a := reg.Create()
	reg.Create()
	require.Equal(t, 2, active)

	require.True(t, reg.Delete(a.ID))
	require.False(t, reg.Delete(a.ID))
	require.Equal(t, 1, active)
}
