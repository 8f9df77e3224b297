package cart

import (
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/pricing"
)

func dec(v string) pricing.Money { return decimal.RequireFromString(v) }

func shirt(t *testing.T) Item {
	t.Helper()
	d, err := pricing.PercentageOff(20)
	require.NoError(t, err)
	return Item{ID: "1", Name: "T-shirt with Tape Details", SrcURL: "/images/pic1.png", Price: dec("100"), Discount: d, Attributes: []string{"Large", "White"}}
}

func jeans(t *testing.T) Item {
	t.Helper()
	d, err := pricing.AmountOff(dec("10"))
	require.NoError(t, err)
	return Item{ID: "2", Name: "Skinny Fit Jeans", Price: dec("50"), Discount: d, Attributes: []string{"Medium", "Blue"}}
}

func requireConsistent(t *testing.T, snap Snapshot) {
	t.Helper()
	total := decimal.Zero
	adjusted := decimal.Zero
	for _, l := range snap.Items {
		require.Positive(t, l.Quantity)
		total = total.Add(l.LineTotal())
		adjusted = adjusted.Add(l.AdjustedLineTotal())
	}
	require.True(t, snap.TotalPrice.Equal(total), "total %s want %s", snap.TotalPrice, total)
	require.True(t, snap.AdjustedTotalPrice.Equal(adjusted), "adjusted %s want %s", snap.AdjustedTotalPrice, adjusted)
	require.True(t, snap.AdjustedTotalPrice.LessThanOrEqual(snap.TotalPrice))
	require.False(t, snap.AdjustedTotalPrice.IsNegative())
}

func TestEmptyStore(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()
	require.True(t, snap.Empty())
	require.True(t, s.IsEmpty())
	require.True(t, snap.TotalPrice.IsZero())
	require.True(t, snap.AdjustedTotalPrice.IsZero())
	require.Equal(t, 0, snap.Summary().DiscountPercentage)
}

func TestAddItemExamples(t *testing.T) {
	s := NewStore()
	snap, err := s.AddItem(shirt(t), 2)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	require.True(t, snap.Items[0].EffectivePrice().Equal(dec("80")))
	require.True(t, snap.TotalPrice.Equal(dec("200")))
	require.True(t, snap.AdjustedTotalPrice.Equal(dec("160")))

	snap, err = s.AddItem(jeans(t), 3)
	require.NoError(t, err)
	require.Len(t, snap.Items, 2)
	require.True(t, snap.Items[1].EffectivePrice().Equal(dec("40")))
	require.True(t, snap.TotalPrice.Equal(dec("350")))
	require.True(t, snap.AdjustedTotalPrice.Equal(dec("280")))
	requireConsistent(t, snap)
}

func TestAddItemMergesSameIdentity(t *testing.T) {
	s := NewStore()
	_, err := s.AddItem(shirt(t), 2)
	require.NoError(t, err)
	snap, err := s.AddItem(shirt(t), 3)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	require.Equal(t, 5, snap.Items[0].Quantity)
	requireConsistent(t, snap)
}

func TestAddItemDistinctAttributesAreSeparateLines(t *testing.T) {
	s := NewStore()
	small := shirt(t)
	small.Attributes = []string{"Small", "White"}
	_, err := s.AddItem(shirt(t), 1)
	require.NoError(t, err)
	snap, err := s.AddItem(small, 1)
	require.NoError(t, err)
	require.Len(t, snap.Items, 2)
	require.Equal(t, "Large", snap.Items[0].Size())
	require.Equal(t, "Small", snap.Items[1].Size())
	require.Equal(t, "White", snap.Items[1].Color())
}

func TestAddItemComparesAttributesByValue(t *testing.T) {
	s := NewStore()
	first := shirt(t)
	second := shirt(t)
	second.Attributes = append([]string(nil), "Large", "White")
	_, err := s.AddItem(first, 1)
	require.NoError(t, err)
	snap, err := s.AddItem(second, 1)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	require.Equal(t, 2, snap.Items[0].Quantity)
}

func TestAddItemInvalidQuantity(t *testing.T) {
	s := NewStore()
	for _, qty := range []int{0, -1} {
		_, err := s.AddItem(shirt(t), qty)
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
	require.True(t, s.IsEmpty())
}

func TestAddItemInvalidItem(t *testing.T) {
	s := NewStore()
	bad := shirt(t)
	bad.ID = " "
	_, err := s.AddItem(bad, 1)
	require.ErrorIs(t, err, ErrInvalidItem)

	bad = shirt(t)
	bad.Price = dec("-1")
	_, err = s.AddItem(bad, 1)
	require.ErrorIs(t, err, ErrInvalidItem)
	require.True(t, s.IsEmpty())
}

func TestDecrementItem(t *testing.T) {
	s := NewStore()
	_, err := s.AddItem(shirt(t), 2)
	require.NoError(t, err)
	_, err = s.AddItem(jeans(t), 1)
	require.NoError(t, err)

	snap := s.DecrementItem("1", []string{"Large", "White"})
	require.Len(t, snap.Items, 2)
	require.Equal(t, 1, snap.Items[0].Quantity)
	requireConsistent(t, snap)

	snap = s.DecrementItem("1", []string{"Large", "White"})
	require.Len(t, snap.Items, 1)
	_, err = s.Find("1", []string{"Large", "White"})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, "2", snap.Items[0].ID)
	requireConsistent(t, snap)
}

func TestDecrementMissingLineIsNoop(t *testing.T) {
	s := NewStore()
	_, err := s.AddItem(shirt(t), 1)
	require.NoError(t, err)
	before := s.Snapshot()
	after := s.DecrementItem("1", []string{"Small", "White"})
	require.Equal(t, before, after)
}

func TestRemoveItemIgnoresQuantity(t *testing.T) {
	s := NewStore()
	_, err := s.AddItem(shirt(t), 7)
	require.NoError(t, err)
	_, err = s.AddItem(jeans(t), 2)
	require.NoError(t, err)

	snap := s.RemoveItem("1", []string{"Large", "White"})
	require.Len(t, snap.Items, 1)
	require.Equal(t, "2", snap.Items[0].ID)
	requireConsistent(t, snap)

	again := s.RemoveItem("1", []string{"Large", "White"})
	require.Equal(t, snap, again)
}

func TestIncrement(t *testing.T) {
	s := NewStore()
	_, err := s.AddItem(jeans(t), 1)
	require.NoError(t, err)
	snap, err := s.Increment("2", []string{"Medium", "Blue"})
	require.NoError(t, err)
	require.Equal(t, 2, snap.Items[0].Quantity)
	snap, err = s.Increment("3", nil)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	requireConsistent(t, snap)
}

func TestClear(t *testing.T) {
	s := NewStore()
	_, err := s.AddItem(jeans(t), 1)
	require.NoError(t, err)
	snap := s.Clear()
	require.True(t, snap.Empty())
	require.True(t, snap.TotalPrice.IsZero())
}

func TestInsertionOrderPreserved(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"c", "a", "b"} {
		_, err := s.AddItem(Item{ID: id, Name: id, Price: dec("1")}, 1)
		require.NoError(t, err)
	}
	_, err := s.AddItem(Item{ID: "a", Name: "a", Price: dec("1")}, 1)
	require.NoError(t, err)
	snap := s.Snapshot()
	ids := []string{snap.Items[0].ID, snap.Items[1].ID, snap.Items[2].ID}
	require.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := NewStore()
	item := shirt(t)
	_, err := s.AddItem(item, 1)
	require.NoError(t, err)
	item.Attributes[0] = "Tiny"

	snap := s.Snapshot()
	snap.Items[0].Quantity = 99
	snap.Items[0].Attributes[0] = "XXL"

	again := s.Snapshot()
	require.Equal(t, 1, again.Items[0].Quantity)
	require.Equal(t, "Large", again.Items[0].Attributes[0])
	require.Equal(t, s.Snapshot(), again)
}

func TestConcurrentAddItem(t *testing.T) {
	s := NewStore()
	item := shirt(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AddItem(item, 2)
			_, _ = s.Increment("1", []string{"Large", "White"})
			s.DecrementItem("1", []string{"Large", "White"})
		}()
	}
	wg.Wait()
	snap := s.Snapshot()
	require.Len(t, snap.Items, 1)
	require.Equal(t, 100, snap.Items[0].Quantity)
	requireConsistent(t, snap)
}

func TestListenerReceivesChanges(t *testing.T) {
	var changes []Change
	s := NewStore(WithListener(ListenerFunc(func(c Change) { changes = append(changes, c) })))
	_, err := s.AddItem(shirt(t), 1)
	require.NoError(t, err)
	s.DecrementItem("1", []string{"Large", "White"})
	s.RemoveItem("1", []string{"Large", "White"})
	_, err = s.AddItem(shirt(t), 0)
	require.Error(t, err)

	require.Len(t, changes, 3)
	require.Equal(t, OpAdd, changes[0].Op)
	require.Equal(t, 1, changes[0].Quantity)
	require.True(t, changes[0].Identity.Matches("1", []string{"Large", "White"}))
	require.Equal(t, OpDecrement, changes[1].Op)
	require.False(t, changes[1].Noop)
	require.Equal(t, 0, changes[1].Quantity)
	require.True(t, changes[1].Snapshot.Empty())
	require.Equal(t, OpRemove, changes[2].Op)
	require.True(t, changes[2].Noop)
	require.Equal(t, []uint64{1, 2, 3}, []uint64{changes[0].Seq, changes[1].Seq, changes[2].Seq})
}

func TestQuantityOverflowRejected(t *testing.T) {
	s := NewStore()
	item := shirt(t)
	_, err := s.AddItem(item, math.MaxInt)
	require.NoError(t, err)

	_, err = s.AddItem(item, 1)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = s.Increment(item.ID, item.Attributes)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	snap := s.Snapshot()
	require.Len(t, snap.Items, 1)
	require.Equal(t, math.MaxInt, snap.Items[0].Quantity)
	require.True(t, snap.TotalPrice.IsPositive())
	requireConsistent(t, snap)
}

func TestChangeSequenceFollowsCommitOrder(t *testing.T) {
	var mu sync.Mutex
	var seqs []uint64
	s := NewStore(WithListener(ListenerFunc(func(c Change) {
		mu.Lock()
		seqs = append(seqs, c.Seq)
		mu.Unlock()
	})))
	item := shirt(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AddItem(item, 1)
		}()
	}
	wg.Wait()

	require.Len(t, seqs, 20)
	seen := make(map[uint64]bool, len(seqs))
	for _, seq := range seqs {
		require.False(t, seen[seq], "duplicate seq %d", seq)
		require.True(t, seq >= 1 && seq <= 20)
		seen[seq] = true
	}
}

func TestItemSlug(t *testing.T) {
	require.Equal(t, "T-shirt-with-Tape-Details", shirt(t).Slug())
	require.Equal(t, "1[Large,White]", shirt(t).Identity().String())
}
