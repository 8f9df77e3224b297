package cart

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/pricing"
)

// Op names a cart mutation.
type Op string

const (
	OpAdd       Op = "add"
	OpIncrement Op = "increment"
	OpDecrement Op = "decrement"
	OpRemove    Op = "remove"
	OpClear     Op = "clear"
)

// Change describes the outcome of one mutation. Quantity is the line's resulting quantity,
// zero when the line no longer exists. Seq increases by one per mutation of the store and
// gives the commit order, since listeners run outside the lock.
type Change struct {
	Seq      uint64
	Op       Op
	Identity Identity
	Quantity int
	Noop     bool
	Snapshot Snapshot
}

// Listener observes committed cart mutations.
type Listener interface {
	OnChange(Change)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Change)

// OnChange calls f.
func (f ListenerFunc) OnChange(c Change) { f(c) }

// Snapshot is the read model of a cart at one point in time.
type Snapshot struct {
	Items              []Line
	TotalPrice         pricing.Money
	AdjustedTotalPrice pricing.Money
}

// Empty reports whether the cart holds no lines.
func (s Snapshot) Empty() bool { return len(s.Items) == 0 }

// Summary derives the order summary for the snapshot.
func (s Snapshot) Summary() pricing.Summary {
	return pricing.Summarize(pricing.Totals{TotalPrice: s.TotalPrice, AdjustedTotalPrice: s.AdjustedTotalPrice})
}

// Option configures a Store.
type Option func(*Store)

// WithListener registers a listener notified after every mutation.
func WithListener(l Listener) Option {
	return func(s *Store) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// Store holds the lines of one cart and keeps its totals consistent with them.
// Every mutation edits lines and recomputes totals inside a single critical section.
type Store struct {
	mu        sync.Mutex
	lines     []Line
	totals    pricing.Totals
	seq       uint64
	listeners []Listener
}

// NewStore returns an empty cart.
func NewStore(opts ...Option) *Store {
	s := &Store{totals: pricing.Totals{TotalPrice: decimal.Zero, AdjustedTotalPrice: decimal.Zero}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddItem adds qty units of item, merging into an existing line with the same identity
// or appending a new line at the end.
func (s *Store) AddItem(item Item, qty int) (Snapshot, error) {
	if qty <= 0 {
		return Snapshot{}, fmt.Errorf("add %d units: %w", qty, ErrInvalidQuantity)
	}
	if err := item.validate(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	var resulting int
	if i := s.indexOf(item.ID, item.Attributes); i >= 0 {
		if err := checkHeadroom(s.lines[i].Quantity, qty); err != nil {
			s.mu.Unlock()
			return Snapshot{}, err
		}
		s.lines[i].Quantity += qty
		resulting = s.lines[i].Quantity
	} else {
		s.lines = append(s.lines, Line{Item: item, Quantity: qty}.clone())
		resulting = qty
	}
	seq, snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(Change{Seq: seq, Op: OpAdd, Identity: identityOf(item.ID, item.Attributes), Quantity: resulting, Snapshot: snap})
	return snap, nil
}

// Increment adds one unit to an existing line. A missing line is left alone.
func (s *Store) Increment(id string, attributes []string) (Snapshot, error) {
	s.mu.Lock()
	noop := true
	resulting := 0
	if i := s.indexOf(id, attributes); i >= 0 {
		if err := checkHeadroom(s.lines[i].Quantity, 1); err != nil {
			s.mu.Unlock()
			return Snapshot{}, err
		}
		s.lines[i].Quantity++
		resulting = s.lines[i].Quantity
		noop = false
	}
	seq, snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(Change{Seq: seq, Op: OpIncrement, Identity: identityOf(id, attributes), Quantity: resulting, Noop: noop, Snapshot: snap})
	return snap, nil
}

// DecrementItem removes one unit from the matching line and deletes the line when it reaches zero.
// A missing line is left alone.
func (s *Store) DecrementItem(id string, attributes []string) Snapshot {
	s.mu.Lock()
	noop := true
	resulting := 0
	if i := s.indexOf(id, attributes); i >= 0 {
		noop = false
		s.lines[i].Quantity--
		resulting = s.lines[i].Quantity
		if resulting <= 0 {
			s.lines = slices.Delete(s.lines, i, i+1)
			resulting = 0
		}
	}
	seq, snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(Change{Seq: seq, Op: OpDecrement, Identity: identityOf(id, attributes), Quantity: resulting, Noop: noop, Snapshot: snap})
	return snap
}

// RemoveItem deletes the matching line whatever its quantity. A missing line is left alone.
func (s *Store) RemoveItem(id string, attributes []string) Snapshot {
	s.mu.Lock()
	noop := true
	if i := s.indexOf(id, attributes); i >= 0 {
		s.lines = slices.Delete(s.lines, i, i+1)
		noop = false
	}
	seq, snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(Change{Seq: seq, Op: OpRemove, Identity: identityOf(id, attributes), Noop: noop, Snapshot: snap})
	return snap
}

// Clear empties the cart.
func (s *Store) Clear() Snapshot {
	s.mu.Lock()
	noop := len(s.lines) == 0
	s.lines = nil
	seq, snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(Change{Seq: seq, Op: OpClear, Noop: noop, Snapshot: snap})
	return snap
}

// Find returns a copy of the line matching the identity.
func (s *Store) Find(id string, attributes []string) (Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id, attributes)
	if i < 0 {
		return Line{}, ErrNotFound
	}
	return s.lines[i].clone(), nil
}

// Snapshot returns a copy of the current read model. It has no side effects.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// IsEmpty reports whether the cart holds no lines.
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

func (s *Store) indexOf(id string, attributes []string) int {
	return slices.IndexFunc(s.lines, func(l Line) bool {
		return l.ID == id && slices.Equal(l.Attributes, attributes)
	})
}

func (s *Store) commitLocked() (uint64, Snapshot) {
	priced := make([]pricing.Line, len(s.lines))
	for i, l := range s.lines {
		priced[i] = l.pricingLine()
	}
	s.totals = pricing.ComputeTotals(priced)
	s.seq++
	return s.seq, s.snapshotLocked()
}

// checkHeadroom rejects additions that would overflow a line's quantity.
func checkHeadroom(existing, add int) error {
	if add > math.MaxInt-existing {
		return fmt.Errorf("line holds %d units, cannot add %d: %w", existing, add, ErrInvalidQuantity)
	}
	return nil
}

func (s *Store) snapshotLocked() Snapshot {
	items := make([]Line, len(s.lines))
	for i, l := range s.lines {
		items[i] = l.clone()
	}
	return Snapshot{
		Items:              items,
		TotalPrice:         s.totals.TotalPrice,
		AdjustedTotalPrice: s.totals.AdjustedTotalPrice,
	}
}

func (s *Store) notify(c Change) {
	for _, l := range s.listeners {
		l.OnChange(c)
	}
}

func identityOf(id string, attributes []string) Identity {
	return Identity{ID: id, Attributes: slices.Clone(attributes)}
}

func units(n int) pricing.Money {
	return decimal.NewFromInt(int64(n))
}
