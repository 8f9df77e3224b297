package events

import (
	"context"

	"github.com/noah-isme/toko-cart/internal/cart"
)

// CartChanged is the payload of every cart event.
type CartChanged struct {
	Seq                uint64   `json:"seq"`
	Op                 string   `json:"op"`
	ProductID          string   `json:"productId,omitempty"`
	Attributes         []string `json:"attributes,omitempty"`
	Quantity           int      `json:"quantity"`
	Noop               bool     `json:"noop"`
	Lines              int      `json:"lines"`
	TotalPrice         string   `json:"totalPrice"`
	AdjustedTotalPrice string   `json:"adjustedTotalPrice"`
}

// CartListener publishes a session cart's changes on the bus.
type CartListener struct {
	Bus       *Bus
	SessionID string
	OnError   func(error)
}

// OnChange implements cart.Listener.
func (l CartListener) OnChange(c cart.Change) {
	if l.Bus == nil {
		return
	}
	payload := CartChanged{
		Seq:                c.Seq,
		Op:                 string(c.Op),
		ProductID:          c.Identity.ID,
		Attributes:         c.Identity.Attributes,
		Quantity:           c.Quantity,
		Noop:               c.Noop,
		Lines:              len(c.Snapshot.Items),
		TotalPrice:         c.Snapshot.TotalPrice.String(),
		AdjustedTotalPrice: c.Snapshot.AdjustedTotalPrice.String(),
	}
	if _, err := l.Bus.Emit(context.Background(), TopicFor(c.Op), l.SessionID, payload); err != nil && l.OnError != nil {
		l.OnError(err)
	}
}
