package cart

import (
	"errors"
	"fmt"
)

// ErrInvalidQuantity indicates a non-positive quantity was requested. The cart is left unchanged.
var ErrInvalidQuantity = errors.New("invalid quantity")

// ErrInvalidItem is returned when an item descriptor cannot be added.
var ErrInvalidItem = errors.New("invalid item")

// ErrNotFound reports that no line matched. Decrement and remove treat it as a no-op.
var ErrNotFound = errors.New("cart line not found")

func errInvalidItem(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrInvalidItem)
}
