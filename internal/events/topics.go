package events

import "github.com/noah-isme/toko-cart/internal/cart"

// Topic constants for cart events.
const (
	TopicCartItemAdded       = "cart.item_added"
	TopicCartItemIncremented = "cart.item_incremented"
	TopicCartItemDecremented = "cart.item_decremented"
	TopicCartItemRemoved     = "cart.item_removed"
	TopicCartCleared         = "cart.cleared"
)

// TopicFor maps a cart operation to its topic.
func TopicFor(op cart.Op) string {
	switch op {
	case cart.OpAdd:
		return TopicCartItemAdded
	case cart.OpIncrement:
		return TopicCartItemIncremented
	case cart.OpDecrement:
		return TopicCartItemDecremented
	case cart.OpRemove:
		return TopicCartItemRemoved
	case cart.OpClear:
		return TopicCartCleared
	default:
		return "cart." + string(op)
	}
}
