package cart

import "context"

type storeKey struct{}

// WithStore attaches the shopper's cart to the context.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// StoreFrom returns the cart attached to the context, if any.
func StoreFrom(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(storeKey{}).(*Store)
	return s, ok && s != nil
}
