package repository

import "context"

type clientOrderIDKey struct{}

// WithClientOrderID attaches the client order id for the order placed under
// ctx. Every attempt at the same logical order carries the same id.
func WithClientOrderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientOrderIDKey{}, id)
}

// ClientOrderID returns the id set by WithClientOrderID, or "".
func ClientOrderID(ctx context.Context) string {
	id, _ := ctx.Value(clientOrderIDKey{}).(string)
	return id
}
