// Package requestctx carries the authenticated caller identity through
// request contexts.
package requestctx

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// callerContextKey is the context key for the authenticated caller address.
type callerContextKey struct{}

// WithCaller stores an authenticated caller address in context.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext returns the caller address stored in context. The second
// return value reports whether a caller was set; the zero address is a valid
// account and cannot be used as an absence marker.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	if ctx == nil {
		return common.Address{}, false
	}
	value, ok := ctx.Value(callerContextKey{}).(common.Address)
	return value, ok
}
