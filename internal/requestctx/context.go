package requestctx

import "context"

// contextKey is a type for context keys to avoid collisions.
type contextKey struct{}

// WithState returns a context carrying the request state.
func WithState(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, contextKey{}, state)
}

// FromContext retrieves the request state, or nil when none was set.
func FromContext(ctx context.Context) *State {
	state, _ := ctx.Value(contextKey{}).(*State)
	return state
}

// RequestID retrieves the request ID from context, or "" when unset.
func RequestID(ctx context.Context) string {
	if state := FromContext(ctx); state != nil {
		return state.RequestID
	}
	return ""
}
