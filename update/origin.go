package update

import "context"

type originKey struct{}

// WithOrigin marks ctx as applying a mutation received from replica.
// Stores pass the context through to observers unchanged.
func WithOrigin(ctx context.Context, replica string) context.Context {
	return context.WithValue(ctx, originKey{}, replica)
}

// Origin returns the replica a mutation was received from, if any.
func Origin(ctx context.Context) (string, bool) {
	replica, ok := ctx.Value(originKey{}).(string)
	return replica, ok
}

// LocalOnly forwards only mutations that originate in this process.
// Output ports wrapped with it do not send received updates back out.
func LocalOnly(obs Observer) Observer {
	return ObserverFunc(func(ctx context.Context, m Mutation) error {
		if _, remote := Origin(ctx); remote {
			return nil
		}
		return m.Apply(ctx, obs)
	})
}
