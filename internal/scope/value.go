package scope

// Value is one field of a transaction Config: either a literal, a
// zero-argument provider consulted on every invocation, or unset.
//
// The three states are explicit so "configured to false" and "not
// configured" stay distinguishable, which is what lets an unset
// ReadOnly fall back to the request method and an unset User fall back
// to the configured default.
type Value[T any] struct {
	literal  T
	provider func() T
	set      bool
}

// Literal returns a Value fixed to v.
func Literal[T any](v T) Value[T] {
	return Value[T]{literal: v, set: true}
}

// Provider returns a Value that resolves by calling fn at invocation
// time. Each retry attempt resolves again, so a provider sees every
// attempt.
func Provider[T any](fn func() T) Value[T] {
	return Value[T]{provider: fn, set: true}
}

// IsSet reports whether the value was configured at all.
func (v Value[T]) IsSet() bool {
	return v.set
}

// Resolve returns the configured value, invoking the provider when one
// was given. The zero value of T comes back when nothing was set;
// callers are expected to check IsSet first when a default applies.
func (v Value[T]) Resolve() T {
	if v.provider != nil {
		return v.provider()
	}

	return v.literal
}
