package types

// Capability is an optional runtime dependency resolved once at the point of use.
// It is either Available with a handle or Unavailable with a reason.
type Capability[T any] struct {
	handle T
	ok     bool
	reason string
}

// Available wraps a usable handle
func Available[T any](handle T) Capability[T] {
	return Capability[T]{handle: handle, ok: true}
}

// Unavailable records why the capability cannot be used
func Unavailable[T any](reason string) Capability[T] {
	return Capability[T]{reason: reason}
}

// Get returns the handle and whether it is available
func (c Capability[T]) Get() (T, bool) {
	return c.handle, c.ok
}

// IsAvailable reports whether the capability resolved
func (c Capability[T]) IsAvailable() bool {
	return c.ok
}

// Reason explains an Unavailable capability
func (c Capability[T]) Reason() string {
	return c.reason
}
