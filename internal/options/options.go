// Package options provides a shared helper for resolving functional option
// lists used throughout the runtime's public constructors.
package options

// Apply returns an iterator over opts followed by rest, skipping any nil
// entries. It lets every Options.Apply method share one implementation
// instead of hand-rolling the same nil-check loop.
func Apply[T comparable](opts []T, rest ...T) func(func(T) bool) {
	return func(yield func(T) bool) {
		var zero T
		for _, opt := range opts {
			if opt == zero {
				continue
			}
			if !yield(opt) {
				return
			}
		}
		for _, opt := range rest {
			if opt == zero {
				continue
			}
			if !yield(opt) {
				return
			}
		}
	}
}
