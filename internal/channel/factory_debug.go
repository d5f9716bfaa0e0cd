//go:build debug

package channel

// New creates a new channel
// In debug builds, this returns an unbuffered channel (ignores size) so every
// emitted action lines up with its delivery in the logs.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
