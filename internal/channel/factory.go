//go:build !debug

package channel

// New creates a new channel with the given buffer size.
// In production builds the press queue is buffered so a sender can hand off
// its press while the player is still waiting out the previous interval.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
