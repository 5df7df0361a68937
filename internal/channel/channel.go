// Package channel provides generic channel interfaces so queue owners can be
// tested without goroutine timing games.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	// Send blocks until v is accepted.
	Send(v T)
	// TrySend reports false instead of blocking when v cannot be accepted.
	TrySend(v T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
