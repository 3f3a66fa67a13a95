package repositories

import (
	"context"

	"github.com/agharasoul/Rozhan/domain"
)

// RealtimeChannel is one bidirectional message-stream connection to the
// backend. A conversation session owns exactly one channel.
type RealtimeChannel interface {
	// Connect opens the connection and resolves once the backend assigns
	// a session id via the connected event. The handshake is bounded by
	// ctx; it never hangs indefinitely.
	Connect(ctx context.Context) (sessionID string, welcome string, err error)
	// Send serializes one typed outbound event to JSON and transmits it.
	// No implicit retry: the caller decides whether to resend.
	Send(event any) error
	// Events yields the inbound event stream for the session's lifetime.
	// The channel is closed when the connection ends, expectedly or not.
	Events() <-chan domain.InboundEvent
	// Close sends an end event best-effort and closes the connection.
	// A failed end send is not an error; closing still proceeds.
	Close() error
}
