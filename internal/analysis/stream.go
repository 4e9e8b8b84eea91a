package analysis

import "context"

// StreamHandlers receive the lifecycle of one peer-scoped analysis socket.
// All handlers are optional.
type StreamHandlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(code int, reason string)
}

// Stream is one live bidirectional analysis connection. Send carries raw
// little-endian PCM16 frames; inbound traffic arrives via StreamHandlers.
type Stream interface {
	Send(frame []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, peerID string, handlers StreamHandlers) (Stream, error)
}
