package call

import "github.com/foxseedlab/tsuhoban/internal/analysis"

type ConnectionStatus string

const (
	ConnectionStatusConnecting ConnectionStatus = "connecting"
	ConnectionStatusOpen       ConnectionStatus = "open"
	ConnectionStatusClosed     ConnectionStatus = "closed"
)

type MessageKind string

const (
	MessageKindStatus   MessageKind = "status"
	MessageKindAnalysis MessageKind = "analysis"
	MessageKindJSON     MessageKind = "json"
	MessageKindBinary   MessageKind = "binary"
	MessageKindError    MessageKind = "error"
)

// SocketMessage is one observable event from a peer's analysis socket.
// Status transitions carry Status, analysis and generic JSON payloads carry
// the decoded Fields, opaque binary payloads carry Size, and socket errors
// carry Detail.
type SocketMessage struct {
	Kind   MessageKind
	Status ConnectionStatus
	Fields map[string]any
	Size   int
	Detail string
}

// Observer receives everything the session surfaces to the UI layer. A
// session holds exactly one observer at a time; replace it atomically with
// SetObserver. Implementations must not block, all callbacks fire on
// transport goroutines.
type Observer interface {
	OnError(err error)
	OnSocketMessage(peerID string, msg SocketMessage)
	OnConnectionStatusChange(peerID string, status ConnectionStatus)
	OnChannelClosed()
	OnHeartbeatStatus(alive bool)
	OnAnalysisReceived(event *analysis.Event)
}

// NopObserver discards every callback. It backs sessions that have no UI
// bound yet.
type NopObserver struct{}

func (NopObserver) OnError(error)                                     {}
func (NopObserver) OnSocketMessage(string, SocketMessage)             {}
func (NopObserver) OnConnectionStatusChange(string, ConnectionStatus) {}
func (NopObserver) OnChannelClosed()                                  {}
func (NopObserver) OnHeartbeatStatus(bool)                            {}
func (NopObserver) OnAnalysisReceived(*analysis.Event)                {}
