package rtc

import (
	"context"

	"github.com/foxseedlab/tsuhoban/internal/gateway"
)

// LocalTrack is the operator's own microphone track. Mute keeps the track
// published but silences it; Close releases the capture device.
type LocalTrack interface {
	SetMuted(muted bool) error
	Close() error
}

// RemotePeer is one other participant's published audio. Play begins
// consumption (and local playback where the platform supports it); Receive
// registers the callback invoked with each compressed audio packet.
type RemotePeer interface {
	ID() string
	Play() error
	Receive(callback func(packet []byte))
	Stop()
}

// Client is the boundary to the underlying real-time media transport.
// Implementations must tolerate Leave being called at any point.
type Client interface {
	Join(ctx context.Context, creds gateway.Credentials) error
	Leave() error
	CreateMicrophoneTrack() (LocalTrack, error)
	Publish(track LocalTrack) error
	Unpublish(track LocalTrack) error
	RemotePeers() []RemotePeer
	OnPeerPublished(handler func(peer RemotePeer))
	OnPeerUnpublished(handler func(peerID string))
}
