package rtc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/foxseedlab/tsuhoban/internal/gateway"
	"github.com/foxseedlab/tsuhoban/internal/rtc"
	"github.com/gorilla/websocket"
	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/webrtc/v4"
)

const signalHandshakeTimeout = 10 * time.Second

type signalMessage struct {
	Type      string                   `json:"type"`
	Channel   string                   `json:"channel,omitempty"`
	AppID     string                   `json:"appId,omitempty"`
	PeerID    string                   `json:"peerId,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// PionClient talks to the media gateway: WebSocket signaling carrying SDP and
// ICE, one PeerConnection per joined channel, microphone capture via
// pion/mediadevices.
type PionClient struct {
	signalURL string

	mu            sync.Mutex
	pc            *webrtc.PeerConnection
	signal        *websocket.Conn
	peers         map[string]*remotePeer
	onPublished   func(rtc.RemotePeer)
	onUnpublished func(peerID string)
	codecSelector *mediadevices.CodecSelector
	joined        bool

	writeMu sync.Mutex
}

func NewPionClient(signalURL string) rtc.Client {
	return &PionClient{
		signalURL: signalURL,
		peers:     make(map[string]*remotePeer),
	}
}

func (c *PionClient) ensureCodecSelector() (*mediadevices.CodecSelector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codecSelector != nil {
		return c.codecSelector, nil
	}
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus encoder params: %w", err)
	}
	c.codecSelector = mediadevices.NewCodecSelector(
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return c.codecSelector, nil
}

func (c *PionClient) Join(ctx context.Context, creds gateway.Credentials) error {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return fmt.Errorf("media connection already established")
	}
	c.mu.Unlock()

	selector, err := c.ensureCodecSelector()
	if err != nil {
		return err
	}

	mediaEngine := &webrtc.MediaEngine{}
	selector.Populate(mediaEngine)

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return fmt.Errorf("register interceptors: %w", err)
	}

	// Generous ICE timeouts so a short relay hiccup does not drop the call.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+creds.Token)
	dialer := websocket.Dialer{HandshakeTimeout: signalHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.signalURL, headers)
	if err != nil {
		_ = pc.Close()
		if resp != nil {
			return fmt.Errorf("signaling connect (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("signaling connect: %w", err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		peerID := track.StreamID()
		if peerID == "" {
			peerID = track.ID()
		}
		peer := newRemotePeer(peerID, track, c.handlePeerEnded)
		c.mu.Lock()
		c.peers[peerID] = peer
		handler := c.onPublished
		c.mu.Unlock()
		slog.Info("remote peer published audio", "peer_id", peerID, "codec", track.Codec().MimeType)
		if handler != nil {
			handler(peer)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Info("peer connection state changed", "state", state.String())
	})
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		c.sendSignal(signalMessage{Type: "candidate", Candidate: &init})
	})
	pc.OnNegotiationNeeded(func() {
		offer, err := pc.CreateOffer(nil)
		if err != nil {
			slog.Error("failed to create offer", "error", err)
			return
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			slog.Error("failed to set local description", "error", err)
			return
		}
		c.sendSignal(signalMessage{Type: "offer", SDP: offer.SDP})
	})

	c.mu.Lock()
	c.pc = pc
	c.signal = conn
	c.joined = true
	c.mu.Unlock()

	if err := c.sendSignal(signalMessage{Type: "join", Channel: creds.Channel, AppID: creds.AppID}); err != nil {
		_ = c.Leave()
		return fmt.Errorf("send join: %w", err)
	}
	go c.signalLoop(conn, pc)
	return nil
}

func (c *PionClient) sendSignal(msg signalMessage) error {
	c.mu.Lock()
	conn := c.signal
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("signaling not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *PionClient) signalLoop(conn *websocket.Conn, pc *webrtc.PeerConnection) {
	for {
		var msg signalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			active := c.signal == conn
			c.mu.Unlock()
			if active {
				slog.Warn("signaling connection lost", "error", err)
			}
			return
		}
		switch msg.Type {
		case "offer":
			if err := pc.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeOffer,
				SDP:  msg.SDP,
			}); err != nil {
				slog.Error("failed to apply remote offer", "error", err)
				continue
			}
			answer, err := pc.CreateAnswer(nil)
			if err != nil {
				slog.Error("failed to create answer", "error", err)
				continue
			}
			if err := pc.SetLocalDescription(answer); err != nil {
				slog.Error("failed to set local description", "error", err)
				continue
			}
			_ = c.sendSignal(signalMessage{Type: "answer", SDP: answer.SDP})
		case "answer":
			if err := pc.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer,
				SDP:  msg.SDP,
			}); err != nil {
				slog.Error("failed to apply remote answer", "error", err)
			}
		case "candidate":
			if msg.Candidate == nil {
				continue
			}
			if err := pc.AddICECandidate(*msg.Candidate); err != nil {
				slog.Warn("failed to add ICE candidate", "error", err)
			}
		case "peer-left":
			c.handlePeerEnded(msg.PeerID)
		default:
			slog.Debug("ignoring signaling message", "type", msg.Type)
		}
	}
}

func (c *PionClient) handlePeerEnded(peerID string) {
	c.mu.Lock()
	peer, ok := c.peers[peerID]
	if ok {
		delete(c.peers, peerID)
	}
	handler := c.onUnpublished
	c.mu.Unlock()
	if !ok {
		return
	}
	peer.Stop()
	slog.Info("remote peer unpublished audio", "peer_id", peerID)
	if handler != nil {
		handler(peerID)
	}
}

func (c *PionClient) Leave() error {
	c.mu.Lock()
	pc := c.pc
	conn := c.signal
	peers := make([]*remotePeer, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	c.pc = nil
	c.signal = nil
	c.peers = make(map[string]*remotePeer)
	c.joined = false
	c.mu.Unlock()

	for _, p := range peers {
		p.Stop()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if pc != nil {
		return pc.Close()
	}
	return nil
}

func (c *PionClient) CreateMicrophoneTrack() (rtc.LocalTrack, error) {
	selector, err := c.ensureCodecSelector()
	if err != nil {
		return nil, err
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: selector,
	})
	if err != nil {
		return nil, fmt.Errorf("capture microphone: %w", err)
	}
	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no audio track captured")
	}
	track, ok := tracks[0].(mediadevices.Track)
	if !ok {
		return nil, fmt.Errorf("unexpected track type %T", tracks[0])
	}
	return &localTrack{track: track}, nil
}

func (c *PionClient) Publish(t rtc.LocalTrack) error {
	lt, ok := t.(*localTrack)
	if !ok {
		return fmt.Errorf("unexpected local track type %T", t)
	}
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return fmt.Errorf("media connection not established")
	}
	sender, err := pc.AddTrack(lt.track)
	if err != nil {
		return fmt.Errorf("publish track: %w", err)
	}
	lt.setSender(sender)
	return nil
}

func (c *PionClient) Unpublish(t rtc.LocalTrack) error {
	lt, ok := t.(*localTrack)
	if !ok {
		return fmt.Errorf("unexpected local track type %T", t)
	}
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return fmt.Errorf("media connection not established")
	}
	sender := lt.takeSender()
	if sender == nil {
		return nil
	}
	if err := pc.RemoveTrack(sender); err != nil {
		return fmt.Errorf("unpublish track: %w", err)
	}
	return nil
}

func (c *PionClient) RemotePeers() []rtc.RemotePeer {
	c.mu.Lock()
	defer c.mu.Unlock()
	peers := make([]rtc.RemotePeer, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	return peers
}

func (c *PionClient) OnPeerPublished(handler func(peer rtc.RemotePeer)) {
	c.mu.Lock()
	c.onPublished = handler
	c.mu.Unlock()
}

func (c *PionClient) OnPeerUnpublished(handler func(peerID string)) {
	c.mu.Lock()
	c.onUnpublished = handler
	c.mu.Unlock()
}
