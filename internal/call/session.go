package call

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/tsuhoban/internal/analysis"
	"github.com/foxseedlab/tsuhoban/internal/audio"
	"github.com/foxseedlab/tsuhoban/internal/config"
	"github.com/foxseedlab/tsuhoban/internal/gateway"
	"github.com/foxseedlab/tsuhoban/internal/rtc"
)

var (
	ErrAlreadyJoined     = errors.New("already joined a channel")
	ErrNotJoined         = errors.New("not joined to a channel")
	ErrNotOwner          = errors.New("only the channel owner can close it")
	ErrNoTrack           = errors.New("no local audio track")
	ErrNoPreviousChannel = errors.New("no previous channel to reconnect to")
)

const defaultHeartbeatInitialDelay = time.Second

// State is a point-in-time snapshot of one session, safe to hand to the UI.
type State struct {
	Joined          bool
	CallStarted     bool
	IsOwner         bool
	Muted           bool
	Paused          bool
	HeartbeatActive bool
	ChannelName     string
	ActivePeers     []string
}

// Session orchestrates one operator's participation in a call channel: media
// membership, the microphone track, one analysis bridge per remote peer, and
// the liveness heartbeat. All public methods are safe for concurrent use.
type Session struct {
	gw         gateway.Client
	rtcClient  rtc.Client
	dialer     analysis.Dialer
	reconciler *Reconciler
	newDecoder audio.DecoderFactory

	requestTimeout        time.Duration
	heartbeatInterval     time.Duration
	heartbeatInitialDelay time.Duration

	obsMu sync.RWMutex
	obs   Observer

	mu              sync.Mutex
	joined          bool
	joining         bool
	callStarted     bool
	isOwner         bool
	muted           bool
	paused          bool
	heartbeatActive bool
	channelName     string
	lastChannelName string
	micTrack        rtc.LocalTrack
	bridges         map[string]*peerBridge
	heartbeatCancel context.CancelFunc
}

func NewSession(
	cfg *config.Config,
	gw gateway.Client,
	rtcClient rtc.Client,
	dialer analysis.Dialer,
	reconciler *Reconciler,
	newDecoder audio.DecoderFactory,
) *Session {
	return &Session{
		gw:                    gw,
		rtcClient:             rtcClient,
		dialer:                dialer,
		reconciler:            reconciler,
		newDecoder:            newDecoder,
		requestTimeout:        cfg.RequestTimeout(),
		heartbeatInterval:     cfg.HeartbeatInterval(),
		heartbeatInitialDelay: defaultHeartbeatInitialDelay,
		obs:                   NopObserver{},
		bridges:               make(map[string]*peerBridge),
	}
}

// SetObserver atomically replaces the observer. A nil observer silences all
// callbacks.
func (s *Session) SetObserver(obs Observer) {
	if obs == nil {
		obs = NopObserver{}
	}
	s.obsMu.Lock()
	s.obs = obs
	s.obsMu.Unlock()
}

func (s *Session) observer() Observer {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return s.obs
}

// JoinChannel connects this session to a channel. An empty channelName raises
// a fresh channel and makes this session its owner; a non-empty one joins an
// existing channel as a plain participant. The microphone is acquired and
// published as part of joining, and the heartbeat starts once membership is
// established. Returns the resolved channel name.
func (s *Session) JoinChannel(ctx context.Context, channelName string) (string, error) {
	s.mu.Lock()
	if s.joined || s.joining {
		s.mu.Unlock()
		return "", ErrAlreadyJoined
	}
	s.joining = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.joining = false
		s.mu.Unlock()
	}()

	isOwner := channelName == ""
	var creds gateway.Credentials
	var err error
	if isOwner {
		creds, err = s.gw.StartCall(ctx)
	} else {
		creds, err = s.gw.JoinCall(ctx, channelName)
	}
	if err != nil {
		return "", fmt.Errorf("failed to obtain channel credentials: %w", err)
	}

	if err := s.rtcClient.Join(ctx, creds); err != nil {
		return "", fmt.Errorf("failed to join media channel: %w", err)
	}
	track, err := s.rtcClient.CreateMicrophoneTrack()
	if err != nil {
		_ = s.rtcClient.Leave()
		return "", fmt.Errorf("failed to acquire microphone: %w", err)
	}
	if err := s.rtcClient.Publish(track); err != nil {
		_ = track.Close()
		_ = s.rtcClient.Leave()
		return "", fmt.Errorf("failed to publish microphone: %w", err)
	}

	s.mu.Lock()
	s.joined = true
	s.callStarted = false
	s.isOwner = isOwner
	s.muted = false
	s.paused = false
	s.channelName = creds.Channel
	s.lastChannelName = creds.Channel
	s.micTrack = track
	s.bridges = make(map[string]*peerBridge)
	s.mu.Unlock()

	s.startHeartbeat(creds.Channel)
	return creds.Channel, nil
}

// StartCall arms audio processing: every remote peer currently publishing
// gets a bridge, and peers publishing later get one as they appear. Calling
// it again while started just re-arms the listeners.
func (s *Session) StartCall() error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return ErrNotJoined
	}
	s.callStarted = true
	needMic := s.micTrack == nil
	s.mu.Unlock()

	// A stopped call released the microphone. Reacquire it, but a device
	// failure is not fatal to the listening side of the call.
	if needMic {
		track, err := s.rtcClient.CreateMicrophoneTrack()
		if err == nil {
			if perr := s.rtcClient.Publish(track); perr != nil {
				_ = track.Close()
				err = perr
			}
		}
		if err != nil {
			s.observer().OnError(fmt.Errorf("failed to reacquire microphone: %w", err))
		} else {
			s.mu.Lock()
			s.micTrack = track
			s.mu.Unlock()
		}
	}

	s.rtcClient.OnPeerPublished(func(peer rtc.RemotePeer) {
		s.spawnBridge(peer)
	})
	s.rtcClient.OnPeerUnpublished(s.retireBridge)
	for _, peer := range s.rtcClient.RemotePeers() {
		s.spawnBridge(peer)
	}
	return nil
}

// StopCall disposes all bridges and releases the microphone but keeps channel
// membership, so the call can be started again without rejoining. Partial
// failures are reported and skipped, never returned.
func (s *Session) StopCall() {
	s.mu.Lock()
	bridges := s.bridges
	s.bridges = make(map[string]*peerBridge)
	track := s.micTrack
	s.micTrack = nil
	s.callStarted = false
	s.muted = false
	s.paused = false
	s.mu.Unlock()

	for _, b := range bridges {
		b.dispose()
	}
	if track != nil {
		if err := s.rtcClient.Unpublish(track); err != nil {
			s.observer().OnError(fmt.Errorf("failed to unpublish microphone: %w", err))
		}
		if err := track.Close(); err != nil {
			s.observer().OnError(fmt.Errorf("failed to release microphone: %w", err))
		}
	}
}

// LeaveChannel tears down this session's side of the channel and returns it
// to idle. The channel itself keeps existing for other participants.
func (s *Session) LeaveChannel() error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return ErrNotJoined
	}
	started := s.callStarted
	s.mu.Unlock()

	if started {
		s.StopCall()
	}
	s.stopHeartbeat()

	s.mu.Lock()
	track := s.micTrack
	s.micTrack = nil
	s.joined = false
	s.isOwner = false
	s.muted = false
	s.paused = false
	s.channelName = ""
	s.mu.Unlock()

	if track != nil {
		_ = track.Close()
	}
	if err := s.rtcClient.Leave(); err != nil {
		s.observer().OnError(fmt.Errorf("failed to leave media channel: %w", err))
	}
	return nil
}

// CloseChannel terminates the channel for everyone. Only the owner may do
// this; a failed termination request leaves the session untouched.
func (s *Session) CloseChannel(ctx context.Context) error {
	s.mu.Lock()
	if !s.joined || s.channelName == "" {
		s.mu.Unlock()
		return ErrNotJoined
	}
	if !s.isOwner {
		s.mu.Unlock()
		return ErrNotOwner
	}
	name := s.channelName
	s.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	if err := s.gw.EndCall(reqCtx, name); err != nil {
		return fmt.Errorf("failed to end call: %w", err)
	}
	if err := s.LeaveChannel(); err != nil && !errors.Is(err, ErrNotJoined) {
		s.observer().OnError(err)
	}
	s.observer().OnChannelClosed()
	return nil
}

// MuteAudio silences the microphone while keeping it published, so remote
// parties see a live but silent track.
func (s *Session) MuteAudio(mute bool) error {
	s.mu.Lock()
	track := s.micTrack
	s.mu.Unlock()
	if track == nil {
		return ErrNoTrack
	}
	if err := track.SetMuted(mute); err != nil {
		return fmt.Errorf("failed to set mute: %w", err)
	}
	s.mu.Lock()
	s.muted = mute
	s.mu.Unlock()
	return nil
}

// PauseCall unpublishes the microphone entirely (resume republishes it).
// Unlike mute, nothing is transmitted at all while paused.
func (s *Session) PauseCall(pause bool) error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return ErrNotJoined
	}
	track := s.micTrack
	alreadyPaused := s.paused
	s.mu.Unlock()
	if track == nil {
		return ErrNoTrack
	}
	if pause == alreadyPaused {
		return nil
	}
	var err error
	if pause {
		err = s.rtcClient.Unpublish(track)
	} else {
		err = s.rtcClient.Publish(track)
	}
	if err != nil {
		return fmt.Errorf("failed to change pause state: %w", err)
	}
	s.mu.Lock()
	s.paused = pause
	s.mu.Unlock()
	return nil
}

// ListChannels returns the gateway's current channel roster.
func (s *Session) ListChannels(ctx context.Context) ([]gateway.Channel, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return s.gw.ListCalls(reqCtx)
}

// ReconnectToChannel drops all local state and rejoins the last known
// channel. Useful after a detected disconnect; the old membership does not
// need to still exist for the teardown half to succeed.
func (s *Session) ReconnectToChannel(ctx context.Context) (string, error) {
	s.mu.Lock()
	last := s.lastChannelName
	s.mu.Unlock()
	if last == "" {
		return "", ErrNoPreviousChannel
	}
	if err := s.LeaveChannel(); err != nil && !errors.Is(err, ErrNotJoined) {
		s.observer().OnError(err)
	}
	return s.JoinChannel(ctx, last)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]string, 0, len(s.bridges))
	for id := range s.bridges {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return State{
		Joined:          s.joined,
		CallStarted:     s.callStarted,
		IsOwner:         s.isOwner,
		Muted:           s.muted,
		Paused:          s.paused,
		HeartbeatActive: s.heartbeatActive,
		ChannelName:     s.channelName,
		ActivePeers:     peers,
	}
}

// Cleanup returns the session to idle unconditionally.
func (s *Session) Cleanup() {
	if err := s.LeaveChannel(); err != nil && !errors.Is(err, ErrNotJoined) {
		s.observer().OnError(err)
	}
	s.stopHeartbeat()
}

// spawnBridge builds a bridge for one newly publishing peer. A peer that
// already has a live bridge is left alone.
func (s *Session) spawnBridge(peer rtc.RemotePeer) {
	peerID := peer.ID()
	s.mu.Lock()
	if !s.callStarted {
		s.mu.Unlock()
		return
	}
	if _, exists := s.bridges[peerID]; exists {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	b, err := s.buildBridge(peer)
	if err != nil {
		peer.Stop()
		s.observer().OnError(err)
		return
	}

	s.mu.Lock()
	_, exists := s.bridges[peerID]
	stillStarted := s.callStarted
	if !exists && stillStarted {
		s.bridges[peerID] = b
	}
	s.mu.Unlock()
	if exists || !stillStarted {
		b.dispose()
	}
}

func (s *Session) buildBridge(peer rtc.RemotePeer) (*peerBridge, error) {
	peerID := peer.ID()
	b := newPeerBridge(peerID, s.bridgeCallbacks())
	b.onDispose = func(id string) {
		peer.Stop()
		s.mu.Lock()
		if s.bridges[id] == b {
			delete(s.bridges, id)
		}
		s.mu.Unlock()
	}

	// Playback first: the operator hears the caller even if the analysis
	// backend is unreachable.
	if err := peer.Play(); err != nil {
		s.observer().OnError(fmt.Errorf("failed to play audio from peer %s: %w", peerID, err))
	}

	s.observer().OnConnectionStatusChange(peerID, ConnectionStatusConnecting)
	dialCtx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	stream, err := s.dialer.Dial(dialCtx, peerID, b.streamHandlers())
	if err != nil {
		return nil, fmt.Errorf("failed to open analysis socket for peer %s: %w", peerID, err)
	}
	b.setStream(stream)

	// A missing decoder degrades the bridge to socket-only. Inbound analysis
	// still flows; only the outbound audio tap is lost.
	dec, err := s.newDecoder()
	if err != nil {
		s.observer().OnError(fmt.Errorf("audio tap unavailable for peer %s: %w", peerID, err))
		return b, nil
	}
	b.setDecoder(dec)
	peer.Receive(b.handleOpus)
	return b, nil
}

func (s *Session) retireBridge(peerID string) {
	s.mu.Lock()
	b := s.bridges[peerID]
	s.mu.Unlock()
	if b != nil {
		b.dispose()
	}
}

func (s *Session) bridgeCallbacks() bridgeCallbacks {
	return bridgeCallbacks{
		onSocketMessage: func(peerID string, msg SocketMessage) {
			s.observer().OnSocketMessage(peerID, msg)
		},
		onStatusChange: func(peerID string, status ConnectionStatus) {
			s.observer().OnConnectionStatusChange(peerID, status)
		},
		onAnalysis: func(event *analysis.Event) {
			s.observer().OnAnalysisReceived(event)
			// Fire and forget: persistence must never stall the audio path.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
				defer cancel()
				if err := s.reconciler.Persist(ctx, event); err != nil {
					s.observer().OnError(fmt.Errorf("failed to persist analysis for call %s: %w", event.CallID, err))
				}
			}()
		},
		onError: func(err error) {
			s.observer().OnError(err)
		},
	}
}
