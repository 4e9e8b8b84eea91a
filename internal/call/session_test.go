package call

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foxseedlab/tsuhoban/internal/audio"
	"github.com/foxseedlab/tsuhoban/internal/config"
	"github.com/foxseedlab/tsuhoban/internal/gateway"
)

func newTestSession(gw *fakeGateway, rtcC *fakeRTC, dialer *fakeDialer, repo *fakeRepo) *Session {
	cfg := &config.Config{RequestTimeoutSec: 1, HeartbeatIntervalSec: 1}
	s := NewSession(cfg, gw, rtcC, dialer, NewReconciler(repo), func() (audio.Decoder, error) {
		return &fakeDecoder{rate: 16000, samplesPerPacket: 2048}, nil
	})
	s.heartbeatInitialDelay = 5 * time.Millisecond
	s.heartbeatInterval = 5 * time.Millisecond
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestJoinChannelAsOwner(t *testing.T) {
	gw := &fakeGateway{}
	rtcC := &fakeRTC{}
	s := newTestSession(gw, rtcC, &fakeDialer{}, &fakeRepo{})
	defer s.Cleanup()

	name, err := s.JoinChannel(context.Background(), "")
	if err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	if name != "generated-channel-1" {
		t.Errorf("channel name = %q, want generated-channel-1", name)
	}
	if gw.startCalls != 1 {
		t.Errorf("startCalls = %d, want 1", gw.startCalls)
	}

	state := s.State()
	if !state.Joined || !state.IsOwner {
		t.Errorf("state = %+v, want joined owner", state)
	}
	if state.CallStarted {
		t.Error("call should not be started right after join")
	}
	if !state.HeartbeatActive {
		t.Error("heartbeat should be active after join")
	}

	if err := s.StartCall(); err != nil {
		t.Fatalf("StartCall failed: %v", err)
	}
	if !s.State().CallStarted {
		t.Error("call should be started")
	}
}

func TestJoinChannelAsJoiner(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestSession(gw, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})
	defer s.Cleanup()

	name, err := s.JoinChannel(context.Background(), "room-42")
	if err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	if name != "room-42" {
		t.Errorf("channel name = %q, want room-42", name)
	}
	if s.State().IsOwner {
		t.Error("joiner must not be owner")
	}

	err = s.CloseChannel(context.Background())
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("CloseChannel error = %v, want ErrNotOwner", err)
	}
	if gw.endCallCount() != 0 {
		t.Errorf("endCalls = %d, want 0", gw.endCallCount())
	}
}

func TestCloseChannelWithoutActiveChannel(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestSession(gw, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})

	err := s.CloseChannel(context.Background())
	if !errors.Is(err, ErrNotJoined) {
		t.Errorf("CloseChannel error = %v, want ErrNotJoined", err)
	}
	if gw.endCallCount() != 0 {
		t.Errorf("endCalls = %d, want 0", gw.endCallCount())
	}
}

func TestCloseChannelAsOwner(t *testing.T) {
	gw := &fakeGateway{}
	obs := &recordingObserver{}
	s := newTestSession(gw, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})
	s.SetObserver(obs)

	if _, err := s.JoinChannel(context.Background(), ""); err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	if err := s.CloseChannel(context.Background()); err != nil {
		t.Fatalf("CloseChannel failed: %v", err)
	}
	if gw.endCallCount() != 1 {
		t.Errorf("endCalls = %d, want 1", gw.endCallCount())
	}
	if obs.closedCount() != 1 {
		t.Errorf("channel closed signals = %d, want 1", obs.closedCount())
	}
	if s.State().Joined {
		t.Error("session should be idle after close")
	}
}

func TestJoinChannelTwice(t *testing.T) {
	s := newTestSession(&fakeGateway{}, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})
	defer s.Cleanup()

	if _, err := s.JoinChannel(context.Background(), "room-42"); err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	if _, err := s.JoinChannel(context.Background(), "room-43"); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("second join error = %v, want ErrAlreadyJoined", err)
	}
}

type blockingGateway struct {
	fakeGateway
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) JoinCall(ctx context.Context, channelName string) (gateway.Credentials, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeGateway.JoinCall(ctx, channelName)
}

func TestConcurrentJoinAdmitsOnlyOne(t *testing.T) {
	gw := &blockingGateway{entered: make(chan struct{}), release: make(chan struct{})}
	s := newTestSession(&gw.fakeGateway, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})
	s.gw = gw
	defer s.Cleanup()

	errs := make(chan error, 2)
	go func() {
		_, err := s.JoinChannel(context.Background(), "room-42")
		errs <- err
	}()
	<-gw.entered

	// Second join while the first is still in flight must be rejected
	// without touching the gateway.
	_, err := s.JoinChannel(context.Background(), "room-42")
	if !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("concurrent join error = %v, want ErrAlreadyJoined", err)
	}

	close(gw.release)
	if err := <-errs; err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if !s.State().Joined {
		t.Error("session should be joined")
	}
}

func TestJoinRetriesAfterFailure(t *testing.T) {
	gw := &fakeGateway{joinErr: errors.New("gateway down")}
	s := newTestSession(gw, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})
	defer s.Cleanup()

	if _, err := s.JoinChannel(context.Background(), "room-42"); err == nil {
		t.Fatal("expected join to fail")
	}
	gw.mu.Lock()
	gw.joinErr = nil
	gw.mu.Unlock()
	if _, err := s.JoinChannel(context.Background(), "room-42"); err != nil {
		t.Fatalf("retry after failure should succeed, got %v", err)
	}
}

func TestStartCallRequiresJoin(t *testing.T) {
	s := newTestSession(&fakeGateway{}, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})
	if err := s.StartCall(); !errors.Is(err, ErrNotJoined) {
		t.Errorf("StartCall error = %v, want ErrNotJoined", err)
	}
}

func TestOneBridgePerPeer(t *testing.T) {
	rtcC := &fakeRTC{}
	dialer := &fakeDialer{}
	s := newTestSession(&fakeGateway{}, rtcC, dialer, &fakeRepo{})
	defer s.Cleanup()

	peer1 := &fakeRemotePeer{id: "p1"}
	peer2 := &fakeRemotePeer{id: "p2"}
	rtcC.peers = append(rtcC.peers, peer1, peer2)

	if _, err := s.JoinChannel(context.Background(), "room-42"); err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	if err := s.StartCall(); err != nil {
		t.Fatalf("StartCall failed: %v", err)
	}
	if dialer.dialCount() != 2 {
		t.Fatalf("dials = %d, want 2", dialer.dialCount())
	}
	if got := len(s.State().ActivePeers); got != 2 {
		t.Fatalf("active peers = %d, want 2", got)
	}

	// Re-publishing from a live peer must not create a second bridge.
	rtcC.publishPeer(peer1)
	if dialer.dialCount() != 2 {
		t.Errorf("dials after duplicate publish = %d, want 2", dialer.dialCount())
	}

	// Unpublish disposes the bridge exactly once; republish gets a fresh one.
	firstStream := dialer.streamFor("p1")
	rtcC.unpublishPeer("p1")
	if firstStream.closeCount() != 1 {
		t.Errorf("old stream closes = %d, want 1", firstStream.closeCount())
	}
	if peer1.stopCount() != 1 {
		t.Errorf("peer stop calls = %d, want 1", peer1.stopCount())
	}
	rtcC.publishPeer(&fakeRemotePeer{id: "p1"})
	if dialer.dialCount() != 3 {
		t.Errorf("dials after republish = %d, want 3", dialer.dialCount())
	}
	if firstStream.closeCount() != 1 {
		t.Errorf("old stream closed again, closes = %d", firstStream.closeCount())
	}
	if got := len(s.State().ActivePeers); got != 2 {
		t.Errorf("active peers after republish = %d, want 2", got)
	}
}

func TestInboundAnalysisPersists(t *testing.T) {
	rtcC := &fakeRTC{}
	dialer := &fakeDialer{}
	repo := &fakeRepo{}
	obs := &recordingObserver{}
	s := newTestSession(&fakeGateway{}, rtcC, dialer, repo)
	s.SetObserver(obs)
	defer s.Cleanup()

	if _, err := s.JoinChannel(context.Background(), "room-42"); err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	if err := s.StartCall(); err != nil {
		t.Fatalf("StartCall failed: %v", err)
	}
	rtcC.publishPeer(&fakeRemotePeer{id: "caller-1"})

	handlers, ok := dialer.handlersFor("caller-1")
	if !ok {
		t.Fatal("no stream handlers captured for caller-1")
	}
	handlers.OnMessage([]byte(`{"call_id":"room-42","analysis":{"reasoning":"x"},"current_status":"analyzing","confidence_trend":[0.5]}`))

	if obs.analysisCount() != 1 {
		t.Fatalf("analysis callbacks = %d, want 1", obs.analysisCount())
	}
	found := false
	for _, kind := range obs.messageKinds() {
		if kind == MessageKindAnalysis {
			found = true
		}
	}
	if !found {
		t.Error("no raw socket message with analysis kind observed")
	}

	waitFor(t, time.Second, func() bool { return repo.recordCount() == 1 })
	rec, ok := repo.record("room-42")
	if !ok {
		t.Fatal("no persisted record for room-42")
	}
	if rec.Reasoning != "x" || rec.CurrentStatus != "analyzing" {
		t.Errorf("persisted record = %+v", rec)
	}
}

func TestStopCallKeepsMembership(t *testing.T) {
	rtcC := &fakeRTC{}
	dialer := &fakeDialer{}
	s := newTestSession(&fakeGateway{}, rtcC, dialer, &fakeRepo{})
	defer s.Cleanup()

	rtcC.peers = append(rtcC.peers, &fakeRemotePeer{id: "p1"})
	if _, err := s.JoinChannel(context.Background(), "room-42"); err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	if err := s.StartCall(); err != nil {
		t.Fatalf("StartCall failed: %v", err)
	}

	s.StopCall()

	state := s.State()
	if !state.Joined {
		t.Error("stop must keep channel membership")
	}
	if state.CallStarted {
		t.Error("call should be stopped")
	}
	if len(state.ActivePeers) != 0 {
		t.Errorf("active peers after stop = %d, want 0", len(state.ActivePeers))
	}
	if dialer.streamFor("p1").closeCount() != 1 {
		t.Error("bridge stream not closed on stop")
	}

	// Starting again without rejoining reacquires the microphone.
	before := len(rtcC.published)
	if err := s.StartCall(); err != nil {
		t.Fatalf("second StartCall failed: %v", err)
	}
	if len(rtcC.published) != before+1 {
		t.Errorf("published tracks = %d, want %d", len(rtcC.published), before+1)
	}
}

func TestMuteWithoutTrack(t *testing.T) {
	s := newTestSession(&fakeGateway{}, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})
	if err := s.MuteAudio(true); !errors.Is(err, ErrNoTrack) {
		t.Errorf("MuteAudio error = %v, want ErrNoTrack", err)
	}
}

func TestMuteAndPause(t *testing.T) {
	rtcC := &fakeRTC{}
	s := newTestSession(&fakeGateway{}, rtcC, &fakeDialer{}, &fakeRepo{})
	defer s.Cleanup()

	if _, err := s.JoinChannel(context.Background(), "room-42"); err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	track := rtcC.published[0].(*fakeTrack)

	if err := s.MuteAudio(true); err != nil {
		t.Fatalf("MuteAudio failed: %v", err)
	}
	if !track.isMuted() {
		t.Error("track should be muted")
	}
	if !s.State().Muted {
		t.Error("state should report muted")
	}

	if err := s.PauseCall(true); err != nil {
		t.Fatalf("PauseCall failed: %v", err)
	}
	if len(rtcC.unpublished) != 1 {
		t.Errorf("unpublished tracks = %d, want 1", len(rtcC.unpublished))
	}
	if err := s.PauseCall(false); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if len(rtcC.published) != 2 {
		t.Errorf("published tracks = %d, want 2", len(rtcC.published))
	}
}

func TestHeartbeatRecoversBeforeThreshold(t *testing.T) {
	var probes atomic.Int32
	gw := &fakeGateway{heartbeatFn: func(string) (bool, error) {
		// First probe is the early one-shot; the two after it fail, then
		// the channel recovers.
		return probes.Add(1) > 3, nil
	}}
	obs := &recordingObserver{}
	s := newTestSession(gw, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})
	s.SetObserver(obs)
	defer s.Cleanup()

	if _, err := s.JoinChannel(context.Background(), "room-42"); err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return obs.heartbeatCount() >= 6 })
	if obs.closedCount() != 0 {
		t.Errorf("terminal signals = %d, want 0 after recovery", obs.closedCount())
	}
	if !s.State().Joined {
		t.Error("session should still be joined")
	}
}

func TestHeartbeatThresholdClosesOnce(t *testing.T) {
	gw := &fakeGateway{heartbeatFn: func(string) (bool, error) {
		return false, nil
	}}
	obs := &recordingObserver{}
	s := newTestSession(gw, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})
	s.SetObserver(obs)

	if _, err := s.JoinChannel(context.Background(), "room-42"); err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return obs.closedCount() >= 1 })
	time.Sleep(50 * time.Millisecond)
	if obs.closedCount() != 1 {
		t.Errorf("terminal signals = %d, want exactly 1", obs.closedCount())
	}
	if s.State().Joined {
		t.Error("session should be torn down after threshold breach")
	}
}

func TestReconnectToChannel(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestSession(gw, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})
	defer s.Cleanup()

	if _, err := s.ReconnectToChannel(context.Background()); !errors.Is(err, ErrNoPreviousChannel) {
		t.Error("reconnect before any join should fail")
	}

	if _, err := s.JoinChannel(context.Background(), "room-42"); err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	name, err := s.ReconnectToChannel(context.Background())
	if err != nil {
		t.Fatalf("ReconnectToChannel failed: %v", err)
	}
	if name != "room-42" {
		t.Errorf("reconnected channel = %q, want room-42", name)
	}
	if len(gw.joinCalls) != 2 {
		t.Errorf("joinCalls = %v, want two joins of room-42", gw.joinCalls)
	}
	if !s.State().Joined {
		t.Error("session should be joined after reconnect")
	}
}

func TestObserverRebindKeepsState(t *testing.T) {
	s := newTestSession(&fakeGateway{}, &fakeRTC{}, &fakeDialer{}, &fakeRepo{})
	defer s.Cleanup()

	if _, err := s.JoinChannel(context.Background(), "room-42"); err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}
	s.SetObserver(&recordingObserver{})
	if !s.State().Joined {
		t.Error("rebinding the observer must not reset session state")
	}
}
