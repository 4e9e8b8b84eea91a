package call

import (
	"context"
	"sync"

	"github.com/foxseedlab/tsuhoban/internal/analysis"
	"github.com/foxseedlab/tsuhoban/internal/gateway"
	"github.com/foxseedlab/tsuhoban/internal/repository"
	"github.com/foxseedlab/tsuhoban/internal/rtc"
)

type fakeGateway struct {
	mu          sync.Mutex
	startCalls  int
	joinCalls   []string
	endCalls    []string
	probeCalls  int
	startErr    error
	joinErr     error
	endErr      error
	channels    []gateway.Channel
	heartbeatFn func(channelName string) (bool, error)
}

func (g *fakeGateway) StartCall(_ context.Context) (gateway.Credentials, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.startCalls++
	if g.startErr != nil {
		return gateway.Credentials{}, g.startErr
	}
	return gateway.Credentials{AppID: "app", Channel: "generated-channel-1", Token: "tok"}, nil
}

func (g *fakeGateway) JoinCall(_ context.Context, channelName string) (gateway.Credentials, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joinCalls = append(g.joinCalls, channelName)
	if g.joinErr != nil {
		return gateway.Credentials{}, g.joinErr
	}
	return gateway.Credentials{AppID: "app", Channel: channelName, Token: "tok"}, nil
}

func (g *fakeGateway) EndCall(_ context.Context, channelName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endCalls = append(g.endCalls, channelName)
	return g.endErr
}

func (g *fakeGateway) ListCalls(_ context.Context) ([]gateway.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.channels, nil
}

func (g *fakeGateway) Heartbeat(_ context.Context, channelName string) (bool, error) {
	g.mu.Lock()
	fn := g.heartbeatFn
	g.probeCalls++
	g.mu.Unlock()
	if fn != nil {
		return fn(channelName)
	}
	return true, nil
}

func (g *fakeGateway) endCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.endCalls)
}

type fakeTrack struct {
	mu     sync.Mutex
	muted  bool
	closed bool
}

func (t *fakeTrack) SetMuted(muted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = muted
	return nil
}

func (t *fakeTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTrack) isMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

type fakeRemotePeer struct {
	id string

	mu        sync.Mutex
	playCalls int
	stopCalls int
	callback  func(packet []byte)
}

func (p *fakeRemotePeer) ID() string { return p.id }

func (p *fakeRemotePeer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playCalls++
	return nil
}

func (p *fakeRemotePeer) Receive(callback func(packet []byte)) {
	p.mu.Lock()
	p.callback = callback
	p.mu.Unlock()
}

func (p *fakeRemotePeer) Stop() {
	p.mu.Lock()
	p.stopCalls++
	p.mu.Unlock()
}

func (p *fakeRemotePeer) push(packet []byte) {
	p.mu.Lock()
	cb := p.callback
	p.mu.Unlock()
	if cb != nil {
		cb(packet)
	}
}

func (p *fakeRemotePeer) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCalls
}

type fakeRTC struct {
	mu            sync.Mutex
	joinErr       error
	trackErr      error
	joined        bool
	leaveCalls    int
	published     []rtc.LocalTrack
	unpublished   []rtc.LocalTrack
	peers         []rtc.RemotePeer
	onPublished   func(peer rtc.RemotePeer)
	onUnpublished func(peerID string)
}

func (c *fakeRTC) Join(_ context.Context, _ gateway.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joinErr != nil {
		return c.joinErr
	}
	c.joined = true
	return nil
}

func (c *fakeRTC) Leave() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = false
	c.leaveCalls++
	return nil
}

func (c *fakeRTC) CreateMicrophoneTrack() (rtc.LocalTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trackErr != nil {
		return nil, c.trackErr
	}
	return &fakeTrack{}, nil
}

func (c *fakeRTC) Publish(track rtc.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, track)
	return nil
}

func (c *fakeRTC) Unpublish(track rtc.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unpublished = append(c.unpublished, track)
	return nil
}

func (c *fakeRTC) RemotePeers() []rtc.RemotePeer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]rtc.RemotePeer(nil), c.peers...)
}

func (c *fakeRTC) OnPeerPublished(handler func(peer rtc.RemotePeer)) {
	c.mu.Lock()
	c.onPublished = handler
	c.mu.Unlock()
}

func (c *fakeRTC) OnPeerUnpublished(handler func(peerID string)) {
	c.mu.Lock()
	c.onUnpublished = handler
	c.mu.Unlock()
}

func (c *fakeRTC) publishPeer(peer *fakeRemotePeer) {
	c.mu.Lock()
	c.peers = append(c.peers, peer)
	handler := c.onPublished
	c.mu.Unlock()
	if handler != nil {
		handler(peer)
	}
}

func (c *fakeRTC) unpublishPeer(peerID string) {
	c.mu.Lock()
	kept := c.peers[:0]
	for _, p := range c.peers {
		if p.ID() != peerID {
			kept = append(kept, p)
		}
	}
	c.peers = kept
	handler := c.onUnpublished
	c.mu.Unlock()
	if handler != nil {
		handler(peerID)
	}
}

type fakeStream struct {
	mu     sync.Mutex
	sent   [][]byte
	closes int
}

func (s *fakeStream) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, frame)
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeStream) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeDialer struct {
	mu       sync.Mutex
	dialErr  error
	dials    []string
	streams  map[string]*fakeStream
	handlers map[string]analysis.StreamHandlers
}

func (d *fakeDialer) Dial(_ context.Context, peerID string, handlers analysis.StreamHandlers) (analysis.Stream, error) {
	d.mu.Lock()
	if d.dialErr != nil {
		d.mu.Unlock()
		return nil, d.dialErr
	}
	if d.streams == nil {
		d.streams = make(map[string]*fakeStream)
		d.handlers = make(map[string]analysis.StreamHandlers)
	}
	st := &fakeStream{}
	d.streams[peerID] = st
	d.handlers[peerID] = handlers
	d.dials = append(d.dials, peerID)
	d.mu.Unlock()
	if handlers.OnOpen != nil {
		handlers.OnOpen()
	}
	return st, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) handlersFor(peerID string) (analysis.StreamHandlers, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.handlers[peerID]
	return h, ok
}

func (d *fakeDialer) streamFor(peerID string) *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[peerID]
}

type fakeRepo struct {
	mu        sync.Mutex
	upsertErr error
	upserts   int
	records   map[string]repository.UpsertAnalysisInput
}

func (r *fakeRepo) UpsertAnalysis(_ context.Context, input repository.UpsertAnalysisInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	if r.records == nil {
		r.records = make(map[string]repository.UpsertAnalysisInput)
	}
	r.records[input.CallID] = input
	r.upserts++
	return nil
}

func (r *fakeRepo) GetAnalysisByCallID(_ context.Context, callID string) (*repository.CallAnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	input, ok := r.records[callID]
	if !ok {
		return nil, nil
	}
	return &repository.CallAnalysisRecord{
		CallID:          input.CallID,
		Reasoning:       input.Reasoning,
		ConfidenceScore: input.ConfidenceScore,
		CurrentStatus:   input.CurrentStatus,
	}, nil
}

func (r *fakeRepo) ListReports(_ context.Context, _ int) ([]repository.Report, error) {
	return nil, nil
}

func (r *fakeRepo) GetOperator(_ context.Context, _ string) (*repository.Operator, error) {
	return nil, nil
}

func (r *fakeRepo) recordCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *fakeRepo) record(callID string) (repository.UpsertAnalysisInput, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	input, ok := r.records[callID]
	return input, ok
}

type fakeDecoder struct {
	rate             int
	samplesPerPacket int

	mu     sync.Mutex
	closed bool
}

func (d *fakeDecoder) Decode(_ []byte) ([]float32, error) {
	return make([]float32, d.samplesPerPacket), nil
}

func (d *fakeDecoder) SampleRate() int { return d.rate }

func (d *fakeDecoder) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

type recordingObserver struct {
	mu            sync.Mutex
	errors        []error
	socketMsgs    []SocketMessage
	socketPeers   []string
	statusChanges []ConnectionStatus
	channelClosed int
	heartbeats    []bool
	analyses      []*analysis.Event
}

func (o *recordingObserver) OnError(err error) {
	o.mu.Lock()
	o.errors = append(o.errors, err)
	o.mu.Unlock()
}

func (o *recordingObserver) OnSocketMessage(peerID string, msg SocketMessage) {
	o.mu.Lock()
	o.socketPeers = append(o.socketPeers, peerID)
	o.socketMsgs = append(o.socketMsgs, msg)
	o.mu.Unlock()
}

func (o *recordingObserver) OnConnectionStatusChange(_ string, status ConnectionStatus) {
	o.mu.Lock()
	o.statusChanges = append(o.statusChanges, status)
	o.mu.Unlock()
}

func (o *recordingObserver) OnChannelClosed() {
	o.mu.Lock()
	o.channelClosed++
	o.mu.Unlock()
}

func (o *recordingObserver) OnHeartbeatStatus(alive bool) {
	o.mu.Lock()
	o.heartbeats = append(o.heartbeats, alive)
	o.mu.Unlock()
}

func (o *recordingObserver) OnAnalysisReceived(event *analysis.Event) {
	o.mu.Lock()
	o.analyses = append(o.analyses, event)
	o.mu.Unlock()
}

func (o *recordingObserver) closedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.channelClosed
}

func (o *recordingObserver) heartbeatCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.heartbeats)
}

func (o *recordingObserver) analysisCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.analyses)
}

func (o *recordingObserver) messageKinds() []MessageKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	kinds := make([]MessageKind, len(o.socketMsgs))
	for i, m := range o.socketMsgs {
		kinds[i] = m.Kind
	}
	return kinds
}
