package call

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/foxseedlab/tsuhoban/internal/analysis"
	"github.com/foxseedlab/tsuhoban/internal/audio"
)

// tickSamples is how many decoded samples accumulate before one PCM frame is
// cut and sent downstream.
const tickSamples = 4096

type bridgeCallbacks struct {
	onSocketMessage func(peerID string, msg SocketMessage)
	onStatusChange  func(peerID string, status ConnectionStatus)
	onAnalysis      func(event *analysis.Event)
	onError         func(err error)
}

// peerBridge relays one remote participant's audio into a dedicated analysis
// socket and classifies whatever comes back. Frames produced while the socket
// is not open are dropped, the stream is best effort.
type peerBridge struct {
	peerID string
	cb     bridgeCallbacks

	mu      sync.Mutex
	stream  analysis.Stream
	decoder audio.Decoder
	open    bool
	pending []float32

	disposeOnce sync.Once
	onDispose   func(peerID string)
}

func newPeerBridge(peerID string, cb bridgeCallbacks) *peerBridge {
	return &peerBridge{peerID: peerID, cb: cb}
}

func (b *peerBridge) streamHandlers() analysis.StreamHandlers {
	return analysis.StreamHandlers{
		OnOpen: func() {
			b.mu.Lock()
			b.open = true
			b.mu.Unlock()
			b.cb.onStatusChange(b.peerID, ConnectionStatusOpen)
			b.cb.onSocketMessage(b.peerID, SocketMessage{Kind: MessageKindStatus, Status: ConnectionStatusOpen})
		},
		OnMessage: b.handleInbound,
		OnError: func(err error) {
			b.cb.onSocketMessage(b.peerID, SocketMessage{Kind: MessageKindError, Detail: err.Error()})
		},
		OnClose: func(code int, reason string) {
			b.mu.Lock()
			b.open = false
			b.mu.Unlock()
			b.cb.onSocketMessage(b.peerID, SocketMessage{
				Kind:   MessageKindStatus,
				Status: ConnectionStatusClosed,
				Detail: fmt.Sprintf("code %d: %s", code, reason),
			})
			b.cb.onStatusChange(b.peerID, ConnectionStatusClosed)
		},
	}
}

func (b *peerBridge) setStream(stream analysis.Stream) {
	b.mu.Lock()
	b.stream = stream
	b.mu.Unlock()
}

func (b *peerBridge) setDecoder(dec audio.Decoder) {
	b.mu.Lock()
	b.decoder = dec
	b.mu.Unlock()
}

// handleOpus is the audio tap. It decodes one compressed packet, accumulates
// samples, and ships full ticks downstream as 16kHz PCM16.
func (b *peerBridge) handleOpus(packet []byte) {
	b.mu.Lock()
	dec := b.decoder
	b.mu.Unlock()
	if dec == nil {
		return
	}
	samples, err := dec.Decode(packet)
	if err != nil {
		b.cb.onError(fmt.Errorf("decode audio from peer %s: %w", b.peerID, err))
		return
	}

	b.mu.Lock()
	b.pending = append(b.pending, samples...)
	var frames [][]byte
	for len(b.pending) >= tickSamples {
		tick := b.pending[:tickSamples]
		frames = append(frames, audio.EncodePCM16(audio.Downsample(tick, dec.SampleRate())))
		b.pending = append([]float32(nil), b.pending[tickSamples:]...)
	}
	open := b.open
	stream := b.stream
	b.mu.Unlock()

	if !open || stream == nil {
		return
	}
	for _, frame := range frames {
		if err := stream.Send(frame); err != nil {
			b.cb.onError(fmt.Errorf("send audio frame for peer %s: %w", b.peerID, err))
			return
		}
	}
}

// handleInbound classifies one socket payload: a strict analysis event, a
// generic JSON document, or opaque binary reported by size only.
func (b *peerBridge) handleInbound(data []byte) {
	var fields map[string]any
	if event, ok := analysis.DecodeEvent(data); ok {
		_ = json.Unmarshal(data, &fields)
		b.cb.onSocketMessage(b.peerID, SocketMessage{Kind: MessageKindAnalysis, Fields: fields})
		b.cb.onAnalysis(event)
		return
	}
	if err := json.Unmarshal(data, &fields); err == nil {
		b.cb.onSocketMessage(b.peerID, SocketMessage{Kind: MessageKindJSON, Fields: fields})
		return
	}
	b.cb.onSocketMessage(b.peerID, SocketMessage{Kind: MessageKindBinary, Size: len(data)})
}

// dispose releases the socket and the decoder, then detaches the bridge from
// its session. Safe to call from any goroutine, any number of times.
func (b *peerBridge) dispose() {
	b.disposeOnce.Do(func() {
		b.mu.Lock()
		b.open = false
		stream := b.stream
		dec := b.decoder
		b.decoder = nil
		b.pending = nil
		b.mu.Unlock()

		if dec != nil {
			dec.Close()
		}
		if stream != nil {
			if err := stream.Close(); err != nil {
				b.cb.onError(fmt.Errorf("close analysis socket for peer %s: %w", b.peerID, err))
			}
		}
		if b.onDispose != nil {
			b.onDispose(b.peerID)
		}
	})
}
