package rtc

import (
	"log/slog"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const packetQueueSize = 256

// remotePeer pulls RTP from one inbound track and fans the Opus payloads out
// to the registered callback. Packets are dropped rather than buffered
// unboundedly when the consumer falls behind.
type remotePeer struct {
	id      string
	track   *webrtc.TrackRemote
	onEnded func(peerID string)

	mu       sync.Mutex
	callback func(packet []byte)

	packets  chan *rtp.Packet
	done     chan struct{}
	playOnce sync.Once
	stopOnce sync.Once
}

func newRemotePeer(id string, track *webrtc.TrackRemote, onEnded func(peerID string)) *remotePeer {
	return &remotePeer{
		id:      id,
		track:   track,
		onEnded: onEnded,
		packets: make(chan *rtp.Packet, packetQueueSize),
		done:    make(chan struct{}),
	}
}

func (p *remotePeer) ID() string {
	return p.id
}

func (p *remotePeer) Play() error {
	p.playOnce.Do(func() {
		go p.readLoop()
		go p.deliverLoop()
	})
	return nil
}

func (p *remotePeer) Receive(callback func(packet []byte)) {
	p.mu.Lock()
	p.callback = callback
	p.mu.Unlock()
}

func (p *remotePeer) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}

func (p *remotePeer) readLoop() {
	for {
		pkt, _, err := p.track.ReadRTP()
		if err != nil {
			select {
			case <-p.done:
			default:
				slog.Debug("remote track ended", "peer_id", p.id, "error", err)
				if p.onEnded != nil {
					p.onEnded(p.id)
				}
			}
			return
		}
		select {
		case p.packets <- pkt:
		case <-p.done:
			return
		default:
			// Consumer is behind. Losing a packet beats stalling the track.
		}
	}
}

func (p *remotePeer) deliverLoop() {
	for {
		select {
		case <-p.done:
			return
		case pkt := <-p.packets:
			p.mu.Lock()
			cb := p.callback
			p.mu.Unlock()
			if cb != nil && len(pkt.Payload) > 0 {
				cb(pkt.Payload)
			}
		}
	}
}
