package rtc

import (
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
)

// localTrack wraps a captured microphone track. Mute swaps the sender's track
// out instead of stopping capture, so unmute is instant.
type localTrack struct {
	track mediadevices.Track

	mu     sync.Mutex
	sender *webrtc.RTPSender
	muted  bool
}

func (t *localTrack) SetMuted(muted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.muted == muted {
		return nil
	}
	t.muted = muted
	if t.sender == nil {
		return nil
	}
	if muted {
		return t.sender.ReplaceTrack(nil)
	}
	return t.sender.ReplaceTrack(t.track)
}

func (t *localTrack) Close() error {
	t.mu.Lock()
	t.sender = nil
	t.mu.Unlock()
	return t.track.Close()
}

func (t *localTrack) setSender(sender *webrtc.RTPSender) {
	t.mu.Lock()
	t.sender = sender
	muted := t.muted
	t.mu.Unlock()
	if muted {
		_ = sender.ReplaceTrack(nil)
	}
}

func (t *localTrack) takeSender() *webrtc.RTPSender {
	t.mu.Lock()
	defer t.mu.Unlock()
	sender := t.sender
	t.sender = nil
	return sender
}
