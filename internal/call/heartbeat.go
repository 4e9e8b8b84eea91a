package call

import (
	"context"
	"time"
)

// heartbeatFailureThreshold is how many consecutive failed probes declare the
// channel dead.
const heartbeatFailureThreshold = 3

func (s *Session) startHeartbeat(channelName string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.heartbeatCancel != nil {
		s.heartbeatCancel()
	}
	s.heartbeatCancel = cancel
	s.heartbeatActive = true
	s.mu.Unlock()
	go s.heartbeatLoop(ctx, channelName)
}

func (s *Session) stopHeartbeat() {
	s.mu.Lock()
	cancel := s.heartbeatCancel
	s.heartbeatCancel = nil
	s.heartbeatActive = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) heartbeatLoop(ctx context.Context, channelName string) {
	// One early probe right after join gives the UI fast feedback. It only
	// reports status and never counts toward the failure threshold.
	initial := time.NewTimer(s.heartbeatInitialDelay)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return
	case <-initial.C:
		alive, err := s.probeChannel(ctx, channelName)
		s.observer().OnHeartbeatStatus(err == nil && alive)
	}

	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		alive, err := s.probeChannel(ctx, channelName)
		if err == nil && alive {
			failures = 0
			s.observer().OnHeartbeatStatus(true)
			continue
		}
		failures++
		s.observer().OnHeartbeatStatus(false)
		if failures >= heartbeatFailureThreshold {
			s.handleChannelDead(channelName)
			return
		}
	}
}

func (s *Session) probeChannel(ctx context.Context, channelName string) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return s.gw.Heartbeat(probeCtx, channelName)
}

// handleChannelDead tears the session down after the threshold is breached.
// The loop returns right after calling this, so the terminal signal fires at
// most once per heartbeat run.
func (s *Session) handleChannelDead(channelName string) {
	s.mu.Lock()
	stillCurrent := s.joined && s.channelName == channelName
	s.mu.Unlock()
	if !stillCurrent {
		return
	}
	if err := s.LeaveChannel(); err != nil {
		s.observer().OnError(err)
	}
	s.observer().OnChannelClosed()
}
