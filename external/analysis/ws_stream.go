package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/tsuhoban/internal/analysis"
	"github.com/gorilla/websocket"
)

const handshakeTimeout = 10 * time.Second

// WSDialer opens one binary-mode WebSocket per remote peer at
// <baseURL>/<peerID>.
type WSDialer struct {
	baseURL string
}

func NewWSDialer(baseURL string) analysis.Dialer {
	return &WSDialer{baseURL: strings.TrimRight(baseURL, "/")}
}

func (d *WSDialer) Dial(ctx context.Context, peerID string, handlers analysis.StreamHandlers) (analysis.Stream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, d.baseURL+"/"+peerID, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("analysis socket connect (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("analysis socket connect: %w", err)
	}

	s := &wsStream{conn: conn, handlers: handlers}
	if handlers.OnOpen != nil {
		handlers.OnOpen()
	}
	go s.readPump()
	return s, nil
}

type wsStream struct {
	conn     *websocket.Conn
	handlers analysis.StreamHandlers

	writeMu sync.Mutex
	closed  atomic.Bool
}

func (s *wsStream) Send(frame []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("analysis socket already closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (s *wsStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *wsStream) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if s.handlers.OnClose != nil {
					s.handlers.OnClose(closeErr.Code, closeErr.Text)
				}
				return
			}
			if s.handlers.OnError != nil {
				s.handlers.OnError(err)
			}
			if s.handlers.OnClose != nil {
				s.handlers.OnClose(websocket.CloseAbnormalClosure, err.Error())
			}
			return
		}
		if s.handlers.OnMessage != nil {
			s.handlers.OnMessage(data)
		}
	}
}
