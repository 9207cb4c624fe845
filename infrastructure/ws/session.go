package ws

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// envelope is the JSON frame exchanged in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Session is one authenticated WebSocket connection.
// Frames are written by a single goroutine draining a bounded buffer, so
// Push never touches the socket and is safe for concurrent use.
type Session struct {
	id        string
	userID    string
	conn      *websocket.Conn
	log       *slog.Logger
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	leaveOnce sync.Once
}

func NewSession(log *slog.Logger, conn *websocket.Conn, userID string, bufferSize int) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		userID: userID,
		conn:   conn,
		log:    log.With("connection_id", id, "user_id", userID),
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// Push queues e for writing. It blocks while the buffer is full, until ctx
// expires or the session closes.
func (s *Session) Push(ctx context.Context, e event.Event) error {
	payload, err := json.Marshal(outbound{Event: e.Name, Data: e.Data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Name, err)
	}

	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case s.send <- payload:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close asks the write loop to flush and close the socket. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// leave runs fn at most once for the lifetime of the session.
func (s *Session) leave(fn func()) {
	s.leaveOnce.Do(fn)
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload := <-s.send:
			if err := s.write(websocket.TextMessage, payload); err != nil {
				s.log.Debug("Write failed, closing session", "error", err)
				_ = s.Close()
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.log.Debug("Ping failed, closing session", "error", err)
				_ = s.Close()
				return
			}
		case <-s.done:
			s.flush()
			_ = s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still buffered, without waiting for more.
func (s *Session) flush() {
	for {
		select {
		case payload := <-s.send:
			if err := s.write(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(messageType int, payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, payload)
}

// readFrames calls handle for every frame, in order, until the peer goes away.
func (s *Session) readFrames(maxFrameSize int64, handle func(envelope)) {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Unexpected WebSocket close", "error", err)
			} else {
				s.log.Debug("Client disconnected", "error", err)
			}
			return
		}

		var frame envelope
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			s.log.Debug("Ignoring undecodable frame", "size", len(data))
			continue
		}
		handle(frame)
	}
}
