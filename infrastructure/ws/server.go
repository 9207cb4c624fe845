// Package ws exposes the relay over WebSocket: authentication at the
// handshake, then one read loop per connection turning frames into commands.
package ws

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/services"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type Handler struct {
	log          *slog.Logger
	service      services.IChatService
	verifier     contract.ICredentialVerifier
	upgrader     websocket.Upgrader
	bufferSize   int
	maxFrameSize int64
}

func NewHandler(
	log *slog.Logger,
	service services.IChatService,
	verifier contract.ICredentialVerifier,
	origins *Origins,
	bufferSize int,
	maxFrameSize int64,
) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		bufferSize:   bufferSize,
		maxFrameSize: maxFrameSize,
	}
}

// ServeHTTP blocks for the whole life of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied with an HTTP error
		h.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	user, err := h.verifier.Verify(r.Context(), auth.ExtractToken(r))
	if err != nil {
		code := errors.Code(err, errors.CodeInvalidToken)
		observability.AuthFailures.WithLabelValues(code).Inc()
		h.log.Info("Connection rejected", "remote", r.RemoteAddr, "code", code, "error", err)
		h.reject(conn, code)
		return
	}

	ctx := r.Context()
	session := NewSession(h.log, conn, user.ID, h.bufferSize)
	h.service.Connect(ctx, session)
	go session.writePump()

	defer session.leave(func() {
		_ = session.Close()
		h.service.Disconnect(context.WithoutCancel(ctx), session)
	})

	session.readFrames(h.maxFrameSize, func(frame envelope) {
		h.handle(ctx, session, user, frame)
	})
}

func (h *Handler) handle(ctx context.Context, session *Session, user *domain.User, frame envelope) {
	switch frame.Event {
	case event.MessageSend:
		var cmd domain.SendMessageCommand
		if err := decode(frame.Data, &cmd); err != nil {
			h.fail(ctx, session, errors.ErrInvalidPayload, errors.CodeMessageSendFailed)
			return
		}
		cmd.Sender = user.Profile
		if _, err := h.service.SendMessage(ctx, cmd); err != nil {
			h.fail(ctx, session, err, errors.CodeMessageSendFailed)
		}

	case event.MessagesFetch:
		var cmd domain.FetchMessagesCommand
		if err := decode(frame.Data, &cmd); err != nil {
			h.fail(ctx, session, errors.ErrInvalidPayload, errors.CodeMessagesFetchFailed)
			return
		}
		cmd.RequesterID = user.ID
		page, err := h.service.FetchMessages(ctx, cmd)
		if err != nil {
			h.fail(ctx, session, err, errors.CodeMessagesFetchFailed)
			return
		}
		if err := session.Push(ctx, page); err != nil {
			session.log.Warn("Page not delivered", "channel_id", cmd.ChannelID, "error", err)
		}

	default:
		session.log.Debug("Ignoring unknown event", "event", frame.Event)
	}
}

// fail reports err to the client as a wire code, fallback when it is not a known one.
func (h *Handler) fail(ctx context.Context, session *Session, err error, fallback string) {
	code := errors.Code(err, fallback)
	observability.ErrorsEmitted.WithLabelValues(code).Inc()
	session.log.Warn("Request failed", "code", code, "error", err)
	if err := session.Push(ctx, event.Failure(code)); err != nil {
		session.log.Debug("Error event not delivered", "code", code, "error", err)
	}
}

// reject writes the error event on a connection that was never registered, then closes it.
func (h *Handler) reject(conn *websocket.Conn, code string) {
	defer func() { _ = conn.Close() }()

	observability.ErrorsEmitted.WithLabelValues(code).Inc()
	deadline := time.Now().Add(writeWait)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(outbound{Event: event.Error, Data: code}); err != nil {
		h.log.Debug("Rejection not delivered", "code", code, "error", err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), deadline)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.ErrInvalidPayload
	}
	return json.Unmarshal(data, v)
}
