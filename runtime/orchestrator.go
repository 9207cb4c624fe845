//go:generate go run go.uber.org/mock/mockgen -source=orchestrator.go -destination=../mocks/mock_orchestrator.go -package=mocks

// Package runtime wires connections, channels and storage together at run time.
// It owns the only shared mutable state of the relay: the connection registry
// and the per-scope retention locks.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
)

type IOrchestrator interface {
	Connect(ctx context.Context, conn contract.Connection) int
	Disconnect(ctx context.Context, conn contract.Connection) int
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	FetchMessages(ctx context.Context, cmd domain.FetchMessagesCommand) (event.Event, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Orchestrator struct {
	log             *slog.Logger
	supervisor      contract.ISupervisor
	registry        *Registry
	membership      contract.IMembershipOracle
	channels        contract.IChannelDirectory
	repository      repositories.IMessageRepository
	dispatcher      *Dispatcher
	paginator       *Paginator
	retention       contract.IRetentionScheduler
	workers         []contract.Worker
	hashtagCapacity int
	now             func() time.Time
}

func NewOrchestrator(
	log *slog.Logger,
	supervisor contract.ISupervisor,
	registry *Registry,
	membership contract.IMembershipOracle,
	channels contract.IChannelDirectory,
	repository repositories.IMessageRepository,
	dispatcher *Dispatcher,
	paginator *Paginator,
	retention contract.IRetentionScheduler,
	hashtagCapacity int,
) *Orchestrator {
	return &Orchestrator{
		log:             log,
		supervisor:      supervisor,
		registry:        registry,
		membership:      membership,
		channels:        channels,
		repository:      repository,
		dispatcher:      dispatcher,
		paginator:       paginator,
		retention:       retention,
		hashtagCapacity: hashtagCapacity,
		now:             time.Now,
	}
}

// WithClock replaces the creation time source of new messages.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// RegisterWorkers adds background workers started with the orchestrator.
func (o *Orchestrator) RegisterWorkers(workers ...contract.Worker) {
	o.workers = append(o.workers, workers...)
}

// Start blocks until ctx is canceled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.log.Info("Starting workers", "count", len(o.workers))
	o.supervisor.Add(o.workers...).Run(ctx)
	return nil
}

// Stop closes every live connection and waits for them to leave, bounded by
// ctx, then stops the workers. The workers are stopped even when ctx expires.
func (o *Orchestrator) Stop(ctx context.Context) error {
	err := o.registry.Close(ctx)
	o.supervisor.Stop()
	return err
}

func (o *Orchestrator) Connect(ctx context.Context, conn contract.Connection) int {
	count := o.registry.Register(ctx, conn)
	o.log.Debug("Connection registered", "user_id", conn.UserID(), "connection_id", conn.ID(), "connections", count)
	return count
}

func (o *Orchestrator) Disconnect(ctx context.Context, conn contract.Connection) int {
	remaining := o.registry.Unregister(ctx, conn)
	o.log.Debug("Connection unregistered", "user_id", conn.UserID(), "connection_id", conn.ID(), "remaining", remaining)
	return remaining
}

// SendMessage stores the message then pushes it to every live connection of
// the channel members, the sender's own connections included.
// Hashtag bookkeeping and retention never fail a send once the message is stored.
func (o *Orchestrator) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	channel, err := o.authorize(ctx, cmd.Sender.ID, cmd.ChannelID)
	if err != nil {
		return domain.Message{}, err
	}

	if cmd.ParentID != nil {
		parent, err := o.repository.Get(*cmd.ParentID)
		if err != nil {
			return domain.Message{}, fmt.Errorf("parent lookup: %w", err)
		}
		if parent == nil || parent.ChannelID != cmd.ChannelID {
			return domain.Message{}, errors.ErrParentNotInChannel
		}
	}

	createdAt := o.now().UTC()
	message := domain.Message{
		ID:        ulid.MustNew(ulid.Timestamp(createdAt), ulid.DefaultEntropy()).String(),
		ChannelID: cmd.ChannelID,
		UserID:    cmd.Sender.ID,
		ParentID:  cmd.ParentID,
		Content:   cmd.Content,
		Type:      domain.MessageTypeText,
		Hashtags:  domain.ExtractHashtags(cmd.Content),
		CreatedAt: createdAt,
	}
	if err := o.repository.Append(message); err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	observability.MessagesSent.WithLabelValues(string(channel.Type)).Inc()

	if _, err := o.repository.MergeChannelHashtags(channel.ID, message.Hashtags, o.hashtagCapacity); err != nil {
		o.log.Error("Channel hashtags not updated", "channel_id", channel.ID, "hashtags", message.Hashtags, "error", err)
	}

	o.retention.Schedule(domain.RetentionJob{UserID: message.UserID, ChannelID: message.ChannelID})

	message.User = lo.ToPtr(cmd.Sender)
	if _, err := o.dispatcher.Dispatch(ctx, channel.ID, event.Received(channel.Type, message)); err != nil {
		return message, fmt.Errorf("fan-out: %w", err)
	}
	return message, nil
}

// FetchMessages returns the page event to send back to the requesting connection only.
func (o *Orchestrator) FetchMessages(ctx context.Context, cmd domain.FetchMessagesCommand) (event.Event, error) {
	channel, err := o.authorize(ctx, cmd.RequesterID, cmd.ChannelID)
	if err != nil {
		return event.Event{}, err
	}
	page, err := o.paginator.Page(ctx, channel.ID, cmd.Limit, cmd.Cursor)
	if err != nil {
		return event.Event{}, err
	}
	return event.PageServed(channel.Type, page), nil
}

// authorize checks membership before channel existence.
func (o *Orchestrator) authorize(ctx context.Context, userID, channelID string) (*domain.Channel, error) {
	membership, err := o.membership.GetMembership(ctx, userID, channelID)
	if err != nil {
		return nil, fmt.Errorf("membership lookup: %w", err)
	}
	if membership == nil {
		return nil, errors.ErrNotChannelMember
	}
	channel, err := o.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("channel lookup: %w", err)
	}
	if channel == nil {
		return nil, errors.ErrChannelNotFound
	}
	return channel, nil
}
