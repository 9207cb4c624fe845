package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

const (
	MinPageSize = 1
	MaxPageSize = 100
)

// Paginator serves channel history newest first.
// Clients walk back in time by sending the returned NextCursor until it is nil.
type Paginator struct {
	log             *slog.Logger
	repository      repositories.IMessageRepository
	users           contract.IUserDirectory
	defaultPageSize int
}

func NewPaginator(log *slog.Logger, repository repositories.IMessageRepository, users contract.IUserDirectory, defaultPageSize int) *Paginator {
	return &Paginator{log: log, repository: repository, users: users, defaultPageSize: defaultPageSize}
}

// PageSize applies the default to a missing limit and clamps the rest to [1, 100].
func (p *Paginator) PageSize(limit *int) int {
	if limit == nil {
		return p.defaultPageSize
	}
	return lo.Clamp(*limit, MinPageSize, MaxPageSize)
}

// Page returns up to limit messages strictly older than cursor.
// NextCursor is set only when the page is full, which signals there may be more.
// Membership is checked by the caller.
func (p *Paginator) Page(ctx context.Context, channelID string, limit *int, cursor *string) (domain.Page, error) {
	size := p.PageSize(limit)
	messages, err := p.repository.Page(channelID, cursor, size)
	if err != nil {
		return domain.Page{}, fmt.Errorf("page of %s: %w", channelID, err)
	}
	if err := p.attachProfiles(ctx, messages); err != nil {
		return domain.Page{}, err
	}

	page := domain.Page{ChannelID: channelID, Messages: messages}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	if len(messages) == size {
		page.NextCursor = lo.ToPtr(messages[len(messages)-1].ID)
	}
	observability.PagesServed.Inc()
	return page, nil
}

// attachProfiles joins the sender profile of every message with one directory call.
func (p *Paginator) attachProfiles(ctx context.Context, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	senders := lo.Uniq(lo.Map(messages, func(m domain.Message, _ int) string { return m.UserID }))
	profiles, err := p.users.GetProfiles(ctx, senders)
	if err != nil {
		return fmt.Errorf("sender profiles: %w", err)
	}
	for i := range messages {
		if profile, ok := profiles[messages[i].UserID]; ok {
			messages[i].User = lo.ToPtr(profile)
			continue
		}
		p.log.Debug("Sender profile missing", "user_id", messages[i].UserID, "message_id", messages[i].ID)
	}
	return nil
}
