package repositories

import (
	"chat-relay/domain"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetChannel returns nil when the channel does not exist.
func (d *Directory) GetChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	var (
		channel     domain.Channel
		channelType string
	)
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, type FROM channels WHERE id = $1
	`, channelID).Scan(&channel.ID, &channel.Name, &channelType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	channel.Type = domain.ParseChannelType(channelType)
	return &channel, nil
}

// GetMembership returns nil when the user is not a member of the channel.
func (d *Directory) GetMembership(ctx context.Context, userID, channelID string) (*domain.Membership, error) {
	membership := domain.Membership{UserID: userID, ChannelID: channelID}
	var role string
	err := d.pool.QueryRow(ctx, `
		SELECT role FROM channel_members WHERE user_id = $1 AND channel_id = $2
	`, userID, channelID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership of %s in %s: %w", userID, channelID, err)
	}
	membership.Role = domain.Role(role)
	return &membership, nil
}

// MemberIDs is the membership snapshot used for one fan-out.
func (d *Directory) MemberIDs(ctx context.Context, channelID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT user_id FROM channel_members WHERE channel_id = $1
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", channelID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan members of %s: %w", channelID, err)
	}
	return ids, nil
}
