// Package domain contains core concepts of the relay.
// This file defines Message and the page returned by history lookups.
// Messages are immutable once stored; only retention may delete them.
package domain

import (
	"time"
)

type MessageType string

const MessageTypeText MessageType = "TEXT"

// Message represents a persisted chat message.
// User carries the denormalized sender profile and is not stored with the row.
type Message struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channelId"`
	UserID    string      `json:"userId"`
	ParentID  *string     `json:"parentId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Hashtags  []string    `json:"hashtags"`
	CreatedAt time.Time   `json:"createdAt"`
	User      *Profile    `json:"user,omitempty"`
}

// Before reports whether m sorts strictly before other in (createdAt, id) order.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// Page is a newest-first slice of a channel history.
// NextCursor is nil once the oldest message has been returned.
type Page struct {
	ChannelID  string    `json:"channelId"`
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"nextCursor"`
}
