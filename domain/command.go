package domain

// SendMessageCommand is a message:send submission from an authenticated connection.
type SendMessageCommand struct {
	Sender    Profile
	ChannelID string  `json:"channelId" validate:"required,max=64"`
	Content   string  `json:"content" validate:"required,max=4000"`
	ParentID  *string `json:"parentId" validate:"omitempty,max=64"`
}

// FetchMessagesCommand is a messages:fetch request.
// A nil Limit means the configured default page size.
type FetchMessagesCommand struct {
	RequesterID string
	ChannelID   string  `json:"channelId" validate:"required,max=64"`
	Limit       *int    `json:"limit"`
	Cursor      *string `json:"cursor" validate:"omitempty,max=64"`
}

// RetentionJob asks for both caps touched by a single append to be rechecked.
type RetentionJob struct {
	UserID    string
	ChannelID string
}
