package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrNotAuthenticated   = fmt.Errorf("no credential presented")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrNotVerified        = fmt.Errorf("account missing or not verified")
	ErrNotChannelMember   = fmt.Errorf("user is not a member of the channel")
	ErrChannelNotFound    = fmt.Errorf("channel not found")
	ErrParentNotInChannel = fmt.Errorf("parent message does not belong to the channel")
	ErrInvalidPayload     = fmt.Errorf("invalid payload")
	ErrConnectionClosed   = fmt.Errorf("connection closed")
)

// Wire codes sent to clients inside an "error" event.
const (
	CodeNotAuthenticated    = "not-authenticated"
	CodeInvalidToken        = "invalid-token"
	CodeNotVerified         = "not-verified"
	CodeNotChannelMember    = "not-a-channel-member"
	CodeChannelNotFound     = "channel-not-found"
	CodeMessageSendFailed   = "message-send-failed"
	CodeMessagesFetchFailed = "messages-fetch-failed"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNotAuthenticated, CodeNotAuthenticated},
	{ErrInvalidToken, CodeInvalidToken},
	{ErrNotVerified, CodeNotVerified},
	{ErrNotChannelMember, CodeNotChannelMember},
	{ErrChannelNotFound, CodeChannelNotFound},
}

// Code maps err to the wire code a client understands.
// Anything not listed above, infrastructure failures included, gets fallback.
func Code(err error, fallback string) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return fallback
}
