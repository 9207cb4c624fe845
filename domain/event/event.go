package event

import (
	"chat-relay/domain"
)

// Inbound event names.
const (
	MessageSend   = "message:send"
	MessagesFetch = "messages:fetch"
)

// Outbound event names.
const (
	DirectReceive  = "dm:receive"
	ChannelReceive = "channel:receive"
	DirectPage     = "dm:page"
	ChannelPage    = "channel:page"
	Error          = "error"
)

// Event is what a connection pushes to its client.
type Event struct {
	Name string
	Data any
}

// Received builds the fan-out event of a stored message.
// Direct channels use their own event name; the payload is the same.
func Received(channelType domain.ChannelType, msg domain.Message) Event {
	name := ChannelReceive
	if channelType == domain.ChannelDirect {
		name = DirectReceive
	}
	return Event{Name: name, Data: msg}
}

func PageServed(channelType domain.ChannelType, page domain.Page) Event {
	name := ChannelPage
	if channelType == domain.ChannelDirect {
		name = DirectPage
	}
	return Event{Name: name, Data: page}
}

func Failure(code string) Event {
	return Event{Name: Error, Data: code}
}
