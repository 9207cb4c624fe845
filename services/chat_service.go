//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks

package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/runtime"
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// IChatService is what a transport needs from the relay once a client is authenticated.
type IChatService interface {
	Connect(ctx context.Context, conn contract.Connection) int
	Disconnect(ctx context.Context, conn contract.Connection) int
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	FetchMessages(ctx context.Context, cmd domain.FetchMessagesCommand) (event.Event, error)
}

type ChatService struct {
	orchestrator runtime.IOrchestrator
}

func NewChatService(o runtime.IOrchestrator) *ChatService {
	return &ChatService{orchestrator: o}
}

func (s *ChatService) Connect(ctx context.Context, conn contract.Connection) int {
	return s.orchestrator.Connect(ctx, conn)
}

func (s *ChatService) Disconnect(ctx context.Context, conn contract.Connection) int {
	return s.orchestrator.Disconnect(ctx, conn)
}

func (s *ChatService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return s.orchestrator.SendMessage(ctx, cmd)
}

func (s *ChatService) FetchMessages(ctx context.Context, cmd domain.FetchMessagesCommand) (event.Event, error) {
	if err := validate.Struct(cmd); err != nil {
		return event.Event{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return s.orchestrator.FetchMessages(ctx, cmd)
}
