//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is one live client session of a user.
// Push must not block longer than ctx allows.
type Connection interface {
	ID() string
	UserID() string
	Push(ctx context.Context, e event.Event) error
	Close() error
}

type IRegistry interface {
	Register(ctx context.Context, conn Connection) int
	Unregister(ctx context.Context, conn Connection) int
	ConnectionsOf(userID string) []Connection
	IsOnline(userID string) bool
}

// ICredentialVerifier turns a presented token into a verified user.
type ICredentialVerifier interface {
	Verify(ctx context.Context, token string) (*domain.User, error)
}

// IMembershipOracle answers who belongs to a channel.
// GetMembership returns nil when the user is not a member.
type IMembershipOracle interface {
	GetMembership(ctx context.Context, userID, channelID string) (*domain.Membership, error)
	MemberIDs(ctx context.Context, channelID string) ([]string, error)
}

// IChannelDirectory returns nil when the channel does not exist.
type IChannelDirectory interface {
	GetChannel(ctx context.Context, channelID string) (*domain.Channel, error)
}

// IUserDirectory returns nil when the user does not exist.
type IUserDirectory interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetProfiles(ctx context.Context, userIDs []string) (map[string]domain.Profile, error)
}

type IPresenceWriter interface {
	SetOnline(ctx context.Context, userID string, online bool) error
}

type IRetentionScheduler interface {
	Schedule(job domain.RetentionJob)
}
