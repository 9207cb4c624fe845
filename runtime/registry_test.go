package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// Conn is a connection recording what it receives.
type Conn struct {
	mu       sync.Mutex
	id       string
	userID   string
	received []event.Event
	pushErr  error
	closed   bool
	onClose  func()
}

func NewConn(userID string) *Conn {
	return &Conn{id: uuid.NewString(), userID: userID}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

func (c *Conn) Push(ctx context.Context, e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushErr != nil {
		return c.pushErr
	}
	c.received = append(c.received, e)
	return nil
}

// Close marks the connection closed and runs onClose in the background,
// the way a session leaves on its own goroutine.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.onClose != nil {
		go c.onClose()
	}
	return nil
}

func (c *Conn) Received() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.received...)
}

func TestRegistry_Presence_Flips_Only_At_The_Edges(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	presence := mocks.NewMockIPresenceWriter(ctrl)
	registry := NewRegistry(presence, logs.GetLoggerFromLevel(slog.LevelDebug))
	laptop := NewConn("alice")
	phone := NewConn("alice")

	// Given presence is written exactly twice, online then offline
	gomock.InOrder(
		presence.EXPECT().SetOnline(gomock.Any(), "alice", true).Return(nil).Times(1),
		presence.EXPECT().SetOnline(gomock.Any(), "alice", false).Return(nil).Times(1),
	)

	// When alice opens two devices
	req.Equal(1, registry.Register(ctx, laptop))
	req.True(registry.IsOnline("alice"))
	req.Equal(2, registry.Register(ctx, phone))
	req.True(registry.IsOnline("alice"))
	req.Len(registry.ConnectionsOf("alice"), 2)

	// And closes one of them
	req.Equal(1, registry.Unregister(ctx, laptop))

	// Then she is still online
	req.True(registry.IsOnline("alice"))
	req.Equal([]string{phone.ID()}, connectionIDs(registry.ConnectionsOf("alice")))

	// When the last one closes she goes offline
	req.Equal(0, registry.Unregister(ctx, phone))
	req.False(registry.IsOnline("alice"))
	req.Empty(registry.ConnectionsOf("alice"))
}

func TestRegistry_Double_Unregister_Is_Ignored(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	presence := mocks.NewMockIPresenceWriter(ctrl)
	registry := NewRegistry(presence, slog.Default())
	laptop := NewConn("alice")
	phone := NewConn("alice")

	presence.EXPECT().SetOnline(gomock.Any(), "alice", true).Return(nil).Times(1)

	registry.Register(ctx, laptop)
	registry.Register(ctx, phone)

	// When the same connection is unregistered twice
	req.Equal(1, registry.Unregister(ctx, laptop))
	req.Equal(1, registry.Unregister(ctx, laptop))

	// Then the sibling is untouched and no offline flip happened
	req.True(registry.IsOnline("alice"))
}

func TestRegistry_Presence_Failure_Keeps_Connection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	presence := mocks.NewMockIPresenceWriter(ctrl)
	registry := NewRegistry(presence, slog.Default())

	presence.EXPECT().SetOnline(gomock.Any(), "bob", true).Return(fmt.Errorf("db down")).Times(1)

	req.Equal(1, registry.Register(ctx, NewConn("bob")))
	req.True(registry.IsOnline("bob"))
}

func TestRegistry_Concurrent_Connect_Disconnect_Same_User(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	presence := mocks.NewMockIPresenceWriter(ctrl)
	registry := NewRegistry(presence, slog.Default())

	var mu sync.Mutex
	var flips []bool
	presence.EXPECT().SetOnline(gomock.Any(), "alice", gomock.Any()).
		DoAndReturn(func(ctx context.Context, userID string, online bool) error {
			mu.Lock()
			defer mu.Unlock()
			flips = append(flips, online)
			return nil
		}).AnyTimes()

	// When many devices connect and disconnect concurrently
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := NewConn("alice")
			registry.Register(ctx, conn)
			registry.Unregister(ctx, conn)
		}()
	}
	wg.Wait()

	// Then presence ends offline and flips strictly alternate
	req.False(registry.IsOnline("alice"))
	req.NotEmpty(flips)
	for i, online := range flips {
		req.Equal(i%2 == 0, online)
	}
	req.False(flips[len(flips)-1])
	req.Zero(registry.userLocks.Len())
}

func TestRegistry_Users_Are_Isolated(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	presence := mocks.NewMockIPresenceWriter(ctrl)
	presence.EXPECT().SetOnline(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	registry := NewRegistry(presence, slog.Default())
	alice := NewConn("alice")
	bob := NewConn("bob")

	registry.Register(ctx, alice)
	registry.Register(ctx, bob)

	req.Equal([]string{alice.ID()}, connectionIDs(registry.ConnectionsOf("alice")))
	req.Equal([]string{bob.ID()}, connectionIDs(registry.ConnectionsOf("bob")))
	req.Nil(registry.ConnectionsOf("carol"))

	// Nobody unregisters, so Close gives up at the deadline
	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	req.ErrorIs(registry.Close(ctx), context.DeadlineExceeded)
	req.True(alice.closed)
	req.True(bob.closed)
}

func TestRegistry_Close_Waits_For_Offline_Presence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	presence := mocks.NewMockIPresenceWriter(ctrl)
	registry := NewRegistry(presence, logs.GetLoggerFromLevel(slog.LevelDebug))

	var mu sync.Mutex
	offline := map[string]bool{}
	presence.EXPECT().SetOnline(gomock.Any(), gomock.Any(), true).Return(nil).Times(3)
	presence.EXPECT().SetOnline(gomock.Any(), gomock.Any(), false).
		DoAndReturn(func(_ context.Context, userID string, _ bool) error {
			// A slow store write
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			defer mu.Unlock()
			offline[userID] = true
			return nil
		}).Times(2)

	// Given alice on two devices and bob on one, each leaving on close
	conns := []*Conn{NewConn("alice"), NewConn("alice"), NewConn("bob")}
	for _, c := range conns {
		c.onClose = func() { registry.Unregister(context.Background(), c) }
		registry.Register(ctx, c)
	}

	// When the registry is closed
	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req.NoError(registry.Close(closeCtx))

	// Then both users are already offline in the registry and in the store
	req.False(registry.IsOnline("alice"))
	req.False(registry.IsOnline("bob"))
	mu.Lock()
	defer mu.Unlock()
	req.Equal(map[string]bool{"alice": true, "bob": true}, offline)
}

func TestRegistry_Close_Empty_Returns_At_Once(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := NewRegistry(mocks.NewMockIPresenceWriter(ctrl), slog.Default())

	require.NoError(t, registry.Close(context.Background()))
}

func connectionIDs(conns []contract.Connection) []string {
	var result []string
	for _, c := range conns {
		result = append(result, c.ID())
	}
	return result
}
