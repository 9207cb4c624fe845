package ws_test

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/infrastructure/api"
	"chat-relay/infrastructure/ws"
	"chat-relay/mocks"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var secret = []byte("a_test_secret_long_enough_for_hs256")

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type relay struct {
	server       *httptest.Server
	registry     *runtime.Registry
	orchestrator *runtime.Orchestrator
	presence     *presenceLog
}

// presenceLog keeps the last presence written per user.
type presenceLog struct {
	mu     sync.Mutex
	online map[string]bool
}

func (p *presenceLog) set(_ context.Context, userID string, online bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = online
	return nil
}

func (p *presenceLog) get(userID string) (online, written bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	online, written = p.online[userID]
	return online, written
}

// startRelay serves the full stack over a real Badger store.
// alice and bob are verified members of "general", dave is verified but not a member,
// carol is not verified.
func startRelay(t *testing.T) relay {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repository := repositories.NewMessageRepository(db, log)

	users := mocks.NewMockIUserDirectory(ctrl)
	users.EXPECT().GetUser(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, id string) (*domain.User, error) {
		if id == "ghost" {
			return nil, nil
		}
		return &domain.User{Profile: domain.Profile{ID: id, FirstName: strings.ToUpper(id)}, IsVerified: id != "carol"}, nil
	}).AnyTimes()
	users.EXPECT().GetProfiles(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ids []string) (map[string]domain.Profile, error) {
		return lo.SliceToMap(ids, func(id string) (string, domain.Profile) {
			return id, domain.Profile{ID: id, FirstName: strings.ToUpper(id)}
		}), nil
	}).AnyTimes()

	members := []string{"alice", "bob"}
	membership := mocks.NewMockIMembershipOracle(ctrl)
	membership.EXPECT().MemberIDs(gomock.Any(), "general").Return(members, nil).AnyTimes()
	membership.EXPECT().GetMembership(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, userID, channelID string) (*domain.Membership, error) {
			if channelID == "general" && lo.Contains(members, userID) {
				return &domain.Membership{UserID: userID, ChannelID: channelID, Role: domain.RoleMember}, nil
			}
			return nil, nil
		}).AnyTimes()
	channels := mocks.NewMockIChannelDirectory(ctrl)
	channels.EXPECT().GetChannel(gomock.Any(), "general").
		Return(&domain.Channel{ID: "general", Name: "general", Type: domain.ChannelPublic}, nil).AnyTimes()

	presenceWrites := &presenceLog{online: map[string]bool{}}
	presence := mocks.NewMockIPresenceWriter(ctrl)
	presence.EXPECT().SetOnline(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(presenceWrites.set).AnyTimes()

	registry := runtime.NewRegistry(presence, log)
	queue := workers.NewRetentionQueue(log, runtime.NewRetentionEnforcer(repository, log, 50, 250), 16, time.Second)
	orchestrator := runtime.NewOrchestrator(
		log,
		workers.NewSupervisor(log, 10*time.Millisecond),
		registry,
		membership,
		channels,
		repository,
		runtime.NewDispatcher(log, membership, registry, time.Second),
		runtime.NewPaginator(log, repository, users, 20),
		queue,
		10,
	)
	orchestrator.RegisterWorkers(workers.NewRetentionWorker(log, queue))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = orchestrator.Start(ctx) }()

	origins := ws.NewOrigins(log, []string{"http://localhost:3000"})
	handler := ws.NewHandler(log, services.NewChatService(orchestrator), auth.NewVerifier(log, secret, users), origins, 16, 64*1024)
	server := httptest.NewServer(api.NewRouter(log, handler, nil, origins.List()))

	t.Cleanup(func() {
		server.Close()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		_ = orchestrator.Stop(stopCtx)
		cancel()
		queue.Wait()
	})
	return relay{server: server, registry: registry, orchestrator: orchestrator, presence: presenceWrites}
}

func (r relay) url() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http") + api.WebSocketPath
}

func (r relay) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if userID != "" {
		token, err := auth.GenerateToken(secret, userID, time.Hour)
		require.NoError(t, err)
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(r.url(), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connect dials and waits until the relay registered the connection.
func (r relay) connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn := r.dial(t, userID)
	require.Eventually(t, func() bool { return r.registry.IsOnline(userID) }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, name string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(frame{Event: name, Data: payload}))
}

func receive(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func errorCode(t *testing.T, f frame) string {
	t.Helper()
	require.Equal(t, event.Error, f.Event)
	var code string
	require.NoError(t, json.Unmarshal(f.Data, &code))
	return code
}

func TestHandler_Rejects_Connections_Without_Valid_Credential(t *testing.T) {
	r := startRelay(t)

	for name, tc := range map[string]struct {
		userID string
		code   string
	}{
		"no token":     {userID: "", code: errors.CodeNotAuthenticated},
		"unverified":   {userID: "carol", code: errors.CodeNotVerified},
		"unknown user": {userID: "ghost", code: errors.CodeNotVerified},
	} {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			conn := r.dial(t, tc.userID)

			// Then the only frame is the error, followed by a close
			req.Equal(tc.code, errorCode(t, receive(t, conn)))
			_, _, err := conn.ReadMessage()
			req.Error(err)
			req.False(r.registry.IsOnline(tc.userID))
		})
	}

	t.Run("bad signature", func(t *testing.T) {
		token, err := auth.GenerateToken([]byte("another_secret_entirely"), "alice", time.Hour)
		require.NoError(t, err)
		conn, _, err := websocket.DefaultDialer.Dial(r.url()+"?token="+token, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.Equal(t, errors.CodeInvalidToken, errorCode(t, receive(t, conn)))
	})
}

func TestHandler_Blocks_Disallowed_Origin(t *testing.T) {
	req := require.New(t)
	r := startRelay(t)

	header := http.Header{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(r.url(), header)

	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusForbidden, resp.StatusCode)
}

func TestHandler_Send_Fans_Out_And_Fetch_Pages(t *testing.T) {
	req := require.New(t)
	r := startRelay(t)
	alice := r.connect(t, "alice")
	bob := r.connect(t, "bob")

	// When alice posts in general
	send(t, alice, event.MessageSend, map[string]any{"channelId": "general", "content": "hello #team"})

	// Then both members receive the broadcast, alice included
	var delivered []domain.Message
	for _, conn := range []*websocket.Conn{alice, bob} {
		f := receive(t, conn)
		req.Equal(event.ChannelReceive, f.Event)
		var m domain.Message
		req.NoError(json.Unmarshal(f.Data, &m))
		req.Equal("hello #team", m.Content)
		req.Equal([]string{"#team"}, m.Hashtags)
		req.Equal("ALICE", m.User.FirstName)
		delivered = append(delivered, m)
	}
	req.Equal(delivered[0].ID, delivered[1].ID)

	// When bob fetches the history
	send(t, bob, event.MessagesFetch, map[string]any{"channelId": "general"})

	// Then he alone gets the page
	f := receive(t, bob)
	req.Equal(event.ChannelPage, f.Event)
	var page domain.Page
	req.NoError(json.Unmarshal(f.Data, &page))
	req.Equal("general", page.ChannelID)
	req.Len(page.Messages, 1)
	req.Equal(delivered[0].ID, page.Messages[0].ID)
	req.Nil(page.NextCursor)
}

func TestHandler_Reports_Failures_As_Error_Events(t *testing.T) {
	req := require.New(t)
	r := startRelay(t)
	dave := r.connect(t, "dave")

	// Undecodable frames and unknown events are ignored
	req.NoError(dave.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, dave, "channel:join", map[string]any{"channelId": "general"})

	// A non member can neither post nor read
	send(t, dave, event.MessageSend, map[string]any{"channelId": "general", "content": "let me in"})
	req.Equal(errors.CodeNotChannelMember, errorCode(t, receive(t, dave)))

	send(t, dave, event.MessagesFetch, map[string]any{"channelId": "general"})
	req.Equal(errors.CodeNotChannelMember, errorCode(t, receive(t, dave)))

	// An invalid payload takes the generic code of the operation
	send(t, dave, event.MessageSend, map[string]any{"channelId": "general", "content": ""})
	req.Equal(errors.CodeMessageSendFailed, errorCode(t, receive(t, dave)))
}

func TestHandler_Disconnect_Flips_Presence(t *testing.T) {
	r := startRelay(t)
	alice := r.connect(t, "alice")

	require.NoError(t, alice.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	_ = alice.Close()

	require.Eventually(t, func() bool { return !r.registry.IsOnline("alice") }, 2*time.Second, 5*time.Millisecond)
}

func TestHandler_Stop_Leaves_Every_User_Offline(t *testing.T) {
	req := require.New(t)
	r := startRelay(t)
	alice := r.connect(t, "alice")
	r.connect(t, "bob")
	online, _ := r.presence.get("alice")
	req.True(online)

	// When the relay stops
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.NoError(r.orchestrator.Stop(ctx))

	// Then presence is already offline once Stop returns
	for _, user := range []string{"alice", "bob"} {
		req.False(r.registry.IsOnline(user))
		online, written := r.presence.get(user)
		req.True(written)
		req.False(online, user)
	}

	// And the client got a normal close
	_, _, err := alice.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}
