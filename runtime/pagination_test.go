package runtime

import (
	"chat-relay/domain"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func messageIDs(messages []domain.Message) []string {
	return lo.Map(messages, func(m domain.Message, _ int) string { return m.ID })
}

func TestPaginator_PageSize(t *testing.T) {
	req := require.New(t)
	paginator := NewPaginator(slog.Default(), nil, nil, 20)

	req.Equal(20, paginator.PageSize(nil))
	req.Equal(1, paginator.PageSize(lo.ToPtr(0)))
	req.Equal(1, paginator.PageSize(lo.ToPtr(-5)))
	req.Equal(42, paginator.PageSize(lo.ToPtr(42)))
	req.Equal(100, paginator.PageSize(lo.ToPtr(1000)))
}

func TestPaginator_Chained_Cursor_Visits_Every_Message_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repository := openMessageRepository(t)
	users := mocks.NewMockIUserDirectory(ctrl)
	paginator := NewPaginator(slog.Default(), repository, users, 20)

	users.EXPECT().GetProfiles(gomock.Any(), []string{"alice"}).
		Return(map[string]domain.Profile{"alice": {ID: "alice", FirstName: "Alice"}}, nil).AnyTimes()

	// Given m1..m5 from oldest to newest
	m := storeMessages(t, repository, "general", "alice", time.Now().UTC(), 5)

	// When fetching two by two
	page, err := paginator.Page(ctx, "general", lo.ToPtr(2), nil)
	req.NoError(err)
	req.Equal([]string{m[4].ID, m[3].ID}, messageIDs(page.Messages))
	req.Equal(m[3].ID, *page.NextCursor)
	req.Equal("Alice", page.Messages[0].User.FirstName)

	page, err = paginator.Page(ctx, "general", lo.ToPtr(2), page.NextCursor)
	req.NoError(err)
	req.Equal([]string{m[2].ID, m[1].ID}, messageIDs(page.Messages))
	req.Equal(m[1].ID, *page.NextCursor)

	page, err = paginator.Page(ctx, "general", lo.ToPtr(2), page.NextCursor)
	req.NoError(err)

	// Then the walk terminates on the oldest message
	req.Equal([]string{m[0].ID}, messageIDs(page.Messages))
	req.Nil(page.NextCursor)
	req.Equal("general", page.ChannelID)
}

func TestPaginator_Full_Last_Page_Then_Empty_Page(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repository := openMessageRepository(t)
	users := mocks.NewMockIUserDirectory(ctrl)
	users.EXPECT().GetProfiles(gomock.Any(), gomock.Any()).Return(map[string]domain.Profile{}, nil).AnyTimes()
	paginator := NewPaginator(slog.Default(), repository, users, 20)
	storeMessages(t, repository, "general", "alice", time.Now().UTC(), 4)

	var visited []string
	var cursor *string
	calls := 0
	for {
		page, err := paginator.Page(ctx, "general", lo.ToPtr(2), cursor)
		req.NoError(err)
		calls++
		visited = append(visited, messageIDs(page.Messages)...)
		if page.NextCursor == nil {
			req.Empty(page.Messages)
			break
		}
		cursor = page.NextCursor
	}

	// A full last page still hands a cursor, the following call returns nothing
	req.Equal(3, calls)
	req.Len(lo.Uniq(visited), 4)
}

func TestPaginator_Empty_Channel(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	users := mocks.NewMockIUserDirectory(ctrl)
	paginator := NewPaginator(slog.Default(), openMessageRepository(t), users, 20)

	page, err := paginator.Page(context.Background(), "empty", nil, nil)

	req.NoError(err)
	req.NotNil(page.Messages)
	req.Empty(page.Messages)
	req.Nil(page.NextCursor)
}

func TestPaginator_Store_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repository := mocks.NewMockIMessageRepository(ctrl)
	paginator := NewPaginator(slog.Default(), repository, nil, 20)

	repository.EXPECT().Page("general", nil, 20).Return(nil, fmt.Errorf("io error"))

	_, err := paginator.Page(context.Background(), "general", nil, nil)
	req.Error(err)
}
