package notifications

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestNotifyStoresOneRowPerDistinctUser(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()

	alice := dbtest.SeedUser(t, conn, "alice", false)
	bob := dbtest.SeedUser(t, conn, "bob", false)

	rows, err := svc.Notify(ctx, []uuid.UUID{alice.ID, bob.ID, alice.ID, uuid.Nil}, "<b>Hello</b> there")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "<b>Hello</b> there", rows[0].Message)
	assert.NotEqual(t, uuid.Nil, rows[0].ID)

	_, err = svc.Notify(ctx, []uuid.UUID{uuid.Nil}, "hi")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Notify(ctx, []uuid.UUID{alice.ID}, `<script>alert(1)</script>`)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestInboxReadFlow(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()

	user := dbtest.SeedUser(t, conn, "reader", false)
	other := dbtest.SeedUser(t, conn, "other", false)
	for _, msg := range []string{"first", "second", "third"} {
		_, err := svc.Notify(ctx, []uuid.UUID{user.ID}, msg)
		require.NoError(t, err)
	}
	otherRows, err := svc.Notify(ctx, []uuid.UUID{other.ID}, "not yours")
	require.NoError(t, err)

	page, err := svc.List(ctx, ListParams{UserID: user.ID, Page: pagination.Params{Page: 1, Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.EqualValues(t, 3, page.Total)
	assert.EqualValues(t, 3, page.Unread)

	require.NoError(t, svc.MarkRead(ctx, user.ID, page.Items[0].ID))
	unread, err := svc.UnreadCount(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	err = svc.MarkRead(ctx, user.ID, otherRows[0].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	onlyUnread, err := svc.List(ctx, ListParams{UserID: user.ID, Page: pagination.Params{Page: 1, Limit: 10}, UnreadOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, onlyUnread.Total)

	count, err := svc.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	unread, err = svc.UnreadCount(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	unread, err = svc.UnreadCount(ctx, other.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)
}

func TestNotifyRejectsOversizedAudience(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)

	ids := make([]uuid.UUID, maxRecipients+1)
	for i := range ids {
		ids[i] = uuid.New()
	}
	_, err = svc.Notify(context.Background(), ids, "hello")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUniqueRecipientsKeepsFirstSeenOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	got := uniqueRecipients([]uuid.UUID{b, uuid.Nil, a, b, a})
	assert.Equal(t, []uuid.UUID{b, a}, got)
}

func TestMarkReadRequiresIDs(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)

	err = svc.MarkRead(context.Background(), uuid.Nil, uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.List(context.Background(), ListParams{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
