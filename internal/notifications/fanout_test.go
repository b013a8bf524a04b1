package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
)

func TestPlanRecipientsDedupes(t *testing.T) {
	customer := uuid.New()
	owner := uuid.New()
	staffAdmin := uuid.New()
	admin := uuid.New()
	shopA, shopB := uuid.New(), uuid.New()

	plan := Plan{
		Customer: &customer,
		ShopIDs:  []uuid.UUID{shopA, shopB, shopA},
		Members: map[uuid.UUID][]uuid.UUID{
			shopA: {owner, staffAdmin},
			shopB: {owner, customer},
		},
		Admins:             []uuid.UUID{staffAdmin, admin, admin},
		SkipNotifiedAdmins: true,
	}

	got := map[uuid.UUID]int{}
	for _, r := range plan.Recipients() {
		got[r.UserID]++
	}
	assert.Equal(t, 1, got[customer])
	assert.Equal(t, 2, got[owner])
	assert.Equal(t, 1, got[staffAdmin])
	assert.Equal(t, 1, got[admin])

	plan.SkipNotifiedAdmins = false
	got = map[uuid.UUID]int{}
	for _, r := range plan.Recipients() {
		got[r.UserID]++
	}
	assert.Equal(t, 2, got[staffAdmin])
}

func TestPlanRecipientsSkipsGuestCustomer(t *testing.T) {
	guest := uuid.Nil
	plan := Plan{Customer: &guest}
	assert.Empty(t, plan.Recipients())
}

type fanoutFixture struct {
	conn   *gorm.DB
	fanout *Fanout
	mailer *recordingMailer
}

func newFanoutFixture(t *testing.T) fanoutFixture {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	inbox, err := NewService(repo)
	require.NoError(t, err)
	mailer := &recordingMailer{}
	emails, err := NewEmailer(repo, mailer, nil, logger.Nop())
	require.NoError(t, err)
	fanout, err := NewFanout(repo, dbpkg.NewFromConn(conn), inbox, emails, "https://shop.example.com/", logger.Nop())
	require.NoError(t, err)
	return fanoutFixture{conn: conn, fanout: fanout, mailer: mailer}
}

func (f fanoutFixture) inbox(t *testing.T, userID uuid.UUID) []models.Notification {
	t.Helper()
	var rows []models.Notification
	require.NoError(t, f.conn.Where("user_id = ?", userID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestFanoutOrderPlaced(t *testing.T) {
	f := newFanoutFixture(t)
	ctx := context.Background()

	customer := dbtest.SeedUser(t, f.conn, "customer", false)
	owner := dbtest.SeedUser(t, f.conn, "owner", false)
	staffAdmin := dbtest.SeedUser(t, f.conn, "staff", true)
	admin := dbtest.SeedUser(t, f.conn, "admin", true)
	shopA := dbtest.SeedShop(t, f.conn, owner.ID, staffAdmin.ID)
	shopB := dbtest.SeedShop(t, f.conn, owner.ID)

	err := f.fanout.Handle(ctx, enums.EventOrderPlaced, &payloads.OrderPlacedEvent{
		OrderID:    uuid.New(),
		TrackingNo: "TRK-100",
		CustomerID: &customer.ID,
		ShopIDs:    []uuid.UUID{shopA.ID, shopB.ID},
		Total:      "90.00",
	})
	require.NoError(t, err)

	assert.Len(t, f.inbox(t, customer.ID), 1)
	assert.Contains(t, f.inbox(t, customer.ID)[0].Message, "<b>TRK-100</b>")
	assert.Len(t, f.inbox(t, owner.ID), 2)
	assert.Len(t, f.inbox(t, staffAdmin.ID), 1)
	adminRows := f.inbox(t, admin.ID)
	require.Len(t, adminRows, 1)
	assert.Contains(t, adminRows[0].Message, "90.00")

	sent := f.mailer.all()
	require.Len(t, sent, 1)
	assert.Equal(t, customer.Email, sent[0].To)
	assert.Contains(t, sent[0].Subject, "TRK-100")
}

func TestFanoutGuestOrderNotifiesShopsOnly(t *testing.T) {
	f := newFanoutFixture(t)
	owner := dbtest.SeedUser(t, f.conn, "owner", false)
	shop := dbtest.SeedShop(t, f.conn, owner.ID)

	err := f.fanout.Handle(context.Background(), enums.EventOrderPlaced, &payloads.OrderPlacedEvent{
		OrderID:    uuid.New(),
		TrackingNo: "TRK-<i>",
		ShopIDs:    []uuid.UUID{shop.ID},
		Total:      "10.00",
	})
	require.NoError(t, err)

	rows := f.inbox(t, owner.ID)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].Message, "TRK-&lt;i&gt;")
	assert.Empty(t, f.mailer.all())
}

func TestFanoutReturnAndWithdrawalAudiences(t *testing.T) {
	f := newFanoutFixture(t)
	ctx := context.Background()
	customer := dbtest.SeedUser(t, f.conn, "customer", false)
	owner := dbtest.SeedUser(t, f.conn, "owner", false)
	admin := dbtest.SeedUser(t, f.conn, "admin", true)
	shop := dbtest.SeedShop(t, f.conn, owner.ID)

	event := &payloads.ReturnEvent{
		ReturnID:     uuid.New(),
		OrderID:      uuid.New(),
		TrackingNo:   "TRK-7",
		UserID:       customer.ID,
		ShopIDs:      []uuid.UUID{shop.ID},
		RefundAmount: "25.00",
	}
	require.NoError(t, f.fanout.Handle(ctx, enums.EventReturnRequested, event))
	require.NoError(t, f.fanout.Handle(ctx, enums.EventReturnRejected, event))

	assert.Len(t, f.inbox(t, customer.ID), 2)
	assert.Len(t, f.inbox(t, owner.ID), 1)
	assert.Len(t, f.inbox(t, admin.ID), 1)

	withdrawal := &payloads.WithdrawalEvent{WithdrawalID: uuid.New(), ShopID: shop.ID, Amount: "50.00"}
	require.NoError(t, f.fanout.Handle(ctx, enums.EventWithdrawalRequested, withdrawal))
	require.NoError(t, f.fanout.Handle(ctx, enums.EventWithdrawalProcessed, withdrawal))

	assert.Len(t, f.inbox(t, owner.ID), 3)
	assert.Len(t, f.inbox(t, admin.ID), 2)
}

func TestFanoutBackInStockNotifiesWishlisters(t *testing.T) {
	f := newFanoutFixture(t)
	ctx := context.Background()
	owner := dbtest.SeedUser(t, f.conn, "owner", false)
	shop := dbtest.SeedShop(t, f.conn, owner.ID)
	product := dbtest.SeedProduct(t, f.conn, &shop.ID, nil, "10.00", 0)
	fan := dbtest.SeedUser(t, f.conn, "fan", false)
	require.NoError(t, f.conn.Create(&models.WishlistItem{UserID: fan.ID, ProductID: product.ID}).Error)

	require.NoError(t, f.fanout.Handle(ctx, enums.EventOutOfStock, &payloads.StockEvent{
		ProductID: product.ID, ShopID: &shop.ID, Name: product.Name,
	}))
	require.NoError(t, f.fanout.Handle(ctx, enums.EventBackInStock, &payloads.StockEvent{
		ProductID: product.ID, ShopID: &shop.ID, Name: product.Name, Quantity: 5,
	}))

	assert.Len(t, f.inbox(t, owner.ID), 1)
	assert.Len(t, f.inbox(t, fan.ID), 1)
	sent := f.mailer.all()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].HTML, "https://shop.example.com/products/"+product.ID.String())
}

func TestFanoutIgnoresUnhandledEvents(t *testing.T) {
	f := newFanoutFixture(t)
	err := f.fanout.Handle(context.Background(), enums.EventPaymentCompleted, &payloads.PaymentEvent{})
	require.NoError(t, err)
}

// flakyInbox fails the nth NotifyTx call.
type flakyInbox struct {
	Service
	failAt int
	calls  int
}

func (f *flakyInbox) NotifyTx(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID, message string) ([]models.Notification, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, errors.New("insert failed")
	}
	return f.Service.NotifyTx(ctx, tx, userIDs, message)
}

func TestFanoutFailureLeavesNoPartialRows(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	repo := NewRepository(conn)
	inbox, err := NewService(repo)
	require.NoError(t, err)
	flaky := &flakyInbox{Service: inbox, failAt: 3}
	fanout, err := NewFanout(repo, dbpkg.NewFromConn(conn), flaky, nil, "", logger.Nop())
	require.NoError(t, err)

	customer := dbtest.SeedUser(t, conn, "customer", false)
	owner := dbtest.SeedUser(t, conn, "owner", false)
	admin := dbtest.SeedUser(t, conn, "admin", true)
	shop := dbtest.SeedShop(t, conn, owner.ID)
	event := &payloads.OrderPlacedEvent{
		OrderID:    uuid.New(),
		TrackingNo: "TRK-300",
		CustomerID: &customer.ID,
		ShopIDs:    []uuid.UUID{shop.ID},
		Total:      "12.00",
	}

	require.Error(t, fanout.Handle(ctx, enums.EventOrderPlaced, event))
	var count int64
	require.NoError(t, conn.Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count)

	flaky.failAt = 0
	require.NoError(t, fanout.Handle(ctx, enums.EventOrderPlaced, event))
	for _, userID := range []uuid.UUID{customer.ID, owner.ID, admin.ID} {
		var rows []models.Notification
		require.NoError(t, conn.Where("user_id = ?", userID).Find(&rows).Error)
		assert.Len(t, rows, 1)
	}
}

func TestNewFanoutRequiresTransactionRunner(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	inbox, err := NewService(repo)
	require.NoError(t, err)
	_, err = NewFanout(repo, nil, inbox, nil, "", logger.Nop())
	require.Error(t, err)
}
