package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

type sentEmail struct {
	key  string
	to   string
	vars map[string]string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	fail map[string]bool
}

func (m *fakeMailer) Send(_ context.Context, key, to, _ string, vars map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[to] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, sentEmail{key: key, to: to, vars: vars})
	return nil
}

func newInbox(t *testing.T, conn *gorm.DB) notifications.Service {
	t.Helper()
	svc, err := notifications.NewService(notifications.NewRepository(conn))
	require.NoError(t, err)
	return svc
}

func countInbox(t *testing.T, conn *gorm.DB, userID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.Notification{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func seedOrder(t *testing.T, conn *gorm.DB, createdAt time.Time, shopIDs ...uuid.UUID) models.Order {
	t.Helper()
	order := models.Order{
		TrackingNo:    "TRK-" + uuid.NewString()[:8],
		Amount:        dbtest.D("20.00"),
		Total:         dbtest.D("20.00"),
		OrderStatus:   enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		PaymentMethod: enums.PaymentMethodCashOnDelivery,
		CreatedAt:     createdAt,
	}
	for _, shopID := range shopIDs {
		shopID := shopID
		order.Lines = append(order.Lines, models.OrderLine{
			ShopID:    &shopID,
			ProductID: uuid.New(),
			ItemType:  enums.ItemTypeSimple,
			Quantity:  1,
			UnitPrice: dbtest.D("10.00"),
			Subtotal:  dbtest.D("10.00"),
		})
	}
	require.NoError(t, conn.Create(&order).Error)
	return order
}

func TestOrderEmailJobEmailsEachShopOnce(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Now().UTC()
	ownerA := dbtest.SeedUser(t, conn, "owner-a", false)
	ownerB := dbtest.SeedUser(t, conn, "owner-b", false)
	shopA := dbtest.SeedShop(t, conn, ownerA.ID)
	shopB := dbtest.SeedShop(t, conn, ownerB.ID)

	recent := seedOrder(t, conn, now.Add(-2*time.Minute), shopA.ID, shopB.ID, shopA.ID)
	stale := seedOrder(t, conn, now.Add(-time.Hour), shopA.ID)

	mailer := &fakeMailer{}
	jobIface, err := NewOrderEmailJob(OrderEmailJobParams{
		Logger:        logger.Nop(),
		Repository:    NewRepository(conn),
		Mailer:        mailer,
		StorefrontURL: "https://shop.example.com",
	})
	require.NoError(t, err)
	job := jobIface.(*orderEmailJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, notifications.TemplateShopNewOrder, mailer.sent[0].key)
	assert.Equal(t, recent.TrackingNo, mailer.sent[0].vars["tracking_no"])
	assert.Equal(t, "20.00", mailer.sent[0].vars["total"])

	var reloaded models.Order
	require.NoError(t, conn.First(&reloaded, "id = ?", recent.ID).Error)
	assert.True(t, reloaded.EmailSent)
	require.NoError(t, conn.First(&reloaded, "id = ?", stale.ID).Error)
	assert.False(t, reloaded.EmailSent)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, mailer.sent, 2)
}

func TestOrderEmailJobRetriesFailedSends(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Now().UTC()
	owner := dbtest.SeedUser(t, conn, "owner", false)
	shop := dbtest.SeedShop(t, conn, owner.ID)
	order := seedOrder(t, conn, now.Add(-time.Minute), shop.ID)

	mailer := &fakeMailer{fail: map[string]bool{owner.Email: true}}
	jobIface, err := NewOrderEmailJob(OrderEmailJobParams{Logger: logger.Nop(), Repository: NewRepository(conn), Mailer: mailer})
	require.NoError(t, err)
	job := jobIface.(*orderEmailJob)
	job.now = func() time.Time { return now }

	require.Error(t, job.Run(context.Background()))
	var reloaded models.Order
	require.NoError(t, conn.First(&reloaded, "id = ?", order.ID).Error)
	assert.False(t, reloaded.EmailSent)

	mailer.fail = nil
	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, conn.First(&reloaded, "id = ?", order.ID).Error)
	assert.True(t, reloaded.EmailSent)
}

func TestWishlistReminderStampsAndSkipsRecent(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Now().UTC()
	product := dbtest.SeedProduct(t, conn, nil, nil, "5.00", 3)
	oldFan := dbtest.SeedUser(t, conn, "old", false)
	newFan := dbtest.SeedUser(t, conn, "new", false)
	require.NoError(t, conn.Create(&models.WishlistItem{UserID: oldFan.ID, ProductID: product.ID, CreatedAt: now.Add(-8 * 24 * time.Hour)}).Error)
	require.NoError(t, conn.Create(&models.WishlistItem{UserID: newFan.ID, ProductID: product.ID, CreatedAt: now.Add(-24 * time.Hour)}).Error)

	mailer := &fakeMailer{}
	jobIface, err := NewWishlistReminderJob(ReminderJobParams{
		Logger:     logger.Nop(),
		Repository: NewRepository(conn),
		Notifier:   newInbox(t, conn),
		Mailer:     mailer,
	})
	require.NoError(t, err)
	job := jobIface.(*wishlistReminderJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.EqualValues(t, 1, countInbox(t, conn, oldFan.ID))
	assert.Zero(t, countInbox(t, conn, newFan.ID))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, oldFan.Email, mailer.sent[0].to)

	var item models.WishlistItem
	require.NoError(t, conn.First(&item, "user_id = ?", oldFan.ID).Error)
	require.NotNil(t, item.LastRemindedAt)

	require.NoError(t, job.Run(context.Background()))
	assert.EqualValues(t, 1, countInbox(t, conn, oldFan.ID))

	job.now = func() time.Time { return now.Add(8 * 24 * time.Hour) }
	require.NoError(t, job.Run(context.Background()))
	assert.EqualValues(t, 2, countInbox(t, conn, oldFan.ID))
}

func TestCartReminderGroupsByUser(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Now().UTC()
	shopper := dbtest.SeedUser(t, conn, "shopper", false)
	idle := now.Add(-3 * 24 * time.Hour)
	for i := 0; i < 2; i++ {
		item := models.CartItem{UserID: shopper.ID, ProductID: uuid.New(), Quantity: 1, CreatedAt: idle}
		require.NoError(t, conn.Create(&item).Error)
		require.NoError(t, conn.Model(&models.CartItem{}).Where("id = ?", item.ID).UpdateColumn("updated_at", idle).Error)
	}

	mailer := &fakeMailer{}
	jobIface, err := NewCartReminderJob(ReminderJobParams{
		Logger:     logger.Nop(),
		Repository: NewRepository(conn),
		Notifier:   newInbox(t, conn),
		Mailer:     mailer,
	})
	require.NoError(t, err)
	job := jobIface.(*cartReminderJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.EqualValues(t, 1, countInbox(t, conn, shopper.ID))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "2", mailer.sent[0].vars["count"])

	var items []models.CartItem
	require.NoError(t, conn.Where("user_id = ?", shopper.ID).Find(&items).Error)
	for _, item := range items {
		require.NotNil(t, item.LastRemindedAt)
		assert.WithinDuration(t, idle, item.UpdatedAt, time.Second)
	}

	require.NoError(t, job.Run(context.Background()))
	assert.EqualValues(t, 1, countInbox(t, conn, shopper.ID))
}

func TestStockAlertJobNotifiesOwners(t *testing.T) {
	conn := dbtest.Open(t)
	owner := dbtest.SeedUser(t, conn, "owner", false)
	shop := dbtest.SeedShop(t, conn, owner.ID)
	dbtest.SeedProduct(t, conn, &shop.ID, nil, "5.00", 0)
	dbtest.SeedProduct(t, conn, &shop.ID, nil, "5.00", 4)
	dbtest.SeedProduct(t, conn, &shop.ID, nil, "5.00", 50)

	mailer := &fakeMailer{}
	job, err := NewStockAlertJob(StockAlertJobParams{
		Logger:     logger.Nop(),
		Repository: NewRepository(conn),
		Notifier:   newInbox(t, conn),
		Mailer:     mailer,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.EqualValues(t, 2, countInbox(t, conn, owner.ID))
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, notifications.TemplateOutOfStock, mailer.sent[0].key)
	assert.Equal(t, notifications.TemplateLowStock, mailer.sent[1].key)
	assert.Equal(t, "4", mailer.sent[1].vars["quantity"])
}

type fakeSweeper struct {
	grace time.Duration
	err   error
}

func (f *fakeSweeper) SweepPendingRefunds(_ context.Context, olderThan time.Duration) (int, error) {
	f.grace = olderThan
	return 3, f.err
}

func TestRefundSweepJob(t *testing.T) {
	sweeper := &fakeSweeper{}
	job, err := NewRefundSweepJob(logger.Nop(), sweeper, 0)
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, defaultRefundGrace, sweeper.grace)

	sweeper.err = errors.New("db down")
	require.Error(t, job.Run(context.Background()))
}

func TestDeleteReadNotificationsBefore(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.SeedUser(t, conn, "reader", false)
	old := time.Now().UTC().Add(-100 * 24 * time.Hour)
	require.NoError(t, conn.Create(&models.Notification{UserID: user.ID, Message: "read", IsRead: true, ReadAt: &old}).Error)
	require.NoError(t, conn.Create(&models.Notification{UserID: user.ID, Message: "unread"}).Error)

	deleted, err := NewRepository(conn).DeleteReadNotificationsBefore(context.Background(), conn, time.Now().UTC().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.EqualValues(t, 1, countInbox(t, conn, user.ID))
}
