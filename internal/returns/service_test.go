package returns

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/inventory"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/settlement"
	"github.com/angelmondragon/marketcore-backend/internal/wallet"
	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
	"github.com/angelmondragon/marketcore-backend/pkg/workerpool"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) count(eventType enums.OutboxEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, event := range r.events {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}

// inlineQueue runs tasks as they are submitted. When full is set it refuses
// them the way a saturated pool does.
type inlineQueue struct {
	mu    sync.Mutex
	full  bool
	names []string
	errs  []error
}

func (q *inlineQueue) Submit(task workerpool.Task) error {
	q.mu.Lock()
	if q.full {
		q.mu.Unlock()
		return workerpool.ErrQueueFull
	}
	q.names = append(q.names, task.Name)
	q.mu.Unlock()

	err := task.Run(context.Background())
	q.mu.Lock()
	q.errs = append(q.errs, err)
	q.mu.Unlock()
	return nil
}

type fixture struct {
	conn    *gorm.DB
	svc     *Service
	orders  orders.Service
	wallet  *wallet.Service
	emitter *recordingEmitter
	queue   *inlineQueue
}

type placed struct {
	order    *models.Order
	customer models.User
	cheap    models.Product
	pricey   models.Product
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	emitter := &recordingEmitter{}
	client := dbpkg.NewFromConn(conn)
	stock := inventory.NewService(emitter, logger.Nop())

	ledger, err := settlement.NewService(settlement.NewRepository(conn), client, emitter, logger.Nop())
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orders.NewRepository(conn), client, emitter, stock, ledger, logger.Nop())
	require.NoError(t, err)
	walletSvc, err := wallet.NewService(wallet.NewRepository(conn), client, emitter, logger.Nop())
	require.NoError(t, err)

	queue := &inlineQueue{}
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(conn),
		TransactionRunner: client,
		Outbox:            emitter,
		Stock:             stock,
		Refunds:           walletSvc,
		Queue:             queue,
		Logger:            logger.Nop(),
	})
	require.NoError(t, err)

	return fixture{conn: conn, svc: svc, orders: orderSvc, wallet: walletSvc, emitter: emitter, queue: queue}
}

// placeOrder buys two units at 25.00 and one at 40.00 and moves the order to
// status.
func (f fixture) placeOrder(t *testing.T, status enums.OrderStatus) placed {
	t.Helper()
	ctx := context.Background()
	owner := dbtest.SeedUser(t, f.conn, "owner", false)
	customer := dbtest.SeedUser(t, f.conn, "customer", false)
	shop := dbtest.SeedShop(t, f.conn, owner.ID)
	cheap := dbtest.SeedProduct(t, f.conn, &shop.ID, nil, "25", 10)
	pricey := dbtest.SeedProduct(t, f.conn, &shop.ID, nil, "40", 10)

	order, err := f.orders.PlaceOrder(ctx, orders.PlaceOrderInput{
		CustomerID:      &customer.ID,
		CustomerName:    "Customer",
		CustomerContact: "03001234567",
		PaymentMethod:   enums.PaymentMethodCashOnDelivery,
		Lines: []orders.LineInput{
			{ProductID: cheap.ID, ItemType: enums.ItemTypeSimple, Quantity: 2, UnitPrice: dbtest.D("25"), Subtotal: dbtest.D("50")},
			{ProductID: pricey.ID, ItemType: enums.ItemTypeSimple, Quantity: 1, UnitPrice: dbtest.D("40"), Subtotal: dbtest.D("40")},
		},
	})
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, orders.StatusUpdate{OrderID: order.ID, OrderStatus: &status})
	require.NoError(t, err)
	order, err = f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	return placed{order: order, customer: customer, cheap: cheap, pricey: pricey}
}

func (p placed) line(productID uuid.UUID) models.OrderLine {
	for _, line := range p.order.Lines {
		if line.ProductID == productID {
			return line
		}
	}
	return models.OrderLine{}
}

func (f fixture) reloadLine(t *testing.T, id uuid.UUID) models.OrderLine {
	t.Helper()
	var line models.OrderLine
	require.NoError(t, f.conn.First(&line, "id = ?", id).Error)
	return line
}

func (f fixture) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	require.NoError(t, f.conn.First(&product, "id = ?", productID).Error)
	return product.Quantity
}

func singleReturn(p placed, productID uuid.UUID, qty int) CreateInput {
	return CreateInput{
		OrderID: p.order.ID,
		UserID:  p.customer.ID,
		Type:    enums.ReturnTypeSingle,
		Reason:  "arrived damaged",
		Items:   []ItemInput{{OrderLineID: p.line(productID).ID, Quantity: qty}},
	}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestApprovedReturnRestocksAndCreditsWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.placeOrder(t, enums.OrderStatusCompleted)
	require.Equal(t, 8, f.stock(t, p.cheap.ID))

	ret, err := f.svc.Create(ctx, singleReturn(p, p.cheap.ID, 1))
	require.NoError(t, err)
	assert.Equal(t, "25.00", ret.RefundAmount.StringFixed(2))
	assert.Equal(t, enums.ReturnStatusPending, ret.Status)
	line := f.reloadLine(t, p.line(p.cheap.ID).ID)
	require.NotNil(t, line.ReturnRequestID)
	assert.Equal(t, ret.ID, *line.ReturnRequestID)

	approved, err := f.svc.Approve(ctx, ReviewInput{ReturnID: ret.ID, ActorID: uuid.New(), Note: "ok"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusApproved, approved.Status)

	assert.Equal(t, 9, f.stock(t, p.cheap.ID))
	line = f.reloadLine(t, line.ID)
	assert.True(t, line.IsReturned)
	assert.Equal(t, 1, line.ReturnedQty)

	require.Equal(t, []string{"wallet.process_refund"}, f.queue.names)
	require.NoError(t, f.queue.errs[0])

	var credits []models.WalletTransaction
	require.NoError(t, f.conn.Where("return_request_id = ?", ret.ID).Find(&credits).Error)
	require.Len(t, credits, 1)
	assert.True(t, credits[0].Amount.Equal(dbtest.D("25")))
	assert.True(t, credits[0].IsRefund)
	require.NotNil(t, credits[0].TransferEligibleAt)
	assert.WithinDuration(t, time.Now().Add(wallet.RefundLockPeriod), *credits[0].TransferEligibleAt, time.Minute)

	summary, err := f.wallet.Get(ctx, p.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "25.00", summary.Balance.StringFixed(2))

	stored, err := f.svc.Get(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusProcessed, stored.RefundStatus)

	var logs []models.InventoryLog
	require.NoError(t, f.conn.Where("product_id = ? AND reason = ?", p.cheap.ID, enums.InventoryReasonOrderReturned).Find(&logs).Error)
	assert.Len(t, logs, 1)

	assert.Equal(t, 1, f.emitter.count(enums.EventReturnRequested))
	assert.Equal(t, 1, f.emitter.count(enums.EventReturnApproved))
	assert.Equal(t, 1, f.emitter.count(enums.EventWalletCredited))

	_, err = f.svc.Approve(ctx, ReviewInput{ReturnID: ret.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestFullReturnRefundsOrderTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.placeOrder(t, enums.OrderStatusOutForDelivery)

	ret, err := f.svc.Create(ctx, CreateInput{
		OrderID: p.order.ID,
		UserID:  p.customer.ID,
		Type:    enums.ReturnTypeFull,
		Reason:  "changed my mind",
	})
	require.NoError(t, err)
	assert.True(t, ret.RefundAmount.Equal(p.order.Total))
	assert.Len(t, ret.Items, 2)

	_, err = f.svc.Create(ctx, singleReturn(p, p.pricey.ID, 1))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "line in open request: %v", err)
}

func TestCreateRejectsIneligibleRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.placeOrder(t, enums.OrderStatusProcessing)
	_, err := f.svc.Create(ctx, singleReturn(pending, pending.cheap.ID, 1))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	p := f.placeOrder(t, enums.OrderStatusCompleted)

	stranger := singleReturn(p, p.cheap.ID, 1)
	stranger.UserID = uuid.New()
	_, err = f.svc.Create(ctx, stranger)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)

	_, err = f.svc.Create(ctx, singleReturn(p, p.cheap.ID, 3))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	foreign := singleReturn(p, p.cheap.ID, 1)
	foreign.Items[0].OrderLineID = uuid.New()
	_, err = f.svc.Create(ctx, foreign)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	noReason := singleReturn(p, p.cheap.ID, 1)
	noReason.Reason = " "
	_, err = f.svc.Create(ctx, noReason)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = f.svc.Create(ctx, CreateInput{OrderID: uuid.New(), UserID: p.customer.ID, Type: enums.ReturnTypeFull, Reason: "x"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	stale := time.Now().UTC().Add(-ReturnWindow - time.Hour)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", p.order.ID).Update("completed_at", stale).Error)
	_, err = f.svc.Create(ctx, singleReturn(p, p.cheap.ID, 1))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "window closed: %v", err)
}

func TestRejectFreesLinesForNewRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.placeOrder(t, enums.OrderStatusCompleted)

	ret, err := f.svc.Create(ctx, singleReturn(p, p.pricey.ID, 1))
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, ReviewInput{ReturnID: ret.ID, ActorID: uuid.New(), Note: "no damage visible"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusRejected, rejected.Status)
	require.NotNil(t, rejected.AdminNote)
	assert.Nil(t, f.reloadLine(t, p.line(p.pricey.ID).ID).ReturnRequestID)
	assert.Equal(t, 1, f.emitter.count(enums.EventReturnRejected))
	assert.Empty(t, f.queue.names)
	assert.Equal(t, 9, f.stock(t, p.pricey.ID))

	_, err = f.svc.Create(ctx, singleReturn(p, p.pricey.ID, 1))
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, ReviewInput{ReturnID: ret.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestReturnedLineCannotBeReturnedAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.placeOrder(t, enums.OrderStatusCompleted)

	ret, err := f.svc.Create(ctx, singleReturn(p, p.cheap.ID, 2))
	require.NoError(t, err)
	assert.Equal(t, "50.00", ret.RefundAmount.StringFixed(2))
	_, err = f.svc.Approve(ctx, ReviewInput{ReturnID: ret.ID})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, singleReturn(p, p.cheap.ID, 1))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestSweepRequeuesPendingRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.placeOrder(t, enums.OrderStatusCompleted)

	f.queue.full = true
	ret, err := f.svc.Create(ctx, singleReturn(p, p.cheap.ID, 1))
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, ReviewInput{ReturnID: ret.ID})
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusPending, stored.RefundStatus)

	f.queue.full = false
	n, err := f.svc.SweepPendingRefunds(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "recently approved returns are left to the pool")

	later := time.Now().UTC().Add(2 * time.Hour)
	f.svc.now = func() time.Time { return later }
	n, err = f.svc.SweepPendingRefunds(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, f.queue.errs, 1)
	require.NoError(t, f.queue.errs[0])

	stored, err = f.svc.Get(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusProcessed, stored.RefundStatus)

	n, err = f.svc.SweepPendingRefunds(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListFiltersByUserAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.placeOrder(t, enums.OrderStatusCompleted)

	first, err := f.svc.Create(ctx, singleReturn(p, p.cheap.ID, 1))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, singleReturn(p, p.pricey.ID, 1))
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, ReviewInput{ReturnID: first.ID})
	require.NoError(t, err)

	rows, total, err := f.svc.List(ctx, ListFilters{UserID: &p.customer.ID}, pagination.Params{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, rows, 2)

	pending := enums.ReturnStatusPending
	rows, total, err = f.svc.List(ctx, ListFilters{UserID: &p.customer.ID, Status: &pending}, pagination.Params{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Items, 1)

	_, err = f.svc.Get(ctx, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestRestockLineScalesGroupedItems(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	line := models.OrderLine{
		ProductID:    uuid.New(),
		ItemType:     enums.ItemTypeGrouped,
		Quantity:     2,
		GroupedItems: []models.GroupedItem{{ProductID: a, Quantity: 4}, {ProductID: b, Quantity: 1}},
	}

	stock, ok := restockLine(line, models.ReturnItem{Quantity: 1}, uuid.New())
	require.True(t, ok)
	require.Len(t, stock.GroupedItems, 1)
	assert.Equal(t, a, stock.GroupedItems[0].ProductID)
	assert.Equal(t, 2, stock.GroupedItems[0].Quantity)

	stock, ok = restockLine(line, models.ReturnItem{Quantity: 2}, uuid.New())
	require.True(t, ok)
	assert.Len(t, stock.GroupedItems, 2)
}
