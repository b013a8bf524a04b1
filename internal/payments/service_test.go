package payments

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/inventory"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/payments/gateways"
	"github.com/angelmondragon/marketcore-backend/internal/settlement"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
)

var jazzCashTestConfig = config.JazzCashConfig{
	MerchantID:    "MC1",
	Password:      "pw",
	IntegritySalt: "salt123",
	BaseURL:       "https://jazz.test",
}

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
	for _, e := range r.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "mc:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

// stubGateway is a provider whose answers are set by the test.
type stubGateway struct {
	meta    gateways.Metadata
	initOK  bool
	verify  gateways.VerifyResult
	refunds []gateways.RefundRequest
}

func (s *stubGateway) Metadata() gateways.Metadata { return s.meta }
func (s *stubGateway) Initialize() bool            { return true }

func (s *stubGateway) InitiatePayment(_ context.Context, req gateways.InitiateRequest) gateways.InitResult {
	if !s.initOK {
		return gateways.InitResult{ErrorMessage: "connection reset", Request: map[string]any{"order": req.TransactionID}}
	}
	return gateways.InitResult{
		Success:              true,
		RedirectURL:          "https://stub.test/pay/" + req.TransactionID,
		GatewayTransactionID: "STUB-" + req.TransactionID,
		Request:              map[string]any{"amount": req.Amount.StringFixed(2)},
	}
}

func (s *stubGateway) VerifyPayment(context.Context, gateways.VerifyRequest) gateways.VerifyResult {
	return s.verify
}

func (s *stubGateway) ProcessCallback(_ context.Context, params map[string]string) gateways.CallbackResult {
	return gateways.CallbackResult{TransactionID: params["txn"], Parsed: params}
}

func (s *stubGateway) VerifyWebhook(context.Context, []byte, http.Header) gateways.WebhookResult {
	return gateways.WebhookResult{}
}

func (s *stubGateway) Refund(_ context.Context, req gateways.RefundRequest) gateways.RefundResult {
	s.refunds = append(s.refunds, req)
	result := gateways.RefundResult{Success: true, RefundID: "R-1"}
	if req.Amount != nil {
		result.Amount = *req.Amount
	}
	return result
}

func (s *stubGateway) GetTransactionStatus(context.Context, string, string) gateways.VerifyResult {
	return s.verify
}

type fixture struct {
	conn    *gorm.DB
	svc     *Service
	orders  orders.Service
	emitter *recordingEmitter
	stub    *stubGateway
	jazz    *gateways.JazzCash
}

func newFixture(t *testing.T, guard *WebhookGuard) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	emitter := &recordingEmitter{}
	client := dbpkg.NewFromConn(conn)

	ledger, err := settlement.NewService(settlement.NewRepository(conn), client, emitter, logger.Nop())
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orders.NewRepository(conn), client, emitter, inventory.NewService(emitter, logger.Nop()), ledger, logger.Nop())
	require.NoError(t, err)

	stub := &stubGateway{
		meta: gateways.Metadata{
			Name:                  "stubpay",
			FlowType:              enums.GatewayFlowAPI,
			Currency:              "PKR",
			SupportsRefund:        true,
			SupportsPartialRefund: true,
		},
		initOK: true,
	}
	factory := gateways.NewFactory(nil, logger.Nop())
	factory.Register("stubpay", func() gateways.Gateway { return stub })
	factory.Register(gateways.NameJazzCash, func() gateways.Gateway {
		return gateways.NewJazzCash(jazzCashTestConfig, gateways.Options{CallbackBase: "https://shop.test/payment/callback"})
	})

	params := ServiceParams{
		Repo:              NewRepository(conn),
		Gateways:          factory,
		Orders:            orderSvc,
		TransactionRunner: client,
		Outbox:            emitter,
		Guard:             guard,
		Logger:            logger.Nop(),
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	return fixture{
		conn:    conn,
		svc:     svc,
		orders:  orderSvc,
		emitter: emitter,
		stub:    stub,
		jazz:    gateways.NewJazzCash(jazzCashTestConfig, gateways.Options{}),
	}
}

func (f fixture) placeOrder(t *testing.T, method enums.PaymentMethod) *models.Order {
	t.Helper()
	owner := dbtest.SeedUser(t, f.conn, "owner", false)
	customer := dbtest.SeedUser(t, f.conn, "customer", false)
	shop := dbtest.SeedShop(t, f.conn, owner.ID)
	product := dbtest.SeedProduct(t, f.conn, &shop.ID, nil, "150", 5)

	order, err := f.orders.PlaceOrder(context.Background(), orders.PlaceOrderInput{
		CustomerID:      &customer.ID,
		CustomerName:    "Customer",
		CustomerContact: "03001234567",
		PaymentMethod:   method,
		Lines: []orders.LineInput{{
			ProductID: product.ID,
			ItemType:  enums.ItemTypeSimple,
			Quantity:  1,
			UnitPrice: dbtest.D("150"),
			Subtotal:  dbtest.D("150"),
		}},
	})
	require.NoError(t, err)
	return order
}

func (f fixture) order(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", id).Error)
	return order
}

func (f fixture) jazzWebhook(txID, code, amount string) []byte {
	fields := map[string]string{
		"pp_TxnRefNo":             txID,
		"pp_ResponseCode":         code,
		"pp_Amount":               amount,
		"pp_RetreivalReferenceNo": "JC-" + code,
	}
	fields["pp_SecureHash"] = f.jazz.Sign(fields)
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	return []byte(values.Encode())
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestNewTransactionIDFormat(t *testing.T) {
	id, err := NewTransactionID(time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^TXN-20260504030201-[0-9A-F]{8}$`), id)
}

func TestInitiateMovesOrderToProcessing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t, enums.PaymentMethodOnline)

	res, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: "StubPay", CustomerIP: "10.0.0.1"})
	require.NoError(t, err)
	txn := res.Transaction
	assert.Equal(t, enums.TransactionStatusPending, txn.Status)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, "https://stub.test/pay/"+txn.TransactionID, res.RedirectURL)
	require.NotNil(t, txn.RedirectURL)
	require.NotNil(t, txn.GatewayTransactionID)
	assert.Equal(t, "STUB-"+txn.TransactionID, *txn.GatewayTransactionID)
	require.NotNil(t, txn.CustomerIP)

	stored := f.order(t, order.ID)
	assert.Equal(t, enums.PaymentStatusProcessing, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentGateway)
	assert.Equal(t, "stubpay", *stored.PaymentGateway)

	listed, err := f.svc.ListForOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestInitiateRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t, enums.PaymentMethodOnline)

	_, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: "payfast"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnavailable))

	_, err = f.svc.Initiate(ctx, InitiateInput{OrderID: uuid.New(), Gateway: "stubpay"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	zero := decimal.Zero
	_, err = f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: "stubpay", Amount: &zero})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	cod := f.placeOrder(t, enums.PaymentMethodCashOnDelivery)
	_, err = f.svc.Initiate(ctx, InitiateInput{OrderID: cod.ID, Gateway: "stubpay"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestInitiateGatewayFailureRecordsFailedTransaction(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t, enums.PaymentMethodOnline)
	f.stub.initOK = false

	_, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: "stubpay"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))

	var rows []models.PaymentTransaction
	require.NoError(t, f.conn.Find(&rows, "order_id = ?", order.ID).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.TransactionStatusFailed, rows[0].Status)
	require.NotNil(t, rows[0].ErrorMessage)
	assert.Equal(t, "connection reset", *rows[0].ErrorMessage)
	assert.Equal(t, enums.PaymentStatusPending, f.order(t, order.ID).PaymentStatus)
}

func TestJazzCashWebhookDeliveredTwice(t *testing.T) {
	for name, guard := range map[string]bool{"with guard": true, "without guard": false} {
		t.Run(name, func(t *testing.T) {
			var g *WebhookGuard
			if guard {
				var err error
				g, err = NewWebhookGuard(newMemoryStore(), time.Hour)
				require.NoError(t, err)
			}
			f := newFixture(t, g)
			ctx := context.Background()
			order := f.placeOrder(t, enums.PaymentMethodOnline)

			res, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: gateways.NameJazzCash})
			require.NoError(t, err)
			assert.Equal(t, "15000", res.FormFields["pp_Amount"])
			txID := res.Transaction.TransactionID

			body := f.jazzWebhook(txID, "000", "15000")
			first, err := f.svc.ProcessWebhook(ctx, gateways.NameJazzCash, body, http.Header{})
			require.NoError(t, err)
			assert.False(t, first.Duplicate)
			assert.Equal(t, enums.TransactionStatusCompleted, first.Transaction.Status)
			assert.True(t, first.Transaction.WebhookReceived)
			require.NotNil(t, first.Transaction.CompletedAt)

			second, err := f.svc.ProcessWebhook(ctx, gateways.NameJazzCash, body, http.Header{})
			require.NoError(t, err)
			assert.True(t, second.Duplicate)
			assert.Equal(t, enums.TransactionStatusCompleted, second.Transaction.Status)

			assert.Equal(t, 1, f.emitter.count(enums.EventPaymentCompleted))
			assert.Equal(t, enums.PaymentStatusSuccess, f.order(t, order.ID).PaymentStatus)
		})
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t, enums.PaymentMethodOnline)
	res, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: gateways.NameJazzCash})
	require.NoError(t, err)

	body := f.jazzWebhook(res.Transaction.TransactionID, "000", "15000")
	tampered := []byte(string(body) + "&pp_Extra=1")
	_, err = f.svc.ProcessWebhook(ctx, gateways.NameJazzCash, tampered, http.Header{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	stored, err := f.svc.Get(ctx, res.Transaction.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, stored.Status)
	assert.False(t, stored.WebhookReceived)
}

func TestSettledTransactionDoesNotRegress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t, enums.PaymentMethodOnline)
	res, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: gateways.NameJazzCash})
	require.NoError(t, err)
	txID := res.Transaction.TransactionID

	_, err = f.svc.ProcessWebhook(ctx, gateways.NameJazzCash, f.jazzWebhook(txID, "000", "15000"), http.Header{})
	require.NoError(t, err)

	late, err := f.svc.ProcessWebhook(ctx, gateways.NameJazzCash, f.jazzWebhook(txID, "999", "15000"), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, late.Transaction.Status)
	assert.Zero(t, f.emitter.count(enums.EventPaymentFailed))
	assert.Equal(t, enums.PaymentStatusSuccess, f.order(t, order.ID).PaymentStatus)
}

func TestWebhookAmountMismatchFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t, enums.PaymentMethodOnline)
	res, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: gateways.NameJazzCash})
	require.NoError(t, err)

	out, err := f.svc.ProcessWebhook(ctx, gateways.NameJazzCash, f.jazzWebhook(res.Transaction.TransactionID, "000", "100"), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusFailed, out.Transaction.Status)
	require.NotNil(t, out.Transaction.ErrorMessage)
	assert.Equal(t, enums.PaymentStatusFailed, f.order(t, order.ID).PaymentStatus)
	assert.Equal(t, 1, f.emitter.count(enums.EventPaymentFailed))
}

func TestCallbackVerifiesThroughAdapter(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t, enums.PaymentMethodOnline)
	res, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: gateways.NameJazzCash})
	require.NoError(t, err)
	txID := res.Transaction.TransactionID

	params := map[string]string{
		"pp_TxnRefNo":     txID,
		"pp_ResponseCode": "000",
		"pp_Amount":       "15000",
	}
	params["pp_SecureHash"] = f.jazz.Sign(params)

	txn, err := f.svc.ProcessCallback(ctx, gateways.NameJazzCash, params)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, txn.Status)
	assert.False(t, txn.WebhookReceived)

	again, err := f.svc.Verify(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, again.Status)
	assert.Equal(t, 1, f.emitter.count(enums.EventPaymentCompleted))

	_, err = f.svc.ProcessCallback(ctx, "stubpay", map[string]string{"txn": txID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestVerifyPendingKeepsTransactionOpen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t, enums.PaymentMethodOnline)
	res, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: "stubpay"})
	require.NoError(t, err)

	f.stub.verify = gateways.VerifyResult{Success: true, Status: enums.TransactionStatusPending}
	txn, err := f.svc.Verify(ctx, res.Transaction.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, txn.Status)

	f.stub.verify = gateways.VerifyResult{ErrorMessage: "timeout"}
	_, err = f.svc.Verify(ctx, res.Transaction.TransactionID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
}

func TestRefundPartialThenFull(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t, enums.PaymentMethodOnline)
	res, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: "stubpay"})
	require.NoError(t, err)
	txID := res.Transaction.TransactionID

	early := dbtest.D("10")
	_, err = f.svc.Refund(ctx, RefundInput{TransactionID: txID, Amount: &early})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	f.stub.verify = gateways.VerifyResult{Success: true, Status: enums.TransactionStatusCompleted}
	_, err = f.svc.Verify(ctx, txID)
	require.NoError(t, err)

	tooMuch := dbtest.D("150.01")
	_, err = f.svc.Refund(ctx, RefundInput{TransactionID: txID, Amount: &tooMuch})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	part := dbtest.D("40")
	txn, err := f.svc.Refund(ctx, RefundInput{TransactionID: txID, Amount: &part, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPartiallyRefunded, txn.Status)
	assert.Equal(t, "40.00", txn.RefundedAmount.StringFixed(2))
	assert.Equal(t, "110.00", txn.RemainingRefundable().StringFixed(2))
	assert.Equal(t, enums.PaymentStatusReversal, f.order(t, order.ID).PaymentStatus)

	overRemaining := dbtest.D("110.01")
	_, err = f.svc.Refund(ctx, RefundInput{TransactionID: txID, Amount: &overRemaining})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Len(t, f.stub.refunds, 1)

	txn, err = f.svc.Refund(ctx, RefundInput{TransactionID: txID})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusRefunded, txn.Status)
	assert.Equal(t, "150.00", txn.RefundedAmount.StringFixed(2))
	require.Len(t, f.stub.refunds, 2)
	require.NotNil(t, f.stub.refunds[1].Amount)
	assert.Equal(t, "110.00", f.stub.refunds[1].Amount.StringFixed(2))

	_, err = f.svc.Refund(ctx, RefundInput{TransactionID: txID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 2, f.emitter.count(enums.EventPaymentRefunded))
}

func TestRefundRespectsPartialSupport(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.stub.meta.SupportsPartialRefund = false
	order := f.placeOrder(t, enums.PaymentMethodOnline)
	res, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: "stubpay"})
	require.NoError(t, err)
	f.stub.verify = gateways.VerifyResult{Success: true, Status: enums.TransactionStatusCompleted}
	_, err = f.svc.Verify(ctx, res.Transaction.TransactionID)
	require.NoError(t, err)

	part := dbtest.D("40")
	_, err = f.svc.Refund(ctx, RefundInput{TransactionID: res.Transaction.TransactionID, Amount: &part})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	txn, err := f.svc.Refund(ctx, RefundInput{TransactionID: res.Transaction.TransactionID})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusRefunded, txn.Status)
	require.Len(t, f.stub.refunds, 1)
	assert.Nil(t, f.stub.refunds[0].Amount)
}

func TestWebhookGuardKeys(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewWebhookGuard(store, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "JazzCash", "TXN-1", enums.TransactionStatusCompleted)
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = guard.CheckAndMark(ctx, "jazzcash", "TXN-1", enums.TransactionStatusCompleted)
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = guard.CheckAndMark(ctx, "jazzcash", "TXN-1", enums.TransactionStatusFailed)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, guard.Release(ctx, "jazzcash", "TXN-1", enums.TransactionStatusCompleted))
	seen, err = guard.CheckAndMark(ctx, "jazzcash", "TXN-1", enums.TransactionStatusCompleted)
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = guard.CheckAndMark(ctx, "", "TXN-1", enums.TransactionStatusCompleted)
	assert.Error(t, err)
	_, err = NewWebhookGuard(nil, time.Minute)
	assert.Error(t, err)
}

func TestCallbackWithoutValidHashLeavesTransactionOpen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.placeOrder(t, enums.PaymentMethodOnline)
	res, err := f.svc.Initiate(ctx, InitiateInput{OrderID: order.ID, Gateway: gateways.NameJazzCash})
	require.NoError(t, err)
	txID := res.Transaction.TransactionID

	unsigned := map[string]string{"pp_TxnRefNo": txID, "pp_ResponseCode": "000", "pp_Amount": "15000"}
	forged := map[string]string{"pp_TxnRefNo": txID, "pp_ResponseCode": "000", "pp_Amount": "15000", "pp_SecureHash": "ABCDEF"}
	for _, params := range []map[string]string{unsigned, forged} {
		_, err := f.svc.ProcessCallback(ctx, gateways.NameJazzCash, params)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	}

	stored, err := f.svc.Get(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Zero(t, f.emitter.count(enums.EventPaymentCompleted))
	assert.Equal(t, enums.PaymentStatusProcessing, f.order(t, order.ID).PaymentStatus)
}
