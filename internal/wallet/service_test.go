package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
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

type clock struct{ now time.Time }

func (c *clock) Now() time.Time {
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newService(t *testing.T, conn *gorm.DB) (*Service, *recordingEmitter, *clock) {
	t.Helper()
	emitter := &recordingEmitter{}
	svc, err := NewService(NewRepository(conn), dbpkg.NewFromConn(conn), emitter, logger.Nop())
	require.NoError(t, err)
	c := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	svc.now = c.Now
	return svc, emitter, c
}

func seedReturn(t *testing.T, conn *gorm.DB, userID uuid.UUID, amount string) models.ReturnRequest {
	t.Helper()
	ret := models.ReturnRequest{
		OrderID:      uuid.New(),
		UserID:       userID,
		Type:         enums.ReturnTypeSingle,
		Reason:       "damaged",
		Status:       enums.ReturnStatusApproved,
		RefundAmount: dbtest.D(amount),
		RefundStatus: enums.RefundStatusPending,
	}
	require.NoError(t, conn.Create(&ret).Error)
	return ret
}

func loadReturn(t *testing.T, conn *gorm.DB, id uuid.UUID) models.ReturnRequest {
	t.Helper()
	var ret models.ReturnRequest
	require.NoError(t, conn.First(&ret, "id = ?", id).Error)
	return ret
}

func loadWallet(t *testing.T, conn *gorm.DB, userID uuid.UUID) models.UserWallet {
	t.Helper()
	var w models.UserWallet
	require.NoError(t, conn.First(&w, "user_id = ?", userID).Error)
	return w
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewService(nil, dbpkg.NewFromConn(conn), &recordingEmitter{}, nil)
	require.Error(t, err)
	_, err = NewService(NewRepository(conn), nil, &recordingEmitter{}, nil)
	require.Error(t, err)
	_, err = NewService(NewRepository(conn), dbpkg.NewFromConn(conn), nil, nil)
	require.Error(t, err)
}

func TestProcessRefundCreditsWalletOnce(t *testing.T) {
	conn := dbtest.Open(t)
	svc, emitter, c := newService(t, conn)
	ctx := context.Background()
	user := dbtest.SeedUser(t, conn, "customer", false)
	ret := seedReturn(t, conn, user.ID, "25")

	credit, err := svc.ProcessRefund(ctx, ret.ID)
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.True(t, credit.Amount.Equal(dbtest.D("25")))
	assert.True(t, credit.IsRefund)
	require.NotNil(t, credit.TransferEligibleAt)
	assert.WithinDuration(t, c.now.Add(15*24*time.Hour), *credit.TransferEligibleAt, time.Second)

	again, err := svc.ProcessRefund(ctx, ret.ID)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, credit.ID, again.ID)

	var credits int64
	require.NoError(t, conn.Model(&models.WalletTransaction{}).Where("return_request_id = ?", ret.ID).Count(&credits).Error)
	assert.EqualValues(t, 1, credits)

	w := loadWallet(t, conn, user.ID)
	assert.True(t, w.Balance.Equal(dbtest.D("25")))
	assert.True(t, w.TotalCredited.Equal(dbtest.D("25")))

	stored := loadReturn(t, conn, ret.ID)
	assert.Equal(t, enums.RefundStatusProcessed, stored.RefundStatus)
	require.NotNil(t, stored.WalletCreditID)
	assert.Equal(t, credit.ID, *stored.WalletCreditID)
	require.NotNil(t, stored.TransferEligibleAt)
	assert.Equal(t, 1, emitter.count(enums.EventWalletCredited))
}

func TestProcessRefundRepairsReturnWhenCreditExists(t *testing.T) {
	conn := dbtest.Open(t)
	svc, emitter, c := newService(t, conn)
	ctx := context.Background()
	user := dbtest.SeedUser(t, conn, "customer", false)
	ret := seedReturn(t, conn, user.ID, "12.50")

	eligible := c.now.Add(RefundLockPeriod)
	existing := models.WalletTransaction{
		UserID:             user.ID,
		Amount:             dbtest.D("12.50"),
		Kind:               enums.WalletTransactionKindCredit,
		BalanceAfter:       dbtest.D("12.50"),
		IsRefund:           true,
		TransferEligibleAt: &eligible,
		ReturnRequestID:    &ret.ID,
	}
	require.NoError(t, conn.Create(&existing).Error)

	credit, err := svc.ProcessRefund(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, credit.ID)

	stored := loadReturn(t, conn, ret.ID)
	assert.Equal(t, enums.RefundStatusProcessed, stored.RefundStatus)
	require.NotNil(t, stored.WalletCreditID)
	assert.Equal(t, existing.ID, *stored.WalletCreditID)

	var wallets int64
	require.NoError(t, conn.Model(&models.UserWallet{}).Where("user_id = ?", user.ID).Count(&wallets).Error)
	assert.Zero(t, wallets)
	assert.Zero(t, emitter.count(enums.EventWalletCredited))
}

func TestProcessRefundRejectsUnapprovedReturn(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _, _ := newService(t, conn)
	ctx := context.Background()
	user := dbtest.SeedUser(t, conn, "customer", false)
	ret := seedReturn(t, conn, user.ID, "10")
	require.NoError(t, conn.Model(&models.ReturnRequest{}).Where("id = ?", ret.ID).
		Update("status", enums.ReturnStatusPending).Error)

	_, err := svc.ProcessRefund(ctx, ret.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	_, err = svc.ProcessRefund(ctx, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestTransferToBankSplitsCreditsOldestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	svc, emitter, c := newService(t, conn)
	ctx := context.Background()
	user := dbtest.SeedUser(t, conn, "customer", false)

	first, err := svc.ProcessRefund(ctx, seedReturn(t, conn, user.ID, "30").ID)
	require.NoError(t, err)
	c.advance(time.Hour)
	secondReturn := seedReturn(t, conn, user.ID, "20")
	second, err := svc.ProcessRefund(ctx, secondReturn.ID)
	require.NoError(t, err)

	c.advance(RefundLockPeriod + time.Hour)
	result, err := svc.TransferToBank(ctx, TransferInput{
		UserID:        user.ID,
		Amount:        dbtest.D("40"),
		BankAccountID: "PK36SCBL0000001123456702",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, result.Consumed)
	require.NotNil(t, result.Debit)
	assert.Equal(t, enums.WalletTransactionKindDebit, result.Debit.Kind)
	assert.True(t, result.Debit.Amount.Equal(dbtest.D("40")))
	assert.True(t, result.Debit.BalanceAfter.Equal(dbtest.D("10")))

	var firstRow, secondRow models.WalletTransaction
	require.NoError(t, conn.First(&firstRow, "id = ?", first.ID).Error)
	require.NoError(t, conn.First(&secondRow, "id = ?", second.ID).Error)
	assert.True(t, firstRow.TransferredToBank)
	assert.True(t, firstRow.Amount.Equal(dbtest.D("30")))
	assert.True(t, secondRow.TransferredToBank)
	assert.True(t, secondRow.Amount.Equal(dbtest.D("10")))
	require.NotNil(t, secondRow.TransferredAt)

	require.NotNil(t, result.Residual)
	var residual models.WalletTransaction
	require.NoError(t, conn.First(&residual, "id = ?", result.Residual.ID).Error)
	assert.False(t, residual.TransferredToBank)
	assert.True(t, residual.Amount.Equal(dbtest.D("10")))
	require.NotNil(t, residual.ReturnRequestID)
	assert.Equal(t, secondReturn.ID, *residual.ReturnRequestID)
	require.NotNil(t, residual.TransferEligibleAt)
	assert.WithinDuration(t, *second.TransferEligibleAt, *residual.TransferEligibleAt, time.Second)

	w := loadWallet(t, conn, user.ID)
	assert.True(t, w.Balance.Equal(dbtest.D("10")))
	assert.True(t, w.TotalCredited.Equal(dbtest.D("50")))
	assert.True(t, w.TotalDebited.Equal(dbtest.D("40")))
	assert.True(t, w.Balance.Equal(w.TotalCredited.Sub(w.TotalDebited)))
	assert.Equal(t, 1, emitter.count(enums.EventWalletTransferToBank))

	summary, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", summary.Transferable.StringFixed(2))
	assert.Equal(t, "0.00", summary.Locked.StringFixed(2))
}

func TestTransferToBankRequiresEligibleFunds(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _, c := newService(t, conn)
	ctx := context.Background()
	user := dbtest.SeedUser(t, conn, "customer", false)

	_, err := svc.TransferToBank(ctx, TransferInput{UserID: user.ID, Amount: dbtest.D("5"), BankAccountID: "acct"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnavailable), "got %v", err)

	_, err = svc.ProcessRefund(ctx, seedReturn(t, conn, user.ID, "30").ID)
	require.NoError(t, err)

	_, err = svc.TransferToBank(ctx, TransferInput{UserID: user.ID, Amount: dbtest.D("5"), BankAccountID: "acct"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnavailable), "locked credit must not transfer: %v", err)

	c.advance(RefundLockPeriod)
	_, err = svc.TransferToBank(ctx, TransferInput{UserID: user.ID, Amount: dbtest.D("30.01"), BankAccountID: "acct"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnavailable), "got %v", err)

	result, err := svc.TransferToBank(ctx, TransferInput{UserID: user.ID, Amount: dbtest.D("30"), BankAccountID: "acct"})
	require.NoError(t, err)
	assert.Nil(t, result.Residual)
	assert.True(t, loadWallet(t, conn, user.ID).Balance.IsZero())
}

func TestTransferToBankValidatesInput(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _, _ := newService(t, conn)
	ctx := context.Background()
	user := uuid.New()

	cases := []TransferInput{
		{Amount: dbtest.D("1"), BankAccountID: "acct"},
		{UserID: user, Amount: decimal.Zero, BankAccountID: "acct"},
		{UserID: user, Amount: dbtest.D("1.001"), BankAccountID: "acct"},
		{UserID: user, Amount: dbtest.D("1"), BankAccountID: "  "},
	}
	for _, input := range cases {
		_, err := svc.TransferToBank(ctx, input)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "input %+v: %v", input, err)
	}
}

func TestPlanTransfer(t *testing.T) {
	credits := []models.WalletTransaction{
		{ID: uuid.New(), Amount: dbtest.D("30")},
		{ID: uuid.New(), Amount: dbtest.D("20")},
		{ID: uuid.New(), Amount: dbtest.D("5")},
	}

	plan, covered := PlanTransfer(credits, dbtest.D("40"))
	require.Len(t, plan, 2)
	assert.True(t, covered.Equal(dbtest.D("40")))
	assert.True(t, plan[0].Take.Equal(dbtest.D("30")))
	assert.True(t, plan[0].Residual.IsZero())
	assert.True(t, plan[1].Take.Equal(dbtest.D("10")))
	assert.True(t, plan[1].Residual.Equal(dbtest.D("10")))

	plan, covered = PlanTransfer(credits, dbtest.D("100"))
	assert.Len(t, plan, 3)
	assert.True(t, covered.Equal(dbtest.D("55")))

	plan, covered = PlanTransfer(nil, dbtest.D("1"))
	assert.Empty(t, plan)
	assert.True(t, covered.IsZero())
}

func TestGetAndListTransactions(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _, c := newService(t, conn)
	ctx := context.Background()
	user := dbtest.SeedUser(t, conn, "customer", false)

	empty, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", empty.Balance.StringFixed(2))

	for _, amount := range []string{"10", "15"} {
		_, err := svc.ProcessRefund(ctx, seedReturn(t, conn, user.ID, amount).ID)
		require.NoError(t, err)
		c.advance(time.Minute)
	}

	summary, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "25.00", summary.Balance.StringFixed(2))
	assert.Equal(t, "25.00", summary.Locked.StringFixed(2))
	assert.Equal(t, "0.00", summary.Transferable.StringFixed(2))

	rows, total, err := svc.ListTransactions(ctx, user.ID, pagination.Params{Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(dbtest.D("15")))
}
