// Package payments drives payment transactions through the gateway adapters
// and mirrors their outcome onto the owning order.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/payments/gateways"
	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/security"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

const transactionPrefix = "TXN-"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// GatewayProvider resolves adapters by name.
type GatewayProvider interface {
	Get(name string) (gateways.Gateway, error)
	Catalogue() []gateways.Metadata
}

// OrderStatusUpdater mirrors payment outcomes onto the order.
type OrderStatusUpdater interface {
	UpdateStatusTx(ctx context.Context, tx *gorm.DB, input orders.StatusUpdate) (*models.Order, error)
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, gateway, transactionID string, status enums.TransactionStatus) (bool, error)
	Release(ctx context.Context, gateway, transactionID string, status enums.TransactionStatus) error
}

type ServiceParams struct {
	Repo              *Repository
	Gateways          GatewayProvider
	Orders            OrderStatusUpdater
	TransactionRunner txRunner
	Outbox            outboxEmitter
	// Guard is optional; without it redeliveries are absorbed by the
	// transaction state machine alone.
	Guard  *WebhookGuard
	Logger *logger.Logger
}

// InitiateInput starts a gateway attempt for an order. Amount defaults to the
// order total.
type InitiateInput struct {
	OrderID     uuid.UUID
	Gateway     string
	Amount      *decimal.Decimal
	Customer    gateways.Customer
	Description string
	CustomerIP  string
	UserAgent   string
}

// InitiateResult carries what the client needs to hand the buyer over.
type InitiateResult struct {
	Transaction *models.PaymentTransaction
	RedirectURL string
	FormFields  map[string]string
}

type RefundInput struct {
	TransactionID string
	Amount        *decimal.Decimal
	Reason        string
}

// WebhookOutcome reports how a webhook was handled. Duplicate deliveries are
// answered with the current transaction state.
type WebhookOutcome struct {
	Transaction *models.PaymentTransaction
	Duplicate   bool
}

type Service struct {
	repo     *Repository
	gateways GatewayProvider
	orders   OrderStatusUpdater
	tx       txRunner
	outbox   outboxEmitter
	guard    webhookGuard
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repository required")
	}
	if params.Gateways == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway provider required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order status updater required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	svc := &Service{
		repo:     params.Repo,
		gateways: params.Gateways,
		orders:   params.Orders,
		tx:       params.TransactionRunner,
		outbox:   params.Outbox,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if params.Guard != nil {
		svc.guard = params.Guard
	}
	return svc, nil
}

// NewTransactionID returns TXN-yyyyMMddHHmmss-XXXXXXXX.
func NewTransactionID(now time.Time) (string, error) {
	suffix, err := security.RandomHexUpper(8)
	if err != nil {
		return "", err
	}
	return transactionPrefix + now.UTC().Format("20060102150405") + "-" + suffix, nil
}

func (s *Service) Catalogue() []gateways.Metadata {
	return s.gateways.Catalogue()
}

func (s *Service) gateway(name string) (gateways.Gateway, error) {
	gw, err := s.gateways.Get(name)
	if err != nil {
		if errors.Is(err, gateways.ErrUnavailable) {
			return nil, pkgerrors.New(pkgerrors.CodeUnavailable, fmt.Sprintf("payment gateway %q is not available", name))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve payment gateway")
	}
	return gw, nil
}

// Initiate records an INITIATED transaction, calls the provider without
// holding any lock, then moves the transaction to PENDING and the order to
// PROCESSING.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	gw, err := s.gateway(input.Gateway)
	if err != nil {
		return nil, err
	}
	meta := gw.Metadata()

	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	switch order.PaymentStatus {
	case enums.PaymentStatusCashOnDelivery:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash on delivery orders are not paid online")
	case enums.PaymentStatusSuccess, enums.PaymentStatusReversal:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	case enums.PaymentStatusFailed:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order payment has failed")
	}
	switch order.OrderStatus {
	case enums.OrderStatusCancelled, enums.OrderStatusFailed, enums.OrderStatusRefunded:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is closed")
	}

	amount := order.Total
	if input.Amount != nil {
		amount = *input.Amount
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	amount = types.Round2(amount)

	now := s.now()
	txID, err := NewTransactionID(now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate transaction id")
	}
	txn := &models.PaymentTransaction{
		TransactionID: txID,
		OrderID:       order.ID,
		Gateway:       meta.Name,
		FlowType:      meta.FlowType,
		Amount:        amount,
		Currency:      meta.Currency,
		Status:        enums.TransactionStatusInitiated,
		CustomerIP:    optional(input.CustomerIP),
		UserAgent:     optional(input.UserAgent),
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transaction")
	}

	logCtx := s.logg.WithFields(s.logg.WithTransactionID(ctx, txID), map[string]any{
		"gateway":  meta.Name,
		"order_id": order.ID.String(),
	})

	customer := input.Customer
	if customer.Name == "" {
		customer.Name = order.CustomerName
	}
	if customer.Email == "" && order.CustomerEmail != nil {
		customer.Email = *order.CustomerEmail
	}
	if customer.Phone == "" {
		customer.Phone = order.CustomerContact
	}
	description := input.Description
	if description == "" {
		description = "Order " + order.TrackingNo
	}

	result := gw.InitiatePayment(ctx, gateways.InitiateRequest{
		TransactionID: txID,
		Amount:        amount,
		OrderID:       order.ID,
		Customer:      customer,
		Description:   description,
		Metadata:      map[string]string{"tracking_no": order.TrackingNo},
	})
	if !result.Success {
		updates := map[string]any{
			"status":           enums.TransactionStatusFailed,
			"error_message":    result.ErrorMessage,
			"gateway_request":  result.Request,
			"gateway_response": result.Response,
		}
		if err := s.repo.Update(ctx, txn.ID, updates); err != nil {
			s.logg.Error(logCtx, "failed to record gateway initiate failure", err)
		}
		s.logg.Warn(logCtx, "gateway rejected payment initiation: "+result.ErrorMessage)
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "payment gateway rejected the request").
			WithDetails(map[string]string{"transaction_id": txID, "reason": result.ErrorMessage})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{
			"status":           enums.TransactionStatusPending,
			"gateway_request":  result.Request,
			"gateway_response": result.Response,
		}
		if result.RedirectURL != "" {
			updates["redirect_url"] = result.RedirectURL
		}
		if result.GatewayTransactionID != "" {
			updates["gateway_transaction_id"] = result.GatewayTransactionID
		}
		if err := repo.Update(ctx, txn.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment transaction")
		}
		if err := repo.SetOrderGateway(ctx, order.ID, meta.Name); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set order payment gateway")
		}
		return s.mirror(logCtx, tx, order.ID, enums.PaymentStatusProcessing)
	})
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.FindByTransactionID(ctx, txID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment transaction")
	}
	s.logg.Info(logCtx, "payment initiated")
	return &InitiateResult{
		Transaction: stored,
		RedirectURL: result.RedirectURL,
		FormFields:  result.FormFields,
	}, nil
}

// Verify asks the provider for the outcome of a transaction and applies it.
func (s *Service) Verify(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	return s.verify(ctx, transactionID, nil)
}

// verify is Verify with the parameters of a redirect back from the provider.
// The adapter authenticates them; unauthenticated data fails the call.
func (s *Service) verify(ctx context.Context, transactionID string, data map[string]string) (*models.PaymentTransaction, error) {
	txn, err := s.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if isFinal(txn.Status) {
		return txn, nil
	}
	gw, err := s.gateway(txn.Gateway)
	if err != nil {
		return nil, err
	}

	res := gw.VerifyPayment(ctx, gateways.VerifyRequest{
		TransactionID:        txn.TransactionID,
		GatewayTransactionID: deref(txn.GatewayTransactionID),
		Data:                 data,
	})
	if !res.Success {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "payment verification failed").
			WithDetails(map[string]string{"transaction_id": transactionID, "reason": res.ErrorMessage})
	}

	return s.applyOutcome(ctx, transactionID, outcome{
		status:               res.Status,
		gatewayTransactionID: res.GatewayTransactionID,
		amount:               res.Amount,
		response:             res.Raw,
	})
}

// ProcessCallback handles the buyer returning from a redirect gateway.
func (s *Service) ProcessCallback(ctx context.Context, gatewayName string, params map[string]string) (*models.PaymentTransaction, error) {
	gw, err := s.gateway(gatewayName)
	if err != nil {
		return nil, err
	}
	res := gw.ProcessCallback(ctx, params)
	if res.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback does not identify a transaction")
	}
	txn, err := s.Get(ctx, res.TransactionID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(txn.Gateway, gw.Metadata().Name) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback gateway does not match the transaction")
	}
	return s.verify(ctx, res.TransactionID, res.Parsed)
}

// ProcessWebhook authenticates a provider notification and applies it. An
// invalid signature is a validation error; anything already seen is reported
// as a duplicate without touching the row.
func (s *Service) ProcessWebhook(ctx context.Context, gatewayName string, rawBody []byte, headers http.Header) (*WebhookOutcome, error) {
	gw, err := s.gateway(gatewayName)
	if err != nil {
		return nil, err
	}
	name := gw.Metadata().Name
	res := gw.VerifyWebhook(ctx, rawBody, headers)
	if !res.Valid {
		s.logg.Warn(s.logg.WithField(ctx, "gateway", name), "webhook rejected: "+res.ErrorMessage)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid webhook signature")
	}
	if res.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook does not identify a transaction")
	}
	logCtx := s.logg.WithField(s.logg.WithTransactionID(ctx, res.TransactionID), "gateway", name)

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, name, res.TransactionID, res.Status)
		if err != nil {
			s.logg.Warn(logCtx, "webhook guard unavailable: "+err.Error())
		} else if seen {
			txn, err := s.Get(ctx, res.TransactionID)
			if err != nil {
				return nil, err
			}
			s.logg.Info(logCtx, "duplicate webhook ignored")
			return &WebhookOutcome{Transaction: txn, Duplicate: true}, nil
		}
	}

	txn, duplicate, err := s.applyWebhook(ctx, name, res)
	if err != nil {
		if s.guard != nil {
			if relErr := s.guard.Release(ctx, name, res.TransactionID, res.Status); relErr != nil {
				s.logg.Warn(logCtx, "release webhook guard: "+relErr.Error())
			}
		}
		return nil, err
	}
	return &WebhookOutcome{Transaction: txn, Duplicate: duplicate}, nil
}

func (s *Service) applyWebhook(ctx context.Context, gatewayName string, res gateways.WebhookResult) (*models.PaymentTransaction, bool, error) {
	var (
		result    *models.PaymentTransaction
		duplicate bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := repo.LockByTransactionID(ctx, res.TransactionID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment transaction")
		}
		if !strings.EqualFold(txn.Gateway, gatewayName) {
			return pkgerrors.New(pkgerrors.CodeValidation, "webhook gateway does not match the transaction")
		}
		duplicate = txn.WebhookReceived && txn.Status == res.Status
		if err := repo.Update(ctx, txn.ID, map[string]any{
			"webhook_received": true,
			"webhook_payload":  res.Parsed,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook payload")
		}
		txn.WebhookReceived = true
		result, err = s.apply(ctx, tx, txn, outcome{
			status:               res.Status,
			gatewayTransactionID: res.GatewayTransactionID,
			amount:               res.Amount,
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, duplicate, nil
}

// Refund returns money through the provider. Amount defaults to everything
// still refundable.
func (s *Service) Refund(ctx context.Context, input RefundInput) (*models.PaymentTransaction, error) {
	txn, err := s.Get(ctx, input.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != enums.TransactionStatusCompleted && txn.Status != enums.TransactionStatusPartiallyRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot refund a %s transaction", txn.Status))
	}
	gw, err := s.gateway(txn.Gateway)
	if err != nil {
		return nil, err
	}
	meta := gw.Metadata()
	if !meta.SupportsRefund {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, fmt.Sprintf("%s does not support refunds", meta.Name))
	}

	remaining := txn.RemainingRefundable()
	amount := remaining
	if input.Amount != nil {
		amount = types.Round2(*input.Amount)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if amount.GreaterThan(remaining) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds the refundable balance").
			WithDetails(map[string]string{"refundable": remaining.StringFixed(2)})
	}
	partial := amount.LessThan(txn.Amount)
	if partial && !meta.SupportsPartialRefund {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s only supports full refunds", meta.Name))
	}

	logCtx := s.logg.WithField(s.logg.WithTransactionID(ctx, txn.TransactionID), "gateway", meta.Name)
	req := gateways.RefundRequest{
		TransactionID:        txn.TransactionID,
		GatewayTransactionID: deref(txn.GatewayTransactionID),
		Reason:               input.Reason,
	}
	if partial {
		req.Amount = &amount
	}
	res := gw.Refund(ctx, req)
	if !res.Success {
		s.logg.Warn(logCtx, "gateway refund failed: "+res.ErrorMessage)
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "payment gateway rejected the refund").
			WithDetails(map[string]string{"transaction_id": txn.TransactionID, "reason": res.ErrorMessage})
	}

	var result *models.PaymentTransaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockByTransactionID(ctx, txn.TransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment transaction")
		}
		if amount.GreaterThan(locked.RemainingRefundable()) {
			return pkgerrors.New(pkgerrors.CodeConflict, "transaction was refunded concurrently")
		}
		refunded := types.Round2(locked.RefundedAmount.Add(amount))
		status := enums.TransactionStatusPartiallyRefunded
		if refunded.GreaterThanOrEqual(locked.Amount) {
			status = enums.TransactionStatusRefunded
		}
		now := s.now()
		gatewayResponse := locked.GatewayResponse
		if gatewayResponse == nil {
			gatewayResponse = map[string]any{}
		}
		gatewayResponse["refund_"+now.Format("20060102150405")] = map[string]any{
			"refund_id": res.RefundID,
			"amount":    amount.StringFixed(2),
			"reason":    input.Reason,
		}
		if err := repo.Update(ctx, locked.ID, map[string]any{
			"status":           status,
			"refunded_amount":  refunded,
			"refunded_at":      now,
			"gateway_response": gatewayResponse,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
		}
		if err := s.mirror(logCtx, tx, locked.OrderID, enums.PaymentStatusReversal); err != nil {
			return err
		}
		result, err = repo.FindByTransactionID(ctx, locked.TransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment transaction")
		}
		return s.emit(ctx, tx, enums.EventPaymentRefunded, result)
	})
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.logg.Error(logCtx, "refund accepted by gateway but not recorded", err)
		}
		return nil, err
	}
	s.logg.Info(logCtx, "payment refunded")
	return result, nil
}

func (s *Service) Get(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	txn, err := s.repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	return txn, nil
}

func (s *Service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	rows, err := s.repo.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment transactions")
	}
	return rows, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
