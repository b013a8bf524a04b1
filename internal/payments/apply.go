package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/internal/orders"
	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
)

// outcome is a provider verdict on a transaction.
type outcome struct {
	status               enums.TransactionStatus
	gatewayTransactionID string
	amount               *decimal.Decimal
	response             map[string]any
}

// isFinal reports whether a transaction's payment outcome is settled. Final
// transactions never move back to a pre-settlement status; only refunds move
// them further.
func isFinal(status enums.TransactionStatus) bool {
	switch status {
	case enums.TransactionStatusCompleted,
		enums.TransactionStatusFailed,
		enums.TransactionStatusExpired,
		enums.TransactionStatusCancelled,
		enums.TransactionStatusPartiallyRefunded,
		enums.TransactionStatusRefunded:
		return true
	}
	return false
}

func failedFamily(status enums.TransactionStatus) bool {
	return status == enums.TransactionStatusFailed ||
		status == enums.TransactionStatusExpired ||
		status == enums.TransactionStatusCancelled
}

func (s *Service) applyOutcome(ctx context.Context, transactionID string, o outcome) (*models.PaymentTransaction, error) {
	var result *models.PaymentTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.repo.WithTx(tx).LockByTransactionID(ctx, transactionID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment transaction")
		}
		result, err = s.apply(ctx, tx, txn, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// apply moves a locked transaction according to o and mirrors the result onto
// the order. Completion is reported exactly once because a completed row is
// final.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, o outcome) (*models.PaymentTransaction, error) {
	repo := s.repo.WithTx(tx)
	logCtx := s.logg.WithFields(s.logg.WithTransactionID(ctx, txn.TransactionID), map[string]any{
		"gateway":     txn.Gateway,
		"from_status": txn.Status,
		"reported":    o.status,
	})

	updates := map[string]any{}
	if o.gatewayTransactionID != "" && txn.GatewayTransactionID == nil {
		updates["gateway_transaction_id"] = o.gatewayTransactionID
	}

	next := txn.Status
	if isFinal(txn.Status) {
		if o.status != txn.Status {
			s.logg.Info(logCtx, "ignoring status report for settled transaction")
		}
	} else {
		if o.response != nil {
			updates["gateway_response"] = o.response
		}
		switch {
		case o.status == enums.TransactionStatusCompleted:
			if o.amount != nil && !o.amount.Round(2).Equal(txn.Amount) {
				next = enums.TransactionStatusFailed
				updates["error_message"] = "gateway reported amount " + o.amount.StringFixed(2) +
					" for a " + txn.Amount.StringFixed(2) + " transaction"
				s.logg.Warn(logCtx, "gateway amount mismatch")
			} else {
				next = enums.TransactionStatusCompleted
				updates["completed_at"] = s.now()
			}
		case failedFamily(o.status):
			next = o.status
		case o.status == enums.TransactionStatusPending && txn.Status == enums.TransactionStatusInitiated:
			next = enums.TransactionStatusPending
		}
		if next != txn.Status {
			updates["status"] = next
		}
	}

	if len(updates) > 0 {
		if err := repo.Update(ctx, txn.ID, updates); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment transaction")
		}
	}
	stored, err := repo.FindByTransactionID(ctx, txn.TransactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment transaction")
	}
	if next == txn.Status {
		return stored, nil
	}

	switch {
	case next == enums.TransactionStatusCompleted:
		if err := s.mirror(logCtx, tx, txn.OrderID, enums.PaymentStatusSuccess); err != nil {
			return nil, err
		}
		if err := s.emit(ctx, tx, enums.EventPaymentCompleted, stored); err != nil {
			return nil, err
		}
	case failedFamily(next):
		if err := s.mirror(logCtx, tx, txn.OrderID, enums.PaymentStatusFailed); err != nil {
			return nil, err
		}
		if err := s.emit(ctx, tx, enums.EventPaymentFailed, stored); err != nil {
			return nil, err
		}
	}
	s.logg.Info(s.logg.WithField(logCtx, "to_status", next), "payment transaction updated")
	return stored, nil
}

// mirror copies a payment outcome onto the order. An order whose payment
// state can no longer take the move keeps its state; the transaction row
// remains the record of what the provider reported.
func (s *Service) mirror(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error {
	_, err := s.orders.UpdateStatusTx(ctx, tx, orders.StatusUpdate{
		OrderID:       orderID,
		PaymentStatus: &status,
	})
	if err == nil {
		return nil
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		s.logg.Warn(s.logg.WithField(ctx, "order_id", orderID.String()), "order payment status not mirrored: "+err.Error())
		return nil
	}
	return err
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, txn *models.PaymentTransaction) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   txn.ID,
		Data: payloads.PaymentEvent{
			TransactionID:  txn.TransactionID,
			OrderID:        txn.OrderID,
			Gateway:        txn.Gateway,
			Status:         txn.Status,
			Amount:         txn.Amount.StringFixed(2),
			RefundedAmount: txn.RefundedAmount.StringFixed(2),
		},
	})
}
