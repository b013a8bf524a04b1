// Package gateways adapts external payment providers to a single contract.
// Adapters never return transport errors to the caller: network failures
// surface as a result with Success=false and an ErrorMessage.
package gateways

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

const (
	NamePayFast   = "payfast"
	NameEasyPaisa = "easypaisa"
	NameJazzCash  = "jazzcash"
	NamePayPak    = "paypak"
	NameStripe    = "stripe"
)

// Metadata describes a provider's integration shape.
type Metadata struct {
	Name                  string            `json:"name"`
	FlowType              enums.GatewayFlow `json:"flow_type"`
	Currency              string            `json:"currency"`
	SupportsRefund        bool              `json:"supports_refund"`
	SupportsPartialRefund bool              `json:"supports_partial_refund"`
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

type InitiateRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	OrderID       uuid.UUID
	Customer      Customer
	Description   string
	Metadata      map[string]string
}

// InitResult tells the caller where to send the buyer. Redirect gateways
// fill FormFields with the signed fields to POST to RedirectURL.
type InitResult struct {
	Success              bool
	RedirectURL          string
	FormFields           map[string]string
	GatewayTransactionID string
	Request              map[string]any
	Response             map[string]any
	ErrorMessage         string
}

type VerifyRequest struct {
	TransactionID        string
	GatewayTransactionID string
	Data                 map[string]string
}

// VerifyResult is a provider status mapped onto the transaction lifecycle.
type VerifyResult struct {
	Success              bool
	Status               enums.TransactionStatus
	GatewayTransactionID string
	Amount               *decimal.Decimal
	Raw                  map[string]any
	ErrorMessage         string
}

type CallbackResult struct {
	Success       bool
	TransactionID string
	Parsed        map[string]string
}

// WebhookResult reports an authenticated webhook. Valid=false means the
// signature did not match or the body could not be read.
type WebhookResult struct {
	Valid                bool
	TransactionID        string
	Status               enums.TransactionStatus
	GatewayTransactionID string
	Amount               *decimal.Decimal
	Parsed               map[string]any
	ErrorMessage         string
}

type RefundRequest struct {
	TransactionID        string
	GatewayTransactionID string
	Amount               *decimal.Decimal
	Reason               string
}

type RefundResult struct {
	Success      bool
	RefundID     string
	Amount       decimal.Decimal
	Raw          map[string]any
	ErrorMessage string
}

// Gateway is implemented by every payment provider adapter.
type Gateway interface {
	Metadata() Metadata
	Initialize() bool
	InitiatePayment(ctx context.Context, req InitiateRequest) InitResult
	VerifyPayment(ctx context.Context, req VerifyRequest) VerifyResult
	ProcessCallback(ctx context.Context, params map[string]string) CallbackResult
	VerifyWebhook(ctx context.Context, rawBody []byte, headers http.Header) WebhookResult
	Refund(ctx context.Context, req RefundRequest) RefundResult
	GetTransactionStatus(ctx context.Context, transactionID, gatewayTransactionID string) VerifyResult
}
