package gateways

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	stripesdk "github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

const stripeSignatureHeader = "Stripe-Signature"

// StripeAPI is the SDK surface the Stripe adapter needs.
type StripeAPI interface {
	Currency() string
	CreateCheckoutSession(ctx context.Context, params *stripesdk.CheckoutSessionParams) (*stripesdk.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripesdk.CheckoutSession, error)
	CreateRefund(ctx context.Context, params *stripesdk.RefundParams) (*stripesdk.Refund, error)
	ConstructEvent(payload []byte, header string) (stripesdk.Event, error)
}

// Stripe creates hosted Checkout Sessions and authenticates webhooks with the
// SDK's timestamped signature scheme. Amounts are in minor units.
type Stripe struct {
	api  StripeAPI
	opts Options
}

func NewStripe(api StripeAPI, opts Options) *Stripe {
	return &Stripe{api: api, opts: opts.normalized()}
}

func (s *Stripe) Metadata() Metadata {
	currency := ""
	if s.api != nil {
		currency = strings.ToUpper(s.api.Currency())
	}
	return Metadata{
		Name:                  NameStripe,
		FlowType:              enums.GatewayFlowRedirect,
		Currency:              currency,
		SupportsRefund:        true,
		SupportsPartialRefund: true,
	}
}

func (s *Stripe) Initialize() bool {
	return s.api != nil
}

func (s *Stripe) InitiatePayment(ctx context.Context, req InitiateRequest) InitResult {
	returnURL := callbackURL(s.opts.CallbackBase, NameStripe)
	description := req.Description
	if description == "" {
		description = "Order " + req.OrderID.String()
	}
	params := &stripesdk.CheckoutSessionParams{
		Mode:              stripesdk.String(string(stripesdk.CheckoutSessionModePayment)),
		ClientReferenceID: stripesdk.String(req.TransactionID),
		SuccessURL:        stripesdk.String(returnURL + "?transaction_id=" + req.TransactionID + "&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripesdk.String(returnURL + "?transaction_id=" + req.TransactionID + "&cancelled=1"),
		LineItems: []*stripesdk.CheckoutSessionLineItemParams{{
			Quantity: stripesdk.Int64(1),
			PriceData: &stripesdk.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripesdk.String(s.api.Currency()),
				UnitAmount: stripesdk.Int64(toMinor(req.Amount)),
				ProductData: &stripesdk.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripesdk.String(description),
				},
			},
		}},
		Metadata: map[string]string{
			"transaction_id": req.TransactionID,
			"order_id":       req.OrderID.String(),
		},
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripesdk.String(req.Customer.Email)
	}

	request := map[string]any{
		"client_reference_id": req.TransactionID,
		"amount_minor":        toMinor(req.Amount),
		"currency":            s.api.Currency(),
	}
	sess, err := s.api.CreateCheckoutSession(ctx, params)
	if err != nil {
		return InitResult{Request: request, ErrorMessage: "stripe checkout session failed: " + err.Error()}
	}
	return InitResult{
		Success:              true,
		RedirectURL:          sess.URL,
		GatewayTransactionID: sess.ID,
		Request:              request,
		Response:             map[string]any{"session_id": sess.ID, "status": string(sess.Status)},
	}
}

// VerifyPayment prefers the stored session id. The one on the return URL is
// used only when none was stored, and the session must belong to the
// transaction either way.
func (s *Stripe) VerifyPayment(ctx context.Context, req VerifyRequest) VerifyResult {
	sessionID := req.GatewayTransactionID
	if sessionID == "" {
		sessionID = req.Data["session_id"]
	}
	return s.GetTransactionStatus(ctx, req.TransactionID, sessionID)
}

func (s *Stripe) GetTransactionStatus(ctx context.Context, transactionID, sessionID string) VerifyResult {
	if sessionID == "" {
		return VerifyResult{ErrorMessage: "stripe session id required"}
	}
	sess, err := s.api.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return VerifyResult{ErrorMessage: "stripe session lookup failed: " + err.Error()}
	}
	if transactionID != "" && sessionReference(sess) != transactionID {
		return VerifyResult{ErrorMessage: "stripe session " + sess.ID + " does not belong to " + transactionID}
	}
	return s.fromSession(sess)
}

func sessionReference(sess *stripesdk.CheckoutSession) string {
	if sess.ClientReferenceID != "" {
		return sess.ClientReferenceID
	}
	return sess.Metadata["transaction_id"]
}

func (s *Stripe) fromSession(sess *stripesdk.CheckoutSession) VerifyResult {
	amount := fromMinor(sess.AmountTotal)
	return VerifyResult{
		Success:              true,
		Status:               sessionStatus(sess),
		GatewayTransactionID: sess.ID,
		Amount:               &amount,
		Raw: map[string]any{
			"session_id":     sess.ID,
			"status":         string(sess.Status),
			"payment_status": string(sess.PaymentStatus),
		},
	}
}

func sessionStatus(sess *stripesdk.CheckoutSession) enums.TransactionStatus {
	switch {
	case sess.PaymentStatus == stripesdk.CheckoutSessionPaymentStatusPaid:
		return enums.TransactionStatusCompleted
	case sess.Status == stripesdk.CheckoutSessionStatusExpired:
		return enums.TransactionStatusExpired
	case sess.Status == stripesdk.CheckoutSessionStatusOpen,
		sess.Status == stripesdk.CheckoutSessionStatusComplete:
		return enums.TransactionStatusPending
	}
	return enums.TransactionStatusFailed
}

func (s *Stripe) ProcessCallback(_ context.Context, params map[string]string) CallbackResult {
	txID := params["transaction_id"]
	return CallbackResult{
		Success:       txID != "" && params["cancelled"] == "",
		TransactionID: txID,
		Parsed:        params,
	}
}

func (s *Stripe) VerifyWebhook(_ context.Context, rawBody []byte, headers http.Header) WebhookResult {
	event, err := s.api.ConstructEvent(rawBody, headers.Get(stripeSignatureHeader))
	if err != nil {
		return WebhookResult{ErrorMessage: "signature mismatch: " + err.Error()}
	}
	if event.Data == nil {
		return WebhookResult{ErrorMessage: "event has no data"}
	}

	var sess stripesdk.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return WebhookResult{ErrorMessage: "decode checkout session: " + err.Error()}
	}

	status := sessionStatus(&sess)
	switch event.Type {
	case stripesdk.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		status = enums.TransactionStatusCompleted
	case stripesdk.EventTypeCheckoutSessionAsyncPaymentFailed:
		status = enums.TransactionStatusFailed
	case stripesdk.EventTypeCheckoutSessionExpired:
		status = enums.TransactionStatusExpired
	}

	txID := sessionReference(&sess)
	amount := fromMinor(sess.AmountTotal)
	return WebhookResult{
		Valid:                true,
		TransactionID:        txID,
		Status:               status,
		GatewayTransactionID: sess.ID,
		Amount:               &amount,
		Parsed: map[string]any{
			"event_id":       event.ID,
			"event_type":     string(event.Type),
			"session_id":     sess.ID,
			"payment_status": string(sess.PaymentStatus),
		},
	}
}

func (s *Stripe) Refund(ctx context.Context, req RefundRequest) RefundResult {
	if req.GatewayTransactionID == "" {
		return RefundResult{ErrorMessage: "stripe refund requires the checkout session id"}
	}
	sess, err := s.api.GetCheckoutSession(ctx, req.GatewayTransactionID)
	if err != nil {
		return RefundResult{ErrorMessage: "stripe session lookup failed: " + err.Error()}
	}
	if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		return RefundResult{ErrorMessage: "stripe session has no payment intent"}
	}

	params := &stripesdk.RefundParams{
		PaymentIntent: stripesdk.String(sess.PaymentIntent.ID),
		Reason:        stripesdk.String(string(stripesdk.RefundReasonRequestedByCustomer)),
		Metadata: map[string]string{
			"transaction_id": req.TransactionID,
			"reason":         req.Reason,
		},
	}
	if req.Amount != nil {
		params.Amount = stripesdk.Int64(toMinor(*req.Amount))
	}
	ref, err := s.api.CreateRefund(ctx, params)
	if err != nil {
		return RefundResult{ErrorMessage: "stripe refund failed: " + err.Error()}
	}
	if ref.Status == stripesdk.RefundStatusFailed || ref.Status == stripesdk.RefundStatusCanceled {
		return RefundResult{ErrorMessage: "stripe refund " + string(ref.Status)}
	}
	return RefundResult{
		Success:  true,
		RefundID: ref.ID,
		Amount:   fromMinor(ref.Amount),
		Raw:      map[string]any{"refund_id": ref.ID, "status": string(ref.Status)},
	}
}
