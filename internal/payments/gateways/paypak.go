package gateways

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/security"
)

const (
	payPakSignatureField  = "signature"
	payPakSignatureHeader = "X-Signature"
)

var payPakStatus = statusMap{
	success: []string{"SUCCESS", "APPROVED", "COMPLETED"},
	pending: []string{"PENDING", "PROCESSING"},
}

// PayPak is a server-to-server API. Requests authenticate with X-API-Key and
// X-Merchant-ID and are signed with HMAC-SHA256 over sorted k=v pairs.
type PayPak struct {
	cfg  config.PayPakConfig
	opts Options
}

func NewPayPak(cfg config.PayPakConfig, opts Options) *PayPak {
	return &PayPak{cfg: cfg, opts: opts.normalized()}
}

func (p *PayPak) Metadata() Metadata {
	return Metadata{
		Name:                  NamePayPak,
		FlowType:              enums.GatewayFlowAPI,
		Currency:              p.opts.Currency,
		SupportsRefund:        true,
		SupportsPartialRefund: true,
	}
}

func (p *PayPak) Initialize() bool {
	return strings.TrimSpace(p.cfg.MerchantID) != "" &&
		strings.TrimSpace(p.cfg.APIKey) != "" &&
		strings.TrimSpace(p.cfg.SecretKey) != "" &&
		strings.HasPrefix(p.cfg.BaseURL, "http")
}

func (p *PayPak) Sign(fields map[string]string) string {
	return security.HMACSHA256Hex(p.cfg.SecretKey, sortedPairs(fields, false, payPakSignatureField))
}

func (p *PayPak) headers() map[string]string {
	return map[string]string{
		"X-API-Key":     p.cfg.APIKey,
		"X-Merchant-ID": p.cfg.MerchantID,
	}
}

func (p *PayPak) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *PayPak) InitiatePayment(ctx context.Context, req InitiateRequest) InitResult {
	fields := map[string]string{
		"merchant_id":    p.cfg.MerchantID,
		"order_id":       req.TransactionID,
		"amount":         formatAmount(req.Amount),
		"currency":       p.opts.Currency,
		"description":    req.Description,
		"customer_name":  req.Customer.Name,
		"customer_email": req.Customer.Email,
		"customer_phone": req.Customer.Phone,
		"return_url":     callbackURL(p.opts.CallbackBase, NamePayPak),
	}
	fields[payPakSignatureField] = p.Sign(fields)

	resp, err := doJSON(ctx, p.opts.HTTPClient, http.MethodPost, p.endpoint("/payments"), p.headers(), fields)
	if err != nil {
		return InitResult{Request: toAnyMap(fields), ErrorMessage: "paypak initiate failed: " + err.Error()}
	}
	if payPakStatus.resolve(str(resp, "status")) == enums.TransactionStatusFailed {
		return InitResult{Request: toAnyMap(fields), Response: resp, ErrorMessage: "paypak rejected payment: " + str(resp, "message")}
	}
	return InitResult{
		Success:              true,
		RedirectURL:          str(resp, "payment_url"),
		GatewayTransactionID: str(resp, "payment_id"),
		Request:              toAnyMap(fields),
		Response:             resp,
	}
}

func (p *PayPak) VerifyPayment(ctx context.Context, req VerifyRequest) VerifyResult {
	if status := req.Data["status"]; status != "" {
		if req.Data["order_id"] != req.TransactionID {
			return rejectCallback(NamePayPak, "order does not match the transaction")
		}
		sig := req.Data[payPakSignatureField]
		if sig == "" || !security.EqualSignatures(sig, p.Sign(req.Data)) {
			return rejectCallback(NamePayPak, "signature mismatch")
		}
		return VerifyResult{
			Success:              true,
			Status:               payPakStatus.resolve(status),
			GatewayTransactionID: req.Data["payment_id"],
			Amount:               parseAmount(req.Data["amount"]),
			Raw:                  toAnyMap(req.Data),
		}
	}
	return p.GetTransactionStatus(ctx, req.TransactionID, req.GatewayTransactionID)
}

func (p *PayPak) GetTransactionStatus(ctx context.Context, transactionID, _ string) VerifyResult {
	resp, err := doJSON(ctx, p.opts.HTTPClient, http.MethodGet,
		p.endpoint("/payments/"+url.PathEscape(transactionID)), p.headers(), nil)
	if err != nil {
		return VerifyResult{ErrorMessage: "paypak status request failed: " + err.Error()}
	}
	return VerifyResult{
		Success:              true,
		Status:               payPakStatus.resolve(str(resp, "status")),
		GatewayTransactionID: str(resp, "payment_id"),
		Amount:               parseAmount(str(resp, "amount")),
		Raw:                  resp,
	}
}

func (p *PayPak) ProcessCallback(_ context.Context, params map[string]string) CallbackResult {
	txID := params["order_id"]
	return CallbackResult{
		Success:       txID != "" && payPakStatus.resolve(params["status"]) == enums.TransactionStatusCompleted,
		TransactionID: txID,
		Parsed:        params,
	}
}

func (p *PayPak) VerifyWebhook(_ context.Context, rawBody []byte, headers http.Header) WebhookResult {
	fields, err := parseBody(rawBody)
	if err != nil {
		return WebhookResult{ErrorMessage: err.Error()}
	}
	if !security.EqualSignatures(headers.Get(payPakSignatureHeader), p.Sign(fields)) {
		return WebhookResult{ErrorMessage: "signature mismatch"}
	}
	return WebhookResult{
		Valid:                true,
		TransactionID:        fields["order_id"],
		Status:               payPakStatus.resolve(fields["status"]),
		GatewayTransactionID: fields["payment_id"],
		Amount:               parseAmount(fields["amount"]),
		Parsed:               toAnyMap(fields),
	}
}

func (p *PayPak) Refund(ctx context.Context, req RefundRequest) RefundResult {
	paymentID := req.GatewayTransactionID
	if paymentID == "" {
		return RefundResult{ErrorMessage: "paypak refund requires the gateway payment id"}
	}
	fields := map[string]string{
		"merchant_id": p.cfg.MerchantID,
		"order_id":    req.TransactionID,
		"reason":      req.Reason,
	}
	if req.Amount != nil {
		fields["amount"] = formatAmount(*req.Amount)
	}
	fields[payPakSignatureField] = p.Sign(fields)

	resp, err := doJSON(ctx, p.opts.HTTPClient, http.MethodPost,
		p.endpoint("/payments/"+url.PathEscape(paymentID)+"/refunds"), p.headers(), fields)
	if err != nil {
		return RefundResult{ErrorMessage: "paypak refund failed: " + err.Error()}
	}
	if payPakStatus.resolve(str(resp, "status")) == enums.TransactionStatusFailed {
		return RefundResult{Raw: resp, ErrorMessage: "paypak refund declined: " + str(resp, "message")}
	}
	result := RefundResult{Success: true, RefundID: str(resp, "refund_id"), Raw: resp}
	if amount := parseAmount(str(resp, "amount")); amount != nil {
		result.Amount = *amount
	} else if req.Amount != nil {
		result.Amount = *req.Amount
	}
	return result
}
