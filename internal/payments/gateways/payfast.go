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
	payFastSignatureField  = "SIGNATURE"
	payFastValidationField = "validation_hash"
)

var payFastStatus = statusMap{success: []string{"000", "00"}, pending: []string{"001", "PENDING"}}

// PayFast signs requests with HMAC-SHA256 over the URL-encoded, key-sorted
// field list and redirects the buyer to the hosted checkout.
type PayFast struct {
	cfg  config.PayFastConfig
	opts Options
}

func NewPayFast(cfg config.PayFastConfig, opts Options) *PayFast {
	return &PayFast{cfg: cfg, opts: opts.normalized()}
}

func (p *PayFast) Metadata() Metadata {
	return Metadata{
		Name:           NamePayFast,
		FlowType:       enums.GatewayFlowRedirect,
		Currency:       p.opts.Currency,
		SupportsRefund: true,
	}
}

func (p *PayFast) Initialize() bool {
	return strings.TrimSpace(p.cfg.MerchantID) != "" &&
		strings.TrimSpace(p.cfg.SecuredKey) != "" &&
		strings.HasPrefix(p.cfg.BaseURL, "http")
}

// Sign computes the PayFast signature over fields, ignoring SIGNATURE.
func (p *PayFast) Sign(fields map[string]string) string {
	return security.HMACSHA256Hex(p.cfg.SecuredKey, sortedPairs(fields, true, payFastSignatureField))
}

// ValidationHash is the hash PayFast appends to the return URL:
// SHA-256(basket_id|secured_key|merchant_id|err_code).
func (p *PayFast) ValidationHash(basketID, errCode string) string {
	return security.SHA256Hex(strings.Join([]string{basketID, p.cfg.SecuredKey, p.cfg.MerchantID, errCode}, "|"))
}

func (p *PayFast) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *PayFast) InitiatePayment(ctx context.Context, req InitiateRequest) InitResult {
	amount := formatAmount(req.Amount)
	tokenResp, err := postForm(ctx, p.opts.HTTPClient, p.endpoint("/token"), url.Values{
		"MERCHANT_ID":   {p.cfg.MerchantID},
		"SECURED_KEY":   {p.cfg.SecuredKey},
		"BASKET_ID":     {req.TransactionID},
		"TXNAMT":        {amount},
		"CURRENCY_CODE": {p.opts.Currency},
	})
	if err != nil {
		return InitResult{ErrorMessage: "payfast token request failed: " + err.Error()}
	}
	token := str(tokenResp, "ACCESS_TOKEN")
	if token == "" {
		return InitResult{Response: tokenResp, ErrorMessage: "payfast did not return an access token"}
	}

	returnURL := callbackURL(p.opts.CallbackBase, NamePayFast)
	fields := map[string]string{
		"MERCHANT_ID":            p.cfg.MerchantID,
		"TOKEN":                  token,
		"BASKET_ID":              req.TransactionID,
		"TXNAMT":                 amount,
		"CURRENCY_CODE":          p.opts.Currency,
		"ORDER_DATE":             p.opts.Now().Format("2006-01-02 15:04:05"),
		"TXNDESC":                req.Description,
		"SUCCESS_URL":            returnURL,
		"FAILURE_URL":            returnURL,
		"CHECKOUT_URL":           returnURL,
		"CUSTOMER_EMAIL_ADDRESS": req.Customer.Email,
		"CUSTOMER_MOBILE_NO":     req.Customer.Phone,
	}
	fields[payFastSignatureField] = p.Sign(fields)

	request := toAnyMap(fields)
	delete(request, "TOKEN")
	return InitResult{
		Success:     true,
		RedirectURL: p.endpoint("/Transaction/PostTransaction"),
		FormFields:  fields,
		Request:     request,
		Response:    map[string]any{"token_issued": true},
	}
}

// VerifyPayment trusts return-URL data only when its validation hash matches.
// The hash does not cover the amount, so none is reported from it; the access
// token fixed the amount at initiation.
func (p *PayFast) VerifyPayment(ctx context.Context, req VerifyRequest) VerifyResult {
	code := req.Data["err_code"]
	if code == "" {
		return p.GetTransactionStatus(ctx, req.TransactionID, req.GatewayTransactionID)
	}
	basket := req.Data["basket_id"]
	if basket == "" {
		basket = req.Data["BASKET_ID"]
	}
	if basket != req.TransactionID {
		return rejectCallback(NamePayFast, "basket does not match the transaction")
	}
	hash := req.Data[payFastValidationField]
	if hash == "" || !security.EqualSignatures(hash, p.ValidationHash(basket, code)) {
		return rejectCallback(NamePayFast, "validation hash mismatch")
	}
	return VerifyResult{
		Success:              true,
		Status:               payFastStatus.resolve(code),
		GatewayTransactionID: req.Data["transaction_id"],
		Raw:                  toAnyMap(req.Data),
	}
}

func (p *PayFast) GetTransactionStatus(ctx context.Context, transactionID, _ string) VerifyResult {
	resp, err := doJSON(ctx, p.opts.HTTPClient, http.MethodGet,
		p.endpoint("/transaction/basket_id/"+url.PathEscape(transactionID)),
		map[string]string{"MERCHANT_ID": p.cfg.MerchantID, "SECURED_KEY": p.cfg.SecuredKey}, nil)
	if err != nil {
		return VerifyResult{ErrorMessage: "payfast status request failed: " + err.Error()}
	}
	return VerifyResult{
		Success:              true,
		Status:               payFastStatus.resolve(str(resp, "status_code")),
		GatewayTransactionID: str(resp, "transaction_id"),
		Amount:               parseAmount(str(resp, "transaction_amount")),
		Raw:                  resp,
	}
}

func (p *PayFast) ProcessCallback(_ context.Context, params map[string]string) CallbackResult {
	txID := params["basket_id"]
	if txID == "" {
		txID = params["BASKET_ID"]
	}
	return CallbackResult{
		Success:       txID != "" && payFastStatus.resolve(params["err_code"]) == enums.TransactionStatusCompleted,
		TransactionID: txID,
		Parsed:        params,
	}
}

func (p *PayFast) VerifyWebhook(_ context.Context, rawBody []byte, _ http.Header) WebhookResult {
	fields, err := parseBody(rawBody)
	if err != nil {
		return WebhookResult{ErrorMessage: err.Error()}
	}
	if !security.EqualSignatures(fields[payFastSignatureField], p.Sign(fields)) {
		return WebhookResult{ErrorMessage: "signature mismatch"}
	}
	return WebhookResult{
		Valid:                true,
		TransactionID:        fields["basket_id"],
		Status:               payFastStatus.resolve(fields["err_code"]),
		GatewayTransactionID: fields["transaction_id"],
		Amount:               parseAmount(fields["transaction_amount"]),
		Parsed:               toAnyMap(fields),
	}
}

func (p *PayFast) Refund(ctx context.Context, req RefundRequest) RefundResult {
	body := map[string]string{
		"MERCHANT_ID":    p.cfg.MerchantID,
		"BASKET_ID":      req.TransactionID,
		"TRANSACTION_ID": req.GatewayTransactionID,
		"REASON":         req.Reason,
	}
	if req.Amount != nil {
		body["TXNAMT"] = formatAmount(*req.Amount)
	}
	body[payFastSignatureField] = p.Sign(body)

	resp, err := doJSON(ctx, p.opts.HTTPClient, http.MethodPost, p.endpoint("/transaction/refund"), nil, body)
	if err != nil {
		return RefundResult{ErrorMessage: "payfast refund failed: " + err.Error()}
	}
	if payFastStatus.resolve(str(resp, "status_code")) != enums.TransactionStatusCompleted {
		return RefundResult{Raw: resp, ErrorMessage: "payfast refund declined: " + str(resp, "status_msg")}
	}
	result := RefundResult{Success: true, RefundID: str(resp, "refund_id"), Raw: resp}
	if req.Amount != nil {
		result.Amount = *req.Amount
	}
	return result
}
