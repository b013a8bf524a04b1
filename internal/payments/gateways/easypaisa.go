package gateways

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/security"
)

const (
	easyPaisaHashField  = "merchantHashedReq"
	easyPaisaExpiry     = time.Hour
	easyPaisaTimeLayout = "20060102 150405"
)

var easyPaisaStatus = statusMap{
	success: []string{"0000", "PAID", "SUCCESS"},
	pending: []string{"0001", "PENDING"},
}

// EasyPaisa uses a hosted redirect checkout. Requests carry a SHA-256 digest
// of amount, order reference, store id and hash key.
type EasyPaisa struct {
	cfg  config.EasyPaisaConfig
	opts Options
}

func NewEasyPaisa(cfg config.EasyPaisaConfig, opts Options) *EasyPaisa {
	return &EasyPaisa{cfg: cfg, opts: opts.normalized()}
}

func (e *EasyPaisa) Metadata() Metadata {
	return Metadata{
		Name:     NameEasyPaisa,
		FlowType: enums.GatewayFlowRedirect,
		Currency: e.opts.Currency,
	}
}

func (e *EasyPaisa) Initialize() bool {
	return strings.TrimSpace(e.cfg.StoreID) != "" &&
		strings.TrimSpace(e.cfg.HashKey) != "" &&
		strings.HasPrefix(e.cfg.BaseURL, "http")
}

// Hash is SHA-256(amount || orderRefNum || storeId || hashKey).
func (e *EasyPaisa) Hash(amount, orderRef string) string {
	return security.SHA256Hex(amount + orderRef + e.cfg.StoreID + e.cfg.HashKey)
}

func (e *EasyPaisa) endpoint(path string) string {
	return strings.TrimRight(e.cfg.BaseURL, "/") + path
}

func (e *EasyPaisa) InitiatePayment(_ context.Context, req InitiateRequest) InitResult {
	amount := formatAmount(req.Amount)
	fields := map[string]string{
		"storeId":      e.cfg.StoreID,
		"amount":       amount,
		"postBackURL":  callbackURL(e.opts.CallbackBase, NameEasyPaisa),
		"orderRefNum":  req.TransactionID,
		"expiryDate":   e.opts.Now().Add(easyPaisaExpiry).Format(easyPaisaTimeLayout),
		"autoRedirect": "1",
		"emailAddr":    req.Customer.Email,
		"mobileNum":    req.Customer.Phone,
	}
	fields[easyPaisaHashField] = e.Hash(amount, req.TransactionID)
	return InitResult{
		Success:     true,
		RedirectURL: e.endpoint("/Index.jsf"),
		FormFields:  fields,
		Request:     toAnyMap(fields),
	}
}

// VerifyPayment always asks the inquiry API. The postback carries no
// signature, so its responseCode is never taken as the outcome.
func (e *EasyPaisa) VerifyPayment(ctx context.Context, req VerifyRequest) VerifyResult {
	return e.GetTransactionStatus(ctx, req.TransactionID, req.GatewayTransactionID)
}

func (e *EasyPaisa) GetTransactionStatus(ctx context.Context, transactionID, _ string) VerifyResult {
	resp, err := doJSON(ctx, e.opts.HTTPClient, http.MethodPost, e.endpoint("/api/inquire"), nil, map[string]string{
		"orderId": transactionID,
		"storeId": e.cfg.StoreID,
	})
	if err != nil {
		return VerifyResult{ErrorMessage: "easypaisa inquiry failed: " + err.Error()}
	}
	status := easyPaisaStatus.resolve(str(resp, "responseCode"))
	if status == enums.TransactionStatusCompleted {
		// the inquiry succeeded; the payment itself is in transactionStatus
		status = easyPaisaStatus.resolve(str(resp, "transactionStatus"))
	}
	return VerifyResult{
		Success:              true,
		Status:               status,
		GatewayTransactionID: str(resp, "transactionId"),
		Amount:               parseAmount(str(resp, "transactionAmount")),
		Raw:                  resp,
	}
}

func (e *EasyPaisa) ProcessCallback(_ context.Context, params map[string]string) CallbackResult {
	txID := params["orderRefNumber"]
	if txID == "" {
		txID = params["orderRefNum"]
	}
	return CallbackResult{
		Success:       txID != "" && easyPaisaStatus.resolve(params["responseCode"]) == enums.TransactionStatusCompleted,
		TransactionID: txID,
		Parsed:        params,
	}
}

func (e *EasyPaisa) VerifyWebhook(_ context.Context, rawBody []byte, _ http.Header) WebhookResult {
	fields, err := parseBody(rawBody)
	if err != nil {
		return WebhookResult{ErrorMessage: err.Error()}
	}
	txID := fields["orderRefNum"]
	if !security.EqualSignatures(fields[easyPaisaHashField], e.Hash(fields["amount"], txID)) {
		return WebhookResult{ErrorMessage: "signature mismatch"}
	}
	return WebhookResult{
		Valid:                true,
		TransactionID:        txID,
		Status:               easyPaisaStatus.resolve(fields["responseCode"]),
		GatewayTransactionID: fields["transactionRefNumber"],
		Amount:               parseAmount(fields["amount"]),
		Parsed:               toAnyMap(fields),
	}
}

func (e *EasyPaisa) Refund(context.Context, RefundRequest) RefundResult {
	return RefundResult{ErrorMessage: "easypaisa does not support refunds"}
}
