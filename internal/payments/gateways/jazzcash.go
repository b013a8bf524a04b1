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
	jazzCashHashField  = "pp_SecureHash"
	jazzCashTimeLayout = "20060102150405"
	jazzCashExpiry     = time.Hour
)

var jazzCashStatus = statusMap{success: []string{"000"}, pending: []string{"124", "157"}}

// JazzCash hashes with HMAC-SHA256 keyed by the integrity salt over the salt
// followed by every non-empty field value in key order, joined by '&'.
// Amounts travel in paisa.
type JazzCash struct {
	cfg  config.JazzCashConfig
	opts Options
}

func NewJazzCash(cfg config.JazzCashConfig, opts Options) *JazzCash {
	return &JazzCash{cfg: cfg, opts: opts.normalized()}
}

func (j *JazzCash) Metadata() Metadata {
	return Metadata{
		Name:                  NameJazzCash,
		FlowType:              enums.GatewayFlowRedirect,
		Currency:              j.opts.Currency,
		SupportsRefund:        true,
		SupportsPartialRefund: true,
	}
}

func (j *JazzCash) Initialize() bool {
	return strings.TrimSpace(j.cfg.MerchantID) != "" &&
		strings.TrimSpace(j.cfg.Password) != "" &&
		strings.TrimSpace(j.cfg.IntegritySalt) != "" &&
		strings.HasPrefix(j.cfg.BaseURL, "http")
}

// Sign returns the uppercase pp_SecureHash for fields.
func (j *JazzCash) Sign(fields map[string]string) string {
	keys := sortedKeys(fields, jazzCashHashField)
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, j.cfg.IntegritySalt)
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	return strings.ToUpper(security.HMACSHA256Hex(j.cfg.IntegritySalt, strings.Join(parts, "&")))
}

func (j *JazzCash) endpoint(path string) string {
	return strings.TrimRight(j.cfg.BaseURL, "/") + path
}

func (j *JazzCash) baseFields(txID string) map[string]string {
	return map[string]string{
		"pp_Version":    "1.1",
		"pp_Language":   "EN",
		"pp_MerchantID": j.cfg.MerchantID,
		"pp_Password":   j.cfg.Password,
		"pp_TxnRefNo":   txID,
	}
}

func (j *JazzCash) InitiatePayment(_ context.Context, req InitiateRequest) InitResult {
	now := j.opts.Now()
	fields := j.baseFields(req.TransactionID)
	fields["pp_TxnType"] = "MWALLET"
	fields["pp_Amount"] = formatMinor(req.Amount)
	fields["pp_TxnCurrency"] = j.opts.Currency
	fields["pp_TxnDateTime"] = now.Format(jazzCashTimeLayout)
	fields["pp_TxnExpiryDateTime"] = now.Add(jazzCashExpiry).Format(jazzCashTimeLayout)
	fields["pp_BillReference"] = "order" + strings.ReplaceAll(req.OrderID.String(), "-", "")[:12]
	fields["pp_Description"] = req.Description
	fields["pp_ReturnURL"] = callbackURL(j.opts.CallbackBase, NameJazzCash)
	fields["ppmpf_1"] = req.Customer.Phone
	fields[jazzCashHashField] = j.Sign(fields)

	request := toAnyMap(fields)
	delete(request, "pp_Password")
	return InitResult{
		Success:     true,
		RedirectURL: j.endpoint("/CustomerPortal/transactionmanagement/merchantform/"),
		FormFields:  fields,
		Request:     request,
	}
}

func (j *JazzCash) VerifyPayment(ctx context.Context, req VerifyRequest) VerifyResult {
	if code := req.Data["pp_ResponseCode"]; code != "" {
		if req.Data["pp_TxnRefNo"] != req.TransactionID {
			return rejectCallback(NameJazzCash, "reference does not match the transaction")
		}
		hash := req.Data[jazzCashHashField]
		if hash == "" || !security.EqualSignatures(hash, j.Sign(req.Data)) {
			return rejectCallback(NameJazzCash, "secure hash mismatch")
		}
		return VerifyResult{
			Success:              true,
			Status:               jazzCashStatus.resolve(code),
			GatewayTransactionID: req.Data["pp_RetreivalReferenceNo"],
			Amount:               parseMinorAmount(req.Data["pp_Amount"]),
			Raw:                  toAnyMap(req.Data),
		}
	}
	return j.GetTransactionStatus(ctx, req.TransactionID, req.GatewayTransactionID)
}

func (j *JazzCash) GetTransactionStatus(ctx context.Context, transactionID, _ string) VerifyResult {
	fields := j.baseFields(transactionID)
	fields[jazzCashHashField] = j.Sign(fields)
	resp, err := doJSON(ctx, j.opts.HTTPClient, http.MethodPost,
		j.endpoint("/ApplicationAPI/API/PaymentInquiry/Inquire"), nil, fields)
	if err != nil {
		return VerifyResult{ErrorMessage: "jazzcash inquiry failed: " + err.Error()}
	}
	code := str(resp, "pp_PaymentResponseCode")
	if code == "" {
		code = str(resp, "pp_ResponseCode")
	}
	return VerifyResult{
		Success:              true,
		Status:               jazzCashStatus.resolve(code),
		GatewayTransactionID: str(resp, "pp_RetreivalReferenceNo"),
		Amount:               parseMinorAmount(str(resp, "pp_Amount")),
		Raw:                  resp,
	}
}

func (j *JazzCash) ProcessCallback(_ context.Context, params map[string]string) CallbackResult {
	txID := params["pp_TxnRefNo"]
	return CallbackResult{
		Success:       txID != "" && jazzCashStatus.resolve(params["pp_ResponseCode"]) == enums.TransactionStatusCompleted,
		TransactionID: txID,
		Parsed:        params,
	}
}

func (j *JazzCash) VerifyWebhook(_ context.Context, rawBody []byte, _ http.Header) WebhookResult {
	fields, err := parseBody(rawBody)
	if err != nil {
		return WebhookResult{ErrorMessage: err.Error()}
	}
	if !security.EqualSignatures(fields[jazzCashHashField], j.Sign(fields)) {
		return WebhookResult{ErrorMessage: "signature mismatch"}
	}
	return WebhookResult{
		Valid:                true,
		TransactionID:        fields["pp_TxnRefNo"],
		Status:               jazzCashStatus.resolve(fields["pp_ResponseCode"]),
		GatewayTransactionID: fields["pp_RetreivalReferenceNo"],
		Amount:               parseMinorAmount(fields["pp_Amount"]),
		Parsed:               toAnyMap(fields),
	}
}

func (j *JazzCash) Refund(ctx context.Context, req RefundRequest) RefundResult {
	fields := j.baseFields(req.TransactionID)
	if req.Amount != nil {
		fields["pp_Amount"] = formatMinor(*req.Amount)
	}
	fields["pp_TxnCurrency"] = j.opts.Currency
	fields[jazzCashHashField] = j.Sign(fields)

	resp, err := doJSON(ctx, j.opts.HTTPClient, http.MethodPost,
		j.endpoint("/ApplicationAPI/API/Purchase/Refund"), nil, fields)
	if err != nil {
		return RefundResult{ErrorMessage: "jazzcash refund failed: " + err.Error()}
	}
	if jazzCashStatus.resolve(str(resp, "pp_ResponseCode")) != enums.TransactionStatusCompleted {
		return RefundResult{Raw: resp, ErrorMessage: "jazzcash refund declined: " + str(resp, "pp_ResponseMessage")}
	}
	result := RefundResult{Success: true, RefundID: str(resp, "pp_RetreivalReferenceNo"), Raw: resp}
	if req.Amount != nil {
		result.Amount = *req.Amount
	}
	return result
}
