package payments

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/api/validators"
	internalpayments "github.com/angelmondragon/marketcore-backend/internal/payments"
	"github.com/angelmondragon/marketcore-backend/internal/payments/gateways"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

const maxWebhookBytes = 1 << 20

// Service is the orchestrator surface used by the HTTP layer.
type Service interface {
	Catalogue() []gateways.Metadata
	Initiate(ctx context.Context, input internalpayments.InitiateInput) (*internalpayments.InitiateResult, error)
	Verify(ctx context.Context, transactionID string) (*models.PaymentTransaction, error)
	ProcessCallback(ctx context.Context, gateway string, params map[string]string) (*models.PaymentTransaction, error)
	ProcessWebhook(ctx context.Context, gateway string, rawBody []byte, headers http.Header) (*internalpayments.WebhookOutcome, error)
	Refund(ctx context.Context, input internalpayments.RefundInput) (*models.PaymentTransaction, error)
	Get(ctx context.Context, transactionID string) (*models.PaymentTransaction, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error)
}

// Gateways lists the enabled providers.
func Gateways(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.Catalogue())
	}
}

func Initiate(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var body initiateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var amount *decimal.Decimal
		if body.Amount != nil {
			amount = &body.Amount.Decimal
		}
		result, err := svc.Initiate(r.Context(), internalpayments.InitiateInput{
			OrderID: body.OrderID,
			Gateway: strings.ToLower(strings.TrimSpace(body.Gateway)),
			Amount:  amount,
			Customer: gateways.Customer{
				Name:  validators.SanitizeString(body.Customer.Name, 255),
				Email: strings.TrimSpace(body.Customer.Email),
				Phone: strings.TrimSpace(body.Customer.Phone),
			},
			Description: validators.SanitizeString(body.Description, 255),
			CustomerIP:  clientIP(r),
			UserAgent:   r.UserAgent(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn := result.Transaction
		responses.WriteSuccessStatus(w, http.StatusCreated, InitiateResponse{
			TransactionID: txn.TransactionID,
			FlowType:      txn.FlowType,
			RedirectURL:   result.RedirectURL,
			PaymentData:   result.FormFields,
			Amount:        types.NewMoney(txn.Amount),
			Currency:      txn.Currency,
		})
	}
}

// Verify re-checks a transaction with its provider. The request body is
// ignored; the outcome comes from the provider's status API.
func Verify(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		txn, err := svc.Verify(r.Context(), chi.URLParam(r, "transaction_id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionDTO(txn))
	}
}

// Callback is where redirect gateways send the buyer back. It always answers
// with a redirect to the storefront result page.
func Callback(svc Service, storefrontURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gateway := strings.ToLower(chi.URLParam(r, "gateway"))
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "gateway", gateway)
		}

		target := resultURL(storefrontURL, "", "error")
		if svc == nil {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			if logg != nil {
				logg.Warn(ctx, "unreadable payment callback")
			}
			http.Redirect(w, r, target, http.StatusFound)
			return
		}

		params := make(map[string]string, len(r.Form))
		for key, values := range r.Form {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		txn, err := svc.ProcessCallback(ctx, gateway, params)
		if err != nil {
			if logg != nil {
				logg.Error(ctx, "payment callback failed", err)
			}
		} else {
			target = resultURL(storefrontURL, txn.TransactionID, string(txn.Status))
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// Webhook applies a provider notification. Only an unauthenticated or
// malformed delivery gets a 400, and infrastructure failures a 5xx so the
// provider retries. Business rejections are logged and acknowledged.
func Webhook(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		gateway := strings.ToLower(chi.URLParam(r, "gateway"))
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "gateway", gateway)
		}

		raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		outcome, err := svc.ProcessWebhook(ctx, gateway, raw, r.Header)
		if err != nil {
			switch code := codeOf(err); code {
			case pkgerrors.CodeValidation, pkgerrors.CodeDependency, pkgerrors.CodeInternal:
				responses.WriteError(ctx, logg, w, err)
			default:
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error_code", string(code)), "webhook acknowledged without effect: "+err.Error())
				}
				responses.WriteSuccessDetail(w, http.StatusOK, "ignored", nil)
			}
			return
		}

		detail := "processed"
		if outcome.Duplicate {
			detail = "duplicate"
		}
		responses.WriteSuccessDetail(w, http.StatusOK, detail, toTransactionDTO(outcome.Transaction))
	}
}

func Refund(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		var body refundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var amount *decimal.Decimal
		if body.Amount != nil {
			amount = &body.Amount.Decimal
		}
		txn, err := svc.Refund(r.Context(), internalpayments.RefundInput{
			TransactionID: strings.TrimSpace(body.TransactionID),
			Amount:        amount,
			Reason:        validators.SanitizeString(body.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionDTO(txn))
	}
}

func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		txn, err := svc.Get(r.Context(), chi.URLParam(r, "transaction_id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionDTO(txn))
	}
}

// ForOrder lists every attempt made for an order.
func ForOrder(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListForOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]TransactionDTO, 0, len(rows))
		for i := range rows {
			out = append(out, toTransactionDTO(&rows[i]))
		}
		responses.WriteList(w, out, int64(len(out)))
	}
}

func codeOf(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return pkgerrors.CodeInternal
}

func resultURL(base, transactionID, status string) string {
	q := url.Values{}
	if transactionID != "" {
		q.Set("transaction_id", transactionID)
	}
	q.Set("status", status)
	return strings.TrimRight(base, "/") + "/payment/result?" + q.Encode()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
