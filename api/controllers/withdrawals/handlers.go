package withdrawals

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/api/validators"
	"github.com/angelmondragon/marketcore-backend/internal/settlement"
	pkgauth "github.com/angelmondragon/marketcore-backend/pkg/auth"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

type Service interface {
	Balance(ctx context.Context, shopID uuid.UUID) (*settlement.Balance, error)
	RequestWithdrawal(ctx context.Context, input settlement.WithdrawalInput) (*models.ShopWithdrawRequest, error)
	ApproveWithdrawal(ctx context.Context, id, actor uuid.UUID) (*models.ShopWithdrawRequest, error)
	RejectWithdrawal(ctx context.Context, id, actor uuid.UUID, reason string) (*models.ShopWithdrawRequest, error)
	ProcessWithdrawal(ctx context.Context, id, actor uuid.UUID) (*models.ShopWithdrawRequest, error)
	CanManageShop(ctx context.Context, shopID, userID uuid.UUID) (bool, error)
	ListWithdrawals(ctx context.Context, shopID uuid.UUID, status *enums.WithdrawStatus, page pagination.Params) ([]models.ShopWithdrawRequest, int64, error)
	ListEarnings(ctx context.Context, shopID uuid.UUID, page pagination.Params) ([]models.ShopEarning, int64, error)
}

func unavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable")
}

// authorizeShop lets shop owners and staff through, and reviewers for any shop.
func authorizeShop(ctx context.Context, svc Service, shopID uuid.UUID) error {
	if middleware.HasPermission(ctx, pkgauth.PermissionWithdrawReview) {
		return nil
	}
	userID := middleware.UserIDFromContext(ctx)
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	ok, err := svc.CanManageShop(ctx, shopID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not a member of this shop")
	}
	return nil
}

func Balance(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		shopID, err := validators.ParseUUIDParam(r, "shop_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeShop(r.Context(), svc, shopID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.Balance(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// Request files a payout for a shop. Reviewers may file on a shop's behalf.
func Request(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		var body withdrawRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := svc.RequestWithdrawal(r.Context(), settlement.WithdrawalInput{
			ShopID:        body.ShopID,
			RequestedBy:   userID,
			AsAdmin:       middleware.HasPermission(r.Context(), pkgauth.PermissionWithdrawReview),
			Amount:        body.Amount.Decimal,
			PaymentMethod: body.PaymentMethod,
			BankName:      body.BankName,
			AccountTitle:  body.AccountTitle,
			AccountNumber: body.AccountNumber,
			IBAN:          body.IBAN,
			Note:          body.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toWithdrawalDTO(req))
	}
}

type transitionFunc func(ctx context.Context, id, actor uuid.UUID, r *http.Request) (*models.ShopWithdrawRequest, error)

func transition(svc Service, logg *logger.Logger, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := fn(r.Context(), id, middleware.UserIDFromContext(r.Context()), r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toWithdrawalDTO(req))
	}
}

func Approve(svc Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(ctx context.Context, id, actor uuid.UUID, _ *http.Request) (*models.ShopWithdrawRequest, error) {
		return svc.ApproveWithdrawal(ctx, id, actor)
	})
}

func Reject(svc Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(ctx context.Context, id, actor uuid.UUID, r *http.Request) (*models.ShopWithdrawRequest, error) {
		var body rejectRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.RejectWithdrawal(ctx, id, actor, validators.SanitizeString(body.Reason, 1000))
	})
}

// Process marks an approved payout as paid out and settles the oldest earnings.
func Process(svc Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(ctx context.Context, id, actor uuid.UUID, _ *http.Request) (*models.ShopWithdrawRequest, error) {
		return svc.ProcessWithdrawal(ctx, id, actor)
	})
}

func ShopWithdrawals(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		shopID, page, ok := shopPage(w, r, svc, logg)
		if !ok {
			return
		}
		var status *enums.WithdrawStatus
		if raw := validators.ParseQueryString(r, "status"); raw != nil {
			parsed, err := enums.ParseWithdrawStatus(*raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = &parsed
		}
		rows, total, err := svc.ListWithdrawals(r.Context(), shopID, status, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]WithdrawalDTO, 0, len(rows))
		for i := range rows {
			out = append(out, toWithdrawalDTO(&rows[i]))
		}
		responses.WriteList(w, out, total)
	}
}

func ShopEarnings(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		shopID, page, ok := shopPage(w, r, svc, logg)
		if !ok {
			return
		}
		rows, total, err := svc.ListEarnings(r.Context(), shopID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]EarningDTO, 0, len(rows))
		for i := range rows {
			out = append(out, toEarningDTO(&rows[i]))
		}
		responses.WriteList(w, out, total)
	}
}

func shopPage(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (uuid.UUID, pagination.Params, bool) {
	shopID, err := validators.ParseUUIDParam(r, "shop_id")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, pagination.Params{}, false
	}
	page, err := validators.ParsePage(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, pagination.Params{}, false
	}
	if err := authorizeShop(r.Context(), svc, shopID); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, pagination.Params{}, false
	}
	return shopID, page, true
}
