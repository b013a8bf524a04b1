package returns

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/api/validators"
	internalreturns "github.com/angelmondragon/marketcore-backend/internal/returns"
	pkgauth "github.com/angelmondragon/marketcore-backend/pkg/auth"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

type Service interface {
	Create(ctx context.Context, input internalreturns.CreateInput) (*models.ReturnRequest, error)
	Approve(ctx context.Context, input internalreturns.ReviewInput) (*models.ReturnRequest, error)
	Reject(ctx context.Context, input internalreturns.ReviewInput) (*models.ReturnRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	List(ctx context.Context, filters internalreturns.ListFilters, page pagination.Params) ([]models.ReturnRequest, int64, error)
}

// Request opens a return for the caller's own order.
func Request(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var body createRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]internalreturns.ItemInput, 0, len(body.Items))
		for _, item := range body.Items {
			items = append(items, internalreturns.ItemInput{OrderLineID: item.OrderLineID, Quantity: item.Quantity})
		}

		ret, err := svc.Create(r.Context(), internalreturns.CreateInput{
			OrderID: body.OrderID,
			UserID:  userID,
			Type:    body.Type,
			Reason:  validators.SanitizeString(body.Reason, 2000),
			Items:   items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toReturnDTO(ret))
	}
}

func Approve(svc Service, logg *logger.Logger) http.HandlerFunc {
	return review(svc, logg, func(ctx context.Context, in internalreturns.ReviewInput) (*models.ReturnRequest, error) {
		return svc.Approve(ctx, in)
	})
}

func Reject(svc Service, logg *logger.Logger) http.HandlerFunc {
	return review(svc, logg, func(ctx context.Context, in internalreturns.ReviewInput) (*models.ReturnRequest, error) {
		return svc.Reject(ctx, in)
	})
}

type reviewFunc func(context.Context, internalreturns.ReviewInput) (*models.ReturnRequest, error)

func review(svc Service, logg *logger.Logger, fn reviewFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body reviewRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		ret, err := fn(r.Context(), internalreturns.ReviewInput{
			ReturnID: returnID,
			ActorID:  middleware.UserIDFromContext(r.Context()),
			Note:     validators.SanitizeString(body.Note, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toReturnDTO(ret))
	}
}

// Detail shows a return to its requester or a reviewer.
func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ret, err := svc.Get(r.Context(), returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if ret.UserID != middleware.UserIDFromContext(r.Context()) && !middleware.HasPermission(r.Context(), pkgauth.PermissionReturnReview) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "return belongs to another customer"))
			return
		}
		responses.WriteSuccess(w, toReturnDTO(ret))
	}
}

// Mine lists the caller's returns.
func Mine(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		list(w, r, svc, logg, internalreturns.ListFilters{UserID: &userID})
	}
}

// List is the reviewer queue; status and order_id narrow it.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseQueryUUID(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list(w, r, svc, logg, internalreturns.ListFilters{OrderID: orderID})
	}
}

func list(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger, filters internalreturns.ListFilters) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
		return
	}
	page, err := validators.ParsePage(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if raw := validators.ParseQueryString(r, "status"); raw != nil {
		status, err := enums.ParseReturnStatus(*raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		filters.Status = &status
	}
	rows, total, err := svc.List(r.Context(), filters, page)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	out := make([]ReturnDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toReturnDTO(&rows[i]))
	}
	responses.WriteList(w, out, total)
}
