package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/api/validators"
	internalorders "github.com/angelmondragon/marketcore-backend/internal/orders"
	pkgauth "github.com/angelmondragon/marketcore-backend/pkg/auth"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

// Create places an order. Anonymous callers place guest orders.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var customerID *uuid.UUID
		if id := middleware.UserIDFromContext(r.Context()); id != uuid.Nil {
			customerID = &id
		}

		order, err := svc.PlaceOrder(r.Context(), body.toInput(customerID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderDTO(order))
	}
}

// UpdateStatus moves an order and/or its payment status forward.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body statusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.OrderStatus == nil && body.PaymentStatus == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order_status or payment_status is required"))
			return
		}
		if body.OrderStatus != nil && !body.OrderStatus.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown order_status"))
			return
		}
		if body.PaymentStatus != nil && !body.PaymentStatus.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment_status"))
			return
		}

		actorID := middleware.UserIDFromContext(r.Context())
		order, err := svc.UpdateStatus(r.Context(), internalorders.StatusUpdate{
			OrderID:       orderID,
			OrderStatus:   body.OrderStatus,
			PaymentStatus: body.PaymentStatus,
			ActorID:       &actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderDTO(order))
	}
}

// Detail returns an order to its customer or an order manager.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, ok := loadVisibleOrder(w, r, svc, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, toOrderDTO(order))
	}
}

// History returns the status timestamps of an order.
func History(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, ok := loadVisibleOrder(w, r, svc, logg)
		if !ok {
			return
		}
		history, err := svc.History(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toHistoryDTO(history))
	}
}

// Tracking looks an order up by its public tracking number.
func Tracking(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		trackingNo := strings.TrimSpace(chi.URLParam(r, "tracking_no"))
		if trackingNo == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required"))
			return
		}
		order, err := svc.GetByTracking(r.Context(), strings.ToUpper(trackingNo))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderDTO(order))
	}
}

func Delete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteOrder(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessDetail(w, http.StatusOK, "order deleted", map[string]any{"id": orderID})
	}
}

// Mine lists the caller's own orders.
func Mine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		list(w, r, svc, logg, internalorders.ListFilters{CustomerID: &userID})
	}
}

// List is the back-office listing. shop_id and customer_id narrow it.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := validators.ParseQueryUUID(r, "shop_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customerID, err := validators.ParseQueryUUID(r, "customer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list(w, r, svc, logg, internalorders.ListFilters{ShopID: shopID, CustomerID: customerID})
	}
}

func list(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger, filters internalorders.ListFilters) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return
	}
	page, err := validators.ParsePage(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if raw := validators.ParseQueryString(r, "order_status"); raw != nil {
		status, err := enums.ParseOrderStatus(*raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_status"))
			return
		}
		filters.OrderStatus = &status
	}
	if raw := validators.ParseQueryString(r, "payment_status"); raw != nil {
		status, err := enums.ParsePaymentStatus(*raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status"))
			return
		}
		filters.PaymentStatus = &status
	}
	if raw := validators.ParseQueryString(r, "tracking_no"); raw != nil {
		filters.TrackingNo = *raw
	}

	rows, total, err := svc.List(r.Context(), filters, page)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteList(w, toOrderDTOs(rows), total)
}

func loadVisibleOrder(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger) (*models.Order, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return nil, false
	}
	orderID, err := validators.ParseUUIDParam(r, "id")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	order, err := svc.Get(r.Context(), orderID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	if !canView(r.Context(), order) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to caller"))
		return nil, false
	}
	return order, true
}

func canView(ctx context.Context, order *models.Order) bool {
	if middleware.HasPermission(ctx, pkgauth.PermissionOrderManage) {
		return true
	}
	userID := middleware.UserIDFromContext(ctx)
	return userID != uuid.Nil && order.CustomerID != nil && *order.CustomerID == userID
}
