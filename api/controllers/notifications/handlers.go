package notifications

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/api/validators"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

type NotificationDTO struct {
	ID      uuid.UUID  `json:"id"`
	Message string     `json:"message"`
	IsRead  bool       `json:"is_read"`
	ReadAt  *time.Time `json:"read_at,omitempty"`
	SentAt  time.Time  `json:"sent_at"`
}

type listResponse struct {
	Items  []NotificationDTO `json:"items"`
	Unread int64             `json:"unread"`
}

type sendRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" validate:"required,min=1,max=1000"`
	Message string      `json:"message" validate:"required,max=5000"`
}

func toDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{ID: n.ID, Message: n.Message, IsRead: n.IsRead, ReadAt: n.ReadAt, SentAt: n.SentAt}
}

func callerID(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return userID, true
}

// List returns the caller's inbox, newest first.
func List(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		userID, ok := callerID(w, r, logg)
		if !ok {
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unreadOnly, err := validators.ParseQueryBool(r, "unread_only")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), notifications.ListParams{UserID: userID, Page: page, UnreadOnly: unreadOnly})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]NotificationDTO, 0, len(result.Items))
		for _, n := range result.Items {
			items = append(items, toDTO(n))
		}
		responses.WriteList(w, listResponse{Items: items, Unread: result.Unread}, result.Total)
	}
}

// MarkRead marks a notification as read for the caller.
func MarkRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		userID, ok := callerID(w, r, logg)
		if !ok {
			return
		}
		notificationID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.MarkRead(r.Context(), userID, notificationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"read": true})
	}
}

// MarkAllRead marks every unread notification as read for the caller.
func MarkAllRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		userID, ok := callerID(w, r, logg)
		if !ok {
			return
		}
		updated, err := svc.MarkAllRead(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"updated": updated})
	}
}

// Send posts an admin message to the listed users. Markup outside the
// allowed subset is rejected.
func Send(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		var body sendRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Notify(r.Context(), body.UserIDs, body.Message)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"sender":     middleware.UserIDFromContext(r.Context()).String(),
				"recipients": len(rows),
			})
			logg.Info(ctx, "admin notification sent")
		}
		responses.WriteSuccessDetail(w, http.StatusCreated, "notification sent", map[string]int{"sent": len(rows)})
	}
}
