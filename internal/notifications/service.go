package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

// Service defines the in-app inbox.
type Service interface {
	Notify(ctx context.Context, userIDs []uuid.UUID, message string) ([]models.Notification, error)
	NotifyTx(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID, message string) ([]models.Notification, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Page       pagination.Params
	UnreadOnly bool
}

// ListResult wraps returned notifications and the total row count.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Total  int64                 `json:"total"`
	Unread int64                 `json:"unread"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

// maxRecipients bounds one Notify call; larger audiences are split by the
// caller.
const maxRecipients = 1000

// Notify sanitises message once and stores one row per distinct user.
func (s *service) Notify(ctx context.Context, userIDs []uuid.UUID, message string) ([]models.Notification, error) {
	return s.NotifyTx(ctx, nil, userIDs, message)
}

func (s *service) NotifyTx(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID, message string) ([]models.Notification, error) {
	clean, err := Sanitize(message)
	if err != nil {
		return nil, err
	}
	recipients := uniqueRecipients(userIDs)
	switch {
	case len(recipients) == 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one recipient required")
	case len(recipients) > maxRecipients:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d recipients per notification", maxRecipients)
	}

	now := s.now()
	rows := make([]models.Notification, len(recipients))
	for i, id := range recipients {
		rows[i] = models.Notification{UserID: id, Message: clean, SentAt: now}
	}
	if err := s.repo.WithTx(tx).CreateMany(ctx, rows); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notifications")
	}
	return rows, nil
}

// uniqueRecipients drops nil ids and duplicates, keeping first-seen order.
func uniqueRecipients(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == uuid.Nil {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func requireID(id uuid.UUID, what string) error {
	if id == uuid.Nil {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "%s id required", what)
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if err := requireID(params.UserID, "user"); err != nil {
		return nil, err
	}
	rows, total, err := s.repo.List(ctx, listNotificationsParams(params))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	unread, err := s.UnreadCount(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: rows, Total: total, Unread: unread}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if err := multierr.Combine(requireID(userID, "user"), requireID(notificationID, "notification")); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "mark notification read")
	}
	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

// MarkAllRead returns how many notifications changed.
func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if err := requireID(userID, "user"); err != nil {
		return 0, err
	}
	count, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	return count, nil
}
