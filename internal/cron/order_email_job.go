package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

const (
	defaultOrderEmailWindow = 10 * time.Minute
	orderEmailBatch         = 200
)

type orderEmailRepo interface {
	PendingOrderEmails(ctx context.Context, since time.Time, limit int) ([]models.Order, error)
	MarkOrderEmailSent(ctx context.Context, orderID uuid.UUID) error
	ShopOwners(ctx context.Context, shopIDs []uuid.UUID) (map[uuid.UUID]Recipient, error)
}

// OrderEmailJobParams configure the new-order email rescan.
type OrderEmailJobParams struct {
	Logger        *logger.Logger
	Repository    orderEmailRepo
	Mailer        emailSender
	StorefrontURL string
	Window        time.Duration
}

// NewOrderEmailJob builds the job that emails shop owners about orders placed
// in the recent window. An order is flagged email_sent once every owner was
// reached, so a failed send is retried on the next tick while the order is
// still inside the window.
func NewOrderEmailJob(params OrderEmailJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("cron repository required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultOrderEmailWindow
	}
	return &orderEmailJob{
		logg:   params.Logger,
		repo:   params.Repository,
		mailer: params.Mailer,
		links:  strings.TrimRight(params.StorefrontURL, "/"),
		window: window,
		now:    time.Now,
	}, nil
}

type orderEmailJob struct {
	logg   *logger.Logger
	repo   orderEmailRepo
	mailer emailSender
	links  string
	window time.Duration
	now    func() time.Time
}

func (j *orderEmailJob) Name() string { return "order-emails" }

func (j *orderEmailJob) Run(ctx context.Context) error {
	orders, err := j.repo.PendingOrderEmails(ctx, j.now().UTC().Add(-j.window), orderEmailBatch)
	if err != nil {
		return fmt.Errorf("list pending order emails: %w", err)
	}

	var errs error
	sent := 0
	for i := range orders {
		order := &orders[i]
		if err := j.sendOrder(ctx, order); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.TrackingNo, err))
			continue
		}
		if err := j.repo.MarkOrderEmailSent(ctx, order.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mark order %s emailed: %w", order.TrackingNo, err))
			continue
		}
		sent++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"orders_scanned": len(orders),
		"orders_emailed": sent,
	})
	j.logg.Info(logCtx, "order email rescan complete")
	return errs
}

func (j *orderEmailJob) sendOrder(ctx context.Context, order *models.Order) error {
	shopIDs := orderShops(order)
	owners, err := j.repo.ShopOwners(ctx, shopIDs)
	if err != nil {
		return fmt.Errorf("load shop owners: %w", err)
	}
	var errs error
	for _, shopID := range shopIDs {
		owner, ok := owners[shopID]
		if !ok || owner.Email == "" {
			continue
		}
		err := j.mailer.Send(ctx, notifications.TemplateShopNewOrder, owner.Email, owner.Name, map[string]string{
			"name":        owner.Name,
			"tracking_no": order.TrackingNo,
			"total":       order.Total.StringFixed(2),
			"link":        j.links + "/shop/orders/" + order.ID.String(),
		})
		errs = multierr.Append(errs, err)
	}
	return errs
}

func orderShops(order *models.Order) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	add := func(id *uuid.UUID) {
		if id == nil || *id == uuid.Nil {
			return
		}
		if _, ok := seen[*id]; ok {
			return
		}
		seen[*id] = struct{}{}
		out = append(out, *id)
	}
	add(order.ShopID)
	for i := range order.Lines {
		add(order.Lines[i].ShopID)
	}
	return out
}
