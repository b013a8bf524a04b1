package cron

import (
	"context"
	"fmt"
	"html"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

const defaultLowStockThreshold = 10

type stockAlertRepo interface {
	LowStockProducts(ctx context.Context, threshold int) ([]stockAlert, error)
	ShopOwners(ctx context.Context, shopIDs []uuid.UUID) (map[uuid.UUID]Recipient, error)
}

type StockAlertJobParams struct {
	Logger     *logger.Logger
	Repository stockAlertRepo
	Notifier   notifier
	Mailer     emailSender
	Threshold  int
}

// NewStockAlertJob tells shop owners which products are low or out of stock.
func NewStockAlertJob(params StockAlertJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("cron repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	threshold := params.Threshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	return &stockAlertJob{
		logg:      params.Logger,
		repo:      params.Repository,
		notifier:  params.Notifier,
		mailer:    params.Mailer,
		threshold: threshold,
	}, nil
}

type stockAlertJob struct {
	logg      *logger.Logger
	repo      stockAlertRepo
	notifier  notifier
	mailer    emailSender
	threshold int
}

func (j *stockAlertJob) Name() string { return "stock-alerts" }

func (j *stockAlertJob) Run(ctx context.Context) error {
	alerts, err := j.repo.LowStockProducts(ctx, j.threshold)
	if err != nil {
		return fmt.Errorf("list low stock products: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}
	shopIDs := make([]uuid.UUID, 0, len(alerts))
	for _, alert := range alerts {
		shopIDs = append(shopIDs, alert.ShopID)
	}
	owners, err := j.repo.ShopOwners(ctx, shopIDs)
	if err != nil {
		return fmt.Errorf("load shop owners: %w", err)
	}

	var errs error
	low, out := 0, 0
	for _, alert := range alerts {
		owner, ok := owners[alert.ShopID]
		if !ok {
			continue
		}
		name := html.EscapeString(alert.Name)
		template := notifications.TemplateLowStock
		msg := fmt.Sprintf("<b>%s</b> is running low: %d left.", name, alert.Quantity)
		if alert.Quantity <= 0 {
			template = notifications.TemplateOutOfStock
			msg = fmt.Sprintf("<b>%s</b> is out of stock.", name)
			out++
		} else {
			low++
		}
		if _, err := j.notifier.Notify(ctx, []uuid.UUID{owner.UserID}, msg); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("product %s: %w", alert.ProductID, err))
			continue
		}
		if j.mailer == nil || owner.Email == "" {
			continue
		}
		err := j.mailer.Send(ctx, template, owner.Email, owner.Name, map[string]string{
			"name":     owner.Name,
			"product":  alert.Name,
			"quantity": strconv.Itoa(alert.Quantity),
		})
		errs = multierr.Append(errs, err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"threshold":    j.threshold,
		"low_stock":    low,
		"out_of_stock": out,
	})
	j.logg.Info(logCtx, "stock alerts sent")
	return errs
}
