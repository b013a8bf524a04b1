package cron

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

const (
	defaultWishlistAfter = 7 * 24 * time.Hour
	defaultCartAfter     = 2 * 24 * time.Hour
	reminderBatch        = 500
)

type reminderRepo interface {
	Users(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Recipient, error)
	DueWishlistItems(ctx context.Context, cutoff time.Time, limit int) ([]dueWishlistItem, error)
	StampWishlist(ctx context.Context, ids []uuid.UUID, now time.Time) error
	DueCartItems(ctx context.Context, cutoff time.Time, limit int) ([]dueCartItem, error)
	StampCart(ctx context.Context, ids []uuid.UUID, now time.Time) error
}

// ReminderJobParams configure the wishlist and cart reminder jobs.
type ReminderJobParams struct {
	Logger        *logger.Logger
	Repository    reminderRepo
	Notifier      notifier
	Mailer        emailSender
	StorefrontURL string
	After         time.Duration
}

func (p ReminderJobParams) validate() error {
	if p.Logger == nil {
		return fmt.Errorf("logger required")
	}
	if p.Repository == nil {
		return fmt.Errorf("cron repository required")
	}
	if p.Notifier == nil {
		return fmt.Errorf("notifier required")
	}
	return nil
}

// NewWishlistReminderJob nudges users about products sitting on their
// wishlist. Each entry is reminded at most once per period.
func NewWishlistReminderJob(params ReminderJobParams) (Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	after := params.After
	if after <= 0 {
		after = defaultWishlistAfter
	}
	return &wishlistReminderJob{
		logg:     params.Logger,
		repo:     params.Repository,
		notifier: params.Notifier,
		mailer:   params.Mailer,
		links:    strings.TrimRight(params.StorefrontURL, "/"),
		after:    after,
		now:      time.Now,
	}, nil
}

type wishlistReminderJob struct {
	logg     *logger.Logger
	repo     reminderRepo
	notifier notifier
	mailer   emailSender
	links    string
	after    time.Duration
	now      func() time.Time
}

func (j *wishlistReminderJob) Name() string { return "wishlist-reminder" }

func (j *wishlistReminderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	items, err := j.repo.DueWishlistItems(ctx, now.Add(-j.after), reminderBatch)
	if err != nil {
		return fmt.Errorf("list due wishlist items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	userIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		userIDs = append(userIDs, item.UserID)
	}
	users, err := j.repo.Users(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("load wishlist users: %w", err)
	}

	var (
		errs     error
		reminded []uuid.UUID
	)
	for _, item := range items {
		msg := fmt.Sprintf("<b>%s</b> is still on your wishlist.", html.EscapeString(item.ProductName))
		if _, err := j.notifier.Notify(ctx, []uuid.UUID{item.UserID}, msg); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("wishlist item %s: %w", item.ID, err))
			continue
		}
		reminded = append(reminded, item.ID)
		user, ok := users[item.UserID]
		if !ok || j.mailer == nil {
			continue
		}
		err := j.mailer.Send(ctx, notifications.TemplateWishlistReminder, user.Email, user.Name, map[string]string{
			"name":    user.Name,
			"product": item.ProductName,
			"link":    j.links + "/products/" + item.ProductID.String(),
		})
		errs = multierr.Append(errs, err)
	}
	if err := j.repo.StampWishlist(ctx, reminded, now); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("stamp wishlist reminders: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"due": len(items), "reminded": len(reminded)})
	j.logg.Info(logCtx, "wishlist reminders sent")
	return errs
}

// NewCartReminderJob nudges users with idle carts, one message per user.
func NewCartReminderJob(params ReminderJobParams) (Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	after := params.After
	if after <= 0 {
		after = defaultCartAfter
	}
	return &cartReminderJob{
		logg:     params.Logger,
		repo:     params.Repository,
		notifier: params.Notifier,
		mailer:   params.Mailer,
		links:    strings.TrimRight(params.StorefrontURL, "/"),
		after:    after,
		now:      time.Now,
	}, nil
}

type cartReminderJob struct {
	logg     *logger.Logger
	repo     reminderRepo
	notifier notifier
	mailer   emailSender
	links    string
	after    time.Duration
	now      func() time.Time
}

func (j *cartReminderJob) Name() string { return "cart-reminder" }

func (j *cartReminderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	items, err := j.repo.DueCartItems(ctx, now.Add(-j.after), reminderBatch)
	if err != nil {
		return fmt.Errorf("list due cart items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	byUser := make(map[uuid.UUID][]uuid.UUID)
	var order []uuid.UUID
	for _, item := range items {
		if _, ok := byUser[item.UserID]; !ok {
			order = append(order, item.UserID)
		}
		byUser[item.UserID] = append(byUser[item.UserID], item.ID)
	}
	users, err := j.repo.Users(ctx, order)
	if err != nil {
		return fmt.Errorf("load cart users: %w", err)
	}

	var errs error
	reminded := 0
	for _, userID := range order {
		ids := byUser[userID]
		count := strconv.Itoa(len(ids))
		msg := fmt.Sprintf("You have <b>%s</b> item(s) waiting in your cart.", count)
		if _, err := j.notifier.Notify(ctx, []uuid.UUID{userID}, msg); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cart of %s: %w", userID, err))
			continue
		}
		if err := j.repo.StampCart(ctx, ids, now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stamp cart of %s: %w", userID, err))
		}
		reminded++
		user, ok := users[userID]
		if !ok || j.mailer == nil {
			continue
		}
		err := j.mailer.Send(ctx, notifications.TemplateCartReminder, user.Email, user.Name, map[string]string{
			"name":  user.Name,
			"count": count,
			"link":  j.links + "/cart",
		})
		errs = multierr.Append(errs, err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"users_due": len(order), "users_reminded": reminded})
	j.logg.Info(logCtx, "cart reminders sent")
	return errs
}
