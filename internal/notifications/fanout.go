package notifications

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
)

// Audience says why a user receives a notification.
type Audience string

const (
	AudienceCustomer Audience = "customer"
	AudienceShop     Audience = "shop"
	AudienceAdmin    Audience = "admin"
)

// Recipient is one notification to deliver. ShopID is set for shop audience
// rows so a user who works for two shops hears about each.
type Recipient struct {
	UserID   uuid.UUID
	Audience Audience
	ShopID   *uuid.UUID
}

// Plan describes who hears about an event.
type Plan struct {
	Customer *uuid.UUID
	ShopIDs  []uuid.UUID
	Members  map[uuid.UUID][]uuid.UUID
	Admins   []uuid.UUID
	// SkipNotifiedAdmins drops admins who already got a customer or shop
	// notification for the same event.
	SkipNotifiedAdmins bool
}

// Recipients expands p. The customer is never notified again as a shop user,
// each (user, shop) pair is notified once, and admins follow
// SkipNotifiedAdmins.
func (p Plan) Recipients() []Recipient {
	var out []Recipient
	notified := make(map[uuid.UUID]struct{})
	if p.Customer != nil && *p.Customer != uuid.Nil {
		out = append(out, Recipient{UserID: *p.Customer, Audience: AudienceCustomer})
		notified[*p.Customer] = struct{}{}
	}

	type pair struct{ user, shop uuid.UUID }
	pairs := make(map[pair]struct{})
	shopUsers := make(map[uuid.UUID]struct{})
	for _, shopID := range p.ShopIDs {
		shopID := shopID
		for _, userID := range p.Members[shopID] {
			if p.Customer != nil && userID == *p.Customer {
				continue
			}
			key := pair{user: userID, shop: shopID}
			if _, dup := pairs[key]; dup {
				continue
			}
			pairs[key] = struct{}{}
			shopUsers[userID] = struct{}{}
			out = append(out, Recipient{UserID: userID, Audience: AudienceShop, ShopID: &shopID})
		}
	}
	for id := range shopUsers {
		notified[id] = struct{}{}
	}

	adminSeen := make(map[uuid.UUID]struct{}, len(p.Admins))
	for _, adminID := range p.Admins {
		if _, dup := adminSeen[adminID]; dup {
			continue
		}
		adminSeen[adminID] = struct{}{}
		if p.SkipNotifiedAdmins {
			if _, ok := notified[adminID]; ok {
				continue
			}
		}
		out = append(out, Recipient{UserID: adminID, Audience: AudienceAdmin})
	}
	return out
}

// Fanout turns domain events into inbox rows and customer email.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Fanout struct {
	repo   Repository
	tx     txRunner
	inbox  Service
	emails *Emailer
	links  string
	logg   *logger.Logger
}

func NewFanout(repo Repository, tx txRunner, inbox Service, emails *Emailer, storefrontURL string, logg *logger.Logger) (*Fanout, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inbox == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Fanout{
		repo:   repo,
		tx:     tx,
		inbox:  inbox,
		emails: emails,
		links:  strings.TrimRight(storefrontURL, "/"),
		logg:   logg,
	}, nil
}

// Handle dispatches a decoded event payload. Events nobody is notified about
// are ignored.
func (f *Fanout) Handle(ctx context.Context, eventType enums.OutboxEventType, payload any) error {
	switch p := payload.(type) {
	case *payloads.OrderPlacedEvent:
		return f.orderPlaced(ctx, p)
	case *payloads.OrderStatusChangedEvent:
		return f.orderStatusChanged(ctx, p)
	case *payloads.OrderCancelledEvent:
		return f.orderCancelled(ctx, p)
	case *payloads.ReturnEvent:
		return f.returnEvent(ctx, eventType, p)
	case *payloads.WithdrawalEvent:
		return f.withdrawal(ctx, eventType, p)
	case *payloads.StockEvent:
		return f.stock(ctx, eventType, p)
	case *payloads.WalletEvent:
		if eventType != enums.EventWalletCredited {
			return nil
		}
		return f.deliver(ctx, Plan{Customer: &p.UserID},
			fmt.Sprintf("A refund of <b>%s</b> was credited to your wallet.", esc(p.Amount)))
	}
	return nil
}

func (f *Fanout) orderPlaced(ctx context.Context, p *payloads.OrderPlacedEvent) error {
	members, err := f.repo.ShopMembers(ctx, p.ShopIDs)
	if err != nil {
		return fmt.Errorf("load shop members: %w", err)
	}
	admins, err := f.repo.RootAdmins(ctx)
	if err != nil {
		return fmt.Errorf("load admins: %w", err)
	}
	plan := Plan{
		Customer:           p.CustomerID,
		ShopIDs:            p.ShopIDs,
		Members:            members,
		Admins:             admins,
		SkipNotifiedAdmins: true,
	}
	messages := map[Audience]string{
		AudienceCustomer: fmt.Sprintf("Your order <b>%s</b> has been placed.", esc(p.TrackingNo)),
		AudienceShop:     fmt.Sprintf("New order <b>%s</b> received.", esc(p.TrackingNo)),
		AudienceAdmin:    fmt.Sprintf("Order <b>%s</b> was placed for %s.", esc(p.TrackingNo), esc(p.Total)),
	}
	if err := f.deliverByAudience(ctx, plan, messages); err != nil {
		return err
	}
	f.emailCustomer(ctx, p.CustomerID, TemplateOrderPlaced, map[string]string{
		"tracking_no": p.TrackingNo,
		"total":       p.Total,
	})
	return nil
}

func (f *Fanout) orderStatusChanged(ctx context.Context, p *payloads.OrderStatusChangedEvent) error {
	if p.CustomerID == nil || p.From == p.To {
		return nil
	}
	msg := fmt.Sprintf("Your order <b>%s</b> is now %s.", esc(p.TrackingNo), esc(string(p.To)))
	if err := f.deliver(ctx, Plan{Customer: p.CustomerID}, msg); err != nil {
		return err
	}
	f.emailCustomer(ctx, p.CustomerID, TemplateOrderStatus, map[string]string{
		"tracking_no": p.TrackingNo,
		"status":      string(p.To),
	})
	return nil
}

func (f *Fanout) orderCancelled(ctx context.Context, p *payloads.OrderCancelledEvent) error {
	members, err := f.repo.ShopMembers(ctx, p.ShopIDs)
	if err != nil {
		return fmt.Errorf("load shop members: %w", err)
	}
	admins, err := f.repo.RootAdmins(ctx)
	if err != nil {
		return fmt.Errorf("load admins: %w", err)
	}
	plan := Plan{Customer: p.CustomerID, ShopIDs: p.ShopIDs, Members: members, Admins: admins}
	return f.deliverByAudience(ctx, plan, map[Audience]string{
		AudienceCustomer: fmt.Sprintf("Your order <b>%s</b> was cancelled.", esc(p.TrackingNo)),
		AudienceShop:     fmt.Sprintf("Order <b>%s</b> was cancelled.", esc(p.TrackingNo)),
		AudienceAdmin:    fmt.Sprintf("Order <b>%s</b> was cancelled.", esc(p.TrackingNo)),
	})
}

func (f *Fanout) returnEvent(ctx context.Context, eventType enums.OutboxEventType, p *payloads.ReturnEvent) error {
	tracking := esc(p.TrackingNo)
	plan := Plan{Customer: &p.UserID}
	var messages map[Audience]string
	switch eventType {
	case enums.EventReturnRequested:
		members, err := f.repo.ShopMembers(ctx, p.ShopIDs)
		if err != nil {
			return fmt.Errorf("load shop members: %w", err)
		}
		admins, err := f.repo.RootAdmins(ctx)
		if err != nil {
			return fmt.Errorf("load admins: %w", err)
		}
		plan.ShopIDs, plan.Members, plan.Admins = p.ShopIDs, members, admins
		messages = map[Audience]string{
			AudienceCustomer: fmt.Sprintf("Your return request for order <b>%s</b> was received.", tracking),
			AudienceShop:     fmt.Sprintf("A return of %s was requested for order <b>%s</b>.", esc(p.RefundAmount), tracking),
			AudienceAdmin:    fmt.Sprintf("Return requested for order <b>%s</b>.", tracking),
		}
	case enums.EventReturnApproved:
		members, err := f.repo.ShopMembers(ctx, p.ShopIDs)
		if err != nil {
			return fmt.Errorf("load shop members: %w", err)
		}
		plan.ShopIDs, plan.Members = p.ShopIDs, members
		messages = map[Audience]string{
			AudienceCustomer: fmt.Sprintf("Your return for order <b>%s</b> was approved.", tracking),
			AudienceShop:     fmt.Sprintf("The return for order <b>%s</b> was approved.", tracking),
		}
	case enums.EventReturnRejected:
		messages = map[Audience]string{
			AudienceCustomer: fmt.Sprintf("Your return for order <b>%s</b> was rejected.", tracking),
		}
	default:
		return nil
	}
	return f.deliverByAudience(ctx, plan, messages)
}

func (f *Fanout) withdrawal(ctx context.Context, eventType enums.OutboxEventType, p *payloads.WithdrawalEvent) error {
	owner, err := f.repo.ShopOwner(ctx, p.ShopID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			f.logg.Warn(f.logg.WithShopID(ctx, p.ShopID.String()), "withdrawal for unknown shop")
			return nil
		}
		return fmt.Errorf("load shop owner: %w", err)
	}
	amount := esc(p.Amount)
	plan := Plan{Customer: &owner}
	messages := map[Audience]string{}
	switch eventType {
	case enums.EventWithdrawalRequested:
		admins, err := f.repo.RootAdmins(ctx)
		if err != nil {
			return fmt.Errorf("load admins: %w", err)
		}
		plan.Admins = admins
		messages[AudienceCustomer] = fmt.Sprintf("Your withdrawal request of <b>%s</b> was submitted.", amount)
		messages[AudienceAdmin] = fmt.Sprintf("A withdrawal of <b>%s</b> is waiting for review.", amount)
	case enums.EventWithdrawalApproved:
		messages[AudienceCustomer] = fmt.Sprintf("Your withdrawal of <b>%s</b> was approved.", amount)
	case enums.EventWithdrawalProcessed:
		messages[AudienceCustomer] = fmt.Sprintf("Your withdrawal of <b>%s</b> was paid out.", amount)
	case enums.EventWithdrawalRejected:
		messages[AudienceCustomer] = fmt.Sprintf("Your withdrawal of <b>%s</b> was rejected.", amount)
	default:
		return nil
	}
	return f.deliverByAudience(ctx, plan, messages)
}

func (f *Fanout) stock(ctx context.Context, eventType enums.OutboxEventType, p *payloads.StockEvent) error {
	name := esc(p.Name)
	switch eventType {
	case enums.EventLowStock, enums.EventOutOfStock:
		if p.ShopID == nil {
			return nil
		}
		owner, err := f.repo.ShopOwner(ctx, *p.ShopID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("load shop owner: %w", err)
		}
		msg := fmt.Sprintf("<b>%s</b> is running low: %d left.", name, p.Quantity)
		if eventType == enums.EventOutOfStock {
			msg = fmt.Sprintf("<b>%s</b> is out of stock.", name)
		}
		return f.deliver(ctx, Plan{ShopIDs: []uuid.UUID{*p.ShopID}, Members: map[uuid.UUID][]uuid.UUID{*p.ShopID: {owner}}}, msg)
	case enums.EventBackInStock:
		users, err := f.repo.Wishlisters(ctx, p.ProductID)
		if err != nil {
			return fmt.Errorf("load wishlisters: %w", err)
		}
		if len(users) == 0 {
			return nil
		}
		msg := fmt.Sprintf("<b>%s</b> from your wishlist is back in stock.", name)
		err = f.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := f.inbox.NotifyTx(ctx, tx, users, msg)
			return err
		})
		if err != nil {
			return err
		}
		for _, userID := range users {
			userID := userID
			f.emailCustomer(ctx, &userID, TemplateBackInStock, map[string]string{
				"product": p.Name,
				"link":    f.links + "/products/" + p.ProductID.String(),
			})
		}
	}
	return nil
}

func (f *Fanout) deliver(ctx context.Context, plan Plan, message string) error {
	return f.deliverByAudience(ctx, plan, map[Audience]string{
		AudienceCustomer: message,
		AudienceShop:     message,
		AudienceAdmin:    message,
	})
}

// deliverByAudience writes one row per recipient with the audience's message.
// A user notified for two shops gets two rows. All rows for one event commit
// in a single transaction.
func (f *Fanout) deliverByAudience(ctx context.Context, plan Plan, messages map[Audience]string) error {
	recipients := plan.Recipients()
	if len(recipients) == 0 {
		return nil
	}
	return f.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, r := range recipients {
			msg, ok := messages[r.Audience]
			if !ok {
				continue
			}
			if _, err := f.inbox.NotifyTx(ctx, tx, []uuid.UUID{r.UserID}, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *Fanout) emailCustomer(ctx context.Context, userID *uuid.UUID, key string, vars map[string]string) {
	if f.emails == nil || userID == nil {
		return
	}
	user, err := f.repo.FindUser(ctx, *userID)
	if err != nil {
		if !dbpkg.IsNotFound(err) {
			f.logg.Error(f.logg.WithUserID(ctx, userID.String()), "load email recipient", err)
		}
		return
	}
	vars["name"] = user.Name
	f.emails.Dispatch(ctx, key, user.Email, user.Name, vars)
}

func esc(value string) string {
	return html.EscapeString(value)
}
