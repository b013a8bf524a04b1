package notifications

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	dbpkg "github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/workerpool"
)

// Email is one rendered message ready for delivery.
type Email struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Mailer delivers rendered email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SendGridMailer posts to the SendGrid v3 mail/send endpoint.
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewMailer returns a SendGrid mailer, or a log-only mailer when no API key is
// configured.
func NewMailer(cfg config.SendgridConfig, logg *logger.Logger) Mailer {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return &LogMailer{logg: logg}
	}
	client := sendgrid.NewSendClient(cfg.APIKey)
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		client.Request.BaseURL = base + "/v3/mail/send"
	}
	return &SendGridMailer{
		client: client,
		from:   mail.NewEmail("MarketCore", cfg.DefaultFrom),
	}
}

func (m *SendGridMailer) Send(ctx context.Context, email Email) error {
	to := mail.NewEmail(email.ToName, email.To)
	message := mail.NewSingleEmail(m.from, email.Subject, to, "", email.HTML)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogMailer only logs what would have been sent.
type LogMailer struct {
	logg *logger.Logger
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	if m.logg == nil {
		return nil
	}
	logCtx := m.logg.WithFields(ctx, map[string]any{"to": email.To, "subject": email.Subject})
	m.logg.Info(logCtx, "email delivery skipped: no mail provider configured")
	return nil
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{placeholder}} slots from vars. Unknown placeholders
// render empty.
func Render(text string, vars map[string]string) string {
	return render(text, vars, func(v string) string { return v })
}

// RenderHTML is Render with every substituted value HTML-escaped.
func RenderHTML(text string, vars map[string]string) string {
	return render(text, vars, html.EscapeString)
}

func render(text string, vars map[string]string, escape func(string) string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return escape(vars[key])
	})
}

type template struct {
	Subject string
	HTML    string
}

// Built-in templates used when no active template with the same key is stored.
var builtinTemplates = map[string]template{
	TemplateOrderPlaced: {
		Subject: "Order {{tracking_no}} received",
		HTML:    "<p>Hi {{name}},</p><p>We received your order <b>{{tracking_no}}</b> for {{total}}.</p>",
	},
	TemplateOrderStatus: {
		Subject: "Order {{tracking_no}} is now {{status}}",
		HTML:    "<p>Hi {{name}},</p><p>Your order <b>{{tracking_no}}</b> is now {{status}}.</p>",
	},
	TemplateShopNewOrder: {
		Subject: "New order {{tracking_no}}",
		HTML:    "<p>Hi {{name}},</p><p>Your shop received order <b>{{tracking_no}}</b>.</p><p><a href=\"{{link}}\">Open order</a></p>",
	},
	TemplateWishlistReminder: {
		Subject: "Still thinking about {{product}}?",
		HTML:    "<p>Hi {{name}},</p><p><b>{{product}}</b> is still on your wishlist.</p><p><a href=\"{{link}}\">View product</a></p>",
	},
	TemplateCartReminder: {
		Subject: "You left items in your cart",
		HTML:    "<p>Hi {{name}},</p><p>You have {{count}} item(s) waiting in your cart.</p><p><a href=\"{{link}}\">Checkout</a></p>",
	},
	TemplateLowStock: {
		Subject: "Low stock: {{product}}",
		HTML:    "<p>Hi {{name}},</p><p><b>{{product}}</b> has only {{quantity}} unit(s) left.</p>",
	},
	TemplateOutOfStock: {
		Subject: "Out of stock: {{product}}",
		HTML:    "<p>Hi {{name}},</p><p><b>{{product}}</b> is out of stock.</p>",
	},
	TemplateBackInStock: {
		Subject: "{{product}} is back in stock",
		HTML:    "<p>Hi {{name}},</p><p><b>{{product}}</b> from your wishlist is available again.</p><p><a href=\"{{link}}\">View product</a></p>",
	},
}

const (
	TemplateOrderPlaced      = "order_placed"
	TemplateOrderStatus      = "order_status"
	TemplateShopNewOrder     = "shop_new_order"
	TemplateWishlistReminder = "wishlist_reminder"
	TemplateCartReminder     = "cart_reminder"
	TemplateLowStock         = "low_stock"
	TemplateOutOfStock       = "out_of_stock"
	TemplateBackInStock      = "back_in_stock"
)

// Emailer renders templates and hands delivery to the background pool.
type Emailer struct {
	repo   Repository
	mailer Mailer
	queue  workerpool.Submitter
	logg   *logger.Logger
}

func NewEmailer(repo Repository, mailer Mailer, queue workerpool.Submitter, logg *logger.Logger) (*Emailer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Emailer{repo: repo, mailer: mailer, queue: queue, logg: logg}, nil
}

// Compose renders the template stored under key, falling back to the
// built-in copy.
func (e *Emailer) Compose(ctx context.Context, key, to, toName string, vars map[string]string) (Email, error) {
	tpl, ok := builtinTemplates[key]
	stored, err := e.repo.FindTemplate(ctx, key)
	switch {
	case err == nil:
		tpl = template{Subject: stored.Subject, HTML: stored.HTML}
		ok = true
	case !dbpkg.IsNotFound(err):
		return Email{}, fmt.Errorf("load template %s: %w", key, err)
	}
	if !ok {
		return Email{}, fmt.Errorf("unknown email template %s", key)
	}
	return Email{
		To:      to,
		ToName:  toName,
		Subject: Render(tpl.Subject, vars),
		HTML:    RenderHTML(tpl.HTML, vars),
	}, nil
}

// Send renders and delivers synchronously.
func (e *Emailer) Send(ctx context.Context, key, to, toName string, vars map[string]string) error {
	email, err := e.Compose(ctx, key, to, toName, vars)
	if err != nil {
		return err
	}
	return e.mailer.Send(ctx, email)
}

// Dispatch renders and delivers on the worker pool. Failures are logged and
// never reach the caller.
func (e *Emailer) Dispatch(ctx context.Context, key, to, toName string, vars map[string]string) {
	logCtx := e.logg.WithFields(ctx, map[string]any{"template": key, "to": to})
	if strings.TrimSpace(to) == "" {
		return
	}
	if e.queue == nil {
		if err := e.Send(ctx, key, to, toName, vars); err != nil {
			e.logg.Error(logCtx, "email delivery failed", err)
		}
		return
	}
	err := e.queue.Submit(workerpool.Task{
		Name: "email." + key,
		Run: func(taskCtx context.Context) error {
			if err := e.Send(taskCtx, key, to, toName, vars); err != nil {
				e.logg.Error(logCtx, "email delivery failed", err)
				return err
			}
			return nil
		},
	})
	if err != nil {
		e.logg.Warn(logCtx, "email dropped: "+err.Error())
	}
}
