package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = errors.New(`stripe environment must be "test" or "live"`)
)

// keyPrefixes lists the secret and restricted key prefixes accepted per
// environment.
var keyPrefixes = map[string][]string{
	"test": {"sk_test", "rk_test"},
	"live": {"sk_live", "rk_live"},
}

// Client is bound to one API key. It never touches the package-level
// stripe.Key so several clients can coexist in tests.
type Client struct {
	env       string
	secret    string
	currency  string
	tolerance time.Duration

	sessions *session.Client
	refunds  *refund.Client
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, errAPIKeyRequired
	case secret == "":
		return nil, errSecretRequired
	}

	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, errInvalidStripeEnv
	}
	if !hasAnyPrefix(apiKey, prefixes) {
		return nil, fmt.Errorf("stripe %s environment needs a %s key", env, strings.Join(prefixes, "/"))
	}

	c := &Client{
		env:       env,
		secret:    secret,
		currency:  strings.ToLower(strings.TrimSpace(cfg.Currency)),
		tolerance: cfg.WebhookTolerance,
	}
	if c.currency == "" {
		c.currency = "usd"
	}
	if c.tolerance <= 0 {
		c.tolerance = webhook.DefaultTolerance
	}

	backend := stripe.GetBackend(stripe.APIBackend)
	c.sessions = &session.Client{B: backend, Key: apiKey}
	c.refunds = &refund.Client{B: backend, Key: apiKey}

	logg.Info(logg.WithFields(ctx, map[string]any{"env": env, "currency": c.currency}), "stripe client ready")
	return c, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.env
}

// Currency is lowercase ISO 4217, as the API expects.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	sess, err := c.sessions.New(params)
	return sess, describe("create checkout session", err)
}

// GetCheckoutSession expands the payment intent, which refunds need.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	sess, err := c.sessions.Get(id, params)
	return sess, describe("get checkout session", err)
}

func (c *Client) CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	params.Context = ctx
	ref, err := c.refunds.New(params)
	return ref, describe("create refund", err)
}

// ConstructEvent verifies the Stripe-Signature header against payload.
// Events signed outside the tolerance window are rejected.
func (c *Client) ConstructEvent(payload []byte, header string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, header, c.secret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
}

// describe flattens *stripe.Error into something readable in a gateway
// response while keeping it reachable through errors.As.
func describe(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *stripe.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := apiErr.Msg
	if apiErr.Code != "" {
		msg = string(apiErr.Code) + ": " + msg
	}
	if apiErr.RequestID != "" {
		msg += " (request " + apiErr.RequestID + ")"
	}
	return fmt.Errorf("%s: %s: %w", op, msg, err)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
