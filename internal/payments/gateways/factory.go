package gateways

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
)

// ErrUnavailable is returned for unknown gateways and gateways whose
// configuration failed Initialize.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Builder constructs an adapter on first use.
type Builder func() Gateway

// Factory owns one adapter per name. Adapters are built and initialised
// lazily; the outcome is cached for the life of the process.
type Factory struct {
	mu       sync.Mutex
	builders map[string]Builder
	ready    map[string]Gateway
	failed   map[string]struct{}
	metrics  *metrics.GatewayMetrics
	logg     *logger.Logger
}

func NewFactory(m *metrics.GatewayMetrics, logg *logger.Logger) *Factory {
	return &Factory{
		builders: map[string]Builder{},
		ready:    map[string]Gateway{},
		failed:   map[string]struct{}{},
		metrics:  m,
		logg:     logg,
	}
}

// NewDefaultFactory registers the five built-in providers.
func NewDefaultFactory(cfg config.GatewaysConfig, stripeAPI StripeAPI, m *metrics.GatewayMetrics, logg *logger.Logger) *Factory {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := Options{
		HTTPClient:   &http.Client{Timeout: timeout},
		CallbackBase: cfg.CallbackURL,
		Currency:     cfg.Currency,
	}

	f := NewFactory(m, logg)
	f.Register(NamePayFast, func() Gateway { return NewPayFast(cfg.PayFast, opts) })
	f.Register(NameEasyPaisa, func() Gateway { return NewEasyPaisa(cfg.EasyPaisa, opts) })
	f.Register(NameJazzCash, func() Gateway { return NewJazzCash(cfg.JazzCash, opts) })
	f.Register(NamePayPak, func() Gateway { return NewPayPak(cfg.PayPak, opts) })
	f.Register(NameStripe, func() Gateway { return NewStripe(stripeAPI, opts) })
	return f
}

func (f *Factory) Register(name string, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name = normalizeName(name)
	f.builders[name] = builder
	delete(f.ready, name)
	delete(f.failed, name)
}

// Get returns the initialised adapter for name.
func (f *Factory) Get(name string) (Gateway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(normalizeName(name))
}

func (f *Factory) get(name string) (Gateway, error) {
	if gw, ok := f.ready[name]; ok {
		return gw, nil
	}
	if _, ok := f.failed[name]; ok {
		return nil, ErrUnavailable
	}
	builder, ok := f.builders[name]
	if !ok {
		return nil, ErrUnavailable
	}
	gw := builder()
	if gw == nil || !gw.Initialize() {
		f.failed[name] = struct{}{}
		if f.logg != nil {
			f.logg.Warn(f.logg.WithField(context.Background(), "gateway", name), "payment gateway failed to initialize")
		}
		return nil, ErrUnavailable
	}
	wrapped := &instrumented{inner: gw, metrics: f.metrics}
	f.ready[name] = wrapped
	return wrapped, nil
}

// Catalogue lists the metadata of every gateway that initialises, by name.
func (f *Factory) Catalogue() []Metadata {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.builders))
	for name := range f.builders {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Metadata, 0, len(names))
	for _, name := range names {
		gw, err := f.get(name)
		if err != nil {
			continue
		}
		out = append(out, gw.Metadata())
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// instrumented records call counts and latency for every provider operation.
type instrumented struct {
	inner   Gateway
	metrics *metrics.GatewayMetrics
}

func (i *instrumented) observe(op string, started time.Time, ok bool) {
	i.metrics.Observe(i.inner.Metadata().Name, op, ok, time.Since(started))
}

func (i *instrumented) Metadata() Metadata { return i.inner.Metadata() }

func (i *instrumented) Initialize() bool { return i.inner.Initialize() }

func (i *instrumented) InitiatePayment(ctx context.Context, req InitiateRequest) InitResult {
	started := time.Now()
	res := i.inner.InitiatePayment(ctx, req)
	i.observe("initiate", started, res.Success)
	return res
}

func (i *instrumented) VerifyPayment(ctx context.Context, req VerifyRequest) VerifyResult {
	started := time.Now()
	res := i.inner.VerifyPayment(ctx, req)
	i.observe("verify", started, res.Success)
	return res
}

func (i *instrumented) ProcessCallback(ctx context.Context, params map[string]string) CallbackResult {
	started := time.Now()
	res := i.inner.ProcessCallback(ctx, params)
	i.observe("callback", started, res.TransactionID != "")
	return res
}

func (i *instrumented) VerifyWebhook(ctx context.Context, rawBody []byte, headers http.Header) WebhookResult {
	started := time.Now()
	res := i.inner.VerifyWebhook(ctx, rawBody, headers)
	i.observe("webhook", started, res.Valid)
	return res
}

func (i *instrumented) Refund(ctx context.Context, req RefundRequest) RefundResult {
	started := time.Now()
	res := i.inner.Refund(ctx, req)
	i.observe("refund", started, res.Success)
	return res
}

func (i *instrumented) GetTransactionStatus(ctx context.Context, transactionID, gatewayTransactionID string) VerifyResult {
	started := time.Now()
	res := i.inner.GetTransactionStatus(ctx, transactionID, gatewayTransactionID)
	i.observe("status", started, res.Success)
	return res
}
