package gateways

import (
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Options carries what every adapter shares.
type Options struct {
	HTTPClient   *http.Client
	CallbackBase string
	Currency     string
	Now          func() time.Time
}

func (o Options) normalized() Options {
	o.HTTPClient = newHTTPClient(o.HTTPClient)
	if strings.TrimSpace(o.Currency) == "" {
		o.Currency = "PKR"
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}
