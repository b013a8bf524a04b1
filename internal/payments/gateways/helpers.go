package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

const maxResponseBytes = 1 << 20

// statusMap classifies provider codes. Codes not listed are failures.
type statusMap struct {
	success []string
	pending []string
}

func (m statusMap) resolve(code string) enums.TransactionStatus {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range m.success {
		if c == code {
			return enums.TransactionStatusCompleted
		}
	}
	for _, c := range m.pending {
		if c == code {
			return enums.TransactionStatusPending
		}
	}
	return enums.TransactionStatusFailed
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toMinor(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

func parseAmount(raw string) *decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	return &d
}

func parseMinorAmount(raw string) *decimal.Decimal {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil
	}
	d := fromMinor(v)
	return &d
}

// sortedPairs joins non-empty fields as k=v in key order. When escape is set
// values are query-escaped.
func sortedPairs(fields map[string]string, escape bool, skip ...string) string {
	keys := sortedKeys(fields, skip...)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if escape {
			v = url.QueryEscape(v)
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "&")
}

func sortedKeys(fields map[string]string, skip ...string) []string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v == "" || contains(skip, k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

// parseBody accepts JSON objects or form-encoded bodies and flattens scalar
// values to strings.
func parseBody(raw []byte) (map[string]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	if trimmed[0] == '{' {
		var decoded map[string]any
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("decode json body: %w", err)
		}
		return flatten(decoded), nil
	}
	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("decode form body: %w", err)
	}
	out := make(map[string]string, len(values))
	for k := range values {
		out[k] = values.Get(k)
	}
	return out, nil
}

func flatten(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch typed := v.(type) {
		case nil:
		case string:
			out[k] = typed
		case json.Number:
			out[k] = typed.String()
		case bool:
			out[k] = strconv.FormatBool(typed)
		case float64:
			out[k] = strconv.FormatFloat(typed, 'f', -1, 64)
		}
	}
	return out
}

func toAnyMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// doJSON sends body (when non-nil) as JSON and decodes a JSON object reply.
func doJSON(ctx context.Context, client *http.Client, method, endpoint string, headers map[string]string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return send(client, req)
}

func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return send(client, req)
}

func send(client *http.Client, req *http.Request) (map[string]any, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("gateway responded %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	return flatten(map[string]any{key: m[key]})[key]
}

func newHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultTimeout}
}

func callbackURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}

// rejectCallback is the verdict for redirect data that does not authenticate.
func rejectCallback(gateway, reason string) VerifyResult {
	return VerifyResult{ErrorMessage: gateway + " callback rejected: " + reason}
}

func formatMinor(d decimal.Decimal) string {
	return strconv.FormatInt(toMinor(d), 10)
}
