package notifications

import (
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

// allowedTags lists the markup a notification message may carry and the
// attributes each tag accepts.
var allowedTags = map[string]map[string]struct{}{
	"a":      {"href": {}},
	"b":      {},
	"strong": {},
	"span":   {"style": {}},
	"font":   {"color": {}, "style": {}},
}

var blockedSchemes = []string{"javascript:", "vbscript:", "data:"}

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "span", "font", "a")
	p.AllowNoAttrs().OnElements("a", "font", "span")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("style").OnElements("span", "font")
	p.AllowAttrs("color").OnElements("font")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	return p
}

// Sanitize validates a notification message against the tag allow-list and
// returns its canonical form. Anything outside the list is rejected rather
// than stripped.
func Sanitize(message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "message required")
	}
	want, err := scan(message)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "message contains disallowed markup")
	}
	cleaned := policy.Sanitize(message)
	got, err := scan(cleaned)
	if err != nil || !equalSignatures(want, got) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "message contains disallowed markup")
	}
	return cleaned, nil
}

// scan walks the message with the html tokenizer and returns one signature per
// start tag.
func scan(message string) ([]string, error) {
	z := html.NewTokenizer(strings.NewReader(message))
	var sigs []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return sigs, nil
			}
			return nil, z.Err()
		case html.CommentToken:
			return nil, errors.New("comments are not allowed")
		case html.DoctypeToken:
			return nil, errors.New("doctype is not allowed")
		case html.EndTagToken:
			tok := z.Token()
			if _, ok := allowedTags[tok.Data]; !ok {
				return nil, errors.New("tag <" + tok.Data + "> is not allowed")
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			sig, err := checkTag(tok)
			if err != nil {
				return nil, err
			}
			sigs = append(sigs, sig)
		}
	}
}

func checkTag(tok html.Token) (string, error) {
	attrs, ok := allowedTags[tok.Data]
	if !ok {
		return "", errors.New("tag <" + tok.Data + "> is not allowed")
	}
	names := make([]string, 0, len(tok.Attr))
	for _, attr := range tok.Attr {
		key := strings.ToLower(attr.Key)
		if strings.HasPrefix(key, "on") {
			return "", errors.New("event handler attributes are not allowed")
		}
		if _, ok := attrs[key]; !ok {
			return "", errors.New("attribute " + key + " is not allowed on <" + tok.Data + ">")
		}
		if unsafeValue(key, attr.Val) {
			return "", errors.New("attribute " + key + " has an unsafe value")
		}
		names = append(names, key)
	}
	sort.Strings(names)
	return tok.Data + "[" + strings.Join(names, ",") + "]", nil
}

func unsafeValue(key, value string) bool {
	compact := strings.Map(func(r rune) rune {
		if r <= ' ' {
			return -1
		}
		return r
	}, strings.ToLower(value))
	for _, scheme := range blockedSchemes {
		if strings.Contains(compact, scheme) {
			return true
		}
	}
	if key == "style" {
		return strings.Contains(compact, "expression(") || strings.Contains(compact, "url(")
	}
	return false
}

func equalSignatures(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
