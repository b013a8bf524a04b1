package pagination

import (
	"net/url"
	"testing"
)

func TestFromQueryDefaults(t *testing.T) {
	params, err := FromQuery(url.Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Page != 1 || params.Limit != DefaultLimit {
		t.Fatalf("unexpected defaults %+v", params)
	}
	if params.Offset() != 0 {
		t.Fatalf("expected zero offset")
	}
}

func TestFromQueryOffset(t *testing.T) {
	params, err := FromQuery(url.Values{"page": {"3"}, "limit": {"10"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Offset() != 20 {
		t.Fatalf("expected offset 20 got %d", params.Offset())
	}
}

func TestFromQueryRejectsBadRange(t *testing.T) {
	bad := []url.Values{
		{"page": {"0"}},
		{"page": {"-2"}},
		{"page": {"abc"}},
		{"limit": {"0"}},
		{"limit": {"101"}},
	}
	for _, values := range bad {
		if _, err := FromQuery(values); err == nil {
			t.Fatalf("expected error for %v", values)
		}
	}
}

func TestNormalizeLimit(t *testing.T) {
	if NormalizeLimit(0) != DefaultLimit || NormalizeLimit(500) != MaxLimit || NormalizeLimit(7) != 7 {
		t.Fatalf("normalize limit mismatch")
	}
}
