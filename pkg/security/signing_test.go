package security_test

import (
	"regexp"
	"testing"

	"github.com/angelmondragon/marketcore-backend/pkg/security"
)

func TestHMACSHA256HexKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := security.HMACSHA256Hex("Jefe", "what do ya want for nothing?")
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Fatalf("hmac mismatch: %s", got)
	}
}

func TestSHA256Hex(t *testing.T) {
	got := security.SHA256Hex("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("sha256 mismatch: %s", got)
	}
}

func TestEqualSignatures(t *testing.T) {
	if !security.EqualSignatures("ABCdef", "abcDEF") {
		t.Fatal("expected case-insensitive match")
	}
	if security.EqualSignatures("abc", "abd") {
		t.Fatal("expected mismatch")
	}
	if security.EqualSignatures("", "") {
		t.Fatal("empty signatures must not match")
	}
}

func TestRandomHexUpper(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{12}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		value, err := security.RandomHexUpper(12)
		if err != nil {
			t.Fatalf("random hex: %v", err)
		}
		if !pattern.MatchString(value) {
			t.Fatalf("unexpected format %q", value)
		}
		seen[value] = true
	}
	if len(seen) < 49 {
		t.Fatalf("too many collisions: %d unique", len(seen))
	}
	odd, err := security.RandomHexUpper(7)
	if err != nil || len(odd) != 7 {
		t.Fatalf("odd length: %q %v", odd, err)
	}
}
