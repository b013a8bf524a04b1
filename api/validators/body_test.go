package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

type payload struct {
	Amount types.Money         `json:"amount" validate:"money"`
	Tip    *types.Money        `json:"tip" validate:"omitempty,money"`
	Method enums.PaymentMethod `json:"method" validate:"required,enum"`
}

func decode(t *testing.T, body string) (payload, error) {
	t.Helper()
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	var p payload
	return p, DecodeJSONBody(req, &p)
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, _ := typed.Details().(map[string]string)
	return details
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	p, err := decode(t, `{"amount":"150.50","tip":"5","method":"online"}`)
	require.NoError(t, err)
	assert.Equal(t, "150.5", p.Amount.String())
	require.NotNil(t, p.Tip)
	assert.Equal(t, enums.PaymentMethodOnline, p.Method)
}

func TestDecodeJSONBodyRejectsBadMoney(t *testing.T) {
	for _, amount := range []string{`"0"`, `"-10"`, `"10.555"`, `null`} {
		_, err := decode(t, `{"amount":`+amount+`,"method":"online"}`)
		require.Error(t, err, amount)
		assert.Contains(t, fieldErrors(t, err), "amount", amount)
	}
}

func TestDecodeJSONBodyRejectsUnknownEnum(t *testing.T) {
	_, err := decode(t, `{"amount":"10","method":"crypto"}`)
	assert.Equal(t, "is not a supported value", fieldErrors(t, err)["method"])
}

func TestDecodeJSONBodyMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"unknown":  `{"amount":"10","method":"online","extra":1}`,
		"trailing": `{"amount":"10","method":"online"}{}`,
		"too big":  `{"amount":"10","method":"` + strings.Repeat("x", MaxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		_, err := decode(t, body)
		require.Error(t, err, name)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}

	_, err := decode(t, "")
	assert.Equal(t, map[string]any{"error": "request body is required"}, pkgerrors.As(err).Details())
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello\tworld", SanitizeString("  hello\tworld\x00 ", 0))
	assert.Equal(t, "line\nnext", SanitizeString("line\nnext", 100))
	assert.Equal(t, "ab", SanitizeString("abc", 2))
	// "é" is two bytes; a cut inside it backs off to the previous rune.
	assert.Equal(t, "a", SanitizeString("aé", 2))
}
