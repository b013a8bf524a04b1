package enums

import "slices"

// WalletTransactionKind is the sign of a wallet ledger row.
type WalletTransactionKind string

const (
	WalletTransactionKindCredit WalletTransactionKind = "credit"
	WalletTransactionKindDebit  WalletTransactionKind = "debit"
)

var validWalletTransactionKinds = []WalletTransactionKind{
	WalletTransactionKindCredit,
	WalletTransactionKindDebit,
}

// String implements fmt.Stringer.
func (w WalletTransactionKind) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletTransactionKind.
func (w WalletTransactionKind) IsValid() bool {
	return slices.Contains(validWalletTransactionKinds, w)
}

// ParseWalletTransactionKind converts raw input into a WalletTransactionKind.
func ParseWalletTransactionKind(value string) (WalletTransactionKind, error) {
	return parseEnum(validWalletTransactionKinds, value, "wallet transaction kind")
}
