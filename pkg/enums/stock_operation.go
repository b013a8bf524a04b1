package enums

import "slices"

// StockOperation is the direction of an inventory mutation.
type StockOperation string

const (
	StockOperationDeduct  StockOperation = "deduct"
	StockOperationRestore StockOperation = "restore"
)

var validStockOperations = []StockOperation{
	StockOperationDeduct,
	StockOperationRestore,
}

// String implements fmt.Stringer.
func (s StockOperation) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StockOperation.
func (s StockOperation) IsValid() bool {
	return slices.Contains(validStockOperations, s)
}

// ParseStockOperation converts raw input into a StockOperation.
func ParseStockOperation(value string) (StockOperation, error) {
	return parseEnum(validStockOperations, value, "stock operation")
}
