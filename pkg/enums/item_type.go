package enums

import "slices"

// ItemType distinguishes how an order line maps onto stock.
type ItemType string

const (
	ItemTypeSimple   ItemType = "simple"
	ItemTypeVariable ItemType = "variable"
	ItemTypeGrouped  ItemType = "grouped"
)

var validItemTypes = []ItemType{
	ItemTypeSimple,
	ItemTypeVariable,
	ItemTypeGrouped,
}

// String implements fmt.Stringer.
func (i ItemType) String() string {
	return string(i)
}

// IsValid reports whether the value is a known ItemType.
func (i ItemType) IsValid() bool {
	return slices.Contains(validItemTypes, i)
}

// ParseItemType converts raw input into a ItemType.
func ParseItemType(value string) (ItemType, error) {
	return parseEnum(validItemTypes, value, "item type")
}
