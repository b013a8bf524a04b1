package enums

import "slices"

// ReturnType scopes a return request to the whole order or chosen lines.
type ReturnType string

const (
	ReturnTypeFull   ReturnType = "full"
	ReturnTypeSingle ReturnType = "single"
)

var validReturnTypes = []ReturnType{
	ReturnTypeFull,
	ReturnTypeSingle,
}

// String implements fmt.Stringer.
func (r ReturnType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnType.
func (r ReturnType) IsValid() bool {
	return slices.Contains(validReturnTypes, r)
}

// ParseReturnType converts raw input into a ReturnType.
func ParseReturnType(value string) (ReturnType, error) {
	return parseEnum(validReturnTypes, value, "return type")
}
