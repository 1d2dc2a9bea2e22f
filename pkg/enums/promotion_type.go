package enums

import "fmt"

// PromotionType selects how a promotion computes its discount.
type PromotionType string

const (
	PromotionTypePercentage PromotionType = "percentage"
	PromotionTypeFixed      PromotionType = "fixed"
	// PromotionTypeBuyXGetY is stored but its discount is not computed.
	PromotionTypeBuyXGetY PromotionType = "buy_x_get_y"
)

var validPromotionTypes = []PromotionType{
	PromotionTypePercentage,
	PromotionTypeFixed,
	PromotionTypeBuyXGetY,
}

// String implements fmt.Stringer.
func (t PromotionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known PromotionType.
func (t PromotionType) IsValid() bool {
	for _, candidate := range validPromotionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParsePromotionType converts raw input into a PromotionType.
func ParsePromotionType(value string) (PromotionType, error) {
	for _, candidate := range validPromotionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid promotion type %q", value)
}
