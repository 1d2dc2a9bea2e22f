package orders

import "strings"

// MaskCardLike replaces a value that looks like a card number (13 to 19
// digits once spaces and dashes are removed) with its last four digits.
// Other values are returned unchanged.
func MaskCardLike(value string) string {
	digits := make([]byte, 0, len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == ' ' || c == '-':
		default:
			return value
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return value
	}
	return strings.Repeat("*", 4) + string(digits[len(digits)-4:])
}

func maskPtr(value *string) *string {
	if value == nil {
		return nil
	}
	masked := MaskCardLike(*value)
	return &masked
}
