package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is the shipping address snapshot embedded on orders. It is stored
// as jsonb and never references the live address row.
type Address struct {
	FullName   string  `json:"full_name"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

// Clone returns a deep copy so later edits to the source never leak into a snapshot.
func (a Address) Clone() Address {
	out := a
	if a.Line2 != nil {
		line2 := *a.Line2
		out.Line2 = &line2
	}
	if a.Phone != nil {
		phone := *a.Phone
		out.Phone = &phone
	}
	return out
}

// Lines renders the address as printable lines, skipping empty parts.
func (a Address) Lines() []string {
	lines := make([]string, 0, 5)
	if name := strings.TrimSpace(a.FullName); name != "" {
		lines = append(lines, name)
	}
	lines = append(lines, a.Line1)
	if a.Line2 != nil && strings.TrimSpace(*a.Line2) != "" {
		lines = append(lines, *a.Line2)
	}
	lines = append(lines, strings.TrimSpace(fmt.Sprintf("%s, %s %s", a.City, a.State, a.PostalCode)))
	if a.Country != "" {
		lines = append(lines, a.Country)
	}
	return lines
}

// Value marshals the snapshot into jsonb.
func (a Address) Value() (driver.Value, error) {
	if strings.TrimSpace(a.Line1) == "" {
		return nil, fmt.Errorf("address: missing line1")
	}
	if strings.TrimSpace(a.City) == "" {
		return nil, fmt.Errorf("address: missing city")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan decodes the jsonb snapshot.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	raw, ok := toBytes(value)
	if !ok {
		return fmt.Errorf("address: unsupported scan type %T", value)
	}
	return json.Unmarshal(raw, a)
}

func toBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}
