package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is the shipping destination stored as jsonb on a sale.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Department string `json:"department"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// Validate checks the fields a carrier needs to build a label.
func (a Address) Validate() error {
	if strings.TrimSpace(a.Line1) == "" {
		return fmt.Errorf("address: missing line1")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("address: missing city")
	}
	if strings.TrimSpace(a.Department) == "" {
		return fmt.Errorf("address: missing department")
	}
	return nil
}

// Value implements driver.Valuer.
func (a Address) Value() (driver.Value, error) {
	country := strings.TrimSpace(a.Country)
	if country == "" {
		a.Country = "CO"
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: marshal %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}

	if len(raw) == 0 {
		*a = Address{}
		return nil
	}

	if err := json.Unmarshal(raw, a); err != nil {
		return fmt.Errorf("address: unmarshal %w", err)
	}
	if strings.TrimSpace(a.Country) == "" {
		a.Country = "CO"
	}
	return nil
}
