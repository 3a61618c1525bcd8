package trip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Price keeps the raw JSON value of a price field as received, so documents written by
// other clients round-trip untouched. Decimal coerces it on read.
type Price struct {
	raw json.RawMessage
}

// NewPrice returns a price holding a JSON number.
func NewPrice(d decimal.Decimal) Price {
	return Price{raw: json.RawMessage(d.String())}
}

var groupedNumber = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)

// ParsePrice converts user input into a price. Blank input yields 0 and thousands
// separators such as "1,234.50" are accepted; anything else non-numeric is ErrInvalidValue.
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NewPrice(decimal.Zero), nil
	}
	if groupedNumber.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("%w: price %q", ErrInvalidValue, s)
	}
	return NewPrice(d), nil
}

// Decimal returns the numeric value. Missing, null, boolean and non-numeric values are 0.
func (p Price) Decimal() decimal.Decimal {
	raw := bytes.TrimSpace(p.raw)
	if len(raw) == 0 {
		return decimal.Zero
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero
		}
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero
		}
		return d
	case 'n', 't', 'f', '{', '[':
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// IsZero reports whether the price is absent.
func (p Price) IsZero() bool {
	return len(p.raw) == 0
}

// MarshalJSON writes the raw value; an absent price is written as 0.
func (p Price) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return []byte("0"), nil
	}
	return p.raw, nil
}

// UnmarshalJSON stores a copy of the raw value.
func (p *Price) UnmarshalJSON(data []byte) error {
	p.raw = append(p.raw[:0:0], data...)
	return nil
}
