package db

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Numeric columns travel as text (`col::text`) so that no precision is lost
// between NUMERIC(12,2) and decimal.Decimal.

// ParseDecimal converts a scanned NUMERIC text value.
func ParseDecimal(text string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("platform/db: parse numeric %q: %w", text, err)
	}
	return d, nil
}

// ParseNullDecimal converts a scanned nullable NUMERIC text value.
func ParseNullDecimal(text *string) (decimal.NullDecimal, error) {
	if text == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := ParseDecimal(*text)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// DecimalArg renders a nullable decimal as a query argument.
func DecimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
