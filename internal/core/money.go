// Package core provides amount parsing and handling utilities.
//
// Monetary values are decimal magnitudes in the provider's base
// currency unit. Provider payloads carry amounts as JSON strings or
// numbers interchangeably, so parsing has to accept both.
package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a raw JSON cell into a decimal amount.
//
// It accepts string cells ("2500", "1234.56") and numeric cells
// (float64 from encoding/json). Negative or unparsable values are
// rejected; amounts are stored as unsigned magnitudes with the
// direction carried separately.
func ParseAmount(cell any) (decimal.Decimal, error) {
	switch v := cell.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return decimal.Zero, ErrInvalidAmount
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, ErrInvalidAmount
		}
		if d.Sign() < 0 {
			return decimal.Zero, ErrInvalidAmount
		}
		return d, nil
	case float64:
		if v < 0 {
			return decimal.Zero, ErrInvalidAmount
		}
		return decimal.NewFromFloat(v), nil
	case int:
		if v < 0 {
			return decimal.Zero, ErrInvalidAmount
		}
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		if v < 0 {
			return decimal.Zero, ErrInvalidAmount
		}
		return decimal.NewFromInt(v), nil
	default:
		return decimal.Zero, ErrInvalidAmount
	}
}

// ParseDirectionCode maps the provider's small-integer direction enum
// (1=CREDIT, 2=DEBIT) to a Direction. The cell may arrive as a JSON
// number or a numeric string.
func ParseDirectionCode(cell any) (Direction, error) {
	var code int
	switch v := cell.(type) {
	case float64:
		code = int(v)
	case int:
		code = v
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return "", ErrInvalidDirection
		}
		code = n
	default:
		return "", ErrInvalidDirection
	}
	switch code {
	case 1:
		return CreditTxn, nil
	case 2:
		return DebitTxn, nil
	default:
		return "", ErrInvalidDirection
	}
}

// Round2 rounds to two decimal places, the precision used by every
// reporting view.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
