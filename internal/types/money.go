package types

import (
	"strings"

	"github.com/shopspring/decimal"

	ierr "github.com/condobill/condobill/internal/errors"
)

// All monetary amounts inside the core are signed 64-bit integer centavos
// (100 per peso). Peso decimals exist only at the edges: parsing operator
// input and formatting display strings. Intermediate division rounds to
// the nearest centavo with banker's rounding.

// ParsePesos converts a peso string ("1234.56") to centavos.
func ParsePesos(pesos string) (int64, error) {
	s := strings.TrimSpace(pesos)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, ierr.NewError("amount is empty").
			WithHint("Provide a peso amount such as 1234.56").
			Mark(ierr.ErrValidation)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHintf("Amount %q is not a valid peso value", pesos).
			Mark(ierr.ErrValidation)
	}

	return d.Shift(2).RoundBank(0).IntPart(), nil
}

// ParsePesosNonNegative is ParsePesos for contexts where a negative amount
// is invalid input (rates, payments, charges).
func ParsePesosNonNegative(pesos string) (int64, error) {
	cents, err := ParsePesos(pesos)
	if err != nil {
		return 0, err
	}
	if cents < 0 {
		return 0, ierr.NewErrorf("amount %s must not be negative", pesos).
			WithHint("This amount cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return cents, nil
}

// FormatPesos renders centavos as a display peso string: 123456 -> "1,234.56".
func FormatPesos(centavos int64) string {
	d := decimal.New(centavos, -2)
	s := d.StringFixed(2)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]

	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}

	out := b.String() + "." + parts[1]
	if neg {
		out = "-" + out
	}
	return out
}

// CentavosToDecimal converts centavos to a peso decimal for edge formatting.
func CentavosToDecimal(centavos int64) decimal.Decimal {
	return decimal.New(centavos, -2)
}

// MulBank multiplies centavos by a decimal factor and rounds the result
// back to centavos with banker's rounding.
func MulBank(centavos int64, factor decimal.Decimal) int64 {
	return decimal.NewFromInt(centavos).Mul(factor).RoundBank(0).IntPart()
}
