package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// maxCents bounds parsed amounts well below int64 overflow.
var maxCents = decimal.NewFromInt(1_000_000_000_000_00)

var moneyCleaner = strings.NewReplacer(
	"$", "",
	"USD", "",
	"usd", "",
	",", "",
	" ", "",
	"\u00a0", "",
)

// ParseCents converts a monetary value into integer cents. Strings such as
// "$1,200.00", "1200" and "(50.00)" are accepted; fractional cents are
// rounded half-to-even. The boolean is false when the value is absent.
func ParseCents(field string, v any) (int64, bool, error) {
	var d decimal.Decimal

	switch n := v.(type) {
	case nil:
		return 0, false, nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false, nil
		}
		parsed, err := parseMoneyString(s)
		if err != nil {
			return 0, false, &Error{Kind: KindInvalidAmount, Field: field, Value: n, Reason: "not a monetary amount"}
		}
		d = parsed
	case int:
		d = decimal.NewFromInt(int64(n))
	case int64:
		d = decimal.NewFromInt(n)
	case float64:
		d = decimal.NewFromFloat(n)
	case float32:
		d = decimal.NewFromFloat32(n)
	case json.Number:
		parsed, err := decimal.NewFromString(n.String())
		if err != nil {
			return 0, false, &Error{Kind: KindInvalidAmount, Field: field, Value: n.String(), Reason: "not a monetary amount"}
		}
		d = parsed
	case decimal.Decimal:
		d = n
	default:
		return 0, false, &Error{Kind: KindInvalidAmount, Field: field, Value: fmt.Sprint(v), Reason: fmt.Sprintf("unsupported type %T", v)}
	}

	cents := d.Shift(2).RoundBank(0)
	if cents.IsNegative() {
		return 0, false, &Error{Kind: KindInvalidAmount, Field: field, Value: d.String(), Reason: "negative amounts are not allowed"}
	}
	if cents.GreaterThan(maxCents) {
		return 0, false, &Error{Kind: KindInvalidAmount, Field: field, Value: d.String(), Reason: "amount out of range"}
	}
	return cents.IntPart(), true, nil
}

func parseMoneyString(s string) (decimal.Decimal, error) {
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = moneyCleaner.Replace(s)
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// FormatCents renders cents as a dollar string, e.g. 145000 -> "$1,450.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), cents%100)
}
