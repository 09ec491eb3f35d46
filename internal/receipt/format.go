package receipt

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney форматирует сумму с двумя знаками по правилам локали.
func (l Locale) FormatMoney(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	intPart, fracPart, _ := strings.Cut(fixed, ".")
	number := groupDigits(intPart, l.GroupSeparator) + l.DecimalSeparator + fracPart

	pattern := l.PositivePattern
	// -0.004 округляется до 0.00 и не должен выводиться со знаком минус.
	if amount.IsNegative() && fixed != "0.00" {
		pattern = l.NegativePattern
	}
	return strings.NewReplacer(symbolPlaceholder, l.CurrencySymbol, numberPlaceholder, number).Replace(pattern)
}

// FormatQuantity выводит количество не более чем с одним знаком после запятой, отбрасывая ".0".
func (l Locale) FormatQuantity(qty decimal.Decimal) string {
	fixed := qty.Round(1).StringFixed(1)
	fixed = strings.TrimSuffix(fixed, ".0")
	if fixed == "-0" {
		fixed = "0"
	}
	return strings.Replace(fixed, ".", l.DecimalSeparator, 1)
}

func groupDigits(digits, sep string) string {
	if sep == "" || len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
