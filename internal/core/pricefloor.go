package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// offerPattern matches a price the model wrote as a Bengali or ASCII number
// followed by a taka suffix, e.g. "৫৫০ টাকা", "1,200 taka", "950tk".
var offerPattern = regexp.MustCompile(`(?i)([০-৯0-9][০-৯0-9,]*(?:\.[০-৯0-9]+)?)\s*(?:টাকা|taka|tk)`)

var (
	bengaliToASCII = strings.NewReplacer(
		"০", "0", "১", "1", "২", "2", "৩", "3", "৪", "4",
		"৫", "5", "৬", "6", "৭", "7", "৮", "8", "৯", "9",
		",", "",
	)
	asciiToBengali = strings.NewReplacer(
		"0", "০", "1", "১", "2", "২", "3", "৩", "4", "৪",
		"5", "৫", "6", "৬", "7", "৭", "8", "৮", "9", "৯",
	)
)

// EnforcePriceFloor raises every offer in reply that is below floor,
// keeping the numeral system each offer was written in. Amounts equal to one
// of keep (policy charges and the like) are left alone. Text without a
// recognizable offer is returned unchanged.
func EnforcePriceFloor(reply string, floor decimal.Decimal, keep ...decimal.Decimal) (string, bool) {
	matches := offerPattern.FindAllStringSubmatchIndex(reply, -1)
	if matches == nil {
		return reply, false
	}

	var b strings.Builder
	last, changed := 0, false
	for _, loc := range matches {
		written := reply[loc[2]:loc[3]]
		offer, err := decimal.NewFromString(bengaliToASCII.Replace(written))
		if err != nil || !offer.LessThan(floor) || containsAmount(keep, offer) {
			continue
		}
		replacement := floor.String()
		if usesBengaliDigits(written) {
			replacement = asciiToBengali.Replace(replacement)
		}
		b.WriteString(reply[last:loc[2]])
		b.WriteString(replacement)
		last = loc[3]
		changed = true
	}
	if !changed {
		return reply, false
	}
	b.WriteString(reply[last:])
	return b.String(), true
}

// PriceAmounts returns every currency amount written in text.
func PriceAmounts(text string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, m := range offerPattern.FindAllStringSubmatch(text, -1) {
		d, err := decimal.NewFromString(bengaliToASCII.Replace(m[1]))
		if err == nil {
			out = append(out, d)
		}
	}
	return out
}

func containsAmount(amounts []decimal.Decimal, d decimal.Decimal) bool {
	for _, a := range amounts {
		if a.Equal(d) {
			return true
		}
	}
	return false
}

func usesBengaliDigits(s string) bool {
	for _, r := range s {
		if r >= '০' && r <= '৯' {
			return true
		}
	}
	return false
}
