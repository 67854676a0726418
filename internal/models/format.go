package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const progressBarCells = 20

// FormatTokens renders a base denom amount as a human stake, e.g. "1,234.50 ATOM"
func FormatTokens(tokens string, decimals int32, denom string) string {
	amount, err := decimal.NewFromString(strings.TrimSpace(tokens))
	if err != nil {
		return tokens
	}
	display := amount.Shift(-decimals).StringFixed(2)
	return strings.TrimSpace(groupThousands(display) + " " + TokenSymbol(denom, decimals))
}

// TokenSymbol returns the display ticker of a base denom, e.g. uatom -> ATOM
func TokenSymbol(denom string, decimals int32) string {
	return strings.ToUpper(displayDenom(denom, decimals))
}

// displayDenom strips the unit prefix from base denoms such as uatom or aevmos
func displayDenom(denom string, decimals int32) string {
	switch {
	case decimals == 6 && strings.HasPrefix(denom, "u") && len(denom) > 1:
		return denom[1:]
	case decimals == 18 && strings.HasPrefix(denom, "a") && len(denom) > 1:
		return denom[1:]
	}
	return denom
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac
}

// Uptime returns the estimated signing uptime over the slashing window
func Uptime(window, missed int64) (float64, bool) {
	if window <= 0 || missed < 0 {
		return 0, false
	}
	if missed > window {
		missed = window
	}
	return float64(window-missed) / float64(window) * 100, true
}

// ProgressBar renders percent (0-100) as a fixed width text bar
func ProgressBar(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * progressBarCells)
	return fmt.Sprintf("[%s%s] %.2f%%",
		strings.Repeat("█", filled),
		strings.Repeat("░", progressBarCells-filled),
		percent)
}
