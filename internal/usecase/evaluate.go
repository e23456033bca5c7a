package usecase

import (
	"fmt"
	"strings"
	"time"

	"PriceWatch/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Evaluate reports whether c fires for price. prev is the previous sample's price, nil on the first sample.
// BREAKOUT is edge-triggered and needs prev.
func Evaluate(c models.Condition, price decimal.Decimal, prev *decimal.Decimal) bool {
	switch c.Kind {
	case models.KindPriceAbove:
		return price.GreaterThanOrEqual(c.Threshold)
	case models.KindPriceBelow:
		return price.LessThanOrEqual(c.Threshold)
	case models.KindBreakout:
		return prev != nil && price.GreaterThan(c.Threshold) && prev.LessThanOrEqual(c.Threshold)
	}
	return false
}

// RenderMessage formats the notification text for a fired condition.
func RenderMessage(c models.Condition, price decimal.Decimal, at time.Time) string {
	var title, label, status string
	switch c.Kind {
	case models.KindPriceAbove:
		title, label, status = "PRICE ALERT", "Target", "ABOVE TARGET"
	case models.KindPriceBelow:
		title, label, status = "PRICE ALERT", "Target", "BELOW TARGET"
	case models.KindBreakout:
		title, label, status = "BREAKOUT ALERT", "Level", "BREAKOUT"
	default:
		return fmt.Sprintf("Alert: %s @ $%s", c.Symbol, formatPrice(price))
	}

	desc := c.Description
	if desc == "" {
		desc = "No description"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "%s: $%s\n", c.Symbol, formatPrice(price))
	fmt.Fprintf(&b, "%s: $%s\n", label, formatPrice(c.Threshold))
	fmt.Fprintf(&b, "Status: %s\n\n", status)
	fmt.Fprintf(&b, "Time: %s UTC\n\n", at.UTC().Format("2006-01-02 15:04:05"))
	b.WriteString(desc)
	return b.String()
}

// formatPrice groups thousands with two decimals; sub-unit prices keep full precision.
func formatPrice(d decimal.Decimal) string {
	if d.Abs().LessThan(decimal.NewFromInt(1)) {
		return d.String()
	}
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
