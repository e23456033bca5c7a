package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the trigger rule of a condition.
type Kind string

const (
	KindPriceAbove Kind = "PRICE_ABOVE"
	KindPriceBelow Kind = "PRICE_BELOW"
	KindBreakout   Kind = "BREAKOUT"
)

// MaxSymbolLength bounds the normalized ticker length.
const MaxSymbolLength = 20

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// ParseKind accepts the canonical names and the lower-case aliases used by bot commands
// (price_above, above, price_below, below, breakout).
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PRICE_ABOVE", "ABOVE":
		return KindPriceAbove, nil
	case "PRICE_BELOW", "BELOW":
		return KindPriceBelow, nil
	case "BREAKOUT":
		return KindBreakout, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPriceAbove, KindPriceBelow, KindBreakout:
		return true
	}
	return false
}

// NormalizeSymbol trims and upper-cases s and checks it is a plain alphanumeric ticker.
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if sym == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSymbol)
	}
	if len(sym) > MaxSymbolLength {
		return "", fmt.Errorf("%w: %q longer than %d", ErrInvalidSymbol, sym, MaxSymbolLength)
	}
	if !symbolPattern.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, sym)
	}
	return sym, nil
}

// ParseThreshold parses a decimal threshold. NaN, infinities and non-positive values are rejected.
func ParseThreshold(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidThreshold, s)
	}
	if err := ValidateThreshold(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// Amount is a decimal carried on the wire as either a JSON string or a JSON number.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidThreshold, b)
	}
	*a = Amount(n.String())
	return nil
}

// ValidateThreshold checks a threshold is strictly positive.
func ValidateThreshold(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidThreshold, d.String())
	}
	return nil
}

// Condition is a user-declared alert rule. Conditions are replaced, never edited.
type Condition struct {
	ID          string          `json:"id"`
	Owner       string          `json:"owner"`
	Symbol      string          `json:"symbol"`
	Kind        Kind            `json:"kind"`
	Threshold   decimal.Decimal `json:"threshold"`
	Description string          `json:"description"`
	OneShot     bool            `json:"one_shot"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Signature identifies a condition for cooldown purposes independent of its id,
// so re-registering an identical rule shares the same cooldown window.
func (c Condition) Signature() string {
	return string(c.Kind) + ":" + c.Threshold.String()
}

// CreateConditionInput carries caller-supplied fields for a new condition.
type CreateConditionInput struct {
	Owner       string
	Symbol      string
	Kind        Kind
	Threshold   decimal.Decimal
	Description string
	OneShot     bool
}

// StoreStats is a read-only aggregate over the condition store.
type StoreStats struct {
	Total    int            `json:"total"`
	BySymbol map[string]int `json:"by_symbol"`
}
