package usecase

import (
	"strings"
	"testing"
	"time"

	"PriceWatch/internal/domain/models"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestEvaluate(t *testing.T) {
	above := models.Condition{Kind: models.KindPriceAbove, Threshold: dec("50000")}
	below := models.Condition{Kind: models.KindPriceBelow, Threshold: dec("40000")}
	breakout := models.Condition{Kind: models.KindBreakout, Threshold: dec("3000")}

	tests := []struct {
		name  string
		c     models.Condition
		price string
		prev  *decimal.Decimal
		want  bool
	}{
		{"above under", above, "49999.99", nil, false},
		{"above equal", above, "50000", nil, true},
		{"above over", above, "50200", decPtr("49500"), true},
		{"below over", below, "40000.01", nil, false},
		{"below equal", below, "40000", nil, true},
		{"below under", below, "39000", nil, true},
		{"breakout first sample", breakout, "3100", nil, false},
		{"breakout crossing", breakout, "3000.01", decPtr("2999"), true},
		{"breakout from level", breakout, "3001", decPtr("3000"), true},
		{"breakout already above", breakout, "3200", decPtr("3100"), false},
		{"breakout touch", breakout, "3000", decPtr("2999"), false},
		{"breakout falling", breakout, "2900", decPtr("3100"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Evaluate(tc.c, dec(tc.price), tc.prev))
		})
	}
}

func TestBreakoutFiresOncePerCrossing(t *testing.T) {
	c := models.Condition{Kind: models.KindBreakout, Threshold: dec("3000")}
	var prev *decimal.Decimal
	fired := 0
	for _, p := range []string{"2990", "3010", "3020", "3030"} {
		if Evaluate(c, dec(p), prev) {
			fired++
		}
		prev = decPtr(p)
	}
	require.Equal(t, 1, fired)
}

func TestBreakoutProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	c := models.Condition{Kind: models.KindBreakout, Threshold: decimal.NewFromInt(100)}

	properties.Property("never fires on two consecutive samples or on the first", prop.ForAll(
		func(raw []int64) bool {
			var prev *decimal.Decimal
			last := false
			for i, r := range raw {
				p := decimal.NewFromInt(r)
				fired := Evaluate(c, p, prev)
				if fired && (i == 0 || last) {
					return false
				}
				last = fired
				prev = &p
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(50, 150)),
	))

	properties.Property("fires exactly at upward crossings", prop.ForAll(
		func(raw []int64) bool {
			crossings, fired := 0, 0
			var prev *decimal.Decimal
			for i, r := range raw {
				p := decimal.NewFromInt(r)
				if i > 0 && raw[i-1] <= 100 && r > 100 {
					crossings++
				}
				if Evaluate(c, p, prev) {
					fired++
				}
				prev = &p
			}
			return crossings == fired
		},
		gen.SliceOf(gen.Int64Range(50, 150)),
	))

	properties.TestingRun(t)
}

func TestRenderMessage(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	msg := RenderMessage(models.Condition{
		Symbol:    "BTCUSDT",
		Kind:      models.KindPriceAbove,
		Threshold: dec("50000"),
	}, dec("50200"), at)
	require.True(t, strings.HasPrefix(msg, "PRICE ALERT\n\n"))
	require.Contains(t, msg, "BTCUSDT: $50,200.00\n")
	require.Contains(t, msg, "Target: $50,000.00\n")
	require.Contains(t, msg, "Status: ABOVE TARGET\n")
	require.Contains(t, msg, "Time: 2024-03-05 14:07:09 UTC")
	require.True(t, strings.HasSuffix(msg, "No description"))

	msg = RenderMessage(models.Condition{
		Symbol:      "ETHUSDT",
		Kind:        models.KindBreakout,
		Threshold:   dec("3000"),
		Description: "range high",
	}, dec("3001.5"), at)
	require.True(t, strings.HasPrefix(msg, "BREAKOUT ALERT\n\n"))
	require.Contains(t, msg, "Level: $3,000.00\n")
	require.Contains(t, msg, "Status: BREAKOUT\n")
	require.True(t, strings.HasSuffix(msg, "range high"))

	msg = RenderMessage(models.Condition{Symbol: "PEPEUSDT", Kind: models.KindPriceBelow, Threshold: dec("0.00001")}, dec("0.0000095"), at)
	require.Contains(t, msg, "PEPEUSDT: $0.0000095\n")
	require.Contains(t, msg, "Status: BELOW TARGET\n")
}

func TestFormatPrice(t *testing.T) {
	require.Equal(t, "1.00", formatPrice(dec("1")))
	require.Equal(t, "999.50", formatPrice(dec("999.5")))
	require.Equal(t, "1,234,567.89", formatPrice(dec("1234567.891")))
	require.Equal(t, "-12,000.00", formatPrice(dec("-12000")))
	require.Equal(t, "0.5", formatPrice(dec("0.5")))
}
