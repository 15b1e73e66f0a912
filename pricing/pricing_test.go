package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateTiers(t *testing.T) {
	start := date(2025, time.June, 1)
	testCases := []struct {
		name           string
		pricePerDay    string
		days           int
		baseTotal      string
		discountRate   string
		discountAmount string
		finalTotal     string
	}{
		{"two days no discount", "50.00", 2, "100.00", "0", "0.00", "100.00"},
		{"six days no discount", "50.00", 6, "300.00", "0", "0.00", "300.00"},
		{"seven days enters medium tier", "50.00", 7, "350.00", "0.1", "35.00", "315.00"},
		{"twenty-nine days still medium tier", "50.00", 29, "1450.00", "0.1", "145.00", "1305.00"},
		{"thirty days enters long tier", "80.00", 30, "2400.00", "0.2", "480.00", "1920.00"},
		{"eight days at 500", "500.00", 8, "4000.00", "0.1", "400.00", "3600.00"},
		{"thirty days at 100", "100.00", 30, "3000.00", "0.2", "600.00", "2400.00"},
		{"free item", "0.00", 10, "0.00", "0.1", "0.00", "0.00"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			price := decimal.RequireFromString(tc.pricePerDay)
			end := start.AddDate(0, 0, tc.days-1)
			quote, err := Calculate(price, start, end)
			require.NoError(t, err)
			assert.Equal(t, tc.days, quote.TotalDays)
			assert.Equal(t, tc.baseTotal, quote.BaseTotal.StringFixed(2))
			assert.True(t, quote.DiscountRate.Equal(decimal.RequireFromString(tc.discountRate)),
				"discount rate %s != %s", quote.DiscountRate, tc.discountRate)
			assert.Equal(t, tc.discountAmount, quote.DiscountAmount.StringFixed(2))
			assert.Equal(t, tc.finalTotal, quote.FinalTotal.StringFixed(2))
			// The breakdown must reconcile exactly on the rounded values.
			assert.True(t, quote.BaseTotal.Sub(quote.DiscountAmount).Equal(quote.FinalTotal))
		})
	}
}

func TestCalculateRounding(t *testing.T) {
	// 33.33 * 7 = 233.31, 10% discount = 23.331 which rounds half-up to 23.33.
	quote, err := Calculate(decimal.RequireFromString("33.33"), date(2025, time.June, 1), date(2025, time.June, 7))
	require.NoError(t, err)
	assert.Equal(t, "233.31", quote.BaseTotal.StringFixed(2))
	assert.Equal(t, "23.33", quote.DiscountAmount.StringFixed(2))
	assert.Equal(t, "209.98", quote.FinalTotal.StringFixed(2))

	// 10.05 * 7 = 70.35, 10% = 7.035 which rounds half-up to 7.04.
	quote, err = Calculate(decimal.RequireFromString("10.05"), date(2025, time.June, 1), date(2025, time.June, 7))
	require.NoError(t, err)
	assert.Equal(t, "7.04", quote.DiscountAmount.StringFixed(2))
	assert.Equal(t, "63.31", quote.FinalTotal.StringFixed(2))
}

func TestCalculateInvalidRange(t *testing.T) {
	price := decimal.RequireFromString("50.00")

	_, err := Calculate(price, date(2025, time.June, 5), date(2025, time.June, 5))
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = Calculate(price, date(2025, time.June, 6), date(2025, time.June, 5))
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = Calculate(decimal.RequireFromString("-1.00"), date(2025, time.June, 1), date(2025, time.June, 5))
	assert.ErrorIs(t, err, ErrNegativePrice)
}

func TestCalculateDeterministic(t *testing.T) {
	price := decimal.RequireFromString("19.99")
	start, end := date(2025, time.July, 1), date(2025, time.July, 31)
	first, err := Calculate(price, start, end)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Calculate(price, start, end)
		require.NoError(t, err)
		assert.Equal(t, first.FinalTotal.String(), again.FinalTotal.String())
	}
}

func TestTotalDaysInclusive(t *testing.T) {
	assert.Equal(t, 3, TotalDays(date(2025, time.June, 2), date(2025, time.June, 4)))
	assert.Equal(t, 1, TotalDays(date(2025, time.June, 2), date(2025, time.June, 2)))
	// Crossing a DST boundary must not skew the count (dates are UTC days).
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	start := time.Date(2025, time.March, 28, 12, 0, 0, 0, loc)
	end := time.Date(2025, time.April, 2, 12, 0, 0, 0, loc)
	assert.Equal(t, 6, TotalDays(start, end))
}
