// Package pricing computes rental quotes. All arithmetic is fixed-point
// decimal; binary floats never touch a money amount.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Duration discount tiers. A rental of 30 or more inclusive days gets 20%
// off the base total, 7 to 29 days gets 10%, shorter rentals pay full price.
const (
	LongTermDays   = 30
	MediumTermDays = 7
)

var (
	longTermRate   = decimal.NewFromFloat(0.20)
	mediumTermRate = decimal.NewFromFloat(0.10)

	// ErrInvalidDateRange is returned when startDate is not strictly before
	// endDate. The minimum rental is two inclusive days.
	ErrInvalidDateRange = fmt.Errorf("startDate must be strictly before endDate")
	// ErrNegativePrice is returned for a negative pricePerDay.
	ErrNegativePrice = fmt.Errorf("pricePerDay must not be negative")
)

// Quote is the full price breakdown for a rental period.
type Quote struct {
	TotalDays      int
	BaseTotal      decimal.Decimal
	DiscountRate   decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalTotal     decimal.Decimal
}

// TotalDays counts days inclusively: a booking from Monday to Wednesday
// spans 3 days.
func TotalDays(startDate, endDate time.Time) int {
	start := toUTCDate(startDate)
	end := toUTCDate(endDate)
	return int(end.Sub(start).Hours()/24) + 1
}

// DiscountRate returns the discount tier for the given inclusive day count.
func DiscountRate(totalDays int) decimal.Decimal {
	switch {
	case totalDays >= LongTermDays:
		return longTermRate
	case totalDays >= MediumTermDays:
		return mediumTermRate
	default:
		return decimal.Zero
	}
}

// Calculate produces the quote for renting at pricePerDay over the inclusive
// period [startDate, endDate]. Every monetary component is rounded half-up to
// 2 decimal places, and the identity
// finalTotal = baseTotal - discountAmount holds exactly on the rounded values.
// The calculation is deterministic: equal inputs yield equal quotes.
func Calculate(pricePerDay decimal.Decimal, startDate, endDate time.Time) (*Quote, error) {
	if pricePerDay.IsNegative() {
		return nil, ErrNegativePrice
	}
	start := toUTCDate(startDate)
	end := toUTCDate(endDate)
	if !start.Before(end) {
		return nil, ErrInvalidDateRange
	}

	totalDays := TotalDays(start, end)
	rate := DiscountRate(totalDays)

	baseTotal := pricePerDay.Mul(decimal.NewFromInt(int64(totalDays))).Round(2)
	discountAmount := baseTotal.Mul(rate).Round(2)
	finalTotal := baseTotal.Sub(discountAmount)

	return &Quote{
		TotalDays:      totalDays,
		BaseTotal:      baseTotal,
		DiscountRate:   rate,
		DiscountAmount: discountAmount,
		FinalTotal:     finalTotal,
	}, nil
}

// toUTCDate truncates t to midnight UTC so day arithmetic is DST-proof.
func toUTCDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
