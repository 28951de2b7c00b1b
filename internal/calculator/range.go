package calculator

import (
	"errors"

	"github.com/shopspring/decimal"

	"SeriesKeeper/internal/model"
)

// CalculateRange scans the most recent days records and returns the highest
// and lowest price.
func CalculateRange(records []model.DailyRecord, days int) (high, low decimal.Decimal, err error) {
	if len(records) == 0 {
		return decimal.Zero, decimal.Zero, errors.New("no records provided")
	}
	if days <= 0 {
		return decimal.Zero, decimal.Zero, errors.New("days must be positive")
	}
	n := len(records)
	start := n - days
	if start < 0 {
		start = 0
	}
	high = records[start].Price
	low = records[start].Price
	for i := start + 1; i < n; i++ {
		p := records[i].Price
		if p.GreaterThan(high) {
			high = p
		}
		if p.LessThan(low) {
			low = p
		}
	}
	return high, low, nil
}

// CalculateRangePosition returns where current sits within [low, high] (0.0~1.0).
func CalculateRangePosition(current, high, low decimal.Decimal) (decimal.Decimal, error) {
	if high.Equal(low) {
		return decimal.NewFromFloat(0.5), nil
	}
	if high.LessThan(low) {
		return decimal.Zero, errors.New("high must be >= low")
	}
	pos := current.Sub(low).Div(high.Sub(low))
	if pos.IsNegative() {
		pos = decimal.Zero
	}
	if pos.GreaterThan(decimal.NewFromInt(1)) {
		pos = decimal.NewFromInt(1)
	}
	return pos, nil
}

// Gaps returns the number of missing calendar days between the first and
// last record. Records must be sorted by date.
func Gaps(records []model.DailyRecord) int {
	if len(records) < 2 {
		return 0
	}
	span := int(records[len(records)-1].Date.Sub(records[0].Date).Hours()/24) + 1
	missing := span - len(records)
	if missing < 0 {
		return 0
	}
	return missing
}
