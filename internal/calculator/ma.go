package calculator

import (
	"errors"

	"github.com/shopspring/decimal"

	"SeriesKeeper/internal/model"
)

// CalculateSMA computes the simple moving average of the most recent period values.
func CalculateSMA(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, errors.New("period must be positive")
	}
	if len(values) < period {
		return decimal.Zero, errors.New("not enough data for SMA calculation")
	}
	return decimal.Avg(values[len(values)-period], values[len(values)-period+1:]...), nil
}

// CalculatePriceSMA returns the SMA of daily prices over period days.
func CalculatePriceSMA(records []model.DailyRecord, period int) (decimal.Decimal, error) {
	return CalculateSMA(extractPrices(records), period)
}

// CalculateChange returns the percent change of price over the last days records.
func CalculateChange(records []model.DailyRecord, days int) (decimal.Decimal, error) {
	if days <= 0 {
		return decimal.Zero, errors.New("days must be positive")
	}
	if len(records) <= days {
		return decimal.Zero, errors.New("not enough data for change calculation")
	}
	from := records[len(records)-1-days].Price
	to := records[len(records)-1].Price
	if from.IsZero() {
		return decimal.Zero, errors.New("base price is zero")
	}
	return to.Sub(from).Div(from).Mul(decimal.NewFromInt(100)), nil
}

func extractPrices(records []model.DailyRecord) []decimal.Decimal {
	prices := make([]decimal.Decimal, len(records))
	for i, r := range records {
		prices[i] = r.Price
	}
	return prices
}
