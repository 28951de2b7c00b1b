package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical on-disk date format.
const DateLayout = "2006-01-02"

// DailyRecord is one day of the series. Date is midnight UTC.
type DailyRecord struct {
	Date        time.Time
	Price       decimal.Decimal
	MarketCap   decimal.Decimal
	TotalVolume decimal.Decimal
}

// Key returns the identity key of the record.
func (r DailyRecord) Key() string {
	return r.Date.Format(DateLayout)
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DateFromMillis converts a millisecond epoch timestamp to its UTC calendar date.
func DateFromMillis(ms int64) time.Time {
	return DateOf(time.UnixMilli(ms))
}

// SeriesPoint is a single [timestamp_ms, value] sample.
type SeriesPoint struct {
	TimestampMs int64
	Value       decimal.Decimal
}

// RemoteWindow holds the three parallel series returned for a trailing window.
type RemoteWindow struct {
	CoinID       string
	Prices       []SeriesPoint
	MarketCaps   []SeriesPoint
	TotalVolumes []SeriesPoint
	FetchedAt    time.Time
}

// Quote is the latest market snapshot for a coin.
type Quote struct {
	CoinID      string
	Price       decimal.Decimal
	MarketCap   decimal.Decimal
	TotalVolume decimal.Decimal
	LastUpdated time.Time
}

// Record converts the quote into a record for its UTC date.
func (q *Quote) Record() DailyRecord {
	return DailyRecord{
		Date:        DateOf(q.LastUpdated),
		Price:       q.Price,
		MarketCap:   q.MarketCap,
		TotalVolume: q.TotalVolume,
	}
}
