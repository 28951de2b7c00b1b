package calculator

import (
	"log"
	"time"

	"github.com/shopspring/decimal"

	"SeriesKeeper/internal/model"
)

// Summary holds headline figures for a stored series.
type Summary struct {
	Records   int
	First     time.Time
	Last      time.Time
	LastPrice decimal.Decimal
	SMA7      decimal.Decimal
	SMA30     decimal.Decimal
	High30d   decimal.Decimal
	Low30d    decimal.Decimal
	Change7d  decimal.Decimal
	Position  decimal.Decimal
	Gaps      int
}

// Summarize computes a Summary. Records must be sorted by date. Figures that
// need more history than is available are left at zero.
func Summarize(records []model.DailyRecord) *Summary {
	s := &Summary{Records: len(records)}
	if len(records) == 0 {
		return s
	}
	s.First = records[0].Date
	s.Last = records[len(records)-1].Date
	s.LastPrice = records[len(records)-1].Price
	s.Gaps = Gaps(records)

	if v, err := CalculatePriceSMA(records, 7); err == nil {
		s.SMA7 = v
	}
	if v, err := CalculatePriceSMA(records, 30); err == nil {
		s.SMA30 = v
	}
	if v, err := CalculateChange(records, 7); err == nil {
		s.Change7d = v
	}
	if h, l, err := CalculateRange(records, 30); err != nil {
		log.Printf("[WARN] 30-day range calculation failed: %v", err)
	} else {
		s.High30d, s.Low30d = h, l
		if pos, err := CalculateRangePosition(s.LastPrice, h, l); err == nil {
			s.Position = pos
		}
	}
	return s
}
