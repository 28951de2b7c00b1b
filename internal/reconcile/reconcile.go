// Package reconcile turns a fetched window into dated records and decides
// which of them are new relative to the local store.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"SeriesKeeper/internal/model"
)

// Policy selects how already-recorded days are detected.
type Policy string

const (
	// PolicySet skips any remote day already present in the store.
	PolicySet Policy = "set"
	// PolicyWatermark skips any remote day not strictly after the latest stored day.
	PolicyWatermark Policy = "watermark"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicySet, PolicyWatermark:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown dedup policy %q (want %q or %q)", s, PolicySet, PolicyWatermark)
	}
}

// Existing is what the reconciler needs to know about the store.
type Existing struct {
	Dates     map[string]struct{}
	Watermark time.Time
}

// Window joins the three series on timestamp and collapses them to one record
// per UTC date. A later sample for the same date replaces an earlier one.
// Timestamps missing from market caps or volumes are dropped.
func Window(w *model.RemoteWindow) []model.DailyRecord {
	if w == nil {
		return nil
	}
	caps := make(map[int64]model.SeriesPoint, len(w.MarketCaps))
	for _, p := range w.MarketCaps {
		caps[p.TimestampMs] = p
	}
	vols := make(map[int64]model.SeriesPoint, len(w.TotalVolumes))
	for _, p := range w.TotalVolumes {
		vols[p.TimestampMs] = p
	}

	byDate := make(map[string]model.DailyRecord, len(w.Prices))
	for _, p := range w.Prices {
		c, ok := caps[p.TimestampMs]
		if !ok {
			continue
		}
		v, ok := vols[p.TimestampMs]
		if !ok {
			continue
		}
		r := model.DailyRecord{
			Date:        model.DateFromMillis(p.TimestampMs),
			Price:       p.Value,
			MarketCap:   c.Value,
			TotalVolume: v.Value,
		}
		byDate[r.Key()] = r
	}

	out := make([]model.DailyRecord, 0, len(byDate))
	for _, r := range byDate {
		out = append(out, r)
	}
	sortByDate(out)
	return out
}

// NewRecords returns the candidates the store does not have yet, sorted by date.
func NewRecords(existing Existing, candidates []model.DailyRecord, policy Policy) []model.DailyRecord {
	out := make([]model.DailyRecord, 0, len(candidates))
	for _, r := range candidates {
		switch policy {
		case PolicyWatermark:
			if !existing.Watermark.IsZero() && !r.Date.After(existing.Watermark) {
				continue
			}
		default:
			if _, ok := existing.Dates[r.Key()]; ok {
				continue
			}
		}
		out = append(out, r)
	}
	sortByDate(out)
	return out
}

// Merge combines existing and added records into one sorted series with at
// most one record per date. For duplicate dates the last occurrence wins,
// with added records considered after existing ones.
func Merge(existing, added []model.DailyRecord) []model.DailyRecord {
	all := make([]model.DailyRecord, 0, len(existing)+len(added))
	all = append(all, existing...)
	all = append(all, added...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })

	out := all[:0]
	for _, r := range all {
		if n := len(out); n > 0 && out[n-1].Date.Equal(r.Date) {
			out[n-1] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

// Upsert replaces the record for rec's date, or inserts it, keeping order.
func Upsert(existing []model.DailyRecord, rec model.DailyRecord) []model.DailyRecord {
	return Merge(existing, []model.DailyRecord{rec})
}

func sortByDate(records []model.DailyRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
}
