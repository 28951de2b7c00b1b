package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"SeriesKeeper/internal/model"
)

// Header is the canonical header row written to the store.
var Header = []string{"snapped_at", "price", "market_cap", "total_volume"}

// dateLayouts are tried in order when reading the first column.
var dateLayouts = []string{
	model.DateLayout,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// FormatError describes a row that could not be parsed. It is logged and the
// row is skipped.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Series is the in-memory view of the store file.
type Series struct {
	Path    string
	records []model.DailyRecord
	Skipped int
}

// Records returns the records in file order.
func (s *Series) Records() []model.DailyRecord {
	out := make([]model.DailyRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of parsed records.
func (s *Series) Len() int { return len(s.records) }

// Dates returns the set of date keys present in the store.
func (s *Series) Dates() map[string]struct{} {
	set := make(map[string]struct{}, len(s.records))
	for _, r := range s.records {
		set[r.Key()] = struct{}{}
	}
	return set
}

// Watermark returns the most recent date in the store.
func (s *Series) Watermark() (time.Time, bool) {
	var latest time.Time
	for _, r := range s.records {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest, !latest.IsZero()
}

// Load reads the store file. A missing or empty file yields an empty series.
func Load(path string) (*Series, error) {
	s := &Series{Path: path}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		isFirst := first
		first = false
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				log.Printf("[WARN] store %s: skipping %v", path, err)
				s.Skipped++
				continue
			}
			return nil, fmt.Errorf("read store: %w", err)
		}

		line, _ := r.FieldPos(0)
		rec, ferr := parseRow(row, line)
		if ferr != nil {
			// A header row is expected to fail; a header-less file keeps its first row.
			if isFirst && looksLikeHeader(row) {
				continue
			}
			log.Printf("[WARN] store %s: skipping %v", path, ferr)
			s.Skipped++
			continue
		}
		s.records = append(s.records, rec)
	}
	return s, nil
}

// looksLikeHeader reports whether the first field cannot be the start of a date.
func looksLikeHeader(row []string) bool {
	if len(row) == 0 {
		return true
	}
	f := strings.TrimSpace(strings.TrimPrefix(row[0], "\ufeff"))
	return f == "" || f[0] < '0' || f[0] > '9'
}

func parseRow(row []string, line int) (model.DailyRecord, error) {
	if len(row) < len(Header) {
		return model.DailyRecord{}, &FormatError{Line: line, Reason: fmt.Sprintf("expected %d fields, got %d", len(Header), len(row))}
	}
	date, err := ParseDate(row[0])
	if err != nil {
		return model.DailyRecord{}, &FormatError{Line: line, Reason: err.Error()}
	}

	var values [3]decimal.Decimal
	for i := range values {
		field := strings.TrimSpace(row[i+1])
		v, err := decimal.NewFromString(field)
		if err != nil {
			return model.DailyRecord{}, &FormatError{Line: line, Reason: fmt.Sprintf("%s %q: not a number", Header[i+1], field)}
		}
		values[i] = v
	}
	return model.DailyRecord{
		Date:        date,
		Price:       values[0],
		MarketCap:   values[1],
		TotalVolume: values[2],
	}, nil
}

// ParseDate accepts YYYY-MM-DD and YYYY-MM-DD HH:MM:SS UTC (plus the offset
// forms pandas writes) and returns the UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.DateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
