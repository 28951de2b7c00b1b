package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SeriesKeeper/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rec(date, price string) model.DailyRecord {
	return model.DailyRecord{
		Date:        day(date),
		Price:       decimal.RequireFromString(price),
		MarketCap:   decimal.RequireFromString(price).Mul(decimal.NewFromInt(1000)),
		TotalVolume: decimal.NewFromInt(5),
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_MissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.csv"))
	require.NoError(t, err)
	assert.Zero(t, s.Len())
	_, ok := s.Watermark()
	assert.False(t, ok)
}

func TestLoad_EmptyFile(t *testing.T) {
	s, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Zero(t, s.Len())
}

func TestLoad_BothDateFormats(t *testing.T) {
	path := writeFile(t, "snapped_at,price,market_cap,total_volume\n"+
		"2013-04-28 00:00:00 UTC,135.3,1500517590,0\n"+
		"2024-01-02,44187.14,865743577454,19830541362\n"+
		"2024-01-03 00:00:00+00:00,42848.17,839513209540,31452373411\n")

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	recs := s.Records()
	assert.Equal(t, "2013-04-28", recs[0].Key())
	assert.Equal(t, "2024-01-02", recs[1].Key())
	assert.Equal(t, "2024-01-03", recs[2].Key())
	assert.Equal(t, "135.3", recs[0].Price.String())

	wm, ok := s.Watermark()
	require.True(t, ok)
	assert.Equal(t, day("2024-01-03"), wm)

	dates := s.Dates()
	assert.Contains(t, dates, "2024-01-02")
	assert.Len(t, dates, 3)
}

func TestLoad_SkipsMalformedRows(t *testing.T) {
	path := writeFile(t, "Date,Price,Market Cap,Total Volume\n"+
		"2024-01-01,1,2,3\n"+
		"not-a-date,1,2,3\n"+
		"2024-01-02,abc,2,3\n"+
		"2024-01-03,1\n"+
		"2024-01-04,4,5,6\n")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 3, s.Skipped)
}

func TestLoad_HeaderlessFileKeepsFirstRow(t *testing.T) {
	s, err := Load(writeFile(t, "2024-01-01,1,2,3\n2024-01-02,4,5,6\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestLoad_CountsBadFirstDataRow(t *testing.T) {
	s, err := Load(writeFile(t, "2024-13-01,1,2,3\n2024-01-02,4,5,6\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Skipped)

	s, err = Load(writeFile(t, "\ufeffsnapped_at,price,market_cap,total_volume\n2024-01-02,4,5,6\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Zero(t, s.Skipped)
}

func TestParseDate_UsesUTC(t *testing.T) {
	d, err := ParseDate("2024-01-01T23:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-02"), d)

	_, err = ParseDate("01/02/2024")
	assert.Error(t, err)
}

func TestRewrite_WritesCanonicalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "series.csv")
	require.NoError(t, Rewrite(path, []model.DailyRecord{rec("2024-01-01", "1.50"), rec("2024-01-02", "2")}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "snapped_at,price,market_cap,total_volume\n"+
		"2024-01-01,1.5,1500,5\n"+
		"2024-01-02,2,2000,5\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestRewrite_RoundTripIsByteStable(t *testing.T) {
	content := "snapped_at,price,market_cap,total_volume\n" +
		"2024-01-01,42280.234967311,827596236151.196,14398024615.5\n"
	path := writeFile(t, content)

	s, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Rewrite(path, s.Records()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, Append(path, []model.DailyRecord{rec("2024-01-01", "1")}))
	require.NoError(t, Append(path, []model.DailyRecord{rec("2024-01-02", "2")}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "snapped_at,price,market_cap,total_volume\n"+
		"2024-01-01,1,1000,5\n"+
		"2024-01-02,2,2000,5\n", string(data))
}

func TestAppend_RestoresMissingNewline(t *testing.T) {
	path := writeFile(t, "snapped_at,price,market_cap,total_volume\n2024-01-01,1,2,3")
	require.NoError(t, Append(path, []model.DailyRecord{rec("2024-01-02", "2")}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "snapped_at,price,market_cap,total_volume\n"+
		"2024-01-01,1,2,3\n"+
		"2024-01-02,2,2000,5\n", string(data))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Zero(t, s.Skipped)
}

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")

	l, err := AcquireLock(path)
	require.NoError(t, err)

	_, err = AcquireLock(path)
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, l.Release())
	l2, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
