package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"SeriesKeeper/internal/calculator"
	"SeriesKeeper/internal/model"
	"SeriesKeeper/internal/syncer"
)

// FormatSyncReport formats a completed sync run.
func FormatSyncReport(coinID string, res *syncer.Result) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📥 <b>%s daily sync</b> | %s\n\n", html.EscapeString(coinID), time.Now().UTC().Format("2006-01-02 15:04")))
	if res.UpToDate() {
		b.WriteString(fmt.Sprintf("Already up to date (%d days fetched)\n", res.Fetched))
	} else {
		b.WriteString(fmt.Sprintf("Added %d of %d fetched days\n", res.Added, res.Fetched))
		b.WriteString(fmt.Sprintf("New: %s\n", strings.Join(res.AddedDates, ", ")))
	}
	b.WriteString(fmt.Sprintf("Records: %d | Latest: %s\n", res.Total, formatDate(res.Watermark)))
	return b.String()
}

// FormatLatestReport formats a latest-price update.
func FormatLatestReport(coinID string, res *syncer.LatestResult) string {
	if res.NoData {
		return fmt.Sprintf("⚠️ No latest price returned for %s", html.EscapeString(coinID))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💱 <b>%s latest</b> | %s\n\n", html.EscapeString(coinID), res.Record.Key()))
	b.WriteString(fmt.Sprintf("Price: %s\n", res.Record.Price.StringFixed(2)))
	b.WriteString(fmt.Sprintf("Market cap: %s\n", res.Record.MarketCap.StringFixed(0)))
	b.WriteString(fmt.Sprintf("Volume: %s\n", res.Record.TotalVolume.StringFixed(0)))
	switch {
	case !res.Changed:
		b.WriteString("Unchanged\n")
	case res.Replaced:
		b.WriteString("Replaced today's record\n")
	default:
		b.WriteString("Inserted today's record\n")
	}
	return b.String()
}

// FormatFailure formats a failed run.
func FormatFailure(task string, err error) string {
	return fmt.Sprintf("❌ <b>%s failed</b>\n\n%s\n\nThe store was left unchanged.", html.EscapeString(task), html.EscapeString(err.Error()))
}

// FormatStatus formats a summary of the stored series.
func FormatStatus(coinID string, sum *calculator.Summary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>%s series</b>\n\n", html.EscapeString(coinID)))
	if sum.Records == 0 {
		b.WriteString("No records stored yet\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Records: %d (%s → %s)\n", sum.Records, formatDate(sum.First), formatDate(sum.Last)))
	if sum.Gaps > 0 {
		b.WriteString(fmt.Sprintf("Missing days: %d\n", sum.Gaps))
	}
	b.WriteString(fmt.Sprintf("Last price: %s\n", sum.LastPrice.StringFixed(2)))
	if !sum.SMA7.IsZero() {
		b.WriteString(fmt.Sprintf("SMA7: %s", sum.SMA7.StringFixed(2)))
		if !sum.SMA30.IsZero() {
			b.WriteString(fmt.Sprintf(" | SMA30: %s", sum.SMA30.StringFixed(2)))
		}
		b.WriteString("\n")
	}
	if !sum.Change7d.IsZero() {
		b.WriteString(fmt.Sprintf("7d change: %s%%\n", signed(sum.Change7d.StringFixed(2))))
	}
	b.WriteString(fmt.Sprintf("30d range: %s ~ %s (position %s%%)\n",
		sum.Low30d.StringFixed(2), sum.High30d.StringFixed(2), sum.Position.Shift(2).StringFixed(0)))
	return b.String()
}

func signed(s string) string {
	if strings.HasPrefix(s, "-") {
		return s
	}
	return "+" + s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	return t.Format(model.DateLayout)
}
