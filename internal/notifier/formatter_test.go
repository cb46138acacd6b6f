package notifier

import (
	"strings"
	"testing"
	"time"

	"DipSentinel/internal/model"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func sampleReport() *model.Report {
	five := decimal.NewFromInt(5)
	newHigh := &model.ATHRecord{Symbol: "^NDX", ATHValue: decimal.NewFromInt(21000), ATHDate: day(2025, 3, 12)}
	return &model.Report{
		RunID:       "run-1",
		GeneratedAt: time.Date(2025, 3, 12, 21, 5, 0, 0, time.UTC),
		MarketDate:  day(2025, 3, 12),
		Entries: []model.SymbolOutcome{
			{
				Symbol: "^GSPC", Name: "S&P 500",
				Result: &model.AnalysisResult{
					Symbol:         "^GSPC",
					CurrentPrice:   decimal.RequireFromString("5599.30"),
					ATHValue:       decimal.RequireFromString("6144.15"),
					ATHDate:        day(2025, 2, 19),
					GapPercent:     decimal.RequireFromString("-8.87"),
					Tier:           five,
					Increment:      five,
					Recommendation: model.RecommendBuy,
				},
			},
			{
				Symbol: "^NDX", Name: "NASDAQ 100",
				Result: &model.AnalysisResult{
					Symbol:         "^NDX",
					CurrentPrice:   decimal.NewFromInt(21000),
					ATHValue:       decimal.NewFromInt(21000),
					ATHDate:        day(2025, 3, 12),
					GapPercent:     decimal.Zero,
					Tier:           decimal.Zero,
					Increment:      five,
					Recommendation: model.RecommendHold,
					UpdatedATH:     newHigh,
				},
			},
			{
				Symbol: "^RUT", Name: "Russell 2000",
				Failure: &model.FetchFailure{Symbol: "^RUT", Reason: "timeout"},
			},
		},
	}
}

func holdReport() *model.Report {
	r := sampleReport()
	r.Entries = r.Entries[1:2]
	return r
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "[ACTION] DCA Market Alert - 2025-03-12", Subject(sampleReport()))
	assert.Equal(t, "[INFO] DCA Market Alert - 2025-03-12", Subject(holdReport()))
}

func TestFormatText(t *testing.T) {
	out := FormatText(sampleReport(), false)

	assert.True(t, strings.HasPrefix(out, "=== DCA Market Alert - 2025-03-12 ===\n\n"))
	assert.Contains(t, out, "S&P 500 (^GSPC)\n"+
		"  ATH:     $6,144.15 (2025-02-19)\n"+
		"  Current: $5,599.30\n"+
		"  Gap:     -8.87%\n"+
		"  >>> BUY SIGNAL <<<\n")
	assert.Contains(t, out, "  Gap:     +0.00%\n  NEW ATH - HOLD\n")
	assert.Contains(t, out, "Russell 2000 (^RUT)\n  FETCH FAILED: timeout\n")
	assert.True(t, strings.HasSuffix(out, "ACTION REQUIRED: One or more indices have buy signals.\n"))
	assert.NotContains(t, out, "\x1b[")
}

func TestFormatTextHoldAndWarning(t *testing.T) {
	r := holdReport()
	r.PersistenceWarning = "disk full"
	out := FormatText(r, false)

	assert.Contains(t, out, "WARNING: ATH state was not saved: disk full")
	assert.True(t, strings.HasSuffix(out, "No action required at this time.\n"))
}

func TestFormatTextColored(t *testing.T) {
	out := FormatText(sampleReport(), true)
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, ">>> BUY SIGNAL <<<")
}

func TestFormatTextSymbolWithoutName(t *testing.T) {
	r := holdReport()
	r.Entries[0].Name = ""
	assert.Contains(t, FormatText(r, false), "===\n\n^NDX\n")
}

func TestFormatMarkdown(t *testing.T) {
	md := FormatMarkdown(sampleReport())

	assert.Contains(t, md, "# DCA Market Alert - 2025-03-12")
	assert.Contains(t, md, "| Index | ATH | Current | Gap | Recommendation |")
	assert.Contains(t, md, `| **S&P 500 (^GSPC)** | 6,144.15 (2025-02-19) | 5,599.30 | -8.87% | **\>\>\> BUY SIGNAL \<\<\<** |`)
	assert.Contains(t, md, "- **Russell 2000 (^RUT)**: timeout")
	assert.Contains(t, md, "run run-1")
}

func TestFormatHTML(t *testing.T) {
	out, err := FormatHTML(sampleReport())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<th>Index</th>")
	assert.Contains(t, out, "&gt;&gt;&gt; BUY SIGNAL &lt;&lt;&lt;")
	assert.Contains(t, out, "<h2>Fetch failures</h2>")
	assert.Contains(t, out, "width: 100%;")
	assert.NotContains(t, out, "<script")
}

func TestFormatHTMLEscapesReasons(t *testing.T) {
	r := sampleReport()
	r.Entries[2].Failure.Reason = "<script>alert(1)</script> | *bold*"
	out, err := FormatHTML(r)
	require.NoError(t, err)

	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.NotContains(t, out, "<em>bold</em>")
}

func TestFormatTelegram(t *testing.T) {
	out := FormatTelegram(sampleReport())

	assert.Contains(t, out, "<b>DCA Market Alert</b> | 2025-03-12")
	assert.Contains(t, out, "<b>S&amp;P 500 (^GSPC)</b>")
	assert.Contains(t, out, "Current: 5,599.30 | Gap: -8.87%")
	assert.Contains(t, out, "🟢 &gt;&gt;&gt; BUY SIGNAL &lt;&lt;&lt;")
	assert.Contains(t, out, "🏔 NEW ATH - HOLD")
	assert.Contains(t, out, "❌ fetch failed: timeout")
	assert.Contains(t, out, "<b>ACTION REQUIRED")
}

func TestFormatGap(t *testing.T) {
	assert.Equal(t, "+0.00%", formatGap(decimal.Zero))
	assert.Equal(t, "-4.98%", formatGap(decimal.RequireFromString("-4.983")))
	assert.Equal(t, "-11.90%", formatGap(decimal.RequireFromString("-11.9047")))
}
