package notifier

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"DipSentinel/internal/model"
	"DipSentinel/internal/recorder"
)

// FormatStatus renders the stored all-time highs as an aligned table.
// names maps symbols to display names and may be nil.
func FormatStatus(records []model.ATHRecord, names map[string]string) string {
	if len(records) == 0 {
		return "No ATH records stored yet.\n"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tNAME\tATH\tDATE\tUPDATED")
	for _, r := range records {
		name := names[r.Symbol]
		if name == "" {
			name = "-"
		}
		updated := "-"
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.UTC().Format("2006-01-02 15:04 UTC")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Symbol, name, formatPrice(r.ATHValue), r.ATHDate, updated)
	}
	tw.Flush()
	return b.String()
}

// FormatHistory renders recent cycles, newest first.
func FormatHistory(cycles []recorder.CycleSummary) string {
	if len(cycles) == 0 {
		return "No cycles recorded yet.\n"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEXIT\tANALYZED\tFAILED\tBUY\tRUN")
	for _, c := range cycles {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			c.Timestamp.UTC().Format(time.DateTime), c.ExitCode, c.Analyzed, c.Failed, c.BuySignals, c.RunID)
	}
	tw.Flush()
	return b.String()
}
