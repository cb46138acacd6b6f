package notifier

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"DipSentinel/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	actionRequired = "ACTION REQUIRED: One or more indices have buy signals."
	noAction       = "No action required at this time."
)

// palette colors the console report. A disabled palette returns plain text.
type palette struct {
	header, index, ath, price, gapUp, gapDown *color.Color
	buy, hold, newATH, failure, action, quiet *color.Color
}

func newPalette(enabled bool) *palette {
	p := &palette{
		header:  color.New(color.FgHiCyan, color.Bold),
		index:   color.New(color.FgHiWhite, color.Bold),
		ath:     color.New(color.FgBlue),
		price:   color.New(color.FgWhite),
		gapUp:   color.New(color.FgGreen),
		gapDown: color.New(color.FgRed),
		buy:     color.New(color.FgHiGreen, color.Bold),
		hold:    color.New(color.FgYellow),
		newATH:  color.New(color.FgHiMagenta, color.Bold),
		failure: color.New(color.FgRed, color.Bold),
		action:  color.New(color.FgHiRed, color.Bold),
		quiet:   color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{p.header, p.index, p.ath, p.price, p.gapUp, p.gapDown,
		p.buy, p.hold, p.newATH, p.failure, p.action, p.quiet} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func formatPrice(d decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", d.InexactFloat64())
}

func formatGap(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if !strings.HasPrefix(s, "-") {
		s = "+" + s
	}
	return s + "%"
}

func displayName(e model.SymbolOutcome) string {
	if e.Name == "" || e.Name == e.Symbol {
		return e.Symbol
	}
	return fmt.Sprintf("%s (%s)", e.Name, e.Symbol)
}

// Subject returns the email subject line.
func Subject(r *model.Report) string {
	prefix := "[INFO]"
	if r.HasBuySignals() {
		prefix = "[ACTION]"
	}
	return fmt.Sprintf("%s DCA Market Alert - %s", prefix, r.MarketDate)
}

// FormatText renders the report for a terminal or a plain-text email.
func FormatText(r *model.Report, colored bool) string {
	p := newPalette(colored)
	var b strings.Builder

	b.WriteString(p.header.Sprintf("=== DCA Market Alert - %s ===", r.MarketDate))
	b.WriteString("\n\n")

	for _, e := range r.Entries {
		b.WriteString(p.index.Sprint(displayName(e)))
		b.WriteString("\n")
		if e.Failure != nil {
			b.WriteString("  ")
			b.WriteString(p.failure.Sprintf("FETCH FAILED: %s", e.Failure.Reason))
			b.WriteString("\n\n")
			continue
		}
		res := e.Result
		b.WriteString(fmt.Sprintf("  ATH:     %s (%s)\n", p.ath.Sprint("$"+formatPrice(res.ATHValue)), res.ATHDate))
		b.WriteString(fmt.Sprintf("  Current: %s\n", p.price.Sprint("$"+formatPrice(res.CurrentPrice))))
		gap := p.gapUp
		if res.GapPercent.IsNegative() {
			gap = p.gapDown
		}
		b.WriteString(fmt.Sprintf("  Gap:     %s\n", gap.Sprint(formatGap(res.GapPercent))))
		rec := p.hold
		switch {
		case res.IsNewATH():
			rec = p.newATH
		case res.IsBuy():
			rec = p.buy
		}
		b.WriteString("  " + rec.Sprint(res.Label()) + "\n\n")
	}

	if r.PersistenceWarning != "" {
		b.WriteString(p.failure.Sprintf("WARNING: ATH state was not saved: %s", r.PersistenceWarning))
		b.WriteString("\n")
	}
	if r.HasBuySignals() {
		b.WriteString(p.action.Sprint(actionRequired))
	} else {
		b.WriteString(p.quiet.Sprint(noAction))
	}
	b.WriteString("\n")
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "|", `\|`, "*", `\*`, "_", `\_`, "`", "\\`",
	"[", `\[`, "]", `\]`, "<", `\<`, ">", `\>`, "#", `\#`,
)

// FormatMarkdown renders the report as GitHub-flavoured Markdown.
func FormatMarkdown(r *model.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# DCA Market Alert - %s\n\n", r.MarketDate)

	var analyzed, failed []model.SymbolOutcome
	for _, e := range r.Entries {
		if e.Failure != nil {
			failed = append(failed, e)
		} else {
			analyzed = append(analyzed, e)
		}
	}

	if len(analyzed) > 0 {
		b.WriteString("| Index | ATH | Current | Gap | Recommendation |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, e := range analyzed {
			res := e.Result
			label := markdownEscaper.Replace(res.Label())
			if res.IsBuy() {
				label = "**" + label + "**"
			}
			fmt.Fprintf(&b, "| **%s** | %s (%s) | %s | %s | %s |\n",
				markdownEscaper.Replace(displayName(e)),
				formatPrice(res.ATHValue), res.ATHDate,
				formatPrice(res.CurrentPrice),
				formatGap(res.GapPercent),
				label)
		}
		b.WriteString("\n")
	}

	if len(failed) > 0 {
		b.WriteString("## Fetch failures\n\n")
		for _, e := range failed {
			fmt.Fprintf(&b, "- **%s**: %s\n", markdownEscaper.Replace(displayName(e)), markdownEscaper.Replace(e.Failure.Reason))
		}
		b.WriteString("\n")
	}

	if r.PersistenceWarning != "" {
		fmt.Fprintf(&b, "**WARNING:** ATH state was not saved: %s\n\n", markdownEscaper.Replace(r.PersistenceWarning))
	}
	if r.HasBuySignals() {
		fmt.Fprintf(&b, "**%s**\n\n", actionRequired)
	} else {
		fmt.Fprintf(&b, "%s\n\n", noAction)
	}
	fmt.Fprintf(&b, "---\n\nGenerated at %s (run %s)\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"), r.RunID)
	return b.String()
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
table { border-collapse: collapse; width: 100%%; }
th, td { border: 1px solid #ddd; padding: 12px; text-align: left; }
th { background-color: #4a90d9; color: white; }
tr:nth-child(even) { background-color: #f9f9f9; }
h1 { color: #333; }
</style>
</head>
<body>
%s</body>
</html>
`

// FormatHTML renders the Markdown report into an HTML document.
func FormatHTML(r *model.Report) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(FormatMarkdown(r)), &buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return fmt.Sprintf(htmlTemplate, buf.String()), nil
}

// FormatTelegram renders the report using Telegram's HTML subset.
func FormatTelegram(r *model.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📉 <b>DCA Market Alert</b> | %s\n\n", r.MarketDate)

	for _, e := range r.Entries {
		fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(displayName(e)))
		if e.Failure != nil {
			fmt.Fprintf(&b, "❌ fetch failed: %s\n\n", html.EscapeString(e.Failure.Reason))
			continue
		}
		res := e.Result
		fmt.Fprintf(&b, "ATH: %s (%s)\n", formatPrice(res.ATHValue), res.ATHDate)
		fmt.Fprintf(&b, "Current: %s | Gap: %s\n", formatPrice(res.CurrentPrice), formatGap(res.GapPercent))
		icon := "⏸"
		switch {
		case res.IsNewATH():
			icon = "🏔"
		case res.IsBuy():
			icon = "🟢"
		}
		fmt.Fprintf(&b, "%s %s\n\n", icon, html.EscapeString(res.Label()))
	}

	if r.PersistenceWarning != "" {
		fmt.Fprintf(&b, "⚠️ ATH state was not saved: %s\n", html.EscapeString(r.PersistenceWarning))
	}
	if r.HasBuySignals() {
		fmt.Fprintf(&b, "<b>%s</b>", actionRequired)
	} else {
		b.WriteString(noAction)
	}
	return b.String()
}
