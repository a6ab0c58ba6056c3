package engine

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"eodcloser/internal/domain"
)

// maxListedFailures caps the failure lines in one message; Telegram rejects
// messages over 4096 characters.
const maxListedFailures = 15

// FormatPnL formats a P&L amount with an explicit sign and two decimals.
func FormatPnL(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if d.IsPositive() {
		return "+" + s
	}
	return s
}

// formatCount renders a count, or "?" when listing failed.
func formatCount(n int) string {
	if n < 0 {
		return "?"
	}
	return fmt.Sprintf("%d", n)
}

// FormatPreAlert builds the warning sent ahead of the close.
func FormatPreAlert(rec *domain.RunRecord, lead time.Duration, closeAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ <b>End-of-day close in %d min</b>\n", int(lead/time.Minute))
	fmt.Fprintf(&b, "Closing at %s\n", closeAt.Format("15:04 MST"))
	fmt.Fprintf(&b, "Open positions: %s\n", formatCount(rec.Positions))
	fmt.Fprintf(&b, "Pending orders: %s", formatCount(rec.Orders))
	writeFailures(&b, rec.Failures)
	return b.String()
}

// FormatClosing builds the summary sent after the liquidation run.
func FormatClosing(rec *domain.RunRecord, nextRun time.Time) string {
	var b strings.Builder
	if rec.Failed() {
		b.WriteString("⚠️ <b>End-of-day close finished with errors</b>\n")
	} else {
		b.WriteString("✅ <b>End-of-day close complete</b>\n")
	}
	fmt.Fprintf(&b, "Date: %s\n", rec.LocalDate)
	fmt.Fprintf(&b, "Positions closed: %d/%s\n", rec.PositionsClosed, formatCount(rec.Positions))
	fmt.Fprintf(&b, "Orders cancelled: %d/%s\n", rec.OrdersCancelled, formatCount(rec.Orders))
	fmt.Fprintf(&b, "Realized P&amp;L: %s\n", FormatPnL(rec.RealizedPnL))
	fmt.Fprintf(&b, "Next run: %s", nextRun.Format("Mon 2006-01-02 15:04 MST"))
	writeFailures(&b, rec.Failures)
	return b.String()
}

func writeFailures(b *strings.Builder, failures []string) {
	if len(failures) == 0 {
		return
	}
	b.WriteString("\n\n<b>Failures:</b>")
	for i, f := range failures {
		if i == maxListedFailures {
			fmt.Fprintf(b, "\n… and %d more", len(failures)-maxListedFailures)
			break
		}
		b.WriteString("\n• ")
		b.WriteString(html.EscapeString(f))
	}
}
