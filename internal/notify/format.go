package notify

import (
	"fmt"
	"strings"
	"time"

	"chartsignal/internal/domain"
)

// FormatSignalAlert renders a finalized signal as a notification title and
// body. The body is plain text so every sender can carry it unchanged.
func FormatSignalAlert(sig *domain.TradeSignal) (title, body string) {
	title = fmt.Sprintf("%s %s signal", sig.Direction, sig.Ticker)

	var b strings.Builder
	fmt.Fprintf(&b, "Direction: %s\n", sig.Direction)
	fmt.Fprintf(&b, "Ticker: %s\n", sig.Ticker)
	fmt.Fprintf(&b, "Entry: %s\n", sig.EntryHint)
	if sig.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", sig.Author)
	}
	if !sig.DetectedAt.IsZero() {
		fmt.Fprintf(&b, "Detected: %s\n", sig.DetectedAt.UTC().Format(time.RFC3339))
	}

	if p := sig.Prices; p.HasPrices() {
		b.WriteString("\n")
		writeLevel(&b, "Entry price", p.Entry)
		writeLevel(&b, "Stop loss", p.StopLoss)
		writeLevel(&b, "TP1", p.TakeProfit1)
		writeLevel(&b, "TP2", p.TakeProfit2)
		writeLevel(&b, "TP3", p.TakeProfit3)
		fmt.Fprintf(&b, "Confidence: %.0f%% (%s, %s)\n",
			p.Confidence*100, p.Method, p.Elapsed.Round(time.Millisecond))
		if len(p.Violations) > 0 {
			fmt.Fprintf(&b, "Warnings: %s\n", strings.Join(p.ViolationStrings(), "; "))
		}
	} else {
		b.WriteString("\nNo chart prices extracted\n")
	}

	if sig.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", sig.Notes)
	}

	return title, strings.TrimRight(b.String(), "\n")
}

func writeLevel(b *strings.Builder, name string, v *float64) {
	if v == nil {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", name, formatPrice(*v))
}

// formatPrice trims trailing zeros so 105626.40 renders as 105626.4 and 95
// stays 95.
func formatPrice(v float64) string {
	s := strings.TrimRight(fmt.Sprintf("%.4f", v), "0")
	return strings.TrimRight(s, ".")
}
