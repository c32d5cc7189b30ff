package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a ClosedTrade as an Org-mode block suitable for pasting into a journal.
// Structured facts go in a PROPERTIES drawer; the Review heading is left for notes.
func FormatTradeOrg(t ClosedTrade) string {
	heading := fmt.Sprintf("** Trade: %s %s (%s)", t.Symbol, t.Reason, shortID(t.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":TRADE_ID: %s\n", t.ID))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", t.Symbol))
	b.WriteString(fmt.Sprintf(":QUANTITY: %.6f\n", t.Quantity))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %.5f\n", t.EntryPrice))
	b.WriteString(fmt.Sprintf(":EXIT_PRICE: %.5f\n", t.ExitPrice))
	b.WriteString(fmt.Sprintf(":ENTRY_TIME: %s\n", t.EntryTime.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf(":EXIT_TIME: %s\n", t.ExitTime.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf(":HOLDING_HOURS: %d\n", t.HoldingHours()))
	b.WriteString(fmt.Sprintf(":ENTRY_RSI: %.2f\n", t.EntryRSI))
	b.WriteString(fmt.Sprintf(":ENTRY_VOLUME_RATIO: %.2f\n", t.EntryVolumeRatio))
	b.WriteString(fmt.Sprintf(":COMMISSION: %s\n", cents(t.Commission)))
	b.WriteString(fmt.Sprintf(":PNL_NET: %s\n", cents(t.PnLNet)))
	b.WriteString(fmt.Sprintf(":PNL_PCT: %s\n", cents(t.PnLPercent*100)))
	b.WriteString(fmt.Sprintf(":REASON: %s\n", t.Reason))
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []ClosedTrade) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
