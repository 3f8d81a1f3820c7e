package notifier

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/suspectuso/attention-tracker/internal/address"
	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/telegram"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

// formatAlert renders the zone-entry alert of tok for zone z
func formatAlert(tok *storage.Token, z zone.Zone) string {
	entry := tok.Zones[z]

	lines := []string{
		fmt.Sprintf("<b>%s Alert</b> 🚀", z.Title()),
		"",
		fmt.Sprintf("<b>$%s</b> has entered the zone!", html.EscapeString(tok.Symbol)),
		"",
		fmt.Sprintf("<b>Mcap:</b> %s", formatUSD(entry.EntryMcap)),
		"",
		fmt.Sprintf("🧠 <b>Scans:</b> %s", humanize.Comma(tok.ScanCount)),
		fmt.Sprintf("👥 <b>Groups:</b> %d", tok.GroupCount),
		fmt.Sprintf("👀 <b>Views:</b> %s", humanize.Comma(tok.Views)),
		fmt.Sprintf("𝕏 <b>Posts:</b> %s", humanize.Comma(tok.PostCount)),
		fmt.Sprintf("📈 <b>Post views:</b> %s", humanize.Comma(tok.PostViews)),
		"",
		fmt.Sprintf("<code>%s</code>", address.Display(tok.Address)),
	}

	return strings.Join(lines, "\n")
}

// formatCheckpoint renders the follow-up sent when a token reaches a
// multiple of its alert-time market cap
func formatCheckpoint(tok *storage.Token, r *storage.Receipt, multiple float64) string {
	return fmt.Sprintf(
		"🎯 <b>$%s hit %s</b> since your %s alert!\n\n"+
			"<b>Entry:</b> %s → <b>Now:</b> %s",
		html.EscapeString(tok.Symbol), formatMultiple(multiple), r.Zone.Title(),
		formatUSD(r.EntryMcap), formatUSD(tok.CurrentMcap),
	)
}

// tradeLinks returns the DEX and GMGN buttons for an address
func tradeLinks(addr string) []telegram.Button {
	switch address.ChainOf(addr) {
	case address.ChainEVM:
		return []telegram.Button{
			{Text: "DEX", URL: "https://dexscreener.com/bsc/" + addr},
			{Text: "GMGN", URL: "https://gmgn.ai/bsc/token/attn_" + addr},
		}
	case address.ChainTON:
		display := address.Display(addr)
		return []telegram.Button{
			{Text: "DEX", URL: "https://dexscreener.com/ton/" + display},
		}
	default:
		return []telegram.Button{
			{Text: "DEX", URL: "https://dexscreener.com/solana/" + addr},
			{Text: "GMGN", URL: "https://gmgn.ai/sol/token/attn_" + addr},
		}
	}
}

func formatMultiple(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64) + "x"
}

func formatUSD(num float64) string {
	return "$" + formatNumber(num)
}

func formatNumber(num float64) string {
	abs := num
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", num/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.2fM", num/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.2fK", num/1_000)
	default:
		return fmt.Sprintf("%.2f", num)
	}
}
