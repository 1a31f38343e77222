package commands

import (
	"sort"
	"strings"
	"time"

	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"

	"github.com/olekukonko/tablewriter"
)

func newTable(out *strings.Builder, header []string, alignment []int) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding(" ")
	table.SetNoWhiteSpace(true)
	table.SetColumnAlignment(alignment)
	return table
}

func codeBlock(heading, table string, updated time.Time) string {
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("```\n")
	b.WriteString(table)
	b.WriteString("```\n")
	b.WriteString(translation.Translate("_Updated %s UTC_", helpers.EscapeMarkdownV2(updated.UTC().Format("2006-01-02 15:04"))))
	return b.String()
}

// FormatBoard renders the market board as a monospace table.
func FormatBoard(rows []price.MarketRow, updated time.Time) string {
	tableString := &strings.Builder{}
	table := newTable(tableString, []string{"Coin", "Price", "24h", "Volume"}, []int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
	})
	for _, r := range rows {
		table.Append([]string{
			r.Base,
			helpers.FormatPrice(r.Last),
			helpers.FormatPercent(r.ChangePercent),
			helpers.FormatVolume(r.QuoteVolume),
		})
	}
	table.Render()

	return codeBlock(translation.Translate("📊 *TOP %d BY VOLUME*\n", len(rows)), tableString.String(), updated)
}

// FormatVolumeBoard renders 24h quote volumes with their activity level,
// highest volume first.
func FormatVolumeBoard(rows []price.MarketRow, updated time.Time) string {
	sorted := append([]price.MarketRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].QuoteVolume.GreaterThan(sorted[j].QuoteVolume)
	})

	tableString := &strings.Builder{}
	table := newTable(tableString, []string{"Coin", "Volume", "Activity"}, []int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT,
	})
	for _, r := range sorted {
		table.Append([]string{
			r.Base,
			helpers.FormatVolume(r.QuoteVolume),
			ActivityLevel(r.QuoteVolume),
		})
	}
	table.Render()

	return codeBlock(translation.Translate("🔥 *TOP %d VOLUMES*\n", len(sorted)), tableString.String(), updated)
}
