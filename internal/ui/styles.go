// Package ui renders CLI output with a small lipgloss palette. Colors are dropped
// when the output is not a color terminal.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/shopspring/decimal"

	"github.com/mschirtzinger/tripsync/internal/trip"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"}).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"}).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6e7781", Dark: "#8b949e"})
)

func init() {
	if termenv.EnvColorProfile() == termenv.Ascii || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// RenderPass renders a success message.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders an error.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderAccent renders a heading or key value.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderMuted renders secondary text.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// Money formats an amount with two decimals and the currency code.
func Money(amount decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s %s", amount.StringFixed(2), currency)
}

// TotalsTable renders per-collection totals as aligned rows.
func TotalsTable(t trip.Totals, currency string) string {
	rows := []struct {
		label  string
		amount decimal.Decimal
	}{
		{"Flights", t.Flights},
		{"Stays", t.Stays},
		{"Expenses", t.Expenses},
	}

	width := 0
	for _, r := range rows {
		if n := len(Money(r.amount, currency)); n > width {
			width = n
		}
	}
	total := Money(t.Total, currency)
	if len(total) > width {
		width = len(total)
	}

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%-10s %*s\n", r.label, width, Money(r.amount, currency))
	}
	fmt.Fprintf(&b, "%s\n", RenderMuted(strings.Repeat("-", 11+width)))
	fmt.Fprintf(&b, "%-10s %s\n", "Total", RenderAccent(fmt.Sprintf("%*s", width, total)))
	return b.String()
}
