// Package report renders valuation results as Markdown audit tables and
// HTML. It only formats what the kernel returns; every number shown is
// either a kernel output or FCFF_t × DF_t computed here for display.
package report

import (
	"fmt"
	"sort"
	"strings"

	"valuation_kernel/pkg/core/scenario"
	"valuation_kernel/pkg/core/valuation"
)

// Markdown renders the bridge and the per-period audit table for one valuation.
func Markdown(title string, v valuation.Valuation, s valuation.Series) string {
	var b strings.Builder

	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}

	b.WriteString("## Valuation Bridge\n\n")
	b.WriteString("| Item | Value |\n|---|---:|\n")
	row := func(label, value string) { fmt.Fprintf(&b, "| %s | %s |\n", label, value) }
	row("PV of explicit FCFF", Money(v.PVExplicit))
	row("PV of terminal value", Money(v.PVTerminal))
	row("PV of operating assets", Money(v.PVOperatingAssets))
	row("Less: net debt", Money(v.NetDebt))
	row("Plus: non-operating cash", Money(v.NonOperatingCash))
	row("Equity value", Money(v.EquityValue))
	row("**Value per share**", "**"+Money(v.ValuePerShare)+"**")
	b.WriteString("\n")

	convention := "end of period"
	if s.MidPeriod {
		convention = "mid-period"
	}
	fmt.Fprintf(&b, "## Cash Flows (%s discounting)\n\n", convention)
	b.WriteString("| Period | Revenue | EBIT | NOPAT | Reinvestment | FCFF | DF | PV |\n")
	b.WriteString("|---:|---:|---:|---:|---:|---:|---:|---:|\n")
	for t := range s.FCFF {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s | %s | %s |\n",
			t+1,
			Money(s.Revenue[t]), Money(s.EBIT[t]), Money(s.NOPAT[t]),
			Money(s.Reinvestment[t]), Money(s.FCFF[t]),
			Factor(s.DiscountFactor[t]), Money(s.FCFF[t]*s.DiscountFactor[t]))
	}
	fmt.Fprintf(&b, "| T+1 | %s | %s | %s | %s | %s | %s | %s |\n",
		Money(s.TerminalRevenue), Money(s.TerminalEBIT), Money(s.TerminalNOPAT),
		Money(s.TerminalReinvestment), Money(s.TerminalFCFF),
		Factor(s.TerminalDiscountFactor), Money(v.PVTerminal))
	b.WriteString("\n")

	b.WriteString("## Terminal Value\n\n")
	fmt.Fprintf(&b, "- Terminal value at T: %s\n", Money(v.TerminalValue))
	fmt.Fprintf(&b, "- Implied TV / EBIT(T+1): %s\n", Multiple(v.ImpliedTerminalMultiple))
	fmt.Fprintf(&b, "- Terminal share of operating value: %s\n", Percent(v.TerminalShare))

	audit := valuation.Audit(v, s)
	if audit.Balanced {
		b.WriteString("\n**Audit:** all identities balance.\n")
	} else {
		b.WriteString("\n**Audit:** OUT OF BALANCE\n\n")
		for _, w := range audit.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

// SensitivityMarkdown renders a sweep with its direction check.
func SensitivityMarkdown(t scenario.SensitivityTable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Sensitivity: %s\n\n", t.Parameter)
	b.WriteString("| Value | Value per share |\n|---:|---:|\n")
	for _, r := range t.Rows {
		fmt.Fprintf(&b, "| %s | %s |\n", Percent(r.Value), Money(r.ValuePerShare))
	}
	fmt.Fprintf(&b, "\nDirection: %s", t.Direction)
	if t.Expected != scenario.DirectionNone {
		fmt.Fprintf(&b, " (expected %s)", t.Expected)
	}
	if !t.Consistent {
		b.WriteString(" **INCONSISTENT**")
	}
	b.WriteString("\n")
	return b.String()
}

// ScenariosMarkdown renders a blended scenario result in name order.
func ScenariosMarkdown(r scenario.ScenarioResult) string {
	names := make([]string, 0, len(r.PerScenario))
	for name := range r.PerScenario {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("## Scenarios\n\n")
	b.WriteString("| Scenario | Probability | Value per share | Weighted |\n|---|---:|---:|---:|\n")
	for _, name := range names {
		o := r.PerScenario[name]
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			name, Percent(o.Probability), Money(o.Valuation.ValuePerShare), Money(o.Probability*o.Valuation.ValuePerShare))
	}
	fmt.Fprintf(&b, "| **Expected** | | **%s** | |\n\n", Money(r.ExpectedValuePerShare))
	fmt.Fprintf(&b, "Range: %s (%s) to %s (%s), spread %s\n",
		Money(r.Range.Low), r.Range.LowName, Money(r.Range.High), r.Range.HighName, Money(r.Range.Spread))
	return b.String()
}
