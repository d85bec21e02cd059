package valuation

import (
	"fmt"
	"math"
)

// AuditTolerance is the relative gap the audit accepts on each identity.
const AuditTolerance = 1e-8

// AuditResult holds the outcome of re-deriving a valuation from its series.
type AuditResult struct {
	Balanced bool     `json:"balanced"`
	MaxGap   float64  `json:"max_gap"` // largest absolute gap found
	Warnings []string `json:"warnings,omitempty"`
}

// Audit recomputes every identity the bridge rests on from the series alone:
//
//	FCFF_t           = NOPAT_t - Reinvestment_t
//	PV_explicit      = Σ FCFF_t × DF_t
//	PV_terminal      = TV × DF_T
//	PV_oper_assets   = PV_explicit + PV_terminal
//	Equity           = PV_oper_assets - Net_Debt + Cash_nonop
//
// It is a check on a finished result, not part of producing one.
func Audit(v Valuation, s Series) AuditResult {
	scale := math.Max(1, math.Abs(v.PVOperatingAssets))
	res := AuditResult{Balanced: true}

	check := func(label string, got, want float64) {
		gap := got - want
		if math.Abs(gap) > res.MaxGap {
			res.MaxGap = math.Abs(gap)
		}
		if !(math.Abs(gap) <= AuditTolerance*scale) {
			res.Balanced = false
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s out of balance by %.6g", label, gap))
		}
	}

	columns := []struct {
		name string
		n    int
	}{
		{"revenue", len(s.Revenue)},
		{"EBIT", len(s.EBIT)},
		{"NOPAT", len(s.NOPAT)},
		{"reinvestment", len(s.Reinvestment)},
		{"discount factors", len(s.DiscountFactor)},
	}
	for _, c := range columns {
		if c.n != len(s.FCFF) {
			res.Balanced = false
			res.Warnings = append(res.Warnings, fmt.Sprintf("series has %d cash flows but %d %s", len(s.FCFF), c.n, c.name))
		}
	}
	if !res.Balanced {
		return res
	}

	var pvExplicit float64
	for t := range s.FCFF {
		check(fmt.Sprintf("FCFF period %d", t+1), s.FCFF[t], s.NOPAT[t]-s.Reinvestment[t])
		pvExplicit += s.FCFF[t] * s.DiscountFactor[t]
	}
	check("terminal FCFF", s.TerminalFCFF, s.TerminalNOPAT-s.TerminalReinvestment)
	check("PV explicit", v.PVExplicit, pvExplicit)
	check("PV terminal", v.PVTerminal, s.TerminalValue*s.TerminalDiscountFactor)
	check("PV operating assets", v.PVOperatingAssets, v.PVExplicit+v.PVTerminal)
	check("equity bridge", v.EquityValue, v.PVOperatingAssets-v.NetDebt+v.NonOperatingCash)
	return res
}
