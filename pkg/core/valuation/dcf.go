package valuation

import "fmt"

// Series is the per-period audit trail of one valuation. Per-period slices
// have length T. There are no PV columns; callers that need them compute
// PV_t = FCFF_t × DiscountFactor_t.
type Series struct {
	Revenue        []float64 `json:"revenue"`
	EBIT           []float64 `json:"ebit"`
	NOPAT          []float64 `json:"nopat"`
	Reinvestment   []float64 `json:"reinvestment"`
	FCFF           []float64 `json:"fcff"`
	DiscountFactor []float64 `json:"discount_factor"`
	MidPeriod      bool      `json:"mid_period"`

	// Stable period (T+1) and the perpetuity built on it.
	TerminalRevenue      float64 `json:"terminal_revenue"`
	TerminalEBIT         float64 `json:"terminal_ebit"`
	TerminalNOPAT        float64 `json:"terminal_nopat"`
	TerminalReinvestment float64 `json:"terminal_reinvestment"`
	TerminalFCFF         float64 `json:"terminal_fcff"`
	TerminalValue        float64 `json:"terminal_value"`
	// TerminalDiscountFactor is the end-of-period factor for T. TV is anchored
	// at the end of T, so PV_terminal = TerminalValue × TerminalDiscountFactor
	// under both conventions.
	TerminalDiscountFactor float64 `json:"terminal_discount_factor"`
}

// Valuation is the present-value bridge from cash flows to value per share.
type Valuation struct {
	PVExplicit        float64 `json:"pv_explicit"`
	PVTerminal        float64 `json:"pv_terminal"`
	PVOperatingAssets float64 `json:"pv_operating_assets"`
	NetDebt           float64 `json:"net_debt"`
	NonOperatingCash  float64 `json:"non_operating_cash"`
	EquityValue       float64 `json:"equity_value"`
	ValuePerShare     float64 `json:"value_per_share"`

	TerminalValue           float64 `json:"terminal_value"`
	ImpliedTerminalMultiple float64 `json:"implied_terminal_multiple"` // TV / EBIT_{T+1}
	TerminalShare           float64 `json:"terminal_share"`            // PV_terminal / PV_operating_assets
}

// Evaluate performs the single projection → discounting → terminal pass and
// returns the bridge together with the series it was derived from.
//
// FORMULA:
//
//	PV_explicit    = Σ FCFF_t × DF_t
//	PV_terminal    = TV_T × DF_T (end of period)
//	PV_oper_assets = PV_explicit + PV_terminal
//	Equity         = PV_oper_assets - Net_Debt + Cash_nonop
//	Value/share    = Equity / Shares_outstanding
func Evaluate(in Inputs) (Valuation, Series, error) {
	if !in.valid {
		return Valuation{}, Series{}, structuralErr("inputs", nil, "not constructed with NewInputs")
	}

	proj := Project(in)
	waccs := in.spec.Discounting.PeriodWACC
	mid := in.spec.Discounting.MidPeriod
	dfs := DiscountFactors(waccs, mid)
	dfEnd := endOfPeriodFactor(waccs)

	// The terminal constraint is re-checked here on every call.
	tv, err := TerminalValue(proj.Terminal.FCFF, in.TerminalWACC(), in.stableGrowth)
	if err != nil {
		return Valuation{}, Series{}, err
	}

	var pvExplicit float64
	for t, fcff := range proj.FCFF {
		pvExplicit += fcff * dfs[t]
	}
	pvTerminal := tv * dfEnd
	pvOper := pvExplicit + pvTerminal

	equity := pvOper - in.spec.NetDebt + in.spec.NonOperatingCash

	terminalShare := 0.0
	if pvOper != 0 {
		terminalShare = pvTerminal / pvOper
	}

	v := Valuation{
		PVExplicit:              pvExplicit,
		PVTerminal:              pvTerminal,
		PVOperatingAssets:       pvOper,
		NetDebt:                 in.spec.NetDebt,
		NonOperatingCash:        in.spec.NonOperatingCash,
		EquityValue:             equity,
		ValuePerShare:           equity / in.spec.SharesOutstanding,
		TerminalValue:           tv,
		ImpliedTerminalMultiple: ImpliedTerminalMultiple(tv, proj.Terminal.EBIT),
		TerminalShare:           terminalShare,
	}

	s := Series{
		Revenue:                proj.Revenue,
		EBIT:                   proj.EBIT,
		NOPAT:                  proj.NOPAT,
		Reinvestment:           proj.Reinvestment,
		FCFF:                   proj.FCFF,
		DiscountFactor:         dfs,
		MidPeriod:              mid,
		TerminalRevenue:        proj.Terminal.Revenue,
		TerminalEBIT:           proj.Terminal.EBIT,
		TerminalNOPAT:          proj.Terminal.NOPAT,
		TerminalReinvestment:   proj.Terminal.Reinvestment,
		TerminalFCFF:           proj.Terminal.FCFF,
		TerminalValue:          tv,
		TerminalDiscountFactor: dfEnd,
	}
	if err := checkFinite(v, s); err != nil {
		return Valuation{}, Series{}, err
	}
	return v, s, nil
}

// checkFinite rejects results that overflowed. Finite inputs can still
// compound past float64 range, and an Inf or NaN bridge is not a valuation.
func checkFinite(v Valuation, s Series) error {
	columns := []struct {
		name   string
		values []float64
	}{
		{"series.revenue", s.Revenue},
		{"series.ebit", s.EBIT},
		{"series.nopat", s.NOPAT},
		{"series.reinvestment", s.Reinvestment},
		{"series.fcff", s.FCFF},
		{"series.discount_factor", s.DiscountFactor},
	}
	for _, c := range columns {
		for t, x := range c.values {
			if !finite(x) {
				return structuralErr(fmt.Sprintf("%s[%d]", c.name, t), x, "result is not finite; inputs overflow float64")
			}
		}
	}

	scalars := []struct {
		name  string
		value float64
	}{
		{"series.terminal_revenue", s.TerminalRevenue},
		{"series.terminal_fcff", s.TerminalFCFF},
		{"terminal_value", v.TerminalValue},
		{"pv_explicit", v.PVExplicit},
		{"pv_terminal", v.PVTerminal},
		{"pv_operating_assets", v.PVOperatingAssets},
		{"equity_value", v.EquityValue},
		{"value_per_share", v.ValuePerShare},
		{"implied_terminal_multiple", v.ImpliedTerminalMultiple},
		{"terminal_share", v.TerminalShare},
	}
	for _, c := range scalars {
		if !finite(c.value) {
			return structuralErr(c.name, c.value, "result is not finite; inputs overflow float64")
		}
	}
	return nil
}

// CalculateValuation returns the value bridge for in. It fails rather than
// returning a partial result.
func CalculateValuation(in Inputs) (Valuation, error) {
	v, _, err := Evaluate(in)
	return v, err
}

// GetSeries returns the full per-period audit trail for in.
func GetSeries(in Inputs) (Series, error) {
	_, s, err := Evaluate(in)
	return s, err
}
