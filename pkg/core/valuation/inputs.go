package valuation

import (
	"encoding/json"
	"fmt"
	"math"
)

// =============================================================================
// INPUT RECORD (as supplied by the assumption pipeline)
// =============================================================================

// Driver holds the operating assumptions for one forecast period.
type Driver struct {
	RevenueGrowth   float64 `json:"revenue_growth" yaml:"revenue_growth"`     // ratio, may be negative
	OperatingMargin float64 `json:"operating_margin" yaml:"operating_margin"` // EBIT / Revenue
	SalesToCapital  float64 `json:"sales_to_capital" yaml:"sales_to_capital"` // ΔRevenue per unit of reinvestment
}

// Macro holds the tax rate and the mature-company defaults used to build the
// stable period when a record does not set it explicitly.
type Macro struct {
	TaxRate              float64 `json:"tax_rate" yaml:"tax_rate"`
	LongRunGrowth        float64 `json:"long_run_growth" yaml:"long_run_growth"`
	MatureMargin         float64 `json:"mature_margin" yaml:"mature_margin"`
	MatureSalesToCapital float64 `json:"mature_sales_to_capital" yaml:"mature_sales_to_capital"`
}

// Discounting holds the cost-of-capital schedule.
type Discounting struct {
	PeriodWACC   []float64 `json:"period_wacc" yaml:"period_wacc"`
	TerminalWACC float64   `json:"terminal_wacc" yaml:"terminal_wacc"`
	MidPeriod    bool      `json:"mid_period" yaml:"mid_period"`
}

// Stable overrides the stable-period profile. Nil fields fall back to Macro.
type Stable struct {
	Growth         *float64 `json:"growth,omitempty" yaml:"growth,omitempty"`
	Margin         *float64 `json:"margin,omitempty" yaml:"margin,omitempty"`
	SalesToCapital *float64 `json:"sales_to_capital,omitempty" yaml:"sales_to_capital,omitempty"`
}

// InputSpec is the raw record a valuation is built from. It carries no
// guarantees; pass it through NewInputs to get a usable Inputs.
type InputSpec struct {
	Drivers           []Driver    `json:"drivers" yaml:"drivers"`
	Macro             Macro       `json:"macro" yaml:"macro"`
	Discounting       Discounting `json:"discounting" yaml:"discounting"`
	BaseRevenue       float64     `json:"base_revenue" yaml:"base_revenue"`
	NetDebt           float64     `json:"net_debt" yaml:"net_debt"` // negative means net cash
	NonOperatingCash  float64     `json:"non_operating_cash" yaml:"non_operating_cash"`
	SharesOutstanding float64     `json:"shares_outstanding" yaml:"shares_outstanding"`
	Stable            Stable      `json:"stable" yaml:"stable"`
}

// clone deep-copies every slice and pointer so the copy shares no memory with s.
func (s InputSpec) clone() InputSpec {
	out := s
	out.Drivers = append([]Driver(nil), s.Drivers...)
	out.Discounting.PeriodWACC = append([]float64(nil), s.Discounting.PeriodWACC...)
	out.Stable = Stable{
		Growth:         clonePtr(s.Stable.Growth),
		Margin:         clonePtr(s.Stable.Margin),
		SalesToCapital: clonePtr(s.Stable.SalesToCapital),
	}
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// =============================================================================
// VALIDATED INPUTS
// =============================================================================

// Inputs is a validated, immutable valuation request. The zero value is not
// valid; use NewInputs. Variants are produced with the With* methods, which
// leave the receiver untouched.
type Inputs struct {
	spec InputSpec

	stableGrowth         float64
	stableMargin         float64
	stableSalesToCapital float64

	valid bool
}

// NewInputs validates spec and returns an immutable Inputs that owns a private
// copy of it. Structural problems return ErrStructural; a stable growth rate
// inside the terminal buffer returns ErrTerminalStability.
func NewInputs(spec InputSpec) (Inputs, error) {
	s := spec.clone()
	T := len(s.Drivers)

	if T == 0 {
		return Inputs{}, structuralErr("drivers", 0, "forecast horizon must have at least one period")
	}
	if len(s.Discounting.PeriodWACC) != T {
		return Inputs{}, structuralErr("discounting.period_wacc", len(s.Discounting.PeriodWACC),
			fmt.Sprintf("length must equal horizon %d", T))
	}

	for i, d := range s.Drivers {
		field := fmt.Sprintf("drivers[%d]", i)
		if !finite(d.RevenueGrowth) {
			return Inputs{}, structuralErr(field+".revenue_growth", d.RevenueGrowth, "must be finite")
		}
		if d.RevenueGrowth <= -1 {
			return Inputs{}, structuralErr(field+".revenue_growth", d.RevenueGrowth, "must be > -1")
		}
		if !finite(d.OperatingMargin) {
			return Inputs{}, structuralErr(field+".operating_margin", d.OperatingMargin, "must be finite")
		}
		if !finite(d.SalesToCapital) || d.SalesToCapital <= 0 {
			return Inputs{}, structuralErr(field+".sales_to_capital", d.SalesToCapital, "must be > 0")
		}
	}

	for i, w := range s.Discounting.PeriodWACC {
		if !finite(w) || w <= -1 {
			return Inputs{}, structuralErr(fmt.Sprintf("discounting.period_wacc[%d]", i), w, "must be finite and > -1")
		}
	}
	if !finite(s.Discounting.TerminalWACC) {
		return Inputs{}, structuralErr("discounting.terminal_wacc", s.Discounting.TerminalWACC, "must be finite")
	}

	t := s.Macro.TaxRate
	if !finite(t) || t < 0 || t >= 1 {
		return Inputs{}, structuralErr("macro.tax_rate", t, "must lie in [0, 1)")
	}
	if !finite(s.BaseRevenue) || s.BaseRevenue <= 0 {
		return Inputs{}, structuralErr("base_revenue", s.BaseRevenue, "must be > 0")
	}
	if !finite(s.SharesOutstanding) || s.SharesOutstanding <= 0 {
		return Inputs{}, structuralErr("shares_outstanding", s.SharesOutstanding, "must be > 0")
	}
	if !finite(s.NetDebt) {
		return Inputs{}, structuralErr("net_debt", s.NetDebt, "must be finite")
	}
	if !finite(s.NonOperatingCash) || s.NonOperatingCash < 0 {
		return Inputs{}, structuralErr("non_operating_cash", s.NonOperatingCash, "must be finite and >= 0")
	}

	// Resolve the stable period against the macro defaults.
	if s.Stable.Growth == nil {
		s.Stable.Growth = clonePtr(&s.Macro.LongRunGrowth)
	}
	if s.Stable.Margin == nil {
		s.Stable.Margin = clonePtr(&s.Macro.MatureMargin)
	}
	if s.Stable.SalesToCapital == nil {
		s.Stable.SalesToCapital = clonePtr(&s.Macro.MatureSalesToCapital)
	}
	g, m, sc := *s.Stable.Growth, *s.Stable.Margin, *s.Stable.SalesToCapital
	if !finite(g) {
		return Inputs{}, structuralErr("stable.growth", g, "must be finite")
	}
	if !finite(m) {
		return Inputs{}, structuralErr("stable.margin", m, "must be finite")
	}
	if !finite(sc) || sc <= 0 {
		return Inputs{}, structuralErr("stable.sales_to_capital", sc, "must be > 0")
	}
	if err := checkTerminalStability(s.Discounting.TerminalWACC, g); err != nil {
		return Inputs{}, err
	}

	return Inputs{
		spec:                 s,
		stableGrowth:         g,
		stableMargin:         m,
		stableSalesToCapital: sc,
		valid:                true,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Spec returns a deep copy of the resolved record (stable fields always set).
func (in Inputs) Spec() InputSpec { return in.spec.clone() }

// Valid reports whether in was produced by NewInputs.
func (in Inputs) Valid() bool { return in.valid }

func (in Inputs) Horizon() int { return len(in.spec.Drivers) }

func (in Inputs) Drivers() []Driver { return append([]Driver(nil), in.spec.Drivers...) }

func (in Inputs) Macro() Macro { return in.spec.Macro }

func (in Inputs) Discounting() Discounting {
	d := in.spec.Discounting
	d.PeriodWACC = append([]float64(nil), d.PeriodWACC...)
	return d
}

func (in Inputs) BaseRevenue() float64          { return in.spec.BaseRevenue }
func (in Inputs) NetDebt() float64              { return in.spec.NetDebt }
func (in Inputs) NonOperatingCash() float64     { return in.spec.NonOperatingCash }
func (in Inputs) SharesOutstanding() float64    { return in.spec.SharesOutstanding }
func (in Inputs) StableGrowth() float64         { return in.stableGrowth }
func (in Inputs) StableMargin() float64         { return in.stableMargin }
func (in Inputs) StableSalesToCapital() float64 { return in.stableSalesToCapital }
func (in Inputs) TerminalWACC() float64         { return in.spec.Discounting.TerminalWACC }
func (in Inputs) TaxRate() float64              { return in.spec.Macro.TaxRate }
func (in Inputs) MidPeriod() bool               { return in.spec.Discounting.MidPeriod }

// WithStableGrowth returns a re-validated copy with g_stable replaced.
func (in Inputs) WithStableGrowth(g float64) (Inputs, error) {
	s := in.Spec()
	s.Stable.Growth = &g
	return NewInputs(s)
}

// WithStableMargin returns a re-validated copy with the stable margin replaced.
func (in Inputs) WithStableMargin(m float64) (Inputs, error) {
	s := in.Spec()
	s.Stable.Margin = &m
	return NewInputs(s)
}

// WithTerminalWACC returns a re-validated copy with WACC_∞ replaced.
func (in Inputs) WithTerminalWACC(w float64) (Inputs, error) {
	s := in.Spec()
	s.Discounting.TerminalWACC = w
	return NewInputs(s)
}

// WithNetDebt returns a re-validated copy with net debt replaced.
func (in Inputs) WithNetDebt(d float64) (Inputs, error) {
	s := in.Spec()
	s.NetDebt = d
	return NewInputs(s)
}

// WithMidPeriod returns a re-validated copy using the given discounting convention.
func (in Inputs) WithMidPeriod(mid bool) (Inputs, error) {
	s := in.Spec()
	s.Discounting.MidPeriod = mid
	return NewInputs(s)
}

// MarshalJSON encodes the resolved record so callers can echo or persist it.
func (in Inputs) MarshalJSON() ([]byte, error) {
	return json.Marshal(in.spec)
}
