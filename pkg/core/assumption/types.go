// Package assumption decodes the upstream assumption records that feed the
// valuation kernel. A record is whatever the assumption pipeline (an analyst,
// a language model, a batch job) produced: it may be hand-written Hjson,
// YAML, or model-emitted JSON that needs repair before it parses.
package assumption

import (
	"fmt"
	"sort"

	"valuation_kernel/pkg/core/scenario"
	"valuation_kernel/pkg/core/valuation"
)

// =============================================================================
// PROVENANCE
// =============================================================================

// Source records who produced an assumption record.
type Source string

const (
	SourceManual Source = "MANUAL"
	SourceAI     Source = "AI"
	SourceSystem Source = "SYSTEM"
)

// Valid reports whether s is a known source. The empty source is allowed.
func (s Source) Valid() bool {
	switch s {
	case "", SourceManual, SourceAI, SourceSystem:
		return true
	}
	return false
}

// =============================================================================
// DRIVER PATHS
// =============================================================================

// Path describes a driver that moves linearly from Start in the first
// forecast period to End in the last.
type Path struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Ramp expands p over n periods. The first value is Start and the last is End.
func (p Path) Ramp(n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = p.Start
		return out
	}
	step := (p.End - p.Start) / float64(n-1)
	for i := range out {
		out[i] = p.Start + step*float64(i)
	}
	out[n-1] = p.End
	return out
}

// GlidePath is a WACC schedule: Start held for Hold periods, then a linear
// move to End by the final period.
type GlidePath struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Hold  int     `json:"hold,omitempty" yaml:"hold,omitempty"`
}

// CostOfCapital derives the WACC schedule from CAPM inputs. LeveragePath
// gives one D/E per period; when empty, the base D/E holds throughout.
type CostOfCapital struct {
	valuation.WACCInput `yaml:",inline"`
	LeveragePath        []float64 `json:"leverage_path,omitempty" yaml:"leverage_path,omitempty"`
}

// schedule expands c over periods.
func (c CostOfCapital) schedule(periods int) ([]float64, error) {
	leverage := c.LeveragePath
	if len(leverage) == 0 {
		leverage = make([]float64, periods)
		for i := range leverage {
			leverage[i] = c.DebtToEquityRatio
		}
	}
	if len(leverage) != periods {
		return nil, valuation.StructuralError("wacc_inputs.leverage_path", len(leverage), fmt.Sprintf("length must equal horizon %d", periods))
	}
	for i, de := range leverage {
		if de < 0 {
			return nil, valuation.StructuralError(fmt.Sprintf("wacc_inputs.leverage_path[%d]", i), de, "debt to equity must be >= 0")
		}
	}
	return valuation.WACCSeries(c.WACCInput, leverage), nil
}

// =============================================================================
// RECORD
// =============================================================================

// Record is one upstream assumption record. It embeds the kernel's
// InputSpec; the path fields are shorthand that Spec expands into the
// per-period arrays.
type Record struct {
	Ticker   string `json:"ticker,omitempty" yaml:"ticker,omitempty"`
	CaseID   string `json:"case_id,omitempty" yaml:"case_id,omitempty"`
	Scenario string `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Source   Source `json:"source,omitempty" yaml:"source,omitempty"`

	Horizon        int            `json:"horizon,omitempty" yaml:"horizon,omitempty"`
	GrowthPath     *Path          `json:"growth_path,omitempty" yaml:"growth_path,omitempty"`
	MarginPath     *Path          `json:"margin_path,omitempty" yaml:"margin_path,omitempty"`
	SalesToCapital float64        `json:"sales_to_capital,omitempty" yaml:"sales_to_capital,omitempty"` // used with the paths
	WACCPath       *GlidePath     `json:"wacc_path,omitempty" yaml:"wacc_path,omitempty"`
	WACCInputs     *CostOfCapital `json:"wacc_inputs,omitempty" yaml:"wacc_inputs,omitempty"`

	valuation.InputSpec `yaml:",inline"`
}

// Spec resolves the record into the kernel's InputSpec, expanding any
// driver paths. It does not validate the economics; NewInputs does that.
func (r Record) Spec() (valuation.InputSpec, error) {
	if !r.Source.Valid() {
		return valuation.InputSpec{}, valuation.StructuralError("source", string(r.Source), "must be MANUAL, AI or SYSTEM")
	}
	spec := r.InputSpec

	usesPaths := r.GrowthPath != nil || r.MarginPath != nil
	if usesPaths {
		if len(spec.Drivers) > 0 {
			return valuation.InputSpec{}, valuation.StructuralError("drivers", len(spec.Drivers), "give either drivers or growth_path/margin_path, not both")
		}
		if r.GrowthPath == nil || r.MarginPath == nil {
			return valuation.InputSpec{}, valuation.StructuralError("growth_path", nil, "growth_path and margin_path must be given together")
		}
		if r.Horizon <= 0 {
			return valuation.InputSpec{}, valuation.StructuralError("horizon", r.Horizon, "paths need a positive horizon")
		}
		growth := r.GrowthPath.Ramp(r.Horizon)
		margin := r.MarginPath.Ramp(r.Horizon)
		spec.Drivers = make([]valuation.Driver, r.Horizon)
		for i := range spec.Drivers {
			spec.Drivers[i] = valuation.Driver{
				RevenueGrowth:   growth[i],
				OperatingMargin: margin[i],
				SalesToCapital:  r.SalesToCapital,
			}
		}
	} else if r.Horizon > 0 && len(spec.Drivers) != r.Horizon {
		return valuation.InputSpec{}, valuation.StructuralError("horizon", r.Horizon, fmt.Sprintf("does not match %d drivers", len(spec.Drivers)))
	}

	schedules := 0
	for _, given := range []bool{len(spec.Discounting.PeriodWACC) > 0, r.WACCPath != nil, r.WACCInputs != nil} {
		if given {
			schedules++
		}
	}
	if schedules > 1 {
		return valuation.InputSpec{}, valuation.StructuralError("discounting.period_wacc", len(spec.Discounting.PeriodWACC), "give only one of period_wacc, wacc_path or wacc_inputs")
	}
	switch {
	case r.WACCPath != nil:
		spec.Discounting.PeriodWACC = valuation.GlidePath(r.WACCPath.Start, r.WACCPath.End, len(spec.Drivers), r.WACCPath.Hold)
	case r.WACCInputs != nil:
		waccs, err := r.WACCInputs.schedule(len(spec.Drivers))
		if err != nil {
			return valuation.InputSpec{}, err
		}
		spec.Discounting.PeriodWACC = waccs
	}
	return spec, nil
}

// Inputs resolves and validates the record.
func (r Record) Inputs() (valuation.Inputs, error) {
	spec, err := r.Spec()
	if err != nil {
		return valuation.Inputs{}, err
	}
	return valuation.NewInputs(spec)
}

// =============================================================================
// SCENARIO SET
// =============================================================================

// ScenarioRecord is one named branch of a ScenarioSet.
type ScenarioRecord struct {
	Probability float64 `json:"probability" yaml:"probability"`
	Inputs      Record  `json:"inputs" yaml:"inputs"`
}

// ScenarioSet is a record holding several weighted branches of one case.
type ScenarioSet struct {
	Ticker    string                    `json:"ticker,omitempty" yaml:"ticker,omitempty"`
	CaseID    string                    `json:"case_id,omitempty" yaml:"case_id,omitempty"`
	Scenarios map[string]ScenarioRecord `json:"scenarios" yaml:"scenarios"`
}

// Build validates every branch and returns them keyed by name. Branches are
// visited in name order so the first reported error is stable.
func (s ScenarioSet) Build() (map[string]scenario.Scenario, error) {
	names := make([]string, 0, len(s.Scenarios))
	for name := range s.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]scenario.Scenario, len(names))
	for _, name := range names {
		rec := s.Scenarios[name]
		in, err := rec.Inputs.Inputs()
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", name, err)
		}
		out[name] = scenario.Scenario{Inputs: in, Probability: rec.Probability}
	}
	return out, nil
}
