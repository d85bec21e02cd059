// Package scenario runs the valuation kernel over branched or perturbed
// inputs and aggregates the results: probability-weighted scenario blending
// and one-parameter sensitivity sweeps.
package scenario

import (
	"fmt"

	"valuation_kernel/pkg/core/valuation"
)

// WeightTolerance is how far scenario probabilities may drift from summing to 1.
const WeightTolerance = 1e-6

// =============================================================================
// SENSITIVITY
// =============================================================================

// Parameter names the single input a sensitivity sweep varies.
type Parameter string

const (
	StableGrowth Parameter = "stable_growth"
	StableMargin Parameter = "stable_margin"
	TerminalWACC Parameter = "wacc_terminal"
)

// ParseParameter maps a wire name to a Parameter.
func ParseParameter(s string) (Parameter, error) {
	switch p := Parameter(s); p {
	case StableGrowth, StableMargin, TerminalWACC:
		return p, nil
	}
	return "", valuation.StructuralError("parameter", s, "must be one of stable_growth, stable_margin, wacc_terminal")
}

// apply builds a fresh Inputs with p set to v. The receiver's Inputs is never touched.
func (p Parameter) apply(in valuation.Inputs, v float64) (valuation.Inputs, error) {
	switch p {
	case StableGrowth:
		return in.WithStableGrowth(v)
	case StableMargin:
		return in.WithStableMargin(v)
	case TerminalWACC:
		return in.WithTerminalWACC(v)
	}
	return valuation.Inputs{}, valuation.StructuralError("parameter", string(p), "unknown sensitivity parameter")
}

// Expected is the direction value per share must move as p increases;
// DirectionNone when economics do not fix it.
func (p Parameter) Expected() Direction {
	switch p {
	case StableMargin:
		return DirectionIncreasing
	case TerminalWACC:
		return DirectionDecreasing
	}
	return DirectionNone
}

// Direction describes how value per share moves as the swept parameter rises.
type Direction string

const (
	DirectionNone       Direction = ""
	DirectionIncreasing Direction = "increasing" // non-decreasing, at least one strict rise
	DirectionDecreasing Direction = "decreasing" // non-increasing, at least one strict fall
	DirectionFlat       Direction = "flat"
	DirectionMixed      Direction = "mixed"
)

// SensitivityRow is one point of a sweep.
type SensitivityRow struct {
	Value         float64 `json:"value"`
	ValuePerShare float64 `json:"value_per_share"`
}

// SensitivityTable is the result of RunSensitivity. Rows keep the caller's order.
type SensitivityTable struct {
	Parameter  Parameter        `json:"parameter"`
	Rows       []SensitivityRow `json:"rows"`
	Direction  Direction        `json:"direction"`
	Expected   Direction        `json:"expected,omitempty"`
	Consistent bool             `json:"consistent"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// Scenario is one named branch of a blended valuation.
type Scenario struct {
	Inputs      valuation.Inputs `json:"inputs"`
	Probability float64          `json:"probability"`
}

// Outcome is the independently computed valuation of one scenario.
type Outcome struct {
	Probability float64             `json:"probability"`
	Valuation   valuation.Valuation `json:"valuation"`
}

// Range reports the extremes of value per share across scenarios.
type Range struct {
	Low      float64 `json:"low"`
	LowName  string  `json:"low_name"`
	High     float64 `json:"high"`
	HighName string  `json:"high_name"`
	Spread   float64 `json:"spread"` // High - Low
}

// ScenarioResult is the result of RunScenarios.
type ScenarioResult struct {
	ExpectedValuePerShare float64            `json:"expected_value_per_share"`
	PerScenario           map[string]Outcome `json:"per_scenario"`
	Range                 Range              `json:"range"`
}

func (r Range) String() string {
	return fmt.Sprintf("%s %.2f .. %s %.2f (spread %.2f)", r.LowName, r.Low, r.HighName, r.High, r.Spread)
}
