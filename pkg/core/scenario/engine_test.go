package scenario

import (
	"context"
	"errors"
	"math"
	"testing"

	"valuation_kernel/pkg/core/valuation"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ptr(f float64) *float64 { return &f }

func baseSpec(growth, margin float64) valuation.InputSpec {
	drivers := make([]valuation.Driver, 5)
	waccs := make([]float64, 5)
	for i := range drivers {
		drivers[i] = valuation.Driver{RevenueGrowth: growth, OperatingMargin: margin, SalesToCapital: 2}
		waccs[i] = 0.09
	}
	return valuation.InputSpec{
		Drivers:           drivers,
		Macro:             valuation.Macro{TaxRate: 0.25},
		Discounting:       valuation.Discounting{PeriodWACC: waccs, TerminalWACC: 0.085},
		BaseRevenue:       500,
		NetDebt:           80,
		SharesOutstanding: 20,
		Stable:            valuation.Stable{Growth: ptr(0.025), Margin: ptr(margin), SalesToCapital: ptr(2)},
	}
}

func mustInputs(t *testing.T, spec valuation.InputSpec) valuation.Inputs {
	t.Helper()
	in, err := valuation.NewInputs(spec)
	if err != nil {
		t.Fatalf("NewInputs: %v", err)
	}
	return in
}

func TestRunSensitivity_StableGrowthNonDecreasing(t *testing.T) {
	in := mustInputs(t, baseSpec(0.06, 0.20))
	values := []float64{0.00, 0.01, 0.02, 0.03, 0.035, 0.04}

	table, err := NewEngine(3).RunSensitivity(context.Background(), in, StableGrowth, values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Rows) != len(values) {
		t.Fatalf("expected %d rows, got %d", len(values), len(table.Rows))
	}
	for i := 1; i < len(table.Rows); i++ {
		if table.Rows[i].ValuePerShare < table.Rows[i-1].ValuePerShare {
			t.Errorf("value per share fell from %f to %f at g=%f",
				table.Rows[i-1].ValuePerShare, table.Rows[i].ValuePerShare, table.Rows[i].Value)
		}
	}
	if table.Direction != DirectionIncreasing {
		t.Errorf("expected increasing, got %s", table.Direction)
	}
	if table.Expected != DirectionNone || !table.Consistent {
		t.Errorf("stable growth has no fixed sign: expected=%q consistent=%v", table.Expected, table.Consistent)
	}
}

func TestRunSensitivity_MarginAndWACCDirections(t *testing.T) {
	in := mustInputs(t, baseSpec(0.05, 0.18))
	eng := NewEngine(0)

	margin, err := eng.RunSensitivity(context.Background(), in, StableMargin, []float64{0.14, 0.16, 0.18, 0.20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if margin.Direction != DirectionIncreasing || !margin.Consistent {
		t.Errorf("margin sweep: expected consistent increasing, got %s (consistent=%v)", margin.Direction, margin.Consistent)
	}

	// Descending input order: direction is still measured against the parameter.
	wacc, err := eng.RunSensitivity(context.Background(), in, TerminalWACC, []float64{0.11, 0.10, 0.09, 0.08})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wacc.Direction != DirectionDecreasing || !wacc.Consistent {
		t.Errorf("wacc sweep: expected consistent decreasing, got %s (consistent=%v)", wacc.Direction, wacc.Consistent)
	}
	if wacc.Rows[0].Value != 0.11 || wacc.Rows[3].Value != 0.08 {
		t.Errorf("rows must keep caller order, got %+v", wacc.Rows)
	}
}

func TestRunSensitivity_MatchesDirectValuation(t *testing.T) {
	in := mustInputs(t, baseSpec(0.04, 0.15))
	values := []float64{0.07, 0.08, 0.09}

	table, err := NewEngine(2).RunSensitivity(context.Background(), in, TerminalWACC, values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, w := range values {
		variant, err := in.WithTerminalWACC(w)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		v, _ := valuation.CalculateValuation(variant)
		if table.Rows[i].ValuePerShare != v.ValuePerShare {
			t.Errorf("row %d: expected %f, got %f", i, v.ValuePerShare, table.Rows[i].ValuePerShare)
		}
	}
	if in.TerminalWACC() != 0.085 {
		t.Errorf("sweep must not touch the base inputs, terminal wacc now %f", in.TerminalWACC())
	}
}

func TestRunSensitivity_Errors(t *testing.T) {
	in := mustInputs(t, baseSpec(0.05, 0.18))
	eng := NewEngine(4)
	ctx := context.Background()

	// WACC_∞ of 2.8% puts g = 2.5% inside the buffer.
	_, err := eng.RunSensitivity(ctx, in, TerminalWACC, []float64{0.09, 0.028, 0.08})
	if !errors.Is(err, valuation.ErrTerminalStability) {
		t.Errorf("expected terminal stability violation, got %v", err)
	}

	_, err = eng.RunSensitivity(ctx, in, StableGrowth, []float64{0.01, 0.082})
	if !errors.Is(err, valuation.ErrTerminalStability) {
		t.Errorf("expected terminal stability violation, got %v", err)
	}

	if _, err := eng.RunSensitivity(ctx, in, StableGrowth, nil); !errors.Is(err, valuation.ErrStructural) {
		t.Errorf("expected structural error for empty sweep, got %v", err)
	}
	if _, err := eng.RunSensitivity(ctx, in, Parameter("beta"), []float64{1}); !errors.Is(err, valuation.ErrStructural) {
		t.Errorf("expected structural error for unknown parameter, got %v", err)
	}
	if _, err := eng.RunSensitivity(ctx, in, StableMargin, []float64{math.NaN()}); !errors.Is(err, valuation.ErrStructural) {
		t.Errorf("expected structural error for NaN value, got %v", err)
	}
}

func TestRunSensitivity_SinglePoint(t *testing.T) {
	in := mustInputs(t, baseSpec(0.05, 0.18))
	table, err := NewEngine(1).RunSensitivity(context.Background(), in, StableMargin, []float64{0.18})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Direction != DirectionFlat || !table.Consistent {
		t.Errorf("single point: expected flat and consistent, got %s %v", table.Direction, table.Consistent)
	}
}

func TestDirection(t *testing.T) {
	tests := []struct {
		name string
		rows []SensitivityRow
		want Direction
	}{
		{"up", []SensitivityRow{{1, 10}, {2, 11}, {3, 11}, {4, 12}}, DirectionIncreasing},
		{"down", []SensitivityRow{{1, 10}, {2, 9}}, DirectionDecreasing},
		{"down, reversed input", []SensitivityRow{{3, 10}, {2, 11}}, DirectionDecreasing},
		{"flat", []SensitivityRow{{1, 10}, {2, 10}}, DirectionFlat},
		{"mixed", []SensitivityRow{{1, 10}, {2, 12}, {3, 11}}, DirectionMixed},
		{"repeated value", []SensitivityRow{{1, 10}, {1, 10}, {2, 12}}, DirectionIncreasing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := direction(tt.rows); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func threeCases(t *testing.T) map[string]Scenario {
	t.Helper()
	return map[string]Scenario{
		"bear": {Inputs: mustInputs(t, baseSpec(0.00, 0.12)), Probability: 0.25},
		"base": {Inputs: mustInputs(t, baseSpec(0.05, 0.18)), Probability: 0.50},
		"bull": {Inputs: mustInputs(t, baseSpec(0.10, 0.22)), Probability: 0.25},
	}
}

func TestRunScenarios_WeightedExpectation(t *testing.T) {
	scenarios := threeCases(t)
	res, err := NewEngine(2).RunScenarios(context.Background(), scenarios)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var want float64
	for _, name := range []string{"base", "bear", "bull"} {
		v, err := valuation.CalculateValuation(scenarios[name].Inputs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := res.PerScenario[name].Valuation; got != v {
			t.Errorf("%s: scenario result differs from a direct valuation", name)
		}
		want += scenarios[name].Probability * v.ValuePerShare
	}
	if res.ExpectedValuePerShare != want {
		t.Errorf("expected E[V] %f, got %f", want, res.ExpectedValuePerShare)
	}

	if res.Range.LowName != "bear" || res.Range.HighName != "bull" {
		t.Errorf("expected bear..bull range, got %s", res.Range)
	}
	bull := res.PerScenario["bull"].Valuation.ValuePerShare
	bear := res.PerScenario["bear"].Valuation.ValuePerShare
	if res.Range.Spread != bull-bear {
		t.Errorf("expected spread %f, got %f", bull-bear, res.Range.Spread)
	}
	if !(res.ExpectedValuePerShare > bear && res.ExpectedValuePerShare < bull) {
		t.Errorf("expectation %f should sit inside the range", res.ExpectedValuePerShare)
	}
}

func TestRunScenarios_Deterministic(t *testing.T) {
	scenarios := threeCases(t)
	ctx := context.Background()

	serial, err := NewEngine(1).RunScenarios(ctx, scenarios)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		parallel, err := NewEngine(8).RunScenarios(ctx, scenarios)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(serial, parallel); diff != "" {
			t.Fatalf("parallel run differs from serial (-serial +parallel):\n%s", diff)
		}
	}
}

func TestRunScenarios_WeightErrors(t *testing.T) {
	ctx := context.Background()
	eng := NewEngine(2)

	short := threeCases(t)
	s := short["bull"]
	s.Probability = 0.15
	short["bull"] = s
	if _, err := eng.RunScenarios(ctx, short); !errors.Is(err, valuation.ErrScenarioWeights) {
		t.Errorf("expected weight error for sum 0.9, got %v", err)
	}

	negative := threeCases(t)
	b := negative["bear"]
	b.Probability = -0.25
	negative["bear"] = b
	n := negative["base"]
	n.Probability = 1.0
	negative["base"] = n
	if _, err := eng.RunScenarios(ctx, negative); !errors.Is(err, valuation.ErrScenarioWeights) {
		t.Errorf("expected weight error for negative probability, got %v", err)
	}

	if _, err := eng.RunScenarios(ctx, nil); !errors.Is(err, valuation.ErrScenarioWeights) {
		t.Errorf("expected weight error for no scenarios, got %v", err)
	}

	// Within tolerance is accepted.
	near := threeCases(t)
	nb := near["base"]
	nb.Probability = 0.5 + WeightTolerance/2
	near["base"] = nb
	if _, err := eng.RunScenarios(ctx, near); err != nil {
		t.Errorf("sum within tolerance should pass, got %v", err)
	}
}

func TestRunScenarios_InvalidBranchIsFatal(t *testing.T) {
	scenarios := threeCases(t)
	scenarios["broken"] = Scenario{Inputs: valuation.Inputs{}, Probability: 0}

	_, err := NewEngine(4).RunScenarios(context.Background(), scenarios)
	if !errors.Is(err, valuation.ErrStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestRunScenarios_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(2).RunScenarios(ctx, threeCases(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseParameter(t *testing.T) {
	for _, s := range []string{"stable_growth", "stable_margin", "wacc_terminal"} {
		p, err := ParseParameter(s)
		if err != nil || string(p) != s {
			t.Errorf("ParseParameter(%q) = %q, %v", s, p, err)
		}
	}
	if _, err := ParseParameter("wacc"); err == nil {
		t.Error("expected error for unknown parameter")
	}
}
