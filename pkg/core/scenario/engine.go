package scenario

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"valuation_kernel/pkg/core/valuation"

	"golang.org/x/sync/errgroup"
)

// Engine fans valuation runs out across a bounded set of goroutines. It
// holds no state between calls and is safe for concurrent use.
type Engine struct {
	workers int
}

// NewEngine returns an engine running at most workers valuations at once.
// workers <= 0 means runtime.NumCPU().
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{workers: workers}
}

// Workers reports the concurrency limit.
func (e *Engine) Workers() int { return e.workers }

// fanOut evaluates build(i) for i in [0, n) in parallel. Each job builds its
// own Inputs and writes only its own slot, so no locking is needed. Results
// are returned only after every job has finished; the first error aborts the call.
func (e *Engine) fanOut(ctx context.Context, n int, build func(i int) (valuation.Inputs, error)) ([]valuation.Valuation, error) {
	results := make([]valuation.Valuation, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			in, err := build(i)
			if err != nil {
				return err
			}
			v, err := valuation.CalculateValuation(in)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunSensitivity varies one parameter across values, holding everything
// else in in fixed, and reports value per share for each point along with
// the direction it moved.
func (e *Engine) RunSensitivity(ctx context.Context, in valuation.Inputs, p Parameter, values []float64) (SensitivityTable, error) {
	if _, err := ParseParameter(string(p)); err != nil {
		return SensitivityTable{}, err
	}
	if len(values) == 0 {
		return SensitivityTable{}, valuation.StructuralError("values", 0, "sensitivity needs at least one value")
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return SensitivityTable{}, valuation.StructuralError(fmt.Sprintf("values[%d]", i), v, "must be finite")
		}
	}
	points := append([]float64(nil), values...)

	vals, err := e.fanOut(ctx, len(points), func(i int) (valuation.Inputs, error) {
		return p.apply(in, points[i])
	})
	if err != nil {
		return SensitivityTable{}, err
	}

	rows := make([]SensitivityRow, len(points))
	for i, v := range vals {
		rows[i] = SensitivityRow{Value: points[i], ValuePerShare: v.ValuePerShare}
	}

	dir := direction(rows)
	expected := p.Expected()
	return SensitivityTable{
		Parameter:  p,
		Rows:       rows,
		Direction:  dir,
		Expected:   expected,
		Consistent: expected == DirectionNone || dir == expected || (dir == DirectionFlat && len(rows) == 1),
	}, nil
}

// direction classifies how value per share responds as the parameter rises.
// Pairs with an unchanged parameter value carry no information and are skipped.
func direction(rows []SensitivityRow) Direction {
	var up, down bool
	for i := 1; i < len(rows); i++ {
		dx := rows[i].Value - rows[i-1].Value
		dy := rows[i].ValuePerShare - rows[i-1].ValuePerShare
		if dx == 0 || dy == 0 {
			continue
		}
		if (dx > 0) == (dy > 0) {
			up = true
		} else {
			down = true
		}
	}
	switch {
	case up && down:
		return DirectionMixed
	case up:
		return DirectionIncreasing
	case down:
		return DirectionDecreasing
	}
	return DirectionFlat
}

// RunScenarios values every scenario independently and blends them:
//
//	E[V] = Σ_s P_s × V_s
//
// Probabilities must each lie in [0, 1] and sum to 1 within WeightTolerance.
func (e *Engine) RunScenarios(ctx context.Context, scenarios map[string]Scenario) (ScenarioResult, error) {
	if len(scenarios) == 0 {
		return ScenarioResult{}, valuation.ScenarioWeightError("scenarios", 0, "at least one scenario is required")
	}

	// Sorted names make the weighted sum reproducible bit for bit.
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	var total float64
	for _, name := range names {
		if name == "" {
			return ScenarioResult{}, valuation.StructuralError("scenarios", name, "scenario name must not be empty")
		}
		p := scenarios[name].Probability
		if math.IsNaN(p) || p < 0 || p > 1 {
			return ScenarioResult{}, valuation.ScenarioWeightError("scenarios."+name+".probability", p, "must lie in [0, 1]")
		}
		total += p
	}
	if math.Abs(total-1) > WeightTolerance {
		return ScenarioResult{}, valuation.ScenarioWeightError("scenarios.probability", total, "probabilities must sum to 1")
	}

	branches := make([]Scenario, len(names))
	for i, name := range names {
		branches[i] = scenarios[name]
	}

	vals, err := e.fanOut(ctx, len(branches), func(i int) (valuation.Inputs, error) {
		return branches[i].Inputs, nil
	})
	if err != nil {
		return ScenarioResult{}, err
	}

	res := ScenarioResult{PerScenario: make(map[string]Outcome, len(names))}
	for i, name := range names {
		v := vals[i]
		p := branches[i].Probability
		res.ExpectedValuePerShare += p * v.ValuePerShare
		res.PerScenario[name] = Outcome{Probability: p, Valuation: v}

		vps := v.ValuePerShare
		if i == 0 || vps < res.Range.Low {
			res.Range.Low, res.Range.LowName = vps, name
		}
		if i == 0 || vps > res.Range.High {
			res.Range.High, res.Range.HighName = vps, name
		}
	}
	res.Range.Spread = res.Range.High - res.Range.Low
	return res, nil
}
