package valuation

import "fmt"

// TerminalBuffer is the minimum spread between WACC_∞ and g_stable.
const TerminalBuffer = 0.005

// checkTerminalStability enforces g_stable < WACC_∞ - TerminalBuffer.
func checkTerminalStability(terminalWACC, stableGrowth float64) error {
	if !(stableGrowth < terminalWACC-TerminalBuffer) {
		return &ValidationError{
			Kind:  KindTerminalStability,
			Field: "stable.growth",
			Value: stableGrowth,
			Reason: fmt.Sprintf("must be below terminal_wacc %.4f minus %.0fbps buffer",
				terminalWACC, TerminalBuffer*1e4),
		}
	}
	return nil
}

// TerminalValue capitalizes the first stable-period cash flow as a
// Gordon-growth perpetuity anchored at the end of the explicit horizon.
//
// FORMULA: TV_T = FCFF_{T+1} / (WACC_∞ - g_stable)
//
// Refuses to compute when g_stable is not at least TerminalBuffer below WACC_∞.
func TerminalValue(fcffNext, terminalWACC, stableGrowth float64) (float64, error) {
	if err := checkTerminalStability(terminalWACC, stableGrowth); err != nil {
		return 0, err
	}
	return fcffNext / (terminalWACC - stableGrowth), nil
}

// ImpliedTerminalMultiple is TV_T / EBIT_{T+1} (0 when EBIT_{T+1} is zero).
func ImpliedTerminalMultiple(terminalValue, terminalEBIT float64) float64 {
	if terminalEBIT == 0 {
		return 0
	}
	return terminalValue / terminalEBIT
}
