package valuation

import "math"

// DiscountFactors converts a per-period WACC schedule into cumulative
// discount factors.
//
// FORMULA (end of period):
//
//	DF_t = DF_{t-1} / (1 + WACC_t),  DF_0 = 1
//
// FORMULA (mid period):
//
//	DF_t_mid = DF_t_end × sqrt(1 + WACC_t)
//
// The running product is required because WACC varies by period. The
// mid-period adjustment uses period t's own rate.
func DiscountFactors(waccs []float64, midPeriod bool) []float64 {
	dfs := make([]float64, len(waccs))
	cum := 1.0
	for t, w := range waccs {
		cum /= 1.0 + w
		dfs[t] = cum
		if midPeriod {
			dfs[t] = cum * math.Sqrt(1.0+w)
		}
	}
	return dfs
}

// endOfPeriodFactor returns the end-of-period factor for the last period of
// waccs, i.e. the factor that moves a value anchored at the end of T to today.
func endOfPeriodFactor(waccs []float64) float64 {
	cum := 1.0
	for _, w := range waccs {
		cum /= 1.0 + w
	}
	return cum
}
