package valuation

// WACCSeries builds a per-period WACC schedule from a base cost-of-capital
// input and a per-period leverage path. Period t uses debtToEquity[t] in
// place of the base D/E; everything else is held fixed.
func WACCSeries(base WACCInput, debtToEquity []float64) []float64 {
	waccs := make([]float64, len(debtToEquity))
	for i, de := range debtToEquity {
		period := base
		period.DebtToEquityRatio = de
		waccs[i] = CalculateWACC(period).WACC
	}
	return waccs
}

// GlidePath holds start for the first hold periods, then moves linearly so
// that the final period lands exactly on end (unless hold covers every
// period, in which case the path stays at start). Used to converge a young
// company's WACC (or margin, or growth) toward its mature level.
func GlidePath(start, end float64, periods, hold int) []float64 {
	if periods <= 0 {
		return nil
	}
	if hold < 0 {
		hold = 0
	}
	if hold > periods {
		hold = periods
	}

	path := make([]float64, periods)
	steps := periods - hold
	for t := 0; t < periods; t++ {
		if t < hold {
			path[t] = start
			continue
		}
		k := t - hold + 1
		path[t] = start + (end-start)*float64(k)/float64(steps)
	}
	return path
}
