package valuation

// Projection holds the explicit-period operating build-up plus the first
// stable period (T+1).
type Projection struct {
	Revenue      []float64
	EBIT         []float64
	NOPAT        []float64
	Reinvestment []float64
	FCFF         []float64

	Terminal PeriodFlow
}

// PeriodFlow is one period of the operating build-up.
type PeriodFlow struct {
	Revenue      float64 `json:"revenue"`
	EBIT         float64 `json:"ebit"`
	NOPAT        float64 `json:"nopat"`
	Reinvestment float64 `json:"reinvestment"`
	FCFF         float64 `json:"fcff"`
}

// projectPeriod advances revenue one period.
//
// FORMULA:
//
//	Revenue_t  = Revenue_{t-1} × (1 + g_t)
//	EBIT_t     = Revenue_t × margin_t
//	NOPAT_t    = EBIT_t × (1 - tax)
//	Reinvest_t = (Revenue_t - Revenue_{t-1}) / sales_to_capital_t
//	FCFF_t     = NOPAT_t - Reinvest_t
//
// Reinvestment is not floored: a contraction releases capital.
func projectPeriod(prevRevenue, growth, margin, salesToCapital, taxRate float64) PeriodFlow {
	rev := prevRevenue * (1 + growth)
	ebit := rev * margin
	nopat := ebit * (1 - taxRate)
	reinvest := (rev - prevRevenue) / salesToCapital
	return PeriodFlow{
		Revenue:      rev,
		EBIT:         ebit,
		NOPAT:        nopat,
		Reinvestment: reinvest,
		FCFF:         nopat - reinvest,
	}
}

// Project runs the operating build-up for every explicit period and the
// terminal period. It cannot fail on an Inputs produced by NewInputs.
func Project(in Inputs) Projection {
	T := in.Horizon()
	p := Projection{
		Revenue:      make([]float64, T),
		EBIT:         make([]float64, T),
		NOPAT:        make([]float64, T),
		Reinvestment: make([]float64, T),
		FCFF:         make([]float64, T),
	}

	tax := in.TaxRate()
	prev := in.BaseRevenue()
	for t, d := range in.spec.Drivers {
		f := projectPeriod(prev, d.RevenueGrowth, d.OperatingMargin, d.SalesToCapital, tax)
		p.Revenue[t] = f.Revenue
		p.EBIT[t] = f.EBIT
		p.NOPAT[t] = f.NOPAT
		p.Reinvestment[t] = f.Reinvestment
		p.FCFF[t] = f.FCFF
		prev = f.Revenue
	}

	p.Terminal = projectPeriod(prev, in.stableGrowth, in.stableMargin, in.stableSalesToCapital, tax)
	return p
}
