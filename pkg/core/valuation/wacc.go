package valuation

// WACCInput parameters for calculating cost of capital
type WACCInput struct {
	UnleveredBeta     float64 `json:"unlevered_beta" yaml:"unlevered_beta"`
	RiskFreeRate      float64 `json:"risk_free_rate" yaml:"risk_free_rate"`
	MarketRiskPremium float64 `json:"market_risk_premium" yaml:"market_risk_premium"`
	PreTaxCostOfDebt  float64 `json:"pre_tax_cost_of_debt" yaml:"pre_tax_cost_of_debt"`
	TaxRate           float64 `json:"tax_rate" yaml:"tax_rate"`
	DebtToEquityRatio float64 `json:"debt_to_equity" yaml:"debt_to_equity"` // target D/E
}

// WACCResult holds the calculated rates
type WACCResult struct {
	LeveredBeta  float64 `json:"levered_beta"`
	CostOfEquity float64 `json:"cost_of_equity"`
	CostOfDebt   float64 `json:"cost_of_debt"` // after tax
	WACC         float64 `json:"wacc"`
	WeightDebt   float64 `json:"weight_debt"`
	WeightEquity float64 `json:"weight_equity"`
}

// CalculateWACC computes WACC from CAPM with a Hamada re-levered beta.
//
// FORMULA:
//
//	β_L  = β_U × (1 + (1 - t) × D/E)
//	K_e  = r_f + β_L × ERP
//	K_d  = r_d × (1 - t)
//	W_d  = (D/E) / (1 + D/E),  W_e = 1 / (1 + D/E)
//	WACC = K_e × W_e + K_d × W_d
func CalculateWACC(input WACCInput) WACCResult {
	de := input.DebtToEquityRatio
	leveredBeta := input.UnleveredBeta * (1 + (1-input.TaxRate)*de)
	ke := input.RiskFreeRate + leveredBeta*input.MarketRiskPremium
	kd := input.PreTaxCostOfDebt * (1 - input.TaxRate)

	wd := de / (1 + de)
	we := 1.0 / (1 + de)

	return WACCResult{
		LeveredBeta:  leveredBeta,
		CostOfEquity: ke,
		CostOfDebt:   kd,
		WACC:         ke*we + kd*wd,
		WeightDebt:   wd,
		WeightEquity: we,
	}
}
