package insights

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Supported what-if scenarios.
const (
	ScenarioMFReturn       = "mf_return"
	ScenarioSpendReduction = "spend_reduction"
)

var ErrUnknownScenario = errors.New("unknown what-if scenario")

// WhatIfParams carries the inputs for a simulation. Only the fields
// relevant to the chosen scenario are read.
type WhatIfParams struct {
	Amount          decimal.Decimal `json:"amount"`
	HorizonMonths   int             `json:"horizon_months"`
	AnnualRate      decimal.Decimal `json:"annual_rate"`
	Percent         decimal.Decimal `json:"percent"`
	AvgMonthlySpend decimal.Decimal `json:"avg_monthly_spend"`
}

// MFReturnResult echoes the inputs alongside the projection so the
// response is self-describing.
type MFReturnResult struct {
	Scenario          string          `json:"scenario"`
	InitialAmount     decimal.Decimal `json:"initial_amount"`
	HorizonMonths     int             `json:"horizon_months"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent"`
	ProjectedValue    decimal.Decimal `json:"projected_value"`
	ProjectedReturns  decimal.Decimal `json:"projected_returns"`
}

type SpendReductionResult struct {
	Scenario            string          `json:"scenario"`
	ReductionPercent    decimal.Decimal `json:"reduction_percent"`
	CurrentMonthlySpend decimal.Decimal `json:"current_monthly_spend"`
	MonthlySavings      decimal.Decimal `json:"monthly_savings"`
	AnnualSavings       decimal.Decimal `json:"annual_savings"`
}

// Simulate dispatches to the named scenario. Unknown names return
// ErrUnknownScenario.
func Simulate(scenario string, p WhatIfParams) (any, error) {
	switch scenario {
	case ScenarioMFReturn:
		return MFReturn(p.Amount, p.HorizonMonths, p.AnnualRate), nil
	case ScenarioSpendReduction:
		return SpendReduction(p.Percent, p.AvgMonthlySpend), nil
	default:
		return nil, ErrUnknownScenario
	}
}

// MFReturn projects a lump-sum investment with monthly compounding:
// final = amount * (1 + rate/12)^months.
func MFReturn(amount decimal.Decimal, months int, annualRate decimal.Decimal) MFReturnResult {
	monthlyRate := annualRate.Div(decimal.NewFromInt(12))
	factor := decimal.NewFromInt(1).Add(monthlyRate).
		Pow(decimal.NewFromInt(int64(months)))
	final := amount.Mul(factor).Round(2)

	return MFReturnResult{
		Scenario:          ScenarioMFReturn,
		InitialAmount:     amount,
		HorizonMonths:     months,
		AnnualRatePercent: annualRate.Mul(decimal.NewFromInt(100)),
		ProjectedValue:    final,
		ProjectedReturns:  final.Sub(amount).Round(2),
	}
}

// SpendReduction projects the savings from cutting monthly spend by
// the given percentage.
func SpendReduction(percent, monthlySpend decimal.Decimal) SpendReductionResult {
	monthly := monthlySpend.Mul(percent).
		Div(decimal.NewFromInt(100)).Round(2)
	return SpendReductionResult{
		Scenario:            ScenarioSpendReduction,
		ReductionPercent:    percent,
		CurrentMonthlySpend: monthlySpend,
		MonthlySavings:      monthly,
		AnnualSavings:       monthly.Mul(decimal.NewFromInt(12)).Round(2),
	}
}
