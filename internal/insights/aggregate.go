// Package insights computes reporting views over immutable transaction
// snapshots: spend aggregates, recurring payment nudges, goal progress
// and what-if projections.
//
// Every function here is pure: inputs are never mutated, ratios guard
// against zero denominators, and malformed records are excluded rather
// than surfaced as errors.
package insights

import (
	"sort"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
)

// DailySpend sums debit amounts per calendar day over the inclusive
// [from, to] range. Every day in the range gets an entry, zero for
// days without debits, sorted ascending by date.
func DailySpend(txns []core.Transaction, from, to core.Date) []core.DailySpend {
	byDay := make(map[string]decimal.Decimal)
	for _, txn := range txns {
		if txn.Direction != core.DebitTxn || txn.Date.IsZero() {
			continue
		}
		if !txn.Date.Within(from, to) {
			continue
		}
		key := txn.Date.String()
		byDay[key] = byDay[key].Add(txn.Amount)
	}

	var out []core.DailySpend
	for day := from; !day.After(to.Time); day = day.AddDays(1) {
		out = append(out, core.DailySpend{
			Date:   day,
			Amount: byDay[day.String()],
		})
	}
	return out
}

// MonthlySpend sums debit amounts per YYYY-MM month over the inclusive
// range. Unlike DailySpend, only months actually present in the
// filtered transactions appear, sorted ascending by month key.
func MonthlySpend(txns []core.Transaction, from, to core.Date) []core.MonthlySpend {
	byMonth := make(map[string]decimal.Decimal)
	for _, txn := range txns {
		if txn.Direction != core.DebitTxn || txn.Date.IsZero() {
			continue
		}
		if !txn.Date.Within(from, to) {
			continue
		}
		key := txn.Date.MonthKey()
		byMonth[key] = byMonth[key].Add(txn.Amount)
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	out := make([]core.MonthlySpend, 0, len(months))
	for _, m := range months {
		out = append(out, core.MonthlySpend{Month: m, Amount: byMonth[m]})
	}
	return out
}

// CategoryBreakdown sums debit amounts per category over the inclusive
// range and computes each category's percentage share of the period
// total, rounded to two decimals. Categories are sorted by amount
// descending, name ascending on ties for a stable order.
func CategoryBreakdown(txns []core.Transaction, from, to core.Date) core.CategoryBreakdown {
	byCategory := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, txn := range txns {
		if txn.Direction != core.DebitTxn || txn.Date.IsZero() {
			continue
		}
		if !txn.Date.Within(from, to) {
			continue
		}
		category := txn.Category
		if category == "" {
			category = core.CategoryOthers
		}
		byCategory[category] = byCategory[category].Add(txn.Amount)
		total = total.Add(txn.Amount)
	}

	rows := make([]core.CategorySpend, 0, len(byCategory))
	hundred := decimal.NewFromInt(100)
	for category, amount := range byCategory {
		percentage := decimal.Zero
		if total.Sign() > 0 {
			percentage = amount.Div(total).Mul(hundred).Round(2)
		}
		rows = append(rows, core.CategorySpend{
			Category:   category,
			Amount:     amount,
			Percentage: percentage,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Amount.Equal(rows[j].Amount) {
			return rows[i].Amount.GreaterThan(rows[j].Amount)
		}
		return rows[i].Category < rows[j].Category
	})

	return core.CategoryBreakdown{Total: total, Breakdown: rows}
}

// Summarize computes the income/expense overview for the inclusive
// range. When no transaction falls in range, the latest-transaction
// date reported is "now" truncated to a calendar date.
func Summarize(txns []core.Transaction, from, to core.Date, now core.Date) core.Summary {
	summary := core.Summary{From: from, To: to, LatestDate: now}

	var latest core.Date
	for _, txn := range txns {
		if txn.Date.IsZero() || !txn.Date.Within(from, to) {
			continue
		}
		summary.TransactionCount++
		switch txn.Direction {
		case core.DebitTxn:
			summary.TotalExpenses = summary.TotalExpenses.Add(txn.Amount)
		case core.CreditTxn:
			summary.TotalIncome = summary.TotalIncome.Add(txn.Amount)
		}
		if txn.Date.After(latest.Time) {
			latest = txn.Date
		}
	}

	summary.TotalExpenses = core.Round2(summary.TotalExpenses)
	summary.TotalIncome = core.Round2(summary.TotalIncome)
	summary.Balance = summary.TotalIncome.Sub(summary.TotalExpenses)
	if !latest.IsZero() {
		summary.LatestDate = latest
	}
	return summary
}
