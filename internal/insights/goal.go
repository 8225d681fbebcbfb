package insights

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
)

// onTrackHorizonDays is the assumed goal horizon used by the expected
// progress heuristic. It treats every goal as a one-year goal, which
// skews the on-track verdict for other horizons; kept for parity with
// the established behavior.
const onTrackHorizonDays = 365

// GoalProgress derives progress metrics from a goal snapshot at the
// given reference time. It never mutates the goal.
//
// Days remaining may be negative for overdue goals. Months remaining
// is floored at 1 so the monthly-required figure never explodes near
// the target date. A goal is on track when actual progress reaches at
// least 80% of the time-proportional expected progress.
func GoalProgress(g core.Goal, now time.Time) core.GoalProgress {
	progress := decimal.Zero
	if g.TargetAmount.Sign() > 0 {
		progress = g.CurrentAmount.Div(g.TargetAmount).
			Mul(decimal.NewFromInt(100)).Round(2)
	}

	daysRemaining := int(math.Floor(g.TargetDate.Sub(now).Hours() / 24))
	monthsRemaining := math.Max(float64(daysRemaining)/30, 1)

	remaining := g.TargetAmount.Sub(g.CurrentAmount)
	monthlyRequired := remaining.
		Div(decimal.NewFromFloat(monthsRemaining)).Round(2)

	expected := (1 - float64(daysRemaining)/onTrackHorizonDays) * 100
	onTrack := progress.InexactFloat64() >= expected*0.8

	return core.GoalProgress{
		GoalID:             g.ID,
		Name:               g.Name,
		TargetAmount:       g.TargetAmount,
		CurrentAmount:      g.CurrentAmount,
		TargetDate:         g.TargetDate,
		ProgressPercentage: progress,
		MonthlyRequired:    monthlyRequired,
		DaysRemaining:      daysRemaining,
		OnTrack:            onTrack,
	}
}
