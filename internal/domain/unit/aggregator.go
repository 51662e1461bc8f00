package unit

import (
	"github.com/rpggio/fabtrack/internal/domain/activity"
	"github.com/shopspring/decimal"
)

// progressPlaces is the stored precision of unit progress.
const progressPlaces = 2

// Recompute derives status and duration-weighted progress from a unit's instances.
// It is a pure function of its input.
func Recompute(instances []activity.Instance) (Status, decimal.Decimal) {
	return deriveStatus(instances), weightedProgress(instances)
}

func weightedProgress(instances []activity.Instance) decimal.Decimal {
	weighted := decimal.Zero
	total := decimal.Zero
	for _, in := range instances {
		weighted = weighted.Add(in.Progress.Mul(in.StandardDuration))
		total = total.Add(in.StandardDuration)
	}
	if total.IsZero() {
		return decimal.Zero
	}
	return weighted.DivRound(total, progressPlaces)
}

// deriveStatus precedence: all Completed, all Pending, any InProgress, any OnHold,
// then anything else in flight (Blocked, or a Pending/Completed mix).
func deriveStatus(instances []activity.Instance) Status {
	if len(instances) == 0 {
		return StatusNotStarted
	}
	counts := make(map[activity.Status]int, 5)
	for _, in := range instances {
		counts[in.Status]++
	}
	switch {
	case counts[activity.StatusCompleted] == len(instances):
		return StatusCompleted
	case counts[activity.StatusPending] == len(instances):
		return StatusNotStarted
	case counts[activity.StatusInProgress] > 0:
		return StatusInProgress
	case counts[activity.StatusOnHold] > 0:
		return StatusOnHold
	default:
		return StatusInProgress
	}
}

// Apply writes derived fields onto u and reports whether anything changed.
func Apply(u Unit, status Status, progress decimal.Decimal) (Unit, bool) {
	if u.Status == status && u.Progress.Equal(progress) {
		return u, false
	}
	u.Status = status
	u.Progress = progress
	return u, true
}
