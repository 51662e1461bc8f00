package activity

import (
	"strings"
	"time"

	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/shopspring/decimal"
)

// Hundred is the completion percentage.
var Hundred = decimal.NewFromInt(100)

const entityName = "activity"

func refuse(in Instance, to Status, cause error) error {
	return domain.InvalidTransition(entityName, string(in.Status), string(to), cause)
}

// Start moves Pending (or dependency-blocked) work into InProgress when the resolver permits it.
func Start(in Instance, snap dependency.Snapshot, r dependency.Resolver, now time.Time) (Instance, error) {
	switch {
	case in.Status == StatusPending:
	case in.Status == StatusBlocked && in.BlockReason == BlockDependencyReopened:
	default:
		return in, refuse(in, StatusInProgress, ErrWrongState)
	}
	if err := r.CheckStart(snap, in.ID); err != nil {
		return in, err
	}
	out := in
	out.Status = StatusInProgress
	out.BlockReason = BlockNone
	out.ActualStart = timePtr(now)
	out.ActualEnd = nil
	return out, nil
}

// UpdateProgress records a monotonic progress report.
func UpdateProgress(in Instance, pct decimal.Decimal) (Instance, error) {
	if in.Status != StatusInProgress {
		return in, refuse(in, in.Status, ErrWrongState)
	}
	if err := checkRange(pct); err != nil {
		return in, err
	}
	if pct.LessThan(in.Progress) {
		return in, domain.InvalidTransition(entityName, in.Progress.String(), pct.String(), ErrProgressRegression)
	}
	out := in
	out.Progress = pct
	return out, nil
}

// CorrectProgress sets progress to any value in range, including a decrease.
func CorrectProgress(in Instance, pct decimal.Decimal, reason string) (Instance, error) {
	switch in.Status {
	case StatusInProgress, StatusOnHold, StatusBlocked:
	default:
		return in, refuse(in, in.Status, ErrWrongState)
	}
	if strings.TrimSpace(reason) == "" {
		return in, domain.Validation("reason", ErrReasonRequired.Error())
	}
	if err := checkRange(pct); err != nil {
		return in, err
	}
	out := in
	out.Progress = pct
	return out, nil
}

// Hold pauses in-progress work.
func Hold(in Instance, reason string) (Instance, error) {
	if in.Status != StatusInProgress {
		return in, refuse(in, StatusOnHold, ErrWrongState)
	}
	if strings.TrimSpace(reason) == "" {
		return in, domain.Validation("reason", ErrReasonRequired.Error())
	}
	out := in
	out.Status = StatusOnHold
	out.HoldReason = strings.TrimSpace(reason)
	return out, nil
}

// Resume returns held work to InProgress.
func Resume(in Instance) (Instance, error) {
	if in.Status != StatusOnHold {
		return in, refuse(in, StatusInProgress, ErrWrongState)
	}
	out := in
	out.Status = StatusInProgress
	out.HoldReason = ""
	return out, nil
}

// Complete finishes work at 100%. Checkpoints additionally need an Approved inspection.
func Complete(in Instance, snap dependency.Snapshot, r dependency.Resolver, inspectionApproved bool, now time.Time) (Instance, error) {
	if in.Status != StatusInProgress {
		return in, refuse(in, StatusCompleted, ErrWrongState)
	}
	if !in.Progress.Equal(Hundred) {
		return in, refuse(in, StatusCompleted, ErrProgressIncomplete)
	}
	if in.IsCheckpoint && !inspectionApproved {
		return in, refuse(in, StatusCompleted, ErrInspectionNotApproved)
	}
	if err := r.CheckFinish(snap, in.ID); err != nil {
		return in, err
	}
	out := in
	out.Status = StatusCompleted
	out.ActualEnd = timePtr(now)
	return out, nil
}

// Reopen returns completed work to InProgress and clears its end date.
func Reopen(in Instance, reason string) (Instance, error) {
	if in.Status != StatusCompleted {
		return in, refuse(in, StatusInProgress, ErrWrongState)
	}
	if strings.TrimSpace(reason) == "" {
		return in, domain.Validation("reason", ErrReasonRequired.Error())
	}
	out := in
	out.Status = StatusInProgress
	out.ActualEnd = nil
	return out, nil
}

// Block is system-triggered. A reopened predecessor invalidates both actual dates;
// an inspection rejection only invalidates the end date. A dependency block is never
// replaced by an inspection block. changed is false when the instance stays as it was.
func Block(in Instance, reason BlockReason) (out Instance, changed bool) {
	if in.Status == StatusBlocked && (in.BlockReason == reason || in.BlockReason == BlockDependencyReopened) {
		return in, false
	}
	out = in
	out.Status = StatusBlocked
	out.BlockReason = reason
	out.HoldReason = ""
	switch reason {
	case BlockDependencyReopened:
		out.ActualStart = nil
		out.ActualEnd = nil
	case BlockInspectionRejected:
		out.ActualEnd = nil
	}
	return out, true
}

// Unblock lifts an inspection-rejection block once a new revision is opened. Work that
// never started goes back to Pending. Started work resumes only while the resolver still
// permits a start; otherwise it stays Blocked behind its predecessors.
func Unblock(in Instance, snap dependency.Snapshot, r dependency.Resolver) (Instance, error) {
	if in.Status != StatusBlocked || in.BlockReason != BlockInspectionRejected {
		return in, refuse(in, StatusInProgress, ErrWrongState)
	}
	if in.ActualStart == nil {
		out := in
		out.Status = StatusPending
		out.BlockReason = BlockNone
		return out, nil
	}
	if !r.CanStart(snap, in.ID) {
		out, _ := Block(in, BlockDependencyReopened)
		return out, nil
	}
	out := in
	out.Status = StatusInProgress
	out.BlockReason = BlockNone
	return out, nil
}

// Assign sets the responsible team and member.
func Assign(in Instance, team, member string) (Instance, error) {
	if in.Status == StatusCompleted {
		return in, refuse(in, in.Status, ErrWrongState)
	}
	out := in
	out.AssignedTeam = strings.TrimSpace(team)
	out.AssignedMember = strings.TrimSpace(member)
	return out, nil
}

func checkRange(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(Hundred) {
		return domain.Validation("progress", ErrProgressRange.Error())
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
