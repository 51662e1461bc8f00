package activity

import "errors"

var (
	// ErrProgressRegression indicates a plain update tried to lower progress.
	ErrProgressRegression = errors.New("progress may not decrease without a correction")
	// ErrProgressRange indicates a percentage outside 0..100.
	ErrProgressRange = errors.New("progress must be between 0 and 100")
	// ErrProgressIncomplete indicates completion was requested below 100%.
	ErrProgressIncomplete = errors.New("progress must be 100 to complete")
	// ErrInspectionNotApproved indicates a checkpoint's inspection record is not Approved.
	ErrInspectionNotApproved = errors.New("inspection checkpoint not approved")
	// ErrReasonRequired indicates the transition requires a reason.
	ErrReasonRequired = errors.New("reason required")
	// ErrWrongState indicates the operation is not defined for the current state.
	ErrWrongState = errors.New("operation not allowed in current state")
)
