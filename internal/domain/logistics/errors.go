package logistics

import "errors"

var (
	// ErrApprovalsIncomplete indicates Installed was requested without both approvals.
	ErrApprovalsIncomplete = errors.New("both approval stages must be approved before installation")
	// ErrLocationRegression indicates a move backwards in the delivery chain.
	ErrLocationRegression = errors.New("location status may not move backwards")
	// ErrFirstStageRequired indicates stage two approval before stage one.
	ErrFirstStageRequired = errors.New("first approval stage must be approved first")
	// ErrResubmissionRequired indicates a rejected panel must be resubmitted.
	ErrResubmissionRequired = errors.New("panel was rejected and must be resubmitted")
	// ErrAlreadyDecided indicates the stage already carries a decision.
	ErrAlreadyDecided = errors.New("approval stage already decided")
	// ErrNotRejected indicates a resubmission of a panel that was not rejected.
	ErrNotRejected = errors.New("panel has no rejected stage")
	// ErrAnomalyClosed indicates the anomaly was already handled.
	ErrAnomalyClosed = errors.New("anomaly already resolved")
	// ErrRegistrationRequired indicates an unresolved barcode can only be reconciled by registering the panel.
	ErrRegistrationRequired = errors.New("register the panel to reconcile an unresolved barcode")
)
