package inspection

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrChecklistNotClear indicates failing or unresolved items prevent the decision.
	ErrChecklistNotClear = errors.New("checklist not clear")
	// ErrRevisionOpen indicates a previous revision is still awaiting a decision.
	ErrRevisionOpen = errors.New("previous revision still open")
	// ErrAlreadyApproved indicates the activity already has an approved revision.
	ErrAlreadyApproved = errors.New("inspection already approved")
	// ErrReasonRequired indicates a rejection without a reason.
	ErrReasonRequired = errors.New("rejection reason required")
	// ErrUnknownItem indicates the item does not belong to the record.
	ErrUnknownItem = errors.New("unknown checklist item")
	// ErrWrongState indicates the operation is not defined for the current state.
	ErrWrongState = errors.New("operation not allowed in current state")
)

// ItemRef names one checklist item in an error.
type ItemRef struct {
	ID          string    `json:"id"`
	ItemCode    string    `json:"item_code"`
	Description string    `json:"description"`
	State       ItemState `json:"state"`
}

// ChecklistError lists the items that block a decision.
type ChecklistError struct {
	RecordID   string
	Failing    []ItemRef
	Unresolved []ItemRef
}

func (e *ChecklistError) Error() string {
	var parts []string
	if n := len(e.Failing); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s still failing (%s)", n, plural(n), codes(e.Failing)))
	}
	if n := len(e.Unresolved); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s unresolved (%s)", n, plural(n), codes(e.Unresolved)))
	}
	return strings.Join(parts, "; ")
}

// Is matches ErrChecklistNotClear.
func (e *ChecklistError) Is(target error) bool {
	return target == ErrChecklistNotClear
}

func plural(n int) string {
	if n == 1 {
		return "checklist item"
	}
	return "checklist items"
}

func codes(refs []ItemRef) string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.ItemCode
	}
	return strings.Join(out, ", ")
}
