package inspection

import (
	"strings"
	"time"

	"github.com/rpggio/fabtrack/internal/domain"
)

const entityName = "inspection"

// OpenRequest describes a new revision against a checkpoint activity.
type OpenRequest struct {
	UnitID         string
	UnitTag        string
	ActivityID     string
	CheckpointCode string
	CatalogVersion string
	RequestedBy    string
	Templates      []ItemTemplate
}

// Next opens the first revision, or a resubmission after a rejection. history holds
// every earlier revision for the same activity.
func Next(history []Record, req OpenRequest, newID func() string, now time.Time) (Record, error) {
	if strings.TrimSpace(req.ActivityID) == "" {
		return Record{}, domain.Validation("activity_id", "required")
	}
	if strings.TrimSpace(req.CheckpointCode) == "" {
		return Record{}, domain.Validation("checkpoint_code", "activity is not an inspection checkpoint")
	}
	var last *Record
	for i := range history {
		h := history[i]
		if h.Open() {
			return Record{}, domain.InvalidTransition(entityName, string(h.Status), string(StatusRequested), ErrRevisionOpen)
		}
		if h.Status == StatusApproved {
			return Record{}, domain.InvalidTransition(entityName, string(h.Status), string(StatusRequested), ErrAlreadyApproved)
		}
		if last == nil || h.Revision > last.Revision {
			last = &history[i]
		}
	}

	rec := Record{
		ID:             newID(),
		UnitID:         req.UnitID,
		ActivityID:     req.ActivityID,
		CheckpointCode: req.CheckpointCode,
		CatalogVersion: req.CatalogVersion,
		Revision:       1,
		Status:         StatusRequested,
		RequestedBy:    req.RequestedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if last != nil {
		rec.Revision = last.Revision + 1
		rec.ResubmissionCount = last.ResubmissionCount + 1
	}
	rec.Number = RecordNumber(req.UnitTag, req.CheckpointCode, rec.Revision)
	for i, t := range req.Templates {
		rec.Items = append(rec.Items, ChecklistItem{
			ID:           newID(),
			RecordID:     rec.ID,
			Position:     i + 1,
			SectionCode:  t.SectionCode,
			SectionTitle: t.SectionTitle,
			ItemCode:     t.ItemCode,
			Description:  t.Description,
		})
	}
	return rec, nil
}

// StartReview moves a requested record under review.
func StartReview(r Record, reviewer string, now time.Time) (Record, error) {
	if r.Status != StatusRequested {
		return r, domain.InvalidTransition(entityName, string(r.Status), string(StatusUnderReview), ErrWrongState)
	}
	out := clone(r)
	out.Status = StatusUnderReview
	out.ReviewedBy = reviewer
	out.UpdatedAt = now
	return out, nil
}

// Resolve records an outcome against one item while the record is open.
func Resolve(r Record, itemID string, state ItemState, note, actorID string, now time.Time) (Record, error) {
	if !r.Open() {
		return r, domain.InvalidTransition(entityName, string(r.Status), string(r.Status), ErrWrongState)
	}
	if !state.Cleared() && state != ItemFail {
		return r, domain.Validation("state", "must be pass, fail or na")
	}
	out := clone(r)
	for i := range out.Items {
		if out.Items[i].ID != itemID {
			continue
		}
		out.Items[i].State = state
		out.Items[i].Note = strings.TrimSpace(note)
		out.Items[i].ResolvedBy = actorID
		out.Items[i].ResolvedAt = &now
		out.UpdatedAt = now
		return out, nil
	}
	return r, domain.Validation("item_id", ErrUnknownItem.Error()+": "+itemID)
}

// Approve requires every item to be pass or na.
func Approve(r Record, actorID string, now time.Time) (Record, error) {
	if r.Status != StatusUnderReview {
		return r, domain.InvalidTransition(entityName, string(r.Status), string(StatusApproved), ErrWrongState)
	}
	if err := check(r, true); err != nil {
		return r, err
	}
	return decide(r, StatusApproved, "", actorID, now), nil
}

// Reject requires a reason and a fully resolved checklist.
func Reject(r Record, reason, actorID string, now time.Time) (Record, error) {
	if r.Status != StatusUnderReview {
		return r, domain.InvalidTransition(entityName, string(r.Status), string(StatusRejected), ErrWrongState)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return r, domain.Validation("reason", ErrReasonRequired.Error())
	}
	if err := check(r, false); err != nil {
		return r, err
	}
	return decide(r, StatusRejected, reason, actorID, now), nil
}

// Approved reports whether any revision in history is Approved.
func Approved(history []Record) bool {
	for _, r := range history {
		if r.Status == StatusApproved {
			return true
		}
	}
	return false
}

func check(r Record, failBlocks bool) error {
	ce := &ChecklistError{RecordID: r.ID}
	for _, it := range r.Items {
		ref := ItemRef{ID: it.ID, ItemCode: it.ItemCode, Description: it.Description, State: it.State}
		switch {
		case it.State == ItemUnresolved:
			ce.Unresolved = append(ce.Unresolved, ref)
		case it.State == ItemFail && failBlocks:
			ce.Failing = append(ce.Failing, ref)
		}
	}
	if len(ce.Failing) > 0 || len(ce.Unresolved) > 0 {
		return ce
	}
	return nil
}

func decide(r Record, to Status, reason, actorID string, now time.Time) Record {
	out := clone(r)
	out.Status = to
	out.RejectionReason = reason
	out.DecidedBy = actorID
	out.DecidedAt = &now
	out.UpdatedAt = now
	return out
}

func clone(r Record) Record {
	out := r
	out.Items = append([]ChecklistItem(nil), r.Items...)
	return out
}
