package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/repository"
)

// AuditRepository implements repository.AuditRepository for SQLite. Rows are
// protected by triggers against update and delete.
type AuditRepository struct {
	q Querier
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(q Querier) *AuditRepository {
	return &AuditRepository{q: q}
}

const auditColumns = `id, entity_type, entity_id, seq, action, prior_state, new_state, actor_id,
	reason, details, timestamp, prev_hash, hash`

// Append inserts an entry. A taken (entity, seq) slot means another writer got there first.
func (r *AuditRepository) Append(ctx context.Context, e audit.Entry) error {
	details := "{}"
	if len(e.Details) > 0 {
		var err error
		if details, err = toJSON(e.Details); err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO audit_log (`+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.EntityType,
		e.EntityID,
		e.Seq,
		e.Action,
		e.PriorState,
		e.NewState,
		e.ActorID,
		e.Reason,
		details,
		ts(e.Timestamp),
		e.PrevHash,
		e.Hash,
	)
	if err != nil {
		err = writeErr("append audit entry", err)
		if errors.Is(err, repository.ErrDuplicate) {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

// Last returns the entity's newest entry, or nil
func (r *AuditRepository) Last(ctx context.Context, entityType, entityID string) (*audit.Entry, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+auditColumns+` FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY seq DESC LIMIT 1
	`, entityType, entityID)
	e, err := scanAudit(row)
	if notFound(err) {
		return nil, nil
	}
	return e, err
}

// List returns the entity's entries ordered by seq
func (r *AuditRepository) List(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+auditColumns+` FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY seq
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanAudit(row rowScanner) (*audit.Entry, error) {
	var e audit.Entry
	var details, stamp string
	err := row.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Seq, &e.Action, &e.PriorState, &e.NewState,
		&e.ActorID, &e.Reason, &details, &stamp, &e.PrevHash, &e.Hash)
	if err != nil {
		if notFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}
	if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
		return nil, fmt.Errorf("failed to decode audit details: %w", err)
	}
	if len(e.Details) == 0 {
		e.Details = nil
	}
	if e.Timestamp, err = parseTS(stamp); err != nil {
		return nil, err
	}
	return &e, nil
}
