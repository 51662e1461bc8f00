package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/access"
	"github.com/rpggio/fabtrack/internal/domain/activity"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/catalog"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/rpggio/fabtrack/internal/domain/inspection"
	"github.com/rpggio/fabtrack/internal/domain/logistics"
	"github.com/rpggio/fabtrack/internal/domain/unit"
	"github.com/rpggio/fabtrack/internal/repository"
)

// Guard describes one state change on a versioned entity.
type Guard[T any] struct {
	// Load reads the committed state.
	Load func() (T, error)
	// Check is an optional precondition evaluated before Mutate.
	Check func(current T) error
	// Mutate computes the new state and its audit draft, or refuses. A draft without an
	// Action is a no-op and nothing is written.
	Mutate func(current T) (T, audit.Draft, error)
	// Save writes next conditionally on current's version token.
	Save func(current T, next *T) error
}

// GuardedTransition reads, checks, mutates, saves and audits one entity inside t's
// transaction. A version conflict surfaces as repository.ErrConflict and the whole
// unit of work is retried from re-read by the engine.
func GuardedTransition[T any](t *txn, g Guard[T]) (T, error) {
	var zero T
	current, err := g.Load()
	if err != nil {
		return zero, err
	}
	if g.Check != nil {
		if err := g.Check(current); err != nil {
			return zero, err
		}
	}
	next, draft, err := g.Mutate(current)
	if err != nil {
		return zero, err
	}
	if draft.Action == "" {
		return current, nil
	}
	if err := g.Save(current, &next); err != nil {
		return zero, err
	}
	if err := t.audit(draft); err != nil {
		return zero, err
	}
	return next, nil
}

// txn is one attempt of one operation.
type txn struct {
	ctx     context.Context
	tx      repository.Tx
	e       *Engine
	actor   access.Actor
	now     time.Time
	entries []audit.Entry
	touched []string
}

// run executes fn as an atomic unit of work with bounded conflict retries, then
// recomputes touched units and publishes the committed audit entries.
func (e *Engine) run(ctx context.Context, op string, actor access.Actor, perm access.Permission, fn func(t *txn) error) error {
	start := time.Now()
	err := e.attempt(ctx, op, actor, perm, fn)
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	transitionsTotal.WithLabelValues(op, outcome(err)).Inc()
	return err
}

func (e *Engine) attempt(ctx context.Context, op string, actor access.Actor, perm access.Permission, fn func(t *txn) error) error {
	if perm != "" {
		if err := actor.Require(perm); err != nil {
			e.logger.Info("operation rejected", "operation", op, "actor", actor.ID, "reason", err)
			return err
		}
	}

	var t *txn
	var err error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			conflictRetries.WithLabelValues(op).Inc()
			e.logger.Debug("retrying after version conflict", "operation", op, "attempt", attempt)
		}
		t = &txn{ctx: ctx, e: e, actor: actor, now: e.now()}
		err = e.store.InTx(ctx, func(tx repository.Tx) error {
			t.tx = tx
			if err := fn(t); err != nil {
				return err
			}
			return t.recomputeTouched()
		})
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
	}
	if err != nil {
		return e.classify(op, err)
	}

	if e.notifier != nil && len(t.entries) > 0 {
		e.notifier.Publish(t.entries)
	}
	return nil
}

// view runs a read-only unit of work against the latest committed state.
func (e *Engine) view(ctx context.Context, op string, fn func(t *txn) error) error {
	t := &txn{ctx: ctx, e: e, actor: access.System(), now: e.now()}
	err := e.store.InTx(ctx, func(tx repository.Tx) error {
		t.tx = tx
		return fn(t)
	})
	if err != nil {
		return e.classify(op, err)
	}
	return nil
}

func (e *Engine) classify(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, repository.ErrConflict):
		e.logger.Warn("retries exhausted", "operation", op, "max_retries", e.cfg.MaxRetries)
		return fmt.Errorf("%s: %w", op, domain.ErrConcurrentModification)
	case isDomainError(err):
		e.logger.Info("operation rejected", "operation", op, "reason", err)
		return err
	default:
		e.logger.Error("persistence failure", "operation", op, "error", err)
		return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
	}
}

var domainSentinels = []error{
	domain.ErrValidation,
	domain.ErrNotFound,
	domain.ErrInvalidTransition,
	domain.ErrPermissionDenied,
	domain.ErrConcurrentModification,
	domain.ErrUnresolvedReference,
	dependency.ErrDependencyNotSatisfied,
	dependency.ErrCyclicDependency,
	inspection.ErrChecklistNotClear,
}

func isDomainError(err error) bool {
	for _, s := range domainSentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, domain.ErrPersistence):
		return "error"
	default:
		return "rejected"
	}
}

// audit chains a draft onto the entity's log inside the transaction.
func (t *txn) audit(d audit.Draft) error {
	if d.ActorID == "" {
		d.ActorID = t.actor.ID
	}
	prev, err := t.tx.Audit().Last(t.ctx, d.EntityType, d.EntityID)
	if err != nil {
		return err
	}
	entry, err := audit.Next(prev, d, t.e.newID(), t.now)
	if err != nil {
		return err
	}
	if err := t.tx.Audit().Append(t.ctx, entry); err != nil {
		return err
	}
	t.entries = append(t.entries, entry)
	return nil
}

// touch schedules a unit for recompute before commit.
func (t *txn) touch(unitID string) {
	for _, id := range t.touched {
		if id == unitID {
			return
		}
	}
	t.touched = append(t.touched, unitID)
}

func (t *txn) resolver() dependency.Resolver {
	now := t.now
	return dependency.NewResolver(func() time.Time { return now })
}

func (t *txn) recomputeTouched() error {
	for _, id := range t.touched {
		if _, err := t.recompute(id); err != nil {
			return err
		}
	}
	t.touched = nil
	return nil
}

// recompute is the only writer of a unit's derived status and progress.
func (t *txn) recompute(unitID string) (*unit.Unit, error) {
	u, err := t.loadUnit(unitID)
	if err != nil {
		return nil, err
	}
	instances, err := t.tx.Activities().ListByUnit(t.ctx, unitID)
	if err != nil {
		return nil, err
	}
	status, progress := unit.Recompute(instances)
	next, changed := unit.Apply(*u, status, progress)
	if !changed {
		return u, nil
	}
	next.UpdatedAt = t.now
	if err := t.tx.Units().Update(t.ctx, &next, u.Version); err != nil {
		return nil, err
	}
	err = t.audit(audit.Draft{
		EntityType: audit.EntityUnit,
		EntityID:   u.ID,
		Action:     "recomputed",
		PriorState: string(u.Status),
		NewState:   string(next.Status),
		Details: map[string]string{
			"prior_progress": u.Progress.StringFixed(2),
			"progress":       next.Progress.StringFixed(2),
		},
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, domain.ErrNotFound)
}

func mapNotFound(err error, entity, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(entity, id)
	}
	return err
}

func (t *txn) loadUnit(id string) (*unit.Unit, error) {
	u, err := t.tx.Units().Get(t.ctx, id)
	return u, mapNotFound(err, "unit", id)
}

func (t *txn) loadInstance(id string) (*activity.Instance, error) {
	in, err := t.tx.Activities().Get(t.ctx, id)
	return in, mapNotFound(err, "activity", id)
}

func (t *txn) loadInspection(id string) (*inspection.Record, error) {
	rec, err := t.tx.Inspections().Get(t.ctx, id)
	return rec, mapNotFound(err, "inspection", id)
}

func (t *txn) loadPanel(id string) (*logistics.Panel, error) {
	p, err := t.tx.Panels().Get(t.ctx, id)
	return p, mapNotFound(err, "panel", id)
}

func (t *txn) loadAnomaly(id string) (*logistics.Anomaly, error) {
	a, err := t.tx.Anomalies().Get(t.ctx, id)
	return a, mapNotFound(err, "anomaly", id)
}

// snapshot reads a unit's instances and edges for the resolver.
func (t *txn) snapshot(unitID string) ([]activity.Instance, []dependency.Edge, error) {
	instances, err := t.tx.Activities().ListByUnit(t.ctx, unitID)
	if err != nil {
		return nil, nil, err
	}
	edges, err := t.tx.Dependencies().ListByUnit(t.ctx, unitID)
	if err != nil {
		return nil, nil, err
	}
	return instances, edges, nil
}

// ensureDefinition stores d unless an identical row exists.
func (t *txn) ensureDefinition(d catalog.Definition) (catalog.Definition, error) {
	stored, err := t.tx.Definitions().Get(t.ctx, d.ID)
	switch {
	case err == nil:
		if !stored.SameContent(d) {
			return catalog.Definition{}, domain.Validation("catalog", fmt.Sprintf("definition %s changed without a version bump", d.ID))
		}
		return *stored, nil
	case errors.Is(err, repository.ErrNotFound):
		d.CreatedAt = t.now
		if err := t.tx.Definitions().Create(t.ctx, d); err != nil {
			return catalog.Definition{}, err
		}
		return d, nil
	default:
		return catalog.Definition{}, err
	}
}
