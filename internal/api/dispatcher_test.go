package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/fabtrack/internal/api"
	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/access"
	"github.com/rpggio/fabtrack/internal/domain/catalog"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/rpggio/fabtrack/internal/domain/inspection"
	"github.com/rpggio/fabtrack/internal/sqlite"
	"github.com/rpggio/fabtrack/internal/workflow"
)

const testCatalog = `
version: "api1"
activities:
  - {code: A1, name: Frame, stage: build, sequence: 10, standard_duration_days: 2}
  - {code: A2, name: Fit-out, stage: build, sequence: 20, standard_duration_days: 8}
plans:
  pod:
    - activity: A1
    - activity: A2
      depends_on:
        - {activity: A1, type: FinishToStart}
`

var admin = access.NewActor("admin", "*")

func newDispatcher(t *testing.T) *api.Dispatcher {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	engine := workflow.NewEngine(db, cat, nil, nil, workflow.Config{})
	require.NoError(t, engine.SyncCatalog(context.Background()))
	return api.NewDispatcher(engine)
}

func call(t *testing.T, d *api.Dispatcher, actor access.Actor, method string, params any) (any, error) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return d.Handle(context.Background(), actor, method, raw)
}

func requireCode(t *testing.T, err error, code string) *api.APIError {
	t.Helper()
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestDispatcher_UnitLifecycle(t *testing.T) {
	d := newDispatcher(t)

	_, err := call(t, d, admin, "create_unit", map[string]any{"tag": "B-1", "type": "pod"})
	require.NoError(t, err)

	res, err := call(t, d, admin, "get_unit", map[string]any{"tag": "B-1"})
	require.NoError(t, err)
	view, ok := res.(*workflow.UnitView)
	require.True(t, ok)
	require.Len(t, view.Activities, 2)
	a1, a2 := view.Activities[0], view.Activities[1]

	_, err = call(t, d, admin, "start_activity", api.IDParams{ID: a2.ID})
	apiErr := requireCode(t, err, api.CodeDependencyNotSatisfied)
	require.ErrorIs(t, err, dependency.ErrDependencyNotSatisfied)
	require.Contains(t, apiErr.Message, a1.ID)
	require.NotEmpty(t, apiErr.RecoveryHint)

	_, err = call(t, d, admin, "start_activity", api.IDParams{ID: a1.ID})
	require.NoError(t, err)
	_, err = call(t, d, admin, "update_progress", map[string]any{"id": a1.ID, "percent": "40"})
	require.NoError(t, err)

	res, err = call(t, d, admin, "audit_trail", api.AuditParams{EntityType: "activity", EntityID: a1.ID})
	require.NoError(t, err)
	require.NotEmpty(t, res)

	res, err = call(t, d, admin, "verify_audit_chain", api.AuditParams{EntityType: "activity", EntityID: a1.ID})
	require.NoError(t, err)
	require.True(t, res.(*workflow.ChainReport).Valid)
}

func TestDispatcher_PermissionDenied(t *testing.T) {
	d := newDispatcher(t)
	viewer := access.NewActor("viewer")

	_, err := call(t, d, viewer, "create_unit", map[string]any{"tag": "B-2", "type": "pod"})
	apiErr := requireCode(t, err, api.CodePermissionDenied)
	require.Equal(t, map[string]any{"permission": "boxes.create"}, apiErr.Details)

	units, err := call(t, d, viewer, "list_units", nil)
	require.NoError(t, err)
	require.Empty(t, units)
}

func TestDispatcher_InvalidParams(t *testing.T) {
	d := newDispatcher(t)
	_, err := d.Handle(context.Background(), admin, "create_unit", json.RawMessage(`{"tag": 7}`))
	requireCode(t, err, api.CodeInvalidParams)
}

func TestDispatcher_UnknownMethod(t *testing.T) {
	d := newDispatcher(t)
	_, err := d.Handle(context.Background(), admin, "list_projects", nil)
	requireCode(t, err, api.CodeUnknownMethod)
	require.ErrorIs(t, err, api.ErrUnknownMethod)
}

func TestDispatcher_EveryListedMethodIsRouted(t *testing.T) {
	d := newDispatcher(t)
	seen := make(map[string]bool)
	for _, m := range api.Methods() {
		require.False(t, seen[m.Name], "duplicate method %s", m.Name)
		seen[m.Name] = true
		require.Equal(t, "object", m.InputSchema["type"], m.Name)

		_, err := d.Handle(context.Background(), admin, m.Name, json.RawMessage(`{}`))
		require.False(t, errors.Is(err, api.ErrUnknownMethod), m.Name)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"cycle", fmt.Errorf("add_dependency: %w", &dependency.CycleError{Path: []string{"a", "b", "a"}}), api.CodeCyclicDependency},
		{"checklist", &inspection.ChecklistError{Failing: []inspection.ItemRef{{ItemCode: "QA-1"}}}, api.CodeChecklistNotClear},
		{"validation", domain.Validation("reason", "required"), api.CodeValidation},
		{"not found", fmt.Errorf("unit %q: %w", "x", domain.ErrNotFound), api.CodeNotFound},
		{"transition", domain.InvalidTransition("activity", "NotStarted", "Completed", nil), api.CodeInvalidTransition},
		{"conflict", fmt.Errorf("op: %w", domain.ErrConcurrentModification), api.CodeConcurrentModification},
		{"unresolved", fmt.Errorf("barcode: %w", domain.ErrUnresolvedReference), api.CodeUnresolvedReference},
		{"persistence", fmt.Errorf("op: %w: %w", domain.ErrPersistence, errors.New("disk full")), api.CodePersistence},
		{"canceled", context.Canceled, api.CodeCanceled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := api.MapError(tc.err)
			require.NotNil(t, apiErr)
			require.Equal(t, tc.code, apiErr.Code)
			require.ErrorIs(t, apiErr, tc.err)
		})
	}

	require.Nil(t, api.MapError(nil))
	require.Nil(t, api.MapError(errors.New("unclassified")))
}

func TestMapError_ChecklistMessageNamesCount(t *testing.T) {
	err := &inspection.ChecklistError{Failing: []inspection.ItemRef{{ItemCode: "QA-1"}, {ItemCode: "QA-2"}, {ItemCode: "QA-3"}}}
	apiErr := api.MapError(err)
	require.Contains(t, apiErr.Message, "3 checklist items still failing")
}
