package catalog_test

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/catalog"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func loadSample(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Load(filepath.Join("..", "..", "..", "configs", "catalog.yaml"))
	require.NoError(t, err)
	return c
}

func TestLoad_Sample(t *testing.T) {
	c := loadSample(t)
	require.Equal(t, "2026.1", c.Version())

	def, err := c.Definition("WIR-MEP")
	require.NoError(t, err)
	require.Equal(t, "WIR-MEP@2026.1", def.ID)
	require.True(t, def.IsCheckpoint)
	require.Equal(t, "WIR-3", def.CheckpointCode)
	require.True(t, def.StandardDuration.Equal(decimal.RequireFromString("0.5")))

	tpl := c.Templates(def)
	require.Len(t, tpl, 2)
	require.Equal(t, "MEP-1", tpl[0].ItemCode)
	require.Equal(t, "Mechanical, electrical and plumbing", tpl[0].SectionTitle)

	defs := c.Definitions()
	require.Equal(t, "FRAME", defs[0].Code)

	_, err = c.Definition("NOPE")
	require.ErrorIs(t, err, catalog.ErrUnknownActivity)
}

func TestPlan_RulesFilterSteps(t *testing.T) {
	c := loadSample(t)

	steps, err := c.Plan("volumetric_module", map[string]string{"stairs": "yes"})
	require.NoError(t, err)
	require.Len(t, steps, 4)
	require.Equal(t, "STAIR", steps[2].Definition.Code)
	require.Len(t, steps[3].DependsOn, 2)

	steps, err = c.Plan("volumetric_module", nil)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	require.Len(t, steps[2].DependsOn, 1)
	require.Equal(t, "MEP-ROUGH", steps[2].DependsOn[0].Activity)
	require.Equal(t, dependency.FinishToStart, steps[2].DependsOn[0].Type)

	steps, err = c.Plan("unknown", nil)
	require.NoError(t, err)
	require.Empty(t, steps)
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]string{
		"missing version": `activities: []`,
		"bad section ref": `
version: "1"
activities:
  - {code: A, name: A, checklist_sections: [X]}`,
		"checkpoint without code": `
version: "1"
activities:
  - {code: A, name: A, inspection_checkpoint: true}`,
		"forward dependency": `
version: "1"
activities:
  - {code: A, name: A}
  - {code: B, name: B}
plans:
  t:
    - activity: A
      depends_on: [{activity: B, type: FinishToStart}]
    - activity: B`,
		"bad rule": `
version: "1"
activities:
  - {code: A, name: A}
plans:
  t:
    - activity: A
      when: 'unit.type +'`,
		"negative lag": `
version: "1"
activities:
  - {code: A, name: A}
  - {code: B, name: B}
plans:
  t:
    - activity: A
    - activity: B
      depends_on: [{activity: A, type: FinishToStart, lag_days: -1}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(doc))
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestDefinition_SameContent(t *testing.T) {
	c := loadSample(t)
	def, err := c.Definition("FRAME")
	require.NoError(t, err)
	other := def
	require.True(t, def.SameContent(other))
	other.StandardDuration = decimal.NewFromInt(3)
	require.False(t, def.SameContent(other))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := catalog.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}
