package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/inspection"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrUnknownActivity indicates a code with no catalog definition.
var ErrUnknownActivity = errors.New("unknown catalog activity")

type fileActivity struct {
	Code                 string   `yaml:"code"`
	Name                 string   `yaml:"name"`
	Stage                string   `yaml:"stage"`
	Sequence             int      `yaml:"sequence"`
	StandardDurationDays float64  `yaml:"standard_duration_days"`
	InspectionCheckpoint bool     `yaml:"inspection_checkpoint"`
	CheckpointCode       string   `yaml:"checkpoint_code"`
	ChecklistSections    []string `yaml:"checklist_sections"`
}

type fileStep struct {
	Activity  string           `yaml:"activity"`
	When      string           `yaml:"when"`
	DependsOn []StepDependency `yaml:"depends_on"`
}

type fileCatalog struct {
	Version           string                `yaml:"version"`
	Activities        []fileActivity        `yaml:"activities"`
	ChecklistSections []Section             `yaml:"checklist_sections"`
	Plans             map[string][]fileStep `yaml:"plans"`
}

type step struct {
	activity  string
	when      string
	program   *vm.Program
	dependsOn []StepDependency
}

// Catalog is read-only after Parse and safe for concurrent use.
type Catalog struct {
	version  string
	defs     map[string]Definition
	sections map[string]Section
	plans    map[string][]step
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse validates a catalog document and compiles its plan rules.
func Parse(data []byte) (*Catalog, error) {
	var f fileCatalog
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	f.Version = strings.TrimSpace(f.Version)
	if f.Version == "" {
		return nil, domain.Validation("version", "required")
	}
	c := &Catalog{
		version:  f.Version,
		defs:     make(map[string]Definition, len(f.Activities)),
		sections: make(map[string]Section, len(f.ChecklistSections)),
		plans:    make(map[string][]step, len(f.Plans)),
	}
	for _, s := range f.ChecklistSections {
		if s.Code == "" {
			return nil, domain.Validation("checklist_sections", "section code required")
		}
		if _, dup := c.sections[s.Code]; dup {
			return nil, domain.Validation("checklist_sections", "duplicate section "+s.Code)
		}
		c.sections[s.Code] = s
	}
	for _, a := range f.Activities {
		def, err := c.definition(a)
		if err != nil {
			return nil, err
		}
		c.defs[def.Code] = def
	}
	for unitType, steps := range f.Plans {
		compiled, err := c.compilePlan(unitType, steps)
		if err != nil {
			return nil, err
		}
		c.plans[unitType] = compiled
	}
	return c, nil
}

func (c *Catalog) definition(a fileActivity) (Definition, error) {
	field := "activities." + a.Code
	switch {
	case a.Code == "":
		return Definition{}, domain.Validation("activities", "code required")
	case strings.Contains(a.Code, "@"):
		return Definition{}, domain.Validation(field, "code may not contain @")
	case a.Name == "":
		return Definition{}, domain.Validation(field, "name required")
	case a.StandardDurationDays < 0:
		return Definition{}, domain.Validation(field, "standard duration must be >= 0")
	case a.InspectionCheckpoint && a.CheckpointCode == "":
		return Definition{}, domain.Validation(field, "checkpoint requires checkpoint_code")
	}
	if _, dup := c.defs[a.Code]; dup {
		return Definition{}, domain.Validation(field, "duplicate activity code")
	}
	for _, s := range a.ChecklistSections {
		if _, ok := c.sections[s]; !ok {
			return Definition{}, domain.Validation(field, "unknown checklist section "+s)
		}
	}
	return Definition{
		ID:                DefinitionID(a.Code, c.version),
		Code:              a.Code,
		CatalogVersion:    c.version,
		Name:              a.Name,
		Stage:             a.Stage,
		Sequence:          a.Sequence,
		StandardDuration:  decimal.NewFromFloat(a.StandardDurationDays),
		IsCheckpoint:      a.InspectionCheckpoint,
		CheckpointCode:    a.CheckpointCode,
		ChecklistSections: a.ChecklistSections,
	}, nil
}

func ruleEnv(unitType string, attrs map[string]string) map[string]any {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return map[string]any{
		"unit": map[string]any{"type": unitType, "attrs": attrs},
	}
}

func (c *Catalog) compilePlan(unitType string, steps []fileStep) ([]step, error) {
	field := "plans." + unitType
	seen := make(map[string]bool, len(steps))
	out := make([]step, 0, len(steps))
	for _, s := range steps {
		if _, ok := c.defs[s.Activity]; !ok {
			return nil, domain.Validation(field, "unknown activity "+s.Activity)
		}
		if seen[s.Activity] {
			return nil, domain.Validation(field, "activity listed twice: "+s.Activity)
		}
		for _, d := range s.DependsOn {
			if !seen[d.Activity] {
				return nil, domain.Validation(field, fmt.Sprintf("%s depends on %s which is not an earlier step", s.Activity, d.Activity))
			}
			if !d.Type.Valid() {
				return nil, domain.Validation(field, "unknown dependency type "+string(d.Type))
			}
			if d.LagDays < 0 {
				return nil, domain.Validation(field, "lag_days must be >= 0")
			}
		}
		compiled := step{activity: s.Activity, when: s.When, dependsOn: s.DependsOn}
		if strings.TrimSpace(s.When) != "" {
			program, err := expr.Compile(s.When, expr.Env(ruleEnv("", nil)), expr.AsBool())
			if err != nil {
				return nil, domain.Validation(field, fmt.Sprintf("rule for %s: %v", s.Activity, err))
			}
			compiled.program = program
		}
		seen[s.Activity] = true
		out = append(out, compiled)
	}
	return out, nil
}

// Version returns the catalog version.
func (c *Catalog) Version() string {
	return c.version
}

// Definitions returns every definition ordered by sequence then code.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Definition looks up an activity by code.
func (c *Catalog) Definition(code string) (Definition, error) {
	d, ok := c.defs[code]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownActivity, code)
	}
	return d, nil
}

// Section looks up a checklist section by code.
func (c *Catalog) Section(code string) (Section, bool) {
	s, ok := c.sections[code]
	return s, ok
}

// Templates expands a checkpoint's sections into item templates for snapshotting.
func (c *Catalog) Templates(d Definition) []inspection.ItemTemplate {
	var out []inspection.ItemTemplate
	for _, code := range d.ChecklistSections {
		s := c.sections[code]
		for _, it := range s.Items {
			out = append(out, inspection.ItemTemplate{
				SectionCode:  s.Code,
				SectionTitle: s.Title,
				ItemCode:     it.Code,
				Description:  it.Description,
			})
		}
	}
	return out
}

// Plan returns the steps that apply to a unit, in plan order. Dependencies on steps
// excluded by their rule are dropped. An unknown unit type has an empty plan.
func (c *Catalog) Plan(unitType string, attrs map[string]string) ([]PlannedActivity, error) {
	env := ruleEnv(unitType, attrs)
	included := make(map[string]bool)
	var out []PlannedActivity
	for _, s := range c.plans[unitType] {
		if s.program != nil {
			result, err := expr.Run(s.program, env)
			if err != nil {
				return nil, fmt.Errorf("evaluate rule for %s: %w", s.activity, err)
			}
			if ok, _ := result.(bool); !ok {
				continue
			}
		}
		pa := PlannedActivity{Definition: c.defs[s.activity]}
		for _, d := range s.dependsOn {
			if included[d.Activity] {
				pa.DependsOn = append(pa.DependsOn, d)
			}
		}
		included[s.activity] = true
		out = append(out, pa)
	}
	return out, nil
}
