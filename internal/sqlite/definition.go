package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpggio/fabtrack/internal/domain/catalog"
	"github.com/rpggio/fabtrack/internal/repository"
)

// DefinitionRepository implements repository.DefinitionRepository for SQLite
type DefinitionRepository struct {
	q Querier
}

// NewDefinitionRepository creates a new DefinitionRepository
func NewDefinitionRepository(q Querier) *DefinitionRepository {
	return &DefinitionRepository{q: q}
}

const definitionColumns = `id, code, catalog_version, name, stage, sequence, standard_duration,
	is_checkpoint, checkpoint_code, checklist_sections, created_at`

// Create inserts a definition. An existing ID returns ErrDuplicate.
func (r *DefinitionRepository) Create(ctx context.Context, d catalog.Definition) error {
	sections, err := toJSON(d.ChecklistSections)
	if err != nil {
		return fmt.Errorf("failed to encode sections: %w", err)
	}
	query := `INSERT INTO activity_definitions (` + definitionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.q.ExecContext(ctx, query,
		d.ID,
		d.Code,
		d.CatalogVersion,
		d.Name,
		d.Stage,
		d.Sequence,
		d.StandardDuration.String(),
		boolInt(d.IsCheckpoint),
		d.CheckpointCode,
		sections,
		ts(d.CreatedAt),
	)
	if err != nil {
		return writeErr("create definition", err)
	}
	return nil
}

// Get retrieves a definition by code@version ID
func (r *DefinitionRepository) Get(ctx context.Context, id string) (*catalog.Definition, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM activity_definitions WHERE id = ?`, id)
	d, err := scanDefinition(row)
	if notFound(err) {
		return nil, repository.ErrNotFound
	}
	return d, err
}

// List returns every stored definition across catalog versions
func (r *DefinitionRepository) List(ctx context.Context) ([]catalog.Definition, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+definitionColumns+` FROM activity_definitions ORDER BY catalog_version, sequence, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var out []catalog.Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// CreateSection stores a section snapshot; an existing section for the version is left as is.
func (r *DefinitionRepository) CreateSection(ctx context.Context, version string, s catalog.Section) error {
	res, err := r.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO checklist_sections (catalog_version, code, title) VALUES (?, ?, ?)`,
		version, s.Code, s.Title)
	if err != nil {
		return writeErr("create checklist section", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	for i, it := range s.Items {
		_, err := r.q.ExecContext(ctx,
			`INSERT INTO predefined_items (catalog_version, section_code, position, code, description) VALUES (?, ?, ?, ?, ?)`,
			version, s.Code, i+1, it.Code, it.Description)
		if err != nil {
			return writeErr("create predefined item", err)
		}
	}
	return nil
}

// ListSections returns a catalog version's sections with their items in order
func (r *DefinitionRepository) ListSections(ctx context.Context, version string) ([]catalog.Section, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT s.code, s.title, i.code, i.description
		FROM checklist_sections s
		LEFT JOIN predefined_items i ON i.catalog_version = s.catalog_version AND i.section_code = s.code
		WHERE s.catalog_version = ?
		ORDER BY s.code, i.position
	`, version)
	if err != nil {
		return nil, fmt.Errorf("failed to list checklist sections: %w", err)
	}
	defer rows.Close()

	var out []catalog.Section
	for rows.Next() {
		var code, title string
		var itemCode, itemDesc *string
		if err := rows.Scan(&code, &title, &itemCode, &itemDesc); err != nil {
			return nil, fmt.Errorf("failed to scan checklist section: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Code != code {
			out = append(out, catalog.Section{Code: code, Title: title})
		}
		if itemCode != nil {
			last := &out[len(out)-1]
			last.Items = append(last.Items, catalog.PredefinedItem{Code: *itemCode, Description: *itemDesc})
		}
	}
	return out, rows.Err()
}

func scanDefinition(row rowScanner) (*catalog.Definition, error) {
	var d catalog.Definition
	var duration, sections, created string
	var checkpoint int
	err := row.Scan(&d.ID, &d.Code, &d.CatalogVersion, &d.Name, &d.Stage, &d.Sequence, &duration,
		&checkpoint, &d.CheckpointCode, &sections, &created)
	if err != nil {
		if notFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan definition: %w", err)
	}
	d.IsCheckpoint = checkpoint != 0
	if err := json.Unmarshal([]byte(sections), &d.ChecklistSections); err != nil {
		return nil, fmt.Errorf("failed to decode sections: %w", err)
	}
	if d.StandardDuration, err = parseDecimal(duration); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	return &d, nil
}
