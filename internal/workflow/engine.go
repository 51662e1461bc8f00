// Package workflow is the transition engine: every mutation runs as a guarded
// transition that re-reads committed state, checks its precondition and commits the
// new state with its audit entries atomically.
package workflow

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/fabtrack/internal/domain/access"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/catalog"
	"github.com/rpggio/fabtrack/internal/repository"
)

// Notifier receives committed audit entries. Publish must not block.
type Notifier interface {
	Publish(entries []audit.Entry)
}

// Config bounds retries and scan deduplication.
type Config struct {
	MaxRetries      int
	ScanDedupWindow time.Duration
}

const (
	defaultMaxRetries  = 3
	defaultDedupWindow = 10 * time.Minute
)

// Engine applies workflow operations against a transactional store.
type Engine struct {
	store    repository.Store
	catalog  *catalog.Catalog
	notifier Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
	newID    func() string
}

// NewEngine creates an engine. A nil notifier drops notifications; a nil logger discards logs.
func NewEngine(store repository.Store, cat *catalog.Catalog, notifier Notifier, logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.ScanDedupWindow <= 0 {
		cfg.ScanDedupWindow = defaultDedupWindow
	}
	return &Engine{
		store:    store,
		catalog:  cat,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Catalog returns the loaded catalog.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// SyncCatalog stores the loaded catalog's definitions and checklist sections. A stored
// definition with the same code@version but different content is rejected.
func (e *Engine) SyncCatalog(ctx context.Context) error {
	return e.run(ctx, "sync_catalog", access.System(), "", func(t *txn) error {
		for _, s := range e.catalogSections() {
			if err := t.tx.Definitions().CreateSection(ctx, e.catalog.Version(), s); err != nil {
				return err
			}
		}
		for _, d := range e.catalog.Definitions() {
			if _, err := t.ensureDefinition(d); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) catalogSections() []catalog.Section {
	seen := make(map[string]bool)
	var out []catalog.Section
	for _, d := range e.catalog.Definitions() {
		for _, code := range d.ChecklistSections {
			if seen[code] {
				continue
			}
			seen[code] = true
			if s, ok := e.catalog.Section(code); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
