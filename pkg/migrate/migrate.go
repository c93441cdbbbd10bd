package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"

	"github.com/angelmondragon/audiophile-backend/pkg/db"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
)

// DefaultDir is where new migrations are written and validated on disk.
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Schema moves the storefront database between migration versions. Runs
// from several replicas at once are serialized by a Postgres advisory lock.
type Schema struct {
	provider *goose.Provider
	logg     *logger.Logger
}

// Open prepares migrations from dir, or the set compiled into the binary
// when dir is empty, so deployed services never read the working directory.
// The caller keeps ownership of db.
func Open(db *sql.DB, dir string, logg *logger.Logger) (*Schema, error) {
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("migration lock: %w", err)
	}
	return open(goose.DialectPostgres, db, dir, logg, goose.WithSessionLocker(locker))
}

func open(dialect goose.Dialect, db *sql.DB, dir string, logg *logger.Logger, opts ...goose.ProviderOption) (*Schema, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	fsys, err := source(dir)
	if err != nil {
		return nil, err
	}
	opts = append(opts, goose.WithDisableGlobalRegistry(true))
	provider, err := goose.NewProvider(dialect, db, fsys, opts...)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return &Schema{provider: provider, logg: logg}, nil
}

func source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, embeddedDir)
	}
	return os.DirFS(dir), nil
}

// Up applies every pending migration and reports the versions it moved
// between.
func (s *Schema) Up(ctx context.Context) (from, to int64, err error) {
	if from, err = s.provider.GetDBVersion(ctx); err != nil {
		return 0, 0, fmt.Errorf("read schema version: %w", err)
	}
	results, err := s.provider.Up(ctx)
	s.report(ctx, results...)
	if err != nil {
		return from, from, fmt.Errorf("migrate up: %w", err)
	}
	to, err = s.provider.GetDBVersion(ctx)
	return from, to, err
}

// Down rolls back the newest applied migration.
func (s *Schema) Down(ctx context.Context) error {
	result, err := s.provider.Down(ctx)
	s.report(ctx, result)
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Redo rolls back the newest migration and applies it again.
func (s *Schema) Redo(ctx context.Context) error {
	down, err := s.provider.Down(ctx)
	s.report(ctx, down)
	if err != nil {
		return fmt.Errorf("redo down: %w", err)
	}
	up, err := s.provider.ApplyVersion(ctx, down.Source.Version, true)
	s.report(ctx, up)
	if err != nil {
		return fmt.Errorf("redo up: %w", err)
	}
	return nil
}

// To moves the schema up or down until target is the newest applied
// version. Zero rolls everything back.
func (s *Schema) To(ctx context.Context, target int64) error {
	current, err := s.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil
	case current < target:
		results, err = s.provider.UpTo(ctx, target)
	default:
		results, err = s.provider.DownTo(ctx, target)
	}
	s.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("migrate to %d: %w", target, err)
	}
	return nil
}

// Status lists every known migration with when it was applied.
func (s *Schema) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return s.provider.Status(ctx)
}

func (s *Schema) report(ctx context.Context, results ...*goose.MigrationResult) {
	if s.logg == nil {
		return
	}
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		fields := s.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Round(time.Millisecond).Milliseconds(),
			"empty":       res.Empty,
		})
		if res.Error != nil {
			s.logg.Error(fields, "migrate.failed", res.Error)
			continue
		}
		s.logg.Info(fields, "migrate.applied")
	}
}

// CatchUp applies whatever compiled-in migrations the database is missing.
// Services call it at start when the config allows it.
func CatchUp(ctx context.Context, client *db.Client, logg *logger.Logger) error {
	if client == nil {
		return errors.New("database client is required")
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	schema, err := Open(sqlDB, "", logg)
	if err != nil {
		return err
	}
	_, _, err = schema.Up(ctx)
	return err
}
