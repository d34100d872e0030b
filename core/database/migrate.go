package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/shopbot/core/logger"
)

// Migrator applies the SQL files of cfg.MigrationsDir.
type Migrator struct {
	m     *migrate.Migrate
	dir   string
	files []string
}

// NewMigrator waits for the database and opens a migrate instance.
func NewMigrator(ctx context.Context, cfg Config) (*Migrator, error) {
	cfg.Normalize()
	if err := WaitForPostgres(ctx, cfg.DSN(), 30*time.Second); err != nil {
		logger.MIG.Error("db not ready",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("database not ready: %w", err)
	}

	dir, err := filepath.Abs(cfg.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve migrations dir: %w", err)
	}
	files := listMigrationFiles(dir)
	preview, truncated := logger.SummarizeStrings(files, 6)
	args := []any{
		slog.String("event", "resolve"),
		slog.String("path", dir),
		slog.Int("files_total", len(files)),
	}
	if preview != "" {
		args = append(args, slog.String("files_preview", preview))
	}
	if truncated {
		args = append(args, slog.Bool("files_truncated", true))
	}
	logger.MIG.Debug("migrations resolved", args...)

	m, err := migrate.New("file://"+filepath.ToSlash(dir), cfg.URL())
	if err != nil {
		logger.MIG.Error("init failed",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	return &Migrator{m: m, dir: dir, files: files}, nil
}

// Close releases the source and database handles.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Version returns the applied version and the dirty flag. Version 0 means
// nothing has been applied.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Up applies all pending up migrations.
func (mg *Migrator) Up() error {
	return mg.run("up", mg.m.Up)
}

// Down rolls back steps migrations.
func (mg *Migrator) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("down: steps must be positive, got %d", steps)
	}
	return mg.run("down", func() error { return mg.m.Steps(-steps) })
}

func (mg *Migrator) run(direction string, apply func() error) error {
	fromVer, _, _ := mg.Version()

	start := time.Now()
	err := apply()
	took := time.Since(start)

	switch {
	case err == nil:
	case errors.Is(err, migrate.ErrNoChange):
		logger.MIG.Info("migrations summary",
			slog.String("event", "summary"),
			slog.String("direction", direction),
			slog.Uint64("from_ver", uint64(fromVer)),
			slog.Uint64("to_ver", uint64(fromVer)),
			slog.Int("files", 0),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return nil
	default:
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("direction", direction),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}

	toVer, _, _ := mg.Version()
	lo, hi := uint64(fromVer), uint64(toVer)
	if lo > hi {
		lo, hi = hi, lo
	}
	touched := selectApplied(mg.files, lo, hi)
	if len(touched) > 0 {
		preview, truncated := logger.SummarizeStrings(touched, 6)
		args := []any{
			slog.String("event", "apply"),
			slog.String("direction", direction),
			slog.Int("files_total", len(touched)),
			slog.String("files_preview", preview),
		}
		if truncated {
			args = append(args, slog.Bool("files_truncated", true))
		}
		logger.MIG.Debug("applied files", args...)
	}

	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.String("direction", direction),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("files", len(touched)),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return nil
}

// RunMigrations applies all up migrations.
func RunMigrations(ctx context.Context, cfg Config) error {
	mg, err := NewMigrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer mg.Close()
	return mg.Up()
}

func listMigrationFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(name, ".up.sql") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// selectApplied returns the files with a version in (from, to].
func selectApplied(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
