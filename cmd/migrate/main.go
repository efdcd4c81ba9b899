// Command migrate applies the SQL files under migrations/ in lexical order,
// tracking applied files in a schema_migrations table.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/safeworkhq/compliance-backend/internal/infrastructure/config"
)

const migrationsTable = "schema_migrations"

func main() {
	var (
		action     = flag.String("action", "up", "Migration action: up, status, create")
		name       = flag.String("name", "", "Migration name (for create)")
		dir        = flag.String("dir", "migrations", "Migrations directory")
		configPath = flag.String("config", "", "Config file path")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if *action == "create" {
		if *name == "" {
			logger.Error("migration name is required for create")
			os.Exit(1)
		}
		if err := createMigration(*dir, *name); err != nil {
			logger.Error("create failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	m := &migrator{db: db, dir: *dir, logger: logger}
	ctx := context.Background()

	switch *action {
	case "up":
		err = m.up(ctx)
	case "status":
		err = m.status(ctx)
	default:
		logger.Error("unknown action", "action", *action)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

type migrator struct {
	db     *sql.DB
	dir    string
	logger *slog.Logger
}

func (m *migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, migrationsTable))
	return err
}

func (m *migrator) applied(ctx context.Context) (map[string]bool, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure migrations table: %w", err)
	}

	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id FROM %s", migrationsTable))
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (m *migrator) pending(ctx context.Context) ([]string, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(m.dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}
	sort.Strings(files)

	var out []string
	for _, f := range files {
		if !applied[migrationID(f)] {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *migrator) up(ctx context.Context) error {
	files, err := m.pending(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		m.logger.Info("no pending migrations")
		return nil
	}

	for _, f := range files {
		if err := m.apply(ctx, f); err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}
		m.logger.Info("applied migration", "file", f)
	}
	m.logger.Info("migrations completed", "count", len(files))
	return nil
}

func (m *migrator) apply(ctx context.Context, file string) error {
	content, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id) VALUES ($1)", migrationsTable),
		migrationID(file)); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *migrator) status(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	files, err := m.pending(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Applied: %d\nPending: %d\n", len(applied), len(files))
	for _, f := range files {
		fmt.Printf("  %s\n", filepath.Base(f))
	}
	return nil
}

func createMigration(dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	id := fmt.Sprintf("%s_%s", time.Now().Format("20060102150405"), name)
	path := filepath.Join(dir, id+".sql")
	content := fmt.Sprintf("-- Migration: %s\n\n", name)
	return os.WriteFile(path, []byte(content), 0o644)
}

func migrationID(file string) string {
	return strings.TrimSuffix(filepath.Base(file), ".sql")
}
