package storage

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/youssefsiam38/contextpg/driver"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createMigrationsTableSQL = `
CREATE TABLE IF NOT EXISTS contextpg_migrations (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	checksum   TEXT NOT NULL
);`

type migrationFile struct {
	Name     string
	Up       string
	Down     string
	Checksum string
}

// MigrationRecord describes one embedded migration and whether it is applied.
type MigrationRecord struct {
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
	Checksum  string     `json:"checksum"`
}

// loadMigrations reads migration files from the embedded filesystem, sorted by name.
func loadMigrations() ([]migrationFile, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	upFiles := make(map[string]string)
	downFiles := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		switch {
		case strings.HasSuffix(name, ".up.sql"):
			upFiles[strings.TrimSuffix(name, ".up.sql")] = string(data)
		case strings.HasSuffix(name, ".down.sql"):
			downFiles[strings.TrimSuffix(name, ".down.sql")] = string(data)
		}
	}

	migrations := make([]migrationFile, 0, len(upFiles))
	for key, up := range upFiles {
		migrations = append(migrations, migrationFile{
			Name:     key,
			Up:       up,
			Down:     downFiles[key],
			Checksum: fmt.Sprintf("%x", sha256.Sum256([]byte(up))),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})

	return migrations, nil
}

func appliedMigrations(ctx context.Context, exec driver.Executor) (map[string]MigrationRecord, error) {
	rows, err := exec.Query(ctx, `SELECT name, applied_at, checksum FROM contextpg_migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]MigrationRecord)
	for rows.Next() {
		var rec MigrationRecord
		var at time.Time
		if err := rows.Scan(&rec.Name, &at, &rec.Checksum); err != nil {
			return nil, err
		}
		rec.Applied = true
		rec.AppliedAt = &at
		applied[rec.Name] = rec
	}

	return applied, rows.Err()
}

// Migrate applies all pending embedded migrations in order, one
// transaction per migration. Applied migrations are verified by checksum.
func (s *SQLStore) Migrate(ctx context.Context) error {
	exec := s.driver.GetExecutor()
	if _, err := exec.Exec(ctx, createMigrationsTableSQL); err != nil {
		return fmt.Errorf("contextpg: ensure migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("contextpg: load migrations: %w", err)
	}

	applied, err := appliedMigrations(ctx, exec)
	if err != nil {
		return fmt.Errorf("contextpg: get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if rec, ok := applied[m.Name]; ok {
			if rec.Checksum != m.Checksum {
				return fmt.Errorf("contextpg: migration %s checksum mismatch (expected %s, got %s)", m.Name, rec.Checksum, m.Checksum)
			}
			continue
		}

		if err := s.applyMigration(ctx, m.Name, m.Up, `INSERT INTO contextpg_migrations (name, checksum) VALUES ($1, $2)`, m.Name, m.Checksum); err != nil {
			return err
		}
	}

	return nil
}

// Rollback reverts the most recently applied migration.
func (s *SQLStore) Rollback(ctx context.Context) error {
	exec := s.driver.GetExecutor()

	var name string
	err := exec.QueryRow(ctx, `SELECT name FROM contextpg_migrations ORDER BY id DESC LIMIT 1`).Scan(&name)
	if err != nil {
		return fmt.Errorf("contextpg: get last migration: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("contextpg: load migrations: %w", err)
	}

	var downSQL string
	for _, m := range migrations {
		if m.Name == name {
			downSQL = m.Down
			break
		}
	}
	if downSQL == "" {
		return fmt.Errorf("contextpg: no down migration for %s", name)
	}

	return s.applyMigration(ctx, name, downSQL, `DELETE FROM contextpg_migrations WHERE name = $1`, name)
}

// MigrationStatus returns all embedded migrations with their applied status.
func (s *SQLStore) MigrationStatus(ctx context.Context) ([]MigrationRecord, error) {
	exec := s.driver.GetExecutor()
	if _, err := exec.Exec(ctx, createMigrationsTableSQL); err != nil {
		return nil, fmt.Errorf("contextpg: ensure migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("contextpg: load migrations: %w", err)
	}

	applied, err := appliedMigrations(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("contextpg: get applied migrations: %w", err)
	}

	records := make([]MigrationRecord, 0, len(migrations))
	for _, m := range migrations {
		rec, ok := applied[m.Name]
		if !ok {
			rec = MigrationRecord{Name: m.Name, Checksum: m.Checksum}
		}
		records = append(records, rec)
	}
	return records, nil
}

// applyMigration runs body and the bookkeeping statement in one transaction.
func (s *SQLStore) applyMigration(ctx context.Context, name, body, record string, args ...any) error {
	tx, err := s.driver.Begin(ctx)
	if err != nil {
		return fmt.Errorf("contextpg: begin migration %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, body); err != nil {
		return fmt.Errorf("contextpg: run migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, record, args...); err != nil {
		return fmt.Errorf("contextpg: record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("contextpg: commit migration %s: %w", name, err)
	}
	return nil
}
