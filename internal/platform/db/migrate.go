package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"carepay/internal/platform/metrics"
	"carepay/internal/platform/querier"
)

const (
	OutcomeApplied        = "applied"
	OutcomeAlreadyApplied = "already_applied"
)

// MigrationError aborts startup. The store is left at the last recorded
// version.
type MigrationError struct {
	StepID int
	Name   string
	Op     string
	Err    error
}

func (e *MigrationError) Error() string {
	if e.StepID == 0 {
		return fmt.Sprintf("migration failed: %v", e.Err)
	}
	return fmt.Sprintf("migration %d (%s) failed at %q: %v", e.StepID, e.Name, e.Op, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Op is one structural change. Apply must be safe to run against a store
// where the change is already present; the migrator treats an
// "already exists" failure as success.
type Op interface {
	Describe() string
	Apply(ctx context.Context, q querier.Querier) error
}

type execOp struct {
	desc string
	stmt string
}

func (o execOp) Describe() string { return o.desc }

func (o execOp) Apply(ctx context.Context, q querier.Querier) error {
	_, err := q.ExecContext(ctx, o.stmt)
	return err
}

func CreateTable(name, ddl string) Op {
	return execOp{desc: "create table " + name, stmt: ddl}
}

func AddColumn(table, column, definition string) Op {
	return execOp{
		desc: "add column " + table + "." + column,
		stmt: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition),
	}
}

func CreateIndex(name, ddl string) Op {
	return execOp{desc: "create index " + name, stmt: ddl}
}

func CreateTrigger(name, ddl string) Op {
	return execOp{desc: "create trigger " + name, stmt: ddl}
}

// Exec runs a data statement, e.g. a cleanup that must precede an index.
func Exec(desc, stmt string) Op {
	return execOp{desc: desc, stmt: stmt}
}

type Step struct {
	ID   int
	Name string
	Ops  []Op
}

type Migrator struct {
	db           *sql.DB
	baseline     int
	legacyTables []string
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewMigrator builds a migrator. A store that has any of legacyTables but no
// schema_meta row is stamped at baseline instead of being replayed from zero.
func NewMigrator(db *sql.DB, baseline int, legacyTables []string, m *metrics.Metrics) *Migrator {
	return &Migrator{
		db:           db,
		baseline:     baseline,
		legacyTables: legacyTables,
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (m *Migrator) ensureMetaTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			last_migration TEXT NOT NULL
		)
	`)
	return err
}

// CurrentVersion returns the recorded version, or 0 for a store that has
// never been migrated.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	version, found, err := m.readVersion(ctx)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return version, nil
}

// Verify fails with a *MigrationError unless the store is recorded at want.
// It never changes the store.
func (m *Migrator) Verify(ctx context.Context, want int) error {
	version, err := m.CurrentVersion(ctx)
	if err != nil {
		return &MigrationError{Op: "read version", Err: err}
	}
	if version != want {
		return &MigrationError{
			Op:  "verify version",
			Err: fmt.Errorf("%w: store is at version %d, expected %d", ErrSchemaMismatch, version, want),
		}
	}
	return nil
}

func (m *Migrator) readVersion(ctx context.Context) (int, bool, error) {
	var exists int
	if err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'schema_meta'",
	).Scan(&exists); err != nil {
		return 0, false, err
	}
	if exists == 0 {
		return 0, false, nil
	}
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT version FROM schema_meta WHERE id = 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, true, nil
}

func (m *Migrator) hasLegacyTables(ctx context.Context) (bool, error) {
	if len(m.legacyTables) == 0 {
		return false, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(m.legacyTables)), ",")
	args := make([]any, 0, len(m.legacyTables))
	for _, name := range m.legacyTables {
		args = append(args, name)
	}
	var count int
	err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name IN ("+placeholders+")",
		args...,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func validateSteps(steps []Step) error {
	last := 0
	for _, step := range steps {
		if step.ID <= last {
			return &MigrationError{StepID: step.ID, Name: step.Name, Op: "validate", Err: fmt.Errorf("step ids must be strictly ascending (after %d)", last)}
		}
		last = step.ID
	}
	return nil
}

// Migrate applies every step newer than the recorded version and returns the
// resulting version. Pending steps and the schema_meta update share one
// transaction, so a fatal step leaves the store exactly as it was.
func (m *Migrator) Migrate(ctx context.Context, steps []Step) (int, error) {
	if err := validateSteps(steps); err != nil {
		return 0, err
	}
	if err := m.ensureMetaTable(ctx); err != nil {
		return 0, &MigrationError{Op: "create schema_meta", Err: err}
	}

	version, found, err := m.readVersion(ctx)
	if err != nil {
		return 0, &MigrationError{Op: "read version", Err: err}
	}
	lastName := ""
	if !found {
		legacy, err := m.hasLegacyTables(ctx)
		if err != nil {
			return 0, &MigrationError{Op: "detect legacy tables", Err: err}
		}
		if legacy {
			version = m.baseline
			lastName = "baseline"
			slog.Info("unversioned legacy store detected", "baselineVersion", m.baseline)
		}
	}

	var pending []Step
	for _, step := range steps {
		if step.ID > version {
			pending = append(pending, step)
		}
	}
	if found && len(pending) == 0 {
		m.metrics.SetSchemaVersion(version)
		return version, nil
	}

	err = querier.RunInTx(ctx, m.db, func(ctx context.Context) error {
		tx, _ := querier.From(ctx)
		for _, step := range pending {
			if err := m.applyStep(ctx, tx, step); err != nil {
				return err
			}
			version = step.ID
			lastName = step.Name
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schema_meta (id, version, applied_at, last_migration)
			VALUES (1, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				version = excluded.version,
				applied_at = excluded.applied_at,
				last_migration = excluded.last_migration
		`, version, m.now(), lastName)
		if err != nil {
			return &MigrationError{Op: "record version", Err: err}
		}
		return nil
	})
	if err != nil {
		var migErr *MigrationError
		if errors.As(err, &migErr) {
			return 0, migErr
		}
		return 0, &MigrationError{Op: "transaction", Err: err}
	}

	m.metrics.SetSchemaVersion(version)
	slog.Info("schema migrated", "version", version, "lastMigration", lastName, "stepsApplied", len(pending))
	return version, nil
}

func (m *Migrator) applyStep(ctx context.Context, q querier.Querier, step Step) error {
	for _, op := range step.Ops {
		err := op.Apply(ctx, q)
		switch {
		case err == nil:
			m.metrics.RecordMigrationOp(OutcomeApplied)
		case IsAlreadyExists(err):
			m.metrics.RecordMigrationOp(OutcomeAlreadyApplied)
			slog.Info("migration op already applied", "step", step.ID, "op", op.Describe())
		default:
			m.metrics.RecordMigrationOp("failed")
			return &MigrationError{StepID: step.ID, Name: step.Name, Op: op.Describe(), Err: err}
		}
	}
	slog.Info("migration step applied", "step", step.ID, "name", step.Name)
	return nil
}

// Schema lists every table, index and trigger definition in a stable order.
func (m *Migrator) Schema(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT type, name, COALESCE(sql, '')
		FROM sqlite_master
		WHERE name NOT LIKE 'sqlite_%'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var kind, name, ddl string
		if err := rows.Scan(&kind, &name, &ddl); err != nil {
			return nil, err
		}
		out = append(out, kind+" "+name+" "+strings.Join(strings.Fields(ddl), " "))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
