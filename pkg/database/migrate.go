package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// MigrationState is the schema version after a run.
type MigrationState struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Changed bool `json:"changed"`
}

// Migrate applies (or rolls back) the embedded migrations against databaseURL.
// Down with steps > 0 rolls back that many versions; steps == 0 rolls back all.
func Migrate(databaseURL string, dir Direction, steps int) (MigrationState, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return MigrationState{}, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return MigrationState{}, fmt.Errorf("initialize migrations: %w", err)
	}
	defer m.Close()

	switch {
	case dir == Up && steps > 0:
		err = m.Steps(steps)
	case dir == Up:
		err = m.Up()
	case dir == Down && steps > 0:
		err = m.Steps(-steps)
	case dir == Down:
		err = m.Down()
	default:
		return MigrationState{}, fmt.Errorf("unknown migration direction %q", dir)
	}

	state := MigrationState{Changed: err == nil}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return state, fmt.Errorf("migrate %s: %w", dir, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return state, fmt.Errorf("read schema version: %w", verr)
	}
	state.Version = version
	state.Dirty = dirty
	return state, nil
}

// RequiredIndex is a unique index the service depends on.
type RequiredIndex struct {
	Table string
	Index string
}

// RequiredIndexes lists the unique indexes writes rely on. Snapshot upserts
// name the first as their on_conflict target; the second keeps a driver to a
// single pending payout.
var RequiredIndexes = []RequiredIndex{
	{Table: "breakeven_history", Index: "uq_breakeven_history_period"},
	{Table: "payouts", Index: "uq_payouts_driver_pending"},
}

// VerifySchema confirms every required conflict-target index exists.
func VerifySchema(ctx context.Context, pool interface {
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}) error {
	const query = `SELECT EXISTS (
		SELECT 1 FROM pg_indexes
		WHERE schemaname = current_schema() AND tablename = $1 AND indexname = $2
	)`

	var missing []string
	for _, req := range RequiredIndexes {
		table, index := req.Table, req.Index
		exists, err := RetryableQueryRow(ctx, pool, query, []interface{}{table, index}, func(row pgx.Row) (bool, error) {
			var ok bool
			err := row.Scan(&ok)
			return ok, err
		})
		if err != nil {
			return fmt.Errorf("check index %s: %w", index, err)
		}
		if !exists {
			missing = append(missing, table+"."+index)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing unique indexes: %v", missing)
	}
	return nil
}
