package db

import (
	"database/sql"
	"fmt"
	"strings"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/zkgrants/aggregator/db/types"
	"github.com/zkgrants/aggregator/log"
)

const upDownSeparator = "-- +migrate Up"

// RunMigrations opens the SQLite database at dbPath and applies migrations
func RunMigrations(logger *log.Logger, dbPath string, migrations []types.Migration) error {
	database, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("error creating DB %w", err)
	}
	defer database.Close()

	return RunMigrationsDB(logger, database, migrations)
}

// RunMigrationsDB applies the pending migrations on database
func RunMigrationsDB(logger *log.Logger, database *sql.DB, migrations []types.Migration) error {
	migs := &migrate.MemoryMigrationSource{Migrations: make([]*migrate.Migration, 0, len(migrations))}
	for _, m := range migrations {
		if !strings.Contains(m.SQL, upDownSeparator) {
			return fmt.Errorf("migration %s lacks the %q section", m.ID, upDownSeparator)
		}
		parsed, err := migrate.ParseMigration(m.ID, strings.NewReader(m.SQL))
		if err != nil {
			return fmt.Errorf("error parsing migration %s: %w", m.ID, err)
		}
		migs.Migrations = append(migs.Migrations, parsed)
	}

	nMigrations, err := migrate.Exec(database, "sqlite3", migs, migrate.Up)
	if err != nil {
		return fmt.Errorf("error executing migration %w", err)
	}

	logger.Infof("successfully ran %d migrations", nMigrations)

	return nil
}
