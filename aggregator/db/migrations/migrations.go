package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/zkgrants/aggregator/db"
	"github.com/zkgrants/aggregator/db/types"
	"github.com/zkgrants/aggregator/log"
)

//go:embed 0001.sql
var mig001 string

func RunMigrations(logger *log.Logger, database *sql.DB) error {
	migrations := []types.Migration{
		{
			ID:  "aggregator0001",
			SQL: mig001,
		},
	}

	return db.RunMigrationsDB(logger, database, migrations)
}
