package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/russross/meddler"
	"github.com/zkgrants/aggregator/aggregator/db/migrations"
	"github.com/zkgrants/aggregator/aggregator/tracker"
	"github.com/zkgrants/aggregator/aggregator/types"
	"github.com/zkgrants/aggregator/db"
	"github.com/zkgrants/aggregator/log"
)

const errWhileRollbackFormat = "error while rolling back tx: %w"

var _ tracker.JobStorage = (*SQLStorage)(nil)

type taskRecordRow struct {
	RequestID string           `meddler:"request_id"`
	TaskID    string           `meddler:"task_id"`
	Params    types.NodeParams `meddler:"node_params,json"`
}

// SQLStorage is a tracker.JobStorage backed by SQLite
type SQLStorage struct {
	logger *log.Logger
	db     *sql.DB
}

// NewSQLStorage opens the database at dbPath, running the pending migrations
func NewSQLStorage(logger *log.Logger, dbPath string) (*SQLStorage, error) {
	database, err := db.NewSQLiteDB(dbPath)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunMigrations(logger, database); err != nil {
		return nil, err
	}
	// sqlite serializes writers, a single connection avoids SQLITE_BUSY between them
	database.SetMaxOpenConns(1)

	return &SQLStorage{
		logger: logger,
		db:     database,
	}, nil
}

// Close closes the underlying database
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// InsertJob stores a new job
func (s *SQLStorage) InsertJob(_ context.Context, job tracker.Job) error {
	if err := meddler.Insert(s.db, "job", &job); err != nil {
		if db.IsUniqueViolation(err) {
			return tracker.ErrJobExists
		}
		return fmt.Errorf("error inserting job: %w", err)
	}

	return nil
}

// UpdateJob overwrites an existing job
func (s *SQLStorage) UpdateJob(_ context.Context, job tracker.Job) error {
	res, err := s.db.Exec(`
		UPDATE job SET status = $1, proof = $2, tx_hash = $3, error = $4, updated_at_sec = $5
		WHERE request_id = $6;`,
		job.Status, job.Proof, job.TxHash, job.Error, job.UpdatedAtSec, job.RequestID)
	if err != nil {
		return fmt.Errorf("error updating job %s: %w", job.RequestID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return types.ErrNotFound
	}

	return nil
}

// GetJob returns the job requestID
func (s *SQLStorage) GetJob(_ context.Context, requestID string) (tracker.Job, error) {
	return getJob(s.db, requestID)
}

func getJob(querier meddler.DB, requestID string) (tracker.Job, error) {
	var job tracker.Job
	if err := meddler.QueryRow(querier, &job, "SELECT * FROM job WHERE request_id = $1;", requestID); err != nil {
		return tracker.Job{}, getSelectQueryError(requestID, err)
	}

	return job, nil
}

// SaveTaskRecords appends the records of requestID in a single transaction
func (s *SQLStorage) SaveTaskRecords(ctx context.Context, requestID string, records []types.TaskRecord) error {
	tx, err := db.NewTx(ctx, s.db)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if errRllbck := tx.Rollback(); errRllbck != nil {
				s.logger.Errorf(errWhileRollbackFormat, errRllbck)
			}
		}
	}()

	if _, err = getJob(tx, requestID); err != nil {
		return err
	}
	for _, record := range records {
		row := taskRecordRow{RequestID: requestID, TaskID: record.TaskID, Params: record.Params}
		if err = meddler.Insert(tx, "task_record", &row); err != nil {
			return fmt.Errorf("error inserting task record: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	s.logger.Debugf("inserted %d task records of request %s", len(records), requestID)

	return nil
}

// GetTaskRecords returns the records of requestID in insertion order
func (s *SQLStorage) GetTaskRecords(_ context.Context, requestID string) ([]types.TaskRecord, error) {
	if _, err := getJob(s.db, requestID); err != nil {
		return nil, err
	}

	var rows []*taskRecordRow
	if err := meddler.QueryAll(s.db, &rows,
		"SELECT request_id, task_id, node_params FROM task_record WHERE request_id = $1 ORDER BY id ASC;",
		requestID); err != nil {
		return nil, err
	}

	records := make([]types.TaskRecord, 0, len(rows))
	for _, row := range db.SlicePtrsToSlice(rows).([]taskRecordRow) {
		records = append(records, types.TaskRecord{TaskID: row.TaskID, Params: row.Params})
	}

	return records, nil
}

func getSelectQueryError(requestID string, err error) error {
	if errors.Is(db.ReturnErrNotFound(err), db.ErrNotFound) {
		return fmt.Errorf("job %s: %w", requestID, types.ErrNotFound)
	}

	return err
}
