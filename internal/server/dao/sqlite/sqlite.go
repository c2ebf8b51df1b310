// Package sqlite implements dao.JobRepository atop modernc.org/sqlite,
// grounded on the teacher's server/dao/sqlite store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dekarrin/rezi"
	"github.com/google/uuid"
	"modernc.org/sqlite"

	"github.com/pellmont/luapp/internal/server/dao"
)

type jobPayload struct {
	Source              string
	Output              string
	HasPreprocessorCode bool
}

// Store is a dao.JobRepository backed by a single sqlite file.
type Store struct {
	db *sql.DB
}

// NewDatastore opens (creating if necessary) the sqlite database at path
// and ensures the jobs table exists.
func NewDatastore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapDBError(err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		payload BLOB NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, wrapDBError(err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts job, assigning a fresh UUID and creation time if unset.
func (s *Store) Create(ctx context.Context, job dao.Job) (dao.Job, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	payload := jobPayload{Source: job.Source, Output: job.Output, HasPreprocessorCode: job.HasPreprocessorCode}
	data, err := rezi.Enc(payload)
	if err != nil {
		return dao.Job{}, fmt.Errorf("encode job payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO jobs (id, created_at, payload) VALUES (?, ?, ?)",
		job.ID.String(), job.CreatedAt.Unix(), data,
	)
	if err != nil {
		return dao.Job{}, wrapDBError(err)
	}

	return job, nil
}

// GetByID fetches the job with the given ID.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (dao.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT created_at, payload FROM jobs WHERE id = ?", id.String())

	var createdAtUnix int64
	var data []byte
	if err := row.Scan(&createdAtUnix, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dao.Job{}, dao.ErrNotFound
		}
		return dao.Job{}, wrapDBError(err)
	}

	var payload jobPayload
	if _, err := rezi.Dec(data, &payload); err != nil {
		return dao.Job{}, fmt.Errorf("decode job payload: %w", err)
	}

	return dao.Job{
		ID:                  id,
		Source:              payload.Source,
		Output:              payload.Output,
		HasPreprocessorCode: payload.HasPreprocessorCode,
		CreatedAt:           time.Unix(createdAtUnix, 0).UTC(),
	}, nil
}

func wrapDBError(err error) error {
	sqliteErr := &sqlite.Error{}
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code() == 19 {
			return dao.ErrConstraintViolation
		}
		return fmt.Errorf("%s", sqlite.ErrorCodeString[sqliteErr.Code()])
	}
	return err
}
