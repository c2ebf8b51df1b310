// Package dao provides the data-access interface the HTTP service uses to
// persist preprocessing jobs, mirroring the teacher's server/dao shape.
package dao

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("the requested job could not be found")
	ErrConstraintViolation = errors.New("a job with that ID already exists")
)

// Job is one invocation of the core pipeline against a single source text.
type Job struct {
	ID                  uuid.UUID
	Source              string
	Output              string
	HasPreprocessorCode bool
	CreatedAt           time.Time
}

// JobRepository persists and retrieves Job records.
type JobRepository interface {
	Create(ctx context.Context, job Job) (Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (Job, error)
}
