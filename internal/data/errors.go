package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrTaskNotFound is returned when a task is not found.
	ErrTaskNotFound = errors.New("task not found")
	// ErrReportNotFound is returned when a report is not found.
	ErrReportNotFound = errors.New("report not found")
	// ErrDuplicateJob is returned when enqueuing a task that already has a job.
	ErrDuplicateJob = errors.New("job already enqueued for task")
	// ErrTaskTerminal is returned when attempting a lifecycle transition on a
	// task that already reached a terminal state.
	ErrTaskTerminal = errors.New("task is in a terminal state")
)

// classifyDBError maps low-level database failures to domain errors where a
// sensible mapping exists and otherwise wraps with the operation name.
func classifyDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%s: %w", op, ErrDuplicateJob)
		case pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, ErrTaskNotFound)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
