package orchestrators

import (
	"errors"
	"fmt"
)

// ErrSyncAlreadyRunning is returned when a sync run is requested while one is in progress.
var ErrSyncAlreadyRunning = errors.New("sync run already in progress")

// DatabaseError wraps a storage failure. It aborts the current brand's remaining
// work but not the run.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *DatabaseError
	if errors.As(err, &existing) {
		return err
	}
	return &DatabaseError{Op: op, Err: err}
}

// RecordError is a per-record failure: the record is counted as an error and
// the batch continues.
type RecordError struct {
	ReferenceID string
	Err         error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.ReferenceID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
