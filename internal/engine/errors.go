package engine

import (
	"errors"
	"fmt"
)

// StartError reports a failed startup step.
type StartError struct {
	Code    StartErrorCode
	Message string
	Err     error
}

// StartErrorCode categorizes startup failures.
type StartErrorCode string

const (
	// ErrCodeQueueLoad means the persisted queue could not be read.
	ErrCodeQueueLoad StartErrorCode = "QUEUE_LOAD"

	// ErrCodeCacheActivate means stale partitions could not be purged.
	ErrCodeCacheActivate StartErrorCode = "CACHE_ACTIVATE"
)

func (e *StartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// IsQueueLoadError reports whether err is a queue restore failure.
func IsQueueLoadError(err error) bool {
	var se *StartError
	if errors.As(err, &se) {
		return se.Code == ErrCodeQueueLoad
	}
	return false
}
