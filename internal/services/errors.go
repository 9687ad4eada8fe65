package services

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline operations.
var (
	// ErrTruncationOverrun is returned when a truncated code response could
	// not be completed within the continuation budget.
	ErrTruncationOverrun = errors.New("continuation budget exhausted")
	// ErrNoStories is returned when no page yielded a user story.
	ErrNoStories = errors.New("no user stories extracted")
)

// DuplicateRunError reports that an identical run already completed.
type DuplicateRunError struct {
	RunID string
}

func (e *DuplicateRunError) Error() string {
	return fmt.Sprintf("duplicate of completed run %s", e.RunID)
}
