package backend

import "fmt"

// Error is the failure of a single backend operation. It carries the
// offending folder and message id so callers can retry by hand; the
// engine itself never retries.
type Error struct {
	Backend string
	Op      string
	Folder  string
	ID      string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Backend + ": " + e.Op
	if e.Folder != "" {
		msg += " " + e.Folder
	}
	if e.ID != "" {
		msg += " id " + e.ID
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
