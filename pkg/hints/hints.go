// Package hints marks errors that describe a skipped step rather than a failure.
//
// A run asked to resume may find nothing to resume, a source may be disabled, a
// preflight may have nothing to report. Callers should log these and carry on.
// Producers wrap such errors with Wrap or New, consumers test with IsHint
// without importing the producer's sentinels.
package hints

import "gitlab.com/tozd/go/errors"

type hintErr struct {
	err error
}

func (h *hintErr) Error() string {
	if h == nil || h.err == nil {
		return "unknown hint"
	}
	return h.err.Error()
}

func (h *hintErr) IsHint() bool  { return true }
func (h *hintErr) Unwrap() error { return h.err }

// New creates a hint from a message.
func New(msg string) error {
	return &hintErr{err: errors.Base(msg)}
}

// Wrap promotes err to a hint. Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &hintErr{err: err}
}

// IsHint reports whether any error in the chain is a hint.
func IsHint(err error) bool {
	var h interface{ IsHint() bool }
	return errors.As(err, &h) && h.IsHint()
}

// Is reports whether err is a hint and matches target.
func Is(err, target error) bool {
	return IsHint(err) && errors.Is(err, target)
}
