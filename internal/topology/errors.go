package topology

import "errors"

// Error classes. Every topology error matches exactly one of these with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
)

var (
	ErrLineNotFound     = classed("line not found", ErrNotFound)
	ErrStationNotFound  = classed("station not found", ErrNotFound)
	ErrStationNotInPath = classed("station not in line path", ErrNotFound)
	ErrSectionNotFound  = classed("section not found", ErrNotFound)

	ErrDuplicateSection    = classed("duplicate section", ErrConflict)
	ErrDisconnectedSection = classed("section does not touch the line path", ErrConflict)
	ErrTopologyViolation   = classed("section would break the line path", ErrConflict)

	ErrInvalidSection = classed("invalid section", ErrInvalid)
)

type classedError struct {
	msg   string
	class error
}

func classed(msg string, class error) error { return &classedError{msg: msg, class: class} }

func (e *classedError) Error() string { return e.msg }
func (e *classedError) Unwrap() error { return e.class }

// ErrStationInUse is returned by stores when deleting a station that a line
// path still references.
var ErrStationInUse = classed("station is referenced by a line path", ErrConflict)
