package domain

import "errors"

var (
	// ErrInvalidID marks a syntactically invalid identifier. It is a client
	// error and never reaches the aggregator.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrInvalidArgument marks an out-of-range or malformed request parameter.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks a well-formed identifier with no backing record.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a create request for a record that already exists.
	ErrConflict = errors.New("already exists")
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
