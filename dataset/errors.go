package dataset

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrUnsupportedDriver = errors.New("unsupported database")
	ErrEmpty             = errors.New("dataset has no columns")
	// ErrReadOnly is returned for statements that could modify a database.
	ErrReadOnly = errors.New("only SELECT queries are allowed")
)
