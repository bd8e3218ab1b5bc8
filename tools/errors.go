package tools

import "errors"

// Sentinel errors for tool registration and call decoding.
var (
	ErrNotFound      = errors.New("tool not found")
	ErrAlreadyExists = errors.New("tool already registered")
	ErrEmptyName     = errors.New("tool name is empty")
	ErrArguments     = errors.New("invalid tool arguments")
	ErrMissingCode   = errors.New("tool call has no code")
	ErrSyntax        = errors.New("syntax error")
)
