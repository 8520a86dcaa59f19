package logger

import "errors"

var (
	// ErrInvalidLevel is returned for a level other than debug, info, warn or error.
	ErrInvalidLevel = errors.New("invalid logging level")
	// ErrInvalidEncoding is returned for an encoding other than console or json.
	ErrInvalidEncoding = errors.New("invalid log encoding format")
	// ErrInvalidOutputPath is returned when an output path cannot be opened.
	ErrInvalidOutputPath = errors.New("invalid output path")
)
