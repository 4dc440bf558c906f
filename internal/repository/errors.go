package repository

import "errors"

var (
	// ErrEmptyBaseName indicates a box lookup without an image stem
	ErrEmptyBaseName = errors.New("base name is required")
)
