// Package domain holds the typed records exchanged between the vetting, matching
// and outreach components. Rows from any data source are converted into these
// types before they cross a component boundary.
package domain

import "errors"

var (
	// ErrInvalidInput marks missing or malformed caller-supplied fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks unknown ids.
	ErrNotFound = errors.New("not found")
	// ErrPersist marks a failed write whose computed result is still valid.
	ErrPersist = errors.New("persist failed")
)
