package model

import "errors"

// Sentinel errors returned by the Local Store. Higher layers map these
// onto protocol.ResultCode at the engine boundary.
var (
	// ErrNotFound indicates no document exists with the given id.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidBody indicates a body argument was not syntactically valid JSON.
	ErrInvalidBody = errors.New("body is not valid JSON")

	// ErrTombstoned indicates a mutation was attempted against a document
	// whose pending change is already a delete.
	ErrTombstoned = errors.New("document is tombstoned")

	// ErrStoreClosed indicates an operation was attempted after Close.
	ErrStoreClosed = errors.New("store is closed")
)
