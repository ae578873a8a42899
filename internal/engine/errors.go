package engine

import (
	"errors"
	"fmt"

	"github.com/nodalsync/engine/internal/model"
	"github.com/nodalsync/engine/pkg/protocol"
)

// Error is the boundary error type: every public Engine method that can
// fail returns one, carrying the stable protocol.ResultCode alongside
// the underlying cause.
type Error struct {
	Code protocol.ResultCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code protocol.ResultCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

// mapStoreErr classifies an error returned by internal/store into the
// engine's stable result code, per §7's taxonomy.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, model.ErrInvalidBody), errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrTombstoned):
		return newError(protocol.InvalidInput, err)
	case errors.Is(err, model.ErrStoreClosed):
		return newError(protocol.Database, err)
	default:
		return newError(protocol.Database, err)
	}
}
