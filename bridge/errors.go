package bridge

import (
	"errors"
	"fmt"

	"github.com/iron-fish/ironfish-bridge/entity"
)

var (
	// ErrRequestNotFound is a lookup failure: no request has the given id or
	// transaction hash.
	ErrRequestNotFound = errors.New("bridge request not found")
	// ErrInvalidTransition means the stored status does not allow the
	// requested move, usually because another worker got there first.
	ErrInvalidTransition = errors.New("invalid bridge request transition")
)

// ValidationError is a business-rule failure for an existing or missing
// request. It carries the typed reason written to the failure ledger.
type ValidationError struct {
	Reason entity.FailureReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}
