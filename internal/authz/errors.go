package authz

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that the referenced role or user does not exist.
var ErrNotFound = errors.New("authz: not found")

// ValidationError rejects a mutation payload referencing entities that do
// not exist or are inactive. The whole batch is refused; nothing is written.
type ValidationError struct {
	Entity string
	IDs    []int64
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.IDs) > 0 {
		return fmt.Sprintf("authz: invalid %s %v: %s", e.Entity, e.IDs, e.Reason)
	}
	return fmt.Sprintf("authz: invalid %s: %s", e.Entity, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
