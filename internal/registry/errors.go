package registry

import (
	"errors"
	"fmt"

	"github.com/danmuck/fracpack/internal/compat"
)

var (
	ErrIncompatible = errors.New("registry: incompatible schema")
	ErrNotFound     = errors.New("registry: schema not found")
	ErrInvalidName  = errors.New("registry: invalid schema name")
	ErrSnapshot     = errors.New("registry: bad snapshot")
)

// IncompatibleError reports a candidate that differs from the latest stored
// version in ways the registry policy does not allow.
type IncompatibleError struct {
	Name    string
	Version int
	Diff    compat.Difference
	Allowed compat.Difference
	Reason  string
}

func (e *IncompatibleError) Error() string {
	msg := fmt.Sprintf("registry: %s is incompatible with version %d (difference %s, allowed %s)",
		e.Name, e.Version, e.Diff, e.Allowed)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *IncompatibleError) Unwrap() error {
	return ErrIncompatible
}
