package fracpack

import (
	"errors"
	"fmt"
)

var (
	ErrReadPastEnd      = errors.New("fracpack: read past end")
	ErrBadOffset        = errors.New("fracpack: bad offset")
	ErrBadSize          = errors.New("fracpack: bad size")
	ErrBadEmptyEncoding = errors.New("fracpack: empty container must use offset 0")
	ErrBadUTF8          = errors.New("fracpack: invalid utf-8")
	ErrBadEnumIndex     = errors.New("fracpack: bad variant index")
	ErrBadScalar        = errors.New("fracpack: bad scalar value")
	ErrExtraData        = errors.New("fracpack: extra data after value")
	ErrHasUnknown       = errors.New("fracpack: unknown fields present")
	ErrUnsupportedType  = errors.New("fracpack: unsupported type")
	ErrSizeOverflow     = errors.New("fracpack: size overflow")
	ErrInvalidVariant   = errors.New("fracpack: variant must hold exactly one alternative")
)

// Error records the operation and Go type that failed.
type Error struct {
	Op   string
	Type string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Type, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
