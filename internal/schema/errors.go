package schema

import "errors"

var (
	ErrUnknownType     = errors.New("schema: unknown type")
	ErrAliasCycle      = errors.New("schema: alias cycle")
	ErrInvalidSchema   = errors.New("schema: invalid schema document")
	ErrDuplicateName   = errors.New("schema: duplicate name")
	ErrUnsupportedType = errors.New("schema: unsupported host type")
	ErrRecursiveInline = errors.New("schema: recursive type has no name")
)
