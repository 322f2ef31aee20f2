package fracjson

import "errors"

var (
	ErrTypeMismatch       = errors.New("fracjson: value does not match type")
	ErrMissingField       = errors.New("fracjson: missing required field")
	ErrUnknownField       = errors.New("fracjson: unknown field")
	ErrOutOfRange         = errors.New("fracjson: number out of range")
	ErrUnknownAlternative = errors.New("fracjson: unknown variant alternative")
	ErrUnsupportedFloat   = errors.New("fracjson: unsupported float format")
	ErrUnknownType        = errors.New("fracjson: unknown type")
	ErrTooLarge           = errors.New("fracjson: fixed region too large")
)
