package fracpack

import (
	"fmt"
	"reflect"
)

// Pack encodes v as a top-level fracpack document.
func Pack(v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, &Error{Op: "pack", Type: "nil", Err: ErrUnsupportedType}
	}
	c, err := codecOf(rv.Type())
	if err != nil {
		return nil, &Error{Op: "pack", Type: rv.Type().String(), Err: err}
	}
	w := NewWriter(64)
	if err := c.Pack(rv, w); err != nil {
		return nil, &Error{Op: "pack", Type: rv.Type().String(), Err: err}
	}
	return w.Bytes(), nil
}

// Unpack decodes a top-level document into a T. Unknown extension data is
// tolerated; use VerifyStrict to reject it.
func Unpack[T any](data []byte) (T, error) {
	var out T
	err := UnpackInto(data, &out)
	return out, err
}

// UnpackInto decodes data into the value ptr points to.
func UnpackInto(data []byte, ptr any) error {
	_, err := unpackInto(data, ptr, "unpack")
	return err
}

// Verify checks that data is a valid encoding of T.
func Verify[T any](data []byte) error {
	var scratch T
	_, err := unpackInto(data, &scratch, "verify")
	return err
}

// VerifyStrict is Verify that also rejects unknown fields and trailing
// data inside frames.
func VerifyStrict[T any](data []byte) error {
	var scratch T
	unknown, err := unpackInto(data, &scratch, "verify")
	if err != nil {
		return err
	}
	if unknown {
		return &Error{Op: "verify", Type: reflect.TypeOf(scratch).String(), Err: ErrHasUnknown}
	}
	return nil
}

func unpackInto(data []byte, ptr any, op string) (bool, error) {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false, &Error{Op: op, Type: fmt.Sprintf("%T", ptr), Err: ErrUnsupportedType}
	}
	t := rv.Elem().Type()
	c, err := codecOf(t)
	if err != nil {
		return false, &Error{Op: op, Type: t.String(), Err: err}
	}
	in, err := NewInput(data)
	if err != nil {
		return false, &Error{Op: op, Type: t.String(), Err: err}
	}
	var pos uint32
	if err := c.Unpack(in, &pos, rv.Elem()); err != nil {
		return false, &Error{Op: op, Type: t.String(), Err: err}
	}
	if err := in.Finish(pos); err != nil {
		return false, &Error{Op: op, Type: t.String(), Err: err}
	}
	return in.HasUnknown, nil
}
