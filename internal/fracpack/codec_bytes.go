package fracpack

import (
	"math"
	"reflect"
	"unicode/utf8"
)

// Hex is a byte string rendered as hexadecimal text in JSON.
type Hex []byte

type stringLayout struct{}

func (stringLayout) fixedSize() uint32 { return 4 }
func (stringLayout) variable() bool    { return true }

func (stringLayout) isEmpty(v reflect.Value) bool { return v.Len() == 0 }
func (stringLayout) setEmpty(v reflect.Value)     { v.SetString("") }

func (stringLayout) pack(v reflect.Value, w *Writer) error {
	s := v.String()
	if !utf8.ValidString(s) {
		return ErrBadUTF8
	}
	if uint64(len(s)) > math.MaxUint32 {
		return ErrSizeOverflow
	}
	w.PutU32(uint32(len(s)))
	w.Append([]byte(s))
	return nil
}

func (stringLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	n, err := in.U32(pos)
	if err != nil {
		return err
	}
	b, err := in.Bytes(pos, n)
	if err != nil {
		return err
	}
	if !utf8.Valid(b) {
		return ErrBadUTF8
	}
	v.SetString(string(b))
	return nil
}

type bytesLayout struct{}

func (bytesLayout) fixedSize() uint32 { return 4 }
func (bytesLayout) variable() bool    { return true }

func (bytesLayout) isEmpty(v reflect.Value) bool { return v.Len() == 0 }
func (bytesLayout) setEmpty(v reflect.Value)     { v.SetBytes([]byte{}) }

func (bytesLayout) pack(v reflect.Value, w *Writer) error {
	b := v.Bytes()
	if uint64(len(b)) > math.MaxUint32 {
		return ErrSizeOverflow
	}
	w.PutU32(uint32(len(b)))
	w.Append(b)
	return nil
}

func (bytesLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	n, err := in.U32(pos)
	if err != nil {
		return err
	}
	b, err := in.Bytes(pos, n)
	if err != nil {
		return err
	}
	out := make([]byte, len(b))
	copy(out, b)
	v.SetBytes(out)
	return nil
}
