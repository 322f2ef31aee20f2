package fracpack

import (
	"math"
	"reflect"
	"time"
)

type boolLayout struct{}

func (boolLayout) fixedSize() uint32 { return 1 }
func (boolLayout) variable() bool    { return false }

func (boolLayout) pack(v reflect.Value, w *Writer) error {
	if v.Bool() {
		w.PutU8(1)
	} else {
		w.PutU8(0)
	}
	return nil
}

func (boolLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	b, err := in.U8(pos)
	if err != nil {
		return err
	}
	if b > 1 {
		return ErrBadScalar
	}
	v.SetBool(b == 1)
	return nil
}

type intLayout struct {
	size   uint32
	signed bool
}

func (l intLayout) fixedSize() uint32 { return l.size }
func (intLayout) variable() bool      { return false }

func (l intLayout) pack(v reflect.Value, w *Writer) error {
	if l.signed {
		PutUint(w, uint64(v.Int()), l.size)
	} else {
		PutUint(w, v.Uint(), l.size)
	}
	return nil
}

func (l intLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	raw, err := in.Uint(pos, l.size)
	if err != nil {
		return err
	}
	if l.signed {
		n, err := SignExtend(raw, l.size*8, l.size)
		if err != nil {
			return err
		}
		v.SetInt(n)
		return nil
	}
	v.SetUint(raw)
	return nil
}

type float32Layout struct{}

func (float32Layout) fixedSize() uint32 { return 4 }
func (float32Layout) variable() bool    { return false }

func (float32Layout) pack(v reflect.Value, w *Writer) error {
	w.PutU32(math.Float32bits(float32(v.Float())))
	return nil
}

func (float32Layout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	bits, err := in.U32(pos)
	if err != nil {
		return err
	}
	v.SetFloat(float64(math.Float32frombits(bits)))
	return nil
}

type float64Layout struct{}

func (float64Layout) fixedSize() uint32 { return 8 }
func (float64Layout) variable() bool    { return false }

func (float64Layout) pack(v reflect.Value, w *Writer) error {
	w.PutU64(math.Float64bits(v.Float()))
	return nil
}

func (float64Layout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	bits, err := in.U64(pos)
	if err != nil {
		return err
	}
	v.SetFloat(math.Float64frombits(bits))
	return nil
}

// timeLayout stores microseconds since the Unix epoch.
type timeLayout struct{}

func (timeLayout) fixedSize() uint32 { return 8 }
func (timeLayout) variable() bool    { return false }

func (timeLayout) pack(v reflect.Value, w *Writer) error {
	t := v.Interface().(time.Time)
	w.PutU64(uint64(t.UnixMicro()))
	return nil
}

func (timeLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	raw, err := in.U64(pos)
	if err != nil {
		return err
	}
	v.Set(reflect.ValueOf(time.UnixMicro(int64(raw)).UTC()))
	return nil
}
