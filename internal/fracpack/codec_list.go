package fracpack

import (
	"reflect"
)

type listLayout struct {
	elem *typeCodec
}

func (*listLayout) fixedSize() uint32 { return 4 }
func (*listLayout) variable() bool    { return true }

func (*listLayout) isEmpty(v reflect.Value) bool { return v.Len() == 0 }

func (l *listLayout) setEmpty(v reflect.Value) {
	v.Set(reflect.MakeSlice(v.Type(), 0, 0))
}

func (l *listLayout) pack(v reflect.Value, w *Writer) error {
	n := uint32(v.Len())
	if int(n) != v.Len() {
		return ErrSizeOverflow
	}
	fixed, ok := mul32(n, l.elem.FixedSize())
	if !ok {
		return ErrSizeOverflow
	}
	w.PutU32(fixed)
	return packSequence(l.elem, v, w)
}

func (l *listLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	fixed, err := in.U32(pos)
	if err != nil {
		return err
	}
	size := l.elem.FixedSize()
	if size == 0 || fixed%size != 0 {
		return ErrBadSize
	}
	n := fixed / size
	fixedPos := *pos
	heapPos, ok := add32(fixedPos, fixed)
	if !ok || heapPos > in.End {
		return ErrReadPastEnd
	}
	*pos = heapPos
	out := reflect.MakeSlice(v.Type(), int(n), int(n))
	for i := 0; i < int(n); i++ {
		if err := l.elem.EmbeddedUnpack(in, &fixedPos, pos, out.Index(i)); err != nil {
			return err
		}
	}
	v.Set(out)
	return nil
}

type arrayLayout struct {
	elem *typeCodec
	n    uint32
}

func (l *arrayLayout) fixedSize() uint32 {
	return l.elem.FixedSize() * l.n
}

func (l *arrayLayout) variable() bool {
	return l.elem.IsVariableSize()
}

func (l *arrayLayout) pack(v reflect.Value, w *Writer) error {
	return packSequence(l.elem, v, w)
}

func (l *arrayLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	fixed, ok := mul32(l.n, l.elem.FixedSize())
	if !ok {
		return ErrSizeOverflow
	}
	fixedPos := *pos
	heapPos, ok := add32(fixedPos, fixed)
	if !ok || heapPos > in.End {
		return ErrReadPastEnd
	}
	*pos = heapPos
	for i := 0; i < int(l.n); i++ {
		if err := l.elem.EmbeddedUnpack(in, &fixedPos, pos, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// packSequence writes the fixed slots of every element, then their heap data.
func packSequence(elem *typeCodec, v reflect.Value, w *Writer) error {
	n := v.Len()
	if !elem.IsVariableSize() {
		for i := 0; i < n; i++ {
			if err := elem.Pack(v.Index(i), w); err != nil {
				return err
			}
		}
		return nil
	}
	start := w.Len()
	for i := 0; i < n; i++ {
		if err := elem.EmbeddedFixedPack(v.Index(i), w); err != nil {
			return err
		}
	}
	size := int(elem.FixedSize())
	for i := 0; i < n; i++ {
		item := v.Index(i)
		if err := elem.EmbeddedFixedRepack(item, start+i*size, w); err != nil {
			return err
		}
		if err := elem.EmbeddedVariablePack(item, w); err != nil {
			return err
		}
	}
	return nil
}

type optionLayout struct {
	inner *typeCodec
}

func (*optionLayout) fixedSize() uint32 { return 4 }
func (*optionLayout) variable() bool    { return true }

// sharesSlot reports whether a present value reuses the inner type's offset
// slot. Fixed-size and nested optional payloads always live in the heap.
func (l *optionLayout) sharesSlot() bool {
	return l.inner.IsVariableSize() && !l.inner.IsOptional()
}

func (l *optionLayout) pack(v reflect.Value, w *Writer) error {
	fixedPos := w.Len()
	if err := l.embeddedFixedPack(v, w); err != nil {
		return err
	}
	if err := l.embeddedFixedRepack(v, fixedPos, w); err != nil {
		return err
	}
	return l.embeddedVariablePack(v, w)
}

func (l *optionLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	fixedPos := *pos
	heapPos, ok := add32(fixedPos, 4)
	if !ok {
		return ErrReadPastEnd
	}
	*pos = heapPos
	return l.embeddedUnpack(in, &fixedPos, pos, v)
}

func (l *optionLayout) embeddedFixedPack(v reflect.Value, w *Writer) error {
	if v.IsNil() || !l.sharesSlot() {
		w.PutU32(1)
		return nil
	}
	return l.inner.EmbeddedFixedPack(v.Elem(), w)
}

func (l *optionLayout) embeddedFixedRepack(v reflect.Value, fixedPos int, w *Writer) error {
	if v.IsNil() {
		return nil
	}
	if !l.sharesSlot() {
		return w.PatchOffset(fixedPos)
	}
	return l.inner.EmbeddedFixedRepack(v.Elem(), fixedPos, w)
}

func (l *optionLayout) embeddedVariablePack(v reflect.Value, w *Writer) error {
	if v.IsNil() {
		return nil
	}
	if l.inner.IsEmptyContainer(v.Elem()) {
		return nil
	}
	return l.inner.Pack(v.Elem(), w)
}

func (l *optionLayout) embeddedUnpack(in *Input, fixedPos, heapPos *uint32, v reflect.Value) error {
	slot := *fixedPos
	target, offset, err := in.Pointer(fixedPos)
	if err != nil {
		return err
	}
	if offset == 1 {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	elem := reflect.New(l.inner.Type())
	if l.sharesSlot() {
		*fixedPos = slot
		if err := l.inner.EmbeddedUnpack(in, fixedPos, heapPos, elem.Elem()); err != nil {
			return err
		}
	} else {
		if offset == 0 {
			return ErrBadOffset
		}
		if err := in.CheckHeap(target, heapPos); err != nil {
			return err
		}
		if err := l.inner.Unpack(in, heapPos, elem.Elem()); err != nil {
			return err
		}
	}
	v.Set(elem)
	return nil
}

// nested marks Nested[T] instantiations.
type nested interface {
	fracpackNested()
}

var nestedIface = reflect.TypeOf((*nested)(nil)).Elem()

// Nested holds a value that is packed as an independent, length-framed
// document inside its parent.
type Nested[T any] struct {
	Value T
}

func (Nested[T]) fracpackNested() {}

// IsNested reports whether t is an instantiation of Nested.
func IsNested(t reflect.Type) bool {
	return t.Implements(nestedIface)
}

type nestedLayout struct {
	inner *typeCodec
}

func (*nestedLayout) fixedSize() uint32 { return 4 }
func (*nestedLayout) variable() bool    { return true }

func (l *nestedLayout) pack(v reflect.Value, w *Writer) error {
	w.PutU32(0)
	start := w.Len()
	if err := l.inner.Pack(v.Field(0), w); err != nil {
		return err
	}
	return w.PatchSize(start)
}

func (l *nestedLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	size, err := in.U32(pos)
	if err != nil {
		return err
	}
	return in.Frame(pos, size, func(p *uint32) error {
		return l.inner.Unpack(in, p, v.Field(0))
	})
}
