package fracpack

import (
	"math"
	"reflect"
)

type fieldCodec struct {
	index int
	codec *typeCodec
}

// recordLayout covers structs, objects and tuples. Objects and tuples are
// extensible: a u16 header carries the fixed-region size and trailing absent
// optionals are dropped.
type recordLayout struct {
	fields     []fieldCodec
	extensible bool
}

func (b *codecBuilder) structLayout(t reflect.Type) (layout, error) {
	shape, fields, err := Describe(t)
	if err != nil {
		return nil, err
	}
	if shape == ShapeVariant {
		return b.variantLayout(fields)
	}
	l := &recordLayout{extensible: shape != ShapeStruct}
	for _, f := range fields {
		c, err := b.build(f.Type)
		if err != nil {
			return nil, err
		}
		l.fields = append(l.fields, fieldCodec{index: f.Index, codec: c})
	}
	return l, nil
}

func (l *recordLayout) fixedSize() uint32 {
	var n uint32
	for _, f := range l.fields {
		n += f.codec.FixedSize()
	}
	return n
}

func (l *recordLayout) variable() bool {
	if l.extensible {
		return true
	}
	for _, f := range l.fields {
		if f.codec.IsVariableSize() {
			return true
		}
	}
	return false
}

// present counts the leading fields that must be written.
func (l *recordLayout) present(v reflect.Value) int {
	n := len(l.fields)
	if !l.extensible {
		return n
	}
	for n > 0 {
		f := l.fields[n-1]
		if !f.codec.IsOptional() || !v.Field(f.index).IsNil() {
			break
		}
		n--
	}
	return n
}

func (l *recordLayout) pack(v reflect.Value, w *Writer) error {
	n := l.present(v)
	if l.extensible {
		var fixed uint32
		for _, f := range l.fields[:n] {
			fixed += f.codec.FixedSize()
		}
		if fixed > math.MaxUint16 {
			return ErrSizeOverflow
		}
		w.PutU16(uint16(fixed))
	}
	slots := make([]int, n)
	for i, f := range l.fields[:n] {
		slots[i] = w.Len()
		if err := f.codec.EmbeddedFixedPack(v.Field(f.index), w); err != nil {
			return err
		}
	}
	for i, f := range l.fields[:n] {
		fv := v.Field(f.index)
		if err := f.codec.EmbeddedFixedRepack(fv, slots[i], w); err != nil {
			return err
		}
		if err := f.codec.EmbeddedVariablePack(fv, w); err != nil {
			return err
		}
	}
	return nil
}

func (l *recordLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	var fixed uint32
	if l.extensible {
		size, err := in.U16(pos)
		if err != nil {
			return err
		}
		fixed = uint32(size)
	} else {
		fixed = l.fixedSize()
	}
	fixedPos := *pos
	fixedEnd, ok := add32(fixedPos, fixed)
	if !ok || fixedEnd > in.End {
		return ErrReadPastEnd
	}
	*pos = fixedEnd
	atEnd := false
	for _, f := range l.fields {
		remaining := fixedEnd - fixedPos
		if remaining < f.codec.FixedSize() {
			atEnd = true
		}
		fv := v.Field(f.index)
		if atEnd {
			if remaining != 0 || !f.codec.IsOptional() {
				return ErrBadSize
			}
			fv.Set(reflect.Zero(fv.Type()))
			continue
		}
		if err := f.codec.EmbeddedUnpack(in, &fixedPos, pos, fv); err != nil {
			return err
		}
	}
	if !l.extensible {
		return nil
	}
	return in.Extensions(fixedPos, fixedEnd, *pos)
}

type variantLayout struct {
	alts []fieldCodec
}

func (b *codecBuilder) variantLayout(fields []Field) (layout, error) {
	l := &variantLayout{}
	for _, f := range fields {
		c, err := b.build(f.Type)
		if err != nil {
			return nil, err
		}
		l.alts = append(l.alts, fieldCodec{index: f.Index, codec: c})
	}
	return l, nil
}

func (*variantLayout) fixedSize() uint32 { return 4 }
func (*variantLayout) variable() bool    { return true }

func (l *variantLayout) pack(v reflect.Value, w *Writer) error {
	chosen := -1
	for i, alt := range l.alts {
		if v.Field(alt.index).IsNil() {
			continue
		}
		if chosen >= 0 {
			return ErrInvalidVariant
		}
		chosen = i
	}
	if chosen < 0 {
		return ErrInvalidVariant
	}
	alt := l.alts[chosen]
	w.PutU8(uint8(chosen))
	w.PutU32(0)
	start := w.Len()
	if err := alt.codec.Pack(v.Field(alt.index).Elem(), w); err != nil {
		return err
	}
	return w.PatchSize(start)
}

func (l *variantLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	index, err := in.U8(pos)
	if err != nil {
		return err
	}
	if index&0x80 != 0 || int(index) >= len(l.alts) {
		return ErrBadEnumIndex
	}
	size, err := in.U32(pos)
	if err != nil {
		return err
	}
	alt := l.alts[index]
	elem := reflect.New(alt.codec.Type())
	err = in.Frame(pos, size, func(p *uint32) error {
		return alt.codec.Unpack(in, p, elem.Elem())
	})
	if err != nil {
		return err
	}
	for _, other := range l.alts {
		f := v.Field(other.index)
		f.Set(reflect.Zero(f.Type()))
	}
	v.Field(alt.index).Set(elem)
	return nil
}
