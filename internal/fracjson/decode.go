package fracjson

import (
	"fmt"
	"math"

	"github.com/danmuck/fracpack/internal/compiled"
	"github.com/danmuck/fracpack/internal/fracpack"
)

var emptyList = []byte{0, 0, 0, 0}

// FracToJSON decodes the top-level encoding of id at *pos.
func (c *Converter) FracToJSON(id compiled.TypeID, in *fracpack.Input, pos *uint32) (any, error) {
	id = c.s.Resolve(id)
	t := c.s.Type(id)
	switch t.Kind {
	case compiled.KindInt:
		size := fracpack.IntSize(t.Bits)
		raw, err := in.Uint(pos, size)
		if err != nil {
			return nil, err
		}
		if t.Signed {
			return fracpack.SignExtend(raw, t.Bits, size)
		}
		if err := fracpack.CheckUint(raw, t.Bits); err != nil {
			return nil, err
		}
		return raw, nil
	case compiled.KindFloat:
		switch {
		case t.Exp == 8 && t.Mantissa == 24:
			raw, err := in.U32(pos)
			if err != nil {
				return nil, err
			}
			return floatValue(float64(math.Float32frombits(raw)), 32), nil
		case t.Exp == 11 && t.Mantissa == 53:
			raw, err := in.U64(pos)
			if err != nil {
				return nil, err
			}
			return floatValue(math.Float64frombits(raw), 64), nil
		}
		return nil, fmt.Errorf("%w: exp=%d mantissa=%d", ErrUnsupportedFloat, t.Exp, t.Mantissa)
	case compiled.KindStruct, compiled.KindObject, compiled.KindTuple:
		return c.decodeRecord(t, in, pos)
	case compiled.KindArray:
		return c.decodeSequence(t.Elem, t.Len, in, pos)
	case compiled.KindList:
		fixed, err := in.U32(pos)
		if err != nil {
			return nil, err
		}
		size := c.s.Type(c.s.Resolve(t.Elem)).FixedSize()
		if size == 0 || fixed%size != 0 {
			return nil, fracpack.ErrBadSize
		}
		return c.decodeSequence(t.Elem, fixed/size, in, pos)
	case compiled.KindOption:
		fixedPos := *pos
		heap, ok := addU32(fixedPos, 4)
		if !ok {
			return nil, fracpack.ErrReadPastEnd
		}
		*pos = heap
		return c.embeddedOption(t, in, &fixedPos, pos)
	case compiled.KindVariant:
		index, err := in.U8(pos)
		if err != nil {
			return nil, err
		}
		if int(index) >= len(t.Children) || index >= 128 {
			return nil, fracpack.ErrBadEnumIndex
		}
		size, err := in.U32(pos)
		if err != nil {
			return nil, err
		}
		alt := t.Children[index]
		var value any
		err = in.Frame(pos, size, func(p *uint32) error {
			var err error
			value, err = c.FracToJSON(alt.Type, in, p)
			return err
		})
		if err != nil {
			return nil, err
		}
		return Object{{Key: alt.Name, Value: value}}, nil
	case compiled.KindFracPack:
		size, err := in.U32(pos)
		if err != nil {
			return nil, err
		}
		var value any
		err = in.Frame(pos, size, func(p *uint32) error {
			var err error
			value, err = c.FracToJSON(t.Elem, in, p)
			return err
		})
		return value, err
	case compiled.KindCustom:
		return c.s.Custom().Handler(t.Handler).FracToJSON(c, t.Elem, in, pos)
	}
	return nil, fmt.Errorf("%w: node %d is %s", ErrUnknownType, id, t.Kind)
}

// embedded decodes id stored in an enclosing fixed region at *fixedPos,
// with out-of-line data read from the heap cursor.
func (c *Converter) embedded(id compiled.TypeID, in *fracpack.Input, fixedPos, heapPos *uint32) (any, error) {
	id = c.s.Resolve(id)
	t := c.s.Type(id)
	if t.Kind == compiled.KindOption {
		return c.embeddedOption(t, in, fixedPos, heapPos)
	}
	if !t.IsVariableSize() {
		return c.FracToJSON(id, in, fixedPos)
	}
	return c.embeddedVariable(id, in, fixedPos, heapPos)
}

func (c *Converter) embeddedOption(t *compiled.Type, in *fracpack.Input, fixedPos, heapPos *uint32) (any, error) {
	slot := *fixedPos
	target, offset, err := in.Pointer(fixedPos)
	if err != nil {
		return nil, err
	}
	if offset == 1 {
		return nil, nil
	}
	inner := c.s.Type(c.s.Resolve(t.Elem))
	if inner.IsVariableSize() && !inner.IsOptional() {
		*fixedPos = slot
		return c.embeddedVariable(t.Elem, in, fixedPos, heapPos)
	}
	if offset == 0 {
		return nil, fracpack.ErrBadOffset
	}
	if err := in.CheckHeap(target, heapPos); err != nil {
		return nil, err
	}
	return c.FracToJSON(t.Elem, in, heapPos)
}

func (c *Converter) embeddedVariable(id compiled.TypeID, in *fracpack.Input, fixedPos, heapPos *uint32) (any, error) {
	target, offset, err := in.Pointer(fixedPos)
	if err != nil {
		return nil, err
	}
	switch offset {
	case 0:
		if !c.isContainer(id) {
			return nil, fracpack.ErrBadOffset
		}
		empty := &fracpack.Input{Src: emptyList, End: uint32(len(emptyList)), KnownEnd: true}
		var p uint32
		return c.FracToJSON(id, empty, &p)
	case 1:
		return nil, fracpack.ErrBadOffset
	}
	if err := in.CheckHeap(target, heapPos); err != nil {
		return nil, err
	}
	if c.isContainer(id) {
		peek := *heapPos
		n, err := in.U32(&peek)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fracpack.ErrBadEmptyEncoding
		}
	}
	return c.FracToJSON(id, in, heapPos)
}

// decodeSequence decodes n elements laid out as a fixed region followed by
// their heap, as used by arrays and lists.
func (c *Converter) decodeSequence(elem compiled.TypeID, n uint32, in *fracpack.Input, pos *uint32) (any, error) {
	size := c.s.Type(c.s.Resolve(elem)).FixedSize()
	fixed := uint64(size) * uint64(n)
	if uint64(*pos)+fixed > uint64(in.End) {
		return nil, fracpack.ErrReadPastEnd
	}
	fixedPos := *pos
	*pos += uint32(fixed)
	out := make([]any, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := c.embedded(elem, in, &fixedPos, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Converter) decodeRecord(t *compiled.Type, in *fracpack.Input, pos *uint32) (any, error) {
	extensible := t.IsExtensible()
	var fixed uint32
	if extensible {
		n, err := in.U16(pos)
		if err != nil {
			return nil, err
		}
		fixed = uint32(n)
	} else {
		fixed = t.Fixed
	}
	fixedPos := *pos
	fixedEnd, ok := addU32(fixedPos, fixed)
	if !ok || fixedEnd > in.End {
		return nil, fracpack.ErrReadPastEnd
	}
	*pos = fixedEnd

	var obj Object
	var tuple []any
	if t.Kind == compiled.KindTuple {
		tuple = make([]any, 0, len(t.Children))
	} else {
		obj = make(Object, 0, len(t.Children))
	}
	atEnd := false
	for _, m := range t.Children {
		ct := c.s.Type(c.s.Resolve(m.Type))
		var value any
		remaining := fixedEnd - fixedPos
		if extensible && remaining < ct.FixedSize() {
			atEnd = true
		}
		if atEnd {
			if remaining != 0 || !ct.IsOptional() {
				return nil, fracpack.ErrBadSize
			}
		} else {
			v, err := c.embedded(m.Type, in, &fixedPos, pos)
			if err != nil {
				return nil, err
			}
			value = v
		}
		if tuple != nil {
			tuple = append(tuple, value)
		} else {
			obj = append(obj, Member{Key: m.Name, Value: value})
		}
	}
	if extensible {
		if err := in.Extensions(fixedPos, fixedEnd, *pos); err != nil {
			return nil, err
		}
	}
	if tuple != nil {
		return tuple, nil
	}
	return obj, nil
}

func addU32(a, b uint32) (uint32, bool) {
	s := a + b
	return s, s >= a
}
