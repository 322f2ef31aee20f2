package fracjson

import (
	"fmt"
	"math"

	"github.com/danmuck/fracpack/internal/compiled"
	"github.com/danmuck/fracpack/internal/fracpack"
)

// JSONToFrac appends the top-level encoding of v as id.
func (c *Converter) JSONToFrac(id compiled.TypeID, v any, w *fracpack.Writer) error {
	id = c.s.Resolve(id)
	t := c.s.Type(id)
	switch t.Kind {
	case compiled.KindInt:
		size := fracpack.IntSize(t.Bits)
		if t.Signed {
			n, err := toInt(v, t.Bits)
			if err != nil {
				return err
			}
			fracpack.PutUint(w, uint64(n), size)
			return nil
		}
		n, err := toUint(v, t.Bits)
		if err != nil {
			return err
		}
		fracpack.PutUint(w, n, size)
		return nil
	case compiled.KindFloat:
		switch {
		case t.Exp == 8 && t.Mantissa == 24:
			f, err := toFloat(v, 32)
			if err != nil {
				return err
			}
			w.PutU32(math.Float32bits(float32(f)))
			return nil
		case t.Exp == 11 && t.Mantissa == 53:
			f, err := toFloat(v, 64)
			if err != nil {
				return err
			}
			w.PutU64(math.Float64bits(f))
			return nil
		}
		return fmt.Errorf("%w: exp=%d mantissa=%d", ErrUnsupportedFloat, t.Exp, t.Mantissa)
	case compiled.KindStruct, compiled.KindObject, compiled.KindTuple:
		return c.encodeRecord(t, v, w)
	case compiled.KindArray:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%w: expected array, got %T", ErrTypeMismatch, v)
		}
		if uint32(len(items)) != t.Len {
			return fmt.Errorf("%w: array has %d elements, want %d", ErrTypeMismatch, len(items), t.Len)
		}
		return c.encodeSequence(t.Elem, items, w)
	case compiled.KindList:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%w: expected array, got %T", ErrTypeMismatch, v)
		}
		size := c.s.Type(c.s.Resolve(t.Elem)).FixedSize()
		fixed := uint64(size) * uint64(len(items))
		if fixed > math.MaxUint32 {
			return fracpack.ErrSizeOverflow
		}
		w.PutU32(uint32(fixed))
		return c.encodeSequence(t.Elem, items, w)
	case compiled.KindOption:
		fixedPos := w.Len()
		if err := c.fixedPass(id, v, w); err != nil {
			return err
		}
		return c.heapPass(id, v, fixedPos, w)
	case compiled.KindVariant:
		obj, ok := asObject(v)
		if !ok || len(obj) != 1 {
			return fmt.Errorf("%w: variant needs an object with one member", ErrTypeMismatch)
		}
		for i, alt := range t.Children {
			if alt.Name != obj[0].Key {
				continue
			}
			w.PutU8(uint8(i))
			w.PutU32(0)
			start := w.Len()
			if err := c.JSONToFrac(alt.Type, obj[0].Value, w); err != nil {
				return err
			}
			return w.PatchSize(start)
		}
		return fmt.Errorf("%w: %q", ErrUnknownAlternative, obj[0].Key)
	case compiled.KindFracPack:
		w.PutU32(0)
		start := w.Len()
		if err := c.JSONToFrac(t.Elem, v, w); err != nil {
			return err
		}
		return w.PatchSize(start)
	case compiled.KindCustom:
		return c.s.Custom().Handler(t.Handler).JSONToFrac(c, t.Elem, v, w)
	}
	return fmt.Errorf("%w: node %d is %s", ErrUnknownType, id, t.Kind)
}

// fixedPass writes the part of v that lives in the enclosing fixed region:
// the value itself for fixed-size types, otherwise a slot to be patched.
func (c *Converter) fixedPass(id compiled.TypeID, v any, w *fracpack.Writer) error {
	id = c.s.Resolve(id)
	t := c.s.Type(id)
	if t.Kind == compiled.KindOption {
		if v == nil {
			w.PutU32(1)
			return nil
		}
		if c.sharesSlot(t) {
			return c.fixedPass(t.Elem, v, w)
		}
		w.PutU32(1)
		return nil
	}
	if !t.IsVariableSize() {
		return c.JSONToFrac(id, v, w)
	}
	w.PutU32(0)
	return nil
}

// heapPass writes the out-of-line part of v and points its slot at it.
// Empty containers keep offset 0.
func (c *Converter) heapPass(id compiled.TypeID, v any, fixedPos int, w *fracpack.Writer) error {
	id = c.s.Resolve(id)
	t := c.s.Type(id)
	if t.Kind == compiled.KindOption {
		if v == nil {
			return nil
		}
		if c.sharesSlot(t) {
			return c.heapPass(t.Elem, v, fixedPos, w)
		}
		if err := w.PatchOffset(fixedPos); err != nil {
			return err
		}
		return c.JSONToFrac(t.Elem, v, w)
	}
	if !t.IsVariableSize() {
		return nil
	}
	empty, err := c.IsEmptyContainer(id, v)
	if err != nil {
		return err
	}
	if empty {
		return nil
	}
	if err := w.PatchOffset(fixedPos); err != nil {
		return err
	}
	return c.JSONToFrac(id, v, w)
}

// sharesSlot reports whether an option's payload owns the option's slot,
// which holds for variable-size payloads that are not options themselves.
func (c *Converter) sharesSlot(opt *compiled.Type) bool {
	inner := c.s.Type(c.s.Resolve(opt.Elem))
	return inner.IsVariableSize() && !inner.IsOptional()
}

func (c *Converter) encodeSequence(elem compiled.TypeID, items []any, w *fracpack.Writer) error {
	if !c.s.Type(c.s.Resolve(elem)).IsVariableSize() {
		for _, item := range items {
			if err := c.JSONToFrac(elem, item, w); err != nil {
				return err
			}
		}
		return nil
	}
	slots := make([]int, len(items))
	for i, item := range items {
		slots[i] = w.Len()
		if err := c.fixedPass(elem, item, w); err != nil {
			return err
		}
	}
	for i, item := range items {
		if err := c.heapPass(elem, item, slots[i], w); err != nil {
			return err
		}
	}
	return nil
}

func (c *Converter) encodeRecord(t *compiled.Type, v any, w *fracpack.Writer) error {
	values, err := c.recordValues(t, v)
	if err != nil {
		return err
	}
	extensible := t.IsExtensible()
	n := len(t.Children)
	if extensible {
		for n > 0 && values[n-1] == nil && c.s.Type(c.s.Resolve(t.Children[n-1].Type)).IsOptional() {
			n--
		}
	}
	hdr := w.Len()
	if extensible {
		w.PutU16(0)
	}
	slots := make([]int, n)
	for i := 0; i < n; i++ {
		slots[i] = w.Len()
		if err := c.fixedPass(t.Children[i].Type, values[i], w); err != nil {
			return fieldError(t, i, err)
		}
	}
	if extensible {
		fixed := w.Len() - hdr - 2
		if fixed > math.MaxUint16 {
			return ErrTooLarge
		}
		w.Rewrite16(hdr, uint16(fixed))
	}
	for i := 0; i < n; i++ {
		if err := c.heapPass(t.Children[i].Type, values[i], slots[i], w); err != nil {
			return fieldError(t, i, err)
		}
	}
	return nil
}

// recordValues lines up the JSON members with the record's members. Objects
// match by name, tuples by position; absent members read as null and must
// be optional.
func (c *Converter) recordValues(t *compiled.Type, v any) ([]any, error) {
	values := make([]any, len(t.Children))
	if t.Kind == compiled.KindTuple {
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected array, got %T", ErrTypeMismatch, v)
		}
		if len(items) > len(values) {
			return nil, fmt.Errorf("%w: tuple has %d elements, want at most %d", ErrTypeMismatch, len(items), len(values))
		}
		copy(values, items)
	} else {
		obj, ok := asObject(v)
		if !ok {
			return nil, fmt.Errorf("%w: expected object, got %T", ErrTypeMismatch, v)
		}
	next:
		for _, m := range obj {
			for i, child := range t.Children {
				if child.Name == m.Key {
					values[i] = m.Value
					continue next
				}
			}
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, m.Key)
		}
	}
	for i, child := range t.Children {
		if values[i] == nil && !c.s.Type(c.s.Resolve(child.Type)).IsOptional() {
			return nil, fieldError(t, i, ErrMissingField)
		}
	}
	return values, nil
}

func fieldError(t *compiled.Type, i int, err error) error {
	name := t.Children[i].Name
	if name == "" {
		return fmt.Errorf("element %d: %w", i, err)
	}
	return fmt.Errorf("field %s: %w", name, err)
}
