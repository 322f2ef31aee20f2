package fracpack

import (
	"fmt"
	"reflect"
	"sync"
	"time"
)

// Packable is the per-type encoding contract.
//
// A type is fixed-size when its encoding always occupies FixedSize bytes and
// is stored inline in an enclosing fixed region. Variable-size types store a
// 4-byte offset slot inline and their data in the heap. Embedded encoding is
// split into three passes so an enclosing record can write every fixed slot
// before any heap data: EmbeddedFixedPack writes the slot, EmbeddedFixedRepack
// backpatches it once the heap position is known and EmbeddedVariablePack
// appends the heap data.
type Packable interface {
	Type() reflect.Type
	FixedSize() uint32
	IsVariableSize() bool
	IsOptional() bool
	IsEmptyContainer(v reflect.Value) bool

	Pack(v reflect.Value, w *Writer) error
	EmbeddedFixedPack(v reflect.Value, w *Writer) error
	EmbeddedFixedRepack(v reflect.Value, fixedPos int, w *Writer) error
	EmbeddedVariablePack(v reflect.Value, w *Writer) error

	Unpack(in *Input, pos *uint32, v reflect.Value) error
	EmbeddedUnpack(in *Input, fixedPos, heapPos *uint32, v reflect.Value) error
}

// layout is the shape-specific part of a codec. The embedded passes are
// derived from it by typeCodec.
type layout interface {
	// fixedSize is the inline size of a fixed-size value.
	fixedSize() uint32
	variable() bool
	pack(v reflect.Value, w *Writer) error
	unpack(in *Input, pos *uint32, v reflect.Value) error
}

// containerLayout is implemented by shapes with a canonical empty value that
// is encoded as offset 0.
type containerLayout interface {
	isEmpty(v reflect.Value) bool
	setEmpty(v reflect.Value)
}

// embeddedLayout overrides the derived embedded passes (optionals).
type embeddedLayout interface {
	embeddedFixedPack(v reflect.Value, w *Writer) error
	embeddedFixedRepack(v reflect.Value, fixedPos int, w *Writer) error
	embeddedVariablePack(v reflect.Value, w *Writer) error
	embeddedUnpack(in *Input, fixedPos, heapPos *uint32, v reflect.Value) error
}

type typeCodec struct {
	t reflect.Type
	l layout
}

var _ Packable = (*typeCodec)(nil)

func (c *typeCodec) Type() reflect.Type {
	return c.t
}

func (c *typeCodec) FixedSize() uint32 {
	if c.l.variable() {
		return 4
	}
	return c.l.fixedSize()
}

func (c *typeCodec) IsVariableSize() bool {
	return c.l.variable()
}

func (c *typeCodec) IsOptional() bool {
	_, ok := c.l.(*optionLayout)
	return ok
}

func (c *typeCodec) IsEmptyContainer(v reflect.Value) bool {
	if cl, ok := c.l.(containerLayout); ok {
		return cl.isEmpty(v)
	}
	return false
}

func (c *typeCodec) Pack(v reflect.Value, w *Writer) error {
	return c.l.pack(v, w)
}

func (c *typeCodec) EmbeddedFixedPack(v reflect.Value, w *Writer) error {
	if el, ok := c.l.(embeddedLayout); ok {
		return el.embeddedFixedPack(v, w)
	}
	if !c.l.variable() {
		return c.l.pack(v, w)
	}
	w.PutU32(0)
	return nil
}

func (c *typeCodec) EmbeddedFixedRepack(v reflect.Value, fixedPos int, w *Writer) error {
	if el, ok := c.l.(embeddedLayout); ok {
		return el.embeddedFixedRepack(v, fixedPos, w)
	}
	if !c.l.variable() || c.IsEmptyContainer(v) {
		return nil
	}
	return w.PatchOffset(fixedPos)
}

func (c *typeCodec) EmbeddedVariablePack(v reflect.Value, w *Writer) error {
	if el, ok := c.l.(embeddedLayout); ok {
		return el.embeddedVariablePack(v, w)
	}
	if !c.l.variable() || c.IsEmptyContainer(v) {
		return nil
	}
	return c.l.pack(v, w)
}

func (c *typeCodec) Unpack(in *Input, pos *uint32, v reflect.Value) error {
	return c.l.unpack(in, pos, v)
}

func (c *typeCodec) EmbeddedUnpack(in *Input, fixedPos, heapPos *uint32, v reflect.Value) error {
	if el, ok := c.l.(embeddedLayout); ok {
		return el.embeddedUnpack(in, fixedPos, heapPos, v)
	}
	if !c.l.variable() {
		return c.l.unpack(in, fixedPos, v)
	}
	target, offset, err := in.Pointer(fixedPos)
	if err != nil {
		return err
	}
	cl, isContainer := c.l.(containerLayout)
	if offset == 0 {
		if !isContainer {
			return ErrBadOffset
		}
		cl.setEmpty(v)
		return nil
	}
	if offset == 1 {
		return ErrBadOffset
	}
	if err := in.CheckHeap(target, heapPos); err != nil {
		return err
	}
	if err := c.l.unpack(in, heapPos, v); err != nil {
		return err
	}
	if isContainer && cl.isEmpty(v) {
		return ErrBadEmptyEncoding
	}
	return nil
}

var (
	codecCache sync.Map // reflect.Type -> *typeCodec
	buildMu    sync.Mutex
	timeType   = reflect.TypeOf(time.Time{})
)

// CodecOf returns the shared codec for t. Codecs are immutable once built.
func CodecOf(t reflect.Type) (Packable, error) {
	c, err := codecOf(t)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func codecOf(t reflect.Type) (*typeCodec, error) {
	if c, ok := codecCache.Load(t); ok {
		return c.(*typeCodec), nil
	}
	buildMu.Lock()
	defer buildMu.Unlock()
	if c, ok := codecCache.Load(t); ok {
		return c.(*typeCodec), nil
	}
	b := &codecBuilder{pending: make(map[reflect.Type]*typeCodec)}
	c, err := b.build(t)
	if err != nil {
		return nil, err
	}
	for pt, pc := range b.pending {
		codecCache.Store(pt, pc)
	}
	return c, nil
}

type codecBuilder struct {
	pending map[reflect.Type]*typeCodec
}

func (b *codecBuilder) build(t reflect.Type) (*typeCodec, error) {
	if c, ok := codecCache.Load(t); ok {
		return c.(*typeCodec), nil
	}
	if c, ok := b.pending[t]; ok {
		return c, nil
	}
	c := &typeCodec{t: t}
	b.pending[t] = c
	l, err := b.layoutFor(t)
	if err != nil {
		delete(b.pending, t)
		return nil, err
	}
	c.l = l
	return c, nil
}

func (b *codecBuilder) layoutFor(t reflect.Type) (layout, error) {
	if t == timeType {
		return timeLayout{}, nil
	}
	if t.Implements(nestedIface) {
		inner, err := b.build(t.Field(0).Type)
		if err != nil {
			return nil, err
		}
		return &nestedLayout{inner: inner}, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return boolLayout{}, nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intLayout{size: uint32(t.Size()), signed: true}, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return intLayout{size: uint32(t.Size())}, nil
	case reflect.Float32:
		return float32Layout{}, nil
	case reflect.Float64:
		return float64Layout{}, nil
	case reflect.String:
		return stringLayout{}, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return bytesLayout{}, nil
		}
		elem, err := b.build(t.Elem())
		if err != nil {
			return nil, err
		}
		// A pending element is still being built, so it contains this list
		// and is variable-size.
		if elem.l != nil && elem.FixedSize() == 0 {
			return nil, fmt.Errorf("%w: %s has zero-size elements", ErrUnsupportedType, t)
		}
		return &listLayout{elem: elem}, nil
	case reflect.Array:
		elem, err := b.build(t.Elem())
		if err != nil {
			return nil, err
		}
		return &arrayLayout{elem: elem, n: uint32(t.Len())}, nil
	case reflect.Pointer:
		inner, err := b.build(t.Elem())
		if err != nil {
			return nil, err
		}
		return &optionLayout{inner: inner}, nil
	case reflect.Map:
		return b.mapLayout(t)
	case reflect.Struct:
		return b.structLayout(t)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}
