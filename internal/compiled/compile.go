package compiled

import (
	"fmt"

	logs "github.com/danmuck/fracpack/internal/logging"
	"github.com/danmuck/fracpack/internal/schema"
)

// Schema is a schema compiled for decoding and encoding. It is read-only
// once returned and may be shared between goroutines.
type Schema struct {
	source  *schema.Schema
	custom  *CustomTypes
	types   []Type
	typeMap map[*schema.AnyType]TypeID
}

type compiler struct {
	*Schema
	queue   []queued
	customs []TypeID
}

type queued struct {
	id TypeID
	ty *schema.AnyType
}

// Compile builds the type graph for every entry of s and for any extra
// types. Nodes are keyed by identity: extra types must be pointers into s
// or standalone values that stay alive with the result.
func Compile(s *schema.Schema, custom *CustomTypes, extra ...*schema.AnyType) (*Schema, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if custom == nil {
		custom = NewCustomTypes()
	}
	c := &compiler{Schema: &Schema{
		source:  s,
		custom:  custom,
		typeMap: make(map[*schema.AnyType]TypeID),
	}}
	for _, name := range s.Names() {
		t, _ := s.Get(name)
		if _, err := c.add(t); err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
	}
	if err := c.finish(extra); err != nil {
		return nil, err
	}
	logs.Debugf("compiled.Compile entries=%d nodes=%d custom=%d", s.Len(), len(c.types), len(c.customs))
	return c.Schema, nil
}

// Extend returns a copy of cs that also covers the given ad-hoc types, for
// example the argument and result types of a call.
func (cs *Schema) Extend(extra ...*schema.AnyType) (*Schema, error) {
	c := &compiler{Schema: &Schema{
		source:  cs.source,
		custom:  cs.custom,
		types:   append([]Type(nil), cs.types...),
		typeMap: make(map[*schema.AnyType]TypeID, len(cs.typeMap)+len(extra)),
	}}
	for k, v := range cs.typeMap {
		c.typeMap[k] = v
	}
	if err := c.finish(extra); err != nil {
		return nil, err
	}
	return c.Schema, nil
}

func (c *compiler) finish(extra []*schema.AnyType) error {
	for i, t := range extra {
		if _, err := c.add(t); err != nil {
			return fmt.Errorf("compile extra[%d]: %w", i, err)
		}
	}
	for len(c.queue) > 0 {
		pending := c.queue
		c.queue = nil
		for _, q := range pending {
			if err := c.complete(q.id, q.ty); err != nil {
				return err
			}
		}
	}
	for _, id := range c.customs {
		c.resolveCustom(id)
	}
	for id := range c.types {
		node := c.types[id]
		if node.Kind == KindList && c.Type(c.Resolve(node.Elem)).FixedSize() == 0 {
			return fmt.Errorf("compile list #%d: %w", id, ErrZeroSizeElement)
		}
	}
	return nil
}

func (c *compiler) add(ty *schema.AnyType) (TypeID, error) {
	if ty == nil {
		return 0, fmt.Errorf("%w: nil type", ErrUnknownType)
	}
	if id, ok := c.typeMap[ty]; ok {
		switch c.types[id].Kind {
		case KindAlias:
			return c.types[id].Elem, nil
		case KindUninitialized:
			return 0, ErrInvalidRecursion
		}
		return id, nil
	}
	id := TypeID(len(c.types))
	c.typeMap[ty] = id
	c.types = append(c.types, Type{})
	result := id
	var node Type
	switch ty.Kind {
	case schema.KindStruct:
		node.Kind = KindStruct
		for _, m := range ty.Members {
			child, err := c.add(m.Type)
			if err != nil {
				return 0, err
			}
			ct := &c.types[child]
			if ct.IsVariableSize() {
				node.Variable = true
			}
			sum := node.Fixed + ct.FixedSize()
			if sum < node.Fixed {
				return 0, ErrFixedTooLarge
			}
			node.Fixed = sum
			node.Children = append(node.Children, Member{Name: m.Name, Type: child})
		}
	case schema.KindArray:
		child, err := c.add(ty.Elem)
		if err != nil {
			return 0, err
		}
		ct := &c.types[child]
		fixed := uint64(ct.FixedSize()) * uint64(ty.Len)
		if fixed > 0xFFFFFFFF {
			return 0, ErrFixedTooLarge
		}
		node = Type{Kind: KindArray, Elem: child, Len: ty.Len, Variable: ct.IsVariableSize(), Fixed: uint32(fixed)}
	case schema.KindObject, schema.KindList, schema.KindOption, schema.KindVariant,
		schema.KindTuple, schema.KindFracPack:
		c.queue = append(c.queue, queued{id: id, ty: ty})
		node.Kind = KindIncomplete
	case schema.KindInt:
		if ty.Bits == 0 || ty.Bits > 64 {
			return 0, fmt.Errorf("%w: int of %d bits", ErrUnknownType, ty.Bits)
		}
		node = Type{Kind: KindInt, Bits: ty.Bits, Signed: ty.Signed}
	case schema.KindFloat:
		node = Type{Kind: KindFloat, Exp: ty.Exp, Mantissa: ty.Mantissa}
	case schema.KindCustom:
		repr, err := c.add(ty.Elem)
		if err != nil {
			return 0, err
		}
		if h, ok := c.custom.Find(ty.ID); ok {
			rt := &c.types[repr]
			c.customs = append(c.customs, id)
			node = Type{Kind: KindCustom, Elem: repr, Handler: h, Variable: rt.IsVariableSize(), Fixed: rt.FixedSize()}
		} else {
			result = repr
			node = Type{Kind: KindAlias, Elem: repr}
		}
	case schema.KindType:
		target, ok := c.source.Get(ty.Name)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownType, ty.Name)
		}
		resolved, err := c.add(target)
		if err != nil {
			return 0, err
		}
		result = resolved
		node = Type{Kind: KindAlias, Elem: resolved}
	default:
		return 0, fmt.Errorf("%w: kind %s", ErrUnknownType, ty.Kind)
	}
	c.types[id] = node
	return result, nil
}

func (c *compiler) complete(id TypeID, ty *schema.AnyType) error {
	var node Type
	switch ty.Kind {
	case schema.KindObject, schema.KindVariant:
		node.Kind = KindObject
		if ty.Kind == schema.KindVariant {
			node.Kind = KindVariant
		}
		for _, m := range ty.Members {
			child, err := c.add(m.Type)
			if err != nil {
				return err
			}
			node.Children = append(node.Children, Member{Name: m.Name, Type: child})
		}
	case schema.KindTuple:
		node.Kind = KindTuple
		for _, e := range ty.Elems {
			child, err := c.add(e)
			if err != nil {
				return err
			}
			node.Children = append(node.Children, Member{Type: child})
		}
	case schema.KindList, schema.KindOption, schema.KindFracPack:
		child, err := c.add(ty.Elem)
		if err != nil {
			return err
		}
		node.Elem = child
		switch ty.Kind {
		case schema.KindList:
			node.Kind = KindList
		case schema.KindOption:
			node.Kind = KindOption
		default:
			node.Kind = KindFracPack
		}
	}
	c.types[id] = node
	return nil
}

// resolveCustom keeps a custom node only if its handler accepts the
// representation; otherwise the node becomes an alias of it. Customs are
// resolved bottom-up, so at most one level of wrapping needs unwrapping.
func (c *compiler) resolveCustom(id TypeID) {
	node := c.types[id]
	next := node.Elem
	if inner := c.types[next]; inner.Kind == KindCustom || inner.Kind == KindAlias {
		next = inner.Elem
	}
	if c.custom.Handler(node.Handler).Match(c.Schema, next) {
		node.Elem = next
		c.types[id] = node
		return
	}
	c.types[id] = Type{Kind: KindAlias, Elem: next}
}

// Get returns the compiled node for a type that was part of compilation,
// following one alias level.
func (cs *Schema) Get(ty *schema.AnyType) (TypeID, bool) {
	id, ok := cs.typeMap[ty]
	if !ok {
		return 0, false
	}
	return cs.Resolve(id), true
}

// Lookup finds the compiled node of a named entry.
func (cs *Schema) Lookup(name string) (TypeID, bool) {
	ty, ok := cs.source.Get(name)
	if !ok {
		return 0, false
	}
	return cs.Get(ty)
}

// Resolve follows alias nodes.
func (cs *Schema) Resolve(id TypeID) TypeID {
	for i := 0; cs.types[id].Kind == KindAlias && i < len(cs.types); i++ {
		id = cs.types[id].Elem
	}
	return id
}

func (cs *Schema) Type(id TypeID) *Type {
	return &cs.types[id]
}

func (cs *Schema) Len() int {
	return len(cs.types)
}

func (cs *Schema) Custom() *CustomTypes {
	return cs.custom
}

func (cs *Schema) Source() *schema.Schema {
	return cs.source
}

// HandlerName names the custom handler of a custom node.
func (cs *Schema) HandlerName(id TypeID) string {
	t := cs.Type(id)
	if t.Kind != KindCustom {
		return ""
	}
	return cs.custom.Name(t.Handler)
}
