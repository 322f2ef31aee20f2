package compiled

import (
	"errors"
	"testing"

	"github.com/danmuck/fracpack/internal/fracpack"
	"github.com/danmuck/fracpack/internal/schema"
	"github.com/danmuck/fracpack/internal/testutil/testlog"
)

// byteListHandler accepts only lists of bytes.
type byteListHandler struct{}

func (byteListHandler) Match(s *Schema, repr TypeID) bool {
	t := s.Type(s.Resolve(repr))
	if t.Kind != KindList {
		return false
	}
	e := s.Type(s.Resolve(t.Elem))
	return e.Kind == KindInt && e.Bits == 8
}

func (byteListHandler) FracToJSON(Converter, TypeID, *fracpack.Input, *uint32) (any, error) {
	return nil, nil
}

func (byteListHandler) JSONToFrac(Converter, TypeID, any, *fracpack.Writer) error {
	return nil
}

func (byteListHandler) IsEmptyContainer(Converter, TypeID, any) (bool, error) {
	return false, nil
}

func customs() *CustomTypes {
	c := NewCustomTypes()
	c.Insert("string", byteListHandler{})
	return c
}

func mustCompile(t *testing.T, s *schema.Schema, extra ...*schema.AnyType) *Schema {
	t.Helper()
	cs, err := Compile(s, customs(), extra...)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return cs
}

func lookup(t *testing.T, cs *Schema, name string) *Type {
	t.Helper()
	id, ok := cs.Lookup(name)
	if !ok {
		t.Fatalf("missing %s", name)
	}
	return cs.Type(id)
}

func TestCompileGraph(t *testing.T) {
	testlog.Start(t)

	s := schema.New()
	s.Insert("Point", schema.Struct(schema.M("x", schema.I32()), schema.M("y", schema.I32())))
	s.Insert("Shape", schema.Object(
		schema.M("name", schema.String()),
		schema.M("points", schema.List(schema.Ref("Point"))),
		schema.M("origin", schema.Ref("Point")),
	))
	s.Insert("Alias", schema.Ref("Shape"))
	cs := mustCompile(t, s)

	point := lookup(t, cs, "Point")
	if point.Kind != KindStruct || point.IsVariableSize() || point.FixedSize() != 8 {
		t.Fatalf("unexpected point %+v", point)
	}
	shape := lookup(t, cs, "Shape")
	if shape.Kind != KindObject || len(shape.Children) != 3 || !shape.IsExtensible() {
		t.Fatalf("unexpected shape %+v", shape)
	}
	name := cs.Type(shape.Children[0].Type)
	if name.Kind != KindCustom || cs.HandlerName(shape.Children[0].Type) != "string" {
		t.Fatalf("name should be a string custom, got %+v", name)
	}
	points := cs.Type(shape.Children[1].Type)
	if points.Kind != KindList || cs.Resolve(points.Elem) != cs.Resolve(mustID(t, cs, "Point")) {
		t.Fatalf("points should list Point, got %+v", points)
	}
	if cs.Resolve(shape.Children[2].Type) != mustID(t, cs, "Point") {
		t.Fatalf("origin should share the Point node")
	}
	if mustID(t, cs, "Alias") != mustID(t, cs, "Shape") {
		t.Fatalf("alias should resolve to Shape")
	}
}

func mustID(t *testing.T, cs *Schema, name string) TypeID {
	t.Helper()
	id, ok := cs.Lookup(name)
	if !ok {
		t.Fatalf("missing %s", name)
	}
	return cs.Resolve(id)
}

func TestCustomFallsBackToRepresentation(t *testing.T) {
	testlog.Start(t)

	s := schema.New()
	s.Insert("Words", schema.Custom(schema.List(schema.U32()), "string"))
	s.Insert("Money", schema.Custom(schema.I64(), "money"))
	cs := mustCompile(t, s)

	words := lookup(t, cs, "Words")
	if words.Kind != KindList {
		t.Fatalf("mismatched handler should leave the list, got %s", words.Kind)
	}
	money := lookup(t, cs, "Money")
	if money.Kind != KindInt || money.Bits != 64 || !money.Signed {
		t.Fatalf("unknown custom should alias its representation, got %+v", money)
	}
}

func TestRecursion(t *testing.T) {
	testlog.Start(t)

	s := schema.New()
	s.Insert("Node", schema.Object(
		schema.M("value", schema.U32()),
		schema.M("next", schema.Option(schema.Ref("Node"))),
	))
	cs := mustCompile(t, s)
	node := lookup(t, cs, "Node")
	next := cs.Type(node.Children[1].Type)
	if next.Kind != KindOption || cs.Resolve(next.Elem) != mustID(t, cs, "Node") {
		t.Fatalf("next should point back at Node, got %+v", next)
	}

	bad := schema.New()
	bad.Insert("Loop", schema.Struct(schema.M("self", schema.Ref("Loop"))))
	if _, err := Compile(bad, nil); !errors.Is(err, ErrInvalidRecursion) {
		t.Fatalf("expected ErrInvalidRecursion, got %v", err)
	}
}

func TestCompileRejectsInvalidSchemas(t *testing.T) {
	testlog.Start(t)

	missing := schema.New()
	missing.Insert("A", schema.List(schema.Ref("B")))
	if _, err := Compile(missing, nil); !errors.Is(err, schema.ErrUnknownType) {
		t.Fatalf("expected schema.ErrUnknownType, got %v", err)
	}

	cycle := schema.New()
	cycle.Insert("A", schema.Ref("B"))
	cycle.Insert("B", schema.Ref("A"))
	if _, err := Compile(cycle, nil); !errors.Is(err, schema.ErrAliasCycle) {
		t.Fatalf("expected schema.ErrAliasCycle, got %v", err)
	}

	huge := schema.New()
	huge.Insert("Big", schema.Array(schema.Array(schema.U64(), 1<<20), 1<<20))
	if _, err := Compile(huge, nil); !errors.Is(err, ErrFixedTooLarge) {
		t.Fatalf("expected ErrFixedTooLarge, got %v", err)
	}
	empty := schema.New()
	empty.Insert("Units", schema.List(schema.Struct()))
	if _, err := Compile(empty, nil); !errors.Is(err, ErrZeroSizeElement) {
		t.Fatalf("expected ErrZeroSizeElement, got %v", err)
	}

	zeroArray := schema.New()
	zeroArray.Insert("Rows", schema.List(schema.Array(schema.U32(), 0)))
	if _, err := Compile(zeroArray, nil); !errors.Is(err, ErrZeroSizeElement) {
		t.Fatalf("expected ErrZeroSizeElement for zero-length arrays, got %v", err)
	}
}

func TestExtendLeavesOriginal(t *testing.T) {
	testlog.Start(t)

	s := schema.New()
	s.Insert("Point", schema.Struct(schema.M("x", schema.I32())))
	cs := mustCompile(t, s)
	before := cs.Len()

	args := schema.Tuple(schema.Ref("Point"), schema.String())
	ext, err := cs.Extend(args)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if cs.Len() != before {
		t.Fatalf("extend modified the original: %d -> %d", before, cs.Len())
	}
	if _, ok := cs.Get(args); ok {
		t.Fatalf("original should not know the extra type")
	}
	id, ok := ext.Get(args)
	if !ok {
		t.Fatalf("extended schema should know the extra type")
	}
	tuple := ext.Type(id)
	if tuple.Kind != KindTuple || ext.Resolve(tuple.Children[0].Type) != mustID(t, ext, "Point") {
		t.Fatalf("unexpected tuple %+v", tuple)
	}
}
