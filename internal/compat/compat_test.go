package compat

import (
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/fracpack/internal/schema"
	"github.com/danmuck/fracpack/internal/testutil/testlog"
)

func single(name string, t *schema.AnyType) *schema.Schema {
	s := schema.New()
	s.Insert(name, t)
	return s
}

func accountV1() *schema.Schema {
	return single("Account", schema.Object(
		schema.M("id", schema.U64()),
		schema.M("name", schema.String()),
	))
}

func accountV2() *schema.Schema {
	return single("Account", schema.Object(
		schema.M("id", schema.U64()),
		schema.M("name", schema.String()),
		schema.M("memo", schema.Option(schema.String())),
	))
}

func TestReflexive(t *testing.T) {
	testlog.Start(t)

	type node struct {
		Value uint32
		Kids  []node
		Next  *node
	}
	b := schema.NewBuilder()
	b.InsertNamed("Node", reflect.TypeOf(node{}))
	recursive, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, s := range []*schema.Schema{accountV1(), accountV2(), recursive} {
		for _, policy := range []Difference{Equivalent, Upgrade, Downgrade, Incompatible} {
			if !Matches(s, s, policy) {
				t.Fatalf("schema should match itself under %s", policy)
			}
		}
		if d := CompareSchemas(s, s.Clone()); d != Equivalent {
			t.Fatalf("clone should be equivalent, got %s", d)
		}
	}
}

func TestAddField(t *testing.T) {
	testlog.Start(t)

	if d := CompareSchemas(accountV1(), accountV2()); d != AddField {
		t.Fatalf("expected addField, got %s", d)
	}
	if d := CompareSchemas(accountV2(), accountV1()); d != DropField {
		t.Fatalf("expected dropField, got %s", d)
	}
	if Matches(accountV1(), accountV2(), Equivalent) {
		t.Fatalf("equivalent policy should reject an added field")
	}
	if !Matches(accountV1(), accountV2(), Upgrade) {
		t.Fatalf("upgrade policy should accept an added optional field")
	}
	if Matches(accountV2(), accountV1(), Upgrade) {
		t.Fatalf("upgrade policy should reject a dropped field")
	}

	required := single("Account", schema.Object(
		schema.M("id", schema.U64()),
		schema.M("name", schema.String()),
		schema.M("memo", schema.String()),
	))
	if d := CompareSchemas(accountV1(), required); d != Incompatible {
		t.Fatalf("required added field should be incompatible, got %s", d)
	}
}

func TestTupleAndObjectInterchange(t *testing.T) {
	testlog.Start(t)

	obj := single("T", schema.Object(schema.M("a", schema.U32()), schema.M("b", schema.String())))
	tuple := single("T", schema.Tuple(schema.U32(), schema.String(), schema.Option(schema.U8())))
	if d := CompareSchemas(obj, tuple); d != AddField {
		t.Fatalf("expected addField, got %s", d)
	}
	st := single("T", schema.Struct(schema.M("a", schema.U32()), schema.M("b", schema.String())))
	if d := CompareSchemas(obj, st); d != Incompatible {
		t.Fatalf("struct and object should not match, got %s", d)
	}
}

func TestVariantAlternatives(t *testing.T) {
	testlog.Start(t)

	v1 := single("E", schema.Variant(schema.M("a", schema.U8())))
	v2 := single("E", schema.Variant(schema.M("a", schema.U8()), schema.M("b", schema.String())))
	if d := CompareSchemas(v1, v2); d != AddAlternative {
		t.Fatalf("expected addAlternative, got %s", d)
	}
	if d := CompareSchemas(v2, v1); d != DropAlternative {
		t.Fatalf("expected dropAlternative, got %s", d)
	}
	swapped := single("E", schema.Variant(schema.M("a", schema.String())))
	if d := CompareSchemas(v1, swapped); d != Incompatible {
		t.Fatalf("changed alternative should be incompatible, got %s", d)
	}
}

func TestIntegers(t *testing.T) {
	testlog.Start(t)

	if d := CompareSchemas(single("T", schema.U8()), single("T", schema.I8())); d != Equivalent {
		t.Fatalf("8-bit ints should ignore signedness, got %s", d)
	}
	if d := CompareSchemas(single("T", schema.U16()), single("T", schema.I16())); d != Incompatible {
		t.Fatalf("16-bit signedness should matter, got %s", d)
	}
	if d := CompareSchemas(single("T", schema.U16()), single("T", schema.U32())); d != Incompatible {
		t.Fatalf("widths should matter, got %s", d)
	}
	if d := CompareSchemas(single("T", schema.F32()), single("T", schema.F64())); d != Incompatible {
		t.Fatalf("float formats should matter, got %s", d)
	}
}

func TestNestedAndBytes(t *testing.T) {
	testlog.Start(t)

	nested := single("T", schema.FracPack(schema.U32()))
	raw := single("T", schema.Bytes())
	if d := CompareSchemas(nested, raw); d != AddAlternative {
		t.Fatalf("expected addAlternative, got %s", d)
	}
	if d := CompareSchemas(raw, nested); d != DropAlternative {
		t.Fatalf("expected dropAlternative, got %s", d)
	}
	words := single("T", schema.List(schema.U32()))
	if d := CompareSchemas(nested, words); d != Incompatible {
		t.Fatalf("non-byte list should not match nested data, got %s", d)
	}
}

func TestCustomIsTransparent(t *testing.T) {
	testlog.Start(t)

	text := single("T", schema.String())
	raw := single("T", schema.Bytes())
	if d := CompareSchemas(text, raw); d != Equivalent {
		t.Fatalf("custom wrapper should be ignored, got %s", d)
	}
}

func TestRecursiveShapes(t *testing.T) {
	testlog.Start(t)

	list := func(extra bool) *schema.Schema {
		members := []schema.Member{
			schema.M("value", schema.U32()),
			schema.M("next", schema.Option(schema.Ref("Node"))),
		}
		if extra {
			members = append(members, schema.M("tag", schema.Option(schema.String())))
		}
		return single("Node", schema.Object(members...))
	}
	if d := CompareSchemas(list(false), list(true)); d != AddField {
		t.Fatalf("expected addField, got %s", d)
	}

	// An unrolled list recurses at a different depth and is rejected.
	unrolled := schema.New()
	unrolled.Insert("Node", schema.Object(
		schema.M("value", schema.U32()),
		schema.M("next", schema.Option(schema.Ref("Inner"))),
	))
	unrolled.Insert("Inner", schema.Object(
		schema.M("value", schema.U32()),
		schema.M("next", schema.Option(schema.Ref("Node"))),
	))
	if d := Compare(list(false), unrolled, []Pair{{schema.Ref("Node"), schema.Ref("Node")}}); d != Incompatible {
		t.Fatalf("recursion at different depths should not match, got %s", d)
	}
}

func TestMissingName(t *testing.T) {
	testlog.Start(t)

	old := accountV1()
	old.Insert("Extra", schema.U8())
	d, reason := Explain(old, accountV1())
	if d != Incompatible || reason == "" {
		t.Fatalf("expected incompatible with reason, got %s %q", d, reason)
	}
	if d := CompareSchemas(accountV1(), old); d != Equivalent {
		t.Fatalf("names only in the new schema should be ignored, got %s", d)
	}
}

func TestMatcherPolicy(t *testing.T) {
	testlog.Start(t)

	l, r := accountV1(), accountV2()
	lt, _ := l.Get("Account")
	rt, _ := r.Get("Account")
	m := NewMatcher(l, r, Equivalent)
	if m.Match(lt, rt) {
		t.Fatalf("equivalent matcher should reject addField")
	}
	if m.Difference() != AddField || m.Reason() == "" {
		t.Fatalf("unexpected state %s %q", m.Difference(), m.Reason())
	}
	if !NewMatcher(l, r, Upgrade).Match(lt, rt) {
		t.Fatalf("upgrade matcher should accept addField")
	}
}

func TestParseDifference(t *testing.T) {
	testlog.Start(t)

	cases := map[string]Difference{
		"":                           Equivalent,
		"equivalent":                 Equivalent,
		"upgrade":                    Upgrade,
		"addField,dropAlternative":   AddField | DropAlternative,
		"dropfield | addAlternative": DropField | AddAlternative,
		"incompatible":               Incompatible,
	}
	for in, want := range cases {
		got, err := ParseDifference(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s want %s", in, got, want)
		}
	}
	if _, err := ParseDifference("sideways"); !errors.Is(err, ErrUnknownDifference) {
		t.Fatalf("expected ErrUnknownDifference, got %v", err)
	}
	if s := (AddField | DropAlternative).String(); s != "addField,dropAlternative" {
		t.Fatalf("unexpected string %q", s)
	}
	var d Difference
	if err := d.UnmarshalText([]byte("downgrade")); err != nil || d != Downgrade {
		t.Fatalf("unmarshal: %v %s", err, d)
	}
}
