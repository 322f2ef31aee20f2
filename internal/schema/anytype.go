package schema

import "fmt"

type Kind uint8

const (
	KindStruct Kind = iota + 1
	KindObject
	KindArray
	KindList
	KindOption
	KindVariant
	KindTuple
	KindInt
	KindFloat
	KindFracPack
	KindCustom
	KindType
)

var kindNames = map[Kind]string{
	KindStruct:   "Struct",
	KindObject:   "Object",
	KindArray:    "Array",
	KindList:     "List",
	KindOption:   "Option",
	KindVariant:  "Variant",
	KindTuple:    "Tuple",
	KindInt:      "Int",
	KindFloat:    "Float",
	KindFracPack: "FracPack",
	KindCustom:   "Custom",
	KindType:     "Type",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

type Member struct {
	Name string
	Type *AnyType
}

// AnyType describes one node of a fracpack type graph. Which fields are
// meaningful depends on Kind:
//
//	Struct, Object, Variant   Members
//	Tuple                     Elems
//	Array                     Elem, Len
//	List, Option, FracPack    Elem
//	Custom                    Elem (representation), ID
//	Int                       Bits, Signed
//	Float                     Exp, Mantissa
//	Type                      Name (reference to a schema entry)
type AnyType struct {
	Kind     Kind
	Members  []Member
	Elems    []*AnyType
	Elem     *AnyType
	Len      uint32
	Bits     uint32
	Signed   bool
	Exp      uint32
	Mantissa uint32
	ID       string
	Name     string
}

func M(name string, t *AnyType) Member {
	return Member{Name: name, Type: t}
}

func Int(bits uint32, signed bool) *AnyType {
	return &AnyType{Kind: KindInt, Bits: bits, Signed: signed}
}

func U8() *AnyType  { return Int(8, false) }
func U16() *AnyType { return Int(16, false) }
func U32() *AnyType { return Int(32, false) }
func U64() *AnyType { return Int(64, false) }
func I8() *AnyType  { return Int(8, true) }
func I16() *AnyType { return Int(16, true) }
func I32() *AnyType { return Int(32, true) }
func I64() *AnyType { return Int(64, true) }

func Float(exp, mantissa uint32) *AnyType {
	return &AnyType{Kind: KindFloat, Exp: exp, Mantissa: mantissa}
}

func F32() *AnyType { return Float(8, 24) }
func F64() *AnyType { return Float(11, 53) }

func List(elem *AnyType) *AnyType {
	return &AnyType{Kind: KindList, Elem: elem}
}

func Option(elem *AnyType) *AnyType {
	return &AnyType{Kind: KindOption, Elem: elem}
}

func Array(elem *AnyType, n uint32) *AnyType {
	return &AnyType{Kind: KindArray, Elem: elem, Len: n}
}

func FracPack(elem *AnyType) *AnyType {
	return &AnyType{Kind: KindFracPack, Elem: elem}
}

func Tuple(elems ...*AnyType) *AnyType {
	return &AnyType{Kind: KindTuple, Elems: elems}
}

func Struct(members ...Member) *AnyType {
	return &AnyType{Kind: KindStruct, Members: members}
}

func Object(members ...Member) *AnyType {
	return &AnyType{Kind: KindObject, Members: members}
}

func Variant(members ...Member) *AnyType {
	return &AnyType{Kind: KindVariant, Members: members}
}

func Custom(repr *AnyType, id string) *AnyType {
	return &AnyType{Kind: KindCustom, Elem: repr, ID: id}
}

// Ref refers to the schema entry called name.
func Ref(name string) *AnyType {
	return &AnyType{Kind: KindType, Name: name}
}

func Bool() *AnyType       { return Custom(Int(1, false), "bool") }
func String() *AnyType     { return Custom(List(U8()), "string") }
func Bytes() *AnyType      { return List(U8()) }
func HexBytes() *AnyType   { return Custom(List(U8()), "hex") }
func TimeMicros() *AnyType { return Custom(I64(), "TimePointUSec") }
func TimeSeconds() *AnyType {
	return Custom(U32(), "TimePointSec")
}

// Map is a list of key/value objects rendered as a JSON object.
func Map(key, value *AnyType) *AnyType {
	return Custom(List(Object(M("key", key), M("value", value))), "map")
}

// Clone returns a deep copy of t.
func (t *AnyType) Clone() *AnyType {
	if t == nil {
		return nil
	}
	out := *t
	out.Elem = t.Elem.Clone()
	if t.Members != nil {
		out.Members = make([]Member, len(t.Members))
		for i, m := range t.Members {
			out.Members[i] = Member{Name: m.Name, Type: m.Type.Clone()}
		}
	}
	if t.Elems != nil {
		out.Elems = make([]*AnyType, len(t.Elems))
		for i, e := range t.Elems {
			out.Elems[i] = e.Clone()
		}
	}
	return &out
}

// Equal reports structural equality without resolving references.
func Equal(a, b *AnyType) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Len != b.Len || a.Bits != b.Bits || a.Signed != b.Signed ||
		a.Exp != b.Exp || a.Mantissa != b.Mantissa || a.ID != b.ID || a.Name != b.Name {
		return false
	}
	if !Equal(a.Elem, b.Elem) || len(a.Members) != len(b.Members) || len(a.Elems) != len(b.Elems) {
		return false
	}
	for i := range a.Members {
		if a.Members[i].Name != b.Members[i].Name || !Equal(a.Members[i].Type, b.Members[i].Type) {
			return false
		}
	}
	for i := range a.Elems {
		if !Equal(a.Elems[i], b.Elems[i]) {
			return false
		}
	}
	return true
}

// VisitRefs calls fn for every Type reference reachable from t without
// crossing into the referenced entries. fn may overwrite the node it is
// given; the replacement is not visited.
func (t *AnyType) VisitRefs(fn func(ref *AnyType) error) error {
	if t == nil {
		return nil
	}
	if t.Kind == KindType {
		return fn(t)
	}
	if err := t.Elem.VisitRefs(fn); err != nil {
		return err
	}
	for _, m := range t.Members {
		if err := m.Type.VisitRefs(fn); err != nil {
			return err
		}
	}
	for _, e := range t.Elems {
		if err := e.VisitRefs(fn); err != nil {
			return err
		}
	}
	return nil
}

// Children returns the member types of a record-like node in wire order.
func (t *AnyType) Children() []*AnyType {
	switch t.Kind {
	case KindTuple:
		return t.Elems
	case KindStruct, KindObject, KindVariant:
		out := make([]*AnyType, len(t.Members))
		for i, m := range t.Members {
			out[i] = m.Type
		}
		return out
	default:
		return nil
	}
}
