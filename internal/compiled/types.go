package compiled

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownType      = errors.New("compiled: unknown type")
	ErrInvalidRecursion = errors.New("compiled: type contains itself by value")
	ErrFixedTooLarge    = errors.New("compiled: fixed size overflow")
	ErrAliasCycle       = errors.New("compiled: alias cycle")
	ErrZeroSizeElement  = errors.New("compiled: list element has zero fixed size")
)

// TypeID indexes a compiled type within its Schema.
type TypeID int

type Kind uint8

const (
	KindUninitialized Kind = iota
	KindIncomplete
	KindStruct
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
	KindAlias
)

var kindNames = [...]string{
	KindUninitialized: "Uninitialized",
	KindIncomplete:    "Incomplete",
	KindStruct:        "Struct",
	KindObject:        "Object",
	KindArray:         "Array",
	KindList:          "List",
	KindOption:        "Option",
	KindVariant:       "Variant",
	KindTuple:         "Tuple",
	KindInt:           "Int",
	KindFloat:         "Float",
	KindFracPack:      "FracPack",
	KindCustom:        "Custom",
	KindAlias:         "Alias",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

type Member struct {
	Name string
	Type TypeID
}

// Type is a node of the compiled graph. Children hold record members and
// variant alternatives (tuple members have empty names); Elem is the element,
// payload, representation or alias target.
type Type struct {
	Kind     Kind
	Children []Member
	Elem     TypeID
	Len      uint32
	Bits     uint32
	Signed   bool
	Exp      uint32
	Mantissa uint32
	Handler  int
	Variable bool
	Fixed    uint32
}

func (t *Type) IsVariableSize() bool {
	switch t.Kind {
	case KindStruct, KindArray, KindCustom:
		return t.Variable
	case KindInt, KindFloat:
		return false
	default:
		return true
	}
}

// FixedSize is the number of bytes the type occupies inside an enclosing
// fixed region.
func (t *Type) FixedSize() uint32 {
	switch t.Kind {
	case KindStruct, KindArray, KindCustom:
		if !t.Variable {
			return t.Fixed
		}
	case KindInt:
		return (t.Bits + 7) / 8
	case KindFloat:
		return (t.Exp + t.Mantissa + 7) / 8
	}
	return 4
}

func (t *Type) IsOptional() bool {
	return t.Kind == KindOption
}

// IsExtensible reports whether the type carries a u16 fixed-size header and
// may be extended with trailing optional members.
func (t *Type) IsExtensible() bool {
	return t.Kind == KindObject || t.Kind == KindTuple
}
