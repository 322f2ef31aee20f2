package fracpack

import (
	"fmt"
	"reflect"
	"strings"
)

// Final, when embedded in a struct, packs it as a non-extensible struct: no
// size header and no trailing-optional elision.
type Final struct{}

// Tuple, when embedded in a struct, packs it as a positional tuple.
type Tuple struct{}

// Union, when embedded in a struct, packs it as a variant. Every other field
// must be a pointer; exactly one is non-nil when packing.
type Union struct{}

type Shape int

const (
	ShapeObject Shape = iota
	ShapeStruct
	ShapeTuple
	ShapeVariant
)

func (s Shape) String() string {
	switch s {
	case ShapeStruct:
		return "struct"
	case ShapeTuple:
		return "tuple"
	case ShapeVariant:
		return "variant"
	default:
		return "object"
	}
}

var (
	finalType = reflect.TypeOf(Final{})
	tupleType = reflect.TypeOf(Tuple{})
	unionType = reflect.TypeOf(Union{})
)

// Field describes one packed struct field. For variants Type is the pointee
// of the alternative's pointer field.
type Field struct {
	Name  string
	Index int
	Type  reflect.Type
}

// Describe reports how a Go struct type is packed and which fields
// participate, in wire order.
func Describe(t reflect.Type) (Shape, []Field, error) {
	if t.Kind() != reflect.Struct {
		return 0, nil, fmt.Errorf("%w: %s is not a struct", ErrUnsupportedType, t)
	}
	shape := ShapeObject
	var fields []Field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous {
			switch sf.Type {
			case finalType:
				shape = ShapeStruct
				continue
			case tupleType:
				shape = ShapeTuple
				continue
			case unionType:
				shape = ShapeVariant
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		name, skip := fieldName(sf)
		if skip {
			continue
		}
		fields = append(fields, Field{Name: name, Index: i, Type: sf.Type})
	}
	if shape == ShapeVariant {
		if len(fields) > 128 {
			return 0, nil, fmt.Errorf("%w: %s has more than 128 alternatives", ErrUnsupportedType, t)
		}
		for i, f := range fields {
			if f.Type.Kind() != reflect.Pointer {
				return 0, nil, fmt.Errorf("%w: variant %s field %s must be a pointer", ErrUnsupportedType, t, f.Name)
			}
			fields[i].Type = f.Type.Elem()
		}
	}
	return shape, fields, nil
}

func fieldName(sf reflect.StructField) (string, bool) {
	for _, key := range []string{"fracpack", "json"} {
		tag, ok := sf.Tag.Lookup(key)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", true
		}
		if name != "" {
			return name, false
		}
	}
	return sf.Name, false
}
