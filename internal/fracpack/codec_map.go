package fracpack

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
)

// MapEntryType is the record type a map[K]V is packed as: an object with
// members "key" and "value".
func MapEntryType(t reflect.Type) reflect.Type {
	return reflect.StructOf([]reflect.StructField{
		{Name: "Key", Type: t.Key(), Tag: `fracpack:"key"`},
		{Name: "Value", Type: t.Elem(), Tag: `fracpack:"value"`},
	})
}

type mapLayout struct {
	entries *typeCodec // []entry
}

func (b *codecBuilder) mapLayout(t reflect.Type) (layout, error) {
	switch t.Key().Kind() {
	case reflect.String,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return nil, fmt.Errorf("%w: map key %s", ErrUnsupportedType, t.Key())
	}
	entries, err := b.build(reflect.SliceOf(MapEntryType(t)))
	if err != nil {
		return nil, err
	}
	return &mapLayout{entries: entries}, nil
}

func (*mapLayout) fixedSize() uint32 { return 4 }
func (*mapLayout) variable() bool    { return true }

func (*mapLayout) isEmpty(v reflect.Value) bool { return v.Len() == 0 }

func (*mapLayout) setEmpty(v reflect.Value) {
	v.Set(reflect.MakeMap(v.Type()))
}

func (l *mapLayout) pack(v reflect.Value, w *Writer) error {
	keys := v.MapKeys()
	slices.SortFunc(keys, compareKeys)
	entries := reflect.MakeSlice(l.entries.Type(), len(keys), len(keys))
	for i, k := range keys {
		e := entries.Index(i)
		e.Field(0).Set(k)
		e.Field(1).Set(v.MapIndex(k))
	}
	return l.entries.Pack(entries, w)
}

func (l *mapLayout) unpack(in *Input, pos *uint32, v reflect.Value) error {
	entries := reflect.New(l.entries.Type()).Elem()
	if err := l.entries.Unpack(in, pos, entries); err != nil {
		return err
	}
	m := reflect.MakeMapWithSize(v.Type(), entries.Len())
	for i := 0; i < entries.Len(); i++ {
		e := entries.Index(i)
		m.SetMapIndex(e.Field(0), e.Field(1))
	}
	v.Set(m)
	return nil
}

func compareKeys(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.String:
		return cmp.Compare(a.String(), b.String())
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	default:
		return cmp.Compare(a.Uint(), b.Uint())
	}
}
