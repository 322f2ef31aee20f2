package fracjson

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/danmuck/fracpack/internal/compiled"
	"github.com/danmuck/fracpack/internal/fracpack"
)

// Names of the standard custom handlers, as used in schema Custom ids.
const (
	CustomBool          = "bool"
	CustomString        = "string"
	CustomHex           = "hex"
	CustomMap           = "map"
	CustomTimePointSec  = "TimePointSec"
	CustomTimePointUSec = "TimePointUSec"
)

// StandardTypes returns a fresh table holding the standard handlers.
func StandardTypes() *compiled.CustomTypes {
	t := compiled.NewCustomTypes()
	t.Insert(CustomBool, boolHandler{})
	t.Insert(CustomString, stringHandler{})
	t.Insert(CustomHex, hexHandler{})
	t.Insert(CustomMap, mapHandler{})
	t.Insert(CustomTimePointSec, timeHandler{unit: time.Second})
	t.Insert(CustomTimePointUSec, timeHandler{unit: time.Microsecond})
	return t
}

func resolved(s *compiled.Schema, id compiled.TypeID) *compiled.Type {
	return s.Type(s.Resolve(id))
}

func isByte(t *compiled.Type) bool {
	return t.Kind == compiled.KindInt && t.Bits == 8
}

type boolHandler struct{}

func (boolHandler) Match(s *compiled.Schema, repr compiled.TypeID) bool {
	t := resolved(s, repr)
	return t.Kind == compiled.KindInt && t.Bits == 1 && !t.Signed
}

func (boolHandler) FracToJSON(_ compiled.Converter, _ compiled.TypeID, in *fracpack.Input, pos *uint32) (any, error) {
	b, err := in.U8(pos)
	if err != nil {
		return nil, err
	}
	if b > 1 {
		return nil, fracpack.ErrBadScalar
	}
	return b == 1, nil
}

func (boolHandler) JSONToFrac(_ compiled.Converter, _ compiled.TypeID, v any, w *fracpack.Writer) error {
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("%w: expected bool, got %T", ErrTypeMismatch, v)
	}
	if b {
		w.PutU8(1)
	} else {
		w.PutU8(0)
	}
	return nil
}

func (boolHandler) IsEmptyContainer(compiled.Converter, compiled.TypeID, any) (bool, error) {
	return false, nil
}

// stringHandler renders a byte list as UTF-8 text.
type stringHandler struct{}

func (stringHandler) Match(s *compiled.Schema, repr compiled.TypeID) bool {
	t := resolved(s, repr)
	return t.Kind == compiled.KindList && isByte(resolved(s, t.Elem))
}

func (stringHandler) FracToJSON(_ compiled.Converter, _ compiled.TypeID, in *fracpack.Input, pos *uint32) (any, error) {
	n, err := in.U32(pos)
	if err != nil {
		return nil, err
	}
	b, err := in.Bytes(pos, n)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, fracpack.ErrBadUTF8
	}
	return string(b), nil
}

func (stringHandler) JSONToFrac(_ compiled.Converter, _ compiled.TypeID, v any, w *fracpack.Writer) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: expected string, got %T", ErrTypeMismatch, v)
	}
	if !utf8.ValidString(s) {
		return fracpack.ErrBadUTF8
	}
	w.PutU32(uint32(len(s)))
	w.Append([]byte(s))
	return nil
}

func (stringHandler) IsEmptyContainer(_ compiled.Converter, _ compiled.TypeID, v any) (bool, error) {
	s, ok := v.(string)
	if !ok {
		return false, fmt.Errorf("%w: expected string, got %T", ErrTypeMismatch, v)
	}
	return s == "", nil
}

// hexHandler renders raw bytes as upper-case hex. It applies to lists of
// fixed-size elements, to fixed-size types and to nested encodings. The
// bytes are still validated against the representation in both directions.
type hexHandler struct{}

func (hexHandler) Match(s *compiled.Schema, repr compiled.TypeID) bool {
	t := resolved(s, repr)
	switch t.Kind {
	case compiled.KindList:
		return !resolved(s, t.Elem).IsVariableSize()
	case compiled.KindFracPack:
		return true
	}
	return !t.IsVariableSize()
}

// framed reports whether repr is stored behind a u32 length prefix.
func framed(t *compiled.Type) bool {
	return t.Kind == compiled.KindList || t.Kind == compiled.KindFracPack
}

func (hexHandler) FracToJSON(c compiled.Converter, repr compiled.TypeID, in *fracpack.Input, pos *uint32) (any, error) {
	start := *pos
	if _, err := c.FracToJSON(repr, in, pos); err != nil {
		return nil, err
	}
	if framed(resolved(c.Schema(), repr)) {
		start += 4
	}
	return strings.ToUpper(hex.EncodeToString(in.Src[start:*pos])), nil
}

func (hexHandler) JSONToFrac(c compiled.Converter, repr compiled.TypeID, v any, w *fracpack.Writer) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: expected hex string, got %T", ErrTypeMismatch, v)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	start := w.Len()
	if framed(resolved(c.Schema(), repr)) {
		w.PutU32(uint32(len(b)))
	}
	w.Append(b)
	in, err := fracpack.NewInput(w.Bytes()[start:])
	if err != nil {
		return err
	}
	var pos uint32
	if _, err := c.FracToJSON(repr, in, &pos); err != nil {
		return err
	}
	if pos != in.End {
		return fracpack.ErrBadSize
	}
	return nil
}

func (hexHandler) IsEmptyContainer(c compiled.Converter, repr compiled.TypeID, v any) (bool, error) {
	s, ok := v.(string)
	if !ok {
		return false, fmt.Errorf("%w: expected hex string, got %T", ErrTypeMismatch, v)
	}
	return s == "" && resolved(c.Schema(), repr).Kind == compiled.KindList, nil
}

// mapHandler renders a list of two-member entries as a JSON object. Keys
// that are not strings in JSON are carried as their JSON text.
type mapHandler struct{}

func (mapHandler) Match(s *compiled.Schema, repr compiled.TypeID) bool {
	t := resolved(s, repr)
	if t.Kind != compiled.KindList {
		return false
	}
	e := resolved(s, t.Elem)
	switch e.Kind {
	case compiled.KindStruct, compiled.KindObject, compiled.KindTuple:
		return len(e.Children) == 2
	}
	return false
}

func entryOf(s *compiled.Schema, repr compiled.TypeID) *compiled.Type {
	return resolved(s, resolved(s, repr).Elem)
}

func stringKeyed(s *compiled.Schema, entry *compiled.Type) bool {
	key := s.Resolve(entry.Children[0].Type)
	switch s.HandlerName(key) {
	case CustomString, CustomHex, CustomTimePointSec, CustomTimePointUSec:
		return true
	}
	return false
}

func (mapHandler) FracToJSON(c compiled.Converter, repr compiled.TypeID, in *fracpack.Input, pos *uint32) (any, error) {
	v, err := c.FracToJSON(repr, in, pos)
	if err != nil {
		return nil, err
	}
	entry := entryOf(c.Schema(), repr)
	textKeys := stringKeyed(c.Schema(), entry)
	items, _ := v.([]any)
	out := make(Object, 0, len(items))
	for _, item := range items {
		var k, val any
		switch e := item.(type) {
		case Object:
			k, val = e[0].Value, e[1].Value
		case []any:
			k, val = e[0], e[1]
		}
		key, ok := k.(string)
		if !textKeys || !ok {
			b, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			key = string(b)
		}
		out = append(out, Member{Key: key, Value: val})
	}
	return out, nil
}

// JSONToFrac writes entries sorted by key, the order the reflection codec
// uses for Go maps: integer keys numerically, everything else by key text.
// Duplicate keys are rejected.
func (mapHandler) JSONToFrac(c compiled.Converter, repr compiled.TypeID, v any, w *fracpack.Writer) error {
	obj, ok := asObject(v)
	if !ok {
		return fmt.Errorf("%w: expected object, got %T", ErrTypeMismatch, v)
	}
	entry := entryOf(c.Schema(), repr)
	textKeys := stringKeyed(c.Schema(), entry)
	keys := make([]mapKey, 0, len(obj))
	for _, m := range obj {
		k := mapKey{text: m.Key, value: m.Value, key: m.Key}
		if !textKeys {
			parsed, err := Parse([]byte(m.Key))
			if err != nil {
				return fmt.Errorf("%w: map key %q: %v", ErrTypeMismatch, m.Key, err)
			}
			k.key = parsed
			if n, ok := parsed.(json.Number); ok {
				k.num, k.isNum = new(big.Int).SetString(n.String(), 10)
			}
		}
		keys = append(keys, k)
	}
	slices.SortStableFunc(keys, compareMapKeys)
	items := make([]any, 0, len(keys))
	for i, k := range keys {
		if i > 0 && compareMapKeys(keys[i-1], k) == 0 {
			return fmt.Errorf("%w: duplicate map key %q", ErrTypeMismatch, k.text)
		}
		if entry.Kind == compiled.KindTuple {
			items = append(items, []any{k.key, k.value})
			continue
		}
		items = append(items, Object{
			{Key: entry.Children[0].Name, Value: k.key},
			{Key: entry.Children[1].Name, Value: k.value},
		})
	}
	return c.JSONToFrac(repr, items, w)
}

type mapKey struct {
	text  string
	key   any
	value any
	num   *big.Int
	isNum bool
}

func compareMapKeys(a, b mapKey) int {
	if a.isNum && b.isNum {
		return a.num.Cmp(b.num)
	}
	return strings.Compare(a.text, b.text)
}

func (mapHandler) IsEmptyContainer(_ compiled.Converter, _ compiled.TypeID, v any) (bool, error) {
	obj, ok := asObject(v)
	if !ok {
		return false, fmt.Errorf("%w: expected object, got %T", ErrTypeMismatch, v)
	}
	return len(obj) == 0, nil
}

// timeHandler renders an integer count of unit since the Unix epoch as an
// RFC 3339 timestamp in UTC.
type timeHandler struct {
	unit time.Duration
}

func (timeHandler) Match(s *compiled.Schema, repr compiled.TypeID) bool {
	_, ok := timeField(s, repr)
	return ok
}

// timeField reports the member name when repr is a one-member Struct or
// Object around an integer; an empty name means repr is the integer itself.
func timeField(s *compiled.Schema, repr compiled.TypeID) (string, bool) {
	t := resolved(s, repr)
	switch t.Kind {
	case compiled.KindInt:
		return "", t.Bits <= 64
	case compiled.KindStruct, compiled.KindObject:
		if len(t.Children) != 1 {
			return "", false
		}
		inner := resolved(s, t.Children[0].Type)
		return t.Children[0].Name, inner.Kind == compiled.KindInt && inner.Bits <= 64
	}
	return "", false
}

func (h timeHandler) layout() string {
	if h.unit == time.Second {
		return "2006-01-02T15:04:05Z07:00"
	}
	return "2006-01-02T15:04:05.000000Z07:00"
}

func (h timeHandler) FracToJSON(c compiled.Converter, repr compiled.TypeID, in *fracpack.Input, pos *uint32) (any, error) {
	v, err := c.FracToJSON(repr, in, pos)
	if err != nil {
		return nil, err
	}
	if obj, ok := v.(Object); ok && len(obj) == 1 {
		v = obj[0].Value
	}
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case uint64:
		if x > 1<<63-1 {
			return nil, ErrOutOfRange
		}
		n = int64(x)
	default:
		return nil, fmt.Errorf("%w: time from %T", ErrTypeMismatch, v)
	}
	var t time.Time
	if h.unit == time.Second {
		t = time.Unix(n, 0)
	} else {
		t = time.UnixMicro(n)
	}
	return t.UTC().Format(h.layout()), nil
}

func (h timeHandler) JSONToFrac(c compiled.Converter, repr compiled.TypeID, v any, w *fracpack.Writer) error {
	field, _ := timeField(c.Schema(), repr)
	if s, ok := v.(string); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		n := t.UnixMicro()
		if h.unit == time.Second {
			n = t.Unix()
		}
		v = json.Number(strconv.FormatInt(n, 10))
	}
	if field != "" {
		if _, isObj := v.(Object); !isObj {
			v = Object{{Key: field, Value: v}}
		}
	}
	return c.JSONToFrac(repr, v, w)
}

func (timeHandler) IsEmptyContainer(compiled.Converter, compiled.TypeID, any) (bool, error) {
	return false, nil
}
