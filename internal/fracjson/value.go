package fracjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// Member is one key/value pair of an Object.
type Member struct {
	Key   string
	Value any
}

// Object is a JSON object that keeps member order.
type Object []Member

func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// asObject accepts an Object or a plain map. Map keys are visited in sorted
// order so encoding stays deterministic.
func asObject(v any) (Object, bool) {
	switch o := v.(type) {
	case Object:
		return o, true
	case map[string]any:
		keys := make([]string, 0, len(o))
		for k := range o {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Object, 0, len(o))
		for _, k := range keys {
			out = append(out, Member{Key: k, Value: o[k]})
		}
		return out, true
	default:
		return nil, false
	}
}

// Parse decodes JSON text into Object, []any, json.Number, string, bool and
// nil values, preserving member order.
func Parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := parseValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrTypeMismatch)
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := Object{}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := kt.(string)
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("%w: unexpected %v", ErrTypeMismatch, t)
		}
	default:
		return tok, nil
	}
}

// numberText returns the decimal text of a JSON number given as any of the
// numeric Go types, json.Number or a numeric string.
func numberText(v any) (string, bool) {
	switch n := v.(type) {
	case json.Number:
		return n.String(), true
	case string:
		return n, true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true
	case int:
		return strconv.FormatInt(int64(n), 10), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case uint16:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	case bool:
		if n {
			return "1", true
		}
		return "0", true
	default:
		return "", false
	}
}

func toUint(v any, bits uint32) (uint64, error) {
	text, ok := numberText(v)
	if !ok {
		return 0, fmt.Errorf("%w: expected unsigned integer, got %T", ErrTypeMismatch, v)
	}
	n, err := strconv.ParseUint(text, 10, int(bits))
	if err != nil {
		return 0, fmt.Errorf("%w: %q as u%d", ErrOutOfRange, text, bits)
	}
	return n, nil
}

func toInt(v any, bits uint32) (int64, error) {
	text, ok := numberText(v)
	if !ok {
		return 0, fmt.Errorf("%w: expected integer, got %T", ErrTypeMismatch, v)
	}
	n, err := strconv.ParseInt(text, 10, int(bits))
	if err != nil {
		return 0, fmt.Errorf("%w: %q as i%d", ErrOutOfRange, text, bits)
	}
	return n, nil
}

func toFloat(v any, bits int) (float64, error) {
	text, ok := numberText(v)
	if !ok {
		return 0, fmt.Errorf("%w: expected number, got %T", ErrTypeMismatch, v)
	}
	// Infinity is only reachable through the "inf", "-inf" and "Infinity"
	// tokens; finite values that overflow the width are rejected.
	f, err := strconv.ParseFloat(text, bits)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %q as f%d", ErrOutOfRange, text, bits)
		}
		return 0, fmt.Errorf("%w: %q", ErrTypeMismatch, text)
	}
	return f, nil
}

// floatValue renders non-finite values as strings, which JSON cannot
// represent as numbers.
func floatValue(f float64, bits int) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if bits == 32 {
		return float32(f)
	}
	return f
}
