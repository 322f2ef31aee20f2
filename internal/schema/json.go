package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MarshalJSON writes the schema as an ordered JSON object of name to
// definition.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, name)
		buf.WriteByte(':')
		if err := writeType(&buf, s.types[name]); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed := New()
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return err
		}
		if _, dup := parsed.types[name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		t, err := readType(dec)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		parsed.Insert(name, t)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return err
	}
	*s = *parsed
	return nil
}

func (t *AnyType) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeType(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *AnyType) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := readType(dec)
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func writeType(buf *bytes.Buffer, t *AnyType) error {
	if t == nil {
		return fmt.Errorf("%w: nil type", ErrInvalidSchema)
	}
	if t.Kind == KindType {
		writeString(buf, t.Name)
		return nil
	}
	buf.WriteString(`{"`)
	buf.WriteString(t.Kind.String())
	buf.WriteString(`":`)
	switch t.Kind {
	case KindStruct, KindObject, KindVariant:
		buf.WriteByte('{')
		for i, m := range t.Members {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, m.Name)
			buf.WriteByte(':')
			if err := writeType(buf, m.Type); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindTuple:
		buf.WriteByte('[')
		for i, e := range t.Elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeType(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindArray:
		buf.WriteString(`{"type":`)
		if err := writeType(buf, t.Elem); err != nil {
			return err
		}
		buf.WriteString(`,"len":`)
		buf.WriteString(strconv.FormatUint(uint64(t.Len), 10))
		buf.WriteByte('}')
	case KindList, KindOption, KindFracPack:
		if err := writeType(buf, t.Elem); err != nil {
			return err
		}
	case KindCustom:
		buf.WriteString(`{"type":`)
		if err := writeType(buf, t.Elem); err != nil {
			return err
		}
		buf.WriteString(`,"id":`)
		writeString(buf, t.ID)
		buf.WriteByte('}')
	case KindInt:
		fmt.Fprintf(buf, `{"bits":%d,"isSigned":%t}`, t.Bits, t.Signed)
	case KindFloat:
		fmt.Fprintf(buf, `{"exp":%d,"mantissa":%d}`, t.Exp, t.Mantissa)
	default:
		return fmt.Errorf("%w: kind %s", ErrInvalidSchema, t.Kind)
	}
	buf.WriteByte('}')
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrInvalidSchema, want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected key, got %v", ErrInvalidSchema, tok)
	}
	return key, nil
}

func readType(dec *json.Decoder) (*AnyType, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	switch v := tok.(type) {
	case string:
		return Ref(v), nil
	case json.Delim:
		if v != '{' {
			return nil, fmt.Errorf("%w: unexpected %v", ErrInvalidSchema, v)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected %v", ErrInvalidSchema, tok)
	}
	tag, err := readKey(dec)
	if err != nil {
		return nil, err
	}
	t, err := readBody(dec, tag)
	if err != nil {
		return nil, err
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("%s: %w", tag, err)
	}
	return t, nil
}

func readBody(dec *json.Decoder, tag string) (*AnyType, error) {
	switch tag {
	case "Struct", "Object", "Variant":
		members, err := readMembers(dec)
		if err != nil {
			return nil, err
		}
		t := &AnyType{Members: members}
		switch tag {
		case "Struct":
			t.Kind = KindStruct
		case "Object":
			t.Kind = KindObject
		default:
			t.Kind = KindVariant
		}
		return t, nil
	case "Tuple":
		if err := expectDelim(dec, '['); err != nil {
			return nil, err
		}
		t := &AnyType{Kind: KindTuple, Elems: []*AnyType{}}
		for dec.More() {
			e, err := readType(dec)
			if err != nil {
				return nil, err
			}
			t.Elems = append(t.Elems, e)
		}
		return t, expectDelim(dec, ']')
	case "List", "Option", "FracPack":
		elem, err := readType(dec)
		if err != nil {
			return nil, err
		}
		switch tag {
		case "List":
			return List(elem), nil
		case "Option":
			return Option(elem), nil
		default:
			return FracPack(elem), nil
		}
	case "Array", "Custom", "Int", "Float":
		return readFields(dec, tag)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSchema, tag)
	}
}

func readMembers(dec *json.Decoder) ([]Member, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	members := []Member{}
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		t, err := readType(dec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		members = append(members, M(name, t))
	}
	return members, expectDelim(dec, '}')
}

// readFields parses the keyed bodies of Array, Custom, Int and Float.
func readFields(dec *json.Decoder, tag string) (*AnyType, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	t := &AnyType{}
	switch tag {
	case "Array":
		t.Kind = KindArray
	case "Custom":
		t.Kind = KindCustom
	case "Int":
		t.Kind = KindInt
	default:
		t.Kind = KindFloat
	}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		switch key {
		case "type":
			if t.Elem, err = readType(dec); err != nil {
				return nil, err
			}
		case "len":
			t.Len, err = readUint(dec)
		case "bits":
			t.Bits, err = readUint(dec)
		case "exp":
			t.Exp, err = readUint(dec)
		case "mantissa":
			t.Mantissa, err = readUint(dec)
		case "isSigned":
			t.Signed, err = readBool(dec)
		case "id":
			t.ID, err = readKey(dec)
		default:
			err = fmt.Errorf("%w: unknown %s field %q", ErrInvalidSchema, tag, key)
		}
		if err != nil {
			return nil, err
		}
	}
	if (t.Kind == KindArray || t.Kind == KindCustom) && t.Elem == nil {
		return nil, fmt.Errorf("%w: %s missing type", ErrInvalidSchema, tag)
	}
	return t, expectDelim(dec, '}')
}

// readUint accepts a JSON number or a decimal string.
func readUint(dec *json.Decoder) (uint32, error) {
	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	var raw string
	switch v := tok.(type) {
	case json.Number:
		raw = v.String()
	case string:
		raw = v
	default:
		return 0, fmt.Errorf("%w: expected number, got %v", ErrInvalidSchema, tok)
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return uint32(n), nil
}

func readBool(dec *json.Decoder) (bool, error) {
	tok, err := dec.Token()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	b, ok := tok.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expected bool, got %v", ErrInvalidSchema, tok)
	}
	return b, nil
}
