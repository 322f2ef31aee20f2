// Package fracjson converts between fracpack encodings and JSON using a
// compiled schema, without any Go type describing the data.
package fracjson

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/fracpack/internal/compiled"
	"github.com/danmuck/fracpack/internal/fracpack"
)

// Converter is safe for concurrent use; it holds no state beyond the
// compiled schema.
type Converter struct {
	s *compiled.Schema
}

var _ compiled.Converter = (*Converter)(nil)

func New(s *compiled.Schema) *Converter {
	return &Converter{s: s}
}

func (c *Converter) Schema() *compiled.Schema {
	return c.s
}

func (c *Converter) lookup(name string) (compiled.TypeID, error) {
	id, ok := c.s.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return id, nil
}

// Decode converts a complete encoding of id into a JSON value tree.
// Unknown extension data is tolerated.
func (c *Converter) Decode(id compiled.TypeID, data []byte) (any, error) {
	v, _, err := c.decode(id, data)
	return v, err
}

// DecodeStrict is Decode, but rejects data with unknown fields or
// alternatives.
func (c *Converter) DecodeStrict(id compiled.TypeID, data []byte) (any, error) {
	v, unknown, err := c.decode(id, data)
	if err != nil {
		return nil, err
	}
	if unknown {
		return nil, fracpack.ErrHasUnknown
	}
	return v, nil
}

func (c *Converter) decode(id compiled.TypeID, data []byte) (any, bool, error) {
	in, err := fracpack.NewInput(data)
	if err != nil {
		return nil, false, err
	}
	var pos uint32
	v, err := c.FracToJSON(id, in, &pos)
	if err != nil {
		return nil, false, err
	}
	if err := in.Finish(pos); err != nil {
		return nil, false, err
	}
	return v, in.HasUnknown, nil
}

// Verify validates data as an encoding of id.
func (c *Converter) Verify(id compiled.TypeID, data []byte) error {
	_, _, err := c.decode(id, data)
	return err
}

func (c *Converter) VerifyStrict(id compiled.TypeID, data []byte) error {
	_, err := c.DecodeStrict(id, data)
	return err
}

// VerifyName validates data against a named schema entry.
func (c *Converter) VerifyName(name string, data []byte, strict bool) error {
	id, err := c.lookup(name)
	if err != nil {
		return err
	}
	if strict {
		return c.VerifyStrict(id, data)
	}
	return c.Verify(id, data)
}

// Encode packs a JSON value tree (as produced by Parse, encoding/json or
// Decode) as id.
func (c *Converter) Encode(id compiled.TypeID, v any) ([]byte, error) {
	w := fracpack.NewWriter(64)
	if err := c.JSONToFrac(id, v, w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// ToJSON decodes data as the named entry and renders it as JSON text.
func (c *Converter) ToJSON(name string, data []byte) ([]byte, error) {
	id, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	v, err := c.Decode(id, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return json.Marshal(v)
}

// FromJSON parses JSON text and packs it as the named entry.
func (c *Converter) FromJSON(name string, text []byte) ([]byte, error) {
	id, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	v, err := Parse(text)
	if err != nil {
		return nil, err
	}
	out, err := c.Encode(id, v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return out, nil
}

// IsEmptyContainer reports whether v would be stored as the canonical empty
// container (offset 0) when embedded as id.
func (c *Converter) IsEmptyContainer(id compiled.TypeID, v any) (bool, error) {
	id = c.s.Resolve(id)
	t := c.s.Type(id)
	switch t.Kind {
	case compiled.KindList:
		items, ok := v.([]any)
		if !ok {
			return false, fmt.Errorf("%w: expected array, got %T", ErrTypeMismatch, v)
		}
		return len(items) == 0, nil
	case compiled.KindCustom:
		return c.s.Custom().Handler(t.Handler).IsEmptyContainer(c, t.Elem, v)
	}
	return false, nil
}

// isContainer reports whether id can be encoded as an empty container.
func (c *Converter) isContainer(id compiled.TypeID) bool {
	t := c.s.Type(c.s.Resolve(id))
	switch t.Kind {
	case compiled.KindList:
		return true
	case compiled.KindCustom:
		return c.s.Type(c.s.Resolve(t.Elem)).Kind == compiled.KindList
	}
	return false
}
