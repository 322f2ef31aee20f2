package schema

import (
	"fmt"
)

// Schema is an insertion-ordered set of named types.
type Schema struct {
	names []string
	types map[string]*AnyType
}

func New() *Schema {
	return &Schema{types: make(map[string]*AnyType)}
}

// Insert adds or replaces the entry called name. Replacing keeps the
// original position.
func (s *Schema) Insert(name string, t *AnyType) {
	if _, ok := s.types[name]; !ok {
		s.names = append(s.names, name)
	}
	s.types[name] = t
}

func (s *Schema) Get(name string) (*AnyType, bool) {
	t, ok := s.types[name]
	return t, ok
}

func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *Schema) Len() int {
	return len(s.names)
}

// Clone deep-copies every entry.
func (s *Schema) Clone() *Schema {
	out := New()
	for _, name := range s.names {
		out.Insert(name, s.types[name].Clone())
	}
	return out
}

// Resolve follows Type references until it reaches a concrete node.
func (s *Schema) Resolve(t *AnyType) (*AnyType, error) {
	seen := 0
	for t != nil && t.Kind == KindType {
		next, ok := s.types[t.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, t.Name)
		}
		seen++
		if seen > len(s.names) {
			return nil, fmt.Errorf("%w: %s", ErrAliasCycle, t.Name)
		}
		t = next
	}
	return t, nil
}

// Validate checks that every reference resolves and that no entry is a pure
// alias cycle.
func (s *Schema) Validate() error {
	for _, name := range s.names {
		t := s.types[name]
		if t == nil {
			return fmt.Errorf("%w: %s has no definition", ErrInvalidSchema, name)
		}
		if _, err := s.Resolve(t); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		err := t.VisitRefs(func(ref *AnyType) error {
			_, err := s.Resolve(ref)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
