// Package compat decides whether two schema versions can exchange data.
package compat

import (
	"fmt"
	"strings"

	logs "github.com/danmuck/fracpack/internal/logging"
	"github.com/danmuck/fracpack/internal/schema"
)

type pair struct {
	l, r *schema.AnyType
}

// Matcher compares types of a left (older) schema against a right (newer)
// schema, accumulating the differences it finds. A Matcher remembers pairs
// it has already compared, so repeated calls share work.
type Matcher struct {
	l, r    *schema.Schema
	allowed Difference
	lstack  map[*schema.AnyType]int
	rstack  map[*schema.AnyType]int
	known   map[pair]struct{}
	diff    Difference
	path    []string
	reason  string
}

func NewMatcher(l, r *schema.Schema, allowed Difference) *Matcher {
	return &Matcher{
		l:       l,
		r:       r,
		allowed: allowed,
		lstack:  make(map[*schema.AnyType]int),
		rstack:  make(map[*schema.AnyType]int),
		known:   make(map[pair]struct{}),
	}
}

// Match reports whether lhs and rhs are structurally compatible and every
// difference seen so far is allowed.
func (m *Matcher) Match(lhs, rhs *schema.AnyType) bool {
	if !m.match(lhs, rhs) {
		return false
	}
	if !m.diff.Within(m.allowed) {
		m.fail("difference %s not allowed", m.diff)
		return false
	}
	return true
}

// Difference is the union of the changes found by all calls to Match.
func (m *Matcher) Difference() Difference {
	return m.diff
}

// Reason describes the first mismatch, with the member path leading to it.
func (m *Matcher) Reason() string {
	return m.reason
}

func (m *Matcher) fail(format string, args ...any) {
	if m.reason != "" {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if len(m.path) > 0 {
		msg = strings.Join(m.path, ".") + ": " + msg
	}
	m.reason = msg
}

// resolveAll strips Custom wrappers and named references.
func resolveAll(s *schema.Schema, t *schema.AnyType) *schema.AnyType {
	for i := 0; t != nil && i <= s.Len()+1; {
		switch t.Kind {
		case schema.KindCustom:
			t = t.Elem
		case schema.KindType:
			next, ok := s.Get(t.Name)
			if !ok {
				return nil
			}
			t = next
			i++
		default:
			return t
		}
	}
	return nil
}

func isOptional(s *schema.Schema, t *schema.AnyType) bool {
	r := resolveAll(s, t)
	return r != nil && r.Kind == schema.KindOption
}

func (m *Matcher) match(lhs, rhs *schema.AnyType) bool {
	pl := resolveAll(m.l, lhs)
	pr := resolveAll(m.r, rhs)
	if pl == nil || pr == nil {
		m.fail("unresolved type")
		return false
	}
	ld, lok := m.lstack[pl]
	rd, rok := m.rstack[pr]
	switch {
	case lok && rok:
		if ld != rd {
			m.fail("recursion depth differs")
			return false
		}
	case lok || rok:
		m.fail("recursive on one side only")
		return false
	}
	key := pair{pl, pr}
	if _, ok := m.known[key]; ok {
		return true
	}
	m.known[key] = struct{}{}

	depth := len(m.lstack)
	m.lstack[pl] = depth
	m.rstack[pr] = depth
	ok := m.compare(pl, pr)
	delete(m.lstack, pl)
	delete(m.rstack, pr)
	if !ok {
		delete(m.known, key)
	}
	return ok
}

func (m *Matcher) compare(l, r *schema.AnyType) bool {
	switch {
	case record(l) && record(r) && (l.Kind == schema.KindStruct) == (r.Kind == schema.KindStruct):
		return m.matchFields(fieldsOf(l), fieldsOf(r))
	case l.Kind == schema.KindVariant && r.Kind == schema.KindVariant:
		return m.matchAlternatives(l.Members, r.Members)
	case l.Kind == schema.KindArray && r.Kind == schema.KindArray:
		if l.Len != r.Len {
			m.fail("array length %d vs %d", l.Len, r.Len)
			return false
		}
		return m.match(l.Elem, r.Elem)
	case l.Kind == r.Kind && (l.Kind == schema.KindList || l.Kind == schema.KindOption || l.Kind == schema.KindFracPack):
		return m.match(l.Elem, r.Elem)
	case l.Kind == schema.KindInt && r.Kind == schema.KindInt:
		if l.Bits != r.Bits || (l.Bits != 8 && l.Signed != r.Signed) {
			m.fail("%s vs %s", intName(l), intName(r))
			return false
		}
		return true
	case l.Kind == schema.KindFloat && r.Kind == schema.KindFloat:
		if l.Exp != r.Exp || l.Mantissa != r.Mantissa {
			m.fail("float(%d,%d) vs float(%d,%d)", l.Exp, l.Mantissa, r.Exp, r.Mantissa)
			return false
		}
		return true
	case l.Kind == schema.KindFracPack && r.Kind == schema.KindList:
		m.diff |= AddAlternative
		return m.isByte(m.r, r.Elem)
	case l.Kind == schema.KindList && r.Kind == schema.KindFracPack:
		m.diff |= DropAlternative
		return m.isByte(m.l, l.Elem)
	}
	m.fail("%s vs %s", l.Kind, r.Kind)
	return false
}

func (m *Matcher) isByte(s *schema.Schema, t *schema.AnyType) bool {
	e := resolveAll(s, t)
	if e == nil || e.Kind != schema.KindInt || e.Bits != 8 {
		m.fail("nested data vs list of non-bytes")
		return false
	}
	return true
}

func record(t *schema.AnyType) bool {
	switch t.Kind {
	case schema.KindStruct, schema.KindObject, schema.KindTuple:
		return true
	}
	return false
}

type field struct {
	name string
	t    *schema.AnyType
}

func fieldsOf(t *schema.AnyType) []field {
	if t.Kind == schema.KindTuple {
		out := make([]field, len(t.Elems))
		for i, e := range t.Elems {
			out[i] = field{name: fmt.Sprintf("%d", i), t: e}
		}
		return out
	}
	out := make([]field, len(t.Members))
	for i, mem := range t.Members {
		out[i] = field{name: mem.Name, t: mem.Type}
	}
	return out
}

func intName(t *schema.AnyType) string {
	if t.Signed {
		return fmt.Sprintf("i%d", t.Bits)
	}
	return fmt.Sprintf("u%d", t.Bits)
}

// matchFields compares members by position. Members present on one side
// only must be optional.
func (m *Matcher) matchFields(l, r []field) bool {
	n := max(len(l), len(r))
	for i := 0; i < n; i++ {
		switch {
		case i >= len(l):
			if !isOptional(m.r, r[i].t) {
				m.fail("added field %s is not optional", r[i].name)
				return false
			}
		case i >= len(r):
			if !isOptional(m.l, l[i].t) {
				m.fail("dropped field %s is not optional", l[i].name)
				return false
			}
		default:
			m.path = append(m.path, l[i].name)
			ok := m.match(l[i].t, r[i].t)
			m.path = m.path[:len(m.path)-1]
			if !ok {
				return false
			}
		}
	}
	switch {
	case len(l) > len(r):
		m.diff |= DropField
	case len(l) < len(r):
		m.diff |= AddField
	}
	return true
}

func (m *Matcher) matchAlternatives(l, r []schema.Member) bool {
	n := min(len(l), len(r))
	for i := 0; i < n; i++ {
		m.path = append(m.path, l[i].Name)
		ok := m.match(l[i].Type, r[i].Type)
		m.path = m.path[:len(m.path)-1]
		if !ok {
			return false
		}
	}
	switch {
	case len(l) < len(r):
		m.diff |= AddAlternative
	case len(l) > len(r):
		m.diff |= DropAlternative
	}
	return true
}

// Pair names a type of the old schema and its counterpart in the new one.
type Pair struct {
	Old, New *schema.AnyType
}

// Compare matches every pair and returns the accumulated difference, or
// Incompatible if any pair fails to match structurally.
func Compare(older, newer *schema.Schema, pairs []Pair) Difference {
	m := NewMatcher(older, newer, Incompatible)
	for _, p := range pairs {
		if !m.match(p.Old, p.New) {
			logs.Debugf("compat.Compare mismatch reason=%q", m.Reason())
			return Incompatible
		}
	}
	return m.diff
}

// CompareSchemas compares every entry of older with the entry of the same
// name in newer. Entries missing from newer make the schemas incompatible;
// entries only in newer are ignored.
func CompareSchemas(older, newer *schema.Schema) Difference {
	d, _ := Explain(older, newer)
	return d
}

// Explain is CompareSchemas that also describes the first mismatch.
func Explain(older, newer *schema.Schema) (Difference, string) {
	m := NewMatcher(older, newer, Incompatible)
	for _, name := range older.Names() {
		lt, _ := older.Get(name)
		rt, ok := newer.Get(name)
		if !ok {
			return Incompatible, fmt.Sprintf("%s: missing from new schema", name)
		}
		m.path = append(m.path[:0], name)
		if !m.match(lt, rt) {
			logs.Debugf("compat.CompareSchemas mismatch type=%s reason=%q", name, m.Reason())
			return Incompatible, m.Reason()
		}
	}
	return m.diff, ""
}

// Matches reports whether newer can replace older with only the allowed
// differences.
func Matches(older, newer *schema.Schema, allowed Difference) bool {
	d := CompareSchemas(older, newer)
	return d != Incompatible && d.Within(allowed)
}
