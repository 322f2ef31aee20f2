package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/fracpack/internal/fracpack"
)

// Provider lets a Go type describe its own fracpack schema. Implementations
// register referenced types through the builder so recursion and sharing are
// handled uniformly.
type Provider interface {
	FracSchema(b *Builder) *AnyType
}

var (
	providerIface = reflect.TypeOf((*Provider)(nil)).Elem()
	hexType       = reflect.TypeOf(fracpack.Hex(nil))
	timeType      = reflect.TypeOf(time.Time{})
)

// Builder collects the schema of a set of Go types. Each distinct type is
// expanded once under a placeholder name; Build then picks final names and
// inlines single-use types. A Builder is not safe for concurrent use.
type Builder struct {
	entries *Schema
	ids     map[reflect.Type]string
	hosts   map[string]string // placeholder -> Go type name
	next    int
	err     error
}

func NewBuilder() *Builder {
	return &Builder{
		entries: New(),
		ids:     make(map[reflect.Type]string),
		hosts:   make(map[string]string),
	}
}

// Insert registers t and returns a reference to it. Errors are sticky and
// reported by Build.
func (b *Builder) Insert(t reflect.Type) *AnyType {
	if id, ok := b.ids[t]; ok {
		return Ref(id)
	}
	id := "@" + strconv.Itoa(b.next)
	b.next++
	b.ids[t] = id
	if name := hostName(t); name != "" {
		b.hosts[id] = name
	}
	ty, err := b.expand(t)
	if err != nil {
		b.fail(fmt.Errorf("%s: %w", t, err))
		ty = Tuple()
	}
	b.entries.Insert(id, ty)
	return Ref(id)
}

// InsertNamed registers t under a human-readable name. Naming the same type
// twice makes the later names aliases of the first.
func (b *Builder) InsertNamed(name string, t reflect.Type) *AnyType {
	if strings.HasPrefix(name, "@") || name == "" {
		b.fail(fmt.Errorf("%w: invalid name %q", ErrInvalidSchema, name))
		return Ref(name)
	}
	ref := b.Insert(t)
	if existing, ok := b.entries.Get(name); ok && !Equal(existing, ref) {
		b.fail(fmt.Errorf("%w: %s", ErrDuplicateName, name))
		return Ref(name)
	}
	b.entries.Insert(name, ref)
	return Ref(name)
}

// InsertValue is InsertNamed for the dynamic type of v.
func (b *Builder) InsertValue(name string, v any) *AnyType {
	return b.InsertNamed(name, reflect.TypeOf(v))
}

func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) expand(t reflect.Type) (*AnyType, error) {
	if t.Implements(providerIface) {
		return reflect.Zero(t).Interface().(Provider).FracSchema(b), nil
	}
	if reflect.PointerTo(t).Implements(providerIface) {
		return reflect.New(t).Interface().(Provider).FracSchema(b), nil
	}
	switch t {
	case timeType:
		return TimeMicros(), nil
	case hexType:
		return HexBytes(), nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return Bool(), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(uint32(t.Size()*8), true), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Int(uint32(t.Size()*8), false), nil
	case reflect.Float32:
		return F32(), nil
	case reflect.Float64:
		return F64(), nil
	case reflect.String:
		return String(), nil
	case reflect.Slice:
		return List(b.Insert(t.Elem())), nil
	case reflect.Array:
		return Array(b.Insert(t.Elem()), uint32(t.Len())), nil
	case reflect.Pointer:
		return Option(b.Insert(t.Elem())), nil
	case reflect.Map:
		return Custom(List(Object(
			M("key", b.Insert(t.Key())),
			M("value", b.Insert(t.Elem())),
		)), "map"), nil
	case reflect.Struct:
		if fracpack.IsNested(t) {
			return FracPack(b.Insert(t.Field(0).Type)), nil
		}
		return b.expandStruct(t)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t.Kind())
	}
}

func (b *Builder) expandStruct(t reflect.Type) (*AnyType, error) {
	shape, fields, err := fracpack.Describe(t)
	if err != nil {
		return nil, err
	}
	if shape == fracpack.ShapeTuple {
		elems := make([]*AnyType, len(fields))
		for i, f := range fields {
			elems[i] = b.Insert(f.Type)
		}
		return Tuple(elems...), nil
	}
	members := make([]Member, len(fields))
	for i, f := range fields {
		members[i] = M(f.Name, b.Insert(f.Type))
	}
	switch shape {
	case fracpack.ShapeStruct:
		return Struct(members...), nil
	case fracpack.ShapeVariant:
		return Variant(members...), nil
	default:
		return Object(members...), nil
	}
}

// hostName is the name a defined Go type contributes when its schema entry
// cannot be inlined. Predeclared and special-cased types contribute nothing.
func hostName(t reflect.Type) string {
	if t.PkgPath() == "" || t.Name() == "" || t == timeType || t == hexType {
		return ""
	}
	name, _, _ := strings.Cut(t.Name(), "[")
	return name
}

type useInfo struct {
	original  string
	names     []string
	host      string
	uses      int
	recursive bool
}

func (u *useInfo) addName(name string) {
	for _, n := range u.names {
		if n == name {
			return
		}
	}
	u.names = append(u.names, name)
}

// inline reports whether every use of the type is replaced by its body.
// Unnamed types used once are inlined, and so are unnamed anonymous types
// used more than once. A type that closes a cycle always keeps a name.
func (u *useInfo) inline() bool {
	return len(u.names) == 0 && !u.recursive && (u.uses <= 1 || u.host == "")
}

// Build produces the finished schema. Types in ext (for example the
// argument and result types of an interface) are rewritten in place to refer
// to the finished entries, and count as uses.
func (b *Builder) Build(ext ...*AnyType) (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}
	src := b.entries
	aliases := make(map[string]*useInfo)
	var infos []*useInfo

	for _, name := range src.names {
		var names []string
		cur := name
		t := src.types[name]
		for hops := 0; t.Kind == KindType; hops++ {
			if hops > len(src.names) {
				return nil, fmt.Errorf("%w: %s", ErrAliasCycle, name)
			}
			if !strings.HasPrefix(cur, "@") {
				names = append(names, cur)
			}
			next, ok := src.types[t.Name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownType, t.Name)
			}
			cur, t = t.Name, next
		}
		if !strings.HasPrefix(cur, "@") {
			names = append(names, cur)
		}
		info, ok := aliases[cur]
		if !ok {
			info = &useInfo{original: cur, host: b.hosts[cur]}
			infos = append(infos, info)
			aliases[cur] = info
		}
		for _, n := range names {
			info.addName(n)
		}
		aliases[name] = info
	}

	countRef := func(ref *AnyType) error {
		if info, ok := aliases[ref.Name]; ok {
			info.uses++
		}
		return nil
	}
	for _, t := range ext {
		_ = t.VisitRefs(countRef)
	}
	for _, name := range src.names {
		if t := src.types[name]; t.Kind != KindType {
			_ = t.VisitRefs(countRef)
		}
	}

	markCycles(src, aliases, infos)

	taken := make(map[string]bool)
	for _, info := range infos {
		for _, n := range info.names {
			taken[n] = true
		}
	}
	for _, info := range infos {
		if len(info.names) == 0 && !info.inline() {
			base := info.host
			if base == "" {
				base = "Type"
			}
			info.names = []string{uniqueName(base, taken)}
		}
	}

	rw := &rewriter{src: src, aliases: aliases, active: make(map[string]bool)}
	for _, t := range ext {
		if err := rw.rewrite(t); err != nil {
			return nil, err
		}
	}
	out := New()
	for _, name := range src.names {
		t := src.types[name]
		if t.Kind == KindType {
			continue
		}
		info := aliases[name]
		if info.inline() {
			continue
		}
		body := t.Clone()
		if err := rw.rewrite(body); err != nil {
			return nil, err
		}
		out.Insert(info.names[0], body)
		for _, alt := range info.names[1:] {
			out.Insert(alt, Ref(info.names[0]))
		}
	}
	return out, nil
}

// markCycles makes sure every reference cycle keeps at least one named
// entry. When a cycle has no name yet, the first member with a Go type name
// is chosen, falling back to the entry that closes the cycle.
func markCycles(src *Schema, aliases map[string]*useInfo, infos []*useInfo) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var stack []string
	breakCycle := func(target string) {
		i := len(stack) - 1
		for i > 0 && stack[i] != target {
			i--
		}
		for _, name := range stack[i:] {
			if info := aliases[name]; len(info.names) > 0 || info.recursive {
				return
			}
		}
		for _, name := range stack[i:] {
			if info := aliases[name]; info.host != "" {
				info.recursive = true
				return
			}
		}
		aliases[target].recursive = true
	}
	var visit func(name string)
	visit = func(name string) {
		state[name] = visiting
		stack = append(stack, name)
		_ = src.types[name].VisitRefs(func(ref *AnyType) error {
			info, ok := aliases[ref.Name]
			if !ok {
				return nil
			}
			switch state[info.original] {
			case unvisited:
				visit(info.original)
			case visiting:
				breakCycle(info.original)
			}
			return nil
		})
		stack = stack[:len(stack)-1]
		state[name] = done
	}
	for _, info := range infos {
		if state[info.original] == unvisited {
			visit(info.original)
		}
	}
}

func uniqueName(base string, taken map[string]bool) string {
	name := base
	for i := 2; taken[name]; i++ {
		name = base + "_" + strconv.Itoa(i)
	}
	taken[name] = true
	return name
}

type rewriter struct {
	src     *Schema
	aliases map[string]*useInfo
	active  map[string]bool
}

func (rw *rewriter) rewrite(t *AnyType) error {
	return t.VisitRefs(func(ref *AnyType) error {
		if !strings.HasPrefix(ref.Name, "@") {
			return nil
		}
		info, ok := rw.aliases[ref.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownType, ref.Name)
		}
		if !info.inline() {
			*ref = AnyType{Kind: KindType, Name: info.names[0]}
			return nil
		}
		if rw.active[info.original] {
			return fmt.Errorf("%w: %s", ErrRecursiveInline, info.original)
		}
		rw.active[info.original] = true
		body := rw.src.types[info.original].Clone()
		err := rw.rewrite(body)
		delete(rw.active, info.original)
		if err != nil {
			return err
		}
		*ref = *body
		return nil
	})
}
