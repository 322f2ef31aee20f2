// Package registry stores versioned schemas under names and only accepts a
// new version when it stays compatible with the previous one.
package registry

import (
	"fmt"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/danmuck/fracpack/internal/compat"
	"github.com/danmuck/fracpack/internal/compiled"
	"github.com/danmuck/fracpack/internal/fracjson"
	logs "github.com/danmuck/fracpack/internal/logging"
	"github.com/danmuck/fracpack/internal/observability"
	"github.com/danmuck/fracpack/internal/schema"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Entry is one stored schema version. Entries are immutable.
type Entry struct {
	Name        string
	Version     int
	Schema      *schema.Schema
	Compiled    *compiled.Schema
	Fingerprint [32]byte
	// Diff is the difference from the previous version.
	Diff    compat.Difference
	Created time.Time

	conv *fracjson.Converter
}

// Converter returns the JSON bridge for this version.
func (e *Entry) Converter() *fracjson.Converter {
	return e.conv
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	custom  *compiled.CustomTypes
	policy  compat.Difference
	entries map[string][]*Entry
	now     func() time.Time
}

// New creates an empty registry. custom is the handler table every version
// is compiled against; nil selects fracjson.StandardTypes. policy is the set
// of differences allowed between consecutive versions.
func New(custom *compiled.CustomTypes, policy compat.Difference) *Registry {
	if custom == nil {
		custom = fracjson.StandardTypes()
	}
	return &Registry{
		custom:  custom,
		policy:  policy,
		entries: make(map[string][]*Entry),
		now:     time.Now,
	}
}

func (r *Registry) Policy() compat.Difference {
	return r.policy
}

func (r *Registry) build(name string, s *schema.Schema) (*Entry, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	cs, err := compiled.Compile(s, r.custom)
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", name, err)
	}
	fp, err := s.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", name, err)
	}
	return &Entry{
		Name:        name,
		Schema:      s,
		Compiled:    cs,
		Fingerprint: fp,
		conv:        fracjson.New(cs),
	}, nil
}

// check compares candidate against the latest version. The caller holds mu.
func (r *Registry) check(name string, candidate *schema.Schema) (compat.Difference, error) {
	versions := r.entries[name]
	if len(versions) == 0 {
		return compat.Equivalent, nil
	}
	latest := versions[len(versions)-1]
	diff, reason := compat.Explain(latest.Schema, candidate)
	if diff == compat.Incompatible || !diff.Within(r.policy) {
		return diff, &IncompatibleError{
			Name:    name,
			Version: latest.Version,
			Diff:    diff,
			Allowed: r.policy,
			Reason:  reason,
		}
	}
	return diff, nil
}

// Check reports how candidate differs from the latest version of name
// without storing it.
func (r *Registry) Check(name string, candidate *schema.Schema) (compat.Difference, error) {
	if err := candidate.Validate(); err != nil {
		return compat.Incompatible, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.check(name, candidate)
}

// Register stores s as the next version of name. Registering a schema
// identical to the latest version returns the existing entry.
func (r *Registry) Register(name string, s *schema.Schema) (*Entry, error) {
	entry, err := r.build(name, s)
	if err != nil {
		observability.RecordRegistration(name, "invalid", 0)
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.entries[name]
	if n := len(versions); n > 0 && versions[n-1].Fingerprint == entry.Fingerprint {
		observability.RecordRegistration(name, "unchanged", n)
		return versions[n-1], nil
	}
	diff, err := r.check(name, s)
	if err != nil {
		observability.RecordRegistration(name, "incompatible", len(versions))
		logs.Warnf("registry.Register rejected name=%s err=%v", name, err)
		return nil, err
	}
	entry.Version = len(versions) + 1
	entry.Diff = diff
	entry.Created = r.now().UTC().Truncate(time.Microsecond)
	r.entries[name] = append(versions, entry)
	observability.RecordRegistration(name, "created", entry.Version)
	logs.Infof("registry.Register name=%s version=%d diff=%s types=%d", name, entry.Version, diff, s.Len())
	return entry, nil
}

func (r *Registry) Latest(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.entries[name]
	if len(versions) == 0 {
		return nil, false
	}
	return versions[len(versions)-1], true
}

// Version returns the given 1-based version of name.
func (r *Registry) Version(name string, version int) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.entries[name]
	if version < 1 || version > len(versions) {
		return nil, false
	}
	return versions[version-1], true
}

// Names lists registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entries returns every version of name, oldest first.
func (r *Registry) Entries(name string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries[name])
}
