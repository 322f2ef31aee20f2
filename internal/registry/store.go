package registry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/danmuck/fracpack/internal/compat"
	logs "github.com/danmuck/fracpack/internal/logging"
	"github.com/danmuck/fracpack/internal/schema"
)

const snapshotFormat = 1

// encMode uses Core Deterministic Encoding so equal registries produce
// identical snapshots.
var (
	encMode     cbor.EncMode
	decMode     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("registry: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("registry: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("registry: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("registry: zstd decoder initialization failed: " + err.Error())
	}
}

type snapshot struct {
	Format  int             `cbor:"1,keyasint"`
	Policy  string          `cbor:"2,keyasint"`
	Entries []snapshotEntry `cbor:"3,keyasint"`
}

type snapshotEntry struct {
	Name        string `cbor:"1,keyasint"`
	Version     int    `cbor:"2,keyasint"`
	Created     int64  `cbor:"3,keyasint"`
	Schema      []byte `cbor:"4,keyasint"`
	Fingerprint []byte `cbor:"5,keyasint"`
}

// Save writes every stored version as a zstd-compressed CBOR snapshot.
func (r *Registry) Save(w io.Writer) error {
	r.mu.RLock()
	snap := snapshot{Format: snapshotFormat, Policy: r.policy.String()}
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for _, e := range r.entries[name] {
			doc, err := e.Schema.MarshalJSON()
			if err != nil {
				r.mu.RUnlock()
				return fmt.Errorf("registry: save %s v%d: %w", name, e.Version, err)
			}
			snap.Entries = append(snap.Entries, snapshotEntry{
				Name:        name,
				Version:     e.Version,
				Created:     e.Created.UnixMicro(),
				Schema:      doc,
				Fingerprint: e.Fingerprint[:],
			})
		}
	}
	r.mu.RUnlock()

	data, err := encMode.Marshal(snap)
	if err != nil {
		return fmt.Errorf("registry: save: %w", err)
	}
	if _, err := w.Write(zstdEncoder.EncodeAll(data, nil)); err != nil {
		return fmt.Errorf("registry: save: %w", err)
	}
	logs.Debugf("registry.Save entries=%d bytes=%d", len(snap.Entries), len(data))
	return nil
}

// Load replaces the registry contents with a snapshot written by Save.
// Stored versions are recompiled against this registry's handlers; the
// snapshot policy is informational.
func (r *Registry) Load(rd io.Reader) error {
	compressed, err := io.ReadAll(rd)
	if err != nil {
		return fmt.Errorf("registry: load: %w", err)
	}
	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	var snap snapshot
	if err := decMode.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	if snap.Format != snapshotFormat {
		return fmt.Errorf("%w: format %d", ErrSnapshot, snap.Format)
	}

	entries := make(map[string][]*Entry)
	for _, se := range snap.Entries {
		s := schema.New()
		if err := s.UnmarshalJSON(se.Schema); err != nil {
			return fmt.Errorf("%w: %s v%d: %v", ErrSnapshot, se.Name, se.Version, err)
		}
		e, err := r.build(se.Name, s)
		if err != nil {
			return fmt.Errorf("%w: %s v%d: %v", ErrSnapshot, se.Name, se.Version, err)
		}
		if string(e.Fingerprint[:]) != string(se.Fingerprint) {
			return fmt.Errorf("%w: %s v%d: fingerprint mismatch", ErrSnapshot, se.Name, se.Version)
		}
		prev := entries[se.Name]
		if se.Version != len(prev)+1 {
			return fmt.Errorf("%w: %s: version %d out of order", ErrSnapshot, se.Name, se.Version)
		}
		e.Version = se.Version
		e.Created = time.UnixMicro(se.Created).UTC()
		if len(prev) > 0 {
			e.Diff = compat.CompareSchemas(prev[len(prev)-1].Schema, s)
		}
		entries[se.Name] = append(prev, e)
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	logs.Infof("registry.Load names=%d entries=%d", len(entries), len(snap.Entries))
	return nil
}

// SaveFile writes a snapshot atomically through a temporary file.
func (r *Registry) SaveFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("registry: save: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := r.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("registry: save: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("registry: load: %w", err)
	}
	defer f.Close()
	return r.Load(f)
}

type dirFile struct {
	path    string
	name    string
	version int
}

// splitStem reads "name" or "name@N" from a file stem.
func splitStem(stem string) (string, int) {
	name, ver, ok := strings.Cut(stem, "@")
	if !ok {
		return stem, 0
	}
	n, err := strconv.Atoi(ver)
	if err != nil {
		return stem, 0
	}
	return name, n
}

// LoadDir registers every schema file in dir. The file stem is the schema
// name; files named "name@N" are registered as successive versions of name
// in order of N. It returns the number of files registered.
func (r *Registry) LoadDir(dir string) (int, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("registry: load dir: %w", err)
	}
	var files []dirFile
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		if _, ok := schema.FormatOf(item.Name()); !ok {
			continue
		}
		stem := strings.TrimSuffix(item.Name(), filepath.Ext(item.Name()))
		name, version := splitStem(stem)
		files = append(files, dirFile{path: filepath.Join(dir, item.Name()), name: name, version: version})
	}
	slices.SortFunc(files, func(a, b dirFile) int {
		if c := strings.Compare(a.name, b.name); c != 0 {
			return c
		}
		return a.version - b.version
	})
	for i, f := range files {
		s, err := schema.LoadFile(f.path)
		if err != nil {
			return i, err
		}
		if _, err := r.Register(f.name, s); err != nil {
			return i, fmt.Errorf("%s: %w", f.path, err)
		}
	}
	logs.Infof("registry.LoadDir dir=%s files=%d", dir, len(files))
	return len(files), nil
}
