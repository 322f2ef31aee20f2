package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/danmuck/fracpack/internal/compat"
	"github.com/danmuck/fracpack/internal/compiled"
	"github.com/danmuck/fracpack/internal/fracjson"
	"github.com/danmuck/fracpack/internal/schema"
)

var errNotAllowed = errors.New("difference not allowed")

// codecFlags are shared by the commands that run data through one type.
type codecFlags struct {
	schema string
	typ    string
	input  string
	hex    bool
	strict bool
}

func (f *codecFlags) bind(fs *pflag.FlagSet, withStrict bool) {
	fs.StringVarP(&f.schema, "schema", "s", "", "schema document (.json, .jsonc, .yaml)")
	fs.StringVarP(&f.typ, "type", "t", "", "type name within the schema")
	fs.StringVarP(&f.input, "input", "i", "-", "input file, - for stdin")
	fs.BoolVar(&f.hex, "hex", false, "binary data is hex text")
	if withStrict {
		fs.BoolVar(&f.strict, "strict", false, "reject unknown extension data")
	}
}

func (f *codecFlags) converter() (*fracjson.Converter, compiled.TypeID, error) {
	if f.schema == "" || f.typ == "" {
		return nil, 0, fmt.Errorf("%w: --schema and --type are required", errUsage)
	}
	src, err := schema.LoadFile(f.schema)
	if err != nil {
		return nil, 0, err
	}
	cs, err := compiled.Compile(src, fracjson.StandardTypes())
	if err != nil {
		return nil, 0, err
	}
	id, ok := cs.Lookup(f.typ)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", fracjson.ErrUnknownType, f.typ)
	}
	return fracjson.New(cs), id, nil
}

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet("fracctl "+name, pflag.ContinueOnError)
}

func parse(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", errUsage, err)
	}
	return true, nil
}

func readInput(e *env, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(e.in)
	}
	return os.ReadFile(path)
}

// readData reads binary input, or hex text with --hex.
func readData(e *env, f *codecFlags) ([]byte, error) {
	raw, err := readInput(e, f.input)
	if err != nil {
		return nil, err
	}
	if !f.hex {
		return raw, nil
	}
	text := strings.Join(strings.Fields(string(raw)), "")
	return hex.DecodeString(strings.TrimPrefix(text, "0x"))
}

func runPack(e *env, args []string) error {
	var f codecFlags
	fs := newFlags("pack")
	f.bind(fs, false)
	if ok, err := parse(fs, args); !ok {
		return err
	}
	conv, id, err := f.converter()
	if err != nil {
		return err
	}
	text, err := readInput(e, f.input)
	if err != nil {
		return err
	}
	value, err := fracjson.Parse(text)
	if err != nil {
		return err
	}
	data, err := conv.Encode(id, value)
	if err != nil {
		return err
	}
	if f.hex {
		_, err = fmt.Fprintln(e.out, strings.ToUpper(hex.EncodeToString(data)))
		return err
	}
	_, err = e.out.Write(data)
	return err
}

func runUnpack(e *env, args []string) error {
	var f codecFlags
	fs := newFlags("unpack")
	f.bind(fs, true)
	if ok, err := parse(fs, args); !ok {
		return err
	}
	conv, id, err := f.converter()
	if err != nil {
		return err
	}
	data, err := readData(e, &f)
	if err != nil {
		return err
	}
	decode := conv.Decode
	if f.strict {
		decode = conv.DecodeStrict
	}
	value, err := decode(id, data)
	if err != nil {
		return err
	}
	text, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return writeJSON(e, text)
}

func runVerify(e *env, args []string) error {
	var f codecFlags
	fs := newFlags("verify")
	f.bind(fs, true)
	if ok, err := parse(fs, args); !ok {
		return err
	}
	conv, id, err := f.converter()
	if err != nil {
		return err
	}
	data, err := readData(e, &f)
	if err != nil {
		return err
	}
	if f.strict {
		err = conv.VerifyStrict(id, data)
	} else {
		err = conv.Verify(id, data)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.out, "ok")
	return err
}

func runCompat(e *env, args []string) error {
	fs := newFlags("compat")
	older := fs.String("old", "", "schema document currently in use")
	newer := fs.String("new", "", "candidate schema document")
	allow := fs.String("allow", "upgrade", "allowed differences, e.g. addField,addAlternative")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	if *older == "" || *newer == "" {
		return fmt.Errorf("%w: --old and --new are required", errUsage)
	}
	allowed, err := compat.ParseDifference(*allow)
	if err != nil {
		return err
	}
	l, err := schema.LoadFile(*older)
	if err != nil {
		return err
	}
	r, err := schema.LoadFile(*newer)
	if err != nil {
		return err
	}
	diff, reason := compat.Explain(l, r)
	fmt.Fprintf(e.out, "difference: %s\n", diff)
	if reason != "" {
		fmt.Fprintf(e.out, "reason: %s\n", reason)
	}
	if diff == compat.Incompatible || !diff.Within(allowed) {
		return fmt.Errorf("%w: %s outside %s", errNotAllowed, diff, allowed)
	}
	return nil
}

func runHash(e *env, args []string) error {
	fs := newFlags("hash")
	path := fs.StringP("schema", "s", "", "schema document")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	if *path == "" {
		return fmt.Errorf("%w: --schema is required", errUsage)
	}
	s, err := schema.LoadFile(*path)
	if err != nil {
		return err
	}
	sum, err := s.FingerprintHex()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.out, sum)
	return err
}

func runFmt(e *env, args []string) error {
	fs := newFlags("fmt")
	path := fs.StringP("schema", "s", "", "schema document")
	format := fs.StringP("format", "f", "json", "output format: json|yaml")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	if *path == "" {
		return fmt.Errorf("%w: --schema is required", errUsage)
	}
	s, err := schema.LoadFile(*path)
	if err != nil {
		return err
	}
	text, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	switch *format {
	case "json":
		return writeJSON(e, text)
	case "yaml":
		var node yaml.Node
		if err := yaml.Unmarshal(text, &node); err != nil {
			return err
		}
		blockStyle(&node)
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(&node); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		return write(e, buf.String(), "yaml")
	default:
		return fmt.Errorf("%w: unknown format %q", errUsage, *format)
	}
}

// blockStyle drops the flow and quoting styles a JSON document carries so
// the YAML encoder emits block mappings.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
