package fracjson

import (
	"bytes"
	"encoding/hex"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/fracpack/internal/compiled"
	"github.com/danmuck/fracpack/internal/fracpack"
	"github.com/danmuck/fracpack/internal/schema"
	"github.com/danmuck/fracpack/internal/testutil/testlog"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("decode hex %q: %v", s, err)
	}
	return b
}

func upperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// converter compiles a schema holding a single entry named "T".
func converter(t *testing.T, ty *schema.AnyType) *Converter {
	t.Helper()
	s := schema.New()
	s.Insert("T", ty)
	cs, err := compiled.Compile(s, StandardTypes())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return New(cs)
}

func fromJSON(t *testing.T, c *Converter, text string) string {
	t.Helper()
	out, err := c.FromJSON("T", []byte(text))
	if err != nil {
		t.Fatalf("from json %s: %v", text, err)
	}
	return upperHex(out)
}

func toJSON(t *testing.T, c *Converter, hexText string) string {
	t.Helper()
	out, err := c.ToJSON("T", mustHex(t, hexText))
	if err != nil {
		t.Fatalf("to json %s: %v", hexText, err)
	}
	return string(out)
}

func TestVectors(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name string
		ty   *schema.AnyType
		json string
		hex  string
	}{
		{"object", schema.Object(schema.M("x", schema.U32())), `{"x":42}`, "04002A000000"},
		{"trailing none elided", schema.Object(schema.M("x", schema.U32()), schema.M("y", schema.Option(schema.U32()))), `{"x":1,"y":null}`, "040001000000"},
		{"two trailing nones elided", schema.Object(schema.M("a", schema.U32()), schema.M("b", schema.Option(schema.U32())), schema.M("c", schema.Option(schema.U32()))), `{"a":1,"b":null,"c":null}`, "040001000000"},
		{"option some", schema.Object(schema.M("x", schema.U32()), schema.M("y", schema.Option(schema.U32()))), `{"x":1,"y":42}`, "08000100000004000000 2A000000"},
		{"string", schema.Object(schema.M("name", schema.String())), `{"name":"hi"}`, "0400040000000200000068 69"},
		{"empty string", schema.Object(schema.M("name", schema.String())), `{"name":""}`, "040000000000"},
		{"variant", schema.Variant(schema.M("a", schema.U8()), schema.M("b", schema.String())), `{"b":"hi"}`, "01060000000200000068 69"},
		{"tuple", schema.Tuple(schema.U32(), schema.String()), `[1,"a"]`, "0800010000000400000001000000 61"},
		{"struct", schema.Struct(schema.M("x", schema.U8()), schema.M("y", schema.Bool())), `{"x":3,"y":true}`, "0301"},
		{"list", schema.List(schema.U16()), `[1,2]`, "04000000 0100 0200"},
		{"top none", schema.Option(schema.U32()), `null`, "01000000"},
		{"top some", schema.Option(schema.U32()), `5`, "04000000 05000000"},
		{"some empty", schema.Option(schema.String()), `""`, "00000000"},
		{"some text", schema.Option(schema.String()), `"a"`, "04000000 01000000 61"},
		{"signed", schema.I16(), `-2`, "FEFF"},
		{"nested", schema.FracPack(schema.U16()), `7`, "02000000 0700"},
		{"array", schema.Array(schema.String(), 2), `["a",""]`, "08000000 00000000 01000000 61"},
		{"hex", schema.Object(schema.M("blob", schema.HexBytes())), `{"blob":"ABCD"}`, "040004000000 02000000 ABCD"},
		{"time", schema.TimeMicros(), `"1970-01-01T00:00:01.000000Z"`, "40420F0000000000"},
		{"time seconds", schema.TimeSeconds(), `"1970-01-01T00:00:10Z"`, "0A000000"},
		{"time struct", schema.Custom(schema.Struct(schema.M("seconds", schema.U32())), "TimePointSec"), `"1970-01-01T00:01:00Z"`, "3C000000"},
		{"map", schema.Map(schema.String(), schema.U8()), `{"a":1}`, "04000000 04000000 0500 05000000 01 01000000 61"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := converter(t, tc.ty)
			want := strings.ReplaceAll(tc.hex, " ", "")
			if got := fromJSON(t, c, tc.json); got != want {
				t.Fatalf("pack %s: got %s want %s", tc.json, got, want)
			}
			if got := toJSON(t, c, want); got != tc.json {
				t.Fatalf("unpack %s: got %s want %s", want, got, tc.json)
			}
		})
	}
}

func TestHexAcceptsLowerCase(t *testing.T) {
	testlog.Start(t)

	c := converter(t, schema.HexBytes())
	if got := fromJSON(t, c, `"abcd"`); got != "02000000ABCD" {
		t.Fatalf("pack: got %s", got)
	}
	if _, err := c.FromJSON("T", []byte(`"abc"`)); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("odd hex: expected ErrTypeMismatch, got %v", err)
	}
}

func TestNonFiniteFloats(t *testing.T) {
	testlog.Start(t)

	c := converter(t, schema.List(schema.F64()))
	packed := fromJSON(t, c, `["inf","-inf",1.5]`)
	if got := toJSON(t, c, packed); got != `["inf","-inf",1.5]` {
		t.Fatalf("unpack: got %s", got)
	}
	nan := converter(t, schema.F32())
	if got := toJSON(t, nan, "0000C07F"); got != `"NaN"` {
		t.Fatalf("nan: got %s", got)
	}
}

func TestFloatOverflow(t *testing.T) {
	testlog.Start(t)

	f32 := converter(t, schema.F32())
	if _, err := f32.FromJSON("T", []byte(`1e40`)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for 1e40 as f32, got %v", err)
	}
	f64 := converter(t, schema.F64())
	if _, err := f64.FromJSON("T", []byte(`-1e400`)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for -1e400 as f64, got %v", err)
	}
	if got := fromJSON(t, f32, `"Infinity"`); got != "0000807F" {
		t.Fatalf("Infinity token: got %s", got)
	}
	if got := fromJSON(t, f32, `3.4e38`); got == "0000807F" {
		t.Fatalf("finite value near the f32 limit packed as infinity")
	}
}

func TestMapEntriesCanonical(t *testing.T) {
	testlog.Start(t)

	text := converter(t, schema.Map(schema.String(), schema.U8()))
	want, err := fracpack.Pack(map[string]uint8{"a": 2, "b": 1})
	if err != nil {
		t.Fatalf("pack map: %v", err)
	}
	if got := fromJSON(t, text, `{"b":1,"a":2}`); got != upperHex(want) {
		t.Fatalf("string keys: got %s want %s", got, upperHex(want))
	}

	ints := converter(t, schema.Map(schema.U32(), schema.U8()))
	want, err = fracpack.Pack(map[uint32]uint8{10: 1, 9: 2})
	if err != nil {
		t.Fatalf("pack map: %v", err)
	}
	if got := fromJSON(t, ints, `{"10":1,"9":2}`); got != upperHex(want) {
		t.Fatalf("integer keys: got %s want %s", got, upperHex(want))
	}

	for _, dup := range []string{`{"a":2,"a":3}`, `{"b":1,"a":2,"b":1}`} {
		if _, err := text.FromJSON("T", []byte(dup)); !errors.Is(err, ErrTypeMismatch) {
			t.Fatalf("expected ErrTypeMismatch for %s, got %v", dup, err)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	testlog.Start(t)

	str := converter(t, schema.Object(schema.M("s", schema.String())))
	bools := converter(t, schema.Struct(schema.M("x", schema.U8()), schema.M("y", schema.Bool())))
	variant := converter(t, schema.Variant(schema.M("a", schema.U8())))
	u8 := converter(t, schema.Int(7, false))
	i8 := converter(t, schema.Int(4, true))
	list := converter(t, schema.List(schema.U16()))

	cases := []struct {
		name string
		c    *Converter
		hex  string
		want error
	}{
		{"explicit empty", str, "0400 04000000 00000000", fracpack.ErrBadEmptyEncoding},
		{"offset gap", str, "0400 08000000 00000000 01000000 61", fracpack.ErrBadOffset},
		{"none in required", str, "0400 01000000", fracpack.ErrBadOffset},
		{"extra data", str, "0400 00000000 00", fracpack.ErrExtraData},
		{"short", str, "0400 0000", fracpack.ErrReadPastEnd},
		{"bad utf8", str, "0400 04000000 01000000 FF", fracpack.ErrBadUTF8},
		{"bool", bools, "0302", fracpack.ErrBadScalar},
		{"enum index", variant, "01 01000000 00", fracpack.ErrBadEnumIndex},
		{"variant frame", variant, "00 05000000 00", fracpack.ErrReadPastEnd},
		{"uint bits", u8, "80", fracpack.ErrBadScalar},
		{"sign extension", i8, "08", fracpack.ErrBadScalar},
		{"list size", list, "03000000 010002", fracpack.ErrBadSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.VerifyName("T", mustHex(t, tc.hex), false)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	testlog.Start(t)

	obj := converter(t, schema.Object(schema.M("a", schema.U8()), schema.M("b", schema.Option(schema.U8()))))
	variant := converter(t, schema.Variant(schema.M("a", schema.U8())))

	cases := []struct {
		name string
		c    *Converter
		json string
		want error
	}{
		{"missing", obj, `{"b":1}`, ErrMissingField},
		{"unknown", obj, `{"a":1,"z":2}`, ErrUnknownField},
		{"range", obj, `{"a":256}`, ErrOutOfRange},
		{"negative", obj, `{"a":-1}`, ErrOutOfRange},
		{"type", obj, `[1]`, ErrTypeMismatch},
		{"alternative", variant, `{"b":1}`, ErrUnknownAlternative},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.c.FromJSON("T", []byte(tc.json))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSchemaEvolution(t *testing.T) {
	testlog.Start(t)

	older := converter(t, schema.Object(
		schema.M("a", schema.U32()),
		schema.M("b", schema.String()),
	))
	newer := converter(t, schema.Object(
		schema.M("a", schema.U32()),
		schema.M("b", schema.String()),
		schema.M("c", schema.Option(schema.String())),
	))

	v2, err := newer.FromJSON("T", []byte(`{"a":1,"b":"x","c":"y"}`))
	if err != nil {
		t.Fatalf("pack new: %v", err)
	}
	got, err := older.ToJSON("T", v2)
	if err != nil {
		t.Fatalf("old reader: %v", err)
	}
	if string(got) != `{"a":1,"b":"x"}` {
		t.Fatalf("old reader: got %s", got)
	}
	if err := older.VerifyName("T", v2, true); !errors.Is(err, fracpack.ErrHasUnknown) {
		t.Fatalf("strict: expected ErrHasUnknown, got %v", err)
	}

	v1, err := older.FromJSON("T", []byte(`{"a":1,"b":"x"}`))
	if err != nil {
		t.Fatalf("pack old: %v", err)
	}
	got, err = newer.ToJSON("T", v1)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	if string(got) != `{"a":1,"b":"x","c":null}` {
		t.Fatalf("new reader: got %s", got)
	}
	if err := newer.VerifyName("T", v1, true); err != nil {
		t.Fatalf("strict new reader: %v", err)
	}
}

func TestUnknownAlternative(t *testing.T) {
	testlog.Start(t)

	older := converter(t, schema.Object(schema.M("v", schema.Variant(schema.M("a", schema.U8())))))
	newer := converter(t, schema.Object(schema.M("v", schema.Variant(schema.M("a", schema.U8()), schema.M("b", schema.U8())))))
	data, err := newer.FromJSON("T", []byte(`{"v":{"b":9}}`))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if err := older.VerifyName("T", data, false); !errors.Is(err, fracpack.ErrBadEnumIndex) {
		t.Fatalf("expected ErrBadEnumIndex, got %v", err)
	}
}

type profile struct {
	ID     uint64           `json:"id"`
	Name   string           `json:"name"`
	Active bool             `json:"active"`
	Score  float64          `json:"score"`
	Tags   []string         `json:"tags"`
	Owner  [4]uint8         `json:"owner"`
	Attrs  map[string]int32 `json:"attrs"`
	Seen   time.Time        `json:"seen"`
	Blob   fracpack.Hex     `json:"blob"`
	Nick   *string          `json:"nick"`
}

func TestMatchesReflectionCodec(t *testing.T) {
	testlog.Start(t)

	b := schema.NewBuilder()
	b.InsertNamed("T", reflect.TypeOf(profile{}))
	s, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	cs, err := compiled.Compile(s, StandardTypes())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	c := New(cs)

	in := profile{
		ID:     7,
		Name:   "ada",
		Active: true,
		Score:  1.5,
		Tags:   []string{"x", ""},
		Owner:  [4]uint8{1, 2, 3, 4},
		Attrs:  map[string]int32{"b": -2, "a": 1},
		Seen:   time.UnixMicro(1_700_000_000_123_456).UTC(),
		Blob:   fracpack.Hex{0xde, 0xad},
	}
	data, err := fracpack.Pack(in)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	text, err := c.ToJSON("T", data)
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	for _, part := range []string{
		`"name":"ada"`,
		`"active":true`,
		`"owner":[1,2,3,4]`,
		`"attrs":{"a":1,"b":-2}`,
		`"seen":"2023-11-14T22:13:20.123456Z"`,
		`"blob":"DEAD"`,
	} {
		if !strings.Contains(string(text), part) {
			t.Fatalf("json %s missing %s", text, part)
		}
	}
	back, err := c.FromJSON("T", text)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Fatalf("round trip mismatch:\n got %X\nwant %X", back, data)
	}
}

func TestParseKeepsOrder(t *testing.T) {
	testlog.Start(t)

	v, err := Parse([]byte(`{"b":1,"a":[true,null,"s"]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	obj, ok := v.(Object)
	if !ok || len(obj) != 2 || obj[0].Key != "b" || obj[1].Key != "a" {
		t.Fatalf("unexpected parse result %#v", v)
	}
	if _, err := Parse([]byte(`{} {}`)); err == nil {
		t.Fatalf("expected trailing data error")
	}
}
