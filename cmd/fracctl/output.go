package main

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/alecthomas/chroma/v2/quick"
)

func writeJSON(e *env, compact []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return write(e, buf.String(), "json")
}

// write highlights text for terminals and falls back to plain output when
// the lexer fails.
func write(e *env, text, lexer string) error {
	if e.color {
		if err := quick.Highlight(e.out, text, lexer, "terminal256", "monokai"); err == nil {
			return nil
		}
	}
	_, err := io.WriteString(e.out, text)
	return err
}
