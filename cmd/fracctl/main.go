// Command fracctl packs, unpacks and checks fracpack data against schema
// documents from the command line.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/danmuck/fracpack/internal/logging"
)

type env struct {
	in    io.Reader
	out   io.Writer
	color bool
}

type command struct {
	name    string
	summary string
	run     func(e *env, args []string) error
}

var commands = []command{
	{"pack", "encode a JSON value read from input", runPack},
	{"unpack", "decode binary or hex input to JSON", runUnpack},
	{"verify", "validate binary or hex input", runVerify},
	{"compat", "compare two schema documents", runCompat},
	{"hash", "print the fingerprint of a schema document", runHash},
	{"fmt", "print a schema document in canonical form", runFmt},
}

var errUsage = errors.New("usage")

func main() {
	logging.ConfigureRuntime()
	e := &env{
		in:    os.Stdin,
		out:   os.Stdout,
		color: term.IsTerminal(int(os.Stdout.Fd())),
	}
	if err := dispatch(e, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "fracctl: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(e *env, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(e, args[1:])
		}
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage(e.out)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func printUsage(w io.Writer) {
	var b strings.Builder
	b.WriteString("usage: fracctl <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-8s %s\n", c.name, c.summary)
	}
	b.WriteString("\nrun fracctl <command> --help for flags\n")
	io.WriteString(w, b.String())
}
