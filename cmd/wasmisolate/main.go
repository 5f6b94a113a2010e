// Command wasmisolate reads a WebAssembly module, keeps only the items
// reachable from a user-selected set of functions/tables/globals/memories/
// datas/elements/tags/types, and writes the reduced module back out.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-version"
	"github.com/spf13/cobra"

	"github.com/bvisness/wasm-isolate/internal/isolate"
	"github.com/bvisness/wasm-isolate/internal/wasm/binary"
)

// toolVersion is this tool's own release version, printed by --version; it
// is parsed with github.com/hashicorp/go-version purely so --version
// reports something parseable by scripts, not to gate any behavior.
var toolVersion = version.Must(version.NewVersion("0.1.0"))

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run builds and executes the cobra command against argv, returning the
// process exit code. Tests call this directly rather than os.Exit.
func run(argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var sel selectionFlags
	var outPath string
	var quiet bool

	cmd := &cobra.Command{
		Use:           "wasmisolate <input.wasm>",
		Short:         "Reduce a WebAssembly module to the items reachable from a selection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeIn, err := openInput(args[0], stdin)
			if err != nil {
				return &isolate.IOError{Err: err}
			}
			defer closeIn()

			var report io.Writer = stderr
			if quiet {
				report = io.Discard
			}

			out, err := doIsolate(in, report, sel.toSelection())
			if err != nil {
				return err
			}

			return writeOutput(outPath, stdout, out)
		},
	}

	cmd.SetArgs(argv)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.Version = toolVersion.String()

	registerSelectionFlags(cmd, &sel)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write output to this path instead of standard output")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress the mapping report on standard error")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "wasmisolate:", err)
		return exitCodeFor(err)
	}
	return 0
}

func exitCodeFor(err error) int {
	var ioErr *isolate.IOError
	var parseErr *binary.ParseError
	var unsupported *binary.UnsupportedConstructError
	var encodeErr *binary.EncodeError

	switch {
	case errors.As(err, &ioErr):
		return 2
	case errors.As(err, &parseErr), errors.As(err, &unsupported):
		return 1
	case errors.As(err, &encodeErr):
		return 3
	default:
		return 1
	}
}
