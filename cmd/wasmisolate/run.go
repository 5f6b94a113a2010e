package main

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/bvisness/wasm-isolate/internal/isolate"
	"github.com/bvisness/wasm-isolate/internal/wasm/binary"
)

// doIsolate is the testable core: decode, reduce, render the report, and
// return the encoded output bytes. It never touches os.Args or os.Exit.
func doIsolate(in io.Reader, report io.Writer, sel isolate.Selection) ([]byte, error) {
	m, err := binary.Decode(in)
	if err != nil {
		return nil, err
	}

	reduced, rep, err := isolate.Run(m, sel)
	if err != nil {
		return nil, err
	}

	renderReport(report, rep)

	out, err := binary.Encode(reduced)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// renderReport logs one line per selection entry, matching the teacher's
// sparse logging style: a bare logrus.Logger with a text formatter and no
// timestamps, since this is a one-shot report rather than a service log.
func renderReport(w io.Writer, rep isolate.Report) {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	mapped := color.New(color.FgGreen)
	ignored := color.New(color.FgYellow)

	for _, e := range rep.Entries {
		if e.InRange {
			log.Info(mapped.Sprintf("%s %d -> %d", e.Kind, e.Old, e.New))
		} else {
			log.Warn(ignored.Sprintf("%s %d out of range, ignored", e.Kind, e.Old))
		}
	}
}

// openInput resolves the input argument: "-" means stdin, otherwise a file
// path. The returned closer is always safe to call.
func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// writeOutput writes out either to outPath or, if empty, to stdout.
func writeOutput(outPath string, stdout io.Writer, out []byte) error {
	if outPath == "" {
		if _, err := stdout.Write(out); err != nil {
			return &isolate.IOError{Err: err}
		}
		return nil
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return &isolate.IOError{Err: err}
	}
	return nil
}
