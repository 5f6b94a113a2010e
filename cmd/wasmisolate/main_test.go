package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bvisness/wasm-isolate/internal/wasm"
	"github.com/bvisness/wasm-isolate/internal/wasm/binary"
)

// minimalModuleBytes builds a tiny valid module: one function type () -> (),
// two functions where the second calls the first, and an export of the
// second under the name "run". Encode is the package's public surface for
// producing module bytes without reaching into the binary package's
// internals.
func minimalModuleBytes(t *testing.T) []byte {
	t.Helper()
	ft := wasm.SubType{Composite: wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &wasm.FunctionType{}}}
	m := &wasm.Module{
		TypeSection:     []wasm.SubType{ft},
		RecGroups:       []wasm.RecGroup{{Types: []wasm.SubType{ft}}},
		FunctionSection: []uint32{0, 0},
		ExportSection:   []wasm.Export{{Name: "run", Kind: wasm.ExportKindFunc, Index: 1}},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{{Opcode: wasm.OpcodeEnd}}},
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeCall, FuncIndex: 0},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
		SectionOrder: []wasm.SectionMarker{
			{ID: wasm.SectionIDType}, {ID: wasm.SectionIDFunction}, {ID: wasm.SectionIDExport}, {ID: wasm.SectionIDCode},
		},
	}
	out, err := binary.Encode(m)
	require.NoError(t, err)
	return out
}

func TestRunWritesReducedModuleToStdout(t *testing.T) {
	raw := minimalModuleBytes(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--funcs", "1", "-"}, bytes.NewReader(raw), &stdout, &stderr)
	require.Equal(t, 0, code)
	require.NotEmpty(t, stdout.Bytes())

	m, err := binary.Decode(bytes.NewReader(stdout.Bytes()))
	require.NoError(t, err)
	require.Len(t, m.Code, 2)
}

func TestRunReportsParseErrorExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-"}, bytes.NewReader([]byte{0, 1, 2, 3}), &stdout, &stderr)
	require.Equal(t, 1, code)
	require.NotEmpty(t, stderr.String())
}

func TestRunQuietSuppressesReport(t *testing.T) {
	raw := minimalModuleBytes(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--funcs", "1", "--quiet", "-"}, bytes.NewReader(raw), &stdout, &stderr)
	require.Equal(t, 0, code)
	require.Empty(t, stderr.String())
}
