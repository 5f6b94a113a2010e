package reachability

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bvisness/wasm-isolate/internal/wasm"
)

// threeFuncModule builds f0 (imported), f1, f2 where f2 calls f1 and f1 calls
// no one — the scenario named in the design's testable-properties section.
func threeFuncModule() *wasm.Module {
	return &wasm.Module{
		TypeSection:      []wasm.SubType{{Composite: wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &wasm.FunctionType{}}}},
		FunctionSection:  []uint32{0, 0, 0},
		NumImportedFuncs: 1,
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{{Opcode: wasm.OpcodeEnd}}},
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeCall, FuncIndex: 1},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}
}

func TestSeedingTransitivelyReachesCalledFunc(t *testing.T) {
	m := threeFuncModule()
	live := Run(m, Selection{Funcs: []uint32{2}})
	require.Equal(t, []uint32{1, 2}, live.Funcs)
	require.Equal(t, []uint32{0}, live.Types)
}

func TestStartFunctionIsNotAnImplicitSeed(t *testing.T) {
	m := threeFuncModule()
	start := uint32(2)
	m.StartSection = &start

	live := Run(m, Selection{})
	require.Empty(t, live.Funcs)
}

func TestOutOfRangeSeedIsSilentlyIgnored(t *testing.T) {
	m := threeFuncModule()
	live := Run(m, Selection{Funcs: []uint32{99}})
	require.Empty(t, live.Funcs)
}

func TestCallIndirectReachesTypeAndTable(t *testing.T) {
	m := &wasm.Module{
		TypeSection:      []wasm.SubType{{Composite: wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}}}}},
		TableSection:     []wasm.TableType{{ElemType: wasm.RefType{Nullable: true, Heap: wasm.HeapType{Kind: wasm.HeapTypeAbstract, Abstract: wasm.HeapTypeFunc}}}},
		FunctionSection:  []uint32{0},
		NumImportedFuncs: 0,
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeCallIndirect, TypeIndex: 0, TableIndex: 0},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}

	live := Run(m, Selection{Funcs: []uint32{0}})
	require.Equal(t, []uint32{0}, live.Types)
	require.Equal(t, []uint32{0}, live.Tables)
}
