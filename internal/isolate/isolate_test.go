package isolate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bvisness/wasm-isolate/internal/wasm"
)

func emptyFuncType() wasm.SubType {
	return wasm.SubType{Composite: wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &wasm.FunctionType{}}}
}

// f0 is imported, f1 calls f0 and f2 calls f1: a chain whose transitive
// closure keeps the import live and lands f1/f2 at new indices 1 and 2,
// right after the preserved import at new index 0.
func threeFuncModule() *wasm.Module {
	return &wasm.Module{
		TypeSection:      []wasm.SubType{emptyFuncType()},
		RecGroups:        []wasm.RecGroup{{Types: []wasm.SubType{emptyFuncType()}}},
		ImportSection:    []wasm.Import{{Module: "env", Name: "f0", Kind: wasm.ImportKindFunc, DescFunc: 0}},
		NumImportedFuncs: 1,
		FunctionSection:  []uint32{0, 0, 0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeCall, FuncIndex: 0},
				{Opcode: wasm.OpcodeEnd},
			}},
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeCall, FuncIndex: 1},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}
}

func TestSelectingFuncPullsInTransitiveCallChain(t *testing.T) {
	m := threeFuncModule()
	out, rep, err := Run(m, Selection{Funcs: []uint32{2}})
	require.NoError(t, err)

	// import f0 preserved at new index 0; f1 and f2 renumbered to 1 and 2.
	require.Len(t, out.ImportSection, 1)
	require.Equal(t, uint32(1), out.NumImportedFuncs)
	require.Len(t, out.Code, 2)
	require.Equal(t, wasm.OpcodeCall, out.Code[0].Body[0].Opcode)
	require.Equal(t, uint32(0), out.Code[0].Body[0].FuncIndex)
	require.Equal(t, wasm.OpcodeCall, out.Code[1].Body[0].Opcode)
	require.Equal(t, uint32(1), out.Code[1].Body[0].FuncIndex)

	var sawExport bool
	for _, ex := range out.ExportSection {
		if ex.Name == "isolated_func_2" {
			sawExport = true
			require.Equal(t, uint32(2), ex.Index)
		}
	}
	require.True(t, sawExport)

	require.Len(t, rep.Entries, 1)
	require.True(t, rep.Entries[0].InRange)
	require.Equal(t, uint32(2), rep.Entries[0].New)
}

func TestEmptySelectionDropsStartFunction(t *testing.T) {
	m := threeFuncModule()
	start := uint32(2)
	m.StartSection = &start

	out, _, err := Run(m, Selection{})
	require.NoError(t, err)
	require.Empty(t, out.Code)
	require.Nil(t, out.StartSection)
}

func TestSurvivingRecGroupSingletonEmitsExplicit(t *testing.T) {
	// rec group {$A, $B} where only $B ($A's index+1) is used by the
	// selected function; $A itself references nothing.
	m := &wasm.Module{
		TypeSection: []wasm.SubType{emptyFuncType(), emptyFuncType()},
		RecGroups: []wasm.RecGroup{
			{Explicit: true, Types: []wasm.SubType{emptyFuncType(), emptyFuncType()}},
		},
		FunctionSection: []uint32{1},
		Code: []wasm.Function{
			{TypeIndex: 1, Body: []wasm.Instruction{{Opcode: wasm.OpcodeEnd}}},
		},
	}

	out, _, err := Run(m, Selection{Funcs: []uint32{0}})
	require.NoError(t, err)
	require.Len(t, out.RecGroups, 1)
	require.True(t, out.RecGroups[0].Explicit)
	require.Len(t, out.RecGroups[0].Types, 1)
	require.Len(t, out.TypeSection, 1)
}

func TestSelectingActiveDataPreservesItsMemory(t *testing.T) {
	mems := make([]wasm.MemoryType, 8)
	m := &wasm.Module{
		MemorySection: mems,
		DataSection: []wasm.DataSegment{
			{Mode: wasm.DataModeActive, MemoryIndex: 7, Offset: wasm.ConstExpr{Instructions: []wasm.Instruction{
				{Opcode: wasm.OpcodeI32Const, Raw: []byte{0}},
				{Opcode: wasm.OpcodeEnd},
			}}, Init: []byte{1, 2, 3}},
		},
		HasDataCount: true,
	}

	out, _, err := Run(m, Selection{Datas: []uint32{0}})
	require.NoError(t, err)
	require.True(t, out.HasDataCount)
	require.Len(t, out.DataSection, 1)
	require.Equal(t, uint32(0), out.DataSection[0].MemoryIndex)
	require.Len(t, out.MemorySection, 1)
}

func TestOutOfRangeSelectionReportsIgnored(t *testing.T) {
	m := threeFuncModule()
	_, rep, err := Run(m, Selection{Funcs: []uint32{99}})
	require.NoError(t, err)
	require.Len(t, rep.Entries, 1)
	require.False(t, rep.Entries[0].InRange)
	require.Equal(t, uint32(99), rep.Entries[0].Old)
}

// Four independent funcs with no calls between them; selecting #1 and #3
// must preserve their relative order (1 < 3) at the new indices.
func TestRelativeOrderPreservedAmongSelectedFuncs(t *testing.T) {
	body := func() []wasm.Instruction { return []wasm.Instruction{{Opcode: wasm.OpcodeEnd}} }
	m := &wasm.Module{
		TypeSection:     []wasm.SubType{emptyFuncType()},
		RecGroups:       []wasm.RecGroup{{Types: []wasm.SubType{emptyFuncType()}}},
		FunctionSection: []uint32{0, 0, 0, 0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: body()},
			{TypeIndex: 0, Body: body()},
			{TypeIndex: 0, Body: body()},
			{TypeIndex: 0, Body: body()},
		},
	}

	out, rep, err := Run(m, Selection{Funcs: []uint32{3, 1}})
	require.NoError(t, err)
	require.Len(t, out.Code, 2)

	var newOf = map[uint32]uint32{}
	for _, e := range rep.Entries {
		newOf[e.Old] = e.New
	}
	require.Less(t, newOf[1], newOf[3])
}

// Running Run again on its own output, with a selection covering every
// surviving index, must reach a fixed point: the second pass changes
// nothing further.
func TestIdempotentOnFullSelection(t *testing.T) {
	m := threeFuncModule()
	full := Selection{Funcs: []uint32{0, 1, 2}}

	once, _, err := Run(m, full)
	require.NoError(t, err)

	fullAgain := Selection{Funcs: []uint32{0, 1, 2}}
	twice, _, err := Run(once, fullAgain)
	require.NoError(t, err)

	require.Equal(t, len(once.Code), len(twice.Code))
	require.Equal(t, once.NumImportedFuncs, twice.NumImportedFuncs)
	require.Equal(t, once.ImportSection, twice.ImportSection)
	require.Equal(t, once.Code, twice.Code)
}

// A function using global.atomic.get on the shared-everything-threads
// proposal must keep the referenced global live through the full pipeline,
// not just in the use-graph computation.
func TestClosureKeepsGlobalLiveForGlobalAtomicGet(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []wasm.SubType{emptyFuncType()},
		RecGroups:       []wasm.RecGroup{{Types: []wasm.SubType{emptyFuncType()}}},
		GlobalSection: []wasm.GlobalType{
			{ValType: wasm.ValueTypeI32},
			{ValType: wasm.ValueTypeI32},
		},
		DefinedGlobals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValueTypeI32}, Init: wasm.ConstExpr{Instructions: []wasm.Instruction{
				{Opcode: wasm.OpcodeI32Const, Raw: []byte{0}},
				{Opcode: wasm.OpcodeEnd},
			}}},
			{Type: wasm.GlobalType{ValType: wasm.ValueTypeI32}, Init: wasm.ConstExpr{Instructions: []wasm.Instruction{
				{Opcode: wasm.OpcodeI32Const, Raw: []byte{0}},
				{Opcode: wasm.OpcodeEnd},
			}}},
		},
		FunctionSection: []uint32{0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeGlobalAtomicGet, GlobalIndex: 1, Raw: []byte{0x00}},
				{Opcode: wasm.OpcodeDrop},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}

	out, _, err := Run(m, Selection{Funcs: []uint32{0}})
	require.NoError(t, err)
	require.Len(t, out.GlobalSection, 1)
	require.Equal(t, wasm.OpcodeGlobalAtomicGet, out.Code[0].Body[0].Opcode)
	require.Equal(t, uint32(0), out.Code[0].Body[0].GlobalIndex)
}

func TestCallIndirectPullsInTypeAndTableAndValueTypes(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []wasm.SubType{
			{Composite: wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}}}},
		},
		RecGroups: []wasm.RecGroup{{Types: []wasm.SubType{
			{Composite: wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}}}},
		}}},
		TableSection:    []wasm.TableType{{ElemType: wasm.RefType{Nullable: true, Heap: wasm.HeapType{Kind: wasm.HeapTypeAbstract, Abstract: wasm.HeapTypeFunc}}}},
		FunctionSection: []uint32{0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeCallIndirect, TypeIndex: 0, TableIndex: 0},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}

	out, _, err := Run(m, Selection{Funcs: []uint32{0}})
	require.NoError(t, err)
	require.Len(t, out.TypeSection, 1)
	require.Len(t, out.TableSection, 1)
	require.Equal(t, uint32(0), out.Code[0].Body[0].TypeIndex)
	require.Equal(t, uint32(0), out.Code[0].Body[0].TableIndex)
}
