package usegraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bvisness/wasm-isolate/internal/wasm"
)

func TestUsesOfFuncCallsAnotherFunc(t *testing.T) {
	// type 0: () -> (); func 0 is imported, func 1 calls func 0.
	m := &wasm.Module{
		TypeSection:     []wasm.SubType{{Composite: wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &wasm.FunctionType{}}}},
		RecGroups:       []wasm.RecGroup{{Types: []wasm.SubType{{Composite: wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &wasm.FunctionType{}}}}}},
		FunctionSection: []uint32{0, 0},
		NumImportedFuncs: 1,
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeCall, FuncIndex: 0},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}

	u := Of(m, Item{Kind: KindFunc, Index: 1})
	require.Equal(t, []uint32{0}, u.Types)
	require.Equal(t, []uint32{0}, u.Funcs)
}

func TestUsesOfTypeConcreteHeapType(t *testing.T) {
	// type 0 is a struct with one field typed (ref null 1); type 1 is an array.
	m := &wasm.Module{
		TypeSection: []wasm.SubType{
			{Composite: wasm.CompositeType{Kind: wasm.CompositeStruct, Struct: &wasm.StructType{
				Fields: []wasm.FieldType{{Storage: wasm.StorageType{
					Kind:  wasm.StorageTypeValue,
					Value: wasm.ValueType(0x63), // the (ref null $T) shorthand byte; unexported as a named const
					Ref:   wasm.RefType{Nullable: true, Heap: wasm.HeapType{Kind: wasm.HeapTypeConcrete, TypeIndex: 1}},
				}}},
			}}},
			{Composite: wasm.CompositeType{Kind: wasm.CompositeArray, Array: &wasm.ArrayType{
				Field: wasm.FieldType{Storage: wasm.StorageType{Kind: wasm.StorageTypePacked, Packed: wasm.PackedTypeI8}},
			}}},
		},
	}

	u := Of(m, Item{Kind: KindType, Index: 0})
	require.Equal(t, []uint32{1}, u.Types)

	u2 := Of(m, Item{Kind: KindType, Index: 1})
	require.Empty(t, u2.Types)
}

func TestUsesOfDataActiveReferencesMemory(t *testing.T) {
	m := &wasm.Module{
		MemorySection: []wasm.MemoryType{{}, {}},
		DataSection: []wasm.DataSegment{
			{Mode: wasm.DataModeActive, MemoryIndex: 1, Offset: wasm.ConstExpr{Instructions: []wasm.Instruction{
				{Opcode: wasm.OpcodeI32Const, Raw: []byte{0}},
				{Opcode: wasm.OpcodeEnd},
			}}},
		},
	}
	u := Of(m, Item{Kind: KindData, Index: 0})
	require.Equal(t, []uint32{1}, u.Memories)
}

func TestUsesOfElemActiveAndFuncItems(t *testing.T) {
	m := &wasm.Module{
		TableSection: []wasm.TableType{{}},
		ElementSection: []wasm.ElementSegment{
			{
				Mode:       wasm.ElementModeActive,
				TableIndex: 0,
				Offset:     wasm.ConstExpr{Instructions: []wasm.Instruction{{Opcode: wasm.OpcodeI32Const, Raw: []byte{0}}, {Opcode: wasm.OpcodeEnd}}},
				Init:       []wasm.ElementInit{{FuncIndex: 3}, {FuncIndex: 4}},
			},
		},
	}
	u := Of(m, Item{Kind: KindElem, Index: 0})
	require.Equal(t, []uint32{0}, u.Tables)
	require.Equal(t, []uint32{3, 4}, u.Funcs)
}

func TestUsesOfFuncStructNewReferencesType(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []wasm.SubType{{Composite: wasm.CompositeType{Kind: wasm.CompositeStruct, Struct: &wasm.StructType{}}}},
		FunctionSection: []uint32{0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeStructNew, TypeIndex: 0},
				{Opcode: wasm.OpcodeDrop},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}
	u := Of(m, Item{Kind: KindFunc, Index: 0})
	require.Equal(t, []uint32{0}, u.Types)
}

func TestUsesOfFuncThrowReferencesTag(t *testing.T) {
	m := &wasm.Module{
		TagSection:      []wasm.TagType{{TypeIndex: 0}},
		FunctionSection: []uint32{0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeThrow, TagIndex: 0},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}
	u := Of(m, Item{Kind: KindFunc, Index: 0})
	require.Equal(t, []uint32{0}, u.Tags)
}

func TestUsesOfFuncReturnCallReferencesFunc(t *testing.T) {
	m := &wasm.Module{
		TypeSection:      []wasm.SubType{{Composite: wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &wasm.FunctionType{}}}},
		ImportSection:    []wasm.Import{{Module: "env", Name: "callee", Kind: wasm.ImportKindFunc, DescFunc: 0}},
		NumImportedFuncs: 1,
		FunctionSection:  []uint32{0, 0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeReturnCall, FuncIndex: 0},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}
	u := Of(m, Item{Kind: KindFunc, Index: 1})
	require.Equal(t, []uint32{0}, u.Funcs)
}

func TestUsesOfFuncCallRefReferencesType(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []wasm.SubType{{Composite: wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &wasm.FunctionType{}}}},
		FunctionSection: []uint32{0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeCallRef, TypeIndex: 0},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}
	u := Of(m, Item{Kind: KindFunc, Index: 0})
	require.Equal(t, []uint32{0}, u.Types)
}

func TestUsesOfFuncGlobalAtomicGetReferencesGlobal(t *testing.T) {
	m := &wasm.Module{
		GlobalSection:   []wasm.GlobalType{{}, {}},
		FunctionSection: []uint32{0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeGlobalAtomicGet, GlobalIndex: 1, Raw: []byte{0x00}},
				{Opcode: wasm.OpcodeDrop},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}
	u := Of(m, Item{Kind: KindFunc, Index: 0})
	require.Equal(t, []uint32{1}, u.Globals)
}

func TestUsesOfFuncArrayAtomicGetReferencesType(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []wasm.SubType{{Composite: wasm.CompositeType{Kind: wasm.CompositeArray, Array: &wasm.ArrayType{}}}},
		FunctionSection: []uint32{0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeArrayAtomicGet, TypeIndex: 0, Raw: []byte{0x00}},
				{Opcode: wasm.OpcodeDrop},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}
	u := Of(m, Item{Kind: KindFunc, Index: 0})
	require.Equal(t, []uint32{0}, u.Types)
}

func TestUsesOfFuncV128LoadReferencesMemory(t *testing.T) {
	m := &wasm.Module{
		MemorySection:   []wasm.MemoryType{{}, {}},
		FunctionSection: []uint32{0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.Opcode(0xfd << 24), Mem: wasm.MemArg{MemoryIndex: 1}},
				{Opcode: wasm.OpcodeDrop},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}
	u := Of(m, Item{Kind: KindFunc, Index: 0})
	require.Equal(t, []uint32{1}, u.Memories)
}

func TestCallIndirectUsesTypeAndTable(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []wasm.SubType{{Composite: wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &wasm.FunctionType{}}}},
		TableSection:    []wasm.TableType{{}, {}},
		FunctionSection: []uint32{0},
		Code: []wasm.Function{
			{TypeIndex: 0, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeCallIndirect, TypeIndex: 0, TableIndex: 1},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}
	u := Of(m, Item{Kind: KindFunc, Index: 0})
	require.Contains(t, u.Types, uint32(0))
	require.Contains(t, u.Tables, uint32(1))
}
