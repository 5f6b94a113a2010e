// Package usegraph computes the direct-use relation between items of a
// decoded WebAssembly module: given one item, which other items (by index
// space) does it name. This is the pure building block the reachability
// driver in internal/reachability folds into a fixed point.
package usegraph

import "github.com/bvisness/wasm-isolate/internal/wasm"

// Kind identifies which of the module's eight index spaces an item
// reference names.
type Kind byte

const (
	KindType Kind = iota
	KindFunc
	KindTable
	KindGlobal
	KindMemory
	KindTag
	KindElem
	KindData
)

// Item is a reference to one entry of one index space.
type Item struct {
	Kind  Kind
	Index uint32
}

// Uses is the set of items one item directly references, one sorted and
// deduplicated slice per index space. The zero value is the empty set.
type Uses struct {
	Types   []uint32
	Funcs   []uint32
	Tables  []uint32
	Globals []uint32
	Memories []uint32
	Tags    []uint32
	Elems   []uint32
	Datas   []uint32
}

// addSorted inserts v into a sorted, deduplicated slice if not already
// present, returning the updated slice.
func addSorted(s []uint32, v uint32) []uint32 {
	lo, hi := 0, len(s)
	for lo < hi {
		mid := (lo + hi) / 2
		if s[mid] < v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s) && s[lo] == v {
		return s
	}
	s = append(s, 0)
	copy(s[lo+1:], s[lo:])
	s[lo] = v
	return s
}

func (u *Uses) addType(i uint32)   { u.Types = addSorted(u.Types, i) }
func (u *Uses) addFunc(i uint32)   { u.Funcs = addSorted(u.Funcs, i) }
func (u *Uses) addTable(i uint32)  { u.Tables = addSorted(u.Tables, i) }
func (u *Uses) addGlobal(i uint32) { u.Globals = addSorted(u.Globals, i) }
func (u *Uses) addMemory(i uint32) { u.Memories = addSorted(u.Memories, i) }
func (u *Uses) addTag(i uint32)    { u.Tags = addSorted(u.Tags, i) }
func (u *Uses) addElem(i uint32)   { u.Elems = addSorted(u.Elems, i) }
func (u *Uses) addData(i uint32)   { u.Datas = addSorted(u.Datas, i) }

// Merge unions other into u in place.
func (u *Uses) Merge(other Uses) {
	for _, v := range other.Types {
		u.addType(v)
	}
	for _, v := range other.Funcs {
		u.addFunc(v)
	}
	for _, v := range other.Tables {
		u.addTable(v)
	}
	for _, v := range other.Globals {
		u.addGlobal(v)
	}
	for _, v := range other.Memories {
		u.addMemory(v)
	}
	for _, v := range other.Tags {
		u.addTag(v)
	}
	for _, v := range other.Elems {
		u.addElem(v)
	}
	for _, v := range other.Datas {
		u.addData(v)
	}
}

// Of returns the direct uses of one item of m. It is the sole entry point
// the reachability driver calls; every other function in this package is a
// helper reachable only through it.
func Of(m *wasm.Module, item Item) Uses {
	switch item.Kind {
	case KindType:
		return usesOfType(m, item.Index)
	case KindFunc:
		return usesOfFunc(m, item.Index)
	case KindTable:
		return usesOfTable(m, item.Index)
	case KindGlobal:
		return usesOfGlobal(m, item.Index)
	case KindMemory:
		return Uses{}
	case KindTag:
		return usesOfTag(m, item.Index)
	case KindElem:
		return usesOfElem(m, item.Index)
	case KindData:
		return usesOfData(m, item.Index)
	default:
		return Uses{}
	}
}

func heapTypeUses(u *Uses, h wasm.HeapType) {
	if h.Kind == wasm.HeapTypeConcrete {
		u.addType(h.TypeIndex)
	}
}

func refTypeUses(u *Uses, r wasm.RefType) {
	heapTypeUses(u, r.Heap)
}

// valueTypeUses adds the type-index use, if any, of a (ValueType, RefType)
// pair as decoded throughout internal/wasm: ref is only meaningful when val
// IsReference().
func valueTypeUses(u *Uses, val wasm.ValueType, ref wasm.RefType) {
	if val.IsReference() {
		refTypeUses(u, ref)
	}
}

func storageTypeUses(u *Uses, s wasm.StorageType) {
	if s.Kind == wasm.StorageTypePacked {
		return
	}
	valueTypeUses(u, s.Value, s.Ref)
}

func functionTypeUses(u *Uses, ft *wasm.FunctionType) {
	for i, p := range ft.Params {
		var ref wasm.RefType
		if i < len(ft.ParamRefs) {
			ref = ft.ParamRefs[i]
		}
		valueTypeUses(u, p, ref)
	}
	for i, r := range ft.Results {
		var ref wasm.RefType
		if i < len(ft.ResultRefs) {
			ref = ft.ResultRefs[i]
		}
		valueTypeUses(u, r, ref)
	}
}

func usesOfType(m *wasm.Module, idx uint32) Uses {
	var u Uses
	if int(idx) >= len(m.TypeSection) {
		return u
	}
	st := m.TypeSection[idx]
	switch st.Composite.Kind {
	case wasm.CompositeFunc:
		if st.Composite.Func != nil {
			functionTypeUses(&u, st.Composite.Func)
		}
	case wasm.CompositeStruct:
		if st.Composite.Struct != nil {
			for _, f := range st.Composite.Struct.Fields {
				storageTypeUses(&u, f.Storage)
			}
		}
	case wasm.CompositeArray:
		if st.Composite.Array != nil {
			storageTypeUses(&u, st.Composite.Array.Field.Storage)
		}
	}
	return u
}

func usesOfFunc(m *wasm.Module, idx uint32) Uses {
	var u Uses
	if int(idx) >= len(m.FunctionSection) {
		return u
	}
	typeIdx := m.FunctionSection[idx]
	u.addType(typeIdx)
	u.Merge(usesOfType(m, typeIdx))

	if idx < m.NumImportedFuncs {
		return u
	}
	fn := m.Code[idx-m.NumImportedFuncs]
	for _, l := range fn.Locals {
		valueTypeUses(&u, l.Type, l.Ref)
	}
	for _, ins := range fn.Body {
		u.Merge(usesOfInstruction(ins))
	}
	return u
}

func usesOfTable(m *wasm.Module, idx uint32) Uses {
	var u Uses
	if int(idx) >= len(m.TableSection) {
		return u
	}
	refTypeUses(&u, m.TableSection[idx].ElemType)

	if idx < m.NumImportedTables {
		return u
	}
	t := m.DefinedTables[idx-m.NumImportedTables]
	if t.Init != nil {
		u.Merge(usesOfConstExpr(*t.Init))
	}
	return u
}

func usesOfGlobal(m *wasm.Module, idx uint32) Uses {
	var u Uses
	if int(idx) >= len(m.GlobalSection) {
		return u
	}
	gt := m.GlobalSection[idx]
	valueTypeUses(&u, gt.ValType, gt.Ref)

	if idx < m.NumImportedGlobals {
		return u
	}
	g := m.DefinedGlobals[idx-m.NumImportedGlobals]
	u.Merge(usesOfConstExpr(g.Init))
	return u
}

func usesOfTag(m *wasm.Module, idx uint32) Uses {
	var u Uses
	if int(idx) >= len(m.TagSection) {
		return u
	}
	typeIdx := m.TagSection[idx].TypeIndex
	u.addType(typeIdx)
	u.Merge(usesOfType(m, typeIdx))
	return u
}

func usesOfData(m *wasm.Module, idx uint32) Uses {
	var u Uses
	if int(idx) >= len(m.DataSection) {
		return u
	}
	d := m.DataSection[idx]
	if d.Mode == wasm.DataModePassive {
		return u
	}
	u.addMemory(d.MemoryIndex)
	u.Merge(usesOfConstExpr(d.Offset))
	return u
}

func usesOfElem(m *wasm.Module, idx uint32) Uses {
	var u Uses
	if int(idx) >= len(m.ElementSection) {
		return u
	}
	e := m.ElementSection[idx]
	refTypeUses(&u, e.Type)
	for _, init := range e.Init {
		if init.Expr != nil {
			u.Merge(usesOfConstExpr(*init.Expr))
		} else {
			u.addFunc(init.FuncIndex)
		}
	}
	if e.Mode == wasm.ElementModeActive {
		u.addTable(e.TableIndex)
		u.Merge(usesOfConstExpr(e.Offset))
	}
	return u
}

func usesOfConstExpr(e wasm.ConstExpr) Uses {
	var u Uses
	for _, ins := range e.Instructions {
		u.Merge(usesOfInstruction(ins))
	}
	return u
}

func blockTypeUses(u *Uses, b wasm.BlockType) {
	switch b.Kind {
	case wasm.BlockTypeFuncType:
		u.addType(b.TypeIndex)
	case wasm.BlockTypeValue:
		valueTypeUses(u, b.Value, b.ValueRef)
	}
}

// usesOfInstruction implements the per-opcode rules enumerated in the
// design's use-graph section: only operators that carry an index space
// reference contribute anything.
func usesOfInstruction(ins wasm.Instruction) Uses {
	var u Uses

	switch ins.Opcode {
	case wasm.OpcodeCall, wasm.OpcodeReturnCall:
		u.addFunc(ins.FuncIndex)
	case wasm.OpcodeCallIndirect, wasm.OpcodeReturnCallIndirect:
		u.addType(ins.TypeIndex)
		u.addTable(ins.TableIndex)
	case wasm.OpcodeCallRef, wasm.OpcodeReturnCallRef:
		u.addType(ins.TypeIndex)
	case wasm.OpcodeRefFunc:
		u.addFunc(ins.FuncIndex)
	case wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		u.addGlobal(ins.GlobalIndex)
	case wasm.OpcodeTableGet, wasm.OpcodeTableSet, wasm.OpcodeTableGrow, wasm.OpcodeTableSize, wasm.OpcodeTableFill:
		u.addTable(ins.TableIndex)
	case wasm.OpcodeTableInit:
		u.addElem(ins.ElemIndex)
		u.addTable(ins.TableIndex)
	case wasm.OpcodeTableCopy:
		u.addTable(ins.TableIndex)
		u.addTable(ins.Index2)
	case wasm.OpcodeElemDrop:
		u.addElem(ins.ElemIndex)
	case wasm.OpcodeMemoryInit:
		u.addData(ins.DataIndex)
		u.addMemory(ins.MemoryIndex)
	case wasm.OpcodeMemoryCopy:
		u.addMemory(ins.MemoryIndex)
		u.addMemory(ins.Index2)
	case wasm.OpcodeMemoryFill, wasm.OpcodeMemoryGrow, wasm.OpcodeMemorySize:
		u.addMemory(ins.MemoryIndex)
	case wasm.OpcodeDataDrop:
		u.addData(ins.DataIndex)
	case wasm.OpcodeArrayNewData, wasm.OpcodeArrayInitData:
		u.addType(ins.TypeIndex)
		u.addData(ins.DataIndex)
	case wasm.OpcodeArrayNewElem, wasm.OpcodeArrayInitElem:
		u.addType(ins.TypeIndex)
		u.addElem(ins.ElemIndex)
	case wasm.OpcodeArrayCopy:
		u.addType(ins.TypeIndex)
		u.addType(ins.Index2)
	case wasm.OpcodeStructNew, wasm.OpcodeStructNewDefault:
		u.addType(ins.TypeIndex)
	case wasm.OpcodeStructGet, wasm.OpcodeStructGetS, wasm.OpcodeStructGetU, wasm.OpcodeStructSet:
		u.addType(ins.TypeIndex)
	case wasm.OpcodeArrayNew, wasm.OpcodeArrayNewDefault, wasm.OpcodeArrayNewFixed,
		wasm.OpcodeArrayGet, wasm.OpcodeArrayGetS, wasm.OpcodeArrayGetU, wasm.OpcodeArraySet,
		wasm.OpcodeArrayLen, wasm.OpcodeArrayFill:
		u.addType(ins.TypeIndex)
	case wasm.OpcodeRefTest, wasm.OpcodeRefTestNull, wasm.OpcodeRefCast, wasm.OpcodeRefCastNull:
		heapTypeUses(&u, ins.Heap)
	case wasm.OpcodeBrOnCast, wasm.OpcodeBrOnCastFail:
		heapTypeUses(&u, ins.Heap)
		heapTypeUses(&u, ins.Heap2)
	case wasm.OpcodeRefNull:
		heapTypeUses(&u, ins.Heap)
	case wasm.OpcodeBrOnNull, wasm.OpcodeBrOnNonNull:
		// label depth only, inert.
	case wasm.OpcodeThrow:
		u.addTag(ins.TagIndex)
	case wasm.OpcodeThrowRef:
		// operand is a value on the stack, no tag immediate.
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf, wasm.OpcodeTry:
		blockTypeUses(&u, ins.Block)
	case wasm.OpcodeTryTable:
		blockTypeUses(&u, ins.Block)
		for _, c := range ins.Catches {
			if c.Kind == wasm.CatchTag || c.Kind == wasm.CatchTagRef {
				u.addTag(c.TagIndex)
			}
		}
	case wasm.OpcodeCatch:
		u.addTag(ins.TagIndex)
	case wasm.OpcodeSelectT:
		for i, vt := range ins.SelectTypes {
			var ref wasm.RefType
			if i < len(ins.SelectRefs) {
				ref = ins.SelectRefs[i]
			}
			valueTypeUses(&u, vt, ref)
		}
	case wasm.OpcodeGlobalAtomicGet, wasm.OpcodeGlobalAtomicSet,
		wasm.OpcodeGlobalAtomicRmwAdd, wasm.OpcodeGlobalAtomicRmwSub,
		wasm.OpcodeGlobalAtomicRmwAnd, wasm.OpcodeGlobalAtomicRmwOr,
		wasm.OpcodeGlobalAtomicRmwXor, wasm.OpcodeGlobalAtomicRmwXchg,
		wasm.OpcodeGlobalAtomicRmwCmpxchg:
		u.addGlobal(ins.GlobalIndex)
	case wasm.OpcodeTableAtomicGet, wasm.OpcodeTableAtomicSet,
		wasm.OpcodeTableAtomicRmwXchg, wasm.OpcodeTableAtomicRmwCmpxchg:
		u.addTable(ins.TableIndex)
	case wasm.OpcodeStructAtomicGet, wasm.OpcodeStructAtomicGetS, wasm.OpcodeStructAtomicGetU,
		wasm.OpcodeStructAtomicSet, wasm.OpcodeStructAtomicRmwAdd, wasm.OpcodeStructAtomicRmwSub,
		wasm.OpcodeStructAtomicRmwAnd, wasm.OpcodeStructAtomicRmwOr, wasm.OpcodeStructAtomicRmwXor,
		wasm.OpcodeStructAtomicRmwXchg, wasm.OpcodeStructAtomicRmwCmpxchg:
		u.addType(ins.TypeIndex)
	case wasm.OpcodeArrayAtomicGet, wasm.OpcodeArrayAtomicGetS, wasm.OpcodeArrayAtomicGetU,
		wasm.OpcodeArrayAtomicSet, wasm.OpcodeArrayAtomicRmwAdd, wasm.OpcodeArrayAtomicRmwSub,
		wasm.OpcodeArrayAtomicRmwAnd, wasm.OpcodeArrayAtomicRmwOr, wasm.OpcodeArrayAtomicRmwXor,
		wasm.OpcodeArrayAtomicRmwXchg, wasm.OpcodeArrayAtomicRmwCmpxchg:
		u.addType(ins.TypeIndex)
	default:
		if isMemArgOpcode(ins.Opcode) {
			u.addMemory(ins.Mem.MemoryIndex)
		}
	}

	return u
}

// isMemArgOpcode reports whether op is one of the memarg-bearing load/store
// operators: the plain MVP loads/stores, and the structurally-decoded SIMD
// v128 load/store/lane family and memory-atomics read-modify-write family,
// all of which populate ins.Mem when decoded (see
// internal/wasm/binary/code.go). The shared-everything-threads global/table/
// struct/array atomic ops share the 0xfe prefix but never carry a memarg —
// they are matched by name above and never reach this fallback.
func isMemArgOpcode(op wasm.Opcode) bool {
	switch op {
	case wasm.OpcodeI32Load, wasm.OpcodeI64Load, wasm.OpcodeF32Load, wasm.OpcodeF64Load,
		wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U,
		wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U,
		wasm.OpcodeI32Store, wasm.OpcodeI64Store, wasm.OpcodeF32Store, wasm.OpcodeF64Store,
		wasm.OpcodeI32Store8, wasm.OpcodeI32Store16, wasm.OpcodeI64Store8, wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
		return true
	}
	sub := uint32(op) & 0x00ffffff
	switch byte(op >> 24) {
	case wasm.OpcodeVecPrefix:
		return sub <= 0x0b || (sub >= 0x54 && sub <= 0x5d)
	case wasm.OpcodeAtomicPrefix:
		return op != wasm.OpcodeAtomicFence
	}
	return false
}
