package isolate

import (
	"fmt"

	"github.com/bvisness/wasm-isolate/internal/relocation"
	"github.com/bvisness/wasm-isolate/internal/wasm"
)

// reencoder rewrites every module-level index a retained item names, via
// relocation.Maps. It never looks up anything function-local (locals,
// branch depths, lane indices): those fields pass through untouched because
// reencoder.instruction only ever mutates the fields a given opcode uses, the
// same opcode-by-opcode coverage internal/usegraph reads from.
type reencoder struct {
	maps relocation.Maps
}

func (re reencoder) typeIndex(old uint32) (uint32, error) {
	n, ok := re.maps.Types.Lookup(old)
	if !ok {
		return 0, fmt.Errorf("type index %d is not live", old)
	}
	return n, nil
}

func (re reencoder) funcIndex(old uint32) (uint32, error) {
	n, ok := re.maps.Funcs.Lookup(old)
	if !ok {
		return 0, fmt.Errorf("func index %d is not live", old)
	}
	return n, nil
}

func (re reencoder) tableIndex(old uint32) (uint32, error) {
	n, ok := re.maps.Tables.Lookup(old)
	if !ok {
		return 0, fmt.Errorf("table index %d is not live", old)
	}
	return n, nil
}

func (re reencoder) globalIndex(old uint32) (uint32, error) {
	n, ok := re.maps.Globals.Lookup(old)
	if !ok {
		return 0, fmt.Errorf("global index %d is not live", old)
	}
	return n, nil
}

func (re reencoder) memoryIndex(old uint32) (uint32, error) {
	n, ok := re.maps.Memories.Lookup(old)
	if !ok {
		return 0, fmt.Errorf("memory index %d is not live", old)
	}
	return n, nil
}

func (re reencoder) tagIndex(old uint32) (uint32, error) {
	n, ok := re.maps.Tags.Lookup(old)
	if !ok {
		return 0, fmt.Errorf("tag index %d is not live", old)
	}
	return n, nil
}

func (re reencoder) elemIndex(old uint32) (uint32, error) {
	n, ok := re.maps.Elems.Lookup(old)
	if !ok {
		return 0, fmt.Errorf("elem index %d is not live", old)
	}
	return n, nil
}

func (re reencoder) dataIndex(old uint32) (uint32, error) {
	n, ok := re.maps.Datas.Lookup(old)
	if !ok {
		return 0, fmt.Errorf("data index %d is not live", old)
	}
	return n, nil
}

func (re reencoder) heapType(h wasm.HeapType) (wasm.HeapType, error) {
	if h.Kind != wasm.HeapTypeConcrete {
		return h, nil
	}
	n, err := re.typeIndex(h.TypeIndex)
	if err != nil {
		return wasm.HeapType{}, err
	}
	return wasm.HeapType{Kind: wasm.HeapTypeConcrete, TypeIndex: n}, nil
}

func (re reencoder) refType(r wasm.RefType) (wasm.RefType, error) {
	h, err := re.heapType(r.Heap)
	if err != nil {
		return wasm.RefType{}, err
	}
	return wasm.RefType{Nullable: r.Nullable, Heap: h}, nil
}

// valueType reencodes a (ValueType, RefType) pair, the shape every value
// type is carried in throughout internal/wasm: ref is only consulted when
// val.IsReference().
func (re reencoder) valueType(val wasm.ValueType, ref wasm.RefType) (wasm.ValueType, wasm.RefType, error) {
	if !val.IsReference() {
		return val, wasm.RefType{}, nil
	}
	r, err := re.refType(ref)
	if err != nil {
		return 0, wasm.RefType{}, err
	}
	return val, r, nil
}

func (re reencoder) storageType(s wasm.StorageType) (wasm.StorageType, error) {
	if s.Kind == wasm.StorageTypePacked {
		return s, nil
	}
	val, ref, err := re.valueType(s.Value, s.Ref)
	if err != nil {
		return wasm.StorageType{}, err
	}
	return wasm.StorageType{Kind: wasm.StorageTypeValue, Value: val, Ref: ref}, nil
}

func (re reencoder) fieldType(f wasm.FieldType) (wasm.FieldType, error) {
	s, err := re.storageType(f.Storage)
	if err != nil {
		return wasm.FieldType{}, err
	}
	return wasm.FieldType{Storage: s, Mutable: f.Mutable}, nil
}

func (re reencoder) functionType(ft wasm.FunctionType) (wasm.FunctionType, error) {
	out := wasm.FunctionType{
		Params:     make([]wasm.ValueType, len(ft.Params)),
		ParamRefs:  make([]wasm.RefType, len(ft.Params)),
		Results:    make([]wasm.ValueType, len(ft.Results)),
		ResultRefs: make([]wasm.RefType, len(ft.Results)),
	}
	for i, p := range ft.Params {
		var ref wasm.RefType
		if i < len(ft.ParamRefs) {
			ref = ft.ParamRefs[i]
		}
		vt, r, err := re.valueType(p, ref)
		if err != nil {
			return wasm.FunctionType{}, err
		}
		out.Params[i], out.ParamRefs[i] = vt, r
	}
	for i, rt := range ft.Results {
		var ref wasm.RefType
		if i < len(ft.ResultRefs) {
			ref = ft.ResultRefs[i]
		}
		vt, r, err := re.valueType(rt, ref)
		if err != nil {
			return wasm.FunctionType{}, err
		}
		out.Results[i], out.ResultRefs[i] = vt, r
	}
	return out, nil
}

func (re reencoder) subType(st wasm.SubType) (wasm.SubType, error) {
	out := wasm.SubType{Final: st.Final}
	for _, s := range st.Supertypes {
		n, err := re.typeIndex(s)
		if err != nil {
			return wasm.SubType{}, err
		}
		out.Supertypes = append(out.Supertypes, n)
	}
	switch st.Composite.Kind {
	case wasm.CompositeFunc:
		ft, err := re.functionType(*st.Composite.Func)
		if err != nil {
			return wasm.SubType{}, err
		}
		out.Composite = wasm.CompositeType{Kind: wasm.CompositeFunc, Func: &ft}
	case wasm.CompositeStruct:
		fields := make([]wasm.FieldType, len(st.Composite.Struct.Fields))
		for i, f := range st.Composite.Struct.Fields {
			nf, err := re.fieldType(f)
			if err != nil {
				return wasm.SubType{}, err
			}
			fields[i] = nf
		}
		out.Composite = wasm.CompositeType{Kind: wasm.CompositeStruct, Struct: &wasm.StructType{Fields: fields}}
	case wasm.CompositeArray:
		f, err := re.fieldType(st.Composite.Array.Field)
		if err != nil {
			return wasm.SubType{}, err
		}
		out.Composite = wasm.CompositeType{Kind: wasm.CompositeArray, Array: &wasm.ArrayType{Field: f}}
	}
	return out, nil
}

func (re reencoder) blockType(b wasm.BlockType) (wasm.BlockType, error) {
	switch b.Kind {
	case wasm.BlockTypeFuncType:
		n, err := re.typeIndex(b.TypeIndex)
		if err != nil {
			return wasm.BlockType{}, err
		}
		return wasm.BlockType{Kind: wasm.BlockTypeFuncType, TypeIndex: n}, nil
	case wasm.BlockTypeValue:
		vt, ref, err := re.valueType(b.Value, b.ValueRef)
		if err != nil {
			return wasm.BlockType{}, err
		}
		return wasm.BlockType{Kind: wasm.BlockTypeValue, Value: vt, ValueRef: ref}, nil
	default:
		return b, nil
	}
}

// instruction reencodes every module-level index ins carries, covering
// exactly the opcode set internal/usegraph's usesOfInstruction reads from;
// anything else (locals, lane counts, branch depths, raw bytes) is copied
// unchanged.
func (re reencoder) instruction(ins wasm.Instruction) (wasm.Instruction, error) {
	out := ins
	var err error

	switch ins.Opcode {
	case wasm.OpcodeCall, wasm.OpcodeReturnCall, wasm.OpcodeRefFunc:
		out.FuncIndex, err = re.funcIndex(ins.FuncIndex)
	case wasm.OpcodeCallIndirect, wasm.OpcodeReturnCallIndirect:
		if out.TypeIndex, err = re.typeIndex(ins.TypeIndex); err == nil {
			out.TableIndex, err = re.tableIndex(ins.TableIndex)
		}
	case wasm.OpcodeCallRef, wasm.OpcodeReturnCallRef:
		out.TypeIndex, err = re.typeIndex(ins.TypeIndex)
	case wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		out.GlobalIndex, err = re.globalIndex(ins.GlobalIndex)
	case wasm.OpcodeTableGet, wasm.OpcodeTableSet, wasm.OpcodeTableGrow, wasm.OpcodeTableSize, wasm.OpcodeTableFill:
		out.TableIndex, err = re.tableIndex(ins.TableIndex)
	case wasm.OpcodeTableInit:
		if out.ElemIndex, err = re.elemIndex(ins.ElemIndex); err == nil {
			out.TableIndex, err = re.tableIndex(ins.TableIndex)
		}
	case wasm.OpcodeTableCopy:
		if out.TableIndex, err = re.tableIndex(ins.TableIndex); err == nil {
			out.Index2, err = re.tableIndex(ins.Index2)
		}
	case wasm.OpcodeElemDrop:
		out.ElemIndex, err = re.elemIndex(ins.ElemIndex)
	case wasm.OpcodeMemoryInit:
		if out.DataIndex, err = re.dataIndex(ins.DataIndex); err == nil {
			out.MemoryIndex, err = re.memoryIndex(ins.MemoryIndex)
		}
	case wasm.OpcodeMemoryCopy:
		if out.MemoryIndex, err = re.memoryIndex(ins.MemoryIndex); err == nil {
			out.Index2, err = re.memoryIndex(ins.Index2)
		}
	case wasm.OpcodeMemoryFill, wasm.OpcodeMemoryGrow, wasm.OpcodeMemorySize:
		out.MemoryIndex, err = re.memoryIndex(ins.MemoryIndex)
	case wasm.OpcodeDataDrop:
		out.DataIndex, err = re.dataIndex(ins.DataIndex)
	case wasm.OpcodeArrayNewData, wasm.OpcodeArrayInitData:
		if out.TypeIndex, err = re.typeIndex(ins.TypeIndex); err == nil {
			out.DataIndex, err = re.dataIndex(ins.DataIndex)
		}
	case wasm.OpcodeArrayNewElem, wasm.OpcodeArrayInitElem:
		if out.TypeIndex, err = re.typeIndex(ins.TypeIndex); err == nil {
			out.ElemIndex, err = re.elemIndex(ins.ElemIndex)
		}
	case wasm.OpcodeArrayCopy:
		if out.TypeIndex, err = re.typeIndex(ins.TypeIndex); err == nil {
			out.Index2, err = re.typeIndex(ins.Index2)
		}
	case wasm.OpcodeStructNew, wasm.OpcodeStructNewDefault,
		wasm.OpcodeStructGet, wasm.OpcodeStructGetS, wasm.OpcodeStructGetU, wasm.OpcodeStructSet,
		wasm.OpcodeArrayNew, wasm.OpcodeArrayNewDefault, wasm.OpcodeArrayNewFixed,
		wasm.OpcodeArrayGet, wasm.OpcodeArrayGetS, wasm.OpcodeArrayGetU, wasm.OpcodeArraySet,
		wasm.OpcodeArrayLen, wasm.OpcodeArrayFill:
		out.TypeIndex, err = re.typeIndex(ins.TypeIndex)
	case wasm.OpcodeRefTest, wasm.OpcodeRefTestNull, wasm.OpcodeRefCast, wasm.OpcodeRefCastNull, wasm.OpcodeRefNull:
		out.Heap, err = re.heapType(ins.Heap)
	case wasm.OpcodeBrOnCast, wasm.OpcodeBrOnCastFail:
		if out.Heap, err = re.heapType(ins.Heap); err == nil {
			out.Heap2, err = re.heapType(ins.Heap2)
		}
	case wasm.OpcodeThrow, wasm.OpcodeCatch:
		out.TagIndex, err = re.tagIndex(ins.TagIndex)
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf, wasm.OpcodeTry:
		out.Block, err = re.blockType(ins.Block)
	case wasm.OpcodeTryTable:
		if out.Block, err = re.blockType(ins.Block); err != nil {
			break
		}
		out.Catches = make([]wasm.Catch, len(ins.Catches))
		for i, c := range ins.Catches {
			nc := c
			if c.Kind == wasm.CatchTag || c.Kind == wasm.CatchTagRef {
				nc.TagIndex, err = re.tagIndex(c.TagIndex)
				if err != nil {
					break
				}
			}
			out.Catches[i] = nc
		}
	case wasm.OpcodeSelectT:
		out.SelectTypes = make([]wasm.ValueType, len(ins.SelectTypes))
		out.SelectRefs = make([]wasm.RefType, len(ins.SelectTypes))
		for i, vt := range ins.SelectTypes {
			var ref wasm.RefType
			if i < len(ins.SelectRefs) {
				ref = ins.SelectRefs[i]
			}
			out.SelectTypes[i], out.SelectRefs[i], err = re.valueType(vt, ref)
			if err != nil {
				break
			}
		}
	case wasm.OpcodeGlobalAtomicGet, wasm.OpcodeGlobalAtomicSet,
		wasm.OpcodeGlobalAtomicRmwAdd, wasm.OpcodeGlobalAtomicRmwSub,
		wasm.OpcodeGlobalAtomicRmwAnd, wasm.OpcodeGlobalAtomicRmwOr,
		wasm.OpcodeGlobalAtomicRmwXor, wasm.OpcodeGlobalAtomicRmwXchg,
		wasm.OpcodeGlobalAtomicRmwCmpxchg:
		out.GlobalIndex, err = re.globalIndex(ins.GlobalIndex)
	case wasm.OpcodeTableAtomicGet, wasm.OpcodeTableAtomicSet,
		wasm.OpcodeTableAtomicRmwXchg, wasm.OpcodeTableAtomicRmwCmpxchg:
		out.TableIndex, err = re.tableIndex(ins.TableIndex)
	case wasm.OpcodeStructAtomicGet, wasm.OpcodeStructAtomicGetS, wasm.OpcodeStructAtomicGetU,
		wasm.OpcodeStructAtomicSet, wasm.OpcodeStructAtomicRmwAdd, wasm.OpcodeStructAtomicRmwSub,
		wasm.OpcodeStructAtomicRmwAnd, wasm.OpcodeStructAtomicRmwOr, wasm.OpcodeStructAtomicRmwXor,
		wasm.OpcodeStructAtomicRmwXchg, wasm.OpcodeStructAtomicRmwCmpxchg:
		out.TypeIndex, err = re.typeIndex(ins.TypeIndex)
	case wasm.OpcodeArrayAtomicGet, wasm.OpcodeArrayAtomicGetS, wasm.OpcodeArrayAtomicGetU,
		wasm.OpcodeArrayAtomicSet, wasm.OpcodeArrayAtomicRmwAdd, wasm.OpcodeArrayAtomicRmwSub,
		wasm.OpcodeArrayAtomicRmwAnd, wasm.OpcodeArrayAtomicRmwOr, wasm.OpcodeArrayAtomicRmwXor,
		wasm.OpcodeArrayAtomicRmwXchg, wasm.OpcodeArrayAtomicRmwCmpxchg:
		out.TypeIndex, err = re.typeIndex(ins.TypeIndex)
	default:
		if isMemArgOpcode(ins.Opcode) {
			out.Mem.MemoryIndex, err = re.memoryIndex(ins.Mem.MemoryIndex)
		}
	}

	if err != nil {
		return wasm.Instruction{}, err
	}
	return out, nil
}

// isMemArgOpcode mirrors internal/usegraph's helper of the same name: every
// memarg-bearing load/store/memory-atomic op, whose ins.Mem.MemoryIndex this
// reencoder must remap even though none of those opcodes are named above.
// The shared-everything-threads global/table/struct/array atomics share the
// 0xfe prefix but carry no memarg; they are matched by name in the switch
// above and never fall through to this helper.
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

func (re reencoder) constExpr(e wasm.ConstExpr) (wasm.ConstExpr, error) {
	out := make([]wasm.Instruction, len(e.Instructions))
	for i, ins := range e.Instructions {
		n, err := re.instruction(ins)
		if err != nil {
			return wasm.ConstExpr{}, err
		}
		out[i] = n
	}
	return wasm.ConstExpr{Instructions: out}, nil
}
