package binary

import (
	"fmt"

	"github.com/bvisness/wasm-isolate/internal/leb128"
	"github.com/bvisness/wasm-isolate/internal/wasm"
)

// decodeExpr decodes an instruction sequence up to and including its
// terminating `end` (or, for an `if`, possibly an `else` ... `end`). It is
// used both for function bodies and constant expressions; nesting is
// tracked generically by counting opens/closes of every structured
// instruction (block/loop/if/try/try_table).
func decodeExpr(r *reader) ([]wasm.Instruction, error) {
	var out []wasm.Instruction
	depth := 0
	for {
		ins, err := decodeInstruction(r)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
		switch ins.Opcode {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf, wasm.OpcodeTry, wasm.OpcodeTryTable:
			depth++
		case wasm.OpcodeEnd, wasm.OpcodeDelegate:
			if depth == 0 {
				return out, nil
			}
			depth--
		}
	}
}

func decodeInstruction(r *reader) (wasm.Instruction, error) {
	b, err := r.ReadByte()
	if err != nil {
		return wasm.Instruction{}, err
	}

	switch b {
	case wasm.OpcodeVecPrefix:
		return decodeVecInstruction(r)
	case wasm.OpcodeAtomicPrefix:
		return decodeAtomicInstruction(r)
	case 0xfb:
		return decodeGCInstruction(r)
	case 0xfc:
		return decodeMiscInstruction(r)
	}

	op := wasm.Opcode(b)
	ins := wasm.Instruction{Opcode: op}

	switch op {
	case wasm.OpcodeUnreachable, wasm.OpcodeNop, wasm.OpcodeElse, wasm.OpcodeEnd,
		wasm.OpcodeReturn, wasm.OpcodeDrop, wasm.OpcodeSelect, wasm.OpcodeCatchAll:
		return ins, nil

	case wasm.OpcodeDelegate:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.LocalIndex = idx // relative depth; inert, terminates the enclosing try like `end`.
		return ins, nil

	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
		bt, err := decodeBlockType(r)
		if err != nil {
			return ins, err
		}
		ins.Block = bt
		return ins, nil

	case wasm.OpcodeTry:
		bt, err := decodeBlockType(r)
		if err != nil {
			return ins, err
		}
		ins.Block = bt
		return ins, nil

	case wasm.OpcodeCatch:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.TagIndex = idx
		return ins, nil

	case wasm.OpcodeThrow:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.TagIndex = idx
		return ins, nil

	case wasm.OpcodeRethrow, wasm.OpcodeThrowRef:
		if op == wasm.OpcodeRethrow {
			idx, err := r.readUint32()
			if err != nil {
				return ins, err
			}
			ins.LocalIndex = idx // relative depth; inert, reused field to avoid a one-off.
		}
		return ins, nil

	case wasm.OpcodeTryTable:
		bt, err := decodeBlockType(r)
		if err != nil {
			return ins, err
		}
		ins.Block = bt
		n, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		catches := make([]wasm.Catch, n)
		for i := range catches {
			kb, err := r.ReadByte()
			if err != nil {
				return ins, err
			}
			var c wasm.Catch
			switch kb {
			case 0x00:
				c.Kind = wasm.CatchTag
			case 0x01:
				c.Kind = wasm.CatchTagRef
			case 0x02:
				c.Kind = wasm.CatchAll
			case 0x03:
				c.Kind = wasm.CatchAllRef
			default:
				return ins, fmt.Errorf("invalid catch kind %#x", kb)
			}
			if c.Kind == wasm.CatchTag || c.Kind == wasm.CatchTagRef {
				idx, err := r.readUint32()
				if err != nil {
					return ins, err
				}
				c.TagIndex = idx
			}
			label, err := r.readUint32()
			if err != nil {
				return ins, err
			}
			c.Label = label
			catches[i] = c
		}
		ins.Catches = catches
		return ins, nil

	case wasm.OpcodeBr, wasm.OpcodeBrIf:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.LocalIndex = idx // relative depth; inert.
		return ins, nil

	case wasm.OpcodeBrTable:
		n, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		depths := make([]uint32, n+1)
		for i := range depths {
			d, err := r.readUint32()
			if err != nil {
				return ins, err
			}
			depths[i] = d
		}
		ins.RelativeDepths = depths
		return ins, nil

	case wasm.OpcodeCall, wasm.OpcodeReturnCall:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.FuncIndex = idx
		return ins, nil

	case wasm.OpcodeCallIndirect, wasm.OpcodeReturnCallIndirect:
		typeIdx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		tableIdx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.TypeIndex = typeIdx
		ins.TableIndex = tableIdx
		return ins, nil

	case wasm.OpcodeCallRef, wasm.OpcodeReturnCallRef:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.TypeIndex = idx
		return ins, nil

	case wasm.OpcodeSelectT:
		vts, refs, err := decodeValTypeVec(r)
		if err != nil {
			return ins, err
		}
		ins.SelectTypes = vts
		ins.SelectRefs = refs
		return ins, nil

	case wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.LocalIndex = idx
		return ins, nil

	case wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.GlobalIndex = idx
		return ins, nil

	case wasm.OpcodeTableGet, wasm.OpcodeTableSet:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.TableIndex = idx
		return ins, nil

	case wasm.OpcodeI32Load, wasm.OpcodeI64Load, wasm.OpcodeF32Load, wasm.OpcodeF64Load,
		wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U,
		wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U,
		wasm.OpcodeI32Store, wasm.OpcodeI64Store, wasm.OpcodeF32Store, wasm.OpcodeF64Store,
		wasm.OpcodeI32Store8, wasm.OpcodeI32Store16, wasm.OpcodeI64Store8, wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
		m, err := decodeMemArg(r)
		if err != nil {
			return ins, err
		}
		ins.Mem = m
		return ins, nil

	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.MemoryIndex = idx
		return ins, nil

	case wasm.OpcodeI32Const:
		v, err := r.readInt32()
		if err != nil {
			return ins, err
		}
		ins.Raw = leb128EncodeInt32(v)
		return ins, nil

	case wasm.OpcodeI64Const:
		v, err := r.readInt64()
		if err != nil {
			return ins, err
		}
		ins.Raw = leb128EncodeInt64(v)
		return ins, nil

	case wasm.OpcodeF32Const:
		b4, err := r.readN(4)
		if err != nil {
			return ins, err
		}
		ins.Raw = append([]byte{}, b4...)
		return ins, nil

	case wasm.OpcodeF64Const:
		b8, err := r.readN(8)
		if err != nil {
			return ins, err
		}
		ins.Raw = append([]byte{}, b8...)
		return ins, nil

	case wasm.OpcodeRefNull:
		h, err := decodeHeapType(r)
		if err != nil {
			return ins, err
		}
		ins.Heap = h
		return ins, nil

	case wasm.OpcodeRefIsNull, wasm.OpcodeRefEq, wasm.OpcodeRefAsNonNull:
		return ins, nil

	case wasm.OpcodeRefFunc:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.FuncIndex = idx
		return ins, nil

	case wasm.OpcodeBrOnNull, wasm.OpcodeBrOnNonNull:
		idx, err := r.readUint32()
		if err != nil {
			return ins, err
		}
		ins.LocalIndex = idx // relative depth; inert.
		return ins, nil
	}

	if op.IsNumeric() {
		return ins, nil
	}

	return ins, fmt.Errorf("unknown opcode %#x", b)
}

// leb128EncodeInt32/64 re-derive the canonical LEB128 encoding of a decoded
// constant so i32.const/i64.const store their operand the same way
// f32.const/f64.const store theirs: as the exact bytes the encoder re-emits.
func leb128EncodeInt32(v int32) []byte { return leb128.EncodeInt32(v) }
func leb128EncodeInt64(v int64) []byte { return leb128.EncodeInt64(v) }

func decodeMemArg(r *reader) (wasm.MemArg, error) {
	align, err := r.readUint32()
	if err != nil {
		return wasm.MemArg{}, err
	}
	var m wasm.MemArg
	if align&0x40 != 0 {
		// Multi-memory encodes the memory index in the align field's high bit.
		m.MemoryIndex, err = r.readUint32()
		if err != nil {
			return wasm.MemArg{}, err
		}
		align &^= 0x40
	}
	m.Align = align
	off, err := r.readUint64()
	if err != nil {
		return wasm.MemArg{}, err
	}
	m.Offset = off
	return m, nil
}

func encodeMemArg(w *writer, m wasm.MemArg) {
	align := m.Align
	if m.MemoryIndex != 0 {
		align |= 0x40
	}
	w.writeUint32(align)
	if m.MemoryIndex != 0 {
		w.writeUint32(m.MemoryIndex)
	}
	w.writeUint64(m.Offset)
}
