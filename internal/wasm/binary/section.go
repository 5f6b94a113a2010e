package binary

import (
	"fmt"

	"github.com/bvisness/wasm-isolate/internal/wasm"
)

func decodeImportSection(r *reader) ([]wasm.Import, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	imports := make([]wasm.Import, n)
	for i := range imports {
		mod, err := r.readName()
		if err != nil {
			return nil, err
		}
		name, err := r.readName()
		if err != nil {
			return nil, err
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		im := wasm.Import{Module: mod, Name: name}
		switch kindByte {
		case 0x00:
			im.Kind = wasm.ImportKindFunc
			im.DescFunc, err = r.readUint32()
		case 0x01:
			im.Kind = wasm.ImportKindTable
			im.DescTable, err = decodeTableType(r)
		case 0x02:
			im.Kind = wasm.ImportKindMemory
			im.DescMemory, err = decodeMemoryType(r)
		case 0x03:
			im.Kind = wasm.ImportKindGlobal
			im.DescGlobal, err = decodeGlobalType(r)
		case 0x04:
			im.Kind = wasm.ImportKindTag
			var attr byte
			attr, err = r.ReadByte()
			if err == nil {
				_ = attr // tag attribute is always 0 (exception); nothing to store.
				im.DescTag.TypeIndex, err = r.readUint32()
			}
		default:
			return nil, fmt.Errorf("invalid import kind %#x", kindByte)
		}
		if err != nil {
			return nil, err
		}
		imports[i] = im
	}
	return imports, nil
}

func encodeImportSection(w *writer, imports []wasm.Import) error {
	w.writeVecHeader(len(imports))
	for _, im := range imports {
		w.writeName(im.Module)
		w.writeName(im.Name)
		switch im.Kind {
		case wasm.ImportKindFunc:
			w.writeByte(0x00)
			w.writeUint32(im.DescFunc)
		case wasm.ImportKindTable:
			w.writeByte(0x01)
			if err := encodeTableType(w, im.DescTable); err != nil {
				return err
			}
		case wasm.ImportKindMemory:
			w.writeByte(0x02)
			encodeMemoryType(w, im.DescMemory)
		case wasm.ImportKindGlobal:
			w.writeByte(0x03)
			if err := encodeGlobalType(w, im.DescGlobal); err != nil {
				return err
			}
		case wasm.ImportKindTag:
			w.writeByte(0x04)
			w.writeByte(0x00) // attribute: exception
			w.writeUint32(im.DescTag.TypeIndex)
		}
	}
	return nil
}

func decodeFunctionSection(r *reader) ([]uint32, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		if out[i], err = r.readUint32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeFunctionSection(w *writer, types []uint32) {
	w.writeVecHeader(len(types))
	for _, t := range types {
		w.writeUint32(t)
	}
}

func decodeTableSection(r *reader) ([]wasm.TableType, []wasm.Table, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, nil, err
	}
	types := make([]wasm.TableType, n)
	defs := make([]wasm.Table, n)
	for i := range types {
		// A table with an initializer expression is distinguished by a 0x40
		// marker byte (reftypes+function-references proposal); peek it.
		marker, err := r.ReadByte()
		if err != nil {
			return nil, nil, err
		}
		hasInit := marker == 0x40
		if hasInit {
			// 0x40 0x00 precedes the reftype when an initializer follows.
			if _, err := r.ReadByte(); err != nil {
				return nil, nil, err
			}
		} else {
			r.pos--
		}
		tt, err := decodeTableType(r)
		if err != nil {
			return nil, nil, err
		}
		types[i] = tt
		if hasInit {
			expr, err := decodeConstExpr(r)
			if err != nil {
				return nil, nil, err
			}
			defs[i] = wasm.Table{Type: tt, Init: &expr}
		} else {
			defs[i] = wasm.Table{Type: tt}
		}
	}
	return types, defs, nil
}

func encodeTableSection(w *writer, defs []wasm.Table) error {
	w.writeVecHeader(len(defs))
	for _, t := range defs {
		if t.Init != nil {
			w.writeByte(0x40)
			w.writeByte(0x00)
			if err := encodeTableType(w, t.Type); err != nil {
				return err
			}
			if err := encodeConstExpr(w, *t.Init); err != nil {
				return err
			}
		} else if err := encodeTableType(w, t.Type); err != nil {
			return err
		}
	}
	return nil
}

func decodeMemorySection(r *reader) ([]wasm.MemoryType, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.MemoryType, n)
	for i := range out {
		if out[i], err = decodeMemoryType(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeMemorySection(w *writer, mems []wasm.MemoryType) {
	w.writeVecHeader(len(mems))
	for _, m := range mems {
		encodeMemoryType(w, m)
	}
}

func decodeTagSection(r *reader) ([]wasm.TagType, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.TagType, n)
	for i := range out {
		if _, err := r.ReadByte(); err != nil { // attribute: always 0
			return nil, err
		}
		if out[i].TypeIndex, err = r.readUint32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeTagSection(w *writer, tags []wasm.TagType) {
	w.writeVecHeader(len(tags))
	for _, t := range tags {
		w.writeByte(0x00)
		w.writeUint32(t.TypeIndex)
	}
}

func decodeGlobalSection(r *reader) ([]wasm.GlobalType, []wasm.Global, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, nil, err
	}
	types := make([]wasm.GlobalType, n)
	defs := make([]wasm.Global, n)
	for i := range types {
		gt, err := decodeGlobalType(r)
		if err != nil {
			return nil, nil, err
		}
		init, err := decodeConstExpr(r)
		if err != nil {
			return nil, nil, err
		}
		types[i] = gt
		defs[i] = wasm.Global{Type: gt, Init: init}
	}
	return types, defs, nil
}

func encodeGlobalSection(w *writer, defs []wasm.Global) error {
	w.writeVecHeader(len(defs))
	for _, g := range defs {
		if err := encodeGlobalType(w, g.Type); err != nil {
			return err
		}
		if err := encodeConstExpr(w, g.Init); err != nil {
			return err
		}
	}
	return nil
}

func decodeExportSection(r *reader) ([]wasm.Export, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.Export, n)
	for i := range out {
		name, err := r.readName()
		if err != nil {
			return nil, err
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		idx, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		out[i] = wasm.Export{Name: name, Kind: wasm.ExportKind(kindByte), Index: idx}
	}
	return out, nil
}

func encodeExportSection(w *writer, exports []wasm.Export) {
	w.writeVecHeader(len(exports))
	for _, e := range exports {
		w.writeName(e.Name)
		w.writeByte(byte(e.Kind))
		w.writeUint32(e.Index)
	}
}

func decodeElementSegment(r *reader) (wasm.ElementSegment, error) {
	flags, err := r.readUint32()
	if err != nil {
		return wasm.ElementSegment{}, err
	}
	var seg wasm.ElementSegment
	funcrefType := wasm.RefType{Nullable: true, Heap: wasm.HeapType{Kind: wasm.HeapTypeAbstract, Abstract: wasm.HeapTypeFunc}}

	switch flags {
	case 0: // active, table 0, func vec, implicit funcref
		seg.Mode = wasm.ElementModeActive
		seg.Type = funcrefType
		offset, err := decodeConstExpr(r)
		if err != nil {
			return seg, err
		}
		seg.Offset = offset
		n, err := r.readUint32()
		if err != nil {
			return seg, err
		}
		seg.Init = make([]wasm.ElementInit, n)
		for i := range seg.Init {
			idx, err := r.readUint32()
			if err != nil {
				return seg, err
			}
			seg.Init[i] = wasm.ElementInit{FuncIndex: idx}
		}
		return seg, nil
	case 1: // passive, func vec, elemkind byte, implicit funcref
		seg.Mode = wasm.ElementModePassive
		seg.Type = funcrefType
		if _, err := r.ReadByte(); err != nil { // elemkind: always 0x00 (funcref)
			return seg, err
		}
		return decodeElemFuncVec(r, seg)
	case 2: // active, explicit table index, func vec, elemkind byte
		seg.Mode = wasm.ElementModeActive
		seg.Type = funcrefType
		idx, err := r.readUint32()
		if err != nil {
			return seg, err
		}
		seg.TableIndex = idx
		offset, err := decodeConstExpr(r)
		if err != nil {
			return seg, err
		}
		seg.Offset = offset
		if _, err := r.ReadByte(); err != nil {
			return seg, err
		}
		return decodeElemFuncVec(r, seg)
	case 3: // declared, func vec, elemkind byte
		seg.Mode = wasm.ElementModeDeclared
		seg.Type = funcrefType
		if _, err := r.ReadByte(); err != nil {
			return seg, err
		}
		return decodeElemFuncVec(r, seg)
	case 4: // active, table 0, expr vec, implicit funcref
		seg.Mode = wasm.ElementModeActive
		seg.Type = funcrefType
		offset, err := decodeConstExpr(r)
		if err != nil {
			return seg, err
		}
		seg.Offset = offset
		return decodeElemExprVec(r, seg)
	case 5: // passive, expr vec, explicit reftype
		seg.Mode = wasm.ElementModePassive
		rt, err := decodeRefType(r)
		if err != nil {
			return seg, err
		}
		seg.Type = rt
		return decodeElemExprVec(r, seg)
	case 6: // active, explicit table index, expr vec, explicit reftype
		seg.Mode = wasm.ElementModeActive
		idx, err := r.readUint32()
		if err != nil {
			return seg, err
		}
		seg.TableIndex = idx
		offset, err := decodeConstExpr(r)
		if err != nil {
			return seg, err
		}
		seg.Offset = offset
		rt, err := decodeRefType(r)
		if err != nil {
			return seg, err
		}
		seg.Type = rt
		return decodeElemExprVec(r, seg)
	case 7: // declared, expr vec, explicit reftype
		seg.Mode = wasm.ElementModeDeclared
		rt, err := decodeRefType(r)
		if err != nil {
			return seg, err
		}
		seg.Type = rt
		return decodeElemExprVec(r, seg)
	default:
		return seg, fmt.Errorf("invalid element segment flags %d", flags)
	}
}

func decodeElemFuncVec(r *reader, seg wasm.ElementSegment) (wasm.ElementSegment, error) {
	n, err := r.readUint32()
	if err != nil {
		return seg, err
	}
	seg.Init = make([]wasm.ElementInit, n)
	for i := range seg.Init {
		idx, err := r.readUint32()
		if err != nil {
			return seg, err
		}
		seg.Init[i] = wasm.ElementInit{FuncIndex: idx}
	}
	return seg, nil
}

func decodeElemExprVec(r *reader, seg wasm.ElementSegment) (wasm.ElementSegment, error) {
	n, err := r.readUint32()
	if err != nil {
		return seg, err
	}
	seg.Init = make([]wasm.ElementInit, n)
	for i := range seg.Init {
		expr, err := decodeConstExpr(r)
		if err != nil {
			return seg, err
		}
		seg.Init[i] = wasm.ElementInit{Expr: &expr}
	}
	return seg, nil
}

// encodeElementSegment always uses the most general applicable encoding
// (flags 5/6/7, expr-vec form) except for the plain table-0 funcref case,
// which it emits in the compact flags-0 form most tools and the original
// corpus of fixtures expect.
func encodeElementSegment(w *writer, seg wasm.ElementSegment) error {
	isFuncref := seg.Type.Heap.Kind == wasm.HeapTypeAbstract && seg.Type.Heap.Abstract == wasm.HeapTypeFunc && seg.Type.Nullable
	allFuncIndex := true
	for _, it := range seg.Init {
		if it.Expr != nil {
			allFuncIndex = false
			break
		}
	}

	switch seg.Mode {
	case wasm.ElementModeActive:
		if seg.TableIndex == 0 && isFuncref && allFuncIndex {
			w.writeUint32(0)
			if err := encodeConstExpr(w, seg.Offset); err != nil {
				return err
			}
			w.writeVecHeader(len(seg.Init))
			for _, it := range seg.Init {
				w.writeUint32(it.FuncIndex)
			}
			return nil
		}
		w.writeUint32(6)
		w.writeUint32(seg.TableIndex)
		if err := encodeConstExpr(w, seg.Offset); err != nil {
			return err
		}
		if err := encodeRefType(w, seg.Type); err != nil {
			return err
		}
		return encodeElemExprVec(w, seg.Init)

	case wasm.ElementModePassive:
		w.writeUint32(5)
		if err := encodeRefType(w, seg.Type); err != nil {
			return err
		}
		return encodeElemExprVec(w, seg.Init)

	case wasm.ElementModeDeclared:
		w.writeUint32(7)
		if err := encodeRefType(w, seg.Type); err != nil {
			return err
		}
		return encodeElemExprVec(w, seg.Init)
	}
	return fmt.Errorf("invalid element segment mode %d", seg.Mode)
}

func encodeElemExprVec(w *writer, items []wasm.ElementInit) error {
	w.writeVecHeader(len(items))
	for _, it := range items {
		if it.Expr != nil {
			if err := encodeConstExpr(w, *it.Expr); err != nil {
				return err
			}
			continue
		}
		// Bare func index item: encode as a ref.func/end expression.
		e := wasm.ConstExpr{Instructions: []wasm.Instruction{
			{Opcode: wasm.OpcodeRefFunc, FuncIndex: it.FuncIndex},
			{Opcode: wasm.OpcodeEnd},
		}}
		if err := encodeConstExpr(w, e); err != nil {
			return err
		}
	}
	return nil
}

func encodeRefType(w *writer, rt wasm.RefType) error {
	return encodeValType(w, vtForRef(rt), rt)
}

// vtForRef picks a reference-typed ValueType purely to satisfy
// encodeValType's IsReference gate; as with refValType in value.go, the
// actual byte written is fully determined by the RefType argument.
func vtForRef(wasm.RefType) wasm.ValueType { return wasm.ValueTypeFuncref }

func decodeElementSection(r *reader) ([]wasm.ElementSegment, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.ElementSegment, n)
	for i := range out {
		if out[i], err = decodeElementSegment(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeElementSection(w *writer, segs []wasm.ElementSegment) error {
	w.writeVecHeader(len(segs))
	for _, s := range segs {
		if err := encodeElementSegment(w, s); err != nil {
			return err
		}
	}
	return nil
}

func decodeDataSegment(r *reader) (wasm.DataSegment, error) {
	flags, err := r.readUint32()
	if err != nil {
		return wasm.DataSegment{}, err
	}
	var seg wasm.DataSegment
	switch flags {
	case 0:
		seg.Mode = wasm.DataModeActive
		offset, err := decodeConstExpr(r)
		if err != nil {
			return seg, err
		}
		seg.Offset = offset
	case 1:
		seg.Mode = wasm.DataModePassive
	case 2:
		seg.Mode = wasm.DataModeActive
		idx, err := r.readUint32()
		if err != nil {
			return seg, err
		}
		seg.MemoryIndex = idx
		offset, err := decodeConstExpr(r)
		if err != nil {
			return seg, err
		}
		seg.Offset = offset
	default:
		return seg, fmt.Errorf("invalid data segment flags %d", flags)
	}
	n, err := r.readUint32()
	if err != nil {
		return seg, err
	}
	data, err := r.readN(int(n))
	if err != nil {
		return seg, err
	}
	seg.Init = append([]byte{}, data...)
	return seg, nil
}

func encodeDataSegment(w *writer, seg wasm.DataSegment) error {
	switch seg.Mode {
	case wasm.DataModeActive:
		if seg.MemoryIndex == 0 {
			w.writeUint32(0)
		} else {
			w.writeUint32(2)
			w.writeUint32(seg.MemoryIndex)
		}
		if err := encodeConstExpr(w, seg.Offset); err != nil {
			return err
		}
	case wasm.DataModePassive:
		w.writeUint32(1)
	}
	w.writeVecHeader(len(seg.Init))
	w.writeBytes(seg.Init)
	return nil
}

func decodeDataSection(r *reader) ([]wasm.DataSegment, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.DataSegment, n)
	for i := range out {
		if out[i], err = decodeDataSegment(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeDataSection(w *writer, segs []wasm.DataSegment) error {
	w.writeVecHeader(len(segs))
	for _, s := range segs {
		if err := encodeDataSegment(w, s); err != nil {
			return err
		}
	}
	return nil
}

func decodeLocals(r *reader) ([]wasm.LocalDecl, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.LocalDecl, n)
	for i := range out {
		count, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		vt, ref, err := decodeValType(r)
		if err != nil {
			return nil, err
		}
		out[i] = wasm.LocalDecl{Count: count, Type: vt, Ref: ref}
	}
	return out, nil
}

func encodeLocals(w *writer, locals []wasm.LocalDecl) error {
	w.writeVecHeader(len(locals))
	for _, l := range locals {
		w.writeUint32(l.Count)
		if err := encodeValType(w, l.Type, l.Ref); err != nil {
			return err
		}
	}
	return nil
}

func decodeFunctionBody(buf []byte, base uint64, typeIndex uint32) (wasm.Function, error) {
	r := newReader(buf, base)
	locals, err := decodeLocals(r)
	if err != nil {
		return wasm.Function{}, err
	}
	body, err := decodeExpr(r)
	if err != nil {
		return wasm.Function{}, err
	}
	return wasm.Function{TypeIndex: typeIndex, Locals: locals, Body: body}, nil
}

func decodeCodeSection(r *reader, funcTypes []uint32, numImportedFuncs uint32) ([]wasm.Function, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.Function, n)
	for i := range out {
		size, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		body, err := r.readN(int(size))
		if err != nil {
			return nil, err
		}
		typeIdx := uint32(0)
		if int(numImportedFuncs)+i < len(funcTypes) {
			typeIdx = funcTypes[int(numImportedFuncs)+i]
		}
		fn, err := decodeFunctionBody(body, r.base+uint64(r.pos-len(body)), typeIdx)
		if err != nil {
			return nil, err
		}
		out[i] = fn
	}
	return out, nil
}

func encodeFunctionBody(fn wasm.Function) ([]byte, error) {
	w := newWriter()
	if err := encodeLocals(w, fn.Locals); err != nil {
		return nil, err
	}
	if err := encodeExpr(w, fn.Body); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func encodeCodeSection(w *writer, code []wasm.Function) error {
	w.writeVecHeader(len(code))
	for _, fn := range code {
		body, err := encodeFunctionBody(fn)
		if err != nil {
			return err
		}
		w.writeVecHeader(len(body))
		w.writeBytes(body)
	}
	return nil
}
