package binary

import (
	"fmt"

	"github.com/bvisness/wasm-isolate/internal/wasm"
)

// abstractHeapValue is the signed s33 value used to encode each abstract
// heap type as a *heap type* (the operand of ref.null, ref.test, etc.).
// Concrete heap types encode as the (non-negative) type index itself; these
// are the reserved negative values.
var abstractHeapValue = map[wasm.AbstractHeapType]int64{
	wasm.HeapTypeFunc:     -16, // 0x70
	wasm.HeapTypeExtern:   -17, // 0x6f
	wasm.HeapTypeAny:      -18, // 0x6e
	wasm.HeapTypeEq:       -19, // 0x6d
	wasm.HeapTypeI31:      -20, // 0x6c
	wasm.HeapTypeStruct:   -21, // 0x6b
	wasm.HeapTypeArray:    -22, // 0x6a
	wasm.HeapTypeNone:     -15, // 0x71
	wasm.HeapTypeNoExtern: -14, // 0x72
	wasm.HeapTypeNoFunc:   -13, // 0x73
}

var heapValueToAbstract = func() map[int64]wasm.AbstractHeapType {
	m := make(map[int64]wasm.AbstractHeapType, len(abstractHeapValue))
	for k, v := range abstractHeapValue {
		m[v] = k
	}
	return m
}()

// abstractRefByte is the one-byte shorthand each abstract heap type has in
// the value-type grammar itself (always the nullable form: funcref,
// externref, anyref, ...). It shares its numeric space with abstractHeapValue
// (the same byte reread as a signed s33 yields the same value) but is keyed
// by byte here since decodeValType/encodeValType work one byte at a time.
var abstractRefByte = map[wasm.AbstractHeapType]byte{
	wasm.HeapTypeFunc:     byte(wasm.ValueTypeFuncref),
	wasm.HeapTypeExtern:   byte(wasm.ValueTypeExternref),
	wasm.HeapTypeAny:      0x6e,
	wasm.HeapTypeEq:       0x6d,
	wasm.HeapTypeI31:      0x6c,
	wasm.HeapTypeStruct:   0x6b,
	wasm.HeapTypeArray:    0x6a,
	wasm.HeapTypeNone:     0x71,
	wasm.HeapTypeNoExtern: 0x72,
	wasm.HeapTypeNoFunc:   0x73,
}

var refByteToAbstract = func() map[byte]wasm.AbstractHeapType {
	m := make(map[byte]wasm.AbstractHeapType, len(abstractRefByte))
	for k, v := range abstractRefByte {
		m[v] = k
	}
	return m
}()

func decodeHeapType(r *reader) (wasm.HeapType, error) {
	v, err := r.readInt33()
	if err != nil {
		return wasm.HeapType{}, err
	}
	if v >= 0 {
		return wasm.HeapType{Kind: wasm.HeapTypeConcrete, TypeIndex: uint32(v)}, nil
	}
	abs, ok := heapValueToAbstract[v]
	if !ok {
		return wasm.HeapType{}, fmt.Errorf("unknown abstract heap type %d", v)
	}
	return wasm.HeapType{Kind: wasm.HeapTypeAbstract, Abstract: abs}, nil
}

func encodeHeapType(w *writer, h wasm.HeapType) error {
	if h.Kind == wasm.HeapTypeConcrete {
		w.writeInt64(int64(h.TypeIndex))
		return nil
	}
	v, ok := abstractHeapValue[h.Abstract]
	if !ok {
		return fmt.Errorf("unknown abstract heap type %d", h.Abstract)
	}
	w.writeInt64(v)
	return nil
}

// decodeValType decodes a single value type byte, expanding the funcref/
// externref/ref/ref-null encodings into a uniform RefType when applicable.
func decodeValType(r *reader) (wasm.ValueType, wasm.RefType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, wasm.RefType{}, err
	}
	switch wasm.ValueType(b) {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64, wasm.ValueTypeV128:
		return wasm.ValueType(b), wasm.RefType{}, nil
	case 0x64: // (ref ht), non-null
		h, err := decodeHeapType(r)
		if err != nil {
			return 0, wasm.RefType{}, err
		}
		return 0x64, wasm.RefType{Nullable: false, Heap: h}, nil
	case 0x63: // (ref null ht)
		h, err := decodeHeapType(r)
		if err != nil {
			return 0, wasm.RefType{}, err
		}
		return 0x63, wasm.RefType{Nullable: true, Heap: h}, nil
	}
	if abs, ok := refByteToAbstract[b]; ok {
		return wasm.ValueType(b), wasm.RefType{Nullable: true, Heap: wasm.HeapType{Kind: wasm.HeapTypeAbstract, Abstract: abs}}, nil
	}
	return 0, wasm.RefType{}, fmt.Errorf("invalid value type byte %#x", b)
}

// encodeValType emits the narrowest legal encoding for (vt, ref): the
// one-byte shorthand for every abstract reference type (funcref, externref,
// anyref, ...), and the general ref/ref-null form only for concrete heap
// types or non-null abstract ones.
func encodeValType(w *writer, vt wasm.ValueType, ref wasm.RefType) error {
	if !vt.IsReference() {
		w.writeByte(byte(vt))
		return nil
	}
	if ref.Nullable && ref.Heap.Kind == wasm.HeapTypeAbstract {
		if b, ok := abstractRefByte[ref.Heap.Abstract]; ok {
			w.writeByte(b)
			return nil
		}
	}
	if ref.Nullable {
		w.writeByte(0x63)
	} else {
		w.writeByte(0x64)
	}
	return encodeHeapType(w, ref.Heap)
}

func decodeValTypeVec(r *reader) ([]wasm.ValueType, []wasm.RefType, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, nil, err
	}
	vts := make([]wasm.ValueType, n)
	refs := make([]wasm.RefType, n)
	for i := range vts {
		vt, ref, err := decodeValType(r)
		if err != nil {
			return nil, nil, err
		}
		vts[i] = vt
		if vt.IsReference() {
			refs[i] = ref
		}
	}
	return vts, refs, nil
}

func encodeValTypeVec(w *writer, vts []wasm.ValueType, refs []wasm.RefType) error {
	w.writeVecHeader(len(vts))
	for i, vt := range vts {
		var ref wasm.RefType
		if i < len(refs) {
			ref = refs[i]
		}
		if err := encodeValType(w, vt, ref); err != nil {
			return err
		}
	}
	return nil
}

func decodeLimits(r *reader, memory64 bool) (wasm.Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return wasm.Limits{}, err
	}
	hasMax := flags&0x01 != 0
	shared := flags&0x02 != 0
	is64 := flags&0x04 != 0 || memory64
	readIdx := func() (uint32, error) {
		if is64 {
			v, err := r.readUint64()
			return uint32(v), err
		}
		return r.readUint32()
	}
	min, err := readIdx()
	if err != nil {
		return wasm.Limits{}, err
	}
	l := wasm.Limits{Min: min, Shared: shared, Memory64: is64}
	if hasMax {
		max, err := readIdx()
		if err != nil {
			return wasm.Limits{}, err
		}
		l.Max = &max
	}
	return l, nil
}

func encodeLimits(w *writer, l wasm.Limits) {
	var flags byte
	if l.Max != nil {
		flags |= 0x01
	}
	if l.Shared {
		flags |= 0x02
	}
	if l.Memory64 {
		flags |= 0x04
	}
	w.writeByte(flags)
	writeIdx := func(v uint32) {
		if l.Memory64 {
			w.writeUint64(uint64(v))
		} else {
			w.writeUint32(v)
		}
	}
	writeIdx(l.Min)
	if l.Max != nil {
		writeIdx(*l.Max)
	}
}

func decodeRefType(r *reader) (wasm.RefType, error) {
	vt, ref, err := decodeValType(r)
	if err != nil {
		return wasm.RefType{}, err
	}
	if !vt.IsReference() {
		return wasm.RefType{}, fmt.Errorf("expected reference type, got %s", vt)
	}
	return ref, nil
}

func decodeTableType(r *reader) (wasm.TableType, error) {
	ref, err := decodeRefType(r)
	if err != nil {
		return wasm.TableType{}, err
	}
	limits, err := decodeLimits(r, false)
	if err != nil {
		return wasm.TableType{}, err
	}
	return wasm.TableType{ElemType: ref, Limits: limits}, nil
}

func encodeTableType(w *writer, t wasm.TableType) error {
	if err := encodeValType(w, refValType(t.ElemType), t.ElemType); err != nil {
		return err
	}
	encodeLimits(w, t.Limits)
	return nil
}

// refValType picks the nominal ValueType byte for a RefType purely so
// encodeValType's IsReference() gate is satisfied; the actual byte emitted is
// determined by ref itself.
func refValType(wasm.RefType) wasm.ValueType { return wasm.ValueTypeFuncref }

func decodeMemoryType(r *reader) (wasm.MemoryType, error) {
	l, err := decodeLimits(r, false)
	if err != nil {
		return wasm.MemoryType{}, err
	}
	return wasm.MemoryType{Limits: l}, nil
}

func encodeMemoryType(w *writer, m wasm.MemoryType) { encodeLimits(w, m.Limits) }

func decodeGlobalType(r *reader) (wasm.GlobalType, error) {
	vt, ref, err := decodeValType(r)
	if err != nil {
		return wasm.GlobalType{}, err
	}
	mutFlag, err := r.ReadByte()
	if err != nil {
		return wasm.GlobalType{}, err
	}
	return wasm.GlobalType{ValType: vt, Ref: ref, Mutable: mutFlag != 0}, nil
}

func encodeGlobalType(w *writer, g wasm.GlobalType) error {
	if err := encodeValType(w, g.ValType, g.Ref); err != nil {
		return err
	}
	if g.Mutable {
		w.writeByte(1)
	} else {
		w.writeByte(0)
	}
	return nil
}

func decodeStorageType(r *reader) (wasm.StorageType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return wasm.StorageType{}, err
	}
	if b == wasm.PackedTypeI8 || b == wasm.PackedTypeI16 {
		return wasm.StorageType{Kind: wasm.StorageTypePacked, Packed: b}, nil
	}
	// Not a packed type: re-decode the byte as a full value type. Concrete
	// ref types need the follow-on heap type too, so route back through
	// decodeValType by constructing a reader positioned before b.
	r.pos--
	vt, ref, err := decodeValType(r)
	if err != nil {
		return wasm.StorageType{}, err
	}
	return wasm.StorageType{Kind: wasm.StorageTypeValue, Value: vt, Ref: ref}, nil
}

func encodeStorageType(w *writer, s wasm.StorageType) error {
	if s.Kind == wasm.StorageTypePacked {
		w.writeByte(s.Packed)
		return nil
	}
	return encodeValType(w, s.Value, s.Ref)
}

func decodeFieldType(r *reader) (wasm.FieldType, error) {
	st, err := decodeStorageType(r)
	if err != nil {
		return wasm.FieldType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return wasm.FieldType{}, err
	}
	return wasm.FieldType{Storage: st, Mutable: mut != 0}, nil
}

func encodeFieldType(w *writer, f wasm.FieldType) error {
	if err := encodeStorageType(w, f.Storage); err != nil {
		return err
	}
	if f.Mutable {
		w.writeByte(1)
	} else {
		w.writeByte(0)
	}
	return nil
}

func decodeBlockType(r *reader) (wasm.BlockType, error) {
	v, err := r.readInt33()
	if err != nil {
		return wasm.BlockType{}, err
	}
	if v == -0x40 {
		return wasm.BlockType{Kind: wasm.BlockTypeEmpty}, nil
	}
	if v >= 0 {
		return wasm.BlockType{Kind: wasm.BlockTypeFuncType, TypeIndex: uint32(v)}, nil
	}
	// A negative block type is always a one-byte value type (numeric,
	// vector, or an abstract reference shorthand), reread here as that byte.
	b := byte(v & 0x7f)
	vt, ref, err := decodeValType(&reader{buf: []byte{b}})
	if err != nil {
		return wasm.BlockType{}, err
	}
	return wasm.BlockType{Kind: wasm.BlockTypeValue, Value: vt, ValueRef: ref}, nil
}

func encodeBlockType(w *writer, b wasm.BlockType) error {
	switch b.Kind {
	case wasm.BlockTypeEmpty:
		w.writeInt64(-0x40)
		return nil
	case wasm.BlockTypeFuncType:
		w.writeInt64(int64(b.TypeIndex))
		return nil
	default: // BlockTypeValue
		return encodeValType(w, b.Value, b.ValueRef)
	}
}
