package binary

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bvisness/wasm-isolate/internal/leb128"
	"github.com/bvisness/wasm-isolate/internal/wasm"
)

// buildMinimalModule hand-assembles a tiny valid module: one function type
// (i32) -> i32, one function using it that adds a constant to its
// parameter, and an export naming it "add1". This exercises the type,
// function, code and export sections plus a handful of plain-opcode
// instructions (local.get, i32.const, i32.add, end).
func buildMinimalModule(t *testing.T) []byte {
	t.Helper()

	w := newWriter()
	w.writeBytes(Magic)
	leWriteUint32(w, 1)

	// Type section: one func type (i32) -> i32.
	typeSec := newWriter()
	typeSec.writeVecHeader(1)
	typeSec.writeByte(compositeFuncByte)
	typeSec.writeVecHeader(1)
	typeSec.writeByte(byte(wasm.ValueTypeI32))
	typeSec.writeVecHeader(1)
	typeSec.writeByte(byte(wasm.ValueTypeI32))
	writeSection(w, wasm.SectionIDType, typeSec.Bytes())

	// Function section: one function of type 0.
	funcSec := newWriter()
	funcSec.writeVecHeader(1)
	funcSec.writeUint32(0)
	writeSection(w, wasm.SectionIDFunction, funcSec.Bytes())

	// Export section: export function 0 as "add1".
	exportSec := newWriter()
	exportSec.writeVecHeader(1)
	exportSec.writeName("add1")
	exportSec.writeByte(byte(wasm.ExportKindFunc))
	exportSec.writeUint32(0)
	writeSection(w, wasm.SectionIDExport, exportSec.Bytes())

	// Code section: one function body, no locals, local.get 0; i32.const 41; i32.add; end.
	codeSec := newWriter()
	codeSec.writeVecHeader(1)
	body := newWriter()
	body.writeVecHeader(0) // no local decls
	body.writeByte(byte(wasm.OpcodeLocalGet))
	body.writeUint32(0)
	body.writeByte(byte(wasm.OpcodeI32Const))
	body.writeInt64(41)
	body.writeByte(0x6a) // i32.add; not individually named, see Opcode.IsNumeric
	body.writeByte(byte(wasm.OpcodeEnd))
	codeSec.writeUint32(uint32(body.Len()))
	codeSec.writeBytes(body.Bytes())
	writeSection(w, wasm.SectionIDCode, codeSec.Bytes())

	return w.Bytes()
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	raw := buildMinimalModule(t)

	m, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, m.TypeSection, 1)
	require.Equal(t, wasm.CompositeFunc, m.TypeSection[0].Composite.Kind)
	require.Equal(t, []wasm.ValueType{wasm.ValueTypeI32}, m.TypeSection[0].Composite.Func.Params)
	require.Len(t, m.Code, 1)
	require.Len(t, m.Code[0].Body, 4)
	require.Equal(t, wasm.OpcodeLocalGet, m.Code[0].Body[0].Opcode)
	require.Equal(t, uint32(0), m.Code[0].Body[0].LocalIndex)
	require.Equal(t, wasm.OpcodeEnd, m.Code[0].Body[3].Opcode)
	require.Len(t, m.ExportSection, 1)
	require.Equal(t, "add1", m.ExportSection[0].Name)

	out, err := Encode(m)
	require.NoError(t, err)

	m2, err := Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, m.TypeSection, m2.TypeSection)
	require.Equal(t, m.FunctionSection, m2.FunctionSection)
	require.Equal(t, m.ExportSection, m2.ExportSection)
	require.Len(t, m2.Code, 1)
	require.Equal(t, m.Code[0].Body, m2.Code[0].Body)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0, 1, 2, 3, 1, 0, 0, 0}))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

// buildModule assembles a module from a single empty-signature type, an
// optional section sandwiched between the function and code sections (one
// that the section order places there, e.g. memory, tag or global), an
// optional section appended after code (e.g. data), and a single-function
// code section whose body is the given instruction bytes. This is enough to
// round-trip one instruction from each proposal family without validating
// the surrounding stack discipline, which Decode never checks either.
func buildModule(t *testing.T, beforeCodeID wasm.SectionID, beforeCode []byte, afterCodeID wasm.SectionID, afterCode []byte, body []byte) []byte {
	t.Helper()

	w := newWriter()
	w.writeBytes(Magic)
	leWriteUint32(w, 1)

	typeSec := newWriter()
	typeSec.writeVecHeader(1)
	typeSec.writeByte(compositeFuncByte)
	typeSec.writeVecHeader(0)
	typeSec.writeVecHeader(0)
	writeSection(w, wasm.SectionIDType, typeSec.Bytes())

	funcSec := newWriter()
	funcSec.writeVecHeader(1)
	funcSec.writeUint32(0)
	writeSection(w, wasm.SectionIDFunction, funcSec.Bytes())

	if beforeCode != nil {
		writeSection(w, beforeCodeID, beforeCode)
	}

	codeSec := newWriter()
	codeSec.writeVecHeader(1)
	fn := newWriter()
	fn.writeVecHeader(0)
	fn.writeBytes(body)
	codeSec.writeUint32(uint32(fn.Len()))
	codeSec.writeBytes(fn.Bytes())
	writeSection(w, wasm.SectionIDCode, codeSec.Bytes())

	if afterCode != nil {
		writeSection(w, afterCodeID, afterCode)
	}

	return w.Bytes()
}

func leb(v uint32) []byte { return leb128.EncodeUint32(v) }

// TestRoundTripGCStructNew exercises the GC proposal (0xfb prefix): struct.new
// with a real type-index operand.
func TestRoundTripGCStructNew(t *testing.T) {
	body := append([]byte{0xfb}, leb(0x00)...) // struct.new type 0
	body = append(body, leb(0)...)
	body = append(body, byte(wasm.OpcodeDrop), byte(wasm.OpcodeEnd))

	raw := buildModule(t, 0, nil, 0, nil, body)
	m, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, wasm.OpcodeStructNew, m.Code[0].Body[0].Opcode)
	require.Equal(t, uint32(0), m.Code[0].Body[0].TypeIndex)

	out, err := Encode(m)
	require.NoError(t, err)
	m2, err := Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, m.Code, m2.Code)
}

// TestRoundTripExceptionHandlingThrow exercises exception handling: throw
// with a real tag-index operand.
func TestRoundTripExceptionHandlingThrow(t *testing.T) {
	tagSec := newWriter()
	tagSec.writeVecHeader(1)
	tagSec.writeByte(0x00)
	tagSec.writeUint32(0)

	body := append([]byte{byte(wasm.OpcodeThrow)}, leb(0)...)
	body = append(body, byte(wasm.OpcodeUnreachable), byte(wasm.OpcodeEnd))

	raw := buildModule(t, wasm.SectionIDTag, tagSec.Bytes(), 0, nil, body)
	m, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, m.TagSection, 1)
	require.Equal(t, wasm.OpcodeThrow, m.Code[0].Body[0].Opcode)
	require.Equal(t, uint32(0), m.Code[0].Body[0].TagIndex)

	out, err := Encode(m)
	require.NoError(t, err)
	m2, err := Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, m.TagSection, m2.TagSection)
	require.Equal(t, m.Code, m2.Code)
}

// TestRoundTripTailCallReturnCall exercises the tail-call proposal:
// return_call with a real function-index operand.
func TestRoundTripTailCallReturnCall(t *testing.T) {
	body := append([]byte{byte(wasm.OpcodeReturnCall)}, leb(0)...)
	body = append(body, byte(wasm.OpcodeEnd))

	raw := buildModule(t, 0, nil, 0, nil, body)
	m, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, wasm.OpcodeReturnCall, m.Code[0].Body[0].Opcode)
	require.Equal(t, uint32(0), m.Code[0].Body[0].FuncIndex)

	out, err := Encode(m)
	require.NoError(t, err)
	m2, err := Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, m.Code, m2.Code)
}

// TestRoundTripTypedFunctionReferenceCallRef exercises the function-references
// proposal: call_ref with a real type-index operand.
func TestRoundTripTypedFunctionReferenceCallRef(t *testing.T) {
	body := append([]byte{byte(wasm.OpcodeCallRef)}, leb(0)...)
	body = append(body, byte(wasm.OpcodeEnd))

	raw := buildModule(t, 0, nil, 0, nil, body)
	m, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, wasm.OpcodeCallRef, m.Code[0].Body[0].Opcode)
	require.Equal(t, uint32(0), m.Code[0].Body[0].TypeIndex)

	out, err := Encode(m)
	require.NoError(t, err)
	m2, err := Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, m.Code, m2.Code)
}

// TestRoundTripSharedEverythingThreadsGlobalAtomicGet exercises the
// shared-everything-threads proposal's global.atomic.get: an ordering byte
// plus a real global-index operand, not a memarg (see the decodeAtomicInstruction
// doc comment in code.go).
func TestRoundTripSharedEverythingThreadsGlobalAtomicGet(t *testing.T) {
	globalSec := newWriter()
	globalSec.writeVecHeader(1)
	globalSec.writeByte(byte(wasm.ValueTypeI32))
	globalSec.writeByte(1) // mutable
	globalSec.writeByte(byte(wasm.OpcodeI32Const))
	globalSec.writeInt64(0)
	globalSec.writeByte(byte(wasm.OpcodeEnd))

	body := []byte{0xfe}
	body = append(body, leb(0x4f)...) // global.atomic.get
	body = append(body, 0x00)         // ordering byte
	body = append(body, leb(0)...)    // global index
	body = append(body, byte(wasm.OpcodeDrop), byte(wasm.OpcodeEnd))

	raw := buildModule(t, wasm.SectionIDGlobal, globalSec.Bytes(), 0, nil, body)
	m, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, m.GlobalSection, 1)
	require.Equal(t, wasm.OpcodeGlobalAtomicGet, m.Code[0].Body[0].Opcode)
	require.Equal(t, uint32(0), m.Code[0].Body[0].GlobalIndex)
	require.Equal(t, []byte{0x00}, m.Code[0].Body[0].Raw)

	out, err := Encode(m)
	require.NoError(t, err)
	m2, err := Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, m.GlobalSection, m2.GlobalSection)
	require.Equal(t, m.Code, m2.Code)
}

// TestRoundTripSIMDV128Load exercises SIMD (0xfd prefix): v128.load, a
// memarg-bearing op whose memory index the reencoder must remap through
// isMemArgOpcode's fallback.
func TestRoundTripSIMDV128Load(t *testing.T) {
	memSec := newWriter()
	memSec.writeVecHeader(1)
	memSec.writeByte(0x00) // limits: no max
	memSec.writeUint32(1)  // min pages

	body := []byte{0xfd}
	body = append(body, leb(0x00)...) // v128.load
	body = append(body, leb(4)...)    // align
	body = append(body, leb(0)...)    // offset
	body = append(body, byte(wasm.OpcodeDrop), byte(wasm.OpcodeEnd))

	raw := buildModule(t, wasm.SectionIDMemory, memSec.Bytes(), 0, nil, body)
	m, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, m.MemorySection, 1)
	require.Equal(t, wasm.Opcode(0xfd<<24), m.Code[0].Body[0].Opcode)
	require.Equal(t, uint32(4), m.Code[0].Body[0].Mem.Align)

	out, err := Encode(m)
	require.NoError(t, err)
	m2, err := Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, m.Code, m2.Code)
}

// TestDecodeDropsNameCustomSection covers spec invariant 6 (name-section
// drop): a "name" custom section never survives Decode.
func TestDecodeDropsNameCustomSection(t *testing.T) {
	raw := buildMinimalModule(t)

	nameSec := newWriter()
	nameSec.writeName(wasm.CustomSectionNameName)
	nameSec.writeBytes([]byte{0xde, 0xad, 0xbe, 0xef})

	w := newWriter()
	w.writeBytes(raw)
	writeSection(w, wasm.SectionIDCustom, nameSec.Bytes())

	m, err := Decode(bytes.NewReader(w.Bytes()))
	require.NoError(t, err)
	require.Empty(t, m.CustomSections)
	for _, marker := range m.SectionOrder {
		require.False(t, marker.IsCustom)
	}
}

// TestRoundTripPassthroughCustomSection covers spec invariant 7: a non-"name"
// custom section survives decode/encode byte-identical and in its original
// relative position.
func TestRoundTripPassthroughCustomSection(t *testing.T) {
	raw := buildMinimalModule(t)

	customSec := newWriter()
	customSec.writeName("producers")
	customSec.writeBytes([]byte{0x01, 0x02, 0x03})

	w := newWriter()
	w.writeBytes(raw)
	writeSection(w, wasm.SectionIDCustom, customSec.Bytes())
	originalWithCustom := w.Bytes()

	m, err := Decode(bytes.NewReader(originalWithCustom))
	require.NoError(t, err)
	require.Len(t, m.CustomSections, 1)
	require.Equal(t, "producers", m.CustomSections[0].Name)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, m.CustomSections[0].Data)
	require.True(t, m.SectionOrder[len(m.SectionOrder)-1].IsCustom)

	out, err := Encode(m)
	require.NoError(t, err)
	require.Equal(t, originalWithCustom, out)
}
