package wasm

// Opcode identifies an instruction. Single-byte opcodes are their own value;
// opcodes under the 0xFC (bulk-memory/GC-numeric), 0xFD (SIMD), 0xFB (GC) and
// 0xFE (atomics) prefixes are packed as (prefix<<24 | subopcode) so the whole
// instruction set fits one numbering.
type Opcode uint32

func prefixed(prefix byte, sub uint32) Opcode {
	return Opcode(uint32(prefix)<<24 | sub)
}

const (
	OpcodeUnreachable Opcode = 0x00
	OpcodeNop         Opcode = 0x01
	OpcodeBlock       Opcode = 0x02
	OpcodeLoop        Opcode = 0x03
	OpcodeIf          Opcode = 0x04
	OpcodeElse        Opcode = 0x05

	// Legacy (pre try_table) exception-handling block instructions.
	OpcodeTry      Opcode = 0x06
	OpcodeCatch    Opcode = 0x07
	OpcodeThrow    Opcode = 0x08
	OpcodeRethrow  Opcode = 0x09
	OpcodeThrowRef Opcode = 0x0a

	OpcodeEnd      Opcode = 0x0b
	OpcodeBr       Opcode = 0x0c
	OpcodeBrIf     Opcode = 0x0d
	OpcodeBrTable  Opcode = 0x0e
	OpcodeReturn   Opcode = 0x0f
	OpcodeCall     Opcode = 0x10
	OpcodeCallIndirect Opcode = 0x11

	OpcodeReturnCall         Opcode = 0x12
	OpcodeReturnCallIndirect Opcode = 0x13
	OpcodeCallRef            Opcode = 0x14
	OpcodeReturnCallRef      Opcode = 0x15

	OpcodeDelegate Opcode = 0x18
	OpcodeCatchAll Opcode = 0x19

	OpcodeDrop     Opcode = 0x1a
	OpcodeSelect   Opcode = 0x1b
	OpcodeSelectT  Opcode = 0x1c

	OpcodeTryTable Opcode = 0x1f

	OpcodeLocalGet  Opcode = 0x20
	OpcodeLocalSet  Opcode = 0x21
	OpcodeLocalTee  Opcode = 0x22
	OpcodeGlobalGet Opcode = 0x23
	OpcodeGlobalSet Opcode = 0x24

	OpcodeTableGet Opcode = 0x25
	OpcodeTableSet Opcode = 0x26

	OpcodeI32Load    Opcode = 0x28
	OpcodeI64Load    Opcode = 0x29
	OpcodeF32Load    Opcode = 0x2a
	OpcodeF64Load    Opcode = 0x2b
	OpcodeI32Load8S  Opcode = 0x2c
	OpcodeI32Load8U  Opcode = 0x2d
	OpcodeI32Load16S Opcode = 0x2e
	OpcodeI32Load16U Opcode = 0x2f
	OpcodeI64Load8S  Opcode = 0x30
	OpcodeI64Load8U  Opcode = 0x31
	OpcodeI64Load16S Opcode = 0x32
	OpcodeI64Load16U Opcode = 0x33
	OpcodeI64Load32S Opcode = 0x34
	OpcodeI64Load32U Opcode = 0x35
	OpcodeI32Store   Opcode = 0x36
	OpcodeI64Store   Opcode = 0x37
	OpcodeF32Store   Opcode = 0x38
	OpcodeF64Store   Opcode = 0x39
	OpcodeI32Store8  Opcode = 0x3a
	OpcodeI32Store16 Opcode = 0x3b
	OpcodeI64Store8  Opcode = 0x3c
	OpcodeI64Store16 Opcode = 0x3d
	OpcodeI64Store32 Opcode = 0x3e

	OpcodeMemorySize Opcode = 0x3f
	OpcodeMemoryGrow Opcode = 0x40

	OpcodeI32Const Opcode = 0x41
	OpcodeI64Const Opcode = 0x42
	OpcodeF32Const Opcode = 0x43
	OpcodeF64Const Opcode = 0x44

	// 0x45-0xc4: numeric comparison/arithmetic/conversion ops. None carry a
	// module-level index, so the use graph and the relocation pass never
	// inspect their immediates (sign-extension ops 0xc0-0xc4 included).
	OpcodeI32Eqz Opcode = 0x45
	opcodeNumericRangeEnd Opcode = 0xc4

	OpcodeRefNull      Opcode = 0xd0
	OpcodeRefIsNull    Opcode = 0xd1
	OpcodeRefFunc      Opcode = 0xd2
	OpcodeRefEq        Opcode = 0xd3
	OpcodeRefAsNonNull Opcode = 0xd4
	OpcodeBrOnNull     Opcode = 0xd5
	OpcodeBrOnNonNull  Opcode = 0xd6

	// GC instructions, prefix 0xfb.
	OpcodeStructNew        = Opcode(0xfb<<24 | 0x00)
	OpcodeStructNewDefault = Opcode(0xfb<<24 | 0x01)
	OpcodeStructGet        = Opcode(0xfb<<24 | 0x02)
	OpcodeStructGetS       = Opcode(0xfb<<24 | 0x03)
	OpcodeStructGetU       = Opcode(0xfb<<24 | 0x04)
	OpcodeStructSet        = Opcode(0xfb<<24 | 0x05)
	OpcodeArrayNew         = Opcode(0xfb<<24 | 0x06)
	OpcodeArrayNewDefault  = Opcode(0xfb<<24 | 0x07)
	OpcodeArrayNewFixed    = Opcode(0xfb<<24 | 0x08)
	OpcodeArrayNewData     = Opcode(0xfb<<24 | 0x09)
	OpcodeArrayNewElem     = Opcode(0xfb<<24 | 0x0a)
	OpcodeArrayGet         = Opcode(0xfb<<24 | 0x0b)
	OpcodeArrayGetS        = Opcode(0xfb<<24 | 0x0c)
	OpcodeArrayGetU        = Opcode(0xfb<<24 | 0x0d)
	OpcodeArraySet         = Opcode(0xfb<<24 | 0x0e)
	OpcodeArrayLen         = Opcode(0xfb<<24 | 0x0f)
	OpcodeArrayFill        = Opcode(0xfb<<24 | 0x10)
	OpcodeArrayCopy        = Opcode(0xfb<<24 | 0x11)
	OpcodeArrayInitData    = Opcode(0xfb<<24 | 0x12)
	OpcodeArrayInitElem    = Opcode(0xfb<<24 | 0x13)
	OpcodeRefTest          = Opcode(0xfb<<24 | 0x14)
	OpcodeRefTestNull      = Opcode(0xfb<<24 | 0x15)
	OpcodeRefCast          = Opcode(0xfb<<24 | 0x16)
	OpcodeRefCastNull      = Opcode(0xfb<<24 | 0x17)
	OpcodeBrOnCast         = Opcode(0xfb<<24 | 0x18)
	OpcodeBrOnCastFail     = Opcode(0xfb<<24 | 0x19)
	OpcodeAnyConvertExtern = Opcode(0xfb<<24 | 0x1a)
	OpcodeExternConvertAny = Opcode(0xfb<<24 | 0x1b)
	OpcodeRefI31           = Opcode(0xfb<<24 | 0x1c)
	OpcodeI31GetS          = Opcode(0xfb<<24 | 0x1d)
	OpcodeI31GetU          = Opcode(0xfb<<24 | 0x1e)

	// Bulk-memory and reference-types instructions, prefix 0xfc.
	OpcodeMemoryInit = Opcode(0xfc<<24 | 0x08)
	OpcodeDataDrop    = Opcode(0xfc<<24 | 0x09)
	OpcodeMemoryCopy  = Opcode(0xfc<<24 | 0x0a)
	OpcodeMemoryFill  = Opcode(0xfc<<24 | 0x0b)
	OpcodeTableInit   = Opcode(0xfc<<24 | 0x0c)
	OpcodeElemDrop    = Opcode(0xfc<<24 | 0x0d)
	OpcodeTableCopy   = Opcode(0xfc<<24 | 0x0e)
	OpcodeTableGrow   = Opcode(0xfc<<24 | 0x0f)
	OpcodeTableSize   = Opcode(0xfc<<24 | 0x10)
	OpcodeTableFill   = Opcode(0xfc<<24 | 0x11)

	// OpcodeAtomicFence is atomic.fence, the one 0xfe-prefixed memory-atomics
	// op that isn't a memarg load/store/rmw: it carries a single reserved byte.
	OpcodeAtomicFence = Opcode(0xfe<<24 | 0x03)

	// Shared-everything-threads instructions, prefix 0xfe. Unlike the
	// memory-atomics family (load/store/rmw against a memarg, decoded
	// structurally in decodeAtomicInstruction's default case), these name a
	// global, table or GC type index directly and so get their own opcode
	// constants the way the 0xfb/0xfc families do.
	OpcodeGlobalAtomicGet        = Opcode(0xfe<<24 | 0x4f)
	OpcodeGlobalAtomicSet        = Opcode(0xfe<<24 | 0x50)
	OpcodeGlobalAtomicRmwAdd     = Opcode(0xfe<<24 | 0x51)
	OpcodeGlobalAtomicRmwSub     = Opcode(0xfe<<24 | 0x52)
	OpcodeGlobalAtomicRmwAnd     = Opcode(0xfe<<24 | 0x53)
	OpcodeGlobalAtomicRmwOr      = Opcode(0xfe<<24 | 0x54)
	OpcodeGlobalAtomicRmwXor     = Opcode(0xfe<<24 | 0x55)
	OpcodeGlobalAtomicRmwXchg    = Opcode(0xfe<<24 | 0x56)
	OpcodeGlobalAtomicRmwCmpxchg = Opcode(0xfe<<24 | 0x57)

	OpcodeTableAtomicGet         = Opcode(0xfe<<24 | 0x58)
	OpcodeTableAtomicSet         = Opcode(0xfe<<24 | 0x59)
	OpcodeTableAtomicRmwXchg     = Opcode(0xfe<<24 | 0x5a)
	OpcodeTableAtomicRmwCmpxchg  = Opcode(0xfe<<24 | 0x5b)

	OpcodeStructAtomicGet        = Opcode(0xfe<<24 | 0x5c)
	OpcodeStructAtomicGetS       = Opcode(0xfe<<24 | 0x5d)
	OpcodeStructAtomicGetU       = Opcode(0xfe<<24 | 0x5e)
	OpcodeStructAtomicSet        = Opcode(0xfe<<24 | 0x5f)
	OpcodeStructAtomicRmwAdd     = Opcode(0xfe<<24 | 0x60)
	OpcodeStructAtomicRmwSub     = Opcode(0xfe<<24 | 0x61)
	OpcodeStructAtomicRmwAnd     = Opcode(0xfe<<24 | 0x62)
	OpcodeStructAtomicRmwOr      = Opcode(0xfe<<24 | 0x63)
	OpcodeStructAtomicRmwXor     = Opcode(0xfe<<24 | 0x64)
	OpcodeStructAtomicRmwXchg    = Opcode(0xfe<<24 | 0x65)
	OpcodeStructAtomicRmwCmpxchg = Opcode(0xfe<<24 | 0x66)

	OpcodeArrayAtomicGet         = Opcode(0xfe<<24 | 0x67)
	OpcodeArrayAtomicGetS        = Opcode(0xfe<<24 | 0x68)
	OpcodeArrayAtomicGetU        = Opcode(0xfe<<24 | 0x69)
	OpcodeArrayAtomicSet         = Opcode(0xfe<<24 | 0x6a)
	OpcodeArrayAtomicRmwAdd      = Opcode(0xfe<<24 | 0x6b)
	OpcodeArrayAtomicRmwSub      = Opcode(0xfe<<24 | 0x6c)
	OpcodeArrayAtomicRmwAnd      = Opcode(0xfe<<24 | 0x6d)
	OpcodeArrayAtomicRmwOr       = Opcode(0xfe<<24 | 0x6e)
	OpcodeArrayAtomicRmwXor      = Opcode(0xfe<<24 | 0x6f)
	OpcodeArrayAtomicRmwXchg     = Opcode(0xfe<<24 | 0x70)
	OpcodeArrayAtomicRmwCmpxchg  = Opcode(0xfe<<24 | 0x71)

	// OpcodeVecPrefix and OpcodeAtomicPrefix mark instructions whose
	// subopcode space (0xfd, 0xfe) is decoded structurally rather than
	// opcode-by-opcode: see decodeVecInstruction/decodeAtomicInstruction.
	OpcodeVecPrefix    byte = 0xfd
	OpcodeAtomicPrefix byte = 0xfe
)

// IsNumeric reports whether op is one of the plain numeric/comparison/
// conversion opcodes in 0x45-0xc4 that never carries an operand needing
// relocation.
func (op Opcode) IsNumeric() bool {
	return op >= OpcodeI32Eqz && op <= opcodeNumericRangeEnd
}

// BlockTypeKind distinguishes the three encodings of a structured control
// instruction's type.
type BlockTypeKind byte

const (
	BlockTypeEmpty BlockTypeKind = iota
	BlockTypeValue
	BlockTypeFuncType
)

// BlockType is the type of a block/loop/if/try_table, encoded in the binary
// format as an s33: -0x40 for empty, a negative value-type byte for a single
// result, or a non-negative type index for a full function type.
type BlockType struct {
	Kind      BlockTypeKind
	Value     ValueType
	ValueRef  RefType // valid when Value.IsReference()
	TypeIndex uint32
}

// MemArg is the alignment/offset/memory-index immediate of a load or store
// instruction (atomics share the same shape).
type MemArg struct {
	Align       uint32
	Offset      uint64
	MemoryIndex uint32
}

// CatchKind is the kind of one catch clause of a try_table instruction.
type CatchKind byte

const (
	CatchTag CatchKind = iota
	CatchTagRef
	CatchAll
	CatchAllRef
)

// Catch is one clause of a try_table instruction.
type Catch struct {
	Kind     CatchKind
	TagIndex uint32 // valid when Kind is CatchTag or CatchTagRef
	Label    uint32 // relative branch depth; inert, never relocated
}

// Instruction is one operator in a function body or constant expression.
// Only the fields relevant to Opcode are populated; Raw carries any
// remaining immediate bytes verbatim (constants, SIMD lane/shuffle/const
// payloads, reserved bytes) so they round-trip without this tool needing to
// interpret them.
type Instruction struct {
	Opcode Opcode

	FuncIndex   uint32
	TypeIndex   uint32
	TableIndex  uint32
	MemoryIndex uint32
	GlobalIndex uint32
	TagIndex    uint32
	ElemIndex   uint32
	DataIndex   uint32
	LocalIndex  uint32
	FieldIndex  uint32 // struct.get/set field position; inert (not a global index space)
	LaneCount   uint32 // array.new_fixed immediate; inert

	// Index2 holds the second index operand of the *.copy family
	// (memory.copy/table.copy/array.copy), which each reference two items of
	// the same space (destination in the primary field above, source here).
	Index2 uint32

	Block BlockType
	Heap  HeapType // ref.null, ref.test/cast, br_on_cast source type
	Heap2 HeapType // br_on_cast/br_on_cast_fail target type

	Mem MemArg

	Catches        []Catch  // try_table
	RelativeDepths []uint32 // br_table; inert

	// SelectTypes is the explicit type list of a typed `select`; SelectRefs
	// holds parallel heap-type info for entries where SelectTypes[i] is a
	// reference type.
	SelectTypes []ValueType
	SelectRefs  []RefType

	// Raw holds verbatim immediate bytes not modeled above: i32/i64/f32/f64
	// consts, v128 lane/shuffle/const payloads, and reserved or ordering
	// bytes that this tool never inspects.
	Raw []byte
}

// ConstExpr is a constant initializer expression: a short instruction
// sequence terminated by `end`, used for global/table initializers and
// active-segment offsets.
type ConstExpr struct {
	Instructions []Instruction
}
