// Package wasm defines the in-memory representation of a WebAssembly module
// used by the decoder, the reachability analysis and the encoder. It mirrors
// the shape of the binary format closely enough that decoding and encoding
// are both simple walks of these types.
package wasm

import "fmt"

// ValueType is a numeric or reference type, encoded as its binary format
// opcode byte.
//
// See https://webassembly.github.io/spec/core/binary/types.html#value-types
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
	ValueTypeV128 ValueType = 0x7b

	// ValueTypeFuncref and ValueTypeExternref are abstract reference types
	// that never carry a concrete heap type.
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f

	// valueTypeRefNonNull and valueTypeRefNull are the GC / typed-function-references
	// prefix bytes for general reference types: 0x64 (ref) 0x63 (ref null) followed by
	// a heap type encoded as an s33.
	valueTypeRefNonNull ValueType = 0x64
	valueTypeRefNull    ValueType = 0x63
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	default:
		return fmt.Sprintf("valtype(%#x)", byte(t))
	}
}

// IsReference reports whether t is one of the reference-type encodings:
// either an abstract ref (funcref, externref) or a RefType with a heap type.
func (t ValueType) IsReference() bool {
	return t == ValueTypeFuncref || t == ValueTypeExternref || t == valueTypeRefNonNull || t == valueTypeRefNull
}

// HeapTypeKind distinguishes abstract heap types (funcref, externref, anyref, ...)
// from concrete ones that name a module-level type index.
type HeapTypeKind byte

const (
	HeapTypeAbstract HeapTypeKind = iota
	HeapTypeConcrete
)

// AbstractHeapType enumerates the built-in heap types that carry no type
// index. Encoded as negative s33 values in the binary format (0x70, 0x6f, ...).
type AbstractHeapType byte

const (
	HeapTypeFunc AbstractHeapType = iota
	HeapTypeExtern
	HeapTypeAny
	HeapTypeEq
	HeapTypeI31
	HeapTypeStruct
	HeapTypeArray
	HeapTypeNone
	HeapTypeNoFunc
	HeapTypeNoExtern
)

// HeapType is the referent of a RefType: either one of the built-in abstract
// types, or a concrete module-level type index ("(ref $T)").
type HeapType struct {
	Kind     HeapTypeKind
	Abstract AbstractHeapType
	// TypeIndex is valid only when Kind == HeapTypeConcrete.
	TypeIndex uint32
}

// RefType is a value type that is a reference, with its nullability and heap
// type explicit. Abstract funcref/externref from the MVP and reference-types
// proposal decode into a RefType with Nullable true and the matching
// AbstractHeapType so the use graph has one shape to walk.
type RefType struct {
	Nullable bool
	Heap     HeapType
}

// StorageTypeKind distinguishes GC packed field storage (i8, i16) from a
// plain value type.
type StorageTypeKind byte

const (
	StorageTypeValue StorageTypeKind = iota
	StorageTypePacked
)

const (
	PackedTypeI8  byte = 0x78
	PackedTypeI16 byte = 0x77
)

// StorageType is the storage of a struct or array field: either a full
// ValueType or one of the packed i8/i16 types, which are inert for the use
// graph (they never name a reference type).
type StorageType struct {
	Kind   StorageTypeKind
	Value  ValueType
	Ref    RefType // valid when Value is a reference type
	Packed byte    // valid when Kind == StorageTypePacked
}

// FieldType is a single field of a struct or array GC type.
type FieldType struct {
	Storage   StorageType
	Mutable   bool
}

// CompositeKind distinguishes the three shapes a sub-type's composite type
// can take.
type CompositeKind byte

const (
	CompositeFunc CompositeKind = iota
	CompositeStruct
	CompositeArray
)

// FunctionType is a function signature: zero or more parameter value types
// and zero or more (pre-multi-value: at most one) result value types.
type FunctionType struct {
	Params  []ValueType
	ParamRefs  []RefType // index-correlated with Params, valid where Params[i] IsReference()
	Results []ValueType
	ResultRefs []RefType
}

// StructType is a GC struct type: an ordered list of fields.
type StructType struct {
	Fields []FieldType
}

// ArrayType is a GC array type: a single field storage type describing every
// element.
type ArrayType struct {
	Field FieldType
}

// CompositeType is the payload of a SubType: exactly one of Func, Struct or
// Array is meaningful, selected by Kind.
type CompositeType struct {
	Kind   CompositeKind
	Func   *FunctionType
	Struct *StructType
	Array  *ArrayType
}

// SubType is one member of a recursive group: a composite type plus GC
// sub-typing metadata (not interpreted by this tool beyond round-tripping).
type SubType struct {
	Composite CompositeType
	// Final and Supertypes are carried for GC func/struct/array subtyping;
	// this tool does not reason about the subtyping relation itself.
	Final      bool
	Supertypes []uint32
}

// RecGroup is a run of one or more SubTypes that share a recursive,
// mutually-referential namespace. Explicit marks whether the binary encoded
// this as an explicit `rec` group (true) or as an implicit single-member
// group (false); this affects re-emission (see Emitter in the design notes).
type RecGroup struct {
	Explicit bool
	Types    []SubType
}

// Limits describes the min/max of a table or memory.
type Limits struct {
	Min uint32
	Max *uint32
	// Shared marks a memory as shared (the threads proposal); meaningless for tables.
	Shared bool
	// Memory64 marks a memory/table using 64-bit (i64) limits.
	Memory64 bool
}

// TableType is the full type of a table: its element reference type and
// size limits.
type TableType struct {
	ElemType RefType
	Limits   Limits
}

// MemoryType is the full type of a memory: its page limits.
type MemoryType struct {
	Limits Limits
}

// GlobalType is the full type of a global: its content value type and
// whether it may be mutated by `global.set`.
type GlobalType struct {
	ValType ValueType
	Ref     RefType // valid when ValType IsReference()
	Mutable bool
}

// TagType is the full type of an exception tag: the function type of the
// values it carries (results must be empty).
type TagType struct {
	TypeIndex uint32
}
