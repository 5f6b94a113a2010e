package wasm

// SectionID identifies a top-level module section by its binary id. The ids
// are numeric, not positional: the binary format places tag (13) between
// memory and global and data-count (12) between element and code.
//
// See https://webassembly.github.io/spec/core/binary/modules.html#sections
type SectionID byte

const (
	SectionIDCustom    SectionID = 0
	SectionIDType      SectionID = 1
	SectionIDImport    SectionID = 2
	SectionIDFunction  SectionID = 3
	SectionIDTable     SectionID = 4
	SectionIDMemory    SectionID = 5
	SectionIDGlobal    SectionID = 6
	SectionIDExport    SectionID = 7
	SectionIDStart     SectionID = 8
	SectionIDElement   SectionID = 9
	SectionIDCode      SectionID = 10
	SectionIDData      SectionID = 11
	SectionIDDataCount SectionID = 12
	SectionIDTag       SectionID = 13
)

// CustomSectionNameName is the name reserved for the debug-names custom
// section. This tool drops it unconditionally: see the design notes on why
// preserving it would require rewriting its internal indices too.
const CustomSectionNameName = "name"

// ImportKind classifies an entry of the import section.
type ImportKind byte

const (
	ImportKindFunc ImportKind = iota
	ImportKindTable
	ImportKindMemory
	ImportKindGlobal
	ImportKindTag
)

// Import is one entry of the import section. Only the field matching Kind
// is meaningful.
type Import struct {
	Module, Name string
	Kind         ImportKind

	DescFunc   uint32 // type index
	DescTable  TableType
	DescMemory MemoryType
	DescGlobal GlobalType
	DescTag    TagType
}

// ExportKind classifies an entry of the export section. It shares its
// encoding with ImportKind; the exception-handling proposal adds the Tag
// variant at byte 4.
type ExportKind byte

const (
	ExportKindFunc ExportKind = iota
	ExportKindTable
	ExportKindMemory
	ExportKindGlobal
	ExportKindTag
)

// Export is one entry of the export section.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// Table is a defined table entry: its type plus an optional initializer.
// Tables may be initialized with a constant expression only under the
// function-references/GC proposals; absent that, Init is nil and the table
// is implicitly filled with null references.
type Table struct {
	Type TableType
	Init *ConstExpr
}

// Global is a defined global entry: its type plus its initializer.
type Global struct {
	Type GlobalType
	Init ConstExpr
}

// Function is a defined function body: its signature (by type index), its
// local declarations and its instruction sequence.
type Function struct {
	TypeIndex uint32
	Locals    []LocalDecl
	Body      []Instruction
}

// LocalDecl is a run-length-encoded group of locals sharing a value type.
type LocalDecl struct {
	Count   uint32
	Type    ValueType
	Ref     RefType // valid when Type.IsReference()
}

// ElementMode classifies how an element segment is realized.
type ElementMode byte

const (
	ElementModeActive ElementMode = iota
	ElementModePassive
	ElementModeDeclared
)

// ElementInit is one item of an element segment: either a bare function
// index (the "func vec" shorthand) or a full constant expression (the
// general `expr vec` form, needed for non-funcref tables or ref.null items).
type ElementInit struct {
	// FuncIndex is valid when Expr is nil; this is the compact funcref-only
	// encoding used by most element segments in the wild.
	FuncIndex uint32
	Expr      *ConstExpr
}

// ElementSegment is one entry of the element section.
type ElementSegment struct {
	Mode     ElementMode
	Type     RefType // element type; defaults to funcref for the legacy encodings
	TableIndex uint32 // valid when Mode == ElementModeActive
	Offset     ConstExpr // valid when Mode == ElementModeActive
	Init       []ElementInit
}

// DataMode classifies how a data segment is realized.
type DataMode byte

const (
	DataModeActive DataMode = iota
	DataModePassive
)

// DataSegment is one entry of the data section.
type DataSegment struct {
	Mode        DataMode
	MemoryIndex uint32 // valid when Mode == DataModeActive
	Offset      ConstExpr
	Init        []byte
}

// CustomSection is a custom section other than "name", captured verbatim so
// it can be re-emitted byte for byte in its original relative position.
type CustomSection struct {
	Name string
	Data []byte
}

// SectionOrder records, in the order they were encountered, the custom
// sections interleaved with each known section id so Encode can
// reproduce the original relative placement of custom sections. A zero
// CustomIndex-less entry represents a known section; entries with
// IsCustom true carry an index into Module.CustomSections.
type SectionMarker struct {
	ID           SectionID
	IsCustom     bool
	CustomIndex  int
}

// Module is the decoded, mutable intermediate representation of one
// WebAssembly binary. It is built once by the decoder and is immutable for
// the rest of the pipeline: reachability, relocation and reencoding all
// operate by reading it and constructing a new, pruned Module.
type Module struct {
	// TypeSection is the flattened sequence of sub-types; RecGroups records
	// how they were partitioned into recursive groups for re-emission.
	TypeSection []SubType
	RecGroups   []RecGroup

	ImportSection []Import

	// FunctionSection holds, for every function (imported and defined), its
	// type index: FunctionSection[i] is valid for every function index i,
	// with imported functions occupying the prefix NumImportedFuncs long.
	FunctionSection []uint32

	TableSection  []TableType
	DefinedTables []Table // len == len(TableSection) - NumImportedTables

	MemorySection []MemoryType

	GlobalSection []GlobalType
	DefinedGlobals []Global // len == len(GlobalSection) - NumImportedGlobals

	TagSection []TagType

	ExportSection []Export

	StartSection *uint32

	ElementSection []ElementSegment

	DataSection []DataSegment
	// HasDataCount records whether a data-count section was present. The
	// isolated module keeps the input's value, and Encode then writes a
	// data-count section holding len(DataSection).
	HasDataCount bool

	Code []Function

	CustomSections []CustomSection
	SectionOrder   []SectionMarker

	// NumImportedFuncs etc. cache the import-prefix length of each of the
	// five importable index spaces, so callers never need to recompute it
	// by re-scanning ImportSection.
	NumImportedFuncs   uint32
	NumImportedTables  uint32
	NumImportedMemories uint32
	NumImportedGlobals uint32
	NumImportedTags    uint32
}

// NumFuncs is the size of the function index space (imports plus defined).
func (m *Module) NumFuncs() uint32 { return uint32(len(m.FunctionSection)) }

// NumTables is the size of the table index space.
func (m *Module) NumTables() uint32 { return uint32(len(m.TableSection)) }

// NumMemories is the size of the memory index space.
func (m *Module) NumMemories() uint32 { return uint32(len(m.MemorySection)) }

// NumGlobals is the size of the global index space.
func (m *Module) NumGlobals() uint32 { return uint32(len(m.GlobalSection)) }

// NumTags is the size of the tag index space.
func (m *Module) NumTags() uint32 { return uint32(len(m.TagSection)) }

// NumTypes is the size of the type index space (flattened, ignoring rec
// group boundaries).
func (m *Module) NumTypes() uint32 { return uint32(len(m.TypeSection)) }

// NumElems is the size of the element-segment index space.
func (m *Module) NumElems() uint32 { return uint32(len(m.ElementSection)) }

// NumDatas is the size of the data-segment index space.
func (m *Module) NumDatas() uint32 { return uint32(len(m.DataSection)) }
