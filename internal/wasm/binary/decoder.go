package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bvisness/wasm-isolate/internal/wasm"
)

// Decode parses a complete WebAssembly binary module. It does not validate
// the module in the spec sense (type-checking instruction sequences,
// checking import/export name uniqueness); it only needs enough structure to
// compute uses, reachability and renumbering, so malformed-but-structurally-
// parseable modules are accepted.
func Decode(r io.Reader) (*wasm.Module, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(buf) < 8 || !bytes.Equal(buf[:4], Magic) || !bytes.Equal(buf[4:8], version) {
		return nil, &ParseError{Offset: 0, Err: fmt.Errorf("not a WebAssembly module (bad magic/version)")}
	}

	rd := newReader(buf[8:], 8)
	m := &wasm.Module{}

	// Known sections must follow the binary format's order, which places tag
	// between memory and global and data-count between element and code.
	rank := map[wasm.SectionID]int{
		wasm.SectionIDType: 1, wasm.SectionIDImport: 2, wasm.SectionIDFunction: 3,
		wasm.SectionIDTable: 4, wasm.SectionIDMemory: 5, wasm.SectionIDTag: 6,
		wasm.SectionIDGlobal: 7, wasm.SectionIDExport: 8, wasm.SectionIDStart: 9,
		wasm.SectionIDElement: 10, wasm.SectionIDDataCount: 11, wasm.SectionIDCode: 12,
		wasm.SectionIDData: 13,
	}
	lastRank := 0

	for rd.remaining() > 0 {
		idByte, err := rd.ReadByte()
		if err != nil {
			return nil, rd.parseErr(err)
		}
		id := wasm.SectionID(idByte)
		size, err := rd.readUint32()
		if err != nil {
			return nil, rd.parseErr(err)
		}
		payload, err := rd.readN(int(size))
		if err != nil {
			return nil, rd.parseErr(err)
		}
		sr := newReader(payload, rd.base+uint64(rd.pos-len(payload)))

		if id == wasm.SectionIDCustom {
			name, err := sr.readName()
			if err != nil {
				return nil, sr.parseErr(err)
			}
			if name == wasm.CustomSectionNameName {
				continue
			}
			data := payload[sr.pos:]
			idx := len(m.CustomSections)
			m.CustomSections = append(m.CustomSections, wasm.CustomSection{Name: name, Data: append([]byte{}, data...)})
			m.SectionOrder = append(m.SectionOrder, wasm.SectionMarker{IsCustom: true, CustomIndex: idx})
			continue
		}

		if rank[id] != 0 && rank[id] <= lastRank {
			return nil, sr.parseErr(fmt.Errorf("section %d out of order", id))
		}
		lastRank = rank[id]
		m.SectionOrder = append(m.SectionOrder, wasm.SectionMarker{ID: id})

		switch id {
		case wasm.SectionIDType:
			m.TypeSection, m.RecGroups, err = decodeTypeSection(sr)
		case wasm.SectionIDImport:
			m.ImportSection, err = decodeImportSection(sr)
			countImportedSpaces(m)
		case wasm.SectionIDFunction:
			var definedTypes []uint32
			definedTypes, err = decodeFunctionSection(sr)
			m.FunctionSection = append(m.FunctionSection, definedTypes...)
		case wasm.SectionIDTable:
			var types []wasm.TableType
			var defs []wasm.Table
			types, defs, err = decodeTableSection(sr)
			m.TableSection = append(m.TableSection, types...)
			m.DefinedTables = defs
		case wasm.SectionIDMemory:
			var mems []wasm.MemoryType
			mems, err = decodeMemorySection(sr)
			m.MemorySection = append(m.MemorySection, mems...)
		case wasm.SectionIDGlobal:
			var types []wasm.GlobalType
			var defs []wasm.Global
			types, defs, err = decodeGlobalSection(sr)
			m.GlobalSection = append(m.GlobalSection, types...)
			m.DefinedGlobals = defs
		case wasm.SectionIDTag:
			var tags []wasm.TagType
			tags, err = decodeTagSection(sr)
			m.TagSection = append(m.TagSection, tags...)
		case wasm.SectionIDExport:
			m.ExportSection, err = decodeExportSection(sr)
		case wasm.SectionIDStart:
			var idx uint32
			idx, err = sr.readUint32()
			m.StartSection = &idx
		case wasm.SectionIDElement:
			m.ElementSection, err = decodeElementSection(sr)
		case wasm.SectionIDDataCount:
			m.HasDataCount = true
		case wasm.SectionIDCode:
			m.Code, err = decodeCodeSection(sr, m.FunctionSection, m.NumImportedFuncs)
		case wasm.SectionIDData:
			m.DataSection, err = decodeDataSection(sr)
		default:
			return nil, sr.parseErr(fmt.Errorf("unknown section id %d", id))
		}
		if err != nil {
			return nil, sr.parseErr(err)
		}
	}

	return m, nil
}

func countImportedSpaces(m *wasm.Module) {
	m.NumImportedFuncs, m.NumImportedTables, m.NumImportedMemories = 0, 0, 0
	m.NumImportedGlobals, m.NumImportedTags = 0, 0
	for _, im := range m.ImportSection {
		switch im.Kind {
		case wasm.ImportKindFunc:
			m.NumImportedFuncs++
			m.FunctionSection = append(m.FunctionSection, im.DescFunc)
		case wasm.ImportKindTable:
			m.NumImportedTables++
			m.TableSection = append(m.TableSection, im.DescTable)
		case wasm.ImportKindMemory:
			m.NumImportedMemories++
			m.MemorySection = append(m.MemorySection, im.DescMemory)
		case wasm.ImportKindGlobal:
			m.NumImportedGlobals++
			m.GlobalSection = append(m.GlobalSection, im.DescGlobal)
		case wasm.ImportKindTag:
			m.NumImportedTags++
			m.TagSection = append(m.TagSection, im.DescTag)
		}
	}
}
