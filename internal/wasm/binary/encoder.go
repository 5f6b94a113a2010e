package binary

import (
	"github.com/bvisness/wasm-isolate/internal/wasm"
)

// Encode serializes m back into a complete WebAssembly binary, reproducing
// the canonical section order and the original relative placement of custom
// sections recorded in m.SectionOrder. Callers that have pruned or
// renumbered m (internal/isolate) are expected to have already rebuilt
// m.SectionOrder to describe the sections that survive; Encode itself
// performs no filtering.
func Encode(m *wasm.Module) ([]byte, error) {
	out := newWriter()
	out.writeBytes(Magic)
	leWriteUint32(out, 1)

	sections, err := encodeSections(m)
	if err != nil {
		return nil, err
	}

	for _, marker := range m.SectionOrder {
		if marker.IsCustom {
			cs := m.CustomSections[marker.CustomIndex]
			writeSection(out, wasm.SectionIDCustom, encodeCustomSectionPayload(cs))
			continue
		}
		payload, ok := sections[marker.ID]
		if !ok {
			continue
		}
		writeSection(out, marker.ID, payload)
	}

	return out.Bytes(), nil
}

// encodeSections renders every known, non-empty section's payload once, so
// the ordering loop above can look each one up by id regardless of where
// custom sections were interleaved.
func encodeSections(m *wasm.Module) (map[wasm.SectionID][]byte, error) {
	out := map[wasm.SectionID][]byte{}

	if len(m.TypeSection) > 0 {
		w := newWriter()
		encodeTypeSection(w, m.RecGroups, nil)
		out[wasm.SectionIDType] = w.Bytes()
	}
	if len(m.ImportSection) > 0 {
		w := newWriter()
		if err := encodeImportSection(w, m.ImportSection); err != nil {
			return nil, err
		}
		out[wasm.SectionIDImport] = w.Bytes()
	}
	if definedFuncCount(m) > 0 {
		w := newWriter()
		encodeFunctionSection(w, m.FunctionSection[m.NumImportedFuncs:])
		out[wasm.SectionIDFunction] = w.Bytes()
	}
	if len(m.DefinedTables) > 0 {
		w := newWriter()
		if err := encodeTableSection(w, m.DefinedTables); err != nil {
			return nil, err
		}
		out[wasm.SectionIDTable] = w.Bytes()
	}
	if len(m.MemorySection) > int(m.NumImportedMemories) {
		w := newWriter()
		encodeMemorySection(w, m.MemorySection[m.NumImportedMemories:])
		out[wasm.SectionIDMemory] = w.Bytes()
	}
	if len(m.TagSection) > int(m.NumImportedTags) {
		w := newWriter()
		encodeTagSection(w, m.TagSection[m.NumImportedTags:])
		out[wasm.SectionIDTag] = w.Bytes()
	}
	if len(m.DefinedGlobals) > 0 {
		w := newWriter()
		if err := encodeGlobalSection(w, m.DefinedGlobals); err != nil {
			return nil, err
		}
		out[wasm.SectionIDGlobal] = w.Bytes()
	}
	if len(m.ExportSection) > 0 {
		w := newWriter()
		encodeExportSection(w, m.ExportSection)
		out[wasm.SectionIDExport] = w.Bytes()
	}
	if m.StartSection != nil {
		w := newWriter()
		w.writeUint32(*m.StartSection)
		out[wasm.SectionIDStart] = w.Bytes()
	}
	if len(m.ElementSection) > 0 {
		w := newWriter()
		if err := encodeElementSection(w, m.ElementSection); err != nil {
			return nil, err
		}
		out[wasm.SectionIDElement] = w.Bytes()
	}
	if m.HasDataCount {
		w := newWriter()
		w.writeUint32(uint32(len(m.DataSection)))
		out[wasm.SectionIDDataCount] = w.Bytes()
	}
	if len(m.Code) > 0 {
		w := newWriter()
		if err := encodeCodeSection(w, m.Code); err != nil {
			return nil, err
		}
		out[wasm.SectionIDCode] = w.Bytes()
	}
	if len(m.DataSection) > 0 {
		w := newWriter()
		if err := encodeDataSection(w, m.DataSection); err != nil {
			return nil, err
		}
		out[wasm.SectionIDData] = w.Bytes()
	}

	return out, nil
}

func definedFuncCount(m *wasm.Module) int {
	return len(m.FunctionSection) - int(m.NumImportedFuncs)
}

func encodeCustomSectionPayload(cs wasm.CustomSection) []byte {
	w := newWriter()
	w.writeName(cs.Name)
	w.writeBytes(cs.Data)
	return w.Bytes()
}

func writeSection(w *writer, id wasm.SectionID, payload []byte) {
	w.writeByte(byte(id))
	w.writeUint32(uint32(len(payload)))
	w.writeBytes(payload)
}
