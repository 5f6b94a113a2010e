// Package isolate orchestrates the whole reduction pipeline: reachability,
// relocation and reencoding, producing a pruned *wasm.Module plus a
// human-readable Report of what the user's selection mapped to.
package isolate

import (
	"fmt"

	"github.com/bvisness/wasm-isolate/internal/reachability"
	"github.com/bvisness/wasm-isolate/internal/relocation"
	"github.com/bvisness/wasm-isolate/internal/wasm"
	"github.com/bvisness/wasm-isolate/internal/wasm/binary"
)

// Selection is the user's chosen seed items; an alias of
// reachability.Selection so callers (cmd/wasmisolate) depend on one type.
type Selection = reachability.Selection

// ReportEntry describes the fate of one user-selected item: either it was
// in range (and its new index after relocation), or it was out of range and
// was silently dropped from the seed set.
type ReportEntry struct {
	Kind    string
	Old     uint32
	New     uint32
	InRange bool
}

// Report is the full ordered list of report entries, rendered to stderr by
// cmd/wasmisolate.
type Report struct {
	Entries []ReportEntry
}

// IOError wraps a failure reading the input module or writing the output
// bytes, distinguished from binary.ParseError/EncodeError so the CLI can
// give it its own exit code.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("i/o error: %v", e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Run computes the reachable set from sel, builds the relocation maps and
// reencodes m into a new, pruned module. It never mutates m.
func Run(m *wasm.Module, sel Selection) (*wasm.Module, Report, error) {
	live := reachability.Run(m, sel)
	maps := relocation.BuildAll(live)
	re := reencoder{maps: maps}

	out := &wasm.Module{}

	recGroups, typeSection, err := reencodeTypeSection(re, m)
	if err != nil {
		return nil, Report{}, &binary.EncodeError{Err: err}
	}
	out.RecGroups = recGroups
	out.TypeSection = typeSection

	if err := reencodeImports(re, m, out); err != nil {
		return nil, Report{}, &binary.EncodeError{Err: err}
	}
	if err := reencodeFuncsAndCode(re, m, out); err != nil {
		return nil, Report{}, &binary.EncodeError{Err: err}
	}
	if err := reencodeTables(re, m, out); err != nil {
		return nil, Report{}, &binary.EncodeError{Err: err}
	}
	reencodeMemories(maps, m, out)
	if err := reencodeGlobals(re, m, out); err != nil {
		return nil, Report{}, &binary.EncodeError{Err: err}
	}
	if err := reencodeTags(re, m, out); err != nil {
		return nil, Report{}, &binary.EncodeError{Err: err}
	}
	if err := reencodeExports(re, m, out); err != nil {
		return nil, Report{}, &binary.EncodeError{Err: err}
	}
	if err := reencodeStart(re, m, out); err != nil {
		return nil, Report{}, &binary.EncodeError{Err: err}
	}
	if err := reencodeElements(re, m, out); err != nil {
		return nil, Report{}, &binary.EncodeError{Err: err}
	}
	if err := reencodeData(re, m, out); err != nil {
		return nil, Report{}, &binary.EncodeError{Err: err}
	}
	if err := appendSyntheticExports(maps, sel, out); err != nil {
		return nil, Report{}, &binary.EncodeError{Err: err}
	}

	out.SectionOrder = buildSectionOrder(m, out)

	return out, buildReport(m, sel, maps), nil
}

// reencodeTypeSection filters the original rec groups to their live members,
// reencoding each survivor's internal type-index references, and marks a
// surviving group explicit exactly when the original group was explicit or
// more than one of its members survives.
func reencodeTypeSection(re reencoder, m *wasm.Module) ([]wasm.RecGroup, []wasm.SubType, error) {
	var groups []wasm.RecGroup
	var flat []wasm.SubType
	idx := 0
	for _, g := range m.RecGroups {
		var kept []wasm.SubType
		for _, st := range g.Types {
			old := uint32(idx)
			idx++
			if _, ok := re.maps.Types.Lookup(old); !ok {
				continue
			}
			nst, err := re.subType(st)
			if err != nil {
				return nil, nil, err
			}
			kept = append(kept, nst)
		}
		if len(kept) == 0 {
			continue
		}
		explicit := g.Explicit || len(kept) > 1
		groups = append(groups, wasm.RecGroup{Explicit: explicit, Types: kept})
		flat = append(flat, kept...)
	}
	return groups, flat, nil
}

func reencodeImports(re reencoder, m *wasm.Module, out *wasm.Module) error {
	var funcC, tableC, memC, globalC, tagC uint32
	for _, im := range m.ImportSection {
		switch im.Kind {
		case wasm.ImportKindFunc:
			old := funcC
			funcC++
			if _, ok := re.maps.Funcs.Lookup(old); !ok {
				continue
			}
			t, err := re.typeIndex(im.DescFunc)
			if err != nil {
				return err
			}
			out.ImportSection = append(out.ImportSection, wasm.Import{Module: im.Module, Name: im.Name, Kind: im.Kind, DescFunc: t})
			out.NumImportedFuncs++
		case wasm.ImportKindTable:
			old := tableC
			tableC++
			if _, ok := re.maps.Tables.Lookup(old); !ok {
				continue
			}
			elem, err := re.refType(im.DescTable.ElemType)
			if err != nil {
				return err
			}
			desc := im.DescTable
			desc.ElemType = elem
			out.ImportSection = append(out.ImportSection, wasm.Import{Module: im.Module, Name: im.Name, Kind: im.Kind, DescTable: desc})
			out.NumImportedTables++
		case wasm.ImportKindMemory:
			old := memC
			memC++
			if _, ok := re.maps.Memories.Lookup(old); !ok {
				continue
			}
			out.ImportSection = append(out.ImportSection, im)
			out.NumImportedMemories++
		case wasm.ImportKindGlobal:
			old := globalC
			globalC++
			if _, ok := re.maps.Globals.Lookup(old); !ok {
				continue
			}
			vt, ref, err := re.valueType(im.DescGlobal.ValType, im.DescGlobal.Ref)
			if err != nil {
				return err
			}
			desc := im.DescGlobal
			desc.ValType, desc.Ref = vt, ref
			out.ImportSection = append(out.ImportSection, wasm.Import{Module: im.Module, Name: im.Name, Kind: im.Kind, DescGlobal: desc})
			out.NumImportedGlobals++
		case wasm.ImportKindTag:
			old := tagC
			tagC++
			if _, ok := re.maps.Tags.Lookup(old); !ok {
				continue
			}
			t, err := re.typeIndex(im.DescTag.TypeIndex)
			if err != nil {
				return err
			}
			out.ImportSection = append(out.ImportSection, wasm.Import{Module: im.Module, Name: im.Name, Kind: im.Kind, DescTag: wasm.TagType{TypeIndex: t}})
			out.NumImportedTags++
		}
	}

	// Seed the full index spaces with the import prefix, matching
	// Decode/countImportedSpaces' convention that FunctionSection etc. span
	// both imported and defined entries.
	for _, im := range out.ImportSection {
		switch im.Kind {
		case wasm.ImportKindFunc:
			out.FunctionSection = append(out.FunctionSection, im.DescFunc)
		case wasm.ImportKindTable:
			out.TableSection = append(out.TableSection, im.DescTable)
		case wasm.ImportKindMemory:
			out.MemorySection = append(out.MemorySection, im.DescMemory)
		case wasm.ImportKindGlobal:
			out.GlobalSection = append(out.GlobalSection, im.DescGlobal)
		case wasm.ImportKindTag:
			out.TagSection = append(out.TagSection, im.DescTag)
		}
	}
	return nil
}

func reencodeFuncsAndCode(re reencoder, m *wasm.Module, out *wasm.Module) error {
	for i := m.NumImportedFuncs; i < m.NumFuncs(); i++ {
		if _, ok := re.maps.Funcs.Lookup(i); !ok {
			continue
		}
		typeIdx, err := re.typeIndex(m.FunctionSection[i])
		if err != nil {
			return err
		}
		out.FunctionSection = append(out.FunctionSection, typeIdx)

		fn := m.Code[i-m.NumImportedFuncs]
		locals := make([]wasm.LocalDecl, len(fn.Locals))
		for j, l := range fn.Locals {
			vt, ref, err := re.valueType(l.Type, l.Ref)
			if err != nil {
				return err
			}
			locals[j] = wasm.LocalDecl{Count: l.Count, Type: vt, Ref: ref}
		}
		body := make([]wasm.Instruction, len(fn.Body))
		for j, ins := range fn.Body {
			nins, err := re.instruction(ins)
			if err != nil {
				return err
			}
			body[j] = nins
		}
		out.Code = append(out.Code, wasm.Function{TypeIndex: typeIdx, Locals: locals, Body: body})
	}
	return nil
}

func reencodeTables(re reencoder, m *wasm.Module, out *wasm.Module) error {
	for i := m.NumImportedTables; i < m.NumTables(); i++ {
		if _, ok := re.maps.Tables.Lookup(i); !ok {
			continue
		}
		elem, err := re.refType(m.TableSection[i].ElemType)
		if err != nil {
			return err
		}
		tt := m.TableSection[i]
		tt.ElemType = elem
		out.TableSection = append(out.TableSection, tt)

		t := m.DefinedTables[i-m.NumImportedTables]
		var init *wasm.ConstExpr
		if t.Init != nil {
			ce, err := re.constExpr(*t.Init)
			if err != nil {
				return err
			}
			init = &ce
		}
		out.DefinedTables = append(out.DefinedTables, wasm.Table{Type: tt, Init: init})
	}
	return nil
}

// reencodeMemories has no indices of its own to reencode (MemoryType is just
// limits), so the only thing gating inclusion is liveness.
func reencodeMemories(maps relocation.Maps, m *wasm.Module, out *wasm.Module) {
	for i := m.NumImportedMemories; i < m.NumMemories(); i++ {
		if _, ok := maps.Memories.Lookup(i); !ok {
			continue
		}
		out.MemorySection = append(out.MemorySection, m.MemorySection[i])
	}
}

func reencodeGlobals(re reencoder, m *wasm.Module, out *wasm.Module) error {
	for i := m.NumImportedGlobals; i < m.NumGlobals(); i++ {
		if _, ok := re.maps.Globals.Lookup(i); !ok {
			continue
		}
		vt, ref, err := re.valueType(m.GlobalSection[i].ValType, m.GlobalSection[i].Ref)
		if err != nil {
			return err
		}
		gt := m.GlobalSection[i]
		gt.ValType, gt.Ref = vt, ref
		out.GlobalSection = append(out.GlobalSection, gt)

		g := m.DefinedGlobals[i-m.NumImportedGlobals]
		init, err := re.constExpr(g.Init)
		if err != nil {
			return err
		}
		out.DefinedGlobals = append(out.DefinedGlobals, wasm.Global{Type: gt, Init: init})
	}
	return nil
}

func reencodeTags(re reencoder, m *wasm.Module, out *wasm.Module) error {
	for i := m.NumImportedTags; i < m.NumTags(); i++ {
		if _, ok := re.maps.Tags.Lookup(i); !ok {
			continue
		}
		t, err := re.typeIndex(m.TagSection[i].TypeIndex)
		if err != nil {
			return err
		}
		out.TagSection = append(out.TagSection, wasm.TagType{TypeIndex: t})
	}
	return nil
}

func reencodeExports(re reencoder, m *wasm.Module, out *wasm.Module) error {
	for _, ex := range m.ExportSection {
		var newIdx uint32
		var ok bool
		switch ex.Kind {
		case wasm.ExportKindFunc:
			newIdx, ok = re.maps.Funcs.Lookup(ex.Index)
		case wasm.ExportKindTable:
			newIdx, ok = re.maps.Tables.Lookup(ex.Index)
		case wasm.ExportKindMemory:
			newIdx, ok = re.maps.Memories.Lookup(ex.Index)
		case wasm.ExportKindGlobal:
			newIdx, ok = re.maps.Globals.Lookup(ex.Index)
		case wasm.ExportKindTag:
			newIdx, ok = re.maps.Tags.Lookup(ex.Index)
		}
		if !ok {
			continue
		}
		out.ExportSection = append(out.ExportSection, wasm.Export{Name: ex.Name, Kind: ex.Kind, Index: newIdx})
	}
	return nil
}

func reencodeStart(re reencoder, m *wasm.Module, out *wasm.Module) error {
	if m.StartSection == nil {
		return nil
	}
	n, ok := re.maps.Funcs.Lookup(*m.StartSection)
	if !ok {
		return nil
	}
	out.StartSection = &n
	return nil
}

func reencodeElements(re reencoder, m *wasm.Module, out *wasm.Module) error {
	for i, seg := range m.ElementSection {
		if _, ok := re.maps.Elems.Lookup(uint32(i)); !ok {
			continue
		}
		elemType, err := re.refType(seg.Type)
		if err != nil {
			return err
		}
		init := make([]wasm.ElementInit, len(seg.Init))
		for j, it := range seg.Init {
			if it.Expr != nil {
				ce, err := re.constExpr(*it.Expr)
				if err != nil {
					return err
				}
				init[j] = wasm.ElementInit{Expr: &ce}
			} else {
				fi, err := re.funcIndex(it.FuncIndex)
				if err != nil {
					return err
				}
				init[j] = wasm.ElementInit{FuncIndex: fi}
			}
		}
		ns := wasm.ElementSegment{Mode: seg.Mode, Type: elemType, Init: init}
		if seg.Mode == wasm.ElementModeActive {
			ti, err := re.tableIndex(seg.TableIndex)
			if err != nil {
				return err
			}
			off, err := re.constExpr(seg.Offset)
			if err != nil {
				return err
			}
			ns.TableIndex = ti
			ns.Offset = off
		}
		out.ElementSection = append(out.ElementSection, ns)
	}
	return nil
}

func reencodeData(re reencoder, m *wasm.Module, out *wasm.Module) error {
	for i, seg := range m.DataSection {
		if _, ok := re.maps.Datas.Lookup(uint32(i)); !ok {
			continue
		}
		ns := wasm.DataSegment{Mode: seg.Mode, Init: seg.Init}
		if seg.Mode == wasm.DataModeActive {
			mi, err := re.memoryIndex(seg.MemoryIndex)
			if err != nil {
				return err
			}
			off, err := re.constExpr(seg.Offset)
			if err != nil {
				return err
			}
			ns.MemoryIndex = mi
			ns.Offset = off
		}
		out.DataSection = append(out.DataSection, ns)
	}
	out.HasDataCount = m.HasDataCount
	return nil
}

// appendSyntheticExports appends isolated_<kind>_<original_index> exports
// for every selection seed that survived, per section 6: none for types,
// datas or elems.
func appendSyntheticExports(maps relocation.Maps, sel Selection, out *wasm.Module) error {
	type seed struct {
		kind string
		exportKind wasm.ExportKind
		indices []uint32
		m       relocation.Map
	}
	seeds := []seed{
		{"func", wasm.ExportKindFunc, sel.Funcs, maps.Funcs},
		{"table", wasm.ExportKindTable, sel.Tables, maps.Tables},
		{"global", wasm.ExportKindGlobal, sel.Globals, maps.Globals},
		{"memory", wasm.ExportKindMemory, sel.Memories, maps.Memories},
		{"tag", wasm.ExportKindTag, sel.Tags, maps.Tags},
	}
	seen := map[string]bool{}
	for _, s := range seeds {
		for _, old := range s.indices {
			newIdx, ok := s.m.Lookup(old)
			if !ok {
				continue
			}
			name := fmt.Sprintf("isolated_%s_%d", s.kind, old)
			if seen[name] {
				continue
			}
			seen[name] = true
			out.ExportSection = append(out.ExportSection, wasm.Export{Name: name, Kind: s.exportKind, Index: newIdx})
		}
	}
	return nil
}

// buildSectionOrder lists every known section in the binary format's order,
// followed by all of m's custom sections in their original order among
// themselves. A custom section's position relative to the known sections of
// the input is not kept: every custom section is placed after data.
func buildSectionOrder(m *wasm.Module, out *wasm.Module) []wasm.SectionMarker {
	order := []wasm.SectionID{
		wasm.SectionIDType, wasm.SectionIDImport, wasm.SectionIDFunction, wasm.SectionIDTable,
		wasm.SectionIDMemory, wasm.SectionIDTag, wasm.SectionIDGlobal, wasm.SectionIDExport,
		wasm.SectionIDStart, wasm.SectionIDElement, wasm.SectionIDDataCount, wasm.SectionIDCode,
		wasm.SectionIDData,
	}
	var markers []wasm.SectionMarker
	for _, id := range order {
		markers = append(markers, wasm.SectionMarker{ID: id})
	}
	for _, cs := range m.CustomSections {
		out.CustomSections = append(out.CustomSections, cs)
		markers = append(markers, wasm.SectionMarker{IsCustom: true, CustomIndex: len(out.CustomSections) - 1})
	}
	return markers
}

func buildReport(m *wasm.Module, sel Selection, maps relocation.Maps) Report {
	var rep Report
	add := func(kind string, old uint32, limit uint32, mp relocation.Map) {
		if old >= limit {
			rep.Entries = append(rep.Entries, ReportEntry{Kind: kind, Old: old, InRange: false})
			return
		}
		n, ok := mp.Lookup(old)
		if !ok {
			rep.Entries = append(rep.Entries, ReportEntry{Kind: kind, Old: old, InRange: false})
			return
		}
		rep.Entries = append(rep.Entries, ReportEntry{Kind: kind, Old: old, New: n, InRange: true})
	}

	groups := []struct {
		kind    string
		indices []uint32
		limit   uint32
		mp      relocation.Map
	}{
		{"Type", sel.Types, m.NumTypes(), maps.Types},
		{"Func", sel.Funcs, m.NumFuncs(), maps.Funcs},
		{"Table", sel.Tables, m.NumTables(), maps.Tables},
		{"Global", sel.Globals, m.NumGlobals(), maps.Globals},
		{"Memory", sel.Memories, m.NumMemories(), maps.Memories},
		{"Data", sel.Datas, m.NumDatas(), maps.Datas},
		{"Elem", sel.Elems, m.NumElems(), maps.Elems},
		{"Tag", sel.Tags, m.NumTags(), maps.Tags},
	}
	for _, g := range groups {
		for _, old := range g.indices {
			add(g.kind, old, g.limit, g.mp)
		}
	}
	return rep
}
