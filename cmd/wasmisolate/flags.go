package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bvisness/wasm-isolate/internal/isolate"
)

// selectionFlags holds the eight repeatable, comma-splittable selection
// flags pflag.StringSliceVarP already supports natively; parsing strings
// into uint32s happens once, in toSelection.
type selectionFlags struct {
	types, funcs, tables, globals, memories, datas, elems, tags []string
}

func registerSelectionFlags(cmd *cobra.Command, sel *selectionFlags) {
	f := cmd.Flags()
	f.StringSliceVar(&sel.types, "types", nil, "type indices to preserve")
	f.StringSliceVarP(&sel.funcs, "funcs", "f", nil, "function indices to preserve")
	f.StringSliceVarP(&sel.tables, "tables", "t", nil, "table indices to preserve")
	f.StringSliceVarP(&sel.globals, "globals", "g", nil, "global indices to preserve")
	f.StringSliceVarP(&sel.memories, "memories", "m", nil, "memory indices to preserve")
	f.StringSliceVarP(&sel.datas, "datas", "d", nil, "data segment indices to preserve")
	f.StringSliceVarP(&sel.elems, "elems", "e", nil, "element segment indices to preserve")
	f.StringSliceVar(&sel.tags, "tags", nil, "tag indices to preserve")
}

func (s selectionFlags) toSelection() isolate.Selection {
	return isolate.Selection{
		Types:    parseIndices(s.types),
		Funcs:    parseIndices(s.funcs),
		Tables:   parseIndices(s.tables),
		Globals:  parseIndices(s.globals),
		Memories: parseIndices(s.memories),
		Datas:    parseIndices(s.datas),
		Elems:    parseIndices(s.elems),
		Tags:     parseIndices(s.tags),
	}
}

// parseIndices silently drops any entry that does not parse as an unsigned
// 32-bit index; such entries do not appear in the report. Numeric indices
// beyond an index space's size are kept and reported as out of range later.
func parseIndices(vals []string) []uint32 {
	var out []uint32
	for _, v := range vals {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(n))
	}
	return out
}
