// Package reachability computes the set of live items of a module reachable
// from a user-selected seed set, by folding internal/usegraph's per-item
// direct-use relation into a fixed point over a worklist.
package reachability

import (
	"sort"

	"github.com/bvisness/wasm-isolate/internal/usegraph"
	"github.com/bvisness/wasm-isolate/internal/wasm"
)

// Selection is the user's chosen seed items, one slice per index space, as
// parsed from the CLI's repeatable selection flags. Indices outside their
// space's range are silently ignored by Run, per the design's seeding rule.
type Selection struct {
	Types   []uint32
	Funcs   []uint32
	Tables  []uint32
	Globals []uint32
	Memories []uint32
	Tags    []uint32
	Elems   []uint32
	Datas   []uint32
}

// Live holds, per index space, the ascending deduplicated list of reachable
// indices — the all_uses result of the reachability driver.
type Live struct {
	Types   []uint32
	Funcs   []uint32
	Tables  []uint32
	Globals []uint32
	Memories []uint32
	Tags    []uint32
	Elems   []uint32
	Datas   []uint32
}

type worklistEntry = usegraph.Item

// Run seeds the worklist with sel (dropping any out-of-range seed) and
// iterates to a fixed point, returning the reachable set per index space.
// Visit order does not affect the result.
func Run(m *wasm.Module, sel Selection) Live {
	seen := map[usegraph.Item]bool{}
	var worklist []worklistEntry

	seed := func(kind usegraph.Kind, indices []uint32, limit uint32) {
		for _, idx := range indices {
			if idx >= limit {
				continue
			}
			item := usegraph.Item{Kind: kind, Index: idx}
			if !seen[item] {
				seen[item] = true
				worklist = append(worklist, item)
			}
		}
	}

	seed(usegraph.KindType, sel.Types, m.NumTypes())
	seed(usegraph.KindFunc, sel.Funcs, m.NumFuncs())
	seed(usegraph.KindTable, sel.Tables, m.NumTables())
	seed(usegraph.KindGlobal, sel.Globals, m.NumGlobals())
	seed(usegraph.KindMemory, sel.Memories, m.NumMemories())
	seed(usegraph.KindTag, sel.Tags, m.NumTags())
	seed(usegraph.KindElem, sel.Elems, m.NumElems())
	seed(usegraph.KindData, sel.Datas, m.NumDatas())

	for len(worklist) > 0 {
		item := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		uses := usegraph.Of(m, item)
		push := func(kind usegraph.Kind, indices []uint32) {
			for _, idx := range indices {
				next := usegraph.Item{Kind: kind, Index: idx}
				if !seen[next] {
					seen[next] = true
					worklist = append(worklist, next)
				}
			}
		}
		push(usegraph.KindType, uses.Types)
		push(usegraph.KindFunc, uses.Funcs)
		push(usegraph.KindTable, uses.Tables)
		push(usegraph.KindGlobal, uses.Globals)
		push(usegraph.KindMemory, uses.Memories)
		push(usegraph.KindTag, uses.Tags)
		push(usegraph.KindElem, uses.Elems)
		push(usegraph.KindData, uses.Datas)
	}

	var live Live
	for item := range seen {
		switch item.Kind {
		case usegraph.KindType:
			live.Types = append(live.Types, item.Index)
		case usegraph.KindFunc:
			live.Funcs = append(live.Funcs, item.Index)
		case usegraph.KindTable:
			live.Tables = append(live.Tables, item.Index)
		case usegraph.KindGlobal:
			live.Globals = append(live.Globals, item.Index)
		case usegraph.KindMemory:
			live.Memories = append(live.Memories, item.Index)
		case usegraph.KindTag:
			live.Tags = append(live.Tags, item.Index)
		case usegraph.KindElem:
			live.Elems = append(live.Elems, item.Index)
		case usegraph.KindData:
			live.Datas = append(live.Datas, item.Index)
		}
	}
	sortUint32s(live.Types)
	sortUint32s(live.Funcs)
	sortUint32s(live.Tables)
	sortUint32s(live.Globals)
	sortUint32s(live.Memories)
	sortUint32s(live.Tags)
	sortUint32s(live.Elems)
	sortUint32s(live.Datas)
	return live
}

func sortUint32s(s []uint32) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
