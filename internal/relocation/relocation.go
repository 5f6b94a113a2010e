// Package relocation builds the old-index-to-new-index maps the reencoder
// uses to renumber a module down to only its live items.
package relocation

import "github.com/bvisness/wasm-isolate/internal/reachability"

// Map is a total function from live old indices to compact new indices,
// undefined (Lookup's second return false) for any index not live.
type Map struct {
	toNew map[uint32]uint32
}

// Build constructs a Map from live, an ascending list of old indices. Live
// items keep their relative order: the new index of live[i] is i.
func Build(live []uint32) Map {
	m := Map{toNew: make(map[uint32]uint32, len(live))}
	for i, old := range live {
		m.toNew[old] = uint32(i)
	}
	return m
}

// Lookup returns the new index for old and whether old is live.
func (m Map) Lookup(old uint32) (uint32, bool) {
	v, ok := m.toNew[old]
	return v, ok
}

// Len reports the size of the renumbered index space.
func (m Map) Len() int { return len(m.toNew) }

// Maps bundles one relocation Map per index space, built directly from a
// reachability.Live result.
type Maps struct {
	Types   Map
	Funcs   Map
	Tables  Map
	Globals Map
	Memories Map
	Tags    Map
	Elems   Map
	Datas   Map
}

// BuildAll constructs every per-space Map from one reachability result.
func BuildAll(live reachability.Live) Maps {
	return Maps{
		Types:   Build(live.Types),
		Funcs:   Build(live.Funcs),
		Tables:  Build(live.Tables),
		Globals: Build(live.Globals),
		Memories: Build(live.Memories),
		Tags:    Build(live.Tags),
		Elems:   Build(live.Elems),
		Datas:   Build(live.Datas),
	}
}
