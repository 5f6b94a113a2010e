package relocation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bvisness/wasm-isolate/internal/reachability"
)

func TestBuildAssignsDenseAscendingIndices(t *testing.T) {
	m := Build([]uint32{2, 5, 9})

	n, ok := m.Lookup(2)
	require.True(t, ok)
	require.Equal(t, uint32(0), n)

	n, ok = m.Lookup(5)
	require.True(t, ok)
	require.Equal(t, uint32(1), n)

	n, ok = m.Lookup(9)
	require.True(t, ok)
	require.Equal(t, uint32(2), n)

	require.Equal(t, 3, m.Len())
}

func TestLookupUndefinedForDeadIndex(t *testing.T) {
	m := Build([]uint32{2, 5})

	_, ok := m.Lookup(3)
	require.False(t, ok)
	_, ok = m.Lookup(99)
	require.False(t, ok)
}

func TestBuildAllBuildsOnePerSpace(t *testing.T) {
	live := reachability.Live{
		Types: []uint32{0},
		Funcs: []uint32{1, 2},
	}
	maps := BuildAll(live)

	n, ok := maps.Types.Lookup(0)
	require.True(t, ok)
	require.Equal(t, uint32(0), n)

	n, ok = maps.Funcs.Lookup(2)
	require.True(t, ok)
	require.Equal(t, uint32(1), n)

	require.Equal(t, 0, maps.Tables.Len())
}
