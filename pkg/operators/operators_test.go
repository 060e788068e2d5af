package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/udo/pkg/common"
	"github.com/daviszhen/udo/pkg/storage"
	"github.com/daviszhen/udo/pkg/udo"
)

// inputOf spreads the given tuples over numEntries local storages.
func inputOf[T any](numEntries int, tuples []T) *storage.ParallelChunkedStorage[T] {
	input := &storage.ParallelChunkedStorage[T]{}
	refs := make([]storage.LocalStorageRef[T], numEntries)
	for e := 0; e < numEntries; e++ {
		refs[e] = input.CreateLocalStorage(uint32(e))
	}
	for i, tuple := range tuples {
		refs[i%numEntries].Storage().Append(tuple)
	}
	return input
}

func TestIdentity(t *testing.T) {
	tuples := []IdentityTuple{{A: 1}, {A: 2}, {A: 3}, {A: 4}}
	input := inputOf(4, tuples)

	s := udo.NewStandalone[IdentityTuple, IdentityTuple](4, 1000)
	out := s.Run(&Identity{}, input)

	require.Equal(t, uint64(4), out.Size())
	got := make(map[uint64]int)
	out.ForEach(func(v *IdentityTuple) {
		got[v.A]++
	})
	// The output is a permutation of the input.
	assert.Equal(t, map[uint64]int{1: 1, 2: 1, 3: 1, 4: 1}, got)
}

func TestContainsDatabase(t *testing.T) {
	words := []string{"hello", "DataBase rocks", "no match", "underDATABASEscore"}
	tuples := make([]WordTuple, 0, len(words))
	for _, w := range words {
		tuples = append(tuples, WordTuple{Word: common.MakeStringFrom(w)})
	}
	input := inputOf(2, tuples)

	s := udo.NewStandalone[WordTuple, WordTuple](4, 1000)
	out := s.Run(&ContainsDatabase{}, input)

	require.Equal(t, uint64(2), out.Size())
	got := make(map[string]bool)
	out.ForEach(func(v *WordTuple) {
		got[v.Word.String()] = true
	})
	assert.True(t, got["DataBase rocks"])
	assert.True(t, got["underDATABASEscore"])
}

func TestContainsDatabaseEdgeCases(t *testing.T) {
	words := []string{
		"database",
		"datadatabase",
		"databas",
		"xdatabasx",
		"",
		"DATABASEDATABASE",
	}
	tuples := make([]WordTuple, 0, len(words))
	for _, w := range words {
		tuples = append(tuples, WordTuple{Word: common.MakeStringFrom(w)})
	}
	input := inputOf(1, tuples)

	s := udo.NewStandalone[WordTuple, WordTuple](1, 1000)
	out := s.Run(&ContainsDatabase{}, input)

	got := make(map[string]bool)
	out.ForEach(func(v *WordTuple) {
		got[v.Word.String()] = true
	})
	assert.Equal(t, map[string]bool{
		"database":         true,
		"datadatabase":     true,
		"DATABASEDATABASE": true,
	}, got)
}

func TestCountLifestyle(t *testing.T) {
	words := []string{"lifestyle", "x", "lifestyle", "y", "lifestyle"}
	tuples := make([]WordTuple, 0, len(words))
	for _, w := range words {
		tuples = append(tuples, WordTuple{Word: common.MakeStringFrom(w)})
	}
	input := inputOf(2, tuples)

	s := udo.NewStandalone[WordTuple, WordCountTuple](4, 1000)
	out := s.Run(&CountLifestyle{}, input)

	require.Equal(t, uint64(2), out.Size())
	got := make(map[string]uint64)
	out.ForEach(func(v *WordCountTuple) {
		got[v.Word.String()] = v.WordCount
	})
	assert.Equal(t, map[string]uint64{"lifestyle": 3, "other": 2}, got)
}

func TestSplitArrays(t *testing.T) {
	tuples := []ArrayTuple{
		{
			Name:   common.MakeStringFrom("k"),
			Values: common.MakeStringFrom("1,2,,abc,3"),
		},
	}
	input := inputOf(1, tuples)

	s := udo.NewStandalone[ArrayTuple, ArrayValueTuple](2, 1000)
	out := s.Run(&SplitArrays{}, input)

	require.Equal(t, uint64(3), out.Size())
	got := make(map[int64]bool)
	out.ForEach(func(v *ArrayValueTuple) {
		assert.Equal(t, "k", v.Name.String())
		got[v.Value] = true
	})
	assert.Equal(t, map[int64]bool{1: true, 2: true, 3: true}, got)
}
