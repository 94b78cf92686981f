package bbl

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerfectHashStoreEvictionRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionZSTD, CompressionLZ4, CompressionNone} {
		t.Run(compression.String(), func(t *testing.T) {
			store := NewPerfectHashStore(2, WithTempDir(t.TempDir()), WithCompression(compression))
			defer func() { require.NoError(t, store.Close()) }()

			require.NoError(t, store.Update(0, map[uint32]uint32{10: 0, 20: 1, 30: 2}))
			big := make(map[uint32]uint32)
			for i := uint32(0); i < 5000; i++ {
				big[i*7919] = i
			}
			require.NoError(t, store.Update(1, big))

			before0, err := store.Get(0)
			require.NoError(t, err)
			before1, err := store.Get(1)
			require.NoError(t, err)
			sumBefore, err := store.CheckSum()
			require.NoError(t, err)

			require.NoError(t, store.FreeRamIfPossible())
			assert.False(t, store.InRAM())
			_, err = os.Stat(store.StorageFile())
			require.NoError(t, err)

			after0, err := store.Get(0)
			require.NoError(t, err)
			assert.True(t, store.InRAM())
			assert.Equal(t, before0.ToMap(), after0.ToMap())

			after1, err := store.Get(1)
			require.NoError(t, err)
			assert.True(t, before1.Equal(after1))

			sumAfter, err := store.CheckSum()
			require.NoError(t, err)
			assert.Equal(t, sumBefore, sumAfter)
		})
	}
}

func TestPerfectHashStoreOnlyGrows(t *testing.T) {
	store := NewPerfectHashStore(1, WithTempDir(t.TempDir()))
	defer store.Close()

	require.NoError(t, store.Update(0, map[uint32]uint32{1: 0, 2: 1}))
	require.NoError(t, store.Update(0, map[uint32]uint32{1: 0, 2: 1, 3: 2}))

	err := store.Update(0, map[uint32]uint32{1: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConsistency))

	counts, err := store.UniqueValueCounts(0)
	require.NoError(t, err)
	assert.Equal(t, UniqueValuesCounts{OnLearnOnly: 2, OnAll: 3}, counts)

	hash, err := store.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 3, hash.Len())
}

func TestPerfectHashStoreShrinkCheckedWhileEvicted(t *testing.T) {
	store := NewPerfectHashStore(1, WithTempDir(t.TempDir()))
	defer store.Close()

	require.NoError(t, store.Update(0, map[uint32]uint32{1: 0, 2: 1, 3: 2}))
	require.NoError(t, store.FreeRamIfPossible())

	require.ErrorIs(t, store.Update(0, map[uint32]uint32{1: 0}), ErrConsistency)
	require.NoError(t, store.Update(0, map[uint32]uint32{1: 0, 2: 1, 3: 2, 4: 3}))
	assert.True(t, store.InRAM())

	counts, err := store.UniqueValueCounts(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), counts.OnLearnOnly)
	assert.Equal(t, uint32(4), counts.OnAll)
}

func TestPerfectHashStoreDegenerateCounts(t *testing.T) {
	store := NewPerfectHashStore(2, WithTempDir(t.TempDir()))
	defer store.Close()

	require.NoError(t, store.Update(0, map[uint32]uint32{42: 0}))

	counts, err := store.UniqueValueCounts(0)
	require.NoError(t, err)
	assert.Equal(t, UniqueValuesCounts{}, counts)

	counts, err = store.UniqueValueCounts(1)
	require.NoError(t, err)
	assert.Equal(t, UniqueValuesCounts{}, counts)

	_, err = store.UniqueValueCounts(2)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestPerfectHashStoreWithoutFileWrites(t *testing.T) {
	dir := t.TempDir()
	store := NewPerfectHashStore(1, WithTempDir(dir), WithAllowWriteFiles(false))
	defer store.Close()

	require.NoError(t, store.Update(0, map[uint32]uint32{1: 0, 2: 1}))
	require.NoError(t, store.FreeRamIfPossible())
	assert.True(t, store.InRAM())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	store.SetAllowWriteFiles(true)
	require.NoError(t, store.FreeRamIfPossible())
	assert.False(t, store.InRAM())
}

func TestPerfectHashStoreEqualReloadsBothSides(t *testing.T) {
	left := NewPerfectHashStore(1, WithTempDir(t.TempDir()))
	defer left.Close()
	right := NewPerfectHashStore(1, WithTempDir(t.TempDir()), WithCompression(CompressionLZ4))
	defer right.Close()

	mapping := map[uint32]uint32{5: 0, 6: 1, 7: 2}
	require.NoError(t, left.Update(0, mapping))
	require.NoError(t, right.Update(0, mapping))
	require.NoError(t, right.FreeRamIfPossible())

	equal, err := left.Equal(right)
	require.NoError(t, err)
	assert.True(t, equal)
	assert.True(t, right.InRAM())

	require.NoError(t, right.Update(0, map[uint32]uint32{5: 0, 6: 1, 7: 2, 8: 3}))
	equal, err = left.Equal(right)
	require.NoError(t, err)
	assert.False(t, equal)
}

func TestPerfectHashStoreCloseRemovesSpillFile(t *testing.T) {
	store := NewPerfectHashStore(1, WithTempDir(t.TempDir()))
	require.NoError(t, store.Update(0, map[uint32]uint32{1: 0, 2: 1}))
	require.NoError(t, store.FreeRamIfPossible())

	require.NoError(t, store.Close())
	_, err := os.Stat(store.StorageFile())
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = store.Get(0)
	assert.ErrorIs(t, err, ErrConsistency)
}

func TestExtendPerfectHashKeepsExistingIds(t *testing.T) {
	first := NewPerfectHash(ExtendPerfectHash(nil, []uint32{30, 10, 30, 20}))
	assert.Equal(t, map[uint32]uint32{30: 0, 10: 1, 20: 2}, first.ToMap())

	second := ExtendPerfectHash(first, []uint32{40, 10, 50})
	assert.Equal(t, map[uint32]uint32{30: 0, 10: 1, 20: 2, 40: 3, 50: 4}, second)

	bin, ok := first.Find(20)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), bin)
	_, ok = first.Find(40)
	assert.False(t, ok)
}

func TestHashCatValueIsStable(t *testing.T) {
	assert.Equal(t, HashCatValue("moscow"), HashCatValue("moscow"))
	assert.NotEqual(t, HashCatValue("moscow"), HashCatValue("paris"))
}
