package bbl

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePoolFiles(t *testing.T) (string, CatalogSpec) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]any{
		"f_learn.npy":   []float64{0.1, 0.6, 2.0, 0.7},
		"f_test.npy":    []float64{1.0, 0.2},
		"c_learn.npy":   []uint32{10, 20, 10, 30},
		"c_test.npy":    []uint32{20, 40},
		"ctr_learn.npy": []float64{0.1, 0.9, 0.2, 0.7},
		"ctr_test.npy":  []float64{0.6, 0.3},
	}
	for name, value := range files {
		writeNpy(t, filepath.Join(dir, name), value)
	}
	spec := CatalogSpec{Features: []FeatureSpec{
		{Name: "f", Kind: "float", Borders: []float64{0.5, 1.5},
			LearnFile: filepath.Join(dir, "f_learn.npy"), TestFile: filepath.Join(dir, "f_test.npy")},
		{Name: "c", Kind: "categorical",
			LearnFile: filepath.Join(dir, "c_learn.npy"), TestFile: filepath.Join(dir, "c_test.npy")},
		{Name: "ctr", Kind: "ctr", CtrType: "Borders", CatFeatures: []string{"c"}, Borders: []float64{0.5},
			LearnFile: filepath.Join(dir, "ctr_learn.npy"), TestFile: filepath.Join(dir, "ctr_test.npy")},
	}}
	return dir, spec
}

func TestLoadPool(t *testing.T) {
	dir, spec := writePoolFiles(t)
	pool, err := LoadPool(spec, true, []StoreOption{WithTempDir(dir)})
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, 4, pool.Learn.SampleCount())
	require.NotNil(t, pool.Test)
	assert.Equal(t, 2, pool.Test.SampleCount())
	assert.Same(t, pool.Learn, pool.Test.LinkedHistoryForCtr())

	catID, err := pool.Index.ID("c")
	require.NoError(t, err)
	counts, err := pool.Hashes.UniqueValueCounts(0)
	require.NoError(t, err)
	assert.Equal(t, UniqueValuesCounts{OnLearnOnly: 3, OnAll: 4}, counts)
	binCount, err := pool.Catalog.BinCount(catID)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), binCount)

	view, err := pool.Test.ColumnView(catID)
	require.NoError(t, err)
	values, err := view.ExtractValues()
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 3}, values)
}

func TestLoadPoolBinsForModel(t *testing.T) {
	dir, spec := writePoolFiles(t)
	pool, err := LoadPool(spec, true, []StoreOption{WithTempDir(dir)}, WithWorkers(2))
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, pool.Hashes.FreeRamIfPossible())

	structure, err := StructureSpec{Splits: []SplitSpec{{Feature: "f", Bin: 0}, {Feature: "c", Bin: 1}}}.ToStructure(pool.Catalog, pool.Index)
	require.NoError(t, err)

	cache, err := NewBinCache()
	require.NoError(t, err)
	testBins, err := GetBinsForModel(cache, pool.Catalog, pool.Test, structure)
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 0}, testBins)

	learnBins, err := GetBinsForModel(cache, pool.Catalog, pool.Learn, structure)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 3, 2, 2}, learnBins)
	assert.Equal(t, 2, cache.Len())

	ctrStructure, err := StructureSpec{Splits: []SplitSpec{{Feature: "ctr", Bin: 0}}}.ToStructure(pool.Catalog, pool.Index)
	require.NoError(t, err)
	assert.True(t, HasPermutationDependentSplit(ctrStructure, pool.Catalog))
	testBins, err = GetBinsForModel(cache, pool.Catalog, pool.Test, ctrStructure)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 0}, testBins)
	assert.True(t, cache.Has(pool.Learn.PermutationDependentScope(), ctrStructure))
}

func TestLoadPoolWithoutTest(t *testing.T) {
	dir, spec := writePoolFiles(t)
	for i := range spec.Features {
		spec.Features[i].TestFile = ""
	}
	pool, err := LoadPool(spec, true, []StoreOption{WithTempDir(dir)})
	require.NoError(t, err)
	defer pool.Close()
	assert.Nil(t, pool.Test)
	assert.False(t, pool.Learn.HasCtrHistoryDataSet())
}

func TestLoadPoolColumnLengthMismatch(t *testing.T) {
	dir, spec := writePoolFiles(t)
	spec.Features[1].LearnFile = spec.Features[1].TestFile
	spec.Features[1].TestFile = ""
	_, err := LoadPool(spec, false, []StoreOption{WithTempDir(dir)})
	assert.ErrorIs(t, err, ErrParse)
}
