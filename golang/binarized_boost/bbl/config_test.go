package bbl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	fileName := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(fileName, []byte(content), 0o644))
	return fileName
}

func TestLoadConfigJSON(t *testing.T) {
	fileName := writeFile(t, "config.json", `{
  "threads_num": 4,
  "compression": "lz4",
  "catalog": {"features": [{"name": "f", "kind": "float", "borders": [0.5, 1.5], "learn_file": "f.npy"}]},
  "structures": [{"name": "s", "splits": [{"feature": "f", "bin": 1}]}]
}`)
	config, err := LoadConfig(fileName)
	require.NoError(t, err)

	assert.Equal(t, 4, config.ThreadsNum)
	assert.Equal(t, "svg", config.FigureType)
	assert.Equal(t, 32, config.MaxBorders)
	assert.True(t, config.AllowWriteFiles)
	require.Len(t, config.Catalog.Features, 1)
	assert.Equal(t, []float64{0.5, 1.5}, config.Catalog.Features[0].Borders)
	require.Len(t, config.Structures, 1)
	assert.Equal(t, uint32(1), config.Structures[0].Splits[0].Bin)

	options, err := config.StoreOptions()
	require.NoError(t, err)
	store := NewPerfectHashStore(0, options...)
	defer store.Close()
	assert.Equal(t, CompressionLZ4, store.compression)
}

func TestLoadConfigYAML(t *testing.T) {
	fileName := writeFile(t, "config.yaml", `
figure_type: png
allow_write_files: false
catalog:
  features:
    - name: city
      kind: categorical
      learn_file: city.npy
    - name: city_ctr
      kind: ctr
      ctr_type: Counter
      cat_features: [city]
      borders: [0.1, 0.2]
      learn_file: ctr.npy
`)
	config, err := LoadConfig(fileName)
	require.NoError(t, err)
	assert.Equal(t, "png", config.FigureType)
	assert.False(t, config.AllowWriteFiles)
	assert.Equal(t, uint32(1), config.Catalog.CatFeatureCount())

	catalog, index, err := NewCatalogFromSpec(config.Catalog, nil)
	require.NoError(t, err)
	ctrID, err := index.ID("city_ctr")
	require.NoError(t, err)
	assert.True(t, catalog.IsCtr(ctrID))
	assert.False(t, catalog.IsPermutationDependentFeature(ctrID))
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "broken.json", `{"threads_num": "many"}`))
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	config := DefaultConfig()
	config.Compression = "brotli"
	_, err = config.StoreOptions()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewCatalogFromSpecErrors(t *testing.T) {
	_, _, err := NewCatalogFromSpec(CatalogSpec{Features: []FeatureSpec{{Name: "f", Kind: "image"}}}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, _, err = NewCatalogFromSpec(CatalogSpec{Features: []FeatureSpec{{Name: "f", Kind: "float"}, {Name: "f", Kind: "float"}}}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, _, err = NewCatalogFromSpec(CatalogSpec{Features: []FeatureSpec{{Name: "ctr", Kind: "ctr", CtrType: "Borders", CatFeatures: []string{"city"}}}}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, _, err = NewCatalogFromSpec(CatalogSpec{Features: []FeatureSpec{{Name: "f", Kind: "float", MaxBorders: 4}}}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewCatalogFromSpecComputesBorders(t *testing.T) {
	spec := CatalogSpec{Features: []FeatureSpec{{Name: "f", Kind: "float", MaxBorders: 8, NanMode: "Min"}}}
	catalog, index, err := NewCatalogFromSpec(spec, func(feature FeatureSpec) ([]float64, error) {
		return []float64{3, 1, 2}, nil
	})
	require.NoError(t, err)
	id, err := index.ID("f")
	require.NoError(t, err)

	borders, err := catalog.Borders(id)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5}, borders)
	nanMode, err := catalog.NanMode(id)
	require.NoError(t, err)
	assert.Equal(t, NanMin, nanMode)
}

func TestStructureSpecDefaultsSplitType(t *testing.T) {
	spec := CatalogSpec{Features: []FeatureSpec{
		{Name: "f", Kind: "float", Borders: []float64{1, 2}},
		{Name: "c", Kind: "cat"},
	}}
	catalog, index, err := NewCatalogFromSpec(spec, nil)
	require.NoError(t, err)

	structure, err := StructureSpec{Splits: []SplitSpec{{Feature: "f", Bin: 1}, {Feature: "c", Bin: 0}}}.ToStructure(catalog, index)
	require.NoError(t, err)
	assert.Equal(t, TakeGreater, structure.Splits[0].SplitType)
	assert.Equal(t, TakeBin, structure.Splits[1].SplitType)

	_, err = StructureSpec{Splits: []SplitSpec{{Feature: "g"}}}.ToStructure(catalog, index)
	assert.ErrorIs(t, err, ErrConfiguration)
}
