package bbl

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermutationDependentSplit(t *testing.T) {
	p := newTestPool(t)

	assert.False(t, HasPermutationDependentSplit(TreeStructure{}, p.catalog))
	assert.False(t, HasPermutationDependentSplit(TreeStructure{Splits: []BinarySplit{
		{FeatureID: p.floatID, SplitType: TakeGreater},
		{FeatureID: p.ctrIndID, SplitType: TakeGreater},
	}}, p.catalog))
	assert.True(t, HasPermutationDependentSplit(TreeStructure{Splits: []BinarySplit{
		{FeatureID: p.floatID, SplitType: TakeGreater},
		{FeatureID: p.ctrDepID, SplitType: TakeGreater},
	}}, p.catalog))
}

func TestResolveScope(t *testing.T) {
	p := newTestPool(t)
	d := p.dataset(t, []float64{0.1}, nil, nil, nil)

	independent := TreeStructure{Splits: []BinarySplit{{FeatureID: p.floatID, SplitType: TakeGreater}}}
	dependent := TreeStructure{Splits: []BinarySplit{{FeatureID: p.ctrDepID, SplitType: TakeGreater}}}
	assert.Equal(t, d.PermutationIndependentScope(), ResolveScope(independent, p.catalog, d))
	assert.Equal(t, d.PermutationDependentScope(), ResolveScope(dependent, p.catalog, d))
	assert.NotEqual(t, d.PermutationDependentScope(), d.PermutationIndependentScope())
}

func TestGetBinsForModelWithoutHistory(t *testing.T) {
	p := newTestPool(t)
	d := p.dataset(t, []float64{0.1, 0.6, 2.0}, nil, nil, nil)
	cache, err := NewBinCache()
	require.NoError(t, err)

	structure := TreeStructure{Splits: []BinarySplit{{FeatureID: p.floatID, BinIdx: 0, SplitType: TakeGreater}}}
	bins, err := GetBinsForModel(cache, p.catalog, d, structure)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 1}, bins)
	assert.True(t, cache.Has(d.PermutationIndependentScope(), structure))

	again, err := GetBinsForModel(cache, p.catalog, d, structure)
	require.NoError(t, err)
	assert.Equal(t, bins, again)
	assert.Equal(t, 1.0, testutil.ToFloat64(cache.metrics.misses.WithLabelValues(PermutationIndependentScope.String())))
}

func TestGetBinsForModelWithHistory(t *testing.T) {
	p := newTestPool(t)
	history := p.dataset(t, nil, nil, []float64{0.1, 0.9, 0.2, 0.7}, nil)
	live := p.dataset(t, nil, nil, []float64{0.6, 0.3}, nil)
	require.NoError(t, live.LinkHistory(history))
	cache, err := NewBinCache()
	require.NoError(t, err)

	structure := TreeStructure{Splits: []BinarySplit{{FeatureID: p.ctrDepID, BinIdx: 0, SplitType: TakeGreater}}}
	testBins, err := GetBinsForModel(cache, p.catalog, live, structure)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 0}, testBins)

	assert.True(t, cache.Has(live.PermutationDependentScope(), structure))
	assert.True(t, cache.Has(history.PermutationDependentScope(), structure))

	learnBins, err := GetBinsForModel(cache, p.catalog, history, structure)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 0, 1}, learnBins)

	dependent := PermutationDependentScope.String()
	assert.Equal(t, 1.0, testutil.ToFloat64(cache.metrics.misses.WithLabelValues(dependent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(cache.metrics.hits.WithLabelValues(dependent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(cache.metrics.inserts.WithLabelValues(dependent)))
}

func TestGetBinsForModelRejectsInvalidStructure(t *testing.T) {
	p := newTestPool(t)
	d := p.dataset(t, []float64{0.1}, nil, nil, nil)
	cache, err := NewBinCache()
	require.NoError(t, err)

	structure := TreeStructure{Splits: []BinarySplit{{FeatureID: p.floatID, BinIdx: 5, SplitType: TakeGreater}}}
	_, err = GetBinsForModel(cache, p.catalog, d, structure)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheBinsForModel(t *testing.T) {
	p := newTestPool(t)
	d := p.dataset(t, []float64{0.1, 0.6}, nil, nil, nil)
	cache, err := NewBinCache()
	require.NoError(t, err)
	structure := TreeStructure{Splits: []BinarySplit{{FeatureID: p.floatID, BinIdx: 0, SplitType: TakeGreater}}}

	assert.ErrorIs(t, CacheBinsForModel(cache, p.catalog, d, structure, []uint32{0}), ErrConsistency)
	require.NoError(t, CacheBinsForModel(cache, p.catalog, d, structure, []uint32{0, 1}))

	bins, err := GetBinsForModel(cache, p.catalog, d, structure)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, bins)
}

func TestDatasetWithSubsetHasOwnScopes(t *testing.T) {
	p := newTestPool(t)
	d := p.dataset(t, []float64{0.1, 0.6, 2.0}, nil, nil, nil)
	subset := d.WithSubset(NewIndexedSubset([]uint32{2, 0}))
	assert.NotEqual(t, d.ID(), subset.ID())
	assert.False(t, subset.HasCtrHistoryDataSet())

	cache, err := NewBinCache()
	require.NoError(t, err)
	structure := TreeStructure{Splits: []BinarySplit{{FeatureID: p.floatID, BinIdx: 0, SplitType: TakeGreater}}}
	bins, err := GetBinsForModel(cache, p.catalog, subset, structure)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 0}, bins)

	assert.ErrorIs(t, d.LinkHistory(d), ErrConfiguration)
}
