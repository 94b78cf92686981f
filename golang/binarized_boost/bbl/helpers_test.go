package bbl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

//testPool is a small catalog with one float, one categorical and two CTR features over the
//categorical one: a permutation-dependent Borders CTR and a Counter CTR.
type testPool struct {
	catalog  *FeatureCatalog
	hashes   *PerfectHashStore
	floatID  uint32
	catID    uint32
	ctrDepID uint32
	ctrIndID uint32
}

func newTestPool(t *testing.T) *testPool {
	t.Helper()
	p := &testPool{catalog: NewFeatureCatalog()}
	var err error
	p.floatID, err = p.catalog.AddFloatFeature("f", []float64{0.5, 1.5}, NanForbidden)
	require.NoError(t, err)
	p.catID = p.catalog.AddCategoricalFeature("c", 0, 0)

	p.ctrDepID, err = p.catalog.RegisterCtr(CtrDescription{
		Tensor:        FeatureTensor{CatFeatures: []uint32{p.catID}},
		Configuration: CtrConfig{Type: CtrBorders, PriorNum: 0.5, PriorDenom: 1},
	}, []float64{0.5})
	require.NoError(t, err)
	p.ctrIndID, err = p.catalog.RegisterCtr(CtrDescription{
		Tensor:        FeatureTensor{CatFeatures: []uint32{p.catID}},
		Configuration: CtrConfig{Type: CtrCounter},
	}, []float64{0.25, 0.75})
	require.NoError(t, err)

	p.hashes = NewPerfectHashStore(1, WithTempDir(t.TempDir()))
	t.Cleanup(func() { _ = p.hashes.Close() })
	return p
}

//dataset builds a dataset of the pool from raw columns; nil columns are skipped.
func (p *testPool) dataset(t *testing.T, floats []float64, cats []uint32, ctrDep, ctrInd []float64, options ...Option) *Dataset {
	t.Helper()
	rows := max(len(floats), len(cats), len(ctrDep), len(ctrInd))
	d := NewDataset(p.catalog, p.hashes, NewFullSubset(rows), options...)
	if floats != nil {
		require.NoError(t, d.AddFloatColumn(p.floatID, NewFloatColumn(floats)))
	}
	if cats != nil {
		require.NoError(t, UpdatePerfectHash(p.catalog, p.hashes, p.catID, NewCatColumn(cats)))
		require.NoError(t, d.AddCatColumn(p.catID, NewCatColumn(cats)))
	}
	if ctrDep != nil {
		require.NoError(t, d.AddCtrValues(p.ctrDepID, NewFloatColumn(ctrDep)))
	}
	if ctrInd != nil {
		require.NoError(t, d.AddCtrValues(p.ctrIndID, NewFloatColumn(ctrInd)))
	}
	return d
}
