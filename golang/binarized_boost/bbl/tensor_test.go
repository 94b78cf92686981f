package bbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantizedMatrix(t *testing.T) {
	p := newTestPool(t)
	d := p.dataset(t, []float64{0.1, 0.6, 2.0}, []uint32{10, 20, 10}, nil, nil)

	matrix, err := QuantizedMatrix(d, []uint32{p.floatID, p.catID}, WithBlockSize(2))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, []int(matrix.Shape()))

	expected := [][]uint32{{0, 0}, {1, 1}, {2, 0}}
	for row, want := range expected {
		got, err := QuantizedRow(matrix, row)
		require.NoError(t, err)
		assert.Equal(t, want, got, "row %d", row)
	}

	_, err = QuantizedMatrix(d, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = QuantizedMatrix(d, []uint32{p.ctrDepID})
	assert.ErrorIs(t, err, ErrConfiguration)
}
