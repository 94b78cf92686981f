package bbl

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func writeNpy(t *testing.T, fileName string, value any) {
	t.Helper()
	dst, err := os.Create(fileName)
	require.NoError(t, err)
	defer func() { HandleError(dst.Close()) }()
	require.NoError(t, npyio.Write(dst, value))
}

func TestBinsNpyRoundTrip(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "bins.npy")
	bins := []uint32{0, 3, 1, 2, 7}
	require.NoError(t, WriteBinsNpy(fileName, bins))

	column, err := ReadCatColumnNpy(fileName)
	require.NoError(t, err)
	assert.Equal(t, bins, column.Values())
}

func TestReadFloatColumnNpy(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "f.npy")
	writeNpy(t, fileName, []float64{0.1, math.NaN(), 2})

	column, err := ReadFloatColumnNpy(fileName)
	require.NoError(t, err)
	require.Equal(t, 3, column.Len())
	assert.Equal(t, 0.1, column.At(0))
	assert.True(t, math.IsNaN(column.At(1)))
}

func TestReadColumnRejectsMatrix(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "m.npy")
	writeNpy(t, fileName, mat.NewDense(2, 2, []float64{1, 2, 3, 4}))

	_, err := ReadFloatColumnNpy(fileName)
	assert.ErrorIs(t, err, ErrParse)

	dense, err := ReadNpy(fileName)
	require.NoError(t, err)
	assert.Equal(t, 4.0, dense.At(1, 1))
}

func TestParseFloatColumn(t *testing.T) {
	column, err := ParseFloatColumn(3, []string{"1.5", "", "NaN", " 2 "})
	require.NoError(t, err)
	assert.Equal(t, 1.5, column.At(0))
	assert.True(t, math.IsNaN(column.At(1)))
	assert.True(t, math.IsNaN(column.At(2)))
	assert.Equal(t, 2.0, column.At(3))

	_, err = ParseFloatColumn(7, []string{"1", "2", "x"})
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, 2, parseErr.Row)
	assert.Equal(t, 7, parseErr.Column)
	assert.Equal(t, "x", parseErr.Value)
	assert.ErrorIs(t, err, ErrParse)
}
