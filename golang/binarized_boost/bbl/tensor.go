package bbl

import (
	"fmt"

	"gorgonia.org/tensor"
)

//QuantizedMatrix stacks the quantized columns of featureIDs into a rows x features uint32 tensor.
func QuantizedMatrix(dataset *Dataset, featureIDs []uint32, options ...Option) (*tensor.Dense, error) {
	h := dataset.SampleCount()
	w := len(featureIDs)
	if h == 0 || w == 0 {
		return nil, fmt.Errorf("%w: quantized matrix of shape %dx%d is empty", ErrConfiguration, h, w)
	}
	backing := make([]uint32, h*w)
	parallelism := newParallelism(options)

	for q, featureID := range featureIDs {
		view, err := dataset.ColumnView(featureID)
		if err != nil {
			return nil, err
		}
		values, err := view.ExtractValues()
		if err != nil {
			return nil, err
		}
		err = parallelism.forEachBlock(h, func(begin, end int) error {
			for p := begin; p < end; p++ {
				backing[p*w+q] = values[p]
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return tensor.New(tensor.WithShape(h, w), tensor.WithBacking(backing)), nil
}

//QuantizedRow returns the bins of row p of a matrix built by QuantizedMatrix.
func QuantizedRow(matrix *tensor.Dense, p int) ([]uint32, error) {
	shape := matrix.Shape()
	row := make([]uint32, shape[1])
	for q := range row {
		element, err := matrix.At(p, q)
		if err != nil {
			return nil, err
		}
		row[q] = element.(uint32)
	}
	return row, nil
}
