package bbl

import "fmt"

//TreeBinBuilder accumulates per-row leaf indices of an oblivious tree split by split. Each row
//holds bin = bin*2 + predicate for every applied split. An optional test dataset is tracked
//in a second buffer that replays the same splits against its own quantized values.
type TreeBinBuilder struct {
	learn, test         *Dataset
	learnBins, testBins []uint32
	learnCols, testCols map[uint32][]uint32
	depth               int
	parallelism         Parallelism
}

//NewTreeBinBuilder creates a builder with all-zero buffers. test may be nil.
func NewTreeBinBuilder(learn, test *Dataset, options ...Option) *TreeBinBuilder {
	b := &TreeBinBuilder{
		learn:       learn,
		learnBins:   make([]uint32, learn.SampleCount()),
		learnCols:   make(map[uint32][]uint32),
		parallelism: newParallelism(options),
	}
	if test != nil {
		b.test = test
		b.testBins = make([]uint32, test.SampleCount())
		b.testCols = make(map[uint32][]uint32)
	}
	return b
}

//Prefetch quantizes the columns of featureIDs so that later splits on them reuse the result.
func (b *TreeBinBuilder) Prefetch(featureIDs []uint32) error {
	for _, featureID := range featureIDs {
		if _, err := resolveColumn(b.learn, b.learnCols, featureID); err != nil {
			return err
		}
		if b.test != nil {
			if _, err := resolveColumn(b.test, b.testCols, featureID); err != nil {
				return err
			}
		}
	}
	return nil
}

//AddSplit appends one level to every row of the learn and test buffers.
func (b *TreeBinBuilder) AddSplit(split BinarySplit) error {
	if b.depth >= MaxTreeDepth {
		return fmt.Errorf("%w: tree depth would exceed %d", ErrConfiguration, MaxTreeDepth)
	}
	if err := b.applySplit(b.learn, b.learnCols, b.learnBins, split); err != nil {
		return err
	}
	if b.test != nil {
		if err := b.applySplit(b.test, b.testCols, b.testBins, split); err != nil {
			return err
		}
	}
	b.depth++
	return nil
}

func (b *TreeBinBuilder) applySplit(dataset *Dataset, columns map[uint32][]uint32, bins []uint32, split BinarySplit) error {
	values, err := resolveColumn(dataset, columns, split.FeatureID)
	if err != nil {
		return err
	}
	if len(values) != len(bins) {
		return consistencyErrorf("feature #%d has %d quantized rows, dataset %s has %d",
			split.FeatureID, len(values), dataset.Description(), len(bins))
	}
	return b.parallelism.forEachBlock(len(bins), func(begin, end int) error {
		for i := begin; i < end; i++ {
			bins[i] = bins[i]<<1 | split.Apply(values[i])
		}
		return nil
	})
}

func resolveColumn(dataset *Dataset, columns map[uint32][]uint32, featureID uint32) ([]uint32, error) {
	if values, ok := columns[featureID]; ok {
		return values, nil
	}
	view, err := dataset.ColumnView(featureID)
	if err != nil {
		return nil, err
	}
	values, err := view.ExtractValues()
	if err != nil {
		return nil, err
	}
	columns[featureID] = values
	return values, nil
}

func (b *TreeBinBuilder) Depth() int {
	return b.depth
}

//LearnBins returns the learn buffer. It must not be modified after publication.
func (b *TreeBinBuilder) LearnBins() []uint32 {
	return b.learnBins
}

//TestBins returns the test buffer, nil when the builder has no test dataset.
func (b *TreeBinBuilder) TestBins() []uint32 {
	return b.testBins
}

//BuildTreeBins computes the leaf index of every row of learn, and of test when it is not nil.
//Each distinct feature is quantized once for the whole structure.
func BuildTreeBins(learn, test *Dataset, structure TreeStructure, options ...Option) (learnBins, testBins []uint32, err error) {
	builder := NewTreeBinBuilder(learn, test, options...)
	if err := builder.Prefetch(structure.Features()); err != nil {
		return nil, nil, err
	}
	for _, split := range structure.Splits {
		if err := builder.AddSplit(split); err != nil {
			return nil, nil, err
		}
	}
	return builder.LearnBins(), builder.TestBins(), nil
}
