package bbl

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

//ArraySubsetIndexing maps positions of a row subset to row indices of the raw columns.
//A nil indices slice stands for the full range [0, size).
type ArraySubsetIndexing struct {
	size    int
	indices []uint32
}

//NewFullSubset selects all size rows in their natural order.
func NewFullSubset(size int) *ArraySubsetIndexing {
	return &ArraySubsetIndexing{size: size}
}

//NewIndexedSubset selects the given rows in the given order.
func NewIndexedSubset(indices []uint32) *ArraySubsetIndexing {
	return &ArraySubsetIndexing{size: len(indices), indices: append([]uint32(nil), indices...)}
}

func (s *ArraySubsetIndexing) Size() int {
	return s.size
}

func (s *ArraySubsetIndexing) IsFull() bool {
	return s.indices == nil
}

//SrcIndex returns the raw row of the i-th subset position.
func (s *ArraySubsetIndexing) SrcIndex(i int) uint32 {
	if s.indices == nil {
		return uint32(i)
	}
	return s.indices[i]
}

//Indices materializes the raw row of every position.
func (s *ArraySubsetIndexing) Indices() []uint32 {
	result := make([]uint32, s.size)
	for i := range result {
		result[i] = s.SrcIndex(i)
	}
	return result
}

//Compose returns the subset that takes the positions sel of s.
func (s *ArraySubsetIndexing) Compose(sel *ArraySubsetIndexing) (*ArraySubsetIndexing, error) {
	if sel.IsFull() {
		if sel.size > s.size {
			return nil, consistencyErrorf("sub-selection of %d rows exceeds subset of %d rows", sel.size, s.size)
		}
		if s.IsFull() {
			return NewFullSubset(sel.size), nil
		}
		return &ArraySubsetIndexing{size: sel.size, indices: s.indices[:sel.size:sel.size]}, nil
	}
	indices := make([]uint32, sel.size)
	for i, pos := range sel.indices {
		if int(pos) >= s.size {
			return nil, consistencyErrorf("sub-selection position %d is outside subset of %d rows", pos, s.size)
		}
		indices[i] = s.SrcIndex(int(pos))
	}
	return &ArraySubsetIndexing{size: sel.size, indices: indices}, nil
}

//FloatColumn is an immutable raw numeric column. Views share it instead of copying.
type FloatColumn struct {
	values *mat.VecDense
	n      int
}

//NewFloatColumn copies values into a new column.
func NewFloatColumn(values []float64) *FloatColumn {
	if len(values) == 0 {
		return &FloatColumn{}
	}
	return &FloatColumn{values: mat.NewVecDense(len(values), append([]float64(nil), values...)), n: len(values)}
}

func (c *FloatColumn) Len() int {
	return c.n
}

func (c *FloatColumn) At(row int) float64 {
	return c.values.AtVec(row)
}

//CatColumn is an immutable raw categorical column of hashed values.
type CatColumn struct {
	values []uint32
}

//NewCatColumn copies hashed values into a new column.
func NewCatColumn(hashes []uint32) *CatColumn {
	return &CatColumn{values: append([]uint32(nil), hashes...)}
}

//NewCatColumnFromTokens hashes raw tokens with HashCatValue.
func NewCatColumnFromTokens(tokens []string) *CatColumn {
	values := make([]uint32, len(tokens))
	for i, token := range tokens {
		values[i] = HashCatValue(token)
	}
	return &CatColumn{values: values}
}

func (c *CatColumn) Len() int {
	return len(c.values)
}

func (c *CatColumn) At(row int) uint32 {
	return c.values[row]
}

//Values returns the raw hashed values. The slice must not be modified.
func (c *CatColumn) Values() []uint32 {
	return c.values
}

var errNanForbidden = errors.New("nan values are forbidden for this feature")

//QuantizeValue returns the bin of value for the given borders. With NanForbidden the bin
//is the number of borders strictly below value. NanMin reserves bin 0 for NaN and shifts
//the other bins by one; NanMax reserves bin len(borders)+1. ok is false for a forbidden NaN.
func QuantizeValue(value float64, borders []float64, nanMode NanMode) (bin uint32, ok bool) {
	if math.IsNaN(value) {
		switch nanMode {
		case NanMin:
			return 0, true
		case NanMax:
			return uint32(len(borders)) + 1, true
		default:
			return 0, false
		}
	}
	bin = uint32(sort.SearchFloat64s(borders, value))
	if nanMode == NanMin {
		bin++
	}
	return bin, true
}

//QuantizedColumnView lazily binarizes one feature over a row subset of a shared raw column.
type QuantizedColumnView struct {
	featureID   uint32
	catalog     *FeatureCatalog
	floats      *FloatColumn
	cats        *CatColumn
	hashes      *PerfectHashStore
	subset      *ArraySubsetIndexing
	parallelism Parallelism
}

//NewFloatColumnView creates a view over a numeric or CTR feature.
func NewFloatColumnView(catalog *FeatureCatalog, featureID uint32, column *FloatColumn, subset *ArraySubsetIndexing, options ...Option) (*QuantizedColumnView, error) {
	kind, err := catalog.Kind(featureID)
	if err != nil {
		return nil, err
	}
	if kind != FloatFeature && kind != CtrFeature {
		return nil, configurationErrorf(featureID, "float column given for a %v feature", kind)
	}
	return &QuantizedColumnView{
		featureID:   featureID,
		catalog:     catalog,
		floats:      column,
		subset:      subset,
		parallelism: newParallelism(options),
	}, nil
}

//NewCatColumnView creates a view over a categorical feature whose bins come from hashes.
func NewCatColumnView(catalog *FeatureCatalog, hashes *PerfectHashStore, featureID uint32, column *CatColumn, subset *ArraySubsetIndexing, options ...Option) (*QuantizedColumnView, error) {
	desc, err := catalog.Descriptor(featureID)
	if err != nil {
		return nil, err
	}
	if desc.Kind != CategoricalFeature {
		return nil, configurationErrorf(featureID, "categorical column given for a %v feature", desc.Kind)
	}
	if !hashes.HasFeature(desc.Cat.CatFeatureIdx) {
		return nil, configurationErrorf(featureID, "perfect hash store has no categorical feature #%d", desc.Cat.CatFeatureIdx)
	}
	return &QuantizedColumnView{
		featureID:   featureID,
		catalog:     catalog,
		cats:        column,
		hashes:      hashes,
		subset:      subset,
		parallelism: newParallelism(options),
	}, nil
}

func (v *QuantizedColumnView) FeatureID() uint32 {
	return v.featureID
}

func (v *QuantizedColumnView) Size() int {
	return v.subset.Size()
}

func (v *QuantizedColumnView) Subset() *ArraySubsetIndexing {
	return v.subset
}

//CloneWithNewSubsetIndexing returns a view of the same raw column and perfect hash over other rows.
func (v *QuantizedColumnView) CloneWithNewSubsetIndexing(subset *ArraySubsetIndexing) *QuantizedColumnView {
	clone := *v
	clone.subset = subset
	return &clone
}

func (v *QuantizedColumnView) rawLen() int {
	if v.cats != nil {
		return v.cats.Len()
	}
	return v.floats.Len()
}

//ExtractValues binarizes every row of the subset. Rows are processed in parallel blocks and
//the result is returned only after all blocks have joined.
func (v *QuantizedColumnView) ExtractValues() ([]uint32, error) {
	desc, err := v.catalog.Descriptor(v.featureID)
	if err != nil {
		return nil, err
	}
	result := make([]uint32, v.subset.Size())
	rawLen := v.rawLen()

	checkRow := func(src uint32) error {
		if int(src) >= rawLen {
			return consistencyErrorf("feature #%d: row %d is outside of the raw column of %d rows", v.featureID, src, rawLen)
		}
		return nil
	}

	quantizeFloats := func(borders []float64, nanMode NanMode) error {
		return v.parallelism.forEachBlock(len(result), func(begin, end int) error {
			for i := begin; i < end; i++ {
				src := v.subset.SrcIndex(i)
				if err := checkRow(src); err != nil {
					return err
				}
				bin, ok := QuantizeValue(v.floats.At(int(src)), borders, nanMode)
				if !ok {
					return &ParseError{Row: int(src), Column: int(v.featureID), Value: "nan", cause: errNanForbidden}
				}
				result[i] = bin
			}
			return nil
		})
	}

	switch desc.Kind {
	case FloatFeature:
		err = quantizeFloats(desc.Float.Borders, desc.Float.NanMode)
	case CtrFeature:
		err = quantizeFloats(desc.Ctr.Borders, NanForbidden)
	case CategoricalFeature:
		var hash *PerfectHash
		hash, err = v.hashes.Get(desc.Cat.CatFeatureIdx)
		if err != nil {
			return nil, err
		}
		err = v.parallelism.forEachBlock(len(result), func(begin, end int) error {
			for i := begin; i < end; i++ {
				src := v.subset.SrcIndex(i)
				if err := checkRow(src); err != nil {
					return err
				}
				value := v.cats.At(int(src))
				bin, ok := hash.Find(value)
				if !ok {
					return &NotFoundError{FeatureID: v.featureID, Value: value}
				}
				result[i] = bin
			}
			return nil
		})
	default:
		err = configurationErrorf(v.featureID, "unknown feature kind %v", desc.Kind)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
