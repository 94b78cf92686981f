package bbl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/floats"
)

//FeatureKind is the closed set of feature kinds known to the catalog.
type FeatureKind int

const (
	FloatFeature FeatureKind = iota
	CategoricalFeature
	CtrFeature
)

func (k FeatureKind) String() string {
	switch k {
	case FloatFeature:
		return "Float"
	case CategoricalFeature:
		return "Categorical"
	case CtrFeature:
		return "Ctr"
	}
	return fmt.Sprintf("FeatureKind(%d)", int(k))
}

//NanMode defines how NaN raw values are binarized.
type NanMode int

const (
	NanForbidden NanMode = iota
	NanMin
	NanMax
)

var nanModeNames = map[NanMode]string{
	NanForbidden: "Forbidden",
	NanMin:       "Min",
	NanMax:       "Max",
}

func (m NanMode) String() string {
	if name, ok := nanModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("NanMode(%d)", int(m))
}

//ParseNanMode converts a textual NaN mode. An empty string means Forbidden.
func ParseNanMode(s string) (NanMode, error) {
	if s == "" {
		return NanForbidden, nil
	}
	for mode, name := range nanModeNames {
		if strings.EqualFold(name, s) {
			return mode, nil
		}
	}
	return NanForbidden, fmt.Errorf("%w: unknown nan mode %q", ErrConfiguration, s)
}

//CtrType is the kind of target statistic computed over a feature combination.
type CtrType int

const (
	CtrBorders CtrType = iota
	CtrBuckets
	CtrBinarizedTargetMeanValue
	CtrFloatTargetMeanValue
	CtrCounter
	CtrFeatureFreq
)

var ctrTypeNames = map[CtrType]string{
	CtrBorders:                  "Borders",
	CtrBuckets:                  "Buckets",
	CtrBinarizedTargetMeanValue: "BinarizedTargetMeanValue",
	CtrFloatTargetMeanValue:     "FloatTargetMeanValue",
	CtrCounter:                  "Counter",
	CtrFeatureFreq:              "FeatureFreq",
}

func (t CtrType) String() string {
	if name, ok := ctrTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("CtrType(%d)", int(t))
}

//ParseCtrType converts a textual CTR type.
func ParseCtrType(s string) (CtrType, error) {
	for ctrType, name := range ctrTypeNames {
		if strings.EqualFold(name, s) {
			return ctrType, nil
		}
	}
	return CtrBorders, fmt.Errorf("%w: unknown ctr type %q", ErrConfiguration, s)
}

//PermutationDependent reports whether statistics of this type are computed from targets
//in visiting order. Counter and FeatureFreq only count values and do not depend on it.
func (t CtrType) PermutationDependent() bool {
	switch t {
	case CtrBorders, CtrBuckets, CtrBinarizedTargetMeanValue, CtrFloatTargetMeanValue:
		return true
	}
	return false
}

//FeatureTensor is a combination of categorical features a CTR is computed over.
type FeatureTensor struct {
	CatFeatures []uint32
}

func (t FeatureTensor) String() string {
	parts := make([]string, len(t.CatFeatures))
	for i, f := range t.CatFeatures {
		parts[i] = fmt.Sprint(f)
	}
	return "{cat: " + strings.Join(parts, ",") + "}"
}

//CtrConfig describes how a CTR is computed.
type CtrConfig struct {
	Type            CtrType
	PriorNum        float64
	PriorDenom      float64
	TargetBorderIdx uint32
}

//CtrDescription identifies one CTR: a feature tensor and its configuration.
type CtrDescription struct {
	Tensor        FeatureTensor
	Configuration CtrConfig
}

func (c CtrDescription) key() string {
	return fmt.Sprintf("%v/%d/%g/%g/%d", c.Tensor.CatFeatures, c.Configuration.Type,
		c.Configuration.PriorNum, c.Configuration.PriorDenom, c.Configuration.TargetBorderIdx)
}

type FloatInfo struct {
	Borders []float64
	NanMode NanMode
}

type CatInfo struct {
	CatFeatureIdx uint32 // index in the PerfectHashStore
	UniqueValues  uint32
}

type CtrInfo struct {
	Ctr     CtrDescription
	Borders []float64
}

//FeatureDescriptor is a tagged variant: exactly one of Float, Cat and Ctr is set, according to Kind.
type FeatureDescriptor struct {
	ID    uint32
	Name  string
	Kind  FeatureKind
	Float *FloatInfo
	Cat   *CatInfo
	Ctr   *CtrInfo
}

//FeatureCatalog answers feature kind, borders and bin count queries for binarized features.
//It is built once during preprocessing; afterwards only RegisterCtr and SetCatBinCount mutate it.
type FeatureCatalog struct {
	mu                   sync.RWMutex
	features             []FeatureDescriptor
	ctrIndex             map[string]uint32
	permutationDependent *roaring.Bitmap
}

func NewFeatureCatalog() *FeatureCatalog {
	return &FeatureCatalog{
		ctrIndex:             make(map[string]uint32),
		permutationDependent: roaring.New(),
	}
}

func validateBorders(borders []float64) error {
	if floats.HasNaN(borders) {
		return fmt.Errorf("%w: borders contain NaN", ErrConfiguration)
	}
	for i := 1; i < len(borders); i++ {
		if borders[i] <= borders[i-1] {
			return fmt.Errorf("%w: borders are not strictly increasing at %d", ErrConfiguration, i)
		}
	}
	return nil
}

//AddFloatFeature registers a numeric feature with its ordered borders.
func (c *FeatureCatalog) AddFloatFeature(name string, borders []float64, nanMode NanMode) (uint32, error) {
	if err := validateBorders(borders); err != nil {
		return 0, err
	}
	if _, ok := nanModeNames[nanMode]; !ok {
		return 0, fmt.Errorf("%w: unknown nan mode %d", ErrConfiguration, int(nanMode))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uint32(len(c.features))
	c.features = append(c.features, FeatureDescriptor{
		ID:    id,
		Name:  name,
		Kind:  FloatFeature,
		Float: &FloatInfo{Borders: append([]float64(nil), borders...), NanMode: nanMode},
	})
	return id, nil
}

//AddCategoricalFeature registers a categorical feature backed by the perfect hash
//of catFeatureIdx with uniqueValues distinct values.
func (c *FeatureCatalog) AddCategoricalFeature(name string, catFeatureIdx, uniqueValues uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uint32(len(c.features))
	c.features = append(c.features, FeatureDescriptor{
		ID:   id,
		Name: name,
		Kind: CategoricalFeature,
		Cat:  &CatInfo{CatFeatureIdx: catFeatureIdx, UniqueValues: uniqueValues},
	})
	return id
}

//SetCatBinCount updates the number of unique values after the perfect hash has grown.
func (c *FeatureCatalog) SetCatBinCount(featureID, uniqueValues uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	desc, err := c.descriptorLocked(featureID)
	if err != nil {
		return err
	}
	if desc.Kind != CategoricalFeature {
		return configurationErrorf(featureID, "is %v, not categorical", desc.Kind)
	}
	if uniqueValues < desc.Cat.UniqueValues {
		return consistencyErrorf("feature #%d: bin count can not shrink from %d to %d",
			featureID, desc.Cat.UniqueValues, uniqueValues)
	}
	c.features[featureID].Cat = &CatInfo{CatFeatureIdx: desc.Cat.CatFeatureIdx, UniqueValues: uniqueValues}
	return nil
}

//RegisterCtr adds a CTR feature binarized with the given borders. Registering the same CTR twice
//returns the id of the first registration.
func (c *FeatureCatalog) RegisterCtr(ctr CtrDescription, borders []float64) (uint32, error) {
	if err := validateBorders(borders); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := ctr.key()
	if id, ok := c.ctrIndex[key]; ok {
		return id, nil
	}
	if len(ctr.Tensor.CatFeatures) == 0 {
		return 0, fmt.Errorf("%w: ctr over an empty feature tensor", ErrConfiguration)
	}
	for _, catID := range ctr.Tensor.CatFeatures {
		desc, err := c.descriptorLocked(catID)
		if err != nil {
			return 0, err
		}
		if desc.Kind != CategoricalFeature {
			return 0, configurationErrorf(catID, "ctr tensor references a %v feature", desc.Kind)
		}
	}

	id := uint32(len(c.features))
	ctr.Tensor.CatFeatures = append([]uint32(nil), ctr.Tensor.CatFeatures...)
	c.features = append(c.features, FeatureDescriptor{
		ID:   id,
		Name: fmt.Sprintf("ctr_%v_%v", ctr.Configuration.Type, ctr.Tensor),
		Kind: CtrFeature,
		Ctr:  &CtrInfo{Ctr: ctr, Borders: append([]float64(nil), borders...)},
	})
	c.ctrIndex[key] = id
	if c.IsPermutationDependent(ctr) {
		c.permutationDependent.Add(id)
	}
	return id, nil
}

func (c *FeatureCatalog) FeatureCount() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint32(len(c.features))
}

func (c *FeatureCatalog) descriptorLocked(featureID uint32) (FeatureDescriptor, error) {
	if int(featureID) >= len(c.features) {
		return FeatureDescriptor{}, configurationErrorf(featureID, "unknown feature index, catalog has %d features", len(c.features))
	}
	return c.features[featureID], nil
}

//Descriptor returns the tagged description of a feature.
func (c *FeatureCatalog) Descriptor(featureID uint32) (FeatureDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.descriptorLocked(featureID)
}

func (c *FeatureCatalog) Kind(featureID uint32) (FeatureKind, error) {
	desc, err := c.Descriptor(featureID)
	return desc.Kind, err
}

func (c *FeatureCatalog) hasKind(featureID uint32, kind FeatureKind) bool {
	k, err := c.Kind(featureID)
	return err == nil && k == kind
}

func (c *FeatureCatalog) IsFloat(featureID uint32) bool { return c.hasKind(featureID, FloatFeature) }
func (c *FeatureCatalog) IsCat(featureID uint32) bool { return c.hasKind(featureID, CategoricalFeature) }
func (c *FeatureCatalog) IsCtr(featureID uint32) bool { return c.hasKind(featureID, CtrFeature) }

//Ctr returns the CTR description of a CTR feature.
func (c *FeatureCatalog) Ctr(featureID uint32) (CtrDescription, error) {
	desc, err := c.Descriptor(featureID)
	if err != nil {
		return CtrDescription{}, err
	}
	if desc.Kind != CtrFeature {
		return CtrDescription{}, configurationErrorf(featureID, "is %v, not a ctr", desc.Kind)
	}
	return desc.Ctr.Ctr, nil
}

//IsPermutationDependent reports whether the value of ctr depends on the order rows were visited.
func (c *FeatureCatalog) IsPermutationDependent(ctr CtrDescription) bool {
	return ctr.Configuration.Type.PermutationDependent()
}

//IsPermutationDependentFeature is the id-based shortcut for IsCtr + IsPermutationDependent.
func (c *FeatureCatalog) IsPermutationDependentFeature(featureID uint32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.permutationDependent.Contains(featureID)
}

//Borders returns the ordered borders of a float or CTR feature.
func (c *FeatureCatalog) Borders(featureID uint32) ([]float64, error) {
	desc, err := c.Descriptor(featureID)
	if err != nil {
		return nil, err
	}
	switch desc.Kind {
	case FloatFeature:
		return desc.Float.Borders, nil
	case CtrFeature:
		return desc.Ctr.Borders, nil
	case CategoricalFeature:
		return nil, configurationErrorf(featureID, "categorical features have no borders")
	}
	return nil, configurationErrorf(featureID, "unknown feature kind %v", desc.Kind)
}

//NanMode returns the NaN policy of a feature. CTR values are never NaN.
func (c *FeatureCatalog) NanMode(featureID uint32) (NanMode, error) {
	desc, err := c.Descriptor(featureID)
	if err != nil {
		return NanForbidden, err
	}
	switch desc.Kind {
	case FloatFeature:
		return desc.Float.NanMode, nil
	case CtrFeature, CategoricalFeature:
		return NanForbidden, nil
	}
	return NanForbidden, configurationErrorf(featureID, "unknown feature kind %v", desc.Kind)
}

//BorderCount is the number of thresholds a TakeGreater split can use: the borders plus
//the NaN threshold when NaNs map to a reserved bin.
func (c *FeatureCatalog) BorderCount(featureID uint32) (uint32, error) {
	desc, err := c.Descriptor(featureID)
	if err != nil {
		return 0, err
	}
	switch desc.Kind {
	case FloatFeature:
		n := uint32(len(desc.Float.Borders))
		if desc.Float.NanMode != NanForbidden {
			n++
		}
		return n, nil
	case CtrFeature:
		return uint32(len(desc.Ctr.Borders)), nil
	case CategoricalFeature:
		return 0, configurationErrorf(featureID, "categorical features have no borders")
	}
	return 0, configurationErrorf(featureID, "unknown feature kind %v", desc.Kind)
}

//BinCount is the number of distinct quantized values of a feature.
func (c *FeatureCatalog) BinCount(featureID uint32) (uint32, error) {
	desc, err := c.Descriptor(featureID)
	if err != nil {
		return 0, err
	}
	switch desc.Kind {
	case CategoricalFeature:
		return desc.Cat.UniqueValues, nil
	case FloatFeature, CtrFeature:
		borderCount, err := c.BorderCount(featureID)
		return borderCount + 1, err
	}
	return 0, configurationErrorf(featureID, "unknown feature kind %v", desc.Kind)
}
