package bbl

import (
	"fmt"
	"strings"
)

//FeatureSpec declares one feature of a catalog and the npy files holding its learn and test
//values. Borders of float and CTR features are computed from the learn values when they are
//not listed explicitly.
type FeatureSpec struct {
	Name            string    `json:"name" yaml:"name"`
	Kind            string    `json:"kind" yaml:"kind"`
	Borders         []float64 `json:"borders,omitempty" yaml:"borders,omitempty"`
	MaxBorders      int       `json:"max_borders,omitempty" yaml:"max_borders,omitempty"`
	NanMode         string    `json:"nan_mode,omitempty" yaml:"nan_mode,omitempty"`
	CatFeatures     []string  `json:"cat_features,omitempty" yaml:"cat_features,omitempty"`
	CtrType         string    `json:"ctr_type,omitempty" yaml:"ctr_type,omitempty"`
	PriorNum        float64   `json:"prior_num,omitempty" yaml:"prior_num,omitempty"`
	PriorDenom      float64   `json:"prior_denom,omitempty" yaml:"prior_denom,omitempty"`
	TargetBorderIdx uint32    `json:"target_border_idx,omitempty" yaml:"target_border_idx,omitempty"`
	LearnFile       string    `json:"learn_file" yaml:"learn_file"`
	TestFile        string    `json:"test_file,omitempty" yaml:"test_file,omitempty"`
}

//CatalogSpec is the declarative form of a FeatureCatalog.
type CatalogSpec struct {
	Features []FeatureSpec `json:"features" yaml:"features"`
}

//SplitSpec references a feature by name. An empty Type means TakeBin for categorical features
//and TakeGreater otherwise.
type SplitSpec struct {
	Feature string `json:"feature" yaml:"feature"`
	Bin     uint32 `json:"bin" yaml:"bin"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
}

//StructureSpec is the declarative form of a TreeStructure. Scores, when present, hold the
//score of the best split of every depth and are logged as best-split lines.
type StructureSpec struct {
	Name   string      `json:"name" yaml:"name"`
	Splits []SplitSpec `json:"splits" yaml:"splits"`
	Scores []float64   `json:"scores,omitempty" yaml:"scores,omitempty"`
}

//FeatureIndex maps feature names to catalog ids.
type FeatureIndex map[string]uint32

//ID returns the id of a named feature.
func (idx FeatureIndex) ID(name string) (uint32, error) {
	id, ok := idx[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown feature %q", ErrConfiguration, name)
	}
	return id, nil
}

//LearnValuesFunc loads the learn values of a float or CTR feature, used to compute borders.
type LearnValuesFunc func(spec FeatureSpec) ([]float64, error)

//NewCatalogFromSpec builds a catalog. Categorical features get consecutive categorical indices
//in declaration order and zero unique values until their perfect hash is built. CTR features
//must come after the categorical features of their tensor.
func NewCatalogFromSpec(spec CatalogSpec, learnValues LearnValuesFunc) (*FeatureCatalog, FeatureIndex, error) {
	catalog := NewFeatureCatalog()
	index := make(FeatureIndex, len(spec.Features))
	var catFeatureIdx uint32

	for _, feature := range spec.Features {
		if feature.Name == "" {
			return nil, nil, fmt.Errorf("%w: feature without a name", ErrConfiguration)
		}
		if _, ok := index[feature.Name]; ok {
			return nil, nil, fmt.Errorf("%w: feature %q is declared twice", ErrConfiguration, feature.Name)
		}

		var id uint32
		switch strings.ToLower(feature.Kind) {
		case "float", "numeric":
			nanMode, err := ParseNanMode(feature.NanMode)
			if err != nil {
				return nil, nil, err
			}
			borders, err := specBorders(feature, nanMode, learnValues)
			if err != nil {
				return nil, nil, err
			}
			if id, err = catalog.AddFloatFeature(feature.Name, borders, nanMode); err != nil {
				return nil, nil, err
			}
		case "categorical", "cat":
			id = catalog.AddCategoricalFeature(feature.Name, catFeatureIdx, 0)
			catFeatureIdx++
		case "ctr":
			ctr, err := specCtr(feature, index)
			if err != nil {
				return nil, nil, err
			}
			borders, err := specBorders(feature, NanForbidden, learnValues)
			if err != nil {
				return nil, nil, err
			}
			if id, err = catalog.RegisterCtr(ctr, borders); err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, fmt.Errorf("%w: feature %q has unknown kind %q", ErrConfiguration, feature.Name, feature.Kind)
		}
		index[feature.Name] = id
	}
	return catalog, index, nil
}

//CatFeatureCount is the number of categorical features declared by spec.
func (spec CatalogSpec) CatFeatureCount() uint32 {
	var n uint32
	for _, feature := range spec.Features {
		switch strings.ToLower(feature.Kind) {
		case "categorical", "cat":
			n++
		}
	}
	return n
}

func specBorders(feature FeatureSpec, nanMode NanMode, learnValues LearnValuesFunc) ([]float64, error) {
	if len(feature.Borders) > 0 || feature.MaxBorders == 0 {
		return feature.Borders, nil
	}
	if learnValues == nil {
		return nil, fmt.Errorf("%w: feature %q needs learn values to compute borders", ErrConfiguration, feature.Name)
	}
	values, err := learnValues(feature)
	if err != nil {
		return nil, err
	}
	return CalcBorders(values, feature.MaxBorders, nanMode)
}

func specCtr(feature FeatureSpec, index FeatureIndex) (CtrDescription, error) {
	ctrType, err := ParseCtrType(feature.CtrType)
	if err != nil {
		return CtrDescription{}, err
	}
	tensor := FeatureTensor{CatFeatures: make([]uint32, 0, len(feature.CatFeatures))}
	for _, name := range feature.CatFeatures {
		id, err := index.ID(name)
		if err != nil {
			return CtrDescription{}, err
		}
		tensor.CatFeatures = append(tensor.CatFeatures, id)
	}
	return CtrDescription{
		Tensor: tensor,
		Configuration: CtrConfig{
			Type:            ctrType,
			PriorNum:        feature.PriorNum,
			PriorDenom:      feature.PriorDenom,
			TargetBorderIdx: feature.TargetBorderIdx,
		},
	}, nil
}

//ToStructure resolves feature names and default split types.
func (spec StructureSpec) ToStructure(catalog *FeatureCatalog, index FeatureIndex) (TreeStructure, error) {
	structure := TreeStructure{Splits: make([]BinarySplit, 0, len(spec.Splits))}
	for _, splitSpec := range spec.Splits {
		id, err := index.ID(splitSpec.Feature)
		if err != nil {
			return TreeStructure{}, err
		}
		splitType := TakeGreater
		if catalog.IsCat(id) {
			splitType = TakeBin
		}
		if splitSpec.Type != "" {
			if splitType, err = ParseSplitType(splitSpec.Type); err != nil {
				return TreeStructure{}, err
			}
		}
		structure.Splits = append(structure.Splits, BinarySplit{FeatureID: id, BinIdx: splitSpec.Bin, SplitType: splitType})
	}
	if err := structure.Validate(catalog); err != nil {
		return TreeStructure{}, err
	}
	return structure, nil
}
