package bbl

import (
	"fmt"

	"github.com/google/uuid"
)

//ScopeKind discriminates the two cache partitions of a dataset.
type ScopeKind int

const (
	PermutationIndependentScope ScopeKind = iota
	PermutationDependentScope
)

func (k ScopeKind) String() string {
	if k == PermutationDependentScope {
		return "permutation_dependent"
	}
	return "permutation_independent"
}

//Scope is a cache key discriminator: the owning dataset and the partition kind.
type Scope struct {
	Dataset uuid.UUID
	Kind    ScopeKind
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%v", s.Dataset, s.Kind)
}

//Dataset binds raw columns to catalog features over a samples mapping. Columns are shared
//between datasets built with WithSubset. A dataset may be linked to the history dataset its
//permutation-dependent CTR values were computed over.
type Dataset struct {
	id          uuid.UUID
	description string
	catalog     *FeatureCatalog
	hashes      *PerfectHashStore
	samples     *ArraySubsetIndexing
	views       map[uint32]*QuantizedColumnView
	history     *Dataset
	options     []Option
}

//NewDataset creates an empty dataset over samples.
func NewDataset(catalog *FeatureCatalog, hashes *PerfectHashStore, samples *ArraySubsetIndexing, options ...Option) *Dataset {
	return &Dataset{
		id:      uuid.New(),
		catalog: catalog,
		hashes:  hashes,
		samples: samples,
		views:   make(map[uint32]*QuantizedColumnView),
		options: options,
	}
}

//SetDescription sets a description used in log messages.
func (d *Dataset) SetDescription(description string) {
	d.description = description
}

func (d *Dataset) Description() string {
	if d.description == "" {
		return d.id.String()
	}
	return d.description
}

func (d *Dataset) ID() uuid.UUID {
	return d.id
}

func (d *Dataset) Catalog() *FeatureCatalog {
	return d.catalog
}

func (d *Dataset) PerfectHashes() *PerfectHashStore {
	return d.hashes
}

//SamplesMapping defines the row count and the row order of the dataset.
func (d *Dataset) SamplesMapping() *ArraySubsetIndexing {
	return d.samples
}

func (d *Dataset) SampleCount() int {
	return d.samples.Size()
}

func (d *Dataset) PermutationDependentScope() Scope {
	return Scope{Dataset: d.id, Kind: PermutationDependentScope}
}

func (d *Dataset) PermutationIndependentScope() Scope {
	return Scope{Dataset: d.id, Kind: PermutationIndependentScope}
}

//AddFloatColumn attaches the raw values of a numeric feature.
func (d *Dataset) AddFloatColumn(featureID uint32, column *FloatColumn) error {
	if !d.catalog.IsFloat(featureID) {
		return configurationErrorf(featureID, "is not a float feature")
	}
	view, err := NewFloatColumnView(d.catalog, featureID, column, NewFullSubset(column.Len()), d.options...)
	if err != nil {
		return err
	}
	d.views[featureID] = view
	return nil
}

//AddCtrValues attaches CTR values computed over this dataset's row order.
func (d *Dataset) AddCtrValues(featureID uint32, column *FloatColumn) error {
	if !d.catalog.IsCtr(featureID) {
		return configurationErrorf(featureID, "is not a ctr feature")
	}
	view, err := NewFloatColumnView(d.catalog, featureID, column, NewFullSubset(column.Len()), d.options...)
	if err != nil {
		return err
	}
	d.views[featureID] = view
	return nil
}

//AddCatColumn attaches the hashed raw values of a categorical feature.
func (d *Dataset) AddCatColumn(featureID uint32, column *CatColumn) error {
	view, err := NewCatColumnView(d.catalog, d.hashes, featureID, column, NewFullSubset(column.Len()), d.options...)
	if err != nil {
		return err
	}
	d.views[featureID] = view
	return nil
}

//LinkHistory sets the dataset whose ordering was used to compute online CTR values.
func (d *Dataset) LinkHistory(history *Dataset) error {
	if history == d {
		return fmt.Errorf("%w: dataset %s can not be its own ctr history", ErrConfiguration, d.Description())
	}
	if history != nil && history.catalog != d.catalog {
		return fmt.Errorf("%w: ctr history of %s uses another feature catalog", ErrConfiguration, d.Description())
	}
	d.history = history
	return nil
}

func (d *Dataset) HasCtrHistoryDataSet() bool {
	return d.history != nil
}

func (d *Dataset) LinkedHistoryForCtr() *Dataset {
	return d.history
}

//WithSubset returns a dataset over other rows of the same raw columns. The new dataset has its
//own identity, hence its own scopes, and no history link.
func (d *Dataset) WithSubset(samples *ArraySubsetIndexing) *Dataset {
	subset := NewDataset(d.catalog, d.hashes, samples, d.options...)
	for featureID, view := range d.views {
		subset.views[featureID] = view
	}
	return subset
}

//ColumnView returns the view of a feature over this dataset's samples.
func (d *Dataset) ColumnView(featureID uint32) (*QuantizedColumnView, error) {
	if _, err := d.catalog.Descriptor(featureID); err != nil {
		return nil, err
	}
	view, ok := d.views[featureID]
	if !ok {
		return nil, configurationErrorf(featureID, "dataset %s has no column for it", d.Description())
	}
	return view.CloneWithNewSubsetIndexing(d.samples), nil
}

//UpdatePerfectHash extends the perfect hash of a categorical feature with the values of columns,
//in order, and updates the catalog bin count. Pass the learn column first: its unique values
//become OnLearnOnly.
func UpdatePerfectHash(catalog *FeatureCatalog, hashes *PerfectHashStore, featureID uint32, columns ...*CatColumn) error {
	desc, err := catalog.Descriptor(featureID)
	if err != nil {
		return err
	}
	if desc.Kind != CategoricalFeature {
		return configurationErrorf(featureID, "is %v, not categorical", desc.Kind)
	}
	idx := desc.Cat.CatFeatureIdx
	for _, column := range columns {
		current, err := hashes.Get(idx)
		if err != nil {
			return err
		}
		if err := hashes.Update(idx, ExtendPerfectHash(current, column.Values())); err != nil {
			return err
		}
	}
	current, err := hashes.Get(idx)
	if err != nil {
		return err
	}
	return catalog.SetCatBinCount(featureID, uint32(current.Len()))
}
