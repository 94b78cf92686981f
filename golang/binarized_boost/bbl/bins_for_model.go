package bbl

//GetBinsForModel returns the leaf index of every row of dataset for structure, computing it
//once per scope. When dataset is linked to a CTR history, the history rows and the dataset
//rows are binarized in one pass. The history buffer is published under the history's own
//scope so that a later lookup for the history dataset is a hit.
func GetBinsForModel(cache *BinCache, catalog *FeatureCatalog, dataset *Dataset, structure TreeStructure, options ...Option) ([]uint32, error) {
	if err := structure.Validate(catalog); err != nil {
		return nil, err
	}
	scope := ResolveScope(structure, catalog, dataset)
	return cache.Get(scope, structure, func() ([]uint32, error) {
		if !dataset.HasCtrHistoryDataSet() {
			bins, _, err := BuildTreeBins(dataset, nil, structure, options...)
			return bins, err
		}
		history := dataset.LinkedHistoryForCtr()
		learnBins, testBins, err := BuildTreeBins(history, dataset, structure, options...)
		if err != nil {
			return nil, err
		}
		if err := cache.Insert(ResolveScope(structure, catalog, history), structure, learnBins); err != nil {
			return nil, err
		}
		return testBins, nil
	})
}

//CacheBinsForModel publishes bins computed elsewhere for dataset and structure.
func CacheBinsForModel(cache *BinCache, catalog *FeatureCatalog, dataset *Dataset, structure TreeStructure, bins []uint32) error {
	if err := structure.Validate(catalog); err != nil {
		return err
	}
	if len(bins) != dataset.SampleCount() {
		return consistencyErrorf("%d bins given for dataset %s of %d rows", len(bins), dataset.Description(), dataset.SampleCount())
	}
	return cache.Insert(ResolveScope(structure, catalog, dataset), structure, bins)
}
