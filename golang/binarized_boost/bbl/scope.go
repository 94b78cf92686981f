package bbl

//HasPermutationDependentSplit reports whether any split of structure uses a CTR whose values
//depend on the order training rows were visited. An empty structure has none.
func HasPermutationDependentSplit(structure TreeStructure, catalog *FeatureCatalog) bool {
	for _, split := range structure.Splits {
		if catalog.IsPermutationDependentFeature(split.FeatureID) {
			return true
		}
	}
	return false
}

//ResolveScope picks the cache partition of dataset for structure.
func ResolveScope(structure TreeStructure, catalog *FeatureCatalog, dataset *Dataset) Scope {
	if HasPermutationDependentSplit(structure, catalog) {
		return dataset.PermutationDependentScope()
	}
	return dataset.PermutationIndependentScope()
}
