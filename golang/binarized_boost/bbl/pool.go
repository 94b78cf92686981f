package bbl

import (
	"errors"
	"fmt"
	"log"
	"strings"
)

var errColumnLength = errors.New("column length differs from the first column")

//Pool is a loaded learn dataset, an optional test dataset and everything they share.
type Pool struct {
	Catalog *FeatureCatalog
	Index   FeatureIndex
	Hashes  *PerfectHashStore
	Learn   *Dataset
	Test    *Dataset
}

//Close removes the spill file of the perfect hash store.
func (p *Pool) Close() error {
	return p.Hashes.Close()
}

type rawColumns struct {
	floats map[uint32]*FloatColumn
	cats   map[uint32]*CatColumn
	rows   int
}

//LoadPool reads the npy files of spec. Learn files are mandatory; the test dataset exists when
//every feature lists a test file. Perfect hashes are built from the learn column first and
//then extended with the test column. With linkTestHistory the test dataset uses the learn
//dataset as its CTR history.
func LoadPool(spec CatalogSpec, linkTestHistory bool, storeOptions []StoreOption, options ...Option) (*Pool, error) {
	catalog, index, err := NewCatalogFromSpec(spec, func(feature FeatureSpec) ([]float64, error) {
		column, err := ReadFloatColumnNpy(feature.LearnFile)
		if err != nil {
			return nil, err
		}
		values := make([]float64, column.Len())
		for i := range values {
			values[i] = column.At(i)
		}
		return values, nil
	})
	if err != nil {
		return nil, err
	}

	withTest := len(spec.Features) > 0
	for _, feature := range spec.Features {
		withTest = withTest && feature.TestFile != ""
	}

	log.Print("load learn")
	learnColumns, err := readColumns(spec, index, func(f FeatureSpec) string { return f.LearnFile })
	if err != nil {
		return nil, err
	}
	var testColumns *rawColumns
	if withTest {
		log.Print("load test")
		if testColumns, err = readColumns(spec, index, func(f FeatureSpec) string { return f.TestFile }); err != nil {
			return nil, err
		}
	}

	hashes := NewPerfectHashStore(spec.CatFeatureCount(), storeOptions...)
	pool := &Pool{Catalog: catalog, Index: index, Hashes: hashes}
	for featureID, learn := range learnColumns.cats {
		columns := []*CatColumn{learn}
		if testColumns != nil {
			columns = append(columns, testColumns.cats[featureID])
		}
		if err := UpdatePerfectHash(catalog, hashes, featureID, columns...); err != nil {
			_ = hashes.Close()
			return nil, err
		}
	}

	if pool.Learn, err = buildDataset(catalog, hashes, learnColumns, options); err != nil {
		_ = hashes.Close()
		return nil, err
	}
	pool.Learn.SetDescription("learn")
	if testColumns != nil {
		if pool.Test, err = buildDataset(catalog, hashes, testColumns, options); err != nil {
			_ = hashes.Close()
			return nil, err
		}
		pool.Test.SetDescription("test")
		if linkTestHistory {
			if err := pool.Test.LinkHistory(pool.Learn); err != nil {
				_ = hashes.Close()
				return nil, err
			}
		}
	}
	return pool, nil
}

func readColumns(spec CatalogSpec, index FeatureIndex, fileOf func(FeatureSpec) string) (*rawColumns, error) {
	columns := &rawColumns{
		floats: make(map[uint32]*FloatColumn),
		cats:   make(map[uint32]*CatColumn),
		rows:   -1,
	}
	for _, feature := range spec.Features {
		id, err := index.ID(feature.Name)
		if err != nil {
			return nil, err
		}
		fileName := fileOf(feature)
		if fileName == "" {
			return nil, configurationErrorf(id, "feature %q has no file", feature.Name)
		}
		var n int
		switch strings.ToLower(feature.Kind) {
		case "categorical", "cat":
			column, err := ReadCatColumnNpy(fileName)
			if err != nil {
				return nil, err
			}
			columns.cats[id] = column
			n = column.Len()
		default:
			column, err := ReadFloatColumnNpy(fileName)
			if err != nil {
				return nil, err
			}
			columns.floats[id] = column
			n = column.Len()
		}
		if columns.rows < 0 {
			columns.rows = n
		} else if n != columns.rows {
			return nil, &ParseError{Row: n, Column: int(id), Value: fileName, cause: errColumnLength}
		}
	}
	if columns.rows < 0 {
		columns.rows = 0
	}
	return columns, nil
}

func buildDataset(catalog *FeatureCatalog, hashes *PerfectHashStore, columns *rawColumns, options []Option) (*Dataset, error) {
	dataset := NewDataset(catalog, hashes, NewFullSubset(columns.rows), options...)
	for featureID, column := range columns.floats {
		var err error
		if catalog.IsCtr(featureID) {
			err = dataset.AddCtrValues(featureID, column)
		} else {
			err = dataset.AddFloatColumn(featureID, column)
		}
		if err != nil {
			return nil, err
		}
	}
	for featureID, column := range columns.cats {
		if err := dataset.AddCatColumn(featureID, column); err != nil {
			return nil, err
		}
	}
	return dataset, nil
}

//String describes the pool for log messages.
func (p *Pool) String() string {
	testRows := 0
	if p.Test != nil {
		testRows = p.Test.SampleCount()
	}
	return fmt.Sprintf("pool of %d features, %d learn rows, %d test rows", p.Catalog.FeatureCount(), p.Learn.SampleCount(), testRows)
}
