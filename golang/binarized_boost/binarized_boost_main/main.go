package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"runtime"
	"runtime/pprof"

	"github.com/goccy/go-json"
	"github.com/tarstars/binarized_boosting/golang/binarized_boost/bbl"
)

func decodeConfig(srcConfig string) bbl.Config {
	config, err := bbl.LoadConfig(srcConfig)
	bbl.HandleError(err)
	return config
}

func loadPool(config bbl.Config) *bbl.Pool {
	storeOptions, err := config.StoreOptions()
	bbl.HandleError(err)
	pool, err := bbl.LoadPool(config.Catalog, config.LinkTestHistory, storeOptions, config.Options()...)
	bbl.HandleError(err)
	log.Print(pool)
	if config.FreeRamAfterHashing {
		bbl.HandleError(pool.Hashes.FreeRamIfPossible())
	}
	return pool
}

func structures(config bbl.Config, pool *bbl.Pool) []bbl.TreeStructure {
	result := make([]bbl.TreeStructure, 0, len(config.Structures))
	for _, structureSpec := range config.Structures {
		structure, err := structureSpec.ToStructure(pool.Catalog, pool.Index)
		bbl.HandleError(err)
		result = append(result, structure)
	}
	return result
}

func structureName(config bbl.Config, ind int) string {
	if name := config.Structures[ind].Name; name != "" {
		return name
	}
	return fmt.Sprintf("%s_%05d", config.DumpPrefix, ind)
}

func bins(srcConfig string) {
	config := decodeConfig(srcConfig)
	pool := loadPool(config)
	defer func() { bbl.HandleError(pool.Close()) }()

	cache, err := bbl.NewBinCache()
	bbl.HandleError(err)

	for ind, structure := range structures(config, pool) {
		name := structureName(config, ind)
		log.Printf("Structure %s of depth %d\n", name, structure.Depth())
		for depth, score := range config.Structures[ind].Scores {
			if depth < structure.Depth() {
				bbl.PrintBestScore(pool.Catalog, structure.Splits[depth], score, depth)
			}
		}

		if pool.Test != nil {
			testBins, err := bbl.GetBinsForModel(cache, pool.Catalog, pool.Test, structure, config.Options()...)
			bbl.HandleError(err)
			bbl.HandleError(bbl.WriteBinsNpy(path.Join(config.OutputDir, name+"_test.npy"), testBins))
		}
		learnBins, err := bbl.GetBinsForModel(cache, pool.Catalog, pool.Learn, structure, config.Options()...)
		bbl.HandleError(err)
		bbl.HandleError(bbl.WriteBinsNpy(path.Join(config.OutputDir, name+"_learn.npy"), learnBins))
	}
	log.Printf("%d bin buffers cached\n", cache.Len())
}

func quantize(srcConfig string) {
	config := decodeConfig(srcConfig)
	pool := loadPool(config)
	defer func() { bbl.HandleError(pool.Close()) }()

	featureIDs := make([]uint32, 0, len(config.QuantizeFeatures))
	for _, name := range config.QuantizeFeatures {
		id, err := pool.Index.ID(name)
		bbl.HandleError(err)
		featureIDs = append(featureIDs, id)
	}

	datasets := map[string]*bbl.Dataset{"learn": pool.Learn}
	if pool.Test != nil {
		datasets["test"] = pool.Test
	}
	for description, dataset := range datasets {
		matrix, err := bbl.QuantizedMatrix(dataset, featureIDs, config.Options()...)
		bbl.HandleError(err)
		backing := matrix.Data().([]uint32)
		bbl.HandleError(bbl.WriteBinsNpy(path.Join(config.OutputDir, config.DumpPrefix+"_"+description+"_quantized.npy"), backing))
		log.Printf("%s: quantized %v\n", description, matrix.Shape())
	}
}

func graph(srcConfig string) {
	config := decodeConfig(srcConfig)
	pool := loadPool(config)
	defer func() { bbl.HandleError(pool.Close()) }()

	bbl.HandleError(bbl.RenderStructures(pool.Catalog, structures(config, pool), config.DumpPrefix, config.FigureType, config.PicturesDirectory))
}

func borders(srcConfig string) {
	config := decodeConfig(srcConfig)
	nanMode, err := bbl.ParseNanMode(config.NanMode)
	bbl.HandleError(err)

	column, err := bbl.ReadFloatColumnNpy(config.BordersInput)
	bbl.HandleError(err)
	values := make([]float64, column.Len())
	for i := range values {
		values[i] = column.At(i)
	}
	result, err := bbl.CalcBorders(values, config.MaxBorders, nanMode)
	bbl.HandleError(err)

	bytesResult, err := json.MarshalIndent(result, "", "  ")
	bbl.HandleError(err)
	_, err = os.Stdout.Write(append(bytesResult, '\n'))
	bbl.HandleError(err)
}

func main() {
	runMode := flag.String("mode", "bins", "you can select either 'bins', 'quantize', 'graph' or 'borders' modes")
	config := flag.String("config", "binarized_config.json", "a config file for the run of the program")
	memprofile := flag.String("memprofile", "", "write memory profile to `file`")

	flag.Parse()

	modes := map[string]func(string){
		"bins":     bins,
		"quantize": quantize,
		"graph":    graph,
		"borders":  borders,
	}
	run, ok := modes[*runMode]
	if !ok {
		log.Fatalf("unknown mode %q", *runMode)
	}
	run(*config)

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		bbl.HandleError(err)
		defer func() { bbl.HandleError(f.Close()) }()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}
