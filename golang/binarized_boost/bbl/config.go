package bbl

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

//HandleError panics on a non-nil error. Only the command line tools use it.
func HandleError(err error) {
	if err != nil {
		log.Panic(err)
	}
}

//DecodeConfig decodes a YAML document (.yaml, .yml) or a JSON document (anything else) into out.
//Fields absent from the document keep the values out already holds.
func DecodeConfig(srcConfig string, out any) error {
	data, err := os.ReadFile(srcConfig)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(srcConfig)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	default:
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		return fmt.Errorf("%w: decode config %s: %v", ErrConfiguration, srcConfig, err)
	}
	return nil
}

//Config is the run configuration of the command line tool.
type Config struct {
	Catalog          CatalogSpec     `json:"catalog" yaml:"catalog"`
	Structures       []StructureSpec `json:"structures" yaml:"structures"`
	LinkTestHistory  bool            `json:"link_test_history" yaml:"link_test_history"`
	QuantizeFeatures []string        `json:"quantize_features" yaml:"quantize_features"`

	OutputDir         string `json:"output_dir" yaml:"output_dir"`
	DumpPrefix        string `json:"dump_prefix" yaml:"dump_prefix"`
	FigureType        string `json:"figure_type" yaml:"figure_type"`
	PicturesDirectory string `json:"pictures_directory" yaml:"pictures_directory"`

	BordersInput string `json:"borders_input" yaml:"borders_input"`
	MaxBorders   int    `json:"max_borders" yaml:"max_borders"`
	NanMode      string `json:"nan_mode" yaml:"nan_mode"`

	ThreadsNum          int    `json:"threads_num" yaml:"threads_num"`
	BlockSize           int    `json:"block_size" yaml:"block_size"`
	TempDir             string `json:"temp_dir" yaml:"temp_dir"`
	Compression         string `json:"compression" yaml:"compression"`
	AllowWriteFiles     bool   `json:"allow_write_files" yaml:"allow_write_files"`
	FreeRamAfterHashing bool   `json:"free_ram_after_hashing" yaml:"free_ram_after_hashing"`
}

//DefaultConfig returns the values used for fields a config file leaves out.
func DefaultConfig() Config {
	return Config{
		OutputDir:         ".",
		DumpPrefix:        "tree",
		FigureType:        "svg",
		PicturesDirectory: ".",
		MaxBorders:        32,
		Compression:       CompressionZSTD.String(),
		AllowWriteFiles:   true,
	}
}

//LoadConfig reads srcConfig over DefaultConfig.
func LoadConfig(srcConfig string) (Config, error) {
	config := DefaultConfig()
	if err := DecodeConfig(srcConfig, &config); err != nil {
		return config, err
	}
	applyConfigDefaults(&config)
	return config, nil
}

func applyConfigDefaults(config *Config) {
	if config.OutputDir == "" {
		config.OutputDir = "."
	}
	if config.DumpPrefix == "" {
		config.DumpPrefix = "tree"
	}
	if config.FigureType == "" {
		config.FigureType = "svg"
	}
	if config.PicturesDirectory == "" {
		config.PicturesDirectory = "."
	}
	if config.MaxBorders <= 0 {
		config.MaxBorders = 32
	}
}

//Options returns the parallelism options of the config.
func (c Config) Options() []Option {
	return []Option{WithWorkers(c.ThreadsNum), WithBlockSize(c.BlockSize)}
}

//StoreOptions returns the perfect hash store options of the config.
func (c Config) StoreOptions() ([]StoreOption, error) {
	compression, err := ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	options := []StoreOption{WithAllowWriteFiles(c.AllowWriteFiles), WithCompression(compression)}
	if c.TempDir != "" {
		options = append(options, WithTempDir(c.TempDir))
	}
	return options, nil
}
