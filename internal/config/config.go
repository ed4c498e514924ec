// Package config defines the recognized configuration surface and loads it
// through viper (config file, environment, flags).
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the full configuration for one run.
type Config struct {
	// Inputs and target
	Group           string // array store root URL (file://, mem://, gs://, s3://)
	Metadata        string // tab-delimited metadata table path
	ChromSizes      string // two-column chromosome sizes table path
	AttributeConfig string // built-in catalog name or YAML catalog path

	// Pool sizes, one per nesting level
	DatasetPoolSize    int
	ChromosomePoolSize int
	WritePoolSize      int

	// Wave size bounds in-flight tasks at every level; it is threaded
	// explicitly through the pipeline rather than held as shared state.
	WaveSize int

	WriteBatchSize     uint64
	TileSize           uint64
	OverwritePermitted bool
	Compression        string // "gzip" | "zstd" | "none"

	LogFormat string
	LogLevel  string

	MetricsEnabled bool
	MetricsAddress string
}

// SetDefaults registers the built-in defaults with viper. The numeric
// defaults match the reference ENCODE ingestion setup.
func SetDefaults() {
	viper.SetDefault("attribute_config", "encode_pipeline")
	viper.SetDefault("dataset_pool_size", 1)
	viper.SetDefault("chromosome_pool_size", 1)
	viper.SetDefault("write_pool_size", 1)
	viper.SetDefault("wave_size", 10)
	viper.SetDefault("write_batch_size", 1000000)
	viper.SetDefault("tile_size", 10000)
	viper.SetDefault("overwrite", false)
	viper.SetDefault("compression", "gzip")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("metrics_enabled", false)
	viper.SetDefault("metrics_address", ":9090")
}

// Load reads the configuration from viper.
func Load() Config {
	return Config{
		Group:              viper.GetString("group"),
		Metadata:           viper.GetString("metadata"),
		ChromSizes:         viper.GetString("chrom_sizes"),
		AttributeConfig:    viper.GetString("attribute_config"),
		DatasetPoolSize:    viper.GetInt("dataset_pool_size"),
		ChromosomePoolSize: viper.GetInt("chromosome_pool_size"),
		WritePoolSize:      viper.GetInt("write_pool_size"),
		WaveSize:           viper.GetInt("wave_size"),
		WriteBatchSize:     viper.GetUint64("write_batch_size"),
		TileSize:           viper.GetUint64("tile_size"),
		OverwritePermitted: viper.GetBool("overwrite"),
		Compression:        viper.GetString("compression"),
		LogFormat:          viper.GetString("log_format"),
		LogLevel:           viper.GetString("log_level"),
		MetricsEnabled:     viper.GetBool("metrics_enabled"),
		MetricsAddress:     viper.GetString("metrics_address"),
	}
}

// Validate checks the options an ingestion run needs.
func (c Config) Validate() error {
	if c.Group == "" {
		return fmt.Errorf("config: group URL is required")
	}
	if c.Metadata == "" {
		return fmt.Errorf("config: metadata table is required")
	}
	if c.ChromSizes == "" {
		return fmt.Errorf("config: chromosome sizes table is required")
	}
	if c.WaveSize < 1 {
		return fmt.Errorf("config: wave_size must be at least 1")
	}
	if c.WriteBatchSize == 0 {
		return fmt.Errorf("config: write_batch_size must be positive")
	}
	if c.TileSize == 0 {
		return fmt.Errorf("config: tile_size must be positive")
	}
	switch c.Compression {
	case "gzip", "zstd", "none":
	default:
		return fmt.Errorf("config: unsupported compression %q", c.Compression)
	}
	return nil
}
