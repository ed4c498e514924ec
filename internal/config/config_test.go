package config

import "testing"

func validConfig() Config {
	return Config{
		Group:              "mem://",
		Metadata:           "/data/meta.tsv",
		ChromSizes:         "/data/hg38.chrom.sizes",
		AttributeConfig:    "encode_pipeline",
		DatasetPoolSize:    1,
		ChromosomePoolSize: 1,
		WritePoolSize:      1,
		WaveSize:           10,
		WriteBatchSize:     1000000,
		TileSize:           10000,
		Compression:        "gzip",
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no group", func(c *Config) { c.Group = "" }},
		{"no metadata", func(c *Config) { c.Metadata = "" }},
		{"no chrom sizes", func(c *Config) { c.ChromSizes = "" }},
		{"zero wave size", func(c *Config) { c.WaveSize = 0 }},
		{"zero batch size", func(c *Config) { c.WriteBatchSize = 0 }},
		{"zero tile size", func(c *Config) { c.TileSize = 0 }},
		{"bad compression", func(c *Config) { c.Compression = "lz4" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("Validate succeeded")
			}
		})
	}
}
