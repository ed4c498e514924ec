package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/epigenlab/trackstore/internal/attrib"
	"github.com/epigenlab/trackstore/internal/config"
	"github.com/epigenlab/trackstore/internal/ingest"
	"github.com/epigenlab/trackstore/internal/logging"
	"github.com/epigenlab/trackstore/internal/metrics"
	"github.com/epigenlab/trackstore/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest signal tracks from a metadata table into the array store",
	Long: `Ingest reads a tab-delimited metadata table (one dataset per row, one
source file per attribute column), parses every source per chromosome, and
writes one dense array per dataset and chromosome into the target group.`,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.String("group", "", "array store root URL (file://, mem://, gs://, s3://)")
	f.String("metadata", "", "tab-delimited metadata table")
	f.String("chrom-sizes", "", "two-column chromosome sizes table")
	f.String("attribute-config", "encode_pipeline", "built-in catalog name or YAML catalog file")
	f.Int("dataset-pool", 1, "dataset-level worker count")
	f.Int("chromosome-pool", 1, "chromosome-level worker count")
	f.Int("write-pool", 1, "write-level worker count")
	f.Int("wave-size", 10, "max in-flight tasks per level")
	f.Uint64("batch-size", 1000000, "coordinates per write batch")
	f.Uint64("tile-size", 10000, "coordinates per storage tile")
	f.Bool("overwrite", false, "permit updating arrays that already exist")
	f.String("compression", "gzip", "tile compression (gzip, zstd, none)")
	f.Bool("metrics", false, "serve Prometheus metrics")
	f.String("metrics-addr", ":9090", "metrics listen address")

	viper.BindPFlag("group", f.Lookup("group"))
	viper.BindPFlag("metadata", f.Lookup("metadata"))
	viper.BindPFlag("chrom_sizes", f.Lookup("chrom-sizes"))
	viper.BindPFlag("attribute_config", f.Lookup("attribute-config"))
	viper.BindPFlag("dataset_pool_size", f.Lookup("dataset-pool"))
	viper.BindPFlag("chromosome_pool_size", f.Lookup("chromosome-pool"))
	viper.BindPFlag("write_pool_size", f.Lookup("write-pool"))
	viper.BindPFlag("wave_size", f.Lookup("wave-size"))
	viper.BindPFlag("write_batch_size", f.Lookup("batch-size"))
	viper.BindPFlag("tile_size", f.Lookup("tile-size"))
	viper.BindPFlag("overwrite", f.Lookup("overwrite"))
	viper.BindPFlag("compression", f.Lookup("compression"))
	viper.BindPFlag("metrics_enabled", f.Lookup("metrics"))
	viper.BindPFlag("metrics_address", f.Lookup("metrics-addr"))

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	metrics.Init("trackstore")
	metrics.Serve(metrics.Config{Enabled: cfg.MetricsEnabled, Address: cfg.MetricsAddress})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Group)
	if err != nil {
		return err
	}
	defer st.Close()

	catalog, err := attrib.Resolve(cfg.AttributeConfig)
	if err != nil {
		return err
	}

	ing := ingest.New(cfg, st, catalog)
	// Backstop for children spawned before the first cascade had a chance
	// to run.
	defer ing.ProcessGroup().TerminateAll()

	log := logging.Component("cli")
	if err := ing.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("ingestion interrupted")
			return fmt.Errorf("interrupted: %w", err)
		}
		return err
	}
	return nil
}
