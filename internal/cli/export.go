package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/epigenlab/trackstore/internal/export"
	"github.com/epigenlab/trackstore/internal/logging"
	"github.com/epigenlab/trackstore/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <array>",
	Short: "Export a stored array as a long-format parquet table",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	f := exportCmd.Flags()
	f.String("group", "", "array store root URL")
	f.String("out", "", "output parquet file (required)")
	f.Uint64("start", 0, "first coordinate to export")
	f.Uint64("end", 0, "coordinate to stop before (0 = whole domain)")
	f.String("parquet-compression", "snappy", "parquet compression (snappy, zstd, gzip, none)")
	exportCmd.MarkFlagRequired("group")
	exportCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	group, _ := cmd.Flags().GetString("group")
	out, _ := cmd.Flags().GetString("out")
	start, _ := cmd.Flags().GetUint64("start")
	end, _ := cmd.Flags().GetUint64("end")
	compression, _ := cmd.Flags().GetString("parquet-compression")

	ctx := cmd.Context()
	st, err := store.Open(ctx, group)
	if err != nil {
		return err
	}
	defer st.Close()

	r, err := st.OpenForRead(ctx, args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	fh, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}

	rows, err := export.Parquet(ctx, r, fh, start, end, compression)
	if err != nil {
		fh.Close()
		os.Remove(out)
		return err
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("close %s: %w", out, err)
	}

	logging.Component("cli").Info("exported array", "array", args[0], "rows", rows, "file", out)
	return nil
}
