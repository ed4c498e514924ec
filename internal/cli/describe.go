package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epigenlab/trackstore/internal/store"
)

var describeCmd = &cobra.Command{
	Use:   "describe <array>",
	Short: "Print the schema of a stored array",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

func init() {
	describeCmd.Flags().String("group", "", "array store root URL")
	describeCmd.MarkFlagRequired("group")

	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	group, _ := cmd.Flags().GetString("group")
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

	schema := r.Schema()
	fmt.Printf("array:        %s\n", args[0])
	fmt.Printf("domain:       [0, %d)\n", schema.Domain)
	fmt.Printf("tile:         %d (%d tiles)\n", schema.Tile, schema.NumTiles())
	fmt.Printf("compression:  %s\n", schema.Compression)
	fmt.Printf("created:      %s\n", schema.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("attributes:\n")
	for _, a := range schema.Attributes {
		fmt.Printf("  %-24s %s\n", a.Name, a.Dtype)
	}
	return nil
}
