package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the full deck to a JSON file",
	Long: `Export writes every vocabulary and grammar entry to a dated JSON file,
suitable for backup or import elsewhere.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		path, err := a.store.WriteExport(ctx, exportDir)
		if err != nil {
			return err
		}
		fmt.Printf("Exported deck to %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", ".", "directory to write the export into")
	rootCmd.AddCommand(exportCmd)
}
