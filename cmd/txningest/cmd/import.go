package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Ingest CSV or XML files into the configured store",
		Long: `Each file is committed as its own batch. The command stops at the
first file that fails; files before it stay committed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				res, err := a.ingestor.IngestFile(ctx, path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d %s records (upload %s)\n",
					path, res.Records, res.Format, res.UploadID)
			}
			return nil
		},
	}
}
