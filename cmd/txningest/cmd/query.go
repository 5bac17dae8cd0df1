package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"txn-ingest/pkg/api"
	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
)

func newQueryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print stored transactions as JSON",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "currency <code>",
		Short: "Transactions with exactly this currency code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, func(ctx context.Context, a *app) ([]record.Transaction, error) {
				return a.queries.ByCurrency(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status <A|R|D>",
		Short: "Transactions with this unified status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := status.Parse(args[0])
			if err != nil {
				return fmt.Errorf("status must be one of %v", status.Codes())
			}
			return runQuery(cmd, opts, func(ctx context.Context, a *app) ([]record.Transaction, error) {
				return a.queries.ByStatus(ctx, code)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "range <start> <end>",
		Short: "Transactions dated within [start, end]",
		Long:  "Bounds are RFC 3339 timestamps or YYYY-MM-DD dates; a date-only end covers the whole day.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := api.ParseRange(args[0], args[1])
			if err != nil {
				return err
			}
			return runQuery(cmd, opts, func(ctx context.Context, a *app) ([]record.Transaction, error) {
				return a.queries.ByDateRange(ctx, start, end)
			})
		},
	})

	return cmd
}

func runQuery(cmd *cobra.Command, opts *options, run func(context.Context, *app) ([]record.Transaction, error)) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	txs, err := run(ctx, a)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(api.Views(txs))
}
