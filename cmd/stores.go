package main

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/greengrowth/internal/store"
)

var (
	seedCSVPath string
	listJSON    bool
)

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "Manage the store catalog",
}

var storesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load stores from a locations CSV into an empty catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("stores"); err != nil {
			return err
		}

		cat, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck

		path := seedCSVPath
		if path == "" {
			path = cfg.Store.CSVPath
		}
		n, err := store.SeedFile(ctx, cat, path)
		if err != nil {
			return err
		}
		zap.L().Info("seed complete", zap.String("csv", path), zap.Int64("inserted", n))
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d stores\n", n)
		return nil
	},
}

var storesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("stores"); err != nil {
			return err
		}

		cat, err := initCatalog(ctx, cfg)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck

		return listStores(ctx, cat, cmd.OutOrStdout(), listJSON)
	},
}

func init() {
	storesSeedCmd.Flags().StringVar(&seedCSVPath, "csv", "", "locations CSV (default from config)")
	storesListCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON instead of a table")
	storesCmd.AddCommand(storesSeedCmd, storesListCmd)
	rootCmd.AddCommand(storesCmd)
}

func listStores(ctx context.Context, cat store.Catalog, out io.Writer, asJSON bool) error {
	stores, err := cat.List(ctx)
	if err != nil {
		return eris.Wrap(err, "list stores")
	}
	if asJSON {
		return writeJSONTo(out, stores)
	}

	table := tablewriter.NewWriter(out)
	defer func() { _ = table.Close() }()

	table.Header([]string{"ID", "Name", "Lat", "Lng", "Address"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	rows := make([][]string, 0, len(stores))
	for _, st := range stores {
		rows = append(rows, []string{st.ID, st.Name, fmt.Sprintf("%.4f", st.Lat), fmt.Sprintf("%.4f", st.Lng), st.Address})
	}
	if err := table.Bulk(rows); err != nil {
		return eris.Wrap(err, "build table")
	}
	return eris.Wrap(table.Render(), "render table")
}
