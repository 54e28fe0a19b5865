package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/warp/inventory-ledger/api"
	"github.com/warp/inventory-ledger/config"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.store.Close()

			version, dirty, err := a.store.SchemaVersion()
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func newViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print products, customers, history and balances as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.store.Close()

			view, err := a.engine().GetView(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api.NewViewDTO(view))
		},
	}
}

func newExportCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "export <filename>",
		Short: "Save CSV text to the export directory",
		Long: `Reads CSV text from --file, or from stdin when --file is omitted,
and writes it to the export directory. ".csv" is appended when missing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.store.Close()

			var content []byte
			if source != "" {
				content, err = os.ReadFile(source)
			} else {
				content, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read export content: %w", err)
			}

			path, err := a.exporter().SaveCSV(args[0], string(content))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "file", "f", "", "Read CSV content from this file")
	return cmd
}

// changedFlags returns the subset of config flags the user set
// explicitly, so unset flag defaults never shadow env or file values.
func changedFlags(cmd *cobra.Command) *pflag.FlagSet {
	set := pflag.NewFlagSet("config", pflag.ContinueOnError)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if _, ok := config.FlagKeys[f.Name]; ok && f.Changed {
			set.AddFlag(f)
		}
	})
	return set
}
