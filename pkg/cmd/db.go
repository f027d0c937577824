package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/storage/db"
)

var (
	dbCmd = &cobra.Command{
		Use:   "db",
		Short: "metadata database commands",
	}

	dbTypesCmd = &cobra.Command{
		Use:     "types",
		Short:   "list compiled-in database drivers",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, d := range db.GetRegisteredDBTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
		},
	}

	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "create or update the document and deletion tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.GetConfig()

			client, err := db.New(cmd.Context(), cfg.DB, false)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Migrate(model.Models()...); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d tables (%s)\n", len(model.Models()), cfg.DB.Driver())

			return nil
		},
	}
)

func registerDBCommands() {
	rootCmd.AddCommand(dbCmd)

	dbCmd.AddCommand(dbTypesCmd, dbMigrateCmd)
}
