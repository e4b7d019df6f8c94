package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, db, err := openPostgres()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := pg.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load fixture data into Postgres",
		Long:  "Loads a YAML fixture file, or the embedded demo data when --file is empty. Existing ids are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := loadFixture(file)
			if err != nil {
				return fmt.Errorf("load fixture: %w", err)
			}
			pg, db, err := openPostgres()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := pg.Seed(cmd.Context(), fx); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d customers, %d products, %d orders\n",
				len(fx.Customers), len(fx.Products), len(fx.Orders))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Fixture YAML file")
	return cmd
}
