package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Opening the store applies the schema.
		a, err := openApp(os.Stdout, os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.cfg.DB.Driver)
		return nil
	},
}
