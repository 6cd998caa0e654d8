package cmd

import (
	"context"

	"github.com/emrgen/ormstore"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "db commands",
}

func init() {
	dbCmd.AddCommand(Migrate())
}

func Migrate() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Create the engine tables and the tables of every entity",
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, engine *ormstore.Engine) error {
				return engine.Migrate(ctx)
			})
		},
	}

	return command
}
