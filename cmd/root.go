package cmd

import (
	"context"
	"os"

	"github.com/emrgen/ormstore"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var actorID int64

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "orm",
	Short: "object store management tool",
	Example: `orm db migrate
orm object create --type article --set title=Hello --set tags=3,1,2
orm object get --type article --id 1
orm object update --type article --id 1 --set title=World
orm object version --type article --id 1
orm object publish --type article --id 1 --version 1
orm object versions --type article --id 1
orm worker`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
		if err != nil {
			level = logrus.InfoLevel
		}
		logrus.SetLevel(level)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(objectCmd)
	rootCmd.AddCommand(workerCmd())
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.PersistentFlags().Int64Var(&actorID, "actor", 0, "id of the user recorded in history and versions")

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}

// withEngine opens the engine from the environment, runs f and closes it.
func withEngine(f func(ctx context.Context, engine *ormstore.Engine) error) {
	cnf, err := ormstore.LoadConfig()
	if err != nil {
		logrus.Error(err)
		return
	}

	engine, err := ormstore.Open(cnf)
	if err != nil {
		logrus.Error(err)
		return
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logrus.Errorf("error closing engine: %v", err)
		}
	}()

	ctx := context.Background()
	if actorID != 0 {
		ctx = ormstore.WithActor(ctx, actorID)
	}

	if err := f(ctx, engine); err != nil {
		logrus.Error(err)
	}
}
