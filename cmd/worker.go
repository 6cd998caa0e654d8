package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/emrgen/ormstore"
	"github.com/emrgen/ormstore/internal/jobs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func workerCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "worker",
		Short: "run the background jobs until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			withEngine(func(ctx context.Context, engine *ormstore.Engine) error {
				executor := jobs.NewTaskExecutor(nil, engine.Jobs())
				if err := executor.Run(); err != nil {
					return err
				}
				logrus.Infof("Press Ctrl+C to stop the worker")

				// listen for interrupt signal to gracefully stop the jobs
				sigs := make(chan os.Signal, 1)
				signal.Notify(sigs, unix.SIGTERM, unix.SIGINT)
				<-sigs
				// clean Ctrl+C output
				fmt.Println()

				executor.Stop()
				return nil
			})
		},
	}

	return command
}
