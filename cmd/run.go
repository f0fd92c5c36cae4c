package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crucible-eval/crucible/internal/config"
	"github.com/crucible-eval/crucible/internal/evaluator"
	"github.com/crucible-eval/crucible/internal/publish"
	"github.com/crucible-eval/crucible/internal/server"
)

var logger = logrus.WithFields(logrus.Fields{
	"app":       "crucible",
	"component": "cmd",
})

var (
	flagContinuous bool
	flagNoPull     bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [job-id...]",
		Short: "Evaluate pending submissions, one job at a time",
		RunE:  runEvaluator,
	}
	cmd.Flags().BoolVar(&flagContinuous, "continuous", false, "poll forever instead of evaluating a fixed list")
	cmd.Flags().BoolVar(&flagNoPull, "no-pull", false, "skip pulling images before running the pipeline")
	return cmd
}

func runEvaluator(cmd *cobra.Command, args []string) error {
	logger.WithField("version", Version).Info("crucible evaluator starting")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagNoPull {
		cfg.Pull = false
	}

	var publisher evaluator.Publisher
	if cfg.RegistryUsername != "" {
		publisher = publish.New(cfg.RegistryUsername)
	} else {
		logger.Info("no registry identity configured, skipping artifact publishing")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := evaluator.New(evaluator.Options{
		Config:    cfg,
		API:       server.New(cfg.ServerURL),
		Publisher: publisher,
		Version:   Version,
	})

	if flagContinuous {
		err := e.RunContinuous(ctx)
		if errors.Is(err, context.Canceled) {
			logger.Info("interrupted, shutting down")
			return nil
		}
		return err
	}
	return e.RunList(ctx, args)
}
