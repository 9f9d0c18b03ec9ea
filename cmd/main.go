package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nitro/lazytemplate/internal"
	"github.com/nitro/lazytemplate/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "lazytemplate",
		Short:        "Build and serve invoice extraction templates",
		SilenceUsage: true,
	}
	config.BindFlags(root.PersistentFlags())
	root.AddCommand(newServeCommand(), newTemplateCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the template server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}

			waitHandlerAsyncError, waitHandler := wait(logger)
			client := internal.Client{
				Logger:            logger,
				AsyncErrorHandler: waitHandlerAsyncError,
				Config:            cfg,
			}
			if err := client.Init(); err != nil {
				logger.Fatal().Err(err).Msg("Fail to initialize the client")
			}
			client.Start()
			logger.Info().Str("addr", cfg.Addr).Msg("Server started")

			exitStatus := waitHandler()
			ctx, ctxCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := client.Stop(ctx); err != nil {
				ctxCancel()
				logger.Fatal().Err(err).Msg("Fail to stop the client")
			}
			ctxCancel()
			os.Exit(exitStatus)
			return nil
		},
	}
}

func load(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return config.Config{}, zerolog.Logger{}, err
	}
	level, err := cfg.Level()
	if err != nil {
		return config.Config{}, zerolog.Logger{}, err
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger().Level(level)
	return cfg, logger, nil
}

func wait(logger zerolog.Logger) (func(error), func() int) {
	signalChan := make(chan os.Signal, 2)
	var exitStatus int32
	asyncError := func(err error) {
		logger.Error().Err(err).Msg("Async error happened")
		atomic.AddInt32(&exitStatus, 1)
		signalChan <- os.Interrupt
	}
	handler := func() int {
		signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
		<-signalChan
		return int(atomic.LoadInt32(&exitStatus))
	}
	return asyncError, handler
}

func printError(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}
