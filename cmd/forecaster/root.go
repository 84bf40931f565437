package main

import (
	"strings"
	"sync"

	"oil-forecaster/config"
	"oil-forecaster/core/observability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCommand() *cobra.Command {
	var envFile string
	ctx := newCommandContext(&envFile)

	root := &cobra.Command{
		Use:           "forecaster",
		Short:         "Train and serve the oil production forecasting model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to a .env file (ignored when missing)")

	root.AddCommand(newServeCommand(ctx))
	root.AddCommand(newTrainCommand(ctx))
	root.AddCommand(newPredictCommand(ctx))
	root.AddCommand(newInfoCommand(ctx))
	return root
}

type commandContext struct {
	envFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *zap.Logger
	loggerErr  error
}

func newCommandContext(envFlag *string) *commandContext {
	return &commandContext{envFlag: envFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.envFlag != nil {
			path = strings.TrimSpace(*c.envFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*zap.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	})
	return c.logger, c.loggerErr
}
