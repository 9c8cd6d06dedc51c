package main

import (
	"sync"

	"asset-pipeline/internal/app"
	"asset-pipeline/internal/config"
	"asset-pipeline/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const envFilePath = ".env"

type commandContext struct {
	envFile *string

	once   sync.Once
	config *config.Config
	log    *logger.Logger
	err    error
}

// ensure loads the env file, configuration and logger once per invocation.
func (c *commandContext) ensure() (*config.Config, *logger.Logger, error) {
	c.once.Do(func() {
		envErr := godotenv.Load(*c.envFile)

		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		log, err := logger.New(cfg.App.LogMode)
		if err != nil {
			c.err = err
			return
		}
		if envErr != nil {
			log.Debug("env file not loaded, using process environment", "path", *c.envFile)
		}
		c.config, c.log = cfg, log
	})
	return c.config, c.log, c.err
}

func (c *commandContext) service() (*app.Service, *logger.Logger, error) {
	cfg, log, err := c.ensure()
	if err != nil {
		return nil, nil, err
	}
	svc, err := app.Initialize(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return svc, log, nil
}

func newRootCommand() *cobra.Command {
	var envFile string
	ctx := &commandContext{envFile: &envFile}

	rootCmd := &cobra.Command{
		Use:           "assetd",
		Short:         "Asset pipeline API server and operations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", envFilePath, "Path to a .env file")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newSweepCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))

	return rootCmd
}
