// Package cli implements the invoicer-admin commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/infrastructure/kms"
	"github.com/turtacn/invoicer/internal/infrastructure/monitoring"
	"github.com/turtacn/invoicer/pkg/logger"
)

// NewRootCommand builds the invoicer-admin command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "invoicer-admin",
		Short:         "Administer the invoicer service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to the configuration file")
	root.PersistentFlags().String("env-file", ".env", "dotenv file exported before the configuration is read")

	root.AddCommand(
		newKeyGenerateCommand(),
		newURLSignCommand(),
		newRateLimitPruneCommand(),
		newUserCreateCommand(),
		newAuditVerifyCommand(),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// environment is what most commands need: validated config and a quiet logger.
type environment struct {
	cfg *config.Config
	log logger.Logger
}

func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	log, err := monitoring.NewZapLogger(&config.LogConfig{Level: "error"})
	if err != nil {
		return nil, err
	}
	if err := config.LoadEnvFile(envFile, log); err != nil {
		return nil, err
	}
	cfg, err := config.NewLoader(configFile, log).Load()
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, log: log}, nil
}

func (e *environment) secret(ctx context.Context) (kms.SecretKey, error) {
	src, err := kms.NewKeySource(e.cfg.Security, e.log)
	if err != nil {
		return kms.SecretKey{}, err
	}
	return src.Load(ctx)
}
