package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/invoicer/internal/infrastructure/ratelimit"
	"github.com/turtacn/invoicer/pkg/constants"
)

func newRateLimitPruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ratelimit:prune",
		Short: "Remove expired rate limit records",
		Long: `Deletes limiter records whose window ended. Only the file driver keeps
records around after expiry; redis and memory expire entries on their own.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			if env.cfg.RateLimit.Driver != constants.RateLimitDriverFile {
				fmt.Fprintf(cmd.OutOrStdout(), "Nothing to prune for the %s driver.\n", env.cfg.RateLimit.Driver)
				return nil
			}

			store, err := ratelimit.NewStore(env.cfg.RateLimit, nil)
			if err != nil {
				return err
			}
			pruner, ok := store.(ratelimit.Pruner)
			if !ok {
				return fmt.Errorf("store %T cannot be pruned", store)
			}

			removed, err := pruner.Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d rate limit records.\n", removed)
			return nil
		},
	}
}
