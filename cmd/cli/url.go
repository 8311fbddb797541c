package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/invoicer/internal/infrastructure/crypto"
)

func newURLSignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url:sign <path>",
		Short: "Mint a temporary link to a private file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			secret, err := env.secret(cmd.Context())
			if err != nil {
				return err
			}
			signer, err := crypto.NewURLSigner(secret)
			if err != nil {
				return err
			}

			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl == 0 {
				ttl = env.cfg.SignedURL.TTL
			}
			if ttl < time.Second {
				return fmt.Errorf("--ttl must be at least one second")
			}
			base, _ := cmd.Flags().GetString("base")
			if base == "" {
				base = strings.TrimRight(env.cfg.SignedURL.BaseURL, "/") + "/files"
			}

			link, err := signer.SignedURL(base, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 0, "link lifetime (defaults to signed_url.ttl)")
	cmd.Flags().String("base", "", "URL prefix the path is appended to (defaults to signed_url.base_url + /files)")
	return cmd
}
