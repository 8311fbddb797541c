package cli

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/invoicer/pkg/constants"
)

func newKeyGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key:generate",
		Short: "Print a fresh random application key",
		Long: `Prints a random key in the "base64:" form accepted by the key source.
Store it in the environment variable named by security.app_key_env or in Vault.
Rotating the key logs every user out and invalidates outstanding signed links.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, _ := cmd.Flags().GetInt("bytes")
			if size < 16 {
				return fmt.Errorf("--bytes must be at least 16")
			}
			raw := make([]byte, size)
			if _, err := rand.Read(raw); err != nil {
				return fmt.Errorf("read random bytes: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), constants.AppKeyBase64Prefix+base64.StdEncoding.EncodeToString(raw))
			return nil
		},
	}
	cmd.Flags().Int("bytes", 32, "key length in bytes")
	return cmd
}
