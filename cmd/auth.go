package cmd

import (
	"fmt"

	"github.com/lehigh-university-libraries/tagsync/internal/auth"
	"github.com/lehigh-university-libraries/tagsync/internal/config"
	"github.com/spf13/cobra"
)

func newAuthCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google Drive access and cache the token",
		Long: `Runs the browser consent flow using the OAuth client secrets file and stores
the resulting token so later syncs run unattended.

The token is written even if one is already cached.`,
		Example: `  tagsync auth
  TAGSYNC_CLIENT_SECRETS=./secrets.json tagsync auth`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}

			if _, err := auth.Authorize(cmd.Context(), auth.Config{
				ClientSecretsFile: cfg.ClientSecretsFile,
				TokenFile:         cfg.TokenFile,
			}); err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}

			fmt.Printf("Token saved to %s\n", cfg.TokenFile)
			return nil
		},
	}

	return cmd
}
