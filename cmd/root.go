package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	syncOpts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "tagsync",
		Short: "Copy image keyword tags into Google Drive file descriptions",
		Long: `Tagsync reads the keyword tags embedded in local images with exiftool and
writes them to the description of the same-named file in a Google Drive folder.

Running tagsync with no arguments syncs ./images against the configured folder.
Updates are sent to Drive in batches of up to 100 files.`,
		Example: `  # Sync ./images with the folder set in tagsync.yaml or TAGSYNC_FOLDER_ID
  tagsync

  # Preview which files would be updated
  tagsync --folder 1AbCdEf --dry-run

  # Keep a record of the run
  tagsync --report reports/run.yaml`,
		Args: cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			if opts.verbose {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, syncOpts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (default tagsync.yaml if present)")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Verbose logging")
	syncOpts.bind(cmd)

	cmd.AddCommand(newAuthCmd(opts))

	return cmd
}
