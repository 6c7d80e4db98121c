package cmd

import (
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/tagsync/internal/auth"
	"github.com/lehigh-university-libraries/tagsync/internal/config"
	"github.com/lehigh-university-libraries/tagsync/internal/exiftool"
	"github.com/lehigh-university-libraries/tagsync/internal/gdrive"
	"github.com/lehigh-university-libraries/tagsync/internal/pipeline"
	"github.com/lehigh-university-libraries/tagsync/internal/report"
	"github.com/spf13/cobra"
)

type syncOptions struct {
	imagesDir string
	folderID  string
	tagField  string
	batchSize int
	report    string
	dryRun    bool
}

func (o *syncOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.imagesDir, "images", "", "Local images directory (default ./images)")
	cmd.Flags().StringVar(&o.folderID, "folder", "", "Google Drive folder ID to search")
	cmd.Flags().StringVar(&o.tagField, "field", "", "exiftool field holding the tags (default IPTC:Keywords)")
	cmd.Flags().IntVar(&o.batchSize, "batch-size", 0, "Updates per batch request, at most 100")
	cmd.Flags().StringVar(&o.report, "report", "", "Write a run report (.yaml or .parquet)")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Look up files but do not update descriptions")
}

// apply overrides cfg with any flags set on the command line
func (o *syncOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("images") {
		cfg.ImagesDir = o.imagesDir
	}
	if flags.Changed("folder") {
		cfg.FolderID = o.folderID
	}
	if flags.Changed("field") {
		cfg.TagField = o.tagField
	}
	if flags.Changed("batch-size") {
		cfg.BatchSize = o.batchSize
	}
	if flags.Changed("report") {
		cfg.Report = o.report
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = o.dryRun
	}
}

func runSync(cmd *cobra.Command, root *rootOptions, opts *syncOptions) error {
	ctx := cmd.Context()

	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	extractor := exiftool.New(cfg.Exiftool, cfg.TagField, cfg.FallbackFields...)
	version, err := extractor.CheckAvailable(ctx)
	if err != nil {
		return err
	}
	slog.Debug("Using exiftool", "path", cfg.Exiftool, "version", version)

	httpClient, err := auth.NewHTTPClient(ctx, auth.Config{
		ClientSecretsFile: cfg.ClientSecretsFile,
		TokenFile:         cfg.TokenFile,
	})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	client, err := gdrive.NewClient(ctx, httpClient)
	if err != nil {
		return err
	}
	client.BatchSize = cfg.BatchSize
	if cfg.BatchURL != "" {
		client.BatchURL = cfg.BatchURL
	}

	slog.Info("Starting tag sync", "images", cfg.ImagesDir, "folder", cfg.FolderID, "field", cfg.TagField, "dry_run", cfg.DryRun)

	p := pipeline.New(extractor, client, client, pipeline.Options{
		ImagesDir: cfg.ImagesDir,
		FolderID:  cfg.FolderID,
		DryRun:    cfg.DryRun,
	})
	summary, runErr := p.Run(ctx)
	if summary == nil {
		return runErr
	}

	printSummary(cfg, summary)

	if cfg.Report != "" {
		rep := report.New(report.RunConfig{
			ImagesDir: cfg.ImagesDir,
			FolderID:  cfg.FolderID,
			TagField:  cfg.TagField,
			BatchSize: cfg.BatchSize,
			DryRun:    cfg.DryRun,
		}, summary.Files)
		if err := report.Write(cfg.Report, rep); err != nil {
			slog.Error("Unable to write report", "path", cfg.Report, "err", err)
		} else {
			fmt.Printf("  Report: %s\n", cfg.Report)
		}
	}

	return runErr
}

func printSummary(cfg *config.Config, summary *pipeline.Summary) {
	fmt.Printf("\nTag sync complete!\n")
	fmt.Printf("  Images processed: %d\n", len(summary.Files))
	if cfg.DryRun {
		fmt.Printf("  Would update: %d\n", summary.Queued)
		for _, e := range summary.Entries {
			fmt.Printf("    %s -> %s: %q\n", e.LocalName, e.FileID, e.Description)
		}
	} else {
		fmt.Printf("  Updated: %d\n", summary.Updated)
	}
	fmt.Printf("  Skipped (no tags or no Drive match): %d\n", summary.Skipped)
	fmt.Printf("  Failed: %d\n", summary.Failed)
}
