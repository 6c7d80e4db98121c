package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/tagsync/internal/gdrive"
	"github.com/lehigh-university-libraries/tagsync/internal/models"
	"github.com/lehigh-university-libraries/tagsync/internal/storage"
)

// ImageExtensions are the lower-cased file extensions treated as images
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

// Extractor returns the tag string for a local file
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Locator finds a remote file by exact name inside a folder.
// It returns gdrive.ErrNotFound when nothing matches.
type Locator interface {
	Locate(ctx context.Context, folderID, name string) (*models.RemoteFile, error)
}

// Updater applies description updates and reports a result per entry
type Updater interface {
	Update(ctx context.Context, entries []models.UpdateEntry) ([]models.UpdateResult, error)
}

// Options control a single run
type Options struct {
	ImagesDir string
	FolderID  string
	// DryRun stops after queueing; nothing is sent to the updater
	DryRun bool
}

// Summary is the outcome of a run
type Summary struct {
	Updated int
	Skipped int
	Failed  int
	Queued  int

	Files   []models.FileResult
	Entries []models.UpdateEntry
}

// Pipeline moves tags from local images to remote file descriptions
type Pipeline struct {
	extractor Extractor
	locator   Locator
	updater   Updater
	opts      Options
}

// New creates a pipeline from its three stages
func New(extractor Extractor, locator Locator, updater Updater, opts Options) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		locator:   locator,
		updater:   updater,
		opts:      opts,
	}
}

// ListImages returns the supported image files directly inside dir, sorted by name
func ListImages(dir string) ([]models.LocalImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read images directory: %w", err)
	}

	var images []models.LocalImage
	for _, entry := range entries {
		if !isImage(entry.Name()) {
			continue
		}
		if !isRegularFile(dir, entry) {
			continue
		}
		images = append(images, models.LocalImage{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
		})
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Name < images[j].Name
	})
	return images, nil
}

// isRegularFile reports whether entry is a regular file, following symlinks
func isRegularFile(dir string, entry os.DirEntry) bool {
	if entry.Type()&os.ModeSymlink == 0 {
		return entry.Type().IsRegular()
	}

	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	if err != nil {
		slog.Warn("Skipping unreadable symlink", "file", entry.Name(), "err", err)
		return false
	}
	return info.Mode().IsRegular()
}

func isImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Run processes every image once and then flushes queued updates.
// Per-file problems are recorded in the summary; only a failure to list
// the images directory or a cancelled context is returned as an error.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	images, err := ListImages(p.opts.ImagesDir)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Files: make([]models.FileResult, 0, len(images)),
	}

	if len(images) == 0 {
		slog.Warn("No image files found", "dir", p.opts.ImagesDir)
		return summary, nil
	}

	queue := storage.New()
	// index into summary.Files for each queued local file
	pending := make(map[string]int)

	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		slog.Info("Processing image", "index", i+1, "total", len(images), "file", img.Name)
		result := p.processImage(ctx, img, queue)

		summary.Files = append(summary.Files, result)
		switch result.Status {
		case models.StatusSkipped:
			summary.Skipped++
		case models.StatusFailed:
			summary.Failed++
		case models.StatusQueued:
			pending[img.Name] = len(summary.Files) - 1
		}
	}

	summary.Entries = queue.Entries()

	if p.opts.DryRun {
		summary.Queued = queue.Len()
		slog.Info("Dry run, not sending updates", "queued", summary.Queued)
		return summary, nil
	}

	if queue.Len() == 0 {
		slog.Info("Nothing to update")
		return summary, nil
	}

	slog.Info("Updating remote descriptions", "entries", queue.Len())
	results, err := p.updater.Update(ctx, queue.Drain())
	for _, r := range results {
		idx, ok := pending[r.Entry.LocalName]
		if !ok {
			continue
		}
		delete(pending, r.Entry.LocalName)

		file := &summary.Files[idx]
		if r.Err != nil {
			slog.Error("Failed to update description", "file", file.Name, "id", r.Entry.FileID, "err", r.Err)
			file.Status = models.StatusFailed
			file.Reason = r.Err.Error()
			summary.Failed++
			continue
		}
		slog.Info("Updated description", "file", file.Name, "id", r.Entry.FileID, "remote_name", r.Name)
		file.Status = models.StatusUpdated
		summary.Updated++
	}

	// entries the updater never reported on, e.g. after cancellation
	for _, idx := range pending {
		file := &summary.Files[idx]
		file.Status = models.StatusFailed
		file.Reason = "update not attempted"
		summary.Failed++
	}

	return summary, err
}

func (p *Pipeline) processImage(ctx context.Context, img models.LocalImage, queue *storage.UpdateQueue) models.FileResult {
	result := models.FileResult{Name: img.Name}

	tags, err := p.extractor.Extract(ctx, img.Path)
	if err != nil {
		slog.Error("Failed to extract tags", "file", img.Name, "err", err)
		result.Status = models.StatusFailed
		result.Reason = err.Error()
		return result
	}
	if tags == "" {
		slog.Warn("No tags found, skipping", "file", img.Name)
		result.Status = models.StatusSkipped
		result.Reason = "no tags"
		return result
	}
	img.Tags = tags
	result.Tags = tags

	remote, err := p.locator.Locate(ctx, p.opts.FolderID, img.Name)
	if errors.Is(err, gdrive.ErrNotFound) {
		slog.Warn("No matching remote file, skipping", "file", img.Name)
		result.Status = models.StatusSkipped
		result.Reason = "no remote match"
		return result
	}
	if err != nil {
		slog.Error("Failed to look up remote file", "file", img.Name, "err", err)
		result.Status = models.StatusFailed
		result.Reason = err.Error()
		return result
	}

	if remote.Description == tags {
		slog.Debug("Remote description already current, updating anyway", "file", img.Name, "id", remote.ID)
	}

	queue.Add(models.UpdateEntry{
		FileID:      remote.ID,
		Description: img.Tags,
		LocalName:   img.Name,
	})
	result.Status = models.StatusQueued
	result.RemoteID = remote.ID
	slog.Info("Queued description update", "file", img.Name, "id", remote.ID)
	return result
}
