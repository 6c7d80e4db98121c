package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/tagsync/internal/models"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// RunConfig records the settings a run was made with
type RunConfig struct {
	ImagesDir string `yaml:"imagesdir"`
	FolderID  string `yaml:"folderid"`
	TagField  string `yaml:"tagfield"`
	BatchSize int    `yaml:"batchsize"`
	DryRun    bool   `yaml:"dryrun"`
	Timestamp string `yaml:"timestamp"`
}

// Counts are the per-status totals of a run
type Counts struct {
	Updated int `yaml:"updated"`
	Skipped int `yaml:"skipped"`
	Failed  int `yaml:"failed"`
	Queued  int `yaml:"queued"`
}

// Record is one local file's outcome
type Record struct {
	Name     string `yaml:"name" parquet:"name"`
	Status   string `yaml:"status" parquet:"status"`
	Reason   string `yaml:"reason,omitempty" parquet:"reason,optional"`
	RemoteID string `yaml:"remoteid,omitempty" parquet:"remote_id,optional"`
	Tags     string `yaml:"tags,omitempty" parquet:"tags,optional"`
}

// Report is the complete record of a run
type Report struct {
	Config  RunConfig `yaml:"config"`
	Counts  Counts    `yaml:"counts"`
	Results []Record  `yaml:"results"`
}

// New builds a report from file results, stamping the current time
func New(cfg RunConfig, files []models.FileResult) *Report {
	if cfg.Timestamp == "" {
		cfg.Timestamp = time.Now().Format("2006-01-02_15-04-05")
	}

	rep := &Report{
		Config:  cfg,
		Results: make([]Record, 0, len(files)),
	}
	for _, f := range files {
		switch f.Status {
		case models.StatusUpdated:
			rep.Counts.Updated++
		case models.StatusSkipped:
			rep.Counts.Skipped++
		case models.StatusFailed:
			rep.Counts.Failed++
		case models.StatusQueued:
			rep.Counts.Queued++
		}
		rep.Results = append(rep.Results, Record{
			Name:     f.Name,
			Status:   string(f.Status),
			Reason:   f.Reason,
			RemoteID: f.RemoteID,
			Tags:     f.Tags,
		})
	}
	return rep
}

// Write saves the report, choosing YAML or Parquet from the file extension
func Write(path string, rep *Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return writeYAML(path, rep)
	case ".parquet":
		return writeParquet(path, rep)
	default:
		return fmt.Errorf("unsupported report format: %q (use .yaml or .parquet)", ext)
	}
}

func writeYAML(path string, rep *Report) error {
	data, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write YAML file: %w", err)
	}
	return nil
}

// writeParquet stores only the per-file rows; run settings live in YAML reports
func writeParquet(path string, rep *Report) error {
	if err := parquet.WriteFile(path, rep.Results); err != nil {
		return fmt.Errorf("failed to write parquet file: %w", err)
	}
	return nil
}
