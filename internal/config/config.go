package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read when present and no other config path is given
const DefaultFile = "tagsync.yaml"

// Config holds everything a sync run needs
type Config struct {
	ImagesDir         string   `yaml:"images_dir"`
	FolderID          string   `yaml:"folder_id"`
	ClientSecretsFile string   `yaml:"client_secrets_file"`
	TokenFile         string   `yaml:"token_file"`
	Exiftool          string   `yaml:"exiftool"`
	TagField          string   `yaml:"tag_field"`
	FallbackFields    []string `yaml:"fallback_fields"`
	BatchSize         int      `yaml:"batch_size"`
	BatchURL          string   `yaml:"batch_url"`
	Report            string   `yaml:"report"`
	DryRun            bool     `yaml:"dry_run"`
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() *Config {
	return &Config{
		ImagesDir:         "images",
		ClientSecretsFile: "client-secrets-file.json",
		TokenFile:         "token.json",
		Exiftool:          "exiftool",
		TagField:          "IPTC:Keywords",
		FallbackFields:    []string{"XMP:Subject"},
		BatchSize:         100,
		BatchURL:          "https://www.googleapis.com/batch/drive/v3",
	}
}

// Load builds a Config from defaults, then the YAML file at path, then
// TAGSYNC_* environment variables. An empty path reads DefaultFile if it
// exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// no config file is fine
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"TAGSYNC_IMAGES_DIR":     &c.ImagesDir,
		"TAGSYNC_FOLDER_ID":      &c.FolderID,
		"TAGSYNC_CLIENT_SECRETS": &c.ClientSecretsFile,
		"TAGSYNC_TOKEN_FILE":     &c.TokenFile,
		"TAGSYNC_EXIFTOOL":       &c.Exiftool,
		"TAGSYNC_TAG_FIELD":      &c.TagField,
		"TAGSYNC_REPORT":         &c.Report,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("TAGSYNC_FALLBACK_FIELDS"); v != "" {
		c.FallbackFields = nil
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				c.FallbackFields = append(c.FallbackFields, f)
			}
		}
	}

	if v := os.Getenv("TAGSYNC_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TAGSYNC_BATCH_SIZE %q: %w", v, err)
		}
		c.BatchSize = n
	}
	return nil
}

// Validate checks required settings and clamps the batch size to Drive's limit
func (c *Config) Validate() error {
	if c.FolderID == "" {
		return fmt.Errorf("a Drive folder ID is required (--folder, TAGSYNC_FOLDER_ID or folder_id in %s)", DefaultFile)
	}
	if c.ImagesDir == "" {
		return fmt.Errorf("images directory must not be empty")
	}
	if c.BatchSize < 1 {
		c.BatchSize = DefaultConfig().BatchSize
	}
	if c.BatchSize > 100 {
		c.BatchSize = 100
	}
	return nil
}
