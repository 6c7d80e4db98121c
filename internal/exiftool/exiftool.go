package exiftool

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultField is the metadata field holding an image's tags
const DefaultField = "IPTC:Keywords"

// Extractor reads a single tag field from image files by running exiftool
type Extractor struct {
	// Command is the exiftool binary, resolved through PATH when not absolute
	Command string
	// Field is read first; Fallbacks are consulted in order when it is absent
	Field     string
	Fallbacks []string
}

// New returns an Extractor for the given binary and field
func New(command, field string, fallbacks ...string) *Extractor {
	if command == "" {
		command = "exiftool"
	}
	if field == "" {
		field = DefaultField
	}
	return &Extractor{
		Command:   command,
		Field:     field,
		Fallbacks: fallbacks,
	}
}

// CheckAvailable verifies the exiftool binary can be executed
func (e *Extractor) CheckAvailable(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, e.Command, "-ver").Output()
	if err != nil {
		return "", fmt.Errorf("exiftool not available (%s): %w", e.Command, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Extract runs exiftool against path and returns the tag string.
// A missing field yields "" and no error.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, e.Command, "-j", "-G", "-n", path)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("exiftool %q: %w: %s", path, err, msg)
		}
		return "", fmt.Errorf("exiftool %q: %w", path, err)
	}

	fields := append([]string{e.Field}, e.Fallbacks...)
	tags, err := ParseTags(out, fields...)
	if err != nil {
		return "", fmt.Errorf("exiftool %q: %w", path, err)
	}

	slog.Debug("Extracted tags", "path", path, "tags", tags)
	return tags, nil
}

// ParseTags pulls the first present field out of exiftool -j output.
// Exported for testing without a real exiftool binary.
func ParseTags(data []byte, fields ...string) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("parse exiftool JSON: invalid document")
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return "", fmt.Errorf("parse exiftool JSON: expected array, got %s", doc.Type)
	}

	record := doc.Get("0")
	if !record.Exists() {
		return "", fmt.Errorf("parse exiftool JSON: no records")
	}

	for _, field := range fields {
		value := record.Get(field)
		if !value.Exists() || value.Type == gjson.Null {
			continue
		}
		if tags := formatValue(value); tags != "" {
			return tags, nil
		}
	}

	return "", nil
}

// formatValue renders a field as description text: lists are joined
// with ", " and scalars are used as-is.
func formatValue(value gjson.Result) string {
	if !value.IsArray() {
		return strings.TrimSpace(value.String())
	}

	var parts []string
	for _, item := range value.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
