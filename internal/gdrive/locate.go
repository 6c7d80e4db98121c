package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/tagsync/internal/models"
	drive "google.golang.org/api/drive/v3"
)

const listFields = "nextPageToken, files(id, name, description, mimeType)"

// Locate finds the file called name directly inside folderID.
// When several files share the name, the one with the smallest ID is returned.
func (c *Client) Locate(ctx context.Context, folderID, name string) (*models.RemoteFile, error) {
	query := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false",
		escapeQuery(folderID), escapeQuery(name))

	var matches []*drive.File
	err := c.service.Files.List().
		Q(query).
		Fields(listFields).
		PageSize(100).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				// the query is exact, but guard against loose server matching
				if f.Name == name {
					matches = append(matches, f)
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list %q in folder %s: %w", name, folderID, err)
	}

	if len(matches) == 0 {
		return nil, ErrNotFound
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Id < matches[j].Id
	})

	if len(matches) > 1 {
		slog.Warn("Multiple files share a name, using smallest ID",
			"name", name, "matches", len(matches), "id", matches[0].Id)
	}

	f := matches[0]
	return &models.RemoteFile{
		ID:          f.Id,
		Name:        f.Name,
		Description: f.Description,
		MimeType:    f.MimeType,
	}, nil
}

// escapeQuery escapes a value for use inside a single-quoted Drive query string
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
