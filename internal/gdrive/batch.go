package gdrive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/tagsync/internal/models"
	"google.golang.org/api/googleapi"
)

// Chunk splits entries into consecutive slices of at most size entries
func Chunk(entries []models.UpdateEntry, size int) [][]models.UpdateEntry {
	if size <= 0 {
		size = MaxBatchSize
	}

	var chunks [][]models.UpdateEntry
	for start := 0; start < len(entries); start += size {
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}
		chunks = append(chunks, entries[start:end])
	}
	return chunks
}

// Update sets the description of every entry's file, BatchSize entries per
// request. The returned results are in entry order and each carries its own
// error. A batch that fails as a whole marks all of its entries failed and
// the remaining batches are still sent.
func (c *Client) Update(ctx context.Context, entries []models.UpdateEntry) ([]models.UpdateResult, error) {
	size := c.BatchSize
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}

	results := make([]models.UpdateResult, 0, len(entries))
	chunks := Chunk(entries, size)

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		slog.Info("Submitting batch", "batch", i+1, "total", len(chunks), "entries", len(chunk))

		batchResults, err := c.submitBatch(ctx, chunk)
		if err != nil {
			slog.Error("Batch request failed", "batch", i+1, "err", err)
			for _, entry := range chunk {
				results = append(results, models.UpdateResult{Entry: entry, Err: err})
			}
			continue
		}
		results = append(results, batchResults...)
	}

	return results, nil
}

// submitBatch sends one multipart/mixed request carrying a PATCH per entry
func (c *Client) submitBatch(ctx context.Context, chunk []models.UpdateEntry) ([]models.UpdateResult, error) {
	batchID := uuid.NewString()

	body, contentType, err := encodeBatch(batchID, chunk)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BatchURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send batch request: %w", err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, err
	}

	return decodeBatch(batchID, chunk, resp)
}

func encodeBatch(batchID string, chunk []models.UpdateEntry) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary("batch_" + strings.ReplaceAll(batchID, "-", "")); err != nil {
		return nil, "", fmt.Errorf("failed to set batch boundary: %w", err)
	}

	for i, entry := range chunk {
		payload, err := json.Marshal(map[string]string{"description": entry.Description})
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal update for %s: %w", entry.FileID, err)
		}

		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/http")
		header.Set("Content-Transfer-Encoding", "binary")
		header.Set("Content-ID", fmt.Sprintf("<%s+%d>", batchID, i))

		pw, err := mw.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create batch part: %w", err)
		}

		fmt.Fprintf(pw, "PATCH /drive/v3/files/%s?fields=id%%2Cname%%2Cdescription&supportsAllDrives=true HTTP/1.1\r\n",
			url.PathEscape(entry.FileID))
		fmt.Fprintf(pw, "Content-Type: application/json; charset=UTF-8\r\n")
		fmt.Fprintf(pw, "Content-Length: %d\r\n\r\n", len(payload))
		pw.Write(payload)
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish batch body: %w", err)
	}

	return &buf, "multipart/mixed; boundary=" + mw.Boundary(), nil
}

func decodeBatch(batchID string, chunk []models.UpdateEntry, resp *http.Response) ([]models.UpdateResult, error) {
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse batch response content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("unexpected batch response content type: %s", mediaType)
	}

	results := make([]models.UpdateResult, len(chunk))
	seen := make([]bool, len(chunk))
	for i, entry := range chunk {
		results[i].Entry = entry
	}

	mr := multipart.NewReader(resp.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read batch response: %w", err)
		}

		idx, ok := partIndex(batchID, part.Header.Get("Content-ID"), len(chunk))
		if !ok {
			slog.Warn("Ignoring batch response part with unknown Content-ID", "content_id", part.Header.Get("Content-ID"))
			continue
		}

		name, err := readPartResponse(part)
		seen[idx] = true
		results[idx].Name = name
		results[idx].Err = err
	}

	for i := range results {
		if !seen[i] {
			results[i].Err = fmt.Errorf("no response for file %s in batch", results[i].Entry.FileID)
		}
	}

	return results, nil
}

// partIndex maps "<response-{batchID}+{n}>" back to the entry index n
func partIndex(batchID, contentID string, n int) (int, bool) {
	id := strings.Trim(contentID, "<>")
	id = strings.TrimPrefix(id, "response-")

	prefix := batchID + "+"
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}

	idx, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil || idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

// readPartResponse parses the embedded HTTP response of one batch part
func readPartResponse(part io.Reader) (string, error) {
	inner, err := http.ReadResponse(bufio.NewReader(part), nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse batch part: %w", err)
	}
	defer inner.Body.Close()

	if err := googleapi.CheckResponse(inner); err != nil {
		return "", err
	}

	var file struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(inner.Body).Decode(&file); err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to decode batch part body: %w", err)
	}
	return file.Name, nil
}
