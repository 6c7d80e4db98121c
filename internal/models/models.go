package models

// LocalImage represents an image file found in the local images directory
type LocalImage struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Tags string `json:"tags"`
}

// RemoteFile represents a Drive file returned by a folder lookup
type RemoteFile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

// UpdateEntry is a pending description change for one Drive file
type UpdateEntry struct {
	FileID      string `json:"file_id"`
	Description string `json:"description"`
	LocalName   string `json:"local_name"`
}

// UpdateResult is the outcome of a single entry within a batch
type UpdateResult struct {
	Entry UpdateEntry
	Name  string // name echoed back by Drive on success
	Err   error
}

// Status is the terminal state of a local file after a run
type Status string

const (
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
	StatusQueued  Status = "queued" // dry run only
)

// FileResult records what happened to a local file
type FileResult struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
	RemoteID string `json:"remote_id,omitempty"`
	Tags     string `json:"tags,omitempty"`
}
