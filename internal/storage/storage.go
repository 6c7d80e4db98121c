package storage

import (
	"github.com/lehigh-university-libraries/tagsync/internal/models"
)

// UpdateQueue holds description updates waiting to be flushed.
// It is owned by a single goroutine.
type UpdateQueue struct {
	entries []models.UpdateEntry
}

func New() *UpdateQueue {
	return &UpdateQueue{}
}

func (q *UpdateQueue) Add(entry models.UpdateEntry) {
	q.entries = append(q.entries, entry)
}

func (q *UpdateQueue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the queued entries in insertion order
func (q *UpdateQueue) Entries() []models.UpdateEntry {
	result := make([]models.UpdateEntry, len(q.entries))
	copy(result, q.entries)
	return result
}

// Drain returns every queued entry and empties the queue
func (q *UpdateQueue) Drain() []models.UpdateEntry {
	result := q.entries
	q.entries = nil
	return result
}
