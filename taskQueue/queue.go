// Package taskqueue persists accepted background jobs until they finish, so
// a restarted server can pick them up again.
package taskqueue

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"mediajob/models"

	"github.com/cockroachdb/pebble"
)

// Entry is one queued job.
type Entry struct {
	ID       string     `json:"id"`
	Job      models.Job `json:"job"`
	Enqueued time.Time  `json:"enqueued"`
}

// Queue is a small wrapper around a Pebble DB instance keyed by job id.
type Queue struct {
	db       *pebble.DB
	dataFile string
}

// Open opens (or creates) a pebble DB at the given dataFile path.
func Open(dataFile string) (*Queue, error) {
	db, err := pebble.Open(dataFile, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open task queue: %w", err)
	}
	return &Queue{db: db, dataFile: dataFile}, nil
}

// Add stores j under id, replacing any previous entry.
func (q *Queue) Add(id string, j models.Job) error {
	data, err := json.Marshal(Entry{ID: id, Job: j, Enqueued: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}
	return q.db.Set([]byte(id), data, pebble.Sync)
}

// Remove deletes the entry for id. Removing a missing id is not an error.
func (q *Queue) Remove(id string) error {
	return q.db.Delete([]byte(id), pebble.Sync)
}

// Pending returns every queued entry, oldest first.
func (q *Queue) Pending() ([]Entry, error) {
	iter, err := q.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue // Skip invalid records
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Enqueued.Before(entries[j].Enqueued)
	})
	return entries, nil
}

// Close closes the underlying DB.
func (q *Queue) Close() error {
	return q.db.Close()
}
