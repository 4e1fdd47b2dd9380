// Package memory keeps file records in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pavel-fokin/token-stash/internal/files"
)

// Repository implements files.Repository with a map
type Repository struct {
	mu      sync.RWMutex
	records map[string]*files.Record
}

// NewRepository creates an empty in-memory repository
func NewRepository() *Repository {
	return &Repository{records: make(map[string]*files.Record)}
}

// Create stores a record
func (r *Repository) Create(ctx context.Context, record *files.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.Token]; ok {
		return fmt.Errorf("file %s already exists", record.Token)
	}
	r.records[record.Token] = record
	return nil
}

// FindByToken retrieves a record by token
func (r *Repository) FindByToken(ctx context.Context, token string) (*files.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[token]
	if !ok {
		return nil, files.ErrNotFound
	}
	return record, nil
}

// DeleteIfPresent removes a record and reports whether it existed
func (r *Repository) DeleteIfPresent(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[token]; !ok {
		return false, nil
	}
	delete(r.records, token)
	return true, nil
}

// List returns all records, newest first
func (r *Repository) List(ctx context.Context) ([]*files.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	list := make([]*files.Record, 0, len(r.records))
	for _, record := range r.records {
		list = append(list, record)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreationDate.After(list[j].CreationDate)
	})
	return list, nil
}

// DeleteAll removes every record
func (r *Repository) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.records = make(map[string]*files.Record)
	r.mu.Unlock()
	return nil
}
