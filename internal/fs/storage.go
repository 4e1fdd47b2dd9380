package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pavel-fokin/token-stash/internal/files"
)

const recordExt = ".msgpack"

// Storage implements files.Repository using the filesystem.
// Each record is one msgpack file named after its token.
type Storage struct {
	dataDir string
}

// NewStorage creates a new filesystem storage
func NewStorage(dataDir string) (*Storage, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Storage{dataDir: dataDir}, nil
}

// Create stores a record. The file appears atomically via rename.
func (s *Storage) Create(ctx context.Context, record *files.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath, ok := s.path(record.Token)
	if !ok {
		return fmt.Errorf("invalid token %q", record.Token)
	}

	data, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dataDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to commit file: %w", err)
	}

	return nil
}

// FindByToken retrieves a record by token
func (s *Storage) FindByToken(ctx context.Context, token string) (*files.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, ok := s.path(token)
	if !ok {
		return nil, files.ErrNotFound
	}
	return s.read(filePath)
}

// DeleteIfPresent removes a record and reports whether it existed
func (s *Storage) DeleteIfPresent(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	filePath, ok := s.path(token)
	if !ok {
		return false, nil
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete file: %w", err)
	}

	return true, nil
}

// List retrieves all records, newest first
func (s *Storage) List(ctx context.Context) ([]*files.Record, error) {
	names, err := s.recordFiles()
	if err != nil {
		return nil, err
	}

	records := make([]*files.Record, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := s.read(filepath.Join(s.dataDir, name))
		if err != nil {
			// Deleted between listing and reading.
			if errors.Is(err, files.ErrNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreationDate.After(records[j].CreationDate)
	})
	return records, nil
}

// DeleteAll removes every record
func (s *Storage) DeleteAll(ctx context.Context) error {
	names, err := s.recordFiles()
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.Remove(filepath.Join(s.dataDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}
	return nil
}

func (s *Storage) read(filePath string) (*files.Record, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	var record files.Record
	if err := msgpack.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	record.CreationDate = record.CreationDate.UTC()
	return &record, nil
}

func (s *Storage) recordFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), recordExt) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// path maps a token to its record file. Tokens that could escape the data
// directory are rejected.
func (s *Storage) path(token string) (string, bool) {
	if token == "" || token == "." || token == ".." || strings.ContainsAny(token, `/\`) {
		return "", false
	}
	return filepath.Join(s.dataDir, token+recordExt), true
}
