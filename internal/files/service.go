package files

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service provides application-level file operations
type Service struct {
	repo     Repository
	pool     *Pool
	timeout  time.Duration
	newToken TokenGenerator
}

// NewService creates a new file service. Uploads run on pool and are
// abandoned as unavailable once timeout elapses.
func NewService(repo Repository, pool *Pool, timeout time.Duration) *Service {
	return &Service{
		repo:     repo,
		pool:     pool,
		timeout:  timeout,
		newToken: NewToken,
	}
}

// UploadRequest represents a file upload request
type UploadRequest struct {
	Name        string
	ContentType string
	Meta        string
	Source      string
	ExpireTime  *string
	Content     []byte

	// DeclaredType is the MIME type the uploaded payload carries itself.
	DeclaredType string
}

// MetaDataResult groups metadata views by token.
type MetaDataResult struct {
	Files map[string]MetaView `json:"files"`
}

// UploadAsync submits the upload to the worker pool. The returned channel
// receives exactly one Completion.
func (s *Service) UploadAsync(ctx context.Context, req *UploadRequest) <-chan Completion {
	return s.pool.Submit(ctx, func(ctx context.Context) (string, error) {
		return s.upload(ctx, req)
	})
}

// Upload runs the upload pipeline and waits for its completion. It returns
// the new token, a *ValidationError, or an error wrapping ErrUnavailable.
func (s *Service) Upload(ctx context.Context, req *UploadRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	select {
	case c := <-s.UploadAsync(ctx, req):
		if c.Err != nil {
			var verr *ValidationError
			if errors.As(c.Err, &verr) {
				return "", verr
			}
			return "", unavailable("upload", c.Err)
		}
		return c.Token, nil
	case <-ctx.Done():
		return "", unavailable("upload", ctx.Err())
	}
}

func (s *Service) upload(ctx context.Context, req *UploadRequest) (string, error) {
	if verr := Validate(req); verr != nil {
		return "", verr
	}

	token := s.newToken()

	// Stored content always ends with one extra newline byte.
	content := make([]byte, len(req.Content)+1)
	copy(content, req.Content)
	content[len(req.Content)] = '\n'

	record := &Record{
		Token:        token,
		Name:         req.Name,
		ContentType:  req.ContentType,
		Meta:         []byte(req.Meta),
		Source:       req.Source,
		ExpireTime:   req.ExpireTime,
		Content:      content,
		CreationDate: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	// The caller has given up on this upload, so nobody will ever see the
	// token. Remove the record rather than leave it unreachable.
	if err := ctx.Err(); err != nil {
		if _, derr := s.repo.DeleteIfPresent(context.WithoutCancel(ctx), token); derr != nil {
			return "", fmt.Errorf("failed to roll back abandoned upload: %w", errors.Join(err, derr))
		}
		return "", err
	}

	return token, nil
}

// FindByToken retrieves a full record
func (s *Service) FindByToken(ctx context.Context, token string) (*Record, error) {
	record, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable("find file", err)
	}
	return record, nil
}

// FilesMetaData returns metadata views for the tokens that exist. Unknown
// tokens are left out of the result.
func (s *Service) FilesMetaData(ctx context.Context, tokens []string) (*MetaDataResult, error) {
	result := &MetaDataResult{Files: make(map[string]MetaView, len(tokens))}

	for _, token := range tokens {
		record, err := s.repo.FindByToken(ctx, token)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, unavailable("find file metadata", err)
		}
		result.Files[token] = record.MetaView()
	}

	return result, nil
}

// Delete removes a file by token, or returns ErrNotFound
func (s *Service) Delete(ctx context.Context, token string) error {
	removed, err := s.repo.DeleteIfPresent(ctx, token)
	if err != nil {
		return unavailable("delete file", err)
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

// List returns every stored record
func (s *Service) List(ctx context.Context) ([]*Record, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, unavailable("list files", err)
	}
	if records == nil {
		records = []*Record{}
	}
	return records, nil
}

// DeleteAll removes every stored record
func (s *Service) DeleteAll(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		return unavailable("delete all files", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
