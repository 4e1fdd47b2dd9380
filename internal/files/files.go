package files

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a token does not resolve to a record.
	ErrNotFound = errors.New("file not found")

	// ErrUnavailable wraps every failure that is neither a validation
	// failure nor a missing record.
	ErrUnavailable = errors.New("service unavailable")
)

// Record represents a stored file together with its metadata
type Record struct {
	Token        string          `json:"token" msgpack:"token"`
	Name         string          `json:"name" msgpack:"name"`
	ContentType  string          `json:"fileContentType" msgpack:"content_type"`
	Meta         json.RawMessage `json:"meta" msgpack:"meta"`
	Source       string          `json:"source" msgpack:"source"`
	ExpireTime   *string         `json:"expireTime,omitempty" msgpack:"expire_time"`
	Content      []byte          `json:"content" msgpack:"content"`
	CreationDate time.Time       `json:"creationDate" msgpack:"creation_date"`
}

// MetaView is the read-only projection of a record without its content.
type MetaView struct {
	Token        string          `json:"token"`
	Name         string          `json:"name"`
	ContentType  string          `json:"fileContentType"`
	Size         int             `json:"size"`
	Meta         json.RawMessage `json:"meta"`
	Source       string          `json:"source"`
	CreationDate time.Time       `json:"creationDate"`
}

// MetaView projects the record. Size is the length of the stored content,
// appended newline included.
func (r *Record) MetaView() MetaView {
	return MetaView{
		Token:        r.Token,
		Name:         r.Name,
		ContentType:  r.ContentType,
		Size:         len(r.Content),
		Meta:         r.Meta,
		Source:       r.Source,
		CreationDate: r.CreationDate,
	}
}

// Repository defines the storage contract for file records
type Repository interface {
	// Create stores a new record
	Create(ctx context.Context, record *Record) error

	// FindByToken retrieves a record, or ErrNotFound
	FindByToken(ctx context.Context, token string) (*Record, error)

	// DeleteIfPresent removes a record and reports whether one was removed
	DeleteIfPresent(ctx context.Context, token string) (bool, error)

	// List retrieves all records
	List(ctx context.Context) ([]*Record, error)

	// DeleteAll removes every record
	DeleteAll(ctx context.Context) error
}
