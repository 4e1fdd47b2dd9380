package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/pavel-fokin/token-stash/internal/files"
)

const busyTimeoutMS = 5000

// Repository implements files.Repository using SQLite.
// Content is stored zstd-compressed.
type Repository struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewRepository creates a new SQLite repository
func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path is required")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	repo := &Repository{db: db, encoder: encoder, decoder: decoder}

	if err := repo.configure(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := repo.initSchema(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	r.decoder.Close()
	return errors.Join(r.encoder.Close(), r.db.Close())
}

func (r *Repository) configure() error {
	// One connection keeps the pragmas below in effect for every query.
	r.db.SetMaxOpenConns(1)
	r.db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// initSchema creates the necessary database tables
func (r *Repository) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS files (
		token TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		content_type TEXT NOT NULL,
		meta TEXT NOT NULL,
		source TEXT NOT NULL,
		expire_time TEXT,
		content BLOB NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create files table: %w", err)
	}
	return nil
}

// Create stores a file record
func (r *Repository) Create(ctx context.Context, record *files.Record) error {
	query := `
	INSERT INTO files (token, name, content_type, meta, source, expire_time, content, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var expireTime sql.NullString
	if record.ExpireTime != nil {
		expireTime = sql.NullString{String: *record.ExpireTime, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		record.Token,
		record.Name,
		record.ContentType,
		string(record.Meta),
		record.Source,
		expireTime,
		r.encoder.EncodeAll(record.Content, nil),
		record.CreationDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	return nil
}

// FindByToken retrieves a file record by token
func (r *Repository) FindByToken(ctx context.Context, token string) (*files.Record, error) {
	query := `
	SELECT token, name, content_type, meta, source, expire_time, content, created_at
	FROM files
	WHERE token = ?
	`

	record, err := r.scan(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find file: %w", err)
	}

	return record, nil
}

// List retrieves all file records, newest first
func (r *Repository) List(ctx context.Context) ([]*files.Record, error) {
	query := `
	SELECT token, name, content_type, meta, source, expire_time, content, created_at
	FROM files
	ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	records := []*files.Record{}
	for rows.Next() {
		record, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file rows: %w", err)
	}

	return records, nil
}

// DeleteIfPresent removes a file record and reports whether it existed
func (r *Repository) DeleteIfPresent(ctx context.Context, token string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE token = ?`, token)
	if err != nil {
		return false, fmt.Errorf("failed to delete file record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// DeleteAll removes every file record
func (r *Repository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM files`); err != nil {
		return fmt.Errorf("failed to delete file records: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scan(row scanner) (*files.Record, error) {
	var (
		record     files.Record
		meta       string
		expireTime sql.NullString
		compressed []byte
	)
	err := row.Scan(
		&record.Token,
		&record.Name,
		&record.ContentType,
		&meta,
		&record.Source,
		&expireTime,
		&compressed,
		&record.CreationDate,
	)
	if err != nil {
		return nil, err
	}

	content, err := r.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress content: %w", err)
	}

	record.Meta = []byte(meta)
	record.Content = content
	if expireTime.Valid {
		record.ExpireTime = &expireTime.String
	}
	record.CreationDate = record.CreationDate.UTC()

	return &record, nil
}
