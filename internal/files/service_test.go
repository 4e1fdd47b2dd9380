package files

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRepository is a map-backed Repository with optional failure hooks.
type stubRepository struct {
	mu      sync.Mutex
	records map[string]*Record

	createErr   error
	createBlock chan struct{}
	createDelay time.Duration
	findErr     error

	// deletes, when set, receives every token passed to DeleteIfPresent.
	deletes chan string
}

func newStubRepository() *stubRepository {
	return &stubRepository{records: make(map[string]*Record)}
}

func (r *stubRepository) Create(ctx context.Context, record *Record) error {
	if r.createBlock != nil {
		select {
		case <-r.createBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.createErr != nil {
		return r.createErr
	}
	// A slow store that does not watch the context once it has started.
	time.Sleep(r.createDelay)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Token] = record
	return nil
}

func (r *stubRepository) FindByToken(ctx context.Context, token string) (*Record, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[token]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

func (r *stubRepository) DeleteIfPresent(ctx context.Context, token string) (bool, error) {
	if r.deletes != nil {
		defer func() { r.deletes <- token }()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[token]; !ok {
		return false, nil
	}
	delete(r.records, token)
	return true, nil
}

func (r *stubRepository) List(ctx context.Context) ([]*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*Record
	for _, record := range r.records {
		list = append(list, record)
	}
	return list, nil
}

func (r *stubRepository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]*Record)
	return nil
}

func newTestService(t *testing.T, repo Repository, timeout time.Duration) *Service {
	t.Helper()
	pool := NewPool(4)
	t.Cleanup(pool.Close)
	return NewService(repo, pool, timeout)
}

func TestServiceUpload(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepository()
	svc := newTestService(t, repo, time.Second)

	expireTime := "2030-01-01"
	req := validRequest()
	req.ExpireTime = &expireTime

	token, err := svc.Upload(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	record, err := svc.FindByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, token, record.Token)
	assert.Equal(t, "a.txt", record.Name)
	assert.Equal(t, "text/plain", record.ContentType)
	assert.JSONEq(t, `{"k":1}`, string(record.Meta))
	assert.Equal(t, "s", record.Source)
	assert.Equal(t, &expireTime, record.ExpireTime)
	assert.Equal(t, []byte("hi\n"), record.Content)
	assert.WithinDuration(t, time.Now(), record.CreationDate, 5*time.Second)

	// The caller's buffer is not aliased.
	assert.Equal(t, []byte("hi"), req.Content)
}

func TestServiceUploadCreatesDistinctRecords(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepository()
	svc := newTestService(t, repo, time.Second)

	first, err := svc.Upload(ctx, validRequest())
	require.NoError(t, err)
	second, err := svc.Upload(ctx, validRequest())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	records, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestServiceUploadValidationFailure(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepository()
	svc := newTestService(t, repo, time.Second)

	req := validRequest()
	req.Name = ""
	req.DeclaredType = "application/pdf"

	token, err := svc.Upload(ctx, req)
	assert.Empty(t, token)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{
		"Name cannot be empty or null",
		"File content type mismatch. Actual application/pdf, but provided text/plain",
	}, verr.Errors)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, repo.records)
}

func TestServiceUploadStorageFailure(t *testing.T) {
	repo := newStubRepository()
	repo.createErr = errors.New("disk full")
	svc := newTestService(t, repo, time.Second)

	_, err := svc.Upload(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "disk full")
}

func TestServiceUploadTimeout(t *testing.T) {
	repo := newStubRepository()
	repo.createBlock = make(chan struct{})
	defer close(repo.createBlock)
	svc := newTestService(t, repo, 20*time.Millisecond)

	_, err := svc.Upload(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServiceUploadTimeoutRollsBack(t *testing.T) {
	repo := newStubRepository()
	repo.createDelay = 100 * time.Millisecond
	repo.deletes = make(chan string, 1)
	svc := newTestService(t, repo, 20*time.Millisecond)

	_, err := svc.Upload(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrUnavailable)

	select {
	case <-repo.deletes:
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned upload was not rolled back")
	}

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestServiceUploadAsync(t *testing.T) {
	svc := newTestService(t, newStubRepository(), time.Second)

	c := <-svc.UploadAsync(context.Background(), validRequest())
	require.NoError(t, c.Err)
	assert.NotEmpty(t, c.Token)
}

func TestServiceFindByTokenNotFound(t *testing.T) {
	svc := newTestService(t, newStubRepository(), time.Second)

	_, err := svc.FindByToken(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceFindByTokenStorageFailure(t *testing.T) {
	repo := newStubRepository()
	repo.findErr = errors.New("connection reset")
	svc := newTestService(t, repo, time.Second)

	_, err := svc.FindByToken(context.Background(), "any")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestServiceFilesMetaData(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newStubRepository(), time.Second)

	token, err := svc.Upload(ctx, validRequest())
	require.NoError(t, err)

	result, err := svc.FilesMetaData(ctx, []string{token, "missing", token})
	require.NoError(t, err)
	require.Len(t, result.Files, 1)

	view := result.Files[token]
	assert.Equal(t, token, view.Token)
	assert.Equal(t, "a.txt", view.Name)
	assert.Equal(t, "text/plain", view.ContentType)
	assert.Equal(t, 3, view.Size)
	assert.JSONEq(t, `{"k":1}`, string(view.Meta))
	assert.Equal(t, "s", view.Source)
}

func TestServiceFilesMetaDataEmpty(t *testing.T) {
	svc := newTestService(t, newStubRepository(), time.Second)

	result, err := svc.FilesMetaData(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, result.Files)
	assert.Empty(t, result.Files)
}

func TestServiceDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newStubRepository(), time.Second)

	token, err := svc.Upload(ctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, token))

	_, err = svc.FindByToken(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, token), ErrNotFound)
}

func TestServiceConcurrentDeleteReportsOnce(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newStubRepository(), time.Second)

	token, err := svc.Upload(ctx, validRequest())
	require.NoError(t, err)

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.Delete(ctx, token) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestServiceDeleteAll(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newStubRepository(), time.Second)

	for i := 0; i < 3; i++ {
		_, err := svc.Upload(ctx, validRequest())
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteAll(ctx))

	records, err := svc.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestRecordMetaView(t *testing.T) {
	record := &Record{
		Token:   "t",
		Name:    "n",
		Content: []byte("abc\n"),
	}
	assert.Equal(t, 4, record.MetaView().Size)
}
