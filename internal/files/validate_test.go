package files

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() *UploadRequest {
	return &UploadRequest{
		Name:         "a.txt",
		ContentType:  "text/plain",
		Meta:         `{"k":1}`,
		Source:       "s",
		Content:      []byte("hi"),
		DeclaredType: "text/plain",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(r *UploadRequest)
		expected []string
	}{
		{
			name:     "valid request",
			modify:   func(r *UploadRequest) {},
			expected: nil,
		},
		{
			name:     "blank name",
			modify:   func(r *UploadRequest) { r.Name = "   " },
			expected: []string{"Name cannot be empty or null"},
		},
		{
			name: "blank content type",
			modify: func(r *UploadRequest) {
				r.ContentType = ""
				r.DeclaredType = ""
			},
			expected: []string{"File content type cannot be empty or null"},
		},
		{
			name:     "blank source",
			modify:   func(r *UploadRequest) { r.Source = "" },
			expected: []string{"Source cannot be empty or null"},
		},
		{
			name:     "empty content",
			modify:   func(r *UploadRequest) { r.Content = nil },
			expected: []string{"File is missing"},
		},
		{
			name:     "content type mismatch",
			modify:   func(r *UploadRequest) { r.DeclaredType = "application/pdf" },
			expected: []string{"File content type mismatch. Actual application/pdf, but provided text/plain"},
		},
		{
			name:     "mismatch is exact, not prefix",
			modify:   func(r *UploadRequest) { r.DeclaredType = "text/plain; charset=utf-8" },
			expected: []string{"File content type mismatch. Actual text/plain; charset=utf-8, but provided text/plain"},
		},
		{
			name:     "invalid meta",
			modify:   func(r *UploadRequest) { r.Meta = "{not json" },
			expected: []string{"Meta is not in JSON format"},
		},
		{
			name:     "scalar meta is valid JSON",
			modify:   func(r *UploadRequest) { r.Meta = "42" },
			expected: nil,
		},
		{
			name:   "name blank and type mismatch",
			modify: func(r *UploadRequest) { r.Name = ""; r.DeclaredType = "image/png" },
			expected: []string{
				"Name cannot be empty or null",
				"File content type mismatch. Actual image/png, but provided text/plain",
			},
		},
		{
			name:   "everything missing",
			modify: func(r *UploadRequest) { *r = UploadRequest{} },
			expected: []string{
				"Name cannot be empty or null",
				"File content type cannot be empty or null",
				"Source cannot be empty or null",
				"File is missing",
				"Meta is not in JSON format",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.modify(req)

			verr := Validate(req)
			if tt.expected == nil {
				assert.Nil(t, verr)
				return
			}

			require.NotNil(t, verr)
			assert.Equal(t, "Validation failed", verr.Message)
			assert.Equal(t, tt.expected, verr.Errors)
		})
	}
}
