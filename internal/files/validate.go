package files

import (
	"encoding/json"
	"fmt"
	"strings"
)

const validationFailedMessage = "Validation failed"

// ValidationError carries every rule an upload request violated.
type ValidationError struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Errors, "; "))
}

// Validate checks an upload request. All rules are evaluated, so the
// returned error lists every violation in a fixed order. It returns nil
// when the request is valid.
func Validate(req *UploadRequest) *ValidationError {
	var errs []string

	if isBlank(req.Name) {
		errs = append(errs, "Name cannot be empty or null")
	}
	if isBlank(req.ContentType) {
		errs = append(errs, "File content type cannot be empty or null")
	}
	if isBlank(req.Source) {
		errs = append(errs, "Source cannot be empty or null")
	}
	if len(req.Content) == 0 {
		errs = append(errs, "File is missing")
	}
	if req.DeclaredType != req.ContentType {
		errs = append(errs, fmt.Sprintf(
			"File content type mismatch. Actual %s, but provided %s", req.DeclaredType, req.ContentType))
	}
	if !json.Valid([]byte(req.Meta)) {
		errs = append(errs, "Meta is not in JSON format")
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Message: validationFailedMessage, Errors: errs}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
