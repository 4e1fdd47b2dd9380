package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavel-fokin/token-stash/internal/files"
	"github.com/pavel-fokin/token-stash/internal/logging"
)

// Not-found tokens are answered with 400 to stay wire-compatible with
// existing clients.
const statusTokenNotFound = http.StatusBadRequest

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func uploadFile(fileService *files.Service, logger *slog.Logger, maxMemory int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadReq, err := parseUpload(r, maxMemory)
		if err != nil {
			if isTooLarge(err) {
				writeText(w, http.StatusRequestEntityTooLarge, "Request entity too large")
				return
			}
			// A malformed form is reported through validation below.
			logger.Debug("Failed to parse multipart form", "error", err)
		}

		token, err := fileService.Upload(r.Context(), uploadReq)
		if err != nil {
			var verr *files.ValidationError
			if errors.As(err, &verr) {
				writeJSON(w, logger, http.StatusBadRequest, verr)
				return
			}
			logging.Critical(r.Context(), logger, "An error occurred during file upload", err, "name", uploadReq.Name)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, logger, http.StatusCreated, map[string]string{"token": token})
	}
}

// parseUpload reads the multipart upload. Missing fields are left blank so
// validation can report all of them together.
func parseUpload(r *http.Request, maxMemory int64) (*files.UploadRequest, error) {
	req := &files.UploadRequest{}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		// The multipart reader does not wrap the body error, but a limited
		// body that overflowed keeps reporting *http.MaxBytesError.
		if _, rerr := r.Body.Read(make([]byte, 1)); isTooLarge(rerr) {
			return req, rerr
		}
		return req, err
	}
	defer r.MultipartForm.RemoveAll()

	req.Name = r.PostFormValue("name")
	req.ContentType = r.PostFormValue("fileContentType")
	req.Meta = r.PostFormValue("meta")
	req.Source = r.PostFormValue("source")
	if values, ok := r.PostForm["expireTime"]; ok && len(values) > 0 {
		expireTime := values[0]
		req.ExpireTime = &expireTime
	}

	file, header, err := r.FormFile("content")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return req, nil
		}
		return req, err
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return req, fmt.Errorf("failed to read content: %w", err)
	}
	req.Content = content
	req.DeclaredType = header.Header.Get("Content-Type")

	return req, nil
}

func filesMetaData(fileService *files.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tokens []string `json:"tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if isTooLarge(err) {
				writeText(w, http.StatusRequestEntityTooLarge, "Request entity too large")
				return
			}
			writeText(w, http.StatusBadRequest, "Malformed request body")
			return
		}

		result, err := fileService.FilesMetaData(r.Context(), body.Tokens)
		if err != nil {
			logging.Critical(r.Context(), logger, "An error occurred during getting files metas", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, logger, http.StatusOK, result)
	}
}

func getFile(fileService *files.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		record, err := fileService.FindByToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, files.ErrNotFound) {
				writeText(w, statusTokenNotFound, fmt.Sprintf("File with token %s does not exist", token))
				return
			}
			logging.Critical(r.Context(), logger, "An error occurred during getting file by token", err, "token", token)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("X-Filename", record.Name)
		w.Header().Set("X-Filesize", strconv.Itoa(len(record.Content)))
		w.Header().Set("X-CreateTime", record.CreationDate.Format(time.RFC3339Nano))
		w.Header().Set("Content-Type", record.ContentType)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(record.Content); err != nil {
			logger.Error("Failed to write file content", "error", err, "token", token)
		}
	}
}

func deleteFile(fileService *files.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		logger.Info("Deleting file", "token", token)

		err := fileService.Delete(r.Context(), token)
		if err != nil {
			if errors.Is(err, files.ErrNotFound) {
				writeText(w, statusTokenNotFound, fmt.Sprintf("File with token %s does not exist", token))
				return
			}
			logging.Critical(r.Context(), logger, "An error occurred during deleting file", err, "token", token)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		writeText(w, http.StatusOK, fmt.Sprintf("File with token %s has been deleted", token))
	}
}

func listFiles(fileService *files.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := fileService.List(r.Context())
		if err != nil {
			logging.Critical(r.Context(), logger, "An error occurred during getting all files", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, logger, http.StatusOK, records)
	}
}

func deleteAllFiles(fileService *files.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Info("Deleting all files")

		if err := fileService.DeleteAll(r.Context()); err != nil {
			logging.Critical(r.Context(), logger, "An error occurred during deleting all files", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, msg)
}

func isTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
