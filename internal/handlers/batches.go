package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"media-ingest/internal/logging"
	"media-ingest/internal/pipeline"
)

const (
	// ownerHeader identifies the submitting owner. There is no user account
	// system; callers supply an opaque owner id.
	ownerHeader = "X-Owner-ID"

	// maxBatchBytes caps an entire multipart request body. Individual file
	// limits are enforced later by validation.
	maxBatchBytes = 512 << 20

	// maxBatchFiles caps the file count per batch.
	maxBatchFiles = 50

	// multipartMemory is the in-memory threshold for multipart parsing;
	// larger parts spill to temp files.
	multipartMemory = 32 << 20
)

// batchResponse wraps the scheduler's summary for the API.
type batchResponse struct {
	OwnerID string `json:"ownerId"`
	*pipeline.BatchResult
}

// SubmitBatch accepts a multipart batch of image files under the "files"
// field and runs it through the pipeline synchronously. Form values
// "enableAi", "removeBackground", and "concurrency" tune the run.
func (h *Handlers) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(ownerHeader)
	if ownerID == "" {
		writeJSONError(w, "missing "+ownerHeader+" header", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, "batch exceeds maximum size", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "invalid multipart request: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logging.Warn("failed to remove multipart temp files: %v", err)
		}
	}()

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		writeJSONError(w, "no files submitted (use multipart field \"files\")", http.StatusBadRequest)
		return
	}
	if len(parts) > maxBatchFiles {
		writeJSONError(w, "too many files in batch", http.StatusBadRequest)
		return
	}

	files := make([]pipeline.BatchFile, 0, len(parts))
	for _, part := range parts {
		data, err := readPart(part)
		if err != nil {
			writeJSONError(w, "failed to read file "+part.Filename+": "+err.Error(), http.StatusBadRequest)
			return
		}
		files = append(files, pipeline.BatchFile{
			Name:         part.Filename,
			DeclaredMime: part.Header.Get("Content-Type"),
			Data:         data,
		})
	}

	opts := pipeline.Options{
		Concurrency:      h.concurrency,
		EnableAI:         formBool(r, "enableAi", true),
		RemoveBackground: formBool(r, "removeBackground", false),
	}
	if v := r.FormValue("concurrency"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Concurrency = n
		}
	}

	result, err := h.scheduler.Submit(r.Context(), ownerID, files, opts)
	if err != nil {
		logging.Error("batch submission for %s failed: %v", ownerID, err)
		writeJSONError(w, "batch submission failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, batchResponse{OwnerID: ownerID, BatchResult: result})
}

func readPart(part *multipart.FileHeader) ([]byte, error) {
	f, err := part.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close multipart file %s: %v", part.Filename, err)
		}
	}()
	return io.ReadAll(f)
}

func formBool(r *http.Request, key string, defaultValue bool) bool {
	v := r.FormValue(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}
