package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the webp decoder with image.Decode

	"github.com/amishk599/nutrilens/internal/model"
)

// DefaultMaxUploadBytes caps upload request bodies when no limit is configured.
const DefaultMaxUploadBytes = 10 << 20

// DefaultAllowedMIMETypes are the image types accepted for upload.
var DefaultAllowedMIMETypes = []string{"image/jpeg", "image/png", "image/webp"}

type errorResponse struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	JobID string `json:"job_id"`
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	jobs           JobService
	maxUploadBytes int64
	allowed        []string
	logger         *slog.Logger
}

// NewHandlers creates handlers over jobs. Zero values select the defaults.
func NewHandlers(jobs JobService, maxUploadBytes int64, allowed []string, logger *slog.Logger) *Handlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedMIMETypes
	}
	return &Handlers{jobs: jobs, maxUploadBytes: maxUploadBytes, allowed: allowed, logger: logger}
}

// Upload handles POST /upload.
// It validates and decodes the image synchronously, then hands it to the job
// manager and answers 202 with the job id.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.httpError(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.httpError(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.httpError(w, "reading upload failed", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		h.httpError(w, "empty file", http.StatusBadRequest)
		return
	}

	mimeType := http.DetectContentType(data)
	if !slices.Contains(h.allowed, mimeType) {
		h.httpError(w, "unsupported media type "+mimeType, http.StatusUnsupportedMediaType)
		return
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		h.logger.Debug("image decode failed", "mime", mimeType, "error", err)
		h.httpError(w, "could not decode image", http.StatusBadRequest)
		return
	}

	id, err := h.jobs.Submit(img)
	if err != nil {
		if errors.Is(err, model.ErrBusy) {
			w.Header().Set("Retry-After", "1")
			h.httpError(w, "server busy, retry later", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("submitting job failed", "error", err)
		h.httpError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusAccepted, uploadResponse{JobID: id})
}

// Result handles GET /result/{job_id}.
func (h *Handlers) Result(w http.ResponseWriter, r *http.Request) {
	view, err := h.jobs.Poll(r.PathValue("job_id"))
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			h.httpError(w, "job not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if view.Status == model.StatusError {
		status = http.StatusInternalServerError
	}
	h.respondJSON(w, status, view)
}

// Health is a liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.logger.Warn("writing response failed", "error", err)
		}
	}
}

func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJSON(w, code, errorResponse{Error: message})
}
