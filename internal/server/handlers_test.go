package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/nutrilens/internal/model"
)

type fakeJobs struct {
	mu        sync.Mutex
	submitted []image.Image
	submitErr error
	views     map[string]model.JobView
}

func (f *fakeJobs) Submit(img image.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, img)
	return "job-123", nil
}

func (f *fakeJobs) Poll(id string) (model.JobView, error) {
	v, ok := f.views[id]
	if !ok {
		return model.JobView{}, model.ErrJobNotFound
	}
	return v, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "meal.bin")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, h http.Handler, path, field string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, data)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestUpload_Accepted(t *testing.T) {
	jobs := &fakeJobs{}
	h := NewHandler(jobs, Options{}, testLogger())

	for _, path := range []string{"/upload", "/upload/"} {
		rec := doUpload(t, h, path, "file", pngBytes(t, 8, 4))

		require.Equal(t, http.StatusAccepted, rec.Code, path)
		var resp uploadResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "job-123", resp.JobID)
	}

	require.Len(t, jobs.submitted, 2)
	assert.Equal(t, 8, jobs.submitted[0].Bounds().Dx())
	assert.Equal(t, 4, jobs.submitted[0].Bounds().Dy())
}

func TestUpload_ClientErrors(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		data       []byte
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing field",
			field:      "image",
			data:       []byte("whatever"),
			wantStatus: http.StatusBadRequest,
			wantError:  "missing file field",
		},
		{
			name:       "empty file",
			field:      "file",
			data:       nil,
			wantStatus: http.StatusBadRequest,
			wantError:  "empty file",
		},
		{
			name:       "plain text",
			field:      "file",
			data:       []byte("definitely not an image"),
			wantStatus: http.StatusUnsupportedMediaType,
			wantError:  "unsupported media type text/plain; charset=utf-8",
		},
		{
			name:       "gif not allowed",
			field:      "file",
			data:       []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00"),
			wantStatus: http.StatusUnsupportedMediaType,
			wantError:  "unsupported media type image/gif",
		},
		{
			name:       "truncated jpeg",
			field:      "file",
			data:       []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'},
			wantStatus: http.StatusBadRequest,
			wantError:  "could not decode image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &fakeJobs{}
			h := NewHandler(jobs, Options{}, testLogger())

			rec := doUpload(t, h, "/upload", tt.field, tt.data)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decodeError(t, rec))
			assert.Empty(t, jobs.submitted, "rejected uploads never reach the pipeline")
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	jobs := &fakeJobs{}
	h := NewHandler(jobs, Options{MaxUploadBytes: 1024}, testLogger())

	rec := doUpload(t, h, "/upload", "file", bytes.Repeat([]byte{0x89}, 4096))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, jobs.submitted)
}

func TestUpload_Busy(t *testing.T) {
	h := NewHandler(&fakeJobs{submitErr: model.ErrBusy}, Options{}, testLogger())

	rec := doUpload(t, h, "/upload", "file", pngBytes(t, 2, 2))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestUpload_SubmitFailure(t *testing.T) {
	h := NewHandler(&fakeJobs{submitErr: errors.New("store broken")}, Options{}, testLogger())

	rec := doUpload(t, h, "/upload", "file", pngBytes(t, 2, 2))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeError(t, rec))
}

func TestUpload_RateLimited(t *testing.T) {
	h := NewHandler(&fakeJobs{}, Options{RateLimit: 0.001, Burst: 1}, testLogger())

	first := doUpload(t, h, "/upload", "file", pngBytes(t, 2, 2))
	second := doUpload(t, h, "/upload", "file", pngBytes(t, 2, 2))

	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestResult(t *testing.T) {
	jobs := &fakeJobs{views: map[string]model.JobView{
		"p": {Status: model.StatusProcessing},
		"d": {
			Status:        model.StatusDone,
			FoodsDetected: []string{"apple"},
			NutritionInfo: map[string]model.NutrientRecord{
				"apple": {Calories: model.Known(52), Protein: model.Unknown(), Carbs: model.Known(14), Fat: model.Known(0.2)},
			},
		},
		"empty": {Status: model.StatusDone},
		"e":     {Status: model.StatusError, Message: "detection failed: timeout"},
	}}
	h := NewHandler(jobs, Options{}, testLogger())

	tests := []struct {
		id         string
		wantStatus int
		wantBody   string
	}{
		{"p", http.StatusOK, `{"status":"processing"}`},
		{"d", http.StatusOK, `{"status":"done","foods_detected":["apple"],"nutrition_info":{"apple":{"calories":52,"protein":"Unknown","carbs":14,"fat":0.2}}}`},
		{"empty", http.StatusOK, `{"status":"done","foods_detected":[],"nutrition_info":{}}`},
		{"e", http.StatusInternalServerError, `{"status":"error","message":"detection failed: timeout"}`},
		{"nope", http.StatusNotFound, `{"error":"job not found"}`},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/result/"+tt.id, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("nutrilens_jobs_submitted_total 1\n"))
	})
	h := NewHandler(&fakeJobs{}, Options{Metrics: metrics}, testLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nutrilens_jobs_submitted_total")
}

func TestMetricsDisabled(t *testing.T) {
	h := NewHandler(&fakeJobs{}, Options{}, testLogger())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpload_WrongMethod(t *testing.T) {
	h := NewHandler(&fakeJobs{}, Options{}, testLogger())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
