package adapter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"

	"github.com/disintegration/imaging"

	"github.com/amishk599/nutrilens/internal/model"
)

const (
	defaultDetectorMaxDimension = 640
	detectorJPEGQuality         = 90
)

// detectResponse is the inference service response: one entry per frame.
type detectResponse struct {
	Frames []model.Frame `json:"frames"`
}

// HTTPDetector sends images to a remote object-detection service.
type HTTPDetector struct {
	url          string
	maxDimension int
	client       *http.Client
}

// NewHTTPDetector creates a detector client. Images are shrunk so their
// longest side is at most maxDimension before upload (<= 0 selects 640).
func NewHTTPDetector(url string, maxDimension int, client *http.Client) *HTTPDetector {
	if maxDimension <= 0 {
		maxDimension = defaultDetectorMaxDimension
	}
	return &HTTPDetector{
		url:          url,
		maxDimension: maxDimension,
		client:       client,
	}
}

// Detect uploads img as JPEG and returns the detections per frame.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]model.Frame, error) {
	body, contentType, err := d.encode(img)
	if err != nil {
		return nil, fmt.Errorf("detector encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, body)
	if err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}

	var dr detectResponse
	if err := decodeJSON(resp.Body, &dr); err != nil {
		return nil, fmt.Errorf("detector response: %w", err)
	}
	return dr.Frames, nil
}

// encode fits img into the detector's input box (never upscaling) and writes
// it as a multipart "file" field.
func (d *HTTPDetector) encode(img image.Image) (*bytes.Buffer, string, error) {
	b := img.Bounds()
	if b.Dx() > d.maxDimension || b.Dy() > d.maxDimension {
		img = imaging.Fit(img, d.maxDimension, d.maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, "", err
	}
	if err := imaging.Encode(part, img, imaging.JPEG, imaging.JPEGQuality(detectorJPEGQuality)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
