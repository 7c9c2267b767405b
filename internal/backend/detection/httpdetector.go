package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/samber/lo"
)

const maxErrorBodyBytes = 512

// UnknownClass marks a detection whose class could not be resolved; it never counts as a target
const UnknownClass = -1

// inferenceResponse is the body returned by the model server
type inferenceResponse struct {
	Detections []inferenceDetection `json:"detections"`
	Error      string               `json:"error,omitempty"`
}

// inferenceDetection allows the server to omit either class_id or class
type inferenceDetection struct {
	Box        Box     `json:"box"`
	ClassID    *int    `json:"class_id"`
	ClassName  string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// HTTPDetector sends frames to a model server that wraps the pre-trained weights.
type HTTPDetector struct {
	endpoint            string
	client              *http.Client
	classNames          []string
	confidenceThreshold float64
}

// HTTPDetectorOption customizes an HTTPDetector
type HTTPDetectorOption func(*HTTPDetector)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) HTTPDetectorOption {
	return func(d *HTTPDetector) {
		d.client = client
	}
}

// WithClassNames sets the names used for detections the server returns without a class name
func WithClassNames(names []string) HTTPDetectorOption {
	return func(d *HTTPDetector) {
		d.classNames = names
	}
}

// WithConfidenceThreshold drops detections scoring below threshold
func WithConfidenceThreshold(threshold float64) HTTPDetectorOption {
	return func(d *HTTPDetector) {
		d.confidenceThreshold = threshold
	}
}

// NewHTTPDetector creates a detector for the model server at endpoint
func NewHTTPDetector(endpoint string, opts ...HTTPDetectorOption) (*HTTPDetector, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("detector endpoint must not be empty")
	}
	d := &HTTPDetector{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Detect uploads frame as multipart field "image" and decodes the detections in the reply
func (d *HTTPDetector) Detect(ctx context.Context, frame []byte) ([]Detection, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "frame")
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart body: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return nil, fmt.Errorf("failed to write frame to multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("inference server returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("inference server error: %s", result.Error)
	}

	detections := lo.FilterMap(result.Detections, func(raw inferenceDetection, _ int) (Detection, bool) {
		if raw.Confidence < d.confidenceThreshold {
			return Detection{}, false
		}
		return d.resolveClass(raw), true
	})

	slog.Debug("inference completed",
		"endpoint", d.endpoint,
		"duration_ms", time.Since(start).Milliseconds(),
		"raw_detections", len(result.Detections),
		"kept_detections", len(detections))

	return detections, nil
}

// resolveClass fills the class name from the id or the id from the name, using the configured class names
func (d *HTTPDetector) resolveClass(raw inferenceDetection) Detection {
	det := Detection{
		Box:        raw.Box,
		ClassID:    UnknownClass,
		ClassName:  raw.ClassName,
		Confidence: raw.Confidence,
	}
	switch {
	case raw.ClassID != nil:
		det.ClassID = *raw.ClassID
		if det.ClassName == "" && det.ClassID >= 0 && det.ClassID < len(d.classNames) {
			det.ClassName = d.classNames[det.ClassID]
		}
	case raw.ClassName != "":
		det.ClassID = lo.IndexOf(d.classNames, raw.ClassName)
	}
	return det
}
