package detect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/banshee-data/parking.report/internal/httputil"
	"github.com/banshee-data/parking.report/internal/parking/engine"
)

// ErrNoImage is returned when a frame reaches the HTTP detector without
// pixels.
var ErrNoImage = errors.New("frame has no image")

// Response is the body expected from the inference service.
type Response struct {
	Detections []engine.Detection `json:"detections"`
}

// HTTPDetector posts each frame as a JPEG to an inference endpoint.
type HTTPDetector struct {
	url     string
	client  httputil.HTTPClient
	quality int
}

// NewHTTPDetector returns a detector for url. quality <= 0 uses 85.
func NewHTTPDetector(url string, client httputil.HTTPClient, quality int) *HTTPDetector {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &HTTPDetector{url: url, client: client, quality: quality}
}

// Detect implements engine.Detector.
func (d *HTTPDetector) Detect(ctx context.Context, frame engine.Frame) ([]engine.Detection, error) {
	if frame.Image == nil {
		return nil, ErrNoImage
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", frame.Seq, err)
	}
	var resp Response
	if err := httputil.Post(ctx, d.client, d.url, "image/jpeg", buf.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("detect frame %d: %w", frame.Seq, err)
	}
	return resp.Detections, nil
}
