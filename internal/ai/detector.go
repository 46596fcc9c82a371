package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kdimtricp/vsearch/internal/models"
)

// HTTPDetector talks to a YOLO inference sidecar.
type HTTPDetector struct {
	endpoint      string
	client        *http.Client
	confThreshold float64
}

type yoloDetection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

type yoloResult struct {
	Detections  []yoloDetection `json:"detections"`
	ImageWidth  float64         `json:"image_width"`
	ImageHeight float64         `json:"image_height"`
}

func NewHTTPDetector(endpoint string, confThreshold float64, client *http.Client) *HTTPDetector {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if confThreshold <= 0 {
		confThreshold = 0.25
	}
	return &HTTPDetector{
		endpoint:      strings.TrimRight(endpoint, "/"),
		client:        client,
		confThreshold: confThreshold,
	}
}

func (d *HTTPDetector) Name() string { return "yolo" }

func (d *HTTPDetector) Detect(ctx context.Context, frame []byte) ([]models.Detection, error) {
	body, contentType, err := multipartImage("frame.jpg", frame, map[string]string{
		"conf_threshold": fmt.Sprintf("%.3f", d.confThreshold),
	})
	if err != nil {
		return nil, err
	}

	var result yoloResult
	if err := postJSON(ctx, d.client, "detector", d.endpoint+"/detect", body, contentType, &result); err != nil {
		return nil, err
	}

	detections := make([]models.Detection, 0, len(result.Detections))
	for _, det := range result.Detections {
		if len(det.BBox) != 4 || det.Class == "" {
			continue
		}
		box := normalizeBox(det.BBox, result.ImageWidth, result.ImageHeight)
		if !box.Valid() {
			continue
		}
		detections = append(detections, models.Detection{
			Label:      strings.ToLower(det.Class),
			BBox:       box,
			Confidence: det.Confidence,
		})
	}
	return detections, nil
}

// normalizeBox accepts either absolute pixel corners (when the image size is
// reported) or corners that are already relative.
func normalizeBox(b []float64, w, h float64) models.BBox {
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}
	return models.BBoxFromCorners(b[0], b[1], b[2], b[3], w, h)
}

func (d *HTTPDetector) Health(ctx context.Context) error {
	return getHealth(ctx, d.client, "detector", d.endpoint+"/health")
}

func multipartImage(filename string, data []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write image: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &b, w.FormDataContentType(), nil
}

func postJSON(ctx context.Context, client *http.Client, service, url string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Service: service, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", service, err)
	}
	return nil
}

func getHealth(ctx context.Context, client *http.Client, service, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", service, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Service: service, Code: resp.StatusCode}
	}
	return nil
}
