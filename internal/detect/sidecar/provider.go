// Package sidecar implements models.Detector against an HTTP inference
// server that holds the actual weights. The worker and the sidecar share the
// model volume; the worker only checks the weights path and streams frames.
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gmanfredi/framewatch/pkg/models"
)

// Sentinel errors for sidecar failures.
var (
	ErrUnreachable     = errors.New("inference sidecar unreachable")
	ErrInferenceFailed = errors.New("inference request failed")
	ErrTimeout         = errors.New("inference timeout")
)

const jpegQuality = 90

// Provider implements models.Detector using the sidecar's HTTP API.
type Provider struct {
	baseURL   string
	modelPath string
	client    *http.Client
}

// NewProvider creates a new sidecar detector client.
func NewProvider(baseURL, modelPath string, timeout time.Duration) *Provider {
	return &Provider{
		baseURL:   baseURL,
		modelPath: modelPath,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "sidecar" }

// Detect posts one JPEG-encoded frame and returns the raw boxes.
func (p *Provider) Detect(ctx context.Context, frame *models.Frame, opts models.DetectOptions) ([]models.RawBox, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	params := url.Values{
		"model":  {p.modelPath},
		"conf":   {strconv.FormatFloat(opts.Confidence, 'f', -1, 64)},
		"iou":    {strconv.FormatFloat(opts.IoU, 'f', -1, 64)},
		"device": {opts.Device},
	}
	u := fmt.Sprintf("%s/v1/detect?%s", p.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "image/jpeg")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrInferenceFailed, resp.StatusCode)
	}

	var body struct {
		Boxes []models.RawBox `json:"boxes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding detect response: %w", err)
	}
	return body.Boxes, nil
}

// ClassNames fetches the model's ordered class list from the metadata
// endpoint. Called once at model load.
func (p *Provider) ClassNames(ctx context.Context) ([]string, error) {
	params := url.Values{"model": {p.modelPath}}
	u := fmt.Sprintf("%s/v1/model?%s", p.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrInferenceFailed, resp.StatusCode)
	}

	var body struct {
		Classes []string `json:"classes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding model metadata: %w", err)
	}
	return body.Classes, nil
}

// classifyError maps transport errors to sentinel errors.
func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

var _ models.Detector = (*Provider)(nil)
