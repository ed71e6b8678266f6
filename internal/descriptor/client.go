package descriptor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/kozaktomas/facepass/internal/metrics"
)

const (
	defaultFaceServiceURL   = "http://localhost:8000"
	defaultFaceServiceModel = "buffalo_l"
	defaultTimeout          = 30 * time.Second
	defaultBreakerFailures  = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// FaceDetection represents a single detected face.
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint.
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// ClientOptions configures a FaceClient.
type ClientOptions struct {
	BaseURL         string
	Model           string
	Timeout         time.Duration
	BreakerFailures int           // consecutive failures that open the breaker
	BreakerCooldown time.Duration // time the breaker stays open
	Logger          *logrus.Logger
}

// FaceClient calls the face embedding service. Calls go through a circuit
// breaker so a dead service fails fast instead of stalling every attempt.
type FaceClient struct {
	baseURL string
	model   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewFaceClient creates a new face service client.
func NewFaceClient(opts ClientOptions) *FaceClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultFaceServiceURL
	}
	if opts.Model == "" {
		opts.Model = defaultFaceServiceModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = defaultBreakerFailures
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = defaultBreakerCooldown
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	failures := uint32(opts.BreakerFailures) //nolint:gosec // validated positive above
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "face-service",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A caller giving up says nothing about the service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("face service circuit breaker state changed")
		},
	})

	return &FaceClient{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		model:   opts.Model,
		client:  &http.Client{Timeout: opts.Timeout},
		breaker: breaker,
	}
}

// Model returns the model name reported to the descriptor store.
func (c *FaceClient) Model() string {
	return c.model
}

// DetectFaces detects faces and computes their descriptors.
func (c *FaceClient) DetectFaces(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	start := time.Now()
	out, err := c.breaker.Execute(func() (any, error) {
		body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
		if err != nil {
			return nil, err
		}
		var faceResp FaceResponse
		if err := json.Unmarshal(body, &faceResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return &faceResp, nil
	})
	metrics.ObserveFaceService(err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("face service: %w", err)
	}
	resp, ok := out.(*FaceResponse)
	if !ok {
		return nil, fmt.Errorf("face service: unexpected result type %T", out)
	}
	if resp.Model == "" {
		resp.Model = c.model
	}
	return resp, nil
}

// Health checks that the face service answers.
func (c *FaceClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// postMultipartImage posts JPEG image data as the "file" form field.
func (c *FaceClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="capture.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
