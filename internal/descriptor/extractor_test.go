package descriptor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// faceServer returns a fake face embedding service answering with resp.
func faceServer(t *testing.T, status int, resp FaceResponse) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/embed/face" {
			t.Errorf("path = %s, want /embed/face", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
		} else {
			file.Close()
			if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
				t.Errorf("part content type = %q, want image/jpeg", ct)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestExtractor_Extract(t *testing.T) {
	twoFaces := FaceResponse{
		FacesCount: 2,
		Faces: []FaceDetection{
			{FaceIndex: 0, Dim: 128, Embedding: descriptorOf(128, 0.1), BBox: []float64{10, 10, 30, 30}, DetScore: 0.8},
			{FaceIndex: 1, Dim: 128, Embedding: descriptorOf(128, 0.9), BBox: []float64{40, 10, 60, 30}, DetScore: 0.99},
		},
		Model: "buffalo_l",
	}

	server, _ := faceServer(t, http.StatusOK, twoFaces)
	client := NewFaceClient(ClientOptions{BaseURL: server.URL})
	extractor := NewExtractor(client, 128, 0)

	result, err := extractor.Extract(context.Background(), createTestPNG(t, 100, 50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Found() {
		t.Fatal("Found() = false, want true")
	}
	if len(result.Descriptor) != 128 {
		t.Errorf("len(Descriptor) = %d, want 128", len(result.Descriptor))
	}
	if result.Descriptor[0] != 0.1 {
		t.Errorf("Descriptor[0] = %v, want first face 0.1", result.Descriptor[0])
	}
	if result.FacesFound != 2 {
		t.Errorf("FacesFound = %d, want 2", result.FacesFound)
	}
	if result.Model != "buffalo_l" {
		t.Errorf("Model = %q, want buffalo_l", result.Model)
	}
	if result.BBox[0] != 0.1 || result.BBox[3] != 0.6 {
		t.Errorf("BBox = %v, want relative coordinates", result.BBox)
	}
	if result.CaptureHash == "" {
		t.Error("CaptureHash is empty")
	}
}

func TestExtractor_Extract_NoFace(t *testing.T) {
	server, _ := faceServer(t, http.StatusOK, FaceResponse{FacesCount: 0, Faces: []FaceDetection{}})
	extractor := NewExtractor(NewFaceClient(ClientOptions{BaseURL: server.URL}), 128, 0)

	result, err := extractor.Extract(context.Background(), createTestPNG(t, 40, 40))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Found() {
		t.Error("Found() = true, want false")
	}
	if result.Descriptor != nil {
		t.Errorf("Descriptor = %v, want nil", result.Descriptor)
	}
}

func TestExtractor_Extract_InvalidImage(t *testing.T) {
	server, calls := faceServer(t, http.StatusOK, FaceResponse{})
	extractor := NewExtractor(NewFaceClient(ClientOptions{BaseURL: server.URL}), 128, 0)

	_, err := extractor.Extract(context.Background(), []byte("not an image"))
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("error = %v, want ErrInvalidImage", err)
	}
	if calls.Load() != 0 {
		t.Errorf("face service called %d times, want 0", calls.Load())
	}
}

func TestExtractor_Extract_UnexpectedDimension(t *testing.T) {
	resp := FaceResponse{FacesCount: 1, Faces: []FaceDetection{{Embedding: descriptorOf(512, 0.1)}}}
	server, _ := faceServer(t, http.StatusOK, resp)
	extractor := NewExtractor(NewFaceClient(ClientOptions{BaseURL: server.URL}), 128, 0)

	_, err := extractor.Extract(context.Background(), createTestPNG(t, 40, 40))
	if !errors.Is(err, ErrUnexpectedDimension) {
		t.Fatalf("error = %v, want ErrUnexpectedDimension", err)
	}
}

func TestExtractor_Extract_ServiceError(t *testing.T) {
	server, _ := faceServer(t, http.StatusInternalServerError, FaceResponse{})
	extractor := NewExtractor(NewFaceClient(ClientOptions{BaseURL: server.URL}), 128, 0)

	_, err := extractor.Extract(context.Background(), createTestPNG(t, 40, 40))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrInvalidImage) {
		t.Error("service failure must not be reported as an invalid image")
	}
}

func TestFaceClient_BreakerOpens(t *testing.T) {
	server, calls := faceServer(t, http.StatusBadGateway, FaceResponse{})
	client := NewFaceClient(ClientOptions{
		BaseURL:         server.URL,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	})

	for range 4 {
		if _, err := client.DetectFaces(context.Background(), []byte{0xFF, 0xD8, 0xFF}); err == nil {
			t.Fatal("expected error")
		}
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("service called %d times, want 2 before the breaker opened", got)
	}
}

func TestFaceClient_CanceledCallsKeepBreakerClosed(t *testing.T) {
	resp := FaceResponse{FacesCount: 1, Faces: []FaceDetection{{Embedding: descriptorOf(128, 0.2)}}}
	server, _ := faceServer(t, http.StatusOK, resp)
	client := NewFaceClient(ClientOptions{
		BaseURL:         server.URL,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	})

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	for range 5 {
		if _, err := client.DetectFaces(canceled, []byte{0xFF, 0xD8, 0xFF}); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	}

	got, err := client.DetectFaces(context.Background(), []byte{0xFF, 0xD8, 0xFF})
	if err != nil {
		t.Fatalf("expected live call to reach the service, got %v", err)
	}
	if got.FacesCount != 1 {
		t.Errorf("expected 1 face, got %d", got.FacesCount)
	}
}

func TestExtractor_ExtractReaderAndFile(t *testing.T) {
	resp := FaceResponse{FacesCount: 1, Faces: []FaceDetection{{Embedding: descriptorOf(128, 0.3)}}}
	server, _ := faceServer(t, http.StatusOK, resp)
	extractor := NewExtractor(NewFaceClient(ClientOptions{BaseURL: server.URL}), 128, 0)
	data := createTestPNG(t, 40, 40)

	result, err := extractor.ExtractReader(context.Background(), bytes.NewReader(data))
	if err != nil || !result.Found() {
		t.Fatalf("ExtractReader = %+v, %v", result, err)
	}

	path := filepath.Join(t.TempDir(), "capture.png")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	result, err = extractor.ExtractFile(context.Background(), path)
	if err != nil || !result.Found() {
		t.Fatalf("ExtractFile = %+v, %v", result, err)
	}

	if _, err := extractor.ExtractFile(context.Background(), filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}
