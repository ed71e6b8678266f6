package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facepass/internal/database/mock"
	"github.com/kozaktomas/facepass/internal/descriptor"
)

func bufferLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger, &buf
}

func TestCheckDescriptorDims(t *testing.T) {
	ctx := context.Background()

	t.Run("model disagrees with configured length", func(t *testing.T) {
		logger, _ := bufferLogger()
		err := checkDescriptorDims(ctx, logger, mock.NewMockDescriptorStore(), "buffalo_l", 128)
		if !errors.Is(err, descriptor.ErrUnexpectedDimension) {
			t.Errorf("expected ErrUnexpectedDimension, got %v", err)
		}
	})

	t.Run("matching configuration", func(t *testing.T) {
		logger, buf := bufferLogger()
		store := mock.NewMockDescriptorStore()
		store.AddDescriptor(1, make([]float32, 512))
		if err := checkDescriptorDims(ctx, logger, store, "buffalo_l", 512); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("expected no log output, got %s", buf.String())
		}
	})

	t.Run("stored descriptors of another length", func(t *testing.T) {
		logger, buf := bufferLogger()
		store := mock.NewMockDescriptorStore()
		store.AddDescriptor(1, make([]float32, 512))
		store.AddDescriptor(2, make([]float32, 128))
		if err := checkDescriptorDims(ctx, logger, store, "buffalo_l", 512); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), `"mismatched":1`) {
			t.Errorf("expected mismatch to be logged, got %s", buf.String())
		}
	})
}
