package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facepass/internal/access"
	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/descriptor"
	"github.com/kozaktomas/facepass/internal/web"
	"github.com/kozaktomas/facepass/internal/web/handlers"
)

const (
	sessionPurgeSchedule = "@every 1h"
	indexSaveSchedule    = "@every 15m"
	shutdownTimeout      = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the FacePass HTTP API.
Terminals post captures to /api/v1/access/attempts; managers sign in to
approve users, browse the access log and read notifications.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// pingFunc adapts a health function to handlers.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// startMaintenance schedules session purging and periodic index saves.
func startMaintenance(a *app) *cron.Cron {
	c := cron.New()
	logger := a.logger

	_, err := c.AddFunc(sessionPurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := a.sessions.PurgeExpiredSessions(ctx)
		if err != nil {
			logger.WithError(err).Warn("failed to purge expired sessions")
			return
		}
		if n > 0 {
			logger.WithField("removed", n).Info("purged expired sessions")
		}
	})
	if err != nil {
		logger.WithError(err).Error("failed to schedule session purge")
	}

	if a.cfg.Database.HNSWIndexPath != "" {
		if _, err := c.AddFunc(indexSaveSchedule, func() { saveHNSWIndex(logger) }); err != nil {
			logger.WithError(err).Error("failed to schedule index save")
		}
	}

	c.Start()
	return c
}

// galleryLister lists enrolled descriptors.
type galleryLister interface {
	ListDescriptors(ctx context.Context) ([]database.StoredDescriptor, error)
}

// checkDescriptorDims refuses a model whose descriptors cannot have length
// dim, since every access attempt would then end in a system error. Stored
// descriptors of another length only warn: those users must re-enroll.
func checkDescriptorDims(ctx context.Context, logger *logrus.Logger, gallery galleryLister, model string, dim int) error {
	if err := descriptor.CheckModelDim(model, dim); err != nil {
		return fmt.Errorf("face service configuration: %w", err)
	}

	stored, err := gallery.ListDescriptors(ctx)
	if err != nil {
		logger.WithError(err).Warn("could not check stored descriptor lengths")
		return nil
	}
	mismatched := 0
	for i := range stored {
		if len(stored[i].Descriptor) != dim {
			mismatched++
		}
	}
	if mismatched > 0 {
		logger.WithFields(logrus.Fields{
			"mismatched": mismatched,
			"enrolled":   len(stored),
			"dim":        dim,
		}).Error("enrolled descriptors do not match DESCRIPTOR_DIM, those users are denied until they re-enroll")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, appOptions{hnsw: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := checkDescriptorDims(ctx, a.logger, a.descriptors, a.faceClient.Model(), a.cfg.Recognition.DescriptorDim); err != nil {
		return err
	}

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}
	if a.cfg.Web.SessionSecret == "" {
		a.logger.Warn("WEB_SESSION_SECRET is not set, using the development secret")
	}
	if a.cfg.Access.DeviceToken == "" {
		a.logger.Warn("ACCESS_DEVICE_TOKEN is not set, access attempts are accepted from anyone")
	}

	broadcaster := access.NewBroadcaster()
	recorder := a.newRecorder(false)
	orchestrator := a.newOrchestrator(recorder, broadcaster)

	server := web.NewServer(a.cfg, web.Dependencies{
		Identity:      a.identity,
		Processor:     orchestrator,
		Broadcaster:   broadcaster,
		Extractor:     a.extractor,
		Index:         a.descriptorRepo,
		Users:         a.users,
		Descriptors:   a.descriptors,
		Registers:     a.registers,
		Notifications: a.notifications,
		Dashboard:     a.dashboard,
		Sessions:      a.sessions,
		HealthChecks: map[string]handlers.Pinger{
			"database":     a.pool,
			"face_service": pingFunc(a.faceClient.Health),
		},
		Logger: a.logger,
	})

	scheduler := startMaintenance(a)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigChan
		a.logger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Error("error during shutdown")
		}
		<-scheduler.Stop().Done()
		recorder.Close()
		saveHNSWIndex(a.logger)
	}()

	a.logger.WithFields(logrus.Fields{
		"addr":      a.cfg.Web.Addr(),
		"tolerance": a.cfg.Recognition.Tolerance,
		"dim":       a.cfg.Recognition.DescriptorDim,
	}).Info("FacePass API listening")
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-done
	return nil
}
