package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facepass/internal/access"
	"github.com/kozaktomas/facepass/internal/config"
	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/database/postgres"
	"github.com/kozaktomas/facepass/internal/descriptor"
	"github.com/kozaktomas/facepass/internal/facematch"
	"github.com/kozaktomas/facepass/internal/identity"
	"github.com/kozaktomas/facepass/internal/logging"
)

// app holds the wired services shared by the commands.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	closer io.Closer

	pool           *postgres.Pool
	descriptorRepo *postgres.DescriptorRepository
	descriptors    database.DescriptorWriter
	users          database.UserWriter
	registers      database.RegisterWriter
	notifications  database.NotificationWriter
	managers       database.ManagerWriter
	dashboard      database.DashboardReader
	sessions       database.SessionStore

	faceClient *descriptor.FaceClient
	extractor  *descriptor.Extractor
	matcher    *facematch.Matcher
	identity   *identity.Service
}

// appOptions selects the optional parts of the bootstrap.
type appOptions struct {
	hnsw bool // build or load the nearest-identity index
}

// newApp loads configuration, sets up logging, connects to PostgreSQL and
// wires the repositories and services.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg := config.Load()

	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	logger := logging.Logger()

	if cfg.Database.URL == "" {
		closer.Close()
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	logger.Debug("connecting to PostgreSQL")
	pool, err := postgres.Initialize(&cfg.Database, logger)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	descriptorRepo := postgres.NewDescriptorRepository(pool, logger)
	if opts.hnsw {
		initDescriptorHNSW(ctx, logger, descriptorRepo, cfg.Database.HNSWIndexPath)
	}
	database.RegisterHNSWRebuilder(descriptorRepo)

	cached := database.NewCachedDescriptorStore(descriptorRepo, cfg.Database.GalleryCacheTTL)
	postgres.RegisterBackend(pool, cached)

	a := &app{
		cfg:            cfg,
		logger:         logger,
		closer:         closer,
		pool:           pool,
		descriptorRepo: descriptorRepo,
	}
	if err := a.resolveRepositories(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.faceClient = descriptor.NewFaceClient(descriptor.ClientOptions{
		BaseURL:         cfg.FaceService.URL,
		Model:           cfg.FaceService.Model,
		Timeout:         cfg.FaceService.Timeout,
		BreakerFailures: cfg.FaceService.BreakerFailures,
		BreakerCooldown: cfg.FaceService.BreakerCooldown,
		Logger:          logger,
	})
	a.extractor = descriptor.NewExtractor(a.faceClient, cfg.Recognition.DescriptorDim, cfg.FaceService.MaxImageSide)
	a.matcher = facematch.NewMatcher(cfg.Recognition.Tolerance)
	a.identity = identity.NewService(identity.Config{
		Users:         a.users,
		Descriptors:   a.descriptors,
		Notifications: a.notifications,
		Managers:      a.managers,
		Extractor:     a.extractor,
		Matcher:       a.matcher,
		DescriptorDim: cfg.Recognition.DescriptorDim,
		Model:         a.faceClient.Model(),
		Logger:        logger,
	})
	return a, nil
}

func (a *app) resolveRepositories(ctx context.Context) error {
	var err error
	if a.descriptors, err = database.GetDescriptorWriter(ctx); err != nil {
		return err
	}
	if a.users, err = database.GetUserWriter(ctx); err != nil {
		return err
	}
	if a.registers, err = database.GetRegisterWriter(ctx); err != nil {
		return err
	}
	if a.notifications, err = database.GetNotificationWriter(ctx); err != nil {
		return err
	}
	if a.managers, err = database.GetManagerWriter(ctx); err != nil {
		return err
	}
	if a.dashboard, err = database.GetDashboardReader(ctx); err != nil {
		return err
	}
	if a.sessions, err = database.GetSessionStore(ctx); err != nil {
		return err
	}
	return nil
}

// newRecorder creates the access recorder. sync forces inline writes, which
// short-lived commands need so nothing is lost on exit.
func (a *app) newRecorder(sync bool) *access.Recorder {
	return access.NewRecorder(a.registers, access.NewManagerNotifier(a.notifications, a.managers), access.RecorderOptions{
		Workers:   a.cfg.Access.RecorderWorkers,
		QueueSize: a.cfg.Access.RecorderQueue,
		Sync:      sync || a.cfg.Access.SyncRecording,
		Logger:    a.logger,
	})
}

// newOrchestrator wires the access flow around recorder.
func (a *app) newOrchestrator(recorder *access.Recorder, broadcaster *access.Broadcaster) *access.Orchestrator {
	return access.NewOrchestrator(a.extractor, a.matcher, a.descriptors, a.users, recorder, broadcaster, access.Options{
		DefaultLocation: a.cfg.Access.DefaultLocation,
		TypeAccess:      a.cfg.Access.TypeAccess,
		StoreCaptures:   a.cfg.Access.StoreCaptures,
		RecipientID:     a.cfg.Access.NotifyManagerID,
		Logger:          a.logger,
	})
}

// Close releases the database pool and the log file.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.closer != nil {
		a.closer.Close()
	}
}

// initDescriptorHNSW builds or loads the nearest-identity index.
func initDescriptorHNSW(ctx context.Context, logger *logrus.Logger, repo *postgres.DescriptorRepository, indexPath string) {
	if indexPath != "" {
		logger.WithField("path", indexPath).Info("loading descriptor HNSW index")
	} else {
		logger.Info("building in-memory descriptor HNSW index")
	}
	if err := repo.EnableHNSW(ctx, indexPath); err != nil {
		logger.WithError(err).Warn("failed to build descriptor HNSW index, nearest queries will use PostgreSQL")
		return
	}
	logger.WithFields(logrus.Fields{"users": repo.HNSWCount(), "path": indexPath}).Info("descriptor HNSW index ready")
}

// saveHNSWIndex saves the nearest-identity index to disk if a path is configured.
func saveHNSWIndex(logger *logrus.Logger) {
	rebuilder := database.GetHNSWRebuilder()
	if rebuilder == nil || !rebuilder.IsHNSWEnabled() {
		return
	}
	if err := rebuilder.SaveHNSWIndex(); err != nil {
		logger.WithError(err).Warn("failed to save descriptor HNSW index")
		return
	}
	logger.Debug("descriptor HNSW index saved")
}
