package access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/metrics"
)

// ErrRecorderClosed is returned by Record after Close.
var ErrRecorderClosed = errors.New("access recorder closed")

const (
	defaultRecorderWorkers = 2
	defaultRecorderQueue   = 256
	defaultWriteTimeout    = 10 * time.Second
	defaultMaxRetries      = 4
)

// AccessLog persists access registers.
type AccessLog interface {
	SaveRegister(ctx context.Context, register *database.AccessRegister) (int64, error)
}

// Notifier alerts managers about denied attempts.
type Notifier interface {
	NotifyDenied(ctx context.Context, d *Decision, registerID, recipientID int64) error
}

// Entry is one attempt waiting to be written.
type Entry struct {
	Decision    Decision
	Register    database.AccessRegister
	RecipientID int64
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Workers      int
	QueueSize    int
	Sync         bool // write inside Record instead of on the worker pool
	WriteTimeout time.Duration
	MaxRetries   uint64
	Logger       *logrus.Logger
}

// Recorder writes access registers and denial notifications. In async mode
// a bounded queue feeds a worker pool; when the queue is full Record writes
// synchronously so attempts are never dropped silently.
type Recorder struct {
	log      AccessLog
	notifier Notifier
	opts     RecorderOptions
	logger   *logrus.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	wg     sync.WaitGroup

	newBackOff func() backoff.BackOff
}

// NewRecorder creates a recorder. notifier may be nil.
func NewRecorder(log AccessLog, notifier Notifier, opts RecorderOptions) *Recorder {
	if opts.Workers <= 0 {
		opts.Workers = defaultRecorderWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultRecorderQueue
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := &Recorder{
		log:      log,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	if !opts.Sync {
		r.queue = make(chan Entry, opts.QueueSize)
		for range opts.Workers {
			r.wg.Add(1)
			go r.worker()
		}
	}
	return r
}

// Record writes the entry, or queues it in async mode.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}

	if r.queue != nil {
		select {
		case r.queue <- e:
			metrics.SetRecorderQueue(len(r.queue))
			return nil
		default:
			r.logger.WithField("attempt_id", e.Decision.AttemptID).Warn("recorder queue full, writing synchronously")
		}
	}
	return r.write(ctx, e)
}

// Close stops accepting entries and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.queue != nil {
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for e := range r.queue {
		metrics.SetRecorderQueue(len(r.queue))
		// Request contexts are gone by now; each write gets its own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.WriteTimeout)
		if err := r.write(ctx, e); err != nil {
			r.logger.WithField("attempt_id", e.Decision.AttemptID).WithError(err).Error("failed to record access attempt")
		}
		cancel()
	}
}

// write saves the register with retries, then notifies on denial.
func (r *Recorder) write(ctx context.Context, e Entry) error {
	reg := e.Register
	var registerID int64
	op := func() error {
		id, err := r.log.SaveRegister(ctx, &reg)
		if err != nil {
			return err
		}
		registerID = id
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.opts.MaxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		r.logger.WithFields(logrus.Fields{
			"attempt_id": e.Decision.AttemptID,
			"retry_in":   wait,
		}).WithError(err).Debug("retrying access register write")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		metrics.IncRecorderFailures()
		return fmt.Errorf("save register: %w", err)
	}

	if r.notifier == nil || !e.Decision.ShouldNotify() {
		return nil
	}
	if err := r.notifier.NotifyDenied(ctx, &e.Decision, registerID, e.RecipientID); err != nil {
		return fmt.Errorf("notify denial: %w", err)
	}
	return nil
}
