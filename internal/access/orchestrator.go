package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/descriptor"
	"github.com/kozaktomas/facepass/internal/facematch"
	"github.com/kozaktomas/facepass/internal/metrics"
)

// Extractor produces the descriptor of a capture.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) (*descriptor.Result, error)
}

// Gallery lists every enrolled descriptor, ordered by user ID.
type Gallery interface {
	ListDescriptors(ctx context.Context) ([]database.StoredDescriptor, error)
}

// Directory resolves identities to their approval state.
type Directory interface {
	GetUser(ctx context.Context, id int64) (*database.User, error)
}

// Options configures an Orchestrator.
type Options struct {
	DefaultLocation string
	TypeAccess      string
	StoreCaptures   bool  // keep the raw capture with each register
	RecipientID     int64 // default manager to notify, 0 notifies all managers
	Logger          *logrus.Logger
}

// Orchestrator turns an Attempt into a Decision and hands it to the recorder.
// It holds no per-attempt state and is safe for concurrent use.
type Orchestrator struct {
	extractor   Extractor
	matcher     *facematch.Matcher
	gallery     Gallery
	directory   Directory
	recorder    *Recorder
	broadcaster *Broadcaster
	opts        Options
	logger      *logrus.Logger
	now         func() time.Time
}

// NewOrchestrator wires the collaborators of the access flow. broadcaster may be nil.
func NewOrchestrator(extractor Extractor, matcher *facematch.Matcher, gallery Gallery, directory Directory, recorder *Recorder, broadcaster *Broadcaster, opts Options) *Orchestrator {
	if opts.DefaultLocation == "" {
		opts.DefaultLocation = "Entrada Principal"
	}
	if opts.TypeAccess == "" {
		opts.TypeAccess = database.AccessTypeFacial
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		extractor:   extractor,
		matcher:     matcher,
		gallery:     gallery,
		directory:   directory,
		recorder:    recorder,
		broadcaster: broadcaster,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// Process decides a single attempt. Every face-processing outcome, including
// no face and no match, is a Decision with a nil error. Unexpected failures
// return a Denied decision with ReasonSystemError together with the error.
// In every case the attempt is handed to the recorder.
func (o *Orchestrator) Process(ctx context.Context, attempt Attempt) (*Decision, error) {
	start := o.now()
	location := attempt.Location
	if location == "" {
		location = o.opts.DefaultLocation
	}
	d := &Decision{
		AttemptID: uuid.NewString(),
		Location:  location,
		Timestamp: start,
	}

	procErr := o.decide(ctx, attempt, d)
	if procErr != nil {
		d.failed()
		fields := logrus.Fields{"attempt_id": d.AttemptID, "location": d.Location}
		if errors.Is(procErr, facematch.ErrDimensionMismatch) || errors.Is(procErr, descriptor.ErrUnexpectedDimension) {
			o.logger.WithFields(fields).WithError(procErr).Error("descriptor dimension mismatch")
		} else {
			o.logger.WithFields(fields).WithError(procErr).Warn("access attempt failed")
		}
	}

	metrics.ObserveDecision(d.Allowed, string(d.Reason), d.Confidence, time.Since(start))
	o.record(ctx, attempt, d)
	if o.broadcaster != nil {
		o.broadcaster.Publish(*d)
	}

	if procErr != nil {
		return d, fmt.Errorf("process access attempt %s: %w", d.AttemptID, procErr)
	}
	return d, nil
}

// decide fills d. A returned error means the decision could not be reached.
func (o *Orchestrator) decide(ctx context.Context, attempt Attempt, d *Decision) error {
	res, err := o.extractor.Extract(ctx, attempt.Image)
	if err != nil {
		if errors.Is(err, descriptor.ErrInvalidImage) {
			d.Reason = ReasonInvalidImage
			return nil
		}
		return fmt.Errorf("extract descriptor: %w", err)
	}
	d.applyCapture(res)
	if !res.Found() {
		d.Reason = ReasonNoFace
		return nil
	}

	gallery, err := o.gallery.ListDescriptors(ctx)
	if err != nil {
		return fmt.Errorf("load gallery: %w", err)
	}
	known := make([]facematch.FaceDescriptor, len(gallery))
	for i, g := range gallery {
		known[i] = facematch.FaceDescriptor{IdentityID: g.UserID, Vector: g.Descriptor}
	}

	match, ok, err := o.matcher.Identify(res.Descriptor, known)
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	if !ok {
		d.Reason = ReasonNotRecognized
		return nil
	}
	d.UserID = match.IdentityID
	d.Confidence = match.Confidence
	d.Distance = match.Distance

	user, err := o.directory.GetUser(ctx, match.IdentityID)
	if err != nil {
		return fmt.Errorf("look up user %d: %w", match.IdentityID, err)
	}
	if user == nil {
		d.Reason = ReasonUserNotFound
		return nil
	}
	d.UserName = user.Name
	d.Position = user.Position
	if !user.Approved {
		d.Reason = ReasonPendingApproval
		return nil
	}

	d.Allowed = true
	d.Reason = ReasonNone
	return nil
}

func (o *Orchestrator) record(ctx context.Context, attempt Attempt, d *Decision) {
	if o.recorder == nil {
		return
	}
	reg := database.AccessRegister{
		AttemptID:     d.AttemptID,
		UserName:      d.UserName,
		CreatedAt:     d.Timestamp,
		TypeAccess:    o.opts.TypeAccess,
		AccessAllowed: d.Allowed,
		Confidence:    d.Confidence,
		ReasonDenied:  string(d.Reason),
		Location:      d.Location,
		CaptureHash:   d.CaptureHash,
	}
	// Registers of a missing identity keep no user reference.
	if d.Recognized() && d.Reason != ReasonUserNotFound {
		id := d.UserID
		reg.UserID = &id
	}
	if o.opts.StoreCaptures && d.Reason != ReasonInvalidImage {
		reg.CapturedImage = attempt.Image
	}

	recipient := attempt.RecipientID
	if recipient == 0 {
		recipient = o.opts.RecipientID
	}
	entry := Entry{Decision: *d, Register: reg, RecipientID: recipient}
	if err := o.recorder.Record(ctx, entry); err != nil {
		o.logger.WithField("attempt_id", d.AttemptID).WithError(err).Error("failed to record access attempt")
	}
}
