// Package identity manages the people known to the system: self
// registration, manager approval, face enrollment and 1:1 verification.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/descriptor"
	"github.com/kozaktomas/facepass/internal/facematch"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrNoFace           = errors.New("no face detected in photo")
	ErrNotEnrolled      = errors.New("user has no enrolled face")
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmailTaken       = errors.New("email or CPF already registered")
	ErrDimensionInvalid = errors.New("descriptor has the wrong dimension")
)

// Extractor produces the descriptor of a photo.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) (*descriptor.Result, error)
}

// User status filters accepted by ListUsers.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// Service implements user registration and face enrollment.
type Service struct {
	users         database.UserWriter
	descriptors   database.DescriptorWriter
	notifications database.NotificationWriter
	managers      database.ManagerWriter
	extractor     Extractor
	matcher       *facematch.Matcher
	dim           int
	model         string
	validate      *validator.Validate
	logger        *logrus.Logger
}

// Config carries the collaborators of a Service.
type Config struct {
	Users         database.UserWriter
	Descriptors   database.DescriptorWriter
	Notifications database.NotificationWriter
	Managers      database.ManagerWriter
	Extractor     Extractor
	Matcher       *facematch.Matcher
	DescriptorDim int
	Model         string
	Logger        *logrus.Logger
}

func NewService(cfg Config) *Service {
	if cfg.Matcher == nil {
		cfg.Matcher = facematch.NewMatcher(facematch.DefaultTolerance)
	}
	if cfg.DescriptorDim <= 0 {
		cfg.DescriptorDim = facematch.DefaultDescriptorDim
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Service{
		users:         cfg.Users,
		descriptors:   cfg.Descriptors,
		notifications: cfg.Notifications,
		managers:      cfg.Managers,
		extractor:     cfg.Extractor,
		matcher:       cfg.Matcher,
		dim:           cfg.DescriptorDim,
		model:         cfg.Model,
		validate:      newValidator(),
		logger:        cfg.Logger,
	}
}

// RegisterUser creates a user pending approval, enrolls the face in the
// photo and notifies managers. The photo must contain a face.
func (s *Service) RegisterUser(ctx context.Context, reg Registration) (*database.User, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.Position = strings.TrimSpace(reg.Position)
	if err := s.validate.Struct(reg); err != nil {
		return nil, validationError(err)
	}

	existing, err := s.users.GetUserByEmail(ctx, reg.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	res, err := s.extractFace(ctx, reg.Photo)
	if err != nil {
		return nil, err
	}

	user := &database.User{
		Name:     reg.Name,
		Email:    reg.Email,
		CPF:      NormalizeCPF(reg.CPF),
		Position: reg.Position,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if _, err := s.descriptors.SaveDescriptor(ctx, user.ID, res.Descriptor, s.modelOf(res)); err != nil {
		// Without a face the user could never pass, so undo the registration.
		if _, delErr := s.users.DeleteUser(ctx, user.ID); delErr != nil {
			s.logger.WithError(delErr).WithField("user_id", user.ID).Error("failed to roll back registration")
		}
		return nil, fmt.Errorf("save descriptor: %w", err)
	}
	user.HasFace = true

	if err := s.notifyPending(ctx, user); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("failed to notify managers about new user")
	}
	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email}).Info("user registered, pending approval")
	return user, nil
}

// notifyPending alerts every manager that a registration awaits approval.
func (s *Service) notifyPending(ctx context.Context, user *database.User) error {
	if s.notifications == nil || s.managers == nil {
		return nil
	}
	managers, err := s.managers.ListManagers(ctx)
	if err != nil {
		return fmt.Errorf("list managers: %w", err)
	}
	msg := fmt.Sprintf("New user registered: %s (%s). Awaiting approval.", user.Name, user.Email)
	var errs []error
	for _, m := range managers {
		n := &database.Notification{
			ManagerID: m.ID,
			Type:      database.NotificationNewUserPending,
			Message:   msg,
		}
		if err := s.notifications.CreateNotification(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetUser returns a user or ErrUserNotFound.
func (s *Service) GetUser(ctx context.Context, id int64) (*database.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ListUsers returns users by status: StatusPending, StatusApproved or "" for all.
func (s *Service) ListUsers(ctx context.Context, status string) ([]database.User, error) {
	var approved *bool
	switch status {
	case "", "all":
	case StatusPending:
		f := false
		approved = &f
	case StatusApproved:
		t := true
		approved = &t
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.users.ListUsers(ctx, approved)
}

// UpdateUser replaces the personal data and approval state of a user.
func (s *Service) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (*database.User, error) {
	upd.Name = strings.TrimSpace(upd.Name)
	upd.Email = strings.ToLower(strings.TrimSpace(upd.Email))
	upd.Position = strings.TrimSpace(upd.Position)
	if err := s.validate.Struct(upd); err != nil {
		return nil, validationError(err)
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	other, err := s.users.GetUserByEmail(ctx, upd.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if other != nil && other.ID != id {
		return nil, ErrEmailTaken
	}

	user.Name = upd.Name
	user.Email = upd.Email
	user.CPF = NormalizeCPF(upd.CPF)
	user.Position = upd.Position
	user.Approved = upd.Approved
	ok, err := s.users.UpdateUser(ctx, user)
	if errors.Is(err, database.ErrDuplicateUser) {
		return nil, fmt.Errorf("%w: %w", ErrEmailTaken, err)
	}
	if err != nil {
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	s.logger.WithFields(logrus.Fields{"user_id": id, "approved": user.Approved}).Info("user updated")
	return user, nil
}

// RegistrationStatus is what a person may learn about their own
// registration without logging in.
type RegistrationStatus struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Position string `json:"position"`
	Approved bool   `json:"approved"`
	Status   string `json:"status"`
}

// RegistrationStatus looks a registration up by e-mail.
func (s *Service) RegistrationStatus(ctx context.Context, email string) (*RegistrationStatus, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	status := StatusPending
	if user.Approved {
		status = StatusApproved
	}
	return &RegistrationStatus{
		Name:     user.Name,
		Email:    user.Email,
		Position: user.Position,
		Approved: user.Approved,
		Status:   status,
	}, nil
}

// Approve grants access to a user.
func (s *Service) Approve(ctx context.Context, id int64) error {
	ok, err := s.users.SetApproved(ctx, id, true)
	if err != nil {
		return fmt.Errorf("approve user %d: %w", id, err)
	}
	if !ok {
		return ErrUserNotFound
	}
	s.logger.WithField("user_id", id).Info("user approved")
	return nil
}

// Remove rejects a pending user or removes an approved one, together with
// the enrolled face.
func (s *Service) Remove(ctx context.Context, id int64) error {
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	// Deleting through the descriptor store keeps the gallery cache and
	// nearest-identity index in step.
	if err := s.descriptors.DeleteDescriptor(ctx, id); err != nil {
		return fmt.Errorf("delete descriptor of user %d: %w", id, err)
	}
	ok, err := s.users.DeleteUser(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if !ok {
		return ErrUserNotFound
	}
	s.logger.WithField("user_id", id).Info("user removed")
	return nil
}

// EnrollFace replaces the enrolled face of a user with the one in photo.
func (s *Service) EnrollFace(ctx context.Context, userID int64, photo []byte) (*descriptor.Result, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	res, err := s.extractFace(ctx, photo)
	if err != nil {
		return nil, err
	}
	if _, err := s.descriptors.SaveDescriptor(ctx, userID, res.Descriptor, s.modelOf(res)); err != nil {
		return nil, fmt.Errorf("save descriptor: %w", err)
	}
	return res, nil
}

// EnrollDescriptor stores a precomputed descriptor, as done by legacy imports.
func (s *Service) EnrollDescriptor(ctx context.Context, userID int64, vec []float32, model string) error {
	if len(vec) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionInvalid, len(vec), s.dim)
	}
	if _, err := s.descriptors.SaveDescriptor(ctx, userID, vec, model); err != nil {
		return fmt.Errorf("save descriptor: %w", err)
	}
	return nil
}

// VerifyFace compares the face in photo against the enrolled face of
// userID. ok is false when the distance exceeds the tolerance; the result
// still carries the measured distance.
func (s *Service) VerifyFace(ctx context.Context, userID int64, photo []byte) (facematch.MatchResult, bool, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return facematch.MatchResult{}, false, err
	}
	stored, err := s.descriptors.GetDescriptor(ctx, userID)
	if err != nil {
		return facematch.MatchResult{}, false, fmt.Errorf("get descriptor: %w", err)
	}
	if stored == nil {
		return facematch.MatchResult{}, false, ErrNotEnrolled
	}
	res, err := s.extractFace(ctx, photo)
	if err != nil {
		return facematch.MatchResult{}, false, err
	}
	return s.matcher.Verify(res.Descriptor, facematch.FaceDescriptor{IdentityID: userID, Vector: stored.Descriptor})
}

func (s *Service) extractFace(ctx context.Context, photo []byte) (*descriptor.Result, error) {
	res, err := s.extractor.Extract(ctx, photo)
	if err != nil {
		return nil, fmt.Errorf("extract face: %w", err)
	}
	if !res.Found() {
		return nil, ErrNoFace
	}
	return res, nil
}

func (s *Service) modelOf(res *descriptor.Result) string {
	if res.Model != "" {
		return res.Model
	}
	return s.model
}
