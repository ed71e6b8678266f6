package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/facepass/internal/database"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CreateManager validates and stores a new manager.
func (s *Service) CreateManager(ctx context.Context, req NewManager) (*database.Manager, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	existing, err := s.managers.GetManagerByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	m := &database.Manager{Name: req.Name, Email: req.Email, PasswordHash: hash}
	if err := s.managers.CreateManager(ctx, m); err != nil {
		return nil, fmt.Errorf("create manager: %w", err)
	}
	return m, nil
}

// Authenticate returns the manager with the given credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*database.Manager, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	m, err := s.managers.GetManagerByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get manager: %w", err)
	}
	if m == nil || !CheckPassword(m.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return m, nil
}
