package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"cms-console/internal/domain"
	"cms-console/internal/validation"
)

// RegisterAPI creates accounts on the backend.
type RegisterAPI interface {
	Register(ctx context.Context, username, password string, role domain.Role) error
}

// AuthService handles account creation. Signing in lives on SessionStore.
type AuthService interface {
	Register(ctx context.Context, form validation.RegisterForm) error
}

type authService struct {
	api    RegisterAPI
	logger *logrus.Logger
}

func NewAuthService(api RegisterAPI, logger *logrus.Logger) AuthService {
	if logger == nil {
		logger = logrus.New()
	}
	return &authService{api: api, logger: logger}
}

// Register validates the form and creates the account. It does not sign in.
func (s *authService) Register(ctx context.Context, form validation.RegisterForm) error {
	if err := validation.ValidateRegister(form); err != nil {
		return err
	}
	username := trimmed(form.Username)
	if err := s.api.Register(ctx, username, form.Password, form.Role); err != nil {
		return submitError("register", err)
	}
	s.logger.WithFields(logrus.Fields{"username": username, "role": form.Role}).Info("account registered")
	return nil
}

func trimmed(s string) string { return strings.TrimSpace(s) }
