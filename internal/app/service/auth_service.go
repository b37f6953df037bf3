package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"image_gen/internal/common"
	"image_gen/internal/common/security"
	"image_gen/internal/domain/model"
	"image_gen/internal/domain/repository"
	"image_gen/internal/platform/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const minPasswordLength = 7

const (
	msgInvalidCredentials = "Invalid email or password"
	msgDuplicateIdentity  = "User already exists with this email"
	msgInvalidAdminSecret = "Invalid admin secret"
)

type AuthConfig struct {
	SignupTokenTTL time.Duration
	LoginTokenTTL  time.Duration
	AdminSecret    string
}

type AuthService struct {
	userRepo repository.UserRepository
	tokens   *security.TokenIssuer
	cfg      AuthConfig
	validate *validator.Validate
	log      zerolog.Logger
}

func NewAuthService(userRepo repository.UserRepository, tokens *security.TokenIssuer, cfg AuthConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		cfg:      cfg,
		validate: validator.New(),
		log:      log.With().Str("component", "auth").Logger(),
	}
}

type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,contains=@,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type CreateAdminRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	AdminSecret string `json:"adminSecret"`
}

type AuthResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

func (s *AuthService) Register(ctx context.Context, req CredentialsRequest) (*AuthResponse, error) {
	userID, token, err := s.register(ctx, req, model.RoleUser)
	s.audit("signup", userID, err)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Message: "User created successfully", Token: token}, nil
}

func (s *AuthService) Login(ctx context.Context, req CredentialsRequest) (*AuthResponse, error) {
	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			security.BurnPasswordCheck(req.Password)
			err = common.WithMessage(common.ErrInvalidCredentials, msgInvalidCredentials)
		} else {
			err = fmt.Errorf("find user: %w", err)
		}
		s.audit("login", "", err)
		return nil, err
	}

	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		err := common.WithMessage(common.ErrInvalidCredentials, msgInvalidCredentials)
		s.audit("login", user.ID, err)
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID, user.Role, s.cfg.LoginTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	s.audit("login", user.ID, nil)
	return &AuthResponse{Message: "Login successful", Token: token}, nil
}

// CreateAdmin checks the bootstrap secret before looking at the credentials,
// so a wrong secret is always Forbidden.
func (s *AuthService) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*AuthResponse, error) {
	if !security.SecretsEqual(s.cfg.AdminSecret, req.AdminSecret) {
		err := common.WithMessage(common.ErrForbidden, msgInvalidAdminSecret)
		s.audit("create_admin", "", err)
		return nil, err
	}

	userID, token, err := s.register(ctx, CredentialsRequest{Email: req.Email, Password: req.Password}, model.RoleAdmin)
	s.audit("create_admin", userID, err)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Message: "Admin user created successfully", Token: token}, nil
}

func (s *AuthService) register(ctx context.Context, req CredentialsRequest, role string) (string, string, error) {
	if err := s.validate.Struct(&req); err != nil || len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return "", "", common.WithMessage(common.ErrInvalidInput, msgInvalidCredentials)
	}

	hashedPassword, err := security.HashPassword(req.Password)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:             uuid.NewString(),
		Email:          req.Email,
		HashedPassword: hashedPassword,
		Role:           role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, common.ErrDuplicateIdentity) {
			return "", "", common.WithMessage(common.ErrDuplicateIdentity, msgDuplicateIdentity)
		}
		return "", "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Role, s.cfg.SignupTokenTTL)
	if err != nil {
		return user.ID, "", fmt.Errorf("failed to generate token: %w", err)
	}
	return user.ID, token, nil
}

func (s *AuthService) audit(event, userID string, err error) {
	success := err == nil
	metrics.RecordAuthAttempt(event, success)

	ev := s.log.Info()
	if !success {
		ev = s.log.Warn().Str("reason", common.PublicMessage(err))
	}
	ev.Str("event", event).
		Str("user_id", userID).
		Bool("success", success).
		Msg("auth_audit")
}
