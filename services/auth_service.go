package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ridehub/ridehub/database"
	"github.com/ridehub/ridehub/errs"
	"github.com/ridehub/ridehub/models"
	"github.com/ridehub/ridehub/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=100"`
	FullName string `json:"fullName" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginInput struct {
	// Login is either the email or the username.
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ProfileInput struct {
	FullName *string `json:"fullName" validate:"omitempty,min=1,max=255"`
	Bio      *string `json:"bio"`
	Location *string `json:"location" validate:"omitempty,max=255"`
	Photo    *string `json:"photo" validate:"omitempty,url"`
}

type AuthService struct {
	users    database.UserStore
	secret   []byte
	ttl      time.Duration
	validate *validator.Validate
	log      *zap.Logger
}

func NewAuthService(users database.UserStore, secret string, ttl time.Duration, log *zap.Logger) *AuthService {
	return &AuthService{
		users:    users,
		secret:   []byte(secret),
		ttl:      ttl,
		validate: validator.New(),
		log:      log,
	}
}

// Register creates a user with a bcrypt hashed password. Email and
// username must both be unused.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:       uuid.NewString(),
		Username: in.Username,
		FullName: in.FullName,
		Email:    in.Email,
		Password: string(hash),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, fmt.Errorf("email or username already registered: %w", errs.ErrAlreadyExists)
		}
		return nil, asPersistence(err)
	}
	s.log.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Login checks the credentials and returns a signed token.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (string, *models.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	login := strings.TrimSpace(in.Login)
	if strings.Contains(login, "@") {
		login = strings.ToLower(login)
	}

	user, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", nil, fmt.Errorf("invalid credentials: %w", errs.ErrAuthentication)
		}
		return "", nil, asPersistence(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		return "", nil, fmt.Errorf("invalid credentials: %w", errs.ErrAuthentication)
	}

	token, err := utils.GenerateToken(s.secret, user.ID, s.ttl)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, user, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, asPersistence(err)
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of in.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*models.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, asPersistence(err)
	}
	if in.FullName != nil {
		user.FullName = *in.FullName
	}
	if in.Bio != nil {
		user.Bio = in.Bio
	}
	if in.Location != nil {
		user.Location = in.Location
	}
	if in.Photo != nil {
		user.Photo = in.Photo
	}
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, asPersistence(err)
	}
	return user, nil
}

// Directory lists every other user as a public profile.
func (s *AuthService) Directory(ctx context.Context, callerID string) ([]models.Profile, error) {
	users, err := s.users.ListUsers(ctx, callerID)
	if err != nil {
		return nil, asPersistence(err)
	}
	out := make([]models.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out, nil
}
