package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"ctchen222/Battleship/internal/api/models"
	"ctchen222/Battleship/internal/api/repository"
	"ctchen222/Battleship/internal/validator"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultFirstName = "Player"
	defaultAvatar    = "default"
	defaultTokenTTL  = 72 * time.Hour
)

var tracer = otel.Tracer("service.user")

var (
	ErrUserNotFound     = errors.New("user does not exist")
	ErrWrongPassword    = errors.New("incorrect password")
	ErrInvalidLogin     = errors.New("invalid username or password")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrInvalidToken     = errors.New("invalid token")
	ErrMissingJWTSecret = errors.New("jwt secret is not configured")
)

// UserService defines the interface for user-related business logic.
type UserService interface {
	Register(ctx context.Context, req *models.RegisterRequest) error
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	VerifyToken(ctx context.Context, token string) (*models.User, error)
	RecordResult(ctx context.Context, username string, won bool) error
	EnsureAdmin(ctx context.Context, username, password string) error
}

// Options configures token issuing.
type Options struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type userService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository, opts Options) UserService {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	return &userService{
		userRepo:  userRepo,
		jwtSecret: []byte(opts.JWTSecret),
		tokenTTL:  opts.TokenTTL,
	}
}

// Register validates the request and creates a PLAYER account.
func (s *userService) Register(ctx context.Context, req *models.RegisterRequest) error {
	ctx, span := tracer.Start(ctx, "UserService.Register", trace.WithAttributes(
		attribute.String("player.name", req.Username),
	))
	defer span.End()

	req.Username = strings.TrimSpace(req.Username)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Avatar = strings.TrimSpace(req.Avatar)

	if err := validator.GetValidator().Struct(req); err != nil {
		span.SetStatus(codes.Error, "Invalid registration")
		return validator.Describe(err)
	}

	// Check if user already exists
	existingUser, err := s.userRepo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if existingUser != nil {
		return ErrUsernameTaken
	}

	user := &models.User{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Avatar:    req.Avatar,
		Role:      models.RolePlayer,
	}
	if user.FirstName == "" {
		user.FirstName = defaultFirstName
	}
	if user.Avatar == "" {
		user.Avatar = defaultAvatar
	}

	if err := s.userRepo.CreateUser(ctx, user, req.Password); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create user")
		return err
	}
	slog.InfoContext(ctx, "User registered", "player.name", user.Username)
	return nil
}

// Authenticate checks credentials and tells an unknown account apart from a bad password.
func (s *userService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "UserService.Authenticate", trace.WithAttributes(
		attribute.String("player.name", username),
	))
	defer span.End()

	user, err := s.userRepo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if user == nil {
		span.SetStatus(codes.Error, "Unknown user")
		return nil, ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		span.SetStatus(codes.Error, "Wrong password")
		return nil, ErrWrongPassword
	}
	return user, nil
}

// Login handles user login and returns a JWT on success.
func (s *userService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	user, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrWrongPassword) {
			return nil, ErrInvalidLogin
		}
		return nil, err
	}
	if len(s.jwtSecret) == 0 {
		return nil, ErrMissingJWTSecret
	}

	// Create JWT token
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatInt(user.ID, 10),
		"un":  user.Username,
		"exp": time.Now().Add(s.tokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &models.LoginResponse{
		Token:  tokenString,
		Wins:   user.Wins,
		Losses: user.Losses,
		Role:   user.Role,
	}, nil
}

// VerifyToken validates a token issued by Login and loads its account.
func (s *userService) VerifyToken(ctx context.Context, tokenString string) (*models.User, error) {
	if len(s.jwtSecret) == 0 {
		return nil, ErrMissingJWTSecret
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w (%v)", ErrInvalidToken, err)
	}

	username, _ := claims["un"].(string)
	if username == "" {
		return nil, ErrInvalidToken
	}
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// RecordResult implements match.StatsRecorder.
func (s *userService) RecordResult(ctx context.Context, username string, won bool) error {
	ctx, span := tracer.Start(ctx, "UserService.RecordResult", trace.WithAttributes(
		attribute.String("player.name", username),
		attribute.Bool("game.won", won),
	))
	defer span.End()

	if err := s.userRepo.IncrementStats(ctx, username, won); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to record result")
		return err
	}
	return nil
}

// EnsureAdmin provisions the observer account used by monitoring clients.
func (s *userService) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	if err := s.userRepo.UpsertAdmin(ctx, username, password); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Admin account ready", "player.name", username)
	return nil
}
