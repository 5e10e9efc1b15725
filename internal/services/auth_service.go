package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/models"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Authorizer re-validates an identity against the database before a scoped
// operation runs. want == IdentityAnonymous accepts any signed-in identity.
type Authorizer interface {
	Authorize(ctx context.Context, actor models.Identity, want models.IdentityKind) error
}

type AuthService struct {
	db        *sql.DB
	sessions  SessionStore
	validator *ValidationHelper
	logger    *zap.Logger
	cfg       *config.LendingConfig
	now       func() time.Time
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Kind     models.IdentityKind `json:"kind" validate:"required,oneof=admin student" example:"student"`
	Username string              `json:"username" validate:"required,max=150" example:"jdoe"`
	Password string              `json:"password" validate:"required" example:"password123"`
}

// LoginResponse represents the authentication response
// @Description Authentication response structure
type LoginResponse struct {
	Token     string          `json:"token"`
	Identity  models.Identity `json:"identity"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// NewAuthService keeps sessions in redis, or in memory when redisClient is nil
func NewAuthService(db *sql.DB, redisClient *redis.Client, cfg *config.LendingConfig, logger *zap.Logger) *AuthService {
	var sessions SessionStore
	if redisClient != nil {
		sessions = NewRedisSessionStore(redisClient)
	} else {
		sessions = NewMemorySessionStore()
	}
	return NewAuthServiceWithStore(db, sessions, cfg, logger)
}

func NewAuthServiceWithStore(db *sql.DB, sessions SessionStore, cfg *config.LendingConfig, logger *zap.Logger) *AuthService {
	if cfg == nil {
		cfg = config.DefaultLendingConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		db:        db,
		sessions:  sessions,
		validator: NewValidationHelper(),
		logger:    logger.Named("auth"),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Authenticate checks credentials for the given role and records last_login
func (s *AuthService) Authenticate(ctx context.Context, kind models.IdentityKind, username, password string) (models.Identity, error) {
	username = strings.TrimSpace(username)

	switch kind {
	case models.IdentityAdmin:
		return s.authenticateAdmin(ctx, username, password)
	case models.IdentityStudent:
		return s.authenticateStudent(ctx, username, password)
	default:
		return models.Anonymous, ValidationError("kind", "kind must be admin or student")
	}
}

func (s *AuthService) authenticateAdmin(ctx context.Context, username, password string) (models.Identity, error) {
	var (
		id       int64
		hash     string
		isActive bool
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, password, is_active FROM admins WHERE username = $1",
		username).Scan(&id, &hash, &isActive)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Info("admin login failed, unknown username", zap.String("username", username))
		return models.Anonymous, ErrInvalidCredentials
	}
	if err != nil {
		return models.Anonymous, fmt.Errorf("load admin: %w", err)
	}

	if !VerifyPassword(password, hash) {
		s.logger.Info("admin login failed, bad password", zap.Int64("admin_id", id))
		return models.Anonymous, ErrInvalidCredentials
	}
	if !isActive {
		return models.Anonymous, ErrAccountInactive
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE admins SET last_login = $1 WHERE id = $2", s.now(), id); err != nil {
		return models.Anonymous, fmt.Errorf("update admin last_login: %w", err)
	}
	return models.AdminIdentity(id), nil
}

func (s *AuthService) authenticateStudent(ctx context.Context, username, password string) (models.Identity, error) {
	var (
		id       int64
		hash     string
		status   string
		isActive bool
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, password, status, is_active FROM students WHERE username = $1",
		username).Scan(&id, &hash, &status, &isActive)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Info("student login failed, unknown username", zap.String("username", username))
		return models.Anonymous, ErrInvalidCredentials
	}
	if err != nil {
		return models.Anonymous, fmt.Errorf("load student: %w", err)
	}

	if !VerifyPassword(password, hash) {
		s.logger.Info("student login failed, bad password", zap.Int64("student_id", id))
		return models.Anonymous, ErrInvalidCredentials
	}
	if err := studentStanding(status, isActive); err != nil {
		return models.Anonymous, err
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE students SET last_login = $1 WHERE id = $2", s.now(), id); err != nil {
		return models.Anonymous, fmt.Errorf("update student last_login: %w", err)
	}
	return models.StudentIdentity(id), nil
}

func studentStanding(status string, isActive bool) error {
	switch {
	case status == models.StudentStatusSuspended:
		return ErrAccountSuspended
	case !isActive || status != models.StudentStatusActive:
		return ErrAccountInactive
	}
	return nil
}

// Login authenticates and opens a fresh session. The returned token carries
// only the session id; the identity itself stays server side. A session the
// caller already holds is dropped, so switching role leaves nothing of the
// previous identity behind.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, previousToken string) (*LoginResponse, error) {
	if err := s.validator.validateInput(&req); err != nil {
		return nil, err
	}

	identity, err := s.Authenticate(ctx, req.Kind, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	if previousToken != "" {
		if err := s.Logout(ctx, previousToken); err != nil {
			return nil, fmt.Errorf("drop previous session: %w", err)
		}
	}

	sid := uuid.NewString()
	if err := s.sessions.Put(ctx, sid, identity, s.cfg.SessionTTL); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	expiresAt := s.now().Add(s.cfg.SessionTTL)
	token, err := s.signToken(sid, identity, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	s.logger.Info("login successful", zap.Stringer("identity", identity))
	return &LoginResponse{Token: token, Identity: identity, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) signToken(sid string, identity models.Identity, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid":  sid,
		"kind": string(identity.Kind),
		"exp":  expiresAt.Unix(),
		"iat":  s.now().Unix(),
	})
	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func (s *AuthService) sessionID(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", ErrUnauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrUnauthenticated
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", ErrUnauthenticated
	}
	return sid, nil
}

// CurrentIdentity resolves a bearer token. Anything that does not lead to a
// live session is anonymous.
func (s *AuthService) CurrentIdentity(ctx context.Context, token string) models.Identity {
	if token == "" {
		return models.Anonymous
	}
	sid, err := s.sessionID(token)
	if err != nil {
		return models.Anonymous
	}
	identity, err := s.sessions.Get(ctx, sid)
	if err != nil {
		if !errors.Is(err, ErrUnauthenticated) {
			s.logger.Warn("session lookup failed", zap.Error(err))
		}
		return models.Anonymous
	}
	return identity
}

// Logout drops the session behind token. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	sid, err := s.sessionID(token)
	if err != nil {
		return nil
	}
	return s.sessions.Delete(ctx, sid)
}

// Authorize implements Authorizer
func (s *AuthService) Authorize(ctx context.Context, actor models.Identity, want models.IdentityKind) error {
	if actor.IsAnonymous() {
		return ErrUnauthenticated
	}
	if want != models.IdentityAnonymous && actor.Kind != want {
		return ErrForbidden
	}

	if actor.IsAdmin() {
		var isActive bool
		err := s.db.QueryRowContext(ctx, "SELECT is_active FROM admins WHERE id = $1", actor.ID).Scan(&isActive)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnauthenticated
		}
		if err != nil {
			return fmt.Errorf("load admin: %w", err)
		}
		if !isActive {
			return ErrAccountInactive
		}
		return nil
	}

	var (
		status   string
		isActive bool
	)
	err := s.db.QueryRowContext(ctx, "SELECT status, is_active FROM students WHERE id = $1", actor.ID).Scan(&status, &isActive)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnauthenticated
	}
	if err != nil {
		return fmt.Errorf("load student: %w", err)
	}
	return studentStanding(status, isActive)
}

// Trusted checks only the identity's kind. Operator tooling that already
// holds database credentials runs with it.
type Trusted struct{}

func (Trusted) Authorize(_ context.Context, actor models.Identity, want models.IdentityKind) error {
	if actor.IsAnonymous() {
		return ErrUnauthenticated
	}
	if want != models.IdentityAnonymous && actor.Kind != want {
		return ErrForbidden
	}
	return nil
}

// AdminInput creates an operator account
type AdminInput struct {
	Username string `validate:"required,min=3,max=50,alphanum"`
	Email    string `validate:"required,email,max=254"`
	FullName string `validate:"max=100"`
	Password string `validate:"required,min=8"`
}

// CreateAdmin stores a new active admin and returns its id
func (s *AuthService) CreateAdmin(ctx context.Context, in AdminInput) (int64, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validator.validateInput(&in); err != nil {
		return 0, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO admins (username, password, full_name, email, is_active, created_at) VALUES ($1, $2, $3, $4, true, $5) RETURNING id",
		in.Username, hash, in.FullName, in.Email, s.now()).Scan(&id)
	switch {
	case isUniqueViolation(err, "admins_username_key"):
		return 0, ValidationError("username", "username already exists")
	case isUniqueViolation(err, "admins_email_key"):
		return 0, ValidationError("email", "email already registered")
	case err != nil:
		return 0, fmt.Errorf("create admin: %w", err)
	}

	s.logger.Info("admin created", zap.Int64("admin_id", id), zap.String("username", in.Username))
	return id, nil
}
