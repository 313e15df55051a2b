package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth"
	socialrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/social/repo"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/utilities"
)

const (
	maxUsernameLen = 64
	maxEmailLen    = 254
	// bcrypt ignores input past 72 bytes; reject rather than truncate.
	maxPasswordBytes = 72
)

type Config struct {
	BcryptCost            int
	DefaultImageURL       string
	DefaultHeaderImageURL string
}

// ConfigFromEnv reads BCRYPT_COST, DEFAULT_IMAGE_URL and DEFAULT_HEADER_IMAGE_URL.
func ConfigFromEnv() Config {
	cfg := Config{
		BcryptCost:            12,
		DefaultImageURL:       os.Getenv("DEFAULT_IMAGE_URL"),
		DefaultHeaderImageURL: os.Getenv("DEFAULT_HEADER_IMAGE_URL"),
	}
	if v, err := strconv.Atoi(os.Getenv("BCRYPT_COST")); err == nil && v >= bcrypt.MinCost && v <= bcrypt.MaxCost {
		cfg.BcryptCost = v
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.DefaultImageURL == "" {
		c.DefaultImageURL = "/static/images/default-pic.png"
	}
	if c.DefaultHeaderImageURL == "" {
		c.DefaultHeaderImageURL = "/static/images/warbler-hero.jpg"
	}
	return c
}

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify compares in constant time with respect to the password.
func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

var (
	ErrValidation         = errors.New("validation failed")
	ErrIntegrityViolation = errors.New("username or email already taken")
	ErrNotFound           = errors.New("user not found")
	ErrBadCredentials     = errors.New("invalid credentials")
)

// UserService is the identity manager: signup, authentication and the
// account lifecycle.
type UserService struct {
	db     *sqlx.DB
	repo   *userrepo.UserRepo
	hasher PasswordHasher
	ids    *utilities.IDGenerator
	cfg    Config
	logger *zap.SugaredLogger
	// compared against when the username is unknown so both failure
	// paths pay for one bcrypt comparison
	dummyHash string
}

func NewUserService(db *sqlx.DB, ids *utilities.IDGenerator, hasher PasswordHasher, cfg Config, logger *zap.SugaredLogger) (*UserService, error) {
	cfg = cfg.withDefaults()
	if hasher == nil {
		hasher = BcryptHasher{Cost: cfg.BcryptCost}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	dummy, err := hasher.Hash("warbler-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &UserService{
		db:        db,
		repo:      userrepo.NewUserRepo(db),
		hasher:    hasher,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// SignupInput carries the signup form fields.
type SignupInput struct {
	Username string
	Email    string
	Password string
	ImageURL string
}

func (in SignupInput) validate() error {
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	return validatePassword(in.Password)
}

func validateUsername(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if utf8.RuneCountInString(s) > maxUsernameLen {
		return fmt.Errorf("%w: username longer than %d characters", ErrValidation, maxUsernameLen)
	}
	return nil
}

func validateEmail(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if utf8.RuneCountInString(s) > maxEmailLen {
		return fmt.Errorf("%w: email longer than %d characters", ErrValidation, maxEmailLen)
	}
	return nil
}

func validatePassword(s string) error {
	if s == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	if len(s) > maxPasswordBytes {
		return fmt.Errorf("%w: password longer than %d bytes", ErrValidation, maxPasswordBytes)
	}
	return nil
}

// SignupTx validates the input, hashes the password and inserts the user
// into tx. Nothing is visible until the caller commits; on
// ErrIntegrityViolation the caller must roll back.
func (s *UserService) SignupTx(ctx context.Context, tx *sqlx.Tx, in SignupInput) (*entity.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &entity.User{
		ID:             s.ids.Next(),
		Username:       in.Username,
		Email:          in.Email,
		PasswordHash:   hash,
		ImageURL:       orDefault(in.ImageURL, s.cfg.DefaultImageURL),
		HeaderImageURL: s.cfg.DefaultHeaderImageURL,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, u); err != nil {
		if errors.Is(err, database.ErrUniqueViolation) {
			return nil, fmt.Errorf("%w: %w", ErrIntegrityViolation, err)
		}
		return nil, err
	}
	return u, nil
}

// Signup runs SignupTx in its own transaction.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*entity.User, error) {
	var u *entity.User
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		u, err = s.SignupTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("user signed up", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Authenticate looks the user up by username and checks the password.
// ok is false for an unknown username and for a wrong password alike;
// err is reserved for storage failures.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (u *entity.User, ok bool, err error) {
	u, err = s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.hasher.Verify(s.dummyHash, password)
			return nil, false, nil
		}
		return nil, false, err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, false, nil
	}
	return u, true, nil
}

// Get returns the user with id or ErrNotFound.
func (s *UserService) Get(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetByUsername returns the user named username or ErrNotFound.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// List returns up to limit users whose username contains search.
func (s *UserService) List(ctx context.Context, search string, limit int) ([]entity.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, strings.TrimSpace(search), limit)
}

// ProfileUpdate lists the fields to change; nil leaves a field as is.
// An empty image URL resets it to the default.
type ProfileUpdate struct {
	Username       *string
	Email          *string
	ImageURL       *string
	HeaderImageURL *string
	Bio            *string
	Location       *string
}

// UpdateProfile edits the principal's own profile after re-checking their
// password.
func (s *UserService) UpdateProfile(ctx context.Context, p auth.Principal, password string, upd ProfileUpdate) (*entity.User, error) {
	if err := p.Require(); err != nil {
		return nil, err
	}
	var u *entity.User
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		users := s.repo.WithTx(tx)
		var err error
		u, err = users.GetByID(ctx, p.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !s.hasher.Verify(u.PasswordHash, password) {
			return ErrBadCredentials
		}
		if err := s.apply(u, upd); err != nil {
			return err
		}
		if _, err := users.Update(ctx, u); err != nil {
			if errors.Is(err, database.ErrUniqueViolation) {
				return fmt.Errorf("%w: %w", ErrIntegrityViolation, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("profile updated", "user_id", u.ID)
	return u, nil
}

func (s *UserService) apply(u *entity.User, upd ProfileUpdate) error {
	if upd.Username != nil {
		if err := validateUsername(*upd.Username); err != nil {
			return err
		}
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		if err := validateEmail(*upd.Email); err != nil {
			return err
		}
		u.Email = *upd.Email
	}
	if upd.ImageURL != nil {
		u.ImageURL = orDefault(*upd.ImageURL, s.cfg.DefaultImageURL)
	}
	if upd.HeaderImageURL != nil {
		u.HeaderImageURL = orDefault(*upd.HeaderImageURL, s.cfg.DefaultHeaderImageURL)
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.Location != nil {
		u.Location = *upd.Location
	}
	return nil
}

// Delete removes the principal's account together with their messages,
// follow edges in both directions and likes.
func (s *UserService) Delete(ctx context.Context, p auth.Principal) error {
	if err := p.Require(); err != nil {
		return err
	}
	var edges int
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		// follows and likes go with the user via ON DELETE CASCADE
		if edges, err = socialrepo.NewFollowRepo(tx).CountInvolving(ctx, p.UserID); err != nil {
			return err
		}
		n, err := s.repo.WithTx(tx).Delete(ctx, p.UserID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Infow("user deleted", "user_id", p.UserID, "follow_edges", edges)
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
