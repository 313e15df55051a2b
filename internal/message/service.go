package message

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/message/entity"
	msgrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/message/repo"
	userrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/utilities"
)

// DefaultLimit caps listings when the caller asks for none or too many.
const DefaultLimit = 100

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
)

// Service manages messages and the home timeline.
type Service struct {
	db     *sqlx.DB
	repo   *msgrepo.MessageRepo
	users  *userrepo.UserRepo
	ids    *utilities.IDGenerator
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewService(db *sqlx.DB, ids *utilities.IDGenerator, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		db:     db,
		repo:   msgrepo.NewMessageRepo(db),
		users:  userrepo.NewUserRepo(db),
		ids:    ids,
		logger: logger,
		now:    time.Now,
	}
}

// Create posts text as the principal. Text is trimmed and must be 1..140
// characters.
func (s *Service) Create(ctx context.Context, p auth.Principal, text string) (*entity.Message, error) {
	if err := p.Require(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrValidation)
	}
	if utf8.RuneCountInString(text) > entity.MaxTextLen {
		return nil, fmt.Errorf("%w: text longer than %d characters", ErrValidation, entity.MaxTextLen)
	}
	m := &entity.Message{
		ID:        s.ids.Next(),
		Text:      text,
		Timestamp: s.now().UTC(),
		UserID:    p.UserID,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		if errors.Is(err, database.ErrForeignKeyViolation) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, p.UserID)
		}
		return nil, err
	}
	s.logger.Debugw("message created", "message_id", m.ID, "user_id", m.UserID)
	return m, nil
}

// Get returns the message with id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Message, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: message %d", ErrNotFound, id)
		}
		return nil, err
	}
	return m, nil
}

// Delete removes a message written by the principal.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id int64) error {
	if err := p.Require(); err != nil {
		return err
	}
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		msgs := s.repo.WithTx(tx)
		m, err := msgs.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: message %d", ErrNotFound, id)
			}
			return err
		}
		if m.UserID != p.UserID {
			return ErrForbidden
		}
		_, err = msgs.Delete(ctx, id)
		return err
	})
}

// ListByUser returns userID's messages, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64, limit int) ([]entity.Message, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID, clampLimit(limit))
}

// CountByUser returns how many messages userID has written.
func (s *Service) CountByUser(ctx context.Context, userID int64) (int, error) {
	return s.repo.CountByUser(ctx, userID)
}

// Timeline returns the principal's home feed: their own messages and those
// of the users they follow, newest first.
func (s *Service) Timeline(ctx context.Context, p auth.Principal, limit int) ([]entity.AuthoredMessage, error) {
	if err := p.Require(); err != nil {
		return nil, err
	}
	return s.repo.Timeline(ctx, p.UserID, clampLimit(limit))
}

func (s *Service) requireUser(ctx context.Context, userID int64) error {
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > DefaultLimit {
		return DefaultLimit
	}
	return limit
}
