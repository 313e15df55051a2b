package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth"
	msgentity "github.com/ovaphlow/pitchfork/service-warbler-go/internal/message/entity"
	msgrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/message/repo"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/social/entity"
	socialrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/social/repo"
	userentity "github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
)

// profileMessageLimit caps the messages embedded in a profile.
const profileMessageLimit = 100

var (
	ErrNotFound   = errors.New("not found")
	ErrSelfFollow = errors.New("users cannot follow themselves")
)

// Service is the social graph store: follow edges between users and likes
// from users to messages. Follow and like mutations are idempotent.
type Service struct {
	db       *sqlx.DB
	follows  *socialrepo.FollowRepo
	likes    *socialrepo.LikeRepo
	users    *userrepo.UserRepo
	messages *msgrepo.MessageRepo
	logger   *zap.SugaredLogger
}

func NewService(db *sqlx.DB, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		db:       db,
		follows:  socialrepo.NewFollowRepo(db),
		likes:    socialrepo.NewLikeRepo(db),
		users:    userrepo.NewUserRepo(db),
		messages: msgrepo.NewMessageRepo(db),
		logger:   logger,
	}
}

// IsFollowing reports whether a follows b.
func (s *Service) IsFollowing(ctx context.Context, a, b int64) (bool, error) {
	return s.follows.Exists(ctx, a, b)
}

// IsFollowedBy reports whether b follows a.
func (s *Service) IsFollowedBy(ctx context.Context, a, b int64) (bool, error) {
	return s.follows.Exists(ctx, b, a)
}

// Follow makes the principal follow followeeID. Following twice is a no-op.
func (s *Service) Follow(ctx context.Context, p auth.Principal, followeeID int64) error {
	if err := p.Require(); err != nil {
		return err
	}
	if followeeID == p.UserID {
		return ErrSelfFollow
	}
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := requireUsers(ctx, s.users.WithTx(tx), p.UserID, followeeID); err != nil {
			return err
		}
		inserted, err := s.follows.WithTx(tx).Insert(ctx, p.UserID, followeeID)
		if err != nil {
			return notFoundOnFK(err)
		}
		s.logger.Debugw("follow", "follower_id", p.UserID, "followed_id", followeeID, "inserted", inserted)
		return nil
	})
}

// Unfollow removes the principal's edge to followeeID if there is one.
func (s *Service) Unfollow(ctx context.Context, p auth.Principal, followeeID int64) error {
	if err := p.Require(); err != nil {
		return err
	}
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := requireUsers(ctx, s.users.WithTx(tx), p.UserID, followeeID); err != nil {
			return err
		}
		deleted, err := s.follows.WithTx(tx).Delete(ctx, p.UserID, followeeID)
		if err != nil {
			return err
		}
		s.logger.Debugw("unfollow", "follower_id", p.UserID, "followed_id", followeeID, "deleted", deleted)
		return nil
	})
}

// Like records the principal's like of messageID. Liking twice is a no-op.
func (s *Service) Like(ctx context.Context, p auth.Principal, messageID int64) error {
	if err := p.Require(); err != nil {
		return err
	}
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.requireLikeTargets(ctx, tx, p.UserID, messageID); err != nil {
			return err
		}
		_, err := s.likes.WithTx(tx).Insert(ctx, p.UserID, messageID)
		return notFoundOnFK(err)
	})
}

// Unlike removes the principal's like of messageID if there is one.
func (s *Service) Unlike(ctx context.Context, p auth.Principal, messageID int64) error {
	if err := p.Require(); err != nil {
		return err
	}
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.requireLikeTargets(ctx, tx, p.UserID, messageID); err != nil {
			return err
		}
		_, err := s.likes.WithTx(tx).Delete(ctx, p.UserID, messageID)
		return err
	})
}

// ToggleLike likes messageID if the principal does not yet, and unlikes it
// otherwise. liked is the state after the call.
func (s *Service) ToggleLike(ctx context.Context, p auth.Principal, messageID int64) (liked bool, err error) {
	if err := p.Require(); err != nil {
		return false, err
	}
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.requireLikeTargets(ctx, tx, p.UserID, messageID); err != nil {
			return err
		}
		likes := s.likes.WithTx(tx)
		deleted, err := likes.Delete(ctx, p.UserID, messageID)
		if err != nil {
			return err
		}
		if deleted {
			liked = false
			return nil
		}
		if _, err := likes.Insert(ctx, p.UserID, messageID); err != nil {
			return notFoundOnFK(err)
		}
		liked = true
		return nil
	})
	return liked, err
}

// IsLiked reports whether userID likes messageID.
func (s *Service) IsLiked(ctx context.Context, userID, messageID int64) (bool, error) {
	return s.likes.Exists(ctx, userID, messageID)
}

// Followers returns the users following userID.
func (s *Service) Followers(ctx context.Context, userID int64) ([]userentity.User, error) {
	if err := requireUsers(ctx, s.users, userID); err != nil {
		return nil, err
	}
	return s.follows.Followers(ctx, userID)
}

// Following returns the users userID follows.
func (s *Service) Following(ctx context.Context, userID int64) ([]userentity.User, error) {
	if err := requireUsers(ctx, s.users, userID); err != nil {
		return nil, err
	}
	return s.follows.Following(ctx, userID)
}

// Likes returns the messages userID likes, newest first.
func (s *Service) Likes(ctx context.Context, userID int64) ([]msgentity.Message, error) {
	if err := requireUsers(ctx, s.users, userID); err != nil {
		return nil, err
	}
	return s.likes.LikedMessages(ctx, userID)
}

// FollowerCount returns how many users follow userID.
func (s *Service) FollowerCount(ctx context.Context, userID int64) (int, error) {
	return s.follows.CountFollowers(ctx, userID)
}

// FollowingCount returns how many users userID follows.
func (s *Service) FollowingCount(ctx context.Context, userID int64) (int, error) {
	return s.follows.CountFollowing(ctx, userID)
}

// LikeCount returns how many messages userID likes.
func (s *Service) LikeCount(ctx context.Context, userID int64) (int, error) {
	return s.likes.CountByUser(ctx, userID)
}

// MessageLikeCount returns how many users like messageID.
func (s *Service) MessageLikeCount(ctx context.Context, messageID int64) (int, error) {
	return s.likes.CountByMessage(ctx, messageID)
}

// Profile assembles userID's profile as seen by viewer.
func (s *Service) Profile(ctx context.Context, viewer auth.Principal, userID int64) (*entity.Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, err
	}
	prof := &entity.Profile{User: u}
	if prof.Messages, err = s.messages.ListByUser(ctx, userID, profileMessageLimit); err != nil {
		return nil, err
	}
	if prof.MessageCount, err = s.messages.CountByUser(ctx, userID); err != nil {
		return nil, err
	}
	if prof.FollowerCount, err = s.follows.CountFollowers(ctx, userID); err != nil {
		return nil, err
	}
	if prof.FollowingCount, err = s.follows.CountFollowing(ctx, userID); err != nil {
		return nil, err
	}
	if prof.LikeCount, err = s.likes.CountByUser(ctx, userID); err != nil {
		return nil, err
	}
	if viewer.Authenticated() && viewer.UserID != userID {
		if prof.Following, err = s.follows.Exists(ctx, viewer.UserID, userID); err != nil {
			return nil, err
		}
		if prof.FollowedBy, err = s.follows.Exists(ctx, userID, viewer.UserID); err != nil {
			return nil, err
		}
	}
	return prof, nil
}

func (s *Service) requireLikeTargets(ctx context.Context, tx *sqlx.Tx, userID, messageID int64) error {
	if err := requireUsers(ctx, s.users.WithTx(tx), userID); err != nil {
		return err
	}
	ok, err := s.messages.WithTx(tx).Exists(ctx, messageID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: message %d", ErrNotFound, messageID)
	}
	return nil
}

func requireUsers(ctx context.Context, users *userrepo.UserRepo, ids ...int64) error {
	for _, id := range ids {
		ok, err := users.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
	}
	return nil
}

// notFoundOnFK covers a referenced row deleted between the existence
// check and the insert.
func notFoundOnFK(err error) error {
	if errors.Is(err, database.ErrForeignKeyViolation) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
