package message_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/dbtest"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/message"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/repo"
)

func seedUser(t *testing.T, db *sqlx.DB, id int64, name string) auth.Principal {
	t.Helper()
	err := userrepo.NewUserRepo(db).Create(context.Background(), &entity.User{
		ID:             id,
		Username:       name,
		Email:          name + "@test.com",
		PasswordHash:   "x",
		ImageURL:       "/img.png",
		HeaderImageURL: "/hero.jpg",
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	return auth.Principal{UserID: id}
}

func follow(t *testing.T, db *sqlx.DB, follower, followed int64) {
	t.Helper()
	_, err := db.Exec(db.Rebind(`INSERT INTO follows (follower_id, followed_id) VALUES (?, ?)`), follower, followed)
	require.NoError(t, err)
}

func TestCreate(t *testing.T) {
	db := dbtest.Open(t)
	svc := message.NewService(db, dbtest.IDs(t), dbtest.Logger())
	alice := seedUser(t, db, 1, "alice")
	ctx := context.Background()

	m, err := svc.Create(ctx, alice, "  hello warbler  ")
	require.NoError(t, err)
	assert.Equal(t, "hello warbler", m.Text)
	assert.Equal(t, alice.UserID, m.UserID)
	assert.False(t, m.Timestamp.IsZero())

	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Text, got.Text)

	_, err = svc.Create(ctx, alice, "   ")
	assert.ErrorIs(t, err, message.ErrValidation)

	_, err = svc.Create(ctx, alice, strings.Repeat("é", 141))
	assert.ErrorIs(t, err, message.ErrValidation)

	_, err = svc.Create(ctx, alice, strings.Repeat("é", 140))
	assert.NoError(t, err)

	_, err = svc.Create(ctx, auth.Principal{}, "anonymous")
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	_, err = svc.Create(ctx, auth.Principal{UserID: 999}, "ghost")
	assert.ErrorIs(t, err, message.ErrNotFound)
}

func TestDelete_OnlyAuthor(t *testing.T) {
	db := dbtest.Open(t)
	svc := message.NewService(db, dbtest.IDs(t), dbtest.Logger())
	alice := seedUser(t, db, 1, "alice")
	bob := seedUser(t, db, 2, "bob")
	ctx := context.Background()

	m, err := svc.Create(ctx, alice, "mine")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, bob, m.ID), message.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, alice, m.ID))

	_, err = svc.Get(ctx, m.ID)
	assert.ErrorIs(t, err, message.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, alice, m.ID), message.ErrNotFound)
}

func TestListByUser_NewestFirst(t *testing.T) {
	db := dbtest.Open(t)
	svc := message.NewService(db, dbtest.IDs(t), dbtest.Logger())
	alice := seedUser(t, db, 1, "alice")
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.Create(ctx, alice, text)
		require.NoError(t, err)
	}

	msgs, err := svc.ListByUser(ctx, alice.UserID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "three", msgs[0].Text)
	assert.Equal(t, "one", msgs[2].Text)

	limited, err := svc.ListByUser(ctx, alice.UserID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	n, err := svc.CountByUser(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = svc.ListByUser(ctx, 999, 0)
	assert.ErrorIs(t, err, message.ErrNotFound)
}

func TestTimeline_OwnAndFollowed(t *testing.T) {
	db := dbtest.Open(t)
	svc := message.NewService(db, dbtest.IDs(t), dbtest.Logger())
	alice := seedUser(t, db, 1, "alice")
	bob := seedUser(t, db, 2, "bob")
	carol := seedUser(t, db, 3, "carol")
	follow(t, db, alice.UserID, bob.UserID)
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, "from alice")
	require.NoError(t, err)
	_, err = svc.Create(ctx, bob, "from bob")
	require.NoError(t, err)
	_, err = svc.Create(ctx, carol, "from carol")
	require.NoError(t, err)

	feed, err := svc.Timeline(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "from bob", feed[0].Text)
	assert.Equal(t, "bob", feed[0].Username)
	assert.Equal(t, "from alice", feed[1].Text)

	_, err = svc.Timeline(ctx, auth.Principal{}, 0)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}
