package user_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/dbtest"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
)

func newService(t *testing.T) (*user.UserService, *sqlx.DB) {
	t.Helper()
	db := dbtest.Open(t)
	svc, err := user.NewUserService(db, dbtest.IDs(t), user.BcryptHasher{Cost: bcrypt.MinCost}, user.Config{}, dbtest.Logger())
	require.NoError(t, err)
	return svc, db
}

func countUsers(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(1) FROM users`))
	return n
}

func TestSignup_StoresHashedPassword(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	u, err := svc.Signup(ctx, user.SignupInput{
		Username: "testuser",
		Email:    "test@test.com",
		Password: "password",
	})
	require.NoError(t, err)

	assert.NotZero(t, u.ID)
	assert.Equal(t, "testuser", u.Username)
	assert.Equal(t, "test@test.com", u.Email)
	assert.NotEqual(t, "password", u.PasswordHash)
	assert.True(t, len(u.PasswordHash) > 0 && u.PasswordHash[:4] == "$2a$", "bcrypt hash expected, got %q", u.PasswordHash)
	assert.Equal(t, "/static/images/default-pic.png", u.ImageURL)
	assert.Equal(t, "/static/images/warbler-hero.jpg", u.HeaderImageURL)
	assert.Empty(t, u.Bio)
	assert.Empty(t, u.Location)

	stored, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Username, stored.Username)
	assert.Equal(t, u.PasswordHash, stored.PasswordHash)
	assert.Equal(t, 1, countUsers(t, db))
}

func TestSignup_CustomImageURL(t *testing.T) {
	svc, _ := newService(t)

	u, err := svc.Signup(context.Background(), user.SignupInput{
		Username: "pic", Email: "pic@test.com", Password: "pw", ImageURL: "https://img.example/me.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/me.png", u.ImageURL)
}

func TestSignup_DuplicateUsernameOrEmail(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, user.SignupInput{Username: "testuser", Email: "test@test.com", Password: "password"})
	require.NoError(t, err)

	_, err = svc.Signup(ctx, user.SignupInput{Username: "testuser", Email: "other@test.com", Password: "password"})
	assert.ErrorIs(t, err, user.ErrIntegrityViolation)

	_, err = svc.Signup(ctx, user.SignupInput{Username: "other", Email: "test@test.com", Password: "password"})
	assert.ErrorIs(t, err, user.ErrIntegrityViolation)

	assert.Equal(t, 1, countUsers(t, db))
}

func TestSignup_Validation(t *testing.T) {
	svc, db := newService(t)
	long := make([]byte, 73)
	for i := range long {
		long[i] = 'x'
	}
	cases := map[string]user.SignupInput{
		"blank username": {Username: "  ", Email: "a@test.com", Password: "pw"},
		"blank email":    {Username: "a", Email: "", Password: "pw"},
		"empty password": {Username: "a", Email: "a@test.com", Password: ""},
		"long password":  {Username: "a", Email: "a@test.com", Password: string(long)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), in)
			assert.ErrorIs(t, err, user.ErrValidation)
		})
	}
	assert.Equal(t, 0, countUsers(t, db))
}

func TestSignupTx_PendingUntilCommit(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		_, err := svc.SignupTx(ctx, tx, user.SignupInput{Username: "first", Email: "first@test.com", Password: "pw"})
		require.NoError(t, err)
		_, err = svc.SignupTx(ctx, tx, user.SignupInput{Username: "second", Email: "second@test.com", Password: "pw"})
		require.NoError(t, err)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countUsers(t, db))
}

func TestSignupTx_RollbackDiscardsBatch(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := svc.SignupTx(ctx, tx, user.SignupInput{Username: "dup", Email: "one@test.com", Password: "pw"}); err != nil {
			return err
		}
		_, err := svc.SignupTx(ctx, tx, user.SignupInput{Username: "dup", Email: "two@test.com", Password: "pw"})
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, user.ErrIntegrityViolation))
	assert.Equal(t, 0, countUsers(t, db))
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created, err := svc.Signup(ctx, user.SignupInput{Username: "testuser", Email: "test@test.com", Password: "password"})
	require.NoError(t, err)

	u, ok, err := svc.Authenticate(ctx, "testuser", "password")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created.ID, u.ID)

	u, ok, err = svc.Authenticate(ctx, "badusername", "password")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, u)

	u, ok, err = svc.Authenticate(ctx, "testuser", "badpassword")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, u)
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = svc.GetByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestList_FiltersByUsername(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "alfred"} {
		_, err := svc.Signup(ctx, user.SignupInput{Username: name, Email: name + "@test.com", Password: "pw"})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	filtered, err := svc.List(ctx, "al", 0)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "alfred", filtered[0].Username)
	assert.Equal(t, "alice", filtered[1].Username)

	upper, err := svc.List(ctx, "AL", 0)
	require.NoError(t, err)
	assert.Len(t, upper, 2)
}

func TestList_WildcardsMatchLiterally(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "a_b", "100%real", `back\slash`} {
		_, err := svc.Signup(ctx, user.SignupInput{Username: name, Email: name + "@test.com", Password: "pw"})
		require.NoError(t, err)
	}

	for _, tc := range []struct {
		search string
		want   []string
	}{
		{"%", []string{"100%real"}},
		{"_", []string{"a_b"}},
		{"a_", []string{"a_b"}},
		{`\`, []string{`back\slash`}},
		{"0%R", []string{"100%real"}},
	} {
		got, err := svc.List(ctx, tc.search, 0)
		require.NoError(t, err, tc.search)
		names := []string{}
		for _, u := range got {
			names = append(names, u.Username)
		}
		assert.Equal(t, tc.want, names, tc.search)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	u, err := svc.Signup(ctx, user.SignupInput{Username: "testuser", Email: "test@test.com", Password: "password"})
	require.NoError(t, err)
	other, err := svc.Signup(ctx, user.SignupInput{Username: "taken", Email: "taken@test.com", Password: "password"})
	require.NoError(t, err)
	p := auth.Principal{UserID: u.ID}

	bio, loc, empty := "hello", "Copenhagen", ""
	updated, err := svc.UpdateProfile(ctx, p, "password", user.ProfileUpdate{Bio: &bio, Location: &loc, ImageURL: &empty})
	require.NoError(t, err)
	assert.Equal(t, "hello", updated.Bio)
	assert.Equal(t, "Copenhagen", updated.Location)
	assert.Equal(t, "/static/images/default-pic.png", updated.ImageURL)
	assert.Equal(t, "testuser", updated.Username)

	_, err = svc.UpdateProfile(ctx, p, "wrong", user.ProfileUpdate{Bio: &empty})
	assert.ErrorIs(t, err, user.ErrBadCredentials)

	_, err = svc.UpdateProfile(ctx, p, "password", user.ProfileUpdate{Username: &other.Username})
	assert.ErrorIs(t, err, user.ErrIntegrityViolation)

	_, err = svc.UpdateProfile(ctx, auth.Principal{}, "password", user.ProfileUpdate{Bio: &bio})
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	stored, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "testuser", stored.Username)
	assert.Equal(t, "hello", stored.Bio)
}

func TestDelete(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	u, err := svc.Signup(ctx, user.SignupInput{Username: "gone", Email: "gone@test.com", Password: "pw"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, auth.Principal{}), auth.ErrNotAuthenticated)

	require.NoError(t, svc.Delete(ctx, auth.Principal{UserID: u.ID}))
	assert.Equal(t, 0, countUsers(t, db))
	assert.ErrorIs(t, svc.Delete(ctx, auth.Principal{UserID: u.ID}), user.ErrNotFound)

	_, ok, err := svc.Authenticate(ctx, "gone", "pw")
	require.NoError(t, err)
	assert.False(t, ok)
}
