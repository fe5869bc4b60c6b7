package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

func ptr[T any](v T) *T { return &v }

func newService() *Service {
	return NewService(NewMemoryUsers(), NewMemorySessions())
}

func register(t *testing.T, s *Service, email string) (models.User, string) {
	t.Helper()
	u, token, err := s.Register(context.Background(), RegisterRequest{
		Email: email, Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	return u, token
}

func TestRegisterValidation(t *testing.T) {
	s := newService()
	ctx := context.Background()
	cases := []struct {
		req  RegisterRequest
		want string
	}{
		{RegisterRequest{Email: "a@b.c", Password: "secret1"}, "All fields are required"},
		{RegisterRequest{Email: "nope", Password: "secret1", ConfirmPassword: "secret1"}, "Please enter a valid email address"},
		{RegisterRequest{Email: "a@b.c", Password: "12345", ConfirmPassword: "12345"}, "Password must be at least 6 characters long"},
		{RegisterRequest{Email: "a@b.c", Password: "secret1", ConfirmPassword: "secret2"}, "Passwords do not match"},
	}
	for _, tc := range cases {
		_, _, err := s.Register(ctx, tc.req)
		require.Error(t, err)
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
		assert.Equal(t, tc.want, apperr.MessageOf(err))
	}
}

func TestRegisterDefaultsAndConflict(t *testing.T) {
	s := newService()
	u, token := register(t, s, "  Ada.L@Example.com ")
	assert.NotEmpty(t, token)
	assert.Equal(t, "ada.l@example.com", u.Email)
	assert.Equal(t, "ada.l", u.Name)
	assert.Contains(t, u.AvatarURL, "name=ada.l")
	assert.Equal(t, models.DefaultPreferences(), u.Preferences)

	_, _, err := s.Register(context.Background(), RegisterRequest{
		Email: "ada.l@example.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.Equal(t, "User with this email already exists", apperr.MessageOf(err))
}

func TestLoginLogoutAuthenticate(t *testing.T) {
	s := newService()
	ctx := context.Background()
	u, first := register(t, s, "me@example.com")

	_, _, err := s.Login(ctx, LoginRequest{Email: "me@example.com", Password: "wrong!!"})
	assert.ErrorIs(t, err, apperr.New(apperr.CodeInvalidCredentials))
	_, _, err = s.Login(ctx, LoginRequest{Email: "ghost@example.com", Password: "secret1"})
	assert.Equal(t, apperr.CodeInvalidCredentials, apperr.CodeOf(err))
	_, _, err = s.Login(ctx, LoginRequest{Email: "", Password: ""})
	assert.Equal(t, "Email and password are required", apperr.MessageOf(err))

	got, token, err := s.Login(ctx, LoginRequest{Email: "ME@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Authenticate(ctx, first)
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err), "a new login replaces the old session")

	me, err := s.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)

	require.NoError(t, s.Logout(ctx, token))
	_, err = s.Authenticate(ctx, token)
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
}

func TestUpdateProfile(t *testing.T) {
	s := newService()
	ctx := context.Background()
	u, _ := register(t, s, "me@example.com")

	updated, err := s.UpdateProfile(ctx, u.ID, ProfileUpdate{Name: ptr("Grace Hopper"), Theme: ptr("dark"), AutoSave: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", updated.Name)
	assert.Contains(t, updated.AvatarURL, "Grace+Hopper")
	assert.Equal(t, models.Preferences{Theme: "dark", Notifications: true, AutoSave: false}, updated.Preferences)
	assert.Equal(t, "me@example.com", updated.Email)

	_, err = s.UpdateProfile(ctx, u.ID, ProfileUpdate{Email: ptr("broken")})
	assert.Equal(t, "Invalid email format", apperr.MessageOf(err))
	_, err = s.UpdateProfile(ctx, u.ID, ProfileUpdate{Theme: ptr("neon")})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	other, _ := register(t, s, "other@example.com")
	_, err = s.UpdateProfile(ctx, other.ID, ProfileUpdate{Email: ptr("ME@example.com")})
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestProfileUpdateKeepsAvatarWhenNameUnchanged(t *testing.T) {
	u := models.User{Name: "Ada", AvatarURL: "custom"}
	ProfileUpdate{Name: ptr("Ada"), Notifications: ptr(false)}.Apply(&u)
	assert.Equal(t, "custom", u.AvatarURL)
	assert.False(t, u.Preferences.Notifications)
	assert.True(t, ProfileUpdate{}.Empty())
}

func TestChangePassword(t *testing.T) {
	s := newService()
	ctx := context.Background()
	u, token := register(t, s, "me@example.com")

	assert.Equal(t, "Current password and new password are required", apperr.MessageOf(s.ChangePassword(ctx, u.ID, "", "x")))
	assert.Equal(t, "New password must be at least 6 characters long", apperr.MessageOf(s.ChangePassword(ctx, u.ID, "secret1", "123")))
	assert.Equal(t, apperr.CodeInvalidCredentials, apperr.CodeOf(s.ChangePassword(ctx, u.ID, "nope!!", "newsecret")))

	require.NoError(t, s.ChangePassword(ctx, u.ID, "secret1", "newsecret"))
	_, err := s.Authenticate(ctx, token)
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
	_, _, err = s.Login(ctx, LoginRequest{Email: "me@example.com", Password: "newsecret"})
	assert.NoError(t, err)
}

func TestResetPassword(t *testing.T) {
	s := newService()
	assert.Equal(t, "Valid email address is required", apperr.MessageOf(s.ResetPassword(context.Background(), "nobody")))
	assert.NoError(t, s.ResetPassword(context.Background(), "unknown@example.com"))
}

func TestRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisSessions(client)
	ctx := context.Background()
	userID := uuid.New()

	first, err := store.Create(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, SessionDuration, mr.TTL(SessionKeyPrefix+first))

	second, err := store.Create(ctx, userID)
	require.NoError(t, err)
	_, ok, err := store.Resolve(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := store.Resolve(ctx, second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, userID, got)

	mr.FastForward(SessionDuration + time.Second)
	_, ok, err = store.Resolve(ctx, second)
	require.NoError(t, err)
	assert.False(t, ok)

	third, err := store.Create(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, third))
	assert.False(t, mr.Exists(UserSessionKeyPrefix+userID.String()))
}

func TestMemorySessionsExpire(t *testing.T) {
	store := NewMemorySessions()
	now := time.Now()
	store.now = func() time.Time { return now }
	token, err := store.Create(context.Background(), uuid.New())
	require.NoError(t, err)

	now = now.Add(SessionDuration)
	_, ok, err := store.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLUsersOnSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	repo := NewSQLUsers(db, SQLite)
	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))

	now := time.Now().UTC().Truncate(time.Second)
	u := models.User{
		ID: uuid.New(), Email: "me@example.com", Name: "me", PasswordHash: "h",
		CreatedAt: now, UpdatedAt: now, LastLogin: now, Preferences: models.DefaultPreferences(),
	}
	require.NoError(t, repo.Create(ctx, u))
	assert.ErrorIs(t, repo.Create(ctx, models.User{ID: uuid.New(), Email: "me@example.com", CreatedAt: now, UpdatedAt: now, LastLogin: now}), ErrEmailTaken)

	got, err := repo.GetByEmail(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.True(t, got.Preferences.AutoSave)
	assert.True(t, now.Equal(got.CreatedAt))

	got.Preferences.Theme = "dark"
	got.Name = "Me Again"
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "dark", again.Preferences.Theme)
	assert.Equal(t, "Me Again", again.Name)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, repo.Update(ctx, models.User{ID: uuid.New(), Email: "x@y.z"}), ErrUserNotFound)
}

func TestRebind(t *testing.T) {
	pg := NewSQLUsers(nil, Postgres)
	lite := NewSQLUsers(nil, SQLite)
	q := `UPDATE users SET a = $2, b = $10 WHERE id = $1 AND c = '$'`
	assert.Equal(t, q, pg.rebind(q))
	assert.Equal(t, `UPDATE users SET a = ?2, b = ?10 WHERE id = ?1 AND c = '$'`, lite.rebind(q))
}
