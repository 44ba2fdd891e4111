package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/repository/mocks"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "idp", time.Minute)
	token, expires, err := tm.GenerateToken("agent-a", domain.RoleAgent)
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-a", claims.Subject)
	assert.Equal(t, domain.RoleAgent, claims.Role)
}

func TestParseTokenRejects(t *testing.T) {
	tm := NewTokenManager("secret", "idp", time.Minute)

	other, _, err := NewTokenManager("other", "idp", time.Minute).GenerateToken("agent-a", domain.RoleAgent)
	require.NoError(t, err)
	_, err = tm.ParseToken(other)
	assert.Error(t, err, "wrong key")

	foreign, _, err := NewTokenManager("secret", "elsewhere", time.Minute).GenerateToken("agent-a", domain.RoleAgent)
	require.NoError(t, err)
	_, err = tm.ParseToken(foreign)
	assert.Error(t, err, "wrong issuer")

	stale := NewTokenManager("secret", "idp", time.Minute)
	stale.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := stale.GenerateToken("agent-a", domain.RoleAgent)
	require.NoError(t, err)
	_, err = tm.ParseToken(expired)
	assert.Error(t, err, "expired")

	_, _, err = tm.GenerateToken(" ", domain.RoleAgent)
	assert.Error(t, err)
}

func newAuthApp(t *testing.T, tm *TokenManager) (*fiber.App, *mocks.MockUserRepository) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserRepository(ctrl)

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
	}})
	mw := NewAuthMiddleware(tm, users)
	app.Get("/me", mw.Handle, RequireRole(), func(c *fiber.Ctx) error {
		actor, _ := ActorFromContext(c)
		return c.SendString(actor.ID)
	})
	app.Get("/admin", mw.Handle, RequireRole(domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app, users
}

func TestMiddlewareResolvesActor(t *testing.T) {
	tm := NewTokenManager("secret", "", time.Minute)
	app, users := newAuthApp(t, tm)
	token, _, err := tm.GenerateToken("agent-a", domain.RoleAgent)
	require.NoError(t, err)

	users.EXPECT().GetByID(gomock.Any(), "agent-a").Return(&domain.User{ID: "agent-a", Role: domain.RoleAgent, Active: true}, nil).Times(2)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestMiddlewareRejections(t *testing.T) {
	tm := NewTokenManager("secret", "", time.Minute)
	app, users := newAuthApp(t, tm)

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	cases := []struct {
		actor  string
		user   *domain.User
		err    error
		status int
	}{
		{actor: "ghost", err: repository.ErrNotFound, status: fiber.StatusUnauthorized},
		{actor: "agent-off", user: &domain.User{ID: "agent-off", Role: domain.RoleAgent}, status: fiber.StatusForbidden},
		{actor: "agent-a", err: errors.New("db down"), status: fiber.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		token, _, err := tm.GenerateToken(tc.actor, domain.RoleAgent)
		require.NoError(t, err)
		users.EXPECT().GetByID(gomock.Any(), tc.actor).Return(tc.user, tc.err)

		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.actor)
	}
}
