package service

import (
	"courseforge_backend/internal/config"
	"courseforge_backend/internal/model"
	"courseforge_backend/internal/repository"
	"courseforge_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T) *AuthService {
	db := newTestDB(t)
	cfg := &config.Config{}
	cfg.JWT.Secret = "unit-test-secret-which-is-long-enough"
	cfg.JWT.ExpireTime = time.Hour
	return NewAuthService(repository.NewUserRepository(db), cfg)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newAuthService(t)

	user := &model.User{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "plaintext-password",
		Role:     model.Student,
	}
	require.NoError(t, s.Register(user))
	assert.NotEqual(t, "plaintext-password", user.Password, "password must be hashed before persisting")

	token, err := s.Login("ada@example.com", "plaintext-password")
	require.NoError(t, err)

	claims, err := util.ParseJWT(token, s.Cfg.JWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, model.Student, claims.Role)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newAuthService(t)

	first := &model.User{Name: "A", Email: "dup@example.com", Password: "password-one"}
	require.NoError(t, s.Register(first))

	second := &model.User{Name: "B", Email: "dup@example.com", Password: "password-two"}
	assert.ErrorIs(t, s.Register(second), util.ErrEmailRegistered)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s := newAuthService(t)

	user := &model.User{Name: "Ada", Email: "ada@example.com", Password: "right-password"}
	require.NoError(t, s.Register(user))

	_, err := s.Login("ada@example.com", "wrong-password")
	assert.Error(t, err)

	_, err = s.Login("nobody@example.com", "whatever")
	assert.Error(t, err)
}
