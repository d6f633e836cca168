package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

func testManager(t *testing.T) *TokenManager {
	t.Helper()
	m := newTokenManager(&oauth2.Config{}, "test", t.TempDir(), zap.NewNop())
	m.checkScopes = func(context.Context, *oauth2.Token) error { return nil }
	m.authorize = func(context.Context) (*oauth2.Token, error) {
		return nil, errors.New("authorization not expected")
	}
	return m
}

func TestTokenManager_SaveLoadDelete(t *testing.T) {
	m := testManager(t)

	token, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, token)

	want := &oauth2.Token{AccessToken: "abc", RefreshToken: "def", Expiry: time.Now().Add(time.Hour).Round(time.Second)}
	require.NoError(t, m.Save(want))

	info, err := os.Stat(filepath.Join(m.dir, "token-test.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(tokenFilePerms), info.Mode().Perm())

	got, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.True(t, want.Expiry.Equal(got.Expiry))

	require.NoError(t, m.Delete())
	require.NoError(t, m.Delete())
	got, err = m.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTokenManager_UsesValidFileToken(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Save(&oauth2.Token{AccessToken: "abc", Expiry: time.Now().Add(time.Hour)}))

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token.AccessToken)

	// served from memory once cached
	require.NoError(t, m.Delete())
	token, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token.AccessToken)
}

func TestTokenManager_MissingScopesTriggersAuthorization(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Save(&oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(time.Hour)}))

	m.checkScopes = func(_ context.Context, token *oauth2.Token) error {
		if token.AccessToken == "old" {
			return missingScopes(nil)
		}
		return nil
	}
	m.authorize = func(context.Context) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "new", Expiry: time.Now().Add(time.Hour)}, nil
	}

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", token.AccessToken)

	saved, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "new", saved.AccessToken)
}

func TestTokenManager_AuthorizationFailure(t *testing.T) {
	m := testManager(t)

	_, err := m.Token(context.Background())
	assert.ErrorContains(t, err, "authorization not expected")
}

func TestMissingScopes(t *testing.T) {
	assert.NoError(t, missingScopes([]string{"openid", ScopeGmailSend}))

	err := missingScopes([]string{"openid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ScopeGmailSend)
}
