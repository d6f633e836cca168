package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jakechorley/volunteer-planner/internal/config"
)

const (
	AuthPort       = 3000
	authTimeout    = 5 * time.Minute
	callbackPath   = "/oauth/callback"
	tokenDirName   = ".volunteer-planner/tokens"
	tokenFilePerms = 0600 // Read/write for owner only
	tokenDirPerms  = 0700 // Read/write/execute for owner only
	tokenInfoURL   = "https://oauth2.googleapis.com/tokeninfo"
)

// ScopeGmailSend is the only Google scope the planner needs
const ScopeGmailSend = "https://www.googleapis.com/auth/gmail.send"

func requiredScopes() []string {
	return []string{ScopeGmailSend}
}

// GetOAuthConfig creates an OAuth2 config from the OAuth client configuration
func GetOAuthConfig(oauthCfg *config.OAuthClientConfig) (*oauth2.Config, error) {
	oauthConfigJSON, err := json.Marshal(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oauth config: %w", err)
	}

	googleConfig, err := google.ConfigFromJSON(oauthConfigJSON, requiredScopes()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}

	// Override redirect URI to use our local server
	googleConfig.RedirectURL = fmt.Sprintf("http://localhost:%d%s", AuthPort, callbackPath)

	return googleConfig, nil
}

// TokenManager caches the OAuth token for one environment in memory and on disk
// Only one authorization flow runs at a time
type TokenManager struct {
	oauthConfig *oauth2.Config
	env         string
	dir         string
	logger      *zap.Logger

	mu     sync.Mutex
	cached *oauth2.Token

	// swapped in tests
	checkScopes func(ctx context.Context, token *oauth2.Token) error
	authorize   func(ctx context.Context) (*oauth2.Token, error)
}

// NewTokenManager stores tokens under ~/.volunteer-planner/tokens
func NewTokenManager(oauthConfig *oauth2.Config, env string, logger *zap.Logger) (*TokenManager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return newTokenManager(oauthConfig, env, filepath.Join(homeDir, tokenDirName), logger), nil
}

func newTokenManager(oauthConfig *oauth2.Config, env, dir string, logger *zap.Logger) *TokenManager {
	m := &TokenManager{
		oauthConfig: oauthConfig,
		env:         env,
		dir:         dir,
		logger:      logger,
		checkScopes: validateTokenScopes,
	}
	m.authorize = m.runAuthFlow
	return m
}

// Token returns a valid token, refreshing or re-authorizing as needed
// Refreshed and newly issued tokens are written back to disk
func (m *TokenManager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.cached.Valid() {
		return m.cached, nil
	}

	fileToken, err := m.Load()
	if err != nil {
		m.logger.Warn("Failed to load token from file", zap.Error(err))
	}

	if fileToken != nil {
		if token := m.reuse(ctx, fileToken); token != nil {
			m.cached = token
			return token, nil
		}
	}

	m.logger.Info("No valid token found - starting OAuth flow")
	token, err := m.authorize(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.checkScopes(ctx, token); err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	if err := m.Save(token); err != nil {
		// the token is still usable for this run
		m.logger.Warn("Failed to save token", zap.Error(err))
	}

	m.cached = token
	return token, nil
}

// reuse returns fileToken, or a refreshed copy of it, when it still carries every required scope
func (m *TokenManager) reuse(ctx context.Context, fileToken *oauth2.Token) *oauth2.Token {
	if fileToken.Valid() {
		if err := m.checkScopes(ctx, fileToken); err != nil {
			m.logger.Warn("Cached token is missing required scopes", zap.Error(err))
			m.discard()
			return nil
		}
		return fileToken
	}

	if fileToken.RefreshToken == "" {
		return nil
	}

	refreshed, err := m.oauthConfig.TokenSource(ctx, fileToken).Token()
	if err != nil || refreshed.AccessToken == fileToken.AccessToken {
		return nil
	}

	if err := m.checkScopes(ctx, refreshed); err != nil {
		m.logger.Warn("Refreshed token is missing required scopes", zap.Error(err))
		m.discard()
		return nil
	}

	m.logger.Info("Token refreshed")
	if err := m.Save(refreshed); err != nil {
		m.logger.Warn("Failed to save refreshed token", zap.Error(err))
	}
	return refreshed
}

func (m *TokenManager) discard() {
	if err := m.Delete(); err != nil {
		m.logger.Warn("Failed to delete token file", zap.Error(err))
	}
}

// Clear drops the in-memory token so the next call re-reads the file
func (m *TokenManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil
}

func (m *TokenManager) path() string {
	return filepath.Join(m.dir, fmt.Sprintf("token-%s.json", m.env))
}

// Load reads the token file. A missing file is not an error.
func (m *TokenManager) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(m.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	return &token, nil
}

func (m *TokenManager) Save(token *oauth2.Token) error {
	if err := os.MkdirAll(m.dir, tokenDirPerms); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(m.path(), data, tokenFilePerms); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

func (m *TokenManager) Delete() error {
	if err := os.Remove(m.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

func (m *TokenManager) runAuthFlow(ctx context.Context) (*oauth2.Token, error) {
	authURL := m.oauthConfig.AuthCodeURL("state", oauth2.AccessTypeOffline)
	fmt.Printf("\nVisit this URL to authorize the application:\n%s\n\n", authURL)

	code, err := listenForAuthCallback(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	token, err := m.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return token, nil
}

// validateTokenScopes asks Google's tokeninfo endpoint which scopes the token carries
func validateTokenScopes(ctx context.Context, token *oauth2.Token) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenInfoURL+"?access_token="+token.AccessToken, nil)
	if err != nil {
		return fmt.Errorf("failed to create tokeninfo request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call tokeninfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tokeninfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenInfo struct {
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return fmt.Errorf("failed to decode tokeninfo response: %w", err)
	}

	return missingScopes(strings.Fields(tokenInfo.Scope))
}

func missingScopes(granted []string) error {
	var missing []string
	for _, required := range requiredScopes() {
		if !slices.Contains(granted, required) {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("token is missing required scopes: %v", missing)
	}
	return nil
}

// listenForAuthCallback starts a local HTTP server and waits for the OAuth callback
func listenForAuthCallback(ctx context.Context) (string, error) {
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>`)

		codeChan <- code
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", AuthPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	var code string
	var authErr error

	select {
	case code = <-codeChan:
	case authErr = <-errChan:
	case <-timeoutCtx.Done():
		authErr = fmt.Errorf("authorization timeout after %v", authTimeout)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	if authErr != nil {
		return "", authErr
	}

	return code, nil
}
