package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/drive-sync/internal/errors"
	"github.com/alexjbarnes/drive-sync/internal/state"
	"github.com/tidwall/gjson"
)

const defaultTokenURL = "https://oauth2.googleapis.com/token"

// expirySkew is subtracted from the token lifetime so a token is
// refreshed before the store starts rejecting it mid-walk.
const expirySkew = 30 * time.Second

// Credentials is the OAuth client material loaded from the credentials
// file: a long-lived refresh token plus the client it was issued to.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// LoadCredentials reads the credentials file at path. Sealed files
// (produced by `drive-sync encrypt-credentials`) are decrypted with the
// given passphrase; plain JSON files load directly.
func LoadCredentials(path, passphrase string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	if IsSealed(data) {
		if passphrase == "" {
			return nil, fmt.Errorf("credentials file %s is sealed but no passphrase is configured", path)
		}
		data, err = OpenCredentials(data, passphrase)
		if err != nil {
			return nil, fmt.Errorf("unsealing credentials file: %w", err)
		}
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}

	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" {
		return nil, fmt.Errorf("%w: credentials file missing client_id, client_secret, or refresh_token", apperrors.ErrInvalidCredentials)
	}

	return &creds, nil
}

// Authenticator exchanges the refresh token for access tokens. Tokens
// are cached in memory for the process lifetime and in the state store
// across runs; Invalidate drops both so the next Token call performs a
// fresh exchange.
type Authenticator struct {
	httpClient *http.Client
	tokenURL   string
	creds      *Credentials
	state      *state.State
	logger     *slog.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewAuthenticator creates an authenticator. If httpClient is nil,
// http.DefaultClient is used; if tokenURL is empty, the default token
// endpoint is used. appState may be nil, disabling cross-run caching.
func NewAuthenticator(httpClient *http.Client, tokenURL string, creds *Credentials, appState *state.State, logger *slog.Logger) *Authenticator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return &Authenticator{
		httpClient: httpClient,
		tokenURL:   tokenURL,
		creds:      creds,
		state:      appState,
		logger:     logger,
	}
}

// Token returns a bearer token, refreshing when the cached one is
// missing or near expiry.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.expiry) {
		return a.token, nil
	}

	// A token persisted by a previous run has no known expiry; try it
	// once. The client invalidates it on 401 and we exchange fresh.
	if a.token == "" && a.state != nil {
		if cached := a.state.Token(); cached != "" {
			a.logger.Debug("trying cached token")
			a.token = cached
			a.expiry = time.Now().Add(expirySkew)
			return a.token, nil
		}
	}

	return a.refresh(ctx)
}

// Invalidate drops the current token. Called by the API client when the
// store rejects it.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.token = ""
	a.expiry = time.Time{}
	if a.state != nil {
		if err := a.state.ClearToken(); err != nil {
			a.logger.Warn("failed to clear cached token", slog.String("error", err.Error()))
		}
	}
}

// refresh performs the refresh-token grant. Caller holds a.mu.
func (a *Authenticator) refresh(ctx context.Context) (string, error) {
	a.logger.Info("refreshing access token")

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", a.creds.RefreshToken)
	form.Set("client_id", a.creds.ClientID)
	form.Set("client_secret", a.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token endpoint: %v", apperrors.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if msg := gjson.GetBytes(body, "error_description").Str; msg != "" {
			return "", fmt.Errorf("%w: %s", apperrors.ErrInvalidCredentials, msg)
		}
		return "", fmt.Errorf("%w: token endpoint returned status %d", apperrors.ErrInvalidCredentials, resp.StatusCode)
	}

	token := gjson.GetBytes(body, "access_token").Str
	if token == "" {
		return "", fmt.Errorf("%w: token response has no access_token", apperrors.ErrAPIResponse)
	}

	lifetime := time.Duration(gjson.GetBytes(body, "expires_in").Int()) * time.Second
	if lifetime <= expirySkew {
		lifetime = time.Hour
	}

	a.token = token
	a.expiry = time.Now().Add(lifetime - expirySkew)

	if a.state != nil {
		if err := a.state.SetToken(token); err != nil {
			a.logger.Warn("failed to cache token", slog.String("error", err.Error()))
		}
	}

	return a.token, nil
}
