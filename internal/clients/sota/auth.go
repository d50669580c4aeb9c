package sota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spotterlabs/talkspot/internal/config"
	"github.com/spotterlabs/talkspot/internal/dispatch"
)

// expirySkew refreshes tokens slightly before their stated expiry so a
// token never dies mid-request.
const expirySkew = 60 * time.Second

type tokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Auth manages SOTA SSO tokens: device-code login, refresh, and a JSON
// token file shared between talkspotd and talkspot-auth.
type Auth struct {
	ssoURL    string
	clientID  string
	tokenPath string
	httpc     *http.Client
	clock     func() time.Time

	mu     sync.Mutex
	tokens tokenSet
}

func NewAuth(cfg config.SOTAConfig) (*Auth, error) {
	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir for token file: %w", err)
		}
		tokenPath = filepath.Join(home, ".config", "talkspot", "sota_tokens.json")
	}

	a := &Auth{
		ssoURL:    strings.TrimRight(cfg.SSOURL, "/"),
		clientID:  cfg.ClientID,
		tokenPath: tokenPath,
		httpc:     &http.Client{Timeout: 10 * time.Second},
		clock:     time.Now,
	}
	a.loadTokens()
	return a, nil
}

func (a *Auth) loadTokens() {
	data, err := os.ReadFile(a.tokenPath)
	if err != nil {
		return
	}
	var ts tokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return
	}
	a.tokens = ts
}

func (a *Auth) saveTokens() error {
	if err := os.MkdirAll(filepath.Dir(a.tokenPath), 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.MarshalIndent(a.tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}
	if err := os.WriteFile(a.tokenPath, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Authenticated reports whether a refresh token is on file. The access
// token may still need a refresh before use.
func (a *Auth) Authenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens.RefreshToken != ""
}

func (a *Auth) AccessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens.AccessToken
}

func (a *Auth) IDToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens.IDToken
}

type deviceCodeResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
}

func (t tokenResponse) lifetime() time.Duration {
	if t.ExpiresIn <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(t.ExpiresIn) * time.Second
}

// DeviceLogin runs the OAuth device-code flow. User instructions are
// written to out; the call blocks until login completes, the code
// expires, or ctx is canceled.
func (a *Auth) DeviceLogin(ctx context.Context, out io.Writer) error {
	form := url.Values{"client_id": {a.clientID}}
	resp, err := a.postForm(ctx, a.ssoURL+"/auth/device", form)
	if err != nil {
		return fmt.Errorf("request device code: %w", err)
	}
	var device deviceCodeResponse
	if err := decodeJSON(resp, &device); err != nil {
		return fmt.Errorf("parse device code response: %w", err)
	}

	verify := device.VerificationURIComplete
	if verify == "" {
		verify = device.VerificationURI
	}
	fmt.Fprintf(out, "To authorize, visit: %s\n", verify)
	if device.UserCode != "" {
		fmt.Fprintf(out, "Enter code: %s\n", device.UserCode)
	}
	fmt.Fprintln(out, "Waiting for login to complete...")

	interval := time.Duration(device.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	expiresIn := time.Duration(device.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = 10 * time.Minute
	}
	deadline := a.clock().Add(expiresIn)

	for a.clock().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		form := url.Values{
			"client_id":   {a.clientID},
			"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
			"device_code": {device.DeviceCode},
		}
		resp, err := a.postForm(ctx, a.ssoURL+"/token", form)
		if err != nil {
			continue // transient; poll again
		}
		var token tokenResponse
		if err := decodeJSON(resp, &token); err != nil {
			return fmt.Errorf("parse token response: %w", err)
		}

		switch token.Error {
		case "":
			a.storeTokens(token)
			fmt.Fprintln(out, "Login successful.")
			return a.saveLocked()
		case "authorization_pending":
			continue
		case "slow_down":
			interval += 5 * time.Second
		case "expired_token":
			return fmt.Errorf("device code expired before login completed")
		case "access_denied":
			return fmt.Errorf("login was denied")
		default:
			return fmt.Errorf("unexpected auth error: %s", token.Error)
		}
	}
	return fmt.Errorf("login timed out")
}

// Refresh exchanges the refresh token for a fresh access token. An
// invalid_grant response means the refresh token itself expired; stored
// tokens are cleared and a new device login is required.
func (a *Auth) Refresh(ctx context.Context) error {
	a.mu.Lock()
	refreshToken := a.tokens.RefreshToken
	a.mu.Unlock()
	if refreshToken == "" {
		return dispatch.ErrAuthRequired
	}

	form := url.Values{
		"client_id":     {a.clientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	resp, err := a.postForm(ctx, a.ssoURL+"/token", form)
	if err != nil {
		return fmt.Errorf("%w: refresh tokens: %v", dispatch.ErrUnreachable, err)
	}
	var token tokenResponse
	if err := decodeJSON(resp, &token); err != nil {
		return fmt.Errorf("parse refresh response: %w", err)
	}
	if token.Error != "" {
		if token.Error == "invalid_grant" {
			a.clearTokens()
			return fmt.Errorf("%w: refresh token rejected", dispatch.ErrAuthExpired)
		}
		return fmt.Errorf("%w: %s", dispatch.ErrAuthExpired, token.Error)
	}

	a.mu.Lock()
	a.tokens.AccessToken = token.AccessToken
	a.tokens.IDToken = token.IDToken
	if token.RefreshToken != "" {
		a.tokens.RefreshToken = token.RefreshToken
	}
	a.tokens.ExpiresAt = a.clock().Add(token.lifetime()).Unix()
	a.mu.Unlock()
	return a.saveLocked()
}

// EnsureValid guarantees a usable access token, refreshing when the
// current one is expired or about to expire.
func (a *Auth) EnsureValid(ctx context.Context) error {
	if !a.Authenticated() {
		return dispatch.ErrAuthRequired
	}
	a.mu.Lock()
	expiresAt := time.Unix(a.tokens.ExpiresAt, 0)
	a.mu.Unlock()
	if a.clock().After(expiresAt.Add(-expirySkew)) {
		return a.Refresh(ctx)
	}
	return nil
}

// Logout clears stored tokens and removes the token file.
func (a *Auth) Logout() error {
	a.clearTokens()
	if err := os.Remove(a.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

func (a *Auth) storeTokens(token tokenResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens = tokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      token.IDToken,
		ExpiresAt:    a.clock().Add(token.lifetime()).Unix(),
	}
}

func (a *Auth) clearTokens() {
	a.mu.Lock()
	a.tokens = tokenSet{}
	a.mu.Unlock()
}

func (a *Auth) saveLocked() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saveTokens()
}

func (a *Auth) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.httpc.Do(req)
}

func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
