// Package auth owns the OAuth token lifecycle. A single TokenCache holds the
// application level client-credentials token and one token record per
// connected user. Nothing else in the application mutates tokens.
//
// User records live in memory; a durable store mirrors them best-effort so
// connections survive a restart. The in-memory map stays authoritative: a
// failed durable write is logged and the operation still succeeds.
//
// Reads check expiry and refresh synchronously under no lock, so two
// concurrent requests that both observe an expired token may both refresh.
// Both refreshes are individually valid and the last writer wins; this race
// is accepted rather than designed away.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	spotifyoauth "golang.org/x/oauth2/spotify"

	"github.com/Rami2x/PlaylistLoop/pkg/metrics"
)

// safetyMargin is subtracted from every token's expiry so a token is never
// presented upstream moments before it lapses mid-flight.
const safetyMargin = 15 * time.Second

// Scopes requested during the authorization-code flow; playlist export needs
// write access to both public and private playlists.
var userScopes = []string{"playlist-modify-public", "playlist-modify-private"}

// Sentinel errors. Handlers map these onto HTTP statuses.
var (
	// ErrCredentialsMissing means the application client ID/secret are not
	// configured, so no catalog call can be authenticated.
	ErrCredentialsMissing = errors.New("spotify credentials not configured")

	// ErrUpstreamAuth means the authorization server rejected a credential
	// exchange.
	ErrUpstreamAuth = errors.New("spotify authentication failed")

	// ErrNotConnected means the user has never completed the OAuth flow on
	// this installation.
	ErrNotConnected = errors.New("user not connected to spotify")

	// ErrReauthRequired means the user's stored tokens are no longer usable
	// and a fresh consent flow is needed.
	ErrReauthRequired = errors.New("spotify connection expired, reconnect required")
)

// TokenStore is the durable mirror of the user token map, implemented by
// pkg/db. All calls against it are best-effort.
type TokenStore interface {
	SaveToken(ctx context.Context, userID string, token *oauth2.Token) error
	GetToken(ctx context.Context, userID string) (*oauth2.Token, error)
	DeleteToken(ctx context.Context, userID string) error
}

// Config carries everything the token cache needs at construction time.
// Store and Log are optional.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Store        TokenStore
	Log          *logrus.Logger
}

// TokenCache is the owner of the application token and the per-user token
// records.
type TokenCache struct {
	store TokenStore
	log   *logrus.Logger
	oauth *oauth2.Config

	// Exchange functions are fields so tests can count and stub the
	// upstream round trips.
	appExchange     func(ctx context.Context) (*oauth2.Token, error)
	refreshExchange func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	codeExchange    func(ctx context.Context, code string) (*oauth2.Token, error)

	now func() time.Time

	mu     sync.Mutex
	appTok *oauth2.Token
	users  map[string]*oauth2.Token
}

// New builds a TokenCache from the application credentials. Empty credentials
// are allowed; every token operation then fails with ErrCredentialsMissing.
func New(cfg Config) *TokenCache {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}

	c := &TokenCache{
		store: cfg.Store,
		log:   log,
		now:   time.Now,
		users: make(map[string]*oauth2.Token),
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return c
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyoauth.Endpoint.TokenURL,
	}
	c.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       userScopes,
		Endpoint:     spotifyoauth.Endpoint,
	}

	c.appExchange = cc.Token
	c.refreshExchange = func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		// TokenSource performs a refresh-grant exchange when handed a token
		// with only the refresh credential set.
		return c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	}
	c.codeExchange = func(ctx context.Context, code string) (*oauth2.Token, error) {
		return c.oauth.Exchange(ctx, code)
	}
	return c
}

// AppToken returns a valid application bearer token, performing a
// client-credentials exchange when the cached one is missing or expired.
func (c *TokenCache) AppToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.appTok
	c.mu.Unlock()
	if tok != nil && c.now().Before(tok.Expiry) {
		return tok.AccessToken, nil
	}

	if c.appExchange == nil {
		return "", ErrCredentialsMissing
	}
	newTok, err := c.appExchange(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}
	applyMargin(newTok)
	c.log.WithField("expires", newTok.Expiry).Info("app token refreshed")

	c.mu.Lock()
	c.appTok = newTok
	c.mu.Unlock()
	return newTok.AccessToken, nil
}

// UserToken returns a valid access token for the given user, refreshing it
// when expired. ErrNotConnected is returned for unknown users; a failed or
// impossible refresh deletes the record and returns ErrReauthRequired.
func (c *TokenCache) UserToken(ctx context.Context, userID string) (string, error) {
	tok := c.lookup(ctx, userID)
	if tok == nil {
		return "", ErrNotConnected
	}

	if c.now().Before(tok.Expiry) {
		return tok.AccessToken, nil
	}

	if tok.RefreshToken == "" || c.refreshExchange == nil {
		// Without a refresh token the record is terminal once expired.
		c.remove(ctx, userID)
		return "", ErrReauthRequired
	}

	c.log.WithField("user", userID).Info("refreshing user token")
	metrics.TokenRefreshes.Inc()
	newTok, err := c.refreshExchange(ctx, tok.RefreshToken)
	if err != nil {
		// Refresh failures are not retried; the refresh token is treated as
		// permanently invalid so the user re-authenticates instead of
		// looping.
		c.log.WithError(err).WithField("user", userID).Warn("token refresh failed")
		c.remove(ctx, userID)
		return "", ErrReauthRequired
	}

	// Replace the access token and expiry in place. The refresh token only
	// rotates when the upstream issues a new one.
	updated := &oauth2.Token{
		AccessToken:  newTok.AccessToken,
		TokenType:    newTok.TokenType,
		RefreshToken: newTok.RefreshToken,
		Expiry:       newTok.Expiry,
	}
	if updated.RefreshToken == "" {
		updated.RefreshToken = tok.RefreshToken
	}
	applyMargin(updated)
	c.StoreUserToken(ctx, userID, updated)
	return updated.AccessToken, nil
}

// StoreUserToken upserts the user's record in memory and mirrors it to the
// durable store. Persistence failure is logged, never returned.
func (c *TokenCache) StoreUserToken(ctx context.Context, userID string, tok *oauth2.Token) {
	c.mu.Lock()
	c.users[userID] = tok
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.SaveToken(ctx, userID, tok); err != nil {
		c.log.WithError(err).WithField("user", userID).Warn("persisting user token failed; in-memory copy remains authoritative")
	}
}

// RevokeUserToken removes the user's record from memory and durable storage.
// Used when a downstream call reports the token lacks authorization.
func (c *TokenCache) RevokeUserToken(ctx context.Context, userID string) {
	c.log.WithField("user", userID).Info("revoking user token")
	c.remove(ctx, userID)
}

// Connected reports whether a token record exists for the user, regardless
// of its freshness.
func (c *TokenCache) Connected(ctx context.Context, userID string) bool {
	return c.lookup(ctx, userID) != nil
}

// Exchange swaps an authorization code for a token pair and stores it for
// the user. Called from the OAuth callback handler.
func (c *TokenCache) Exchange(ctx context.Context, userID, code string) error {
	if c.codeExchange == nil {
		return ErrCredentialsMissing
	}
	tok, err := c.codeExchange(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}
	applyMargin(tok)
	c.StoreUserToken(ctx, userID, tok)
	return nil
}

// AuthCodeURL builds the authorization redirect URL for the given user. The
// user ID travels in the state parameter so the callback can associate the
// issued tokens.
func (c *TokenCache) AuthCodeURL(userID string) (string, error) {
	if c.oauth == nil {
		return "", ErrCredentialsMissing
	}
	return c.oauth.AuthCodeURL(EncodeState(userID)), nil
}

// lookup returns the user's record, reading through to the durable store on
// a memory miss so connections survive a restart.
func (c *TokenCache) lookup(ctx context.Context, userID string) *oauth2.Token {
	c.mu.Lock()
	tok, ok := c.users[userID]
	c.mu.Unlock()
	if ok {
		return tok
	}
	if c.store == nil {
		return nil
	}
	stored, err := c.store.GetToken(ctx, userID)
	if err != nil || stored == nil {
		return nil
	}
	c.mu.Lock()
	c.users[userID] = stored
	c.mu.Unlock()
	return stored
}

// remove deletes the record from memory and, best-effort, from the store.
func (c *TokenCache) remove(ctx context.Context, userID string) {
	c.mu.Lock()
	delete(c.users, userID)
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.DeleteToken(ctx, userID); err != nil {
		c.log.WithError(err).WithField("user", userID).Warn("deleting stored user token failed")
	}
}

// applyMargin pulls the expiry forward by the safety margin when the token
// carries one.
func applyMargin(tok *oauth2.Token) {
	if !tok.Expiry.IsZero() {
		tok.Expiry = tok.Expiry.Add(-safetyMargin)
	}
}

// oauthState is the payload carried through the authorization flow's state
// parameter.
type oauthState struct {
	UserID string `json:"userId"`
}

// EncodeState packs the user ID into a URL-safe state value.
func EncodeState(userID string) string {
	b, _ := json.Marshal(oauthState{UserID: userID})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeState recovers the user ID from a state value produced by
// EncodeState.
func DecodeState(state string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return "", fmt.Errorf("decoding state: %w", err)
	}
	var s oauthState
	if err := json.Unmarshal(b, &s); err != nil {
		return "", fmt.Errorf("decoding state: %w", err)
	}
	if s.UserID == "" {
		return "", errors.New("state missing user id")
	}
	return s.UserID, nil
}
