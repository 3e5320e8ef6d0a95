// Package spotify implements the catalog client used by the rest of the
// application. It talks to the Spotify Web API directly over HTTP: read-only
// catalog calls (search, tracks, artists, recommendations) authenticate with
// the application token obtained from the injected TokenProvider, while user
// scoped calls (profile, playlist creation) take an explicit bearer token
// supplied by the caller.
//
// Failures from the upstream API are returned as *APIError values carrying
// the requested resource, the HTTP status and a truncated error detail so
// callers can diagnose problems without the full response body ending up in
// logs.
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Rami2x/PlaylistLoop/pkg/music"
)

// DefaultBaseURL is the production Spotify Web API root.
const DefaultBaseURL = "https://api.spotify.com/v1"

// maxErrorDetail bounds how much of an upstream error body is kept.
const maxErrorDetail = 200

// TokenProvider supplies the application level bearer token used for
// read-only catalog calls. It is implemented by auth.TokenCache.
type TokenProvider interface {
	AppToken(ctx context.Context) (string, error)
}

// APIError describes a non-2xx response from the Spotify API.
type APIError struct {
	Resource string
	Status   int
	Detail   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify: %s returned %d: %s", e.Resource, e.Status, e.Detail)
}

// IsAuthError reports whether err is an APIError signalling that the bearer
// token lacks authorization (401 or 403), as distinct from ordinary expiry
// which the token cache handles before a request is made.
func IsAuthError(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}

// Client is the catalog API client. HTTP and BaseURL may be overridden in
// tests; both receive defaults from New.
type Client struct {
	Tokens  TokenProvider
	HTTP    *http.Client
	BaseURL string
	Log     *logrus.Logger
}

// New returns a client with a 10 second request timeout.
func New(tokens TokenProvider, log *logrus.Logger) *Client {
	return &Client{
		Tokens:  tokens,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		BaseURL: DefaultBaseURL,
		Log:     log,
	}
}

// UserProfile is the subset of the user profile the application reads, plus
// the raw payload so the /api/spotify/me endpoint can proxy it unchanged.
type UserProfile struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name"`
	Raw         json.RawMessage `json:"-"`
}

// Playlist describes a playlist created on the user's account.
type Playlist struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	ExternalURLs map[string]string `json:"external_urls"`
}

// URL returns the public link to the playlist.
func (p Playlist) URL() string { return p.ExternalURLs["spotify"] }

// SearchTracks runs a track search and returns up to limit matches. An empty
// result set is returned as an empty slice, not an error; the fallback
// recommender treats empty steps as a soft miss.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]music.Track, error) {
	params := url.Values{
		"q":     {query},
		"type":  {"track"},
		"limit": {strconv.Itoa(limit)},
	}
	var body struct {
		Tracks struct {
			Items []music.Track `json:"items"`
		} `json:"tracks"`
	}
	if err := c.get(ctx, "search", params, &body); err != nil {
		return nil, err
	}
	return body.Tracks.Items, nil
}

// GetTrack fetches full metadata for a single track.
func (c *Client) GetTrack(ctx context.Context, id string) (music.Track, error) {
	var t music.Track
	if err := c.get(ctx, "tracks/"+id, nil, &t); err != nil {
		return music.Track{}, err
	}
	if t.ID == "" {
		return music.Track{}, &APIError{Resource: "tracks/" + id, Status: http.StatusNotFound, Detail: "track has no id"}
	}
	return t, nil
}

// GetArtist fetches a full artist object including its genre list.
func (c *Client) GetArtist(ctx context.Context, id string) (music.Artist, error) {
	var a music.Artist
	if err := c.get(ctx, "artists/"+id, nil, &a); err != nil {
		return music.Artist{}, err
	}
	return a, nil
}

// GetRelatedArtists returns artists related to the given artist ID.
func (c *Client) GetRelatedArtists(ctx context.Context, id string) ([]music.Artist, error) {
	var body struct {
		Artists []music.Artist `json:"artists"`
	}
	if err := c.get(ctx, "artists/"+id+"/related-artists", nil, &body); err != nil {
		return nil, err
	}
	return body.Artists, nil
}

// Recommendations calls the recommendation endpoint seeded by a track and,
// when known, its primary artist. An empty result is reported as an error so
// the caller degrades into the fallback chain.
func (c *Client) Recommendations(ctx context.Context, seedTrackID, seedArtistID string, limit int) ([]music.Track, error) {
	params := url.Values{
		"seed_tracks": {seedTrackID},
		"limit":       {strconv.Itoa(limit)},
	}
	if seedArtistID != "" {
		params.Set("seed_artists", seedArtistID)
	}
	var body struct {
		Tracks []music.Track `json:"tracks"`
	}
	if err := c.get(ctx, "recommendations", params, &body); err != nil {
		return nil, err
	}
	if len(body.Tracks) == 0 {
		return nil, fmt.Errorf("no recommendations found")
	}
	return body.Tracks, nil
}

// CurrentUser fetches the profile of the account the user token belongs to.
func (c *Client) CurrentUser(ctx context.Context, userToken string) (UserProfile, error) {
	raw, err := c.do(ctx, http.MethodGet, "me", nil, userToken, nil)
	if err != nil {
		return UserProfile{}, err
	}
	var p UserProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return UserProfile{}, fmt.Errorf("decoding profile: %w", err)
	}
	p.Raw = raw
	return p, nil
}

// CreatePlaylist creates a private playlist on the given account.
func (c *Client) CreatePlaylist(ctx context.Context, userToken, spotifyUserID, name, description string) (Playlist, error) {
	payload := map[string]any{
		"name":        name,
		"description": description,
		"public":      false,
	}
	raw, err := c.do(ctx, http.MethodPost, "users/"+url.PathEscape(spotifyUserID)+"/playlists", nil, userToken, payload)
	if err != nil {
		return Playlist{}, err
	}
	var p Playlist
	if err := json.Unmarshal(raw, &p); err != nil {
		return Playlist{}, fmt.Errorf("decoding playlist: %w", err)
	}
	return p, nil
}

// AddPlaylistTracks appends the given track URIs to a playlist. The upstream
// limit is 100 URIs per call; chunking is the caller's responsibility because
// ordering across calls is position sensitive.
func (c *Client) AddPlaylistTracks(ctx context.Context, userToken, playlistID string, uris []string) error {
	payload := map[string]any{"uris": uris}
	_, err := c.do(ctx, http.MethodPost, "playlists/"+playlistID+"/tracks", nil, userToken, payload)
	return err
}

// get performs an app-token GET request and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	raw, err := c.do(ctx, http.MethodGet, path, params, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// do executes one API request. When userToken is empty the application token
// is attached instead. The raw response body is returned so callers can
// decode it or proxy it verbatim.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, userToken string, payload any) ([]byte, error) {
	token := userToken
	if token == "" {
		var err error
		token, err = c.Tokens.AppToken(ctx)
		if err != nil {
			return nil, err
		}
	}

	reqURL := c.BaseURL + "/" + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("spotify: reading %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Resource: path, Status: resp.StatusCode, Detail: errorDetail(raw)}
		if c.Log != nil {
			c.Log.WithFields(logrus.Fields{
				"resource": path,
				"status":   resp.StatusCode,
			}).Warn("spotify api error")
		}
		return nil, apiErr
	}
	return raw, nil
}

// errorDetail extracts the upstream error message, preferring the structured
// {"error":{"message":...}} envelope and falling back to the truncated body.
func errorDetail(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if len(body) > maxErrorDetail {
		body = body[:maxErrorDetail]
	}
	return string(body)
}
