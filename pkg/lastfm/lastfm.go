// Package lastfm provides the small slice of the Last.fm API the application
// depends on: similar-track lookups used as the highest quality fallback
// signal for recommendations, and the global top-tracks chart driving the
// daily pick.
//
// The API key is optional. A client constructed without one reports
// Enabled() == false and callers are expected to skip Last.fm backed steps
// entirely rather than issue requests that would fail.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the production Last.fm API root.
const DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// similarLimit bounds how many similar tracks one lookup requests.
const similarLimit = 50

// SimilarTrack is one entry from track.getSimilar, ranked by the service's
// own match score (0..1).
type SimilarTrack struct {
	Artist string
	Name   string
	Match  float64
}

// ChartTrack is one entry from the global top-tracks chart.
type ChartTrack struct {
	Artist string
	Name   string
}

// Client talks to the Last.fm API. HTTP and BaseURL may be overridden in
// tests.
type Client struct {
	APIKey  string
	HTTP    *http.Client
	BaseURL string
}

// New returns a client with a 10 second request timeout. An empty apiKey is
// allowed and produces a disabled client.
func New(apiKey string) *Client {
	return &Client{
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		BaseURL: DefaultBaseURL,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.APIKey != "" }

// SimilarTracks returns tracks similar to the given (artist, track) pair,
// ranked by match score. Entries missing an artist or name are filtered out.
// A disabled client returns an empty slice without touching the network.
func (c *Client) SimilarTracks(ctx context.Context, artist, track string) ([]SimilarTrack, error) {
	if !c.Enabled() {
		return nil, nil
	}
	params := url.Values{
		"method": {"track.getSimilar"},
		"artist": {artist},
		"track":  {track},
		"limit":  {strconv.Itoa(similarLimit)},
	}
	var resp struct {
		SimilarTracks struct {
			Track []struct {
				Name   string `json:"name"`
				Match  any    `json:"match"`
				Artist struct {
					Name string `json:"name"`
				} `json:"artist"`
			} `json:"track"`
		} `json:"similartracks"`
	}
	if err := c.request(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("fetching similar tracks: %w", err)
	}

	tracks := make([]SimilarTrack, 0, len(resp.SimilarTracks.Track))
	for _, t := range resp.SimilarTracks.Track {
		if t.Artist.Name == "" || t.Name == "" {
			continue
		}
		tracks = append(tracks, SimilarTrack{
			Artist: t.Artist.Name,
			Name:   t.Name,
			Match:  parseMatch(t.Match),
		})
	}
	return tracks, nil
}

// TopTracks returns up to limit entries from the global top-tracks chart.
func (c *Client) TopTracks(ctx context.Context, limit int) ([]ChartTrack, error) {
	if !c.Enabled() {
		return nil, nil
	}
	params := url.Values{
		"method": {"chart.getTopTracks"},
		"limit":  {strconv.Itoa(limit)},
	}
	var resp struct {
		Tracks struct {
			Track []struct {
				Name   string `json:"name"`
				Artist struct {
					Name string `json:"name"`
				} `json:"artist"`
			} `json:"track"`
		} `json:"tracks"`
	}
	if err := c.request(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("fetching chart: %w", err)
	}

	tracks := make([]ChartTrack, 0, len(resp.Tracks.Track))
	for _, t := range resp.Tracks.Track {
		if t.Artist.Name == "" || t.Name == "" {
			continue
		}
		tracks = append(tracks, ChartTrack{Artist: t.Artist.Name, Name: t.Name})
	}
	return tracks, nil
}

// apiError is the Last.fm error envelope. A zero Error code means the
// response was a normal payload.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// request performs a single API call and decodes the response into out.
func (c *Client) request(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.APIKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != 0 {
		return fmt.Errorf("API error %d: %s", apiErr.Error, apiErr.Message)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// parseMatch tolerates the match score arriving as either a JSON number or a
// quoted string, which the API does depending on the endpoint version.
func parseMatch(v any) float64 {
	switch m := v.(type) {
	case float64:
		return m
	case string:
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
