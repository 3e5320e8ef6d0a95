// Package handlers contains the HTTP handlers composing the JSON API. The
// Application struct bundles the injected dependencies behind small
// interfaces so tests can substitute fakes for the catalog, recommender,
// daily pick cache, token cache and exporter.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Rami2x/PlaylistLoop/pkg/daily"
	"github.com/Rami2x/PlaylistLoop/pkg/export"
	"github.com/Rami2x/PlaylistLoop/pkg/music"
	"github.com/Rami2x/PlaylistLoop/pkg/spotify"
)

// Result bounds for the public endpoints.
const (
	searchLimit     = 6
	defaultRecLimit = 45
	maxRecLimit     = 50
	eraYearSpan     = 5
)

// Catalog is the subset of the catalog client the handlers call directly.
type Catalog interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]music.Track, error)
	GetTrack(ctx context.Context, id string) (music.Track, error)
	CurrentUser(ctx context.Context, userToken string) (spotify.UserProfile, error)
}

// Recommender produces the playlist candidates for a seed track.
type Recommender interface {
	Recommend(ctx context.Context, seed music.Track, limit int) ([]music.Track, error)
	GenreOf(ctx context.Context, seed music.Track) string
}

// DailyPicker serves the cached track of the day.
type DailyPicker interface {
	Pick(ctx context.Context) (daily.Snapshot, error)
}

// TokenManager is the slice of the token cache the OAuth endpoints need.
type TokenManager interface {
	AuthCodeURL(userID string) (string, error)
	Exchange(ctx context.Context, userID, code string) error
	UserToken(ctx context.Context, userID string) (string, error)
}

// Exporter pushes a generated playlist to the user's account.
type Exporter interface {
	Export(ctx context.Context, userID, name, description string, trackIDs []string) (export.Result, error)
}

// Application holds the dependencies shared by all handlers.
type Application struct {
	Catalog     Catalog
	Recommender Recommender
	Daily       DailyPicker
	Tokens      TokenManager
	Exporter    Exporter
	Log         *logrus.Logger
}

// SearchJSON handles GET /api/search?q=... and returns matching tracks in
// the flattened API shape.
func (app *Application) SearchJSON(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondJSONError(w, http.StatusBadRequest, "the q parameter is required")
		return
	}
	tracks, err := app.Catalog.SearchTracks(r.Context(), query, searchLimit)
	if err != nil {
		app.Log.WithError(err).WithField("query", query).Error("search failed")
		respondJSONError(w, http.StatusInternalServerError, "spotify search failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tracks": music.FlattenAll(tracks)})
}

// recommendationsMeta is the meta block of a recommendations response.
type recommendationsMeta struct {
	Title string `json:"title"`
	Genre string `json:"genre"`
}

// RecommendationsJSON handles GET /api/recommendations?seedTrackId=...
// The optional limitEra=1 parameter restricts candidates to releases within
// five years of the seed, reverting to the unfiltered list when that would
// leave fewer than half the requested tracks.
func (app *Application) RecommendationsJSON(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seedID := q.Get("seedTrackId")
	if seedID == "" {
		respondJSONError(w, http.StatusBadRequest, "seedTrackId is required")
		return
	}
	limit := defaultRecLimit
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = n
	}
	if limit > maxRecLimit {
		limit = maxRecLimit
	}

	seed, err := app.Catalog.GetTrack(r.Context(), seedID)
	if err != nil {
		app.Log.WithError(err).WithField("seed", seedID).Error("seed track lookup failed")
		respondJSONErrorDetails(w, http.StatusInternalServerError, "failed to fetch recommendations", err.Error())
		return
	}

	tracks, err := app.Recommender.Recommend(r.Context(), seed, limit)
	if err != nil {
		app.Log.WithError(err).WithField("seed", seedID).Error("recommendation failed")
		respondJSONErrorDetails(w, http.StatusInternalServerError, "failed to fetch recommendations", err.Error())
		return
	}

	if q.Get("limitEra") == "1" {
		tracks = filterByEra(seed, tracks, limit)
	}
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}

	genre := app.Recommender.GenreOf(r.Context(), seed)
	if genre == "" {
		genre = "N/A"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"meta":   recommendationsMeta{Title: "Playlist inspired by " + seed.Name, Genre: genre},
		"tracks": music.FlattenAll(tracks),
	})
}

// filterByEra keeps tracks released within eraYearSpan years of the seed.
// Tracks with unparseable years pass through. The filter reverts to the full
// list when it would drop the result below half the requested amount.
func filterByEra(seed music.Track, tracks []music.Track, limit int) []music.Track {
	seedYear, err := strconv.Atoi(music.ReleaseYear(seed))
	if err != nil {
		return tracks
	}
	filtered := make([]music.Track, 0, len(tracks))
	for _, t := range tracks {
		year, err := strconv.Atoi(music.ReleaseYear(t))
		if err != nil || abs(year-seedYear) <= eraYearSpan {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) < limit/2 {
		return tracks
	}
	return filtered
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// DailyTrackJSON handles GET /api/daily-track. The cache itself falls back
// to a stale entry on upstream failure; only a cold cache with every source
// down produces an error here.
func (app *Application) DailyTrackJSON(w http.ResponseWriter, r *http.Request) {
	snap, err := app.Daily.Pick(r.Context())
	if err != nil {
		app.Log.WithError(err).Error("daily track unavailable")
		respondJSONError(w, http.StatusInternalServerError, "no daily track available")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}
