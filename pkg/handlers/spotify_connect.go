package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/Rami2x/PlaylistLoop/pkg/auth"
	"github.com/Rami2x/PlaylistLoop/pkg/export"
)

// SpotifyAuthURL handles GET /api/spotify/auth?userId=... and returns
// the consent URL the frontend should redirect the browser to.
func (app *Application) SpotifyAuthURL(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}
	authURL, err := app.Tokens.AuthCodeURL(userID)
	if err != nil {
		app.Log.WithError(err).Error("building auth url failed")
		respondJSONError(w, http.StatusInternalServerError, "spotify authorization is not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"authUrl": authURL})
}

// SpotifyCallback handles the OAuth redirect from Spotify. The outcome is
// reported to the frontend exclusively through redirect query parameters so
// a browser mid-flow never sees a JSON error page.
func (app *Application) SpotifyCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		app.Log.WithField("reason", reason).Warn("spotify consent denied")
		redirectWithError(w, r, reason)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		redirectWithError(w, r, "missing_params")
		return
	}
	userID, err := auth.DecodeState(state)
	if err != nil {
		app.Log.WithError(err).Warn("undecodable oauth state")
		redirectWithError(w, r, "callback_error")
		return
	}
	if err := app.Tokens.Exchange(r.Context(), userID, code); err != nil {
		app.Log.WithError(err).WithField("user", userID).Error("code exchange failed")
		redirectWithError(w, r, "token_exchange_failed")
		return
	}
	http.Redirect(w, r, "/?spotify_connected=true", http.StatusFound)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, "/?spotify_error="+url.QueryEscape(reason), http.StatusFound)
}

// SpotifyMe handles GET /api/spotify/me?userId=... and proxies the user's
// Spotify profile document unchanged.
func (app *Application) SpotifyMe(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}
	token, err := app.Tokens.UserToken(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotConnected) || errors.Is(err, auth.ErrReauthRequired) {
			respondJSONError(w, http.StatusUnauthorized, "not connected to spotify")
			return
		}
		app.Log.WithError(err).WithField("user", userID).Error("token lookup failed")
		respondJSONError(w, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	profile, err := app.Catalog.CurrentUser(r.Context(), token)
	if err != nil {
		app.Log.WithError(err).WithField("user", userID).Error("profile fetch failed")
		respondJSONError(w, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(profile.Raw)
}

// createPlaylistRequest is the body of POST /api/spotify/create-playlist.
type createPlaylistRequest struct {
	UserID      string   `json:"userId"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	TrackIDs    []string `json:"trackIds"`
}

// CreatePlaylistJSON handles POST /api/spotify/create-playlist. Connection
// problems map to 401 so the frontend restarts the consent flow; everything
// else is a 500 with the upstream detail attached.
func (app *Application) CreatePlaylistJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		respondJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req createPlaylistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.UserID == "" || req.Name == "" || len(req.TrackIDs) == 0 {
		respondJSONError(w, http.StatusBadRequest, "userId, name and trackIds are required")
		return
	}

	result, err := app.Exporter.Export(r.Context(), req.UserID, req.Name, req.Description, req.TrackIDs)
	if err != nil {
		if errors.Is(err, auth.ErrNotConnected) || errors.Is(err, auth.ErrReauthRequired) {
			respondJSONError(w, http.StatusUnauthorized, "spotify connection expired, please reconnect")
			return
		}
		app.Log.WithError(err).WithField("user", req.UserID).Error("playlist export failed")
		detail := err.Error()
		if errors.Is(err, export.ErrExportFailed) {
			detail = strings.TrimPrefix(detail, export.ErrExportFailed.Error()+": ")
		}
		respondJSONErrorDetails(w, http.StatusInternalServerError, "could not create playlist", detail)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"playlistId":  result.PlaylistID,
		"playlistUrl": result.URL,
		"name":        result.Name,
	})
}
