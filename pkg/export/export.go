// Package export creates a playlist on the user's Spotify account and fills
// it with the generated tracks. Uploads run strictly in sequence because
// playlist ordering is position sensitive upstream; a failed batch aborts
// the export and whatever batches already landed stay on the account (no
// compensating cleanup, an accepted limitation).
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Rami2x/PlaylistLoop/pkg/auth"
	"github.com/Rami2x/PlaylistLoop/pkg/spotify"
)

// chunkSize is the upstream limit on track URIs per append call.
const chunkSize = 100

// defaultDescription is used when the request carries none.
const defaultDescription = "Created with PlaylistLoop"

// ErrExportFailed is returned when playlist creation or a batch upload
// fails partway through.
var ErrExportFailed = errors.New("playlist export failed")

// TokenSource resolves user access tokens; implemented by auth.TokenCache.
type TokenSource interface {
	UserToken(ctx context.Context, userID string) (string, error)
	RevokeUserToken(ctx context.Context, userID string)
}

// Catalog is the subset of the catalog client used for user-scoped playlist
// operations.
type Catalog interface {
	CurrentUser(ctx context.Context, userToken string) (spotify.UserProfile, error)
	CreatePlaylist(ctx context.Context, userToken, spotifyUserID, name, description string) (spotify.Playlist, error)
	AddPlaylistTracks(ctx context.Context, userToken, playlistID string, uris []string) error
}

// Result describes the created playlist.
type Result struct {
	PlaylistID string
	URL        string
	Name       string
}

// Exporter orchestrates playlist creation on a user's account.
type Exporter struct {
	Tokens  TokenSource
	Catalog Catalog
	Log     *logrus.Logger
}

// Export creates a playlist named name on the user's account and appends the
// given tracks in order. Token errors from the cache propagate verbatim; a
// 401/403 on the profile lookup revokes the stored token and returns
// auth.ErrReauthRequired so the user is sent through a fresh consent flow.
func (e *Exporter) Export(ctx context.Context, userID, name, description string, trackIDs []string) (Result, error) {
	token, err := e.Tokens.UserToken(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	profile, err := e.Catalog.CurrentUser(ctx, token)
	if err != nil {
		if spotify.IsAuthError(err) {
			// The token authenticates but lacks the required authorization;
			// retrying with it would loop forever.
			e.Tokens.RevokeUserToken(ctx, userID)
			return Result{}, auth.ErrReauthRequired
		}
		return Result{}, fmt.Errorf("%w: resolving account: %v", ErrExportFailed, err)
	}

	if description == "" {
		description = defaultDescription
	}
	playlist, err := e.Catalog.CreatePlaylist(ctx, token, profile.ID, name, description)
	if err != nil {
		return Result{}, fmt.Errorf("%w: creating playlist: %v", ErrExportFailed, err)
	}

	uris := make([]string, len(trackIDs))
	for i, id := range trackIDs {
		uris[i] = "spotify:track:" + id
	}
	for i := 0; i < len(uris); i += chunkSize {
		end := i + chunkSize
		if end > len(uris) {
			end = len(uris)
		}
		if err := e.Catalog.AddPlaylistTracks(ctx, token, playlist.ID, uris[i:end]); err != nil {
			return Result{}, fmt.Errorf("%w: adding tracks %d-%d: %v", ErrExportFailed, i, end-1, err)
		}
	}

	e.Log.WithFields(logrus.Fields{
		"user":     userID,
		"playlist": playlist.ID,
		"tracks":   len(trackIDs),
	}).Info("playlist exported")
	return Result{PlaylistID: playlist.ID, URL: playlist.URL(), Name: playlist.Name}, nil
}
