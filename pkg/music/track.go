// Package music defines the track model shared by every component of the
// application. The canonical representation mirrors the Spotify track object
// so catalog responses can be decoded directly; the flattened TrackJSON shape
// is what the HTTP API hands to the frontend.
package music

import (
	"strings"

	libspotify "github.com/zmb3/spotify"
)

// Track represents a track returned by the catalog. It is an alias of
// spotify.FullTrack so wire JSON decodes straight into it and handlers can
// use the familiar fields (Name, Album, Artists etc).
type Track = libspotify.FullTrack

// Artist represents a full catalog artist including its genre list.
type Artist = libspotify.FullArtist

// TrackJSON is the flattened track shape returned by the JSON API. Artist
// names are joined into a single display string and the album release date is
// reduced to a year, matching what the frontend renders.
type TrackJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists string `json:"artists"`
	Album   string `json:"album"`
	Year    string `json:"year,omitempty"`
	URL     string `json:"url,omitempty"`
	Preview string `json:"preview,omitempty"`
	Image   string `json:"image,omitempty"`
}

// Flatten converts a Track into its API representation.
func Flatten(t Track) TrackJSON {
	return TrackJSON{
		ID:      string(t.ID),
		Name:    t.Name,
		Artists: ArtistNames(t),
		Album:   t.Album.Name,
		Year:    ReleaseYear(t),
		URL:     t.ExternalURLs["spotify"],
		Preview: t.PreviewURL,
		Image:   AlbumImage(t),
	}
}

// FlattenAll converts a slice of tracks. A nil input yields an empty slice so
// the API always serializes a JSON array.
func FlattenAll(tracks []Track) []TrackJSON {
	out := make([]TrackJSON, len(tracks))
	for i, t := range tracks {
		out[i] = Flatten(t)
	}
	return out
}

// ArtistNames joins all artist names with ", " for display.
func ArtistNames(t Track) string {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

// PrimaryArtist returns the ID and name of the first credited artist. Both
// values are empty when the track has no artists.
func PrimaryArtist(t Track) (id, name string) {
	if len(t.Artists) == 0 {
		return "", ""
	}
	return string(t.Artists[0].ID), t.Artists[0].Name
}

// ReleaseYear extracts the four digit year from the album release date, which
// the catalog reports as YYYY, YYYY-MM or YYYY-MM-DD.
func ReleaseYear(t Track) string {
	d := t.Album.ReleaseDate
	if len(d) < 4 {
		return ""
	}
	return d[:4]
}

// AlbumImage picks the medium album image when available, falling back to the
// first one. The catalog orders images largest first.
func AlbumImage(t Track) string {
	imgs := t.Album.Images
	if len(imgs) > 1 {
		return imgs[1].URL
	}
	if len(imgs) == 1 {
		return imgs[0].URL
	}
	return ""
}
