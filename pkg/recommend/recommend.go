// Package recommend produces track recommendations for a seed track. It
// first tries the upstream recommendation endpoint; when that fails it
// degrades through an ordered chain of cheaper strategies, accumulating
// unique candidates until the requested amount is reached:
//
//  1. Last.fm similar tracks resolved against the catalog (highest quality
//     signal, returns early once the budget is met)
//  2. top tracks of the seed artist and related artists
//  3. a genre scoped catalog search
//  4. a free-text search on the primary artist name
//
// Every strategy is independently fault tolerant: a failing step is logged
// and the chain moves on. Exhausting the whole chain with nothing to show
// yields an empty result, which is valid, not an error.
package recommend

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Rami2x/PlaylistLoop/pkg/lastfm"
	"github.com/Rami2x/PlaylistLoop/pkg/metrics"
	"github.com/Rami2x/PlaylistLoop/pkg/music"
)

// Bounds for the individual fallback strategies.
const (
	maxRelatedArtists = 5
	maxArtistSearches = 3
	artistSearchLimit = 10
	genreSearchLimit  = 20
	nameSearchLimit   = 20
	similarPairsBound = 50
)

// Catalog is the subset of the catalog client the recommender needs.
type Catalog interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]music.Track, error)
	Recommendations(ctx context.Context, seedTrackID, seedArtistID string, limit int) ([]music.Track, error)
	GetArtist(ctx context.Context, id string) (music.Artist, error)
	GetRelatedArtists(ctx context.Context, id string) ([]music.Artist, error)
}

// SimilarSource yields similar (artist, track) pairs from an external
// service. Optional; a nil source skips the similar-tracks strategy.
type SimilarSource interface {
	SimilarTracks(ctx context.Context, artist, track string) ([]lastfm.SimilarTrack, error)
}

// Recommender orchestrates the primary call and the fallback chain.
type Recommender struct {
	Catalog Catalog
	Similar SimilarSource
	Log     *logrus.Logger
}

// strategy is the uniform shape of one fallback step. Steps add candidates
// to the shared set and report errors only for logging; the driver never
// aborts the chain on a step failure.
type strategy struct {
	name string
	run  func(ctx context.Context, seed music.Track, set *candidateSet) error
}

// Recommend returns up to limit unique tracks for the seed. The seed itself
// never appears in the output.
func (r *Recommender) Recommend(ctx context.Context, seed music.Track, limit int) ([]music.Track, error) {
	seedArtistID, _ := music.PrimaryArtist(seed)

	tracks, err := r.Catalog.Recommendations(ctx, string(seed.ID), seedArtistID, limit)
	if err == nil {
		if len(tracks) > limit {
			tracks = tracks[:limit]
		}
		return tracks, nil
	}
	r.Log.WithError(err).WithField("seed", seed.ID).Warn("recommendation endpoint failed, using fallback chain")

	set := newCandidateSet(string(seed.ID), limit)
	steps := []strategy{
		{"similar_tracks", r.bySimilarTracks},
		{"related_artists", r.byRelatedArtists},
		{"genre_search", r.byGenre},
		{"artist_search", r.byArtistName},
	}
	for _, step := range steps {
		if set.full() {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		metrics.FallbackSteps.WithLabelValues(step.name).Inc()
		if err := step.run(ctx, seed, set); err != nil {
			r.Log.WithError(err).WithField("step", step.name).Warn("fallback step failed")
		}
	}
	return set.tracks, nil
}

// GenreOf resolves the first genre of the seed's primary artist. Lookups
// that fail or artists without genres yield an empty string; this never
// propagates an error to the caller.
func (r *Recommender) GenreOf(ctx context.Context, seed music.Track) string {
	artistID, _ := music.PrimaryArtist(seed)
	if artistID == "" {
		return ""
	}
	artist, err := r.Catalog.GetArtist(ctx, artistID)
	if err != nil {
		r.Log.WithError(err).WithField("artist", artistID).Warn("genre lookup failed")
		return ""
	}
	if len(artist.Genres) == 0 {
		return ""
	}
	return artist.Genres[0]
}

// bySimilarTracks resolves externally ranked similar tracks against the
// catalog one by one and returns as soon as the budget is met.
func (r *Recommender) bySimilarTracks(ctx context.Context, seed music.Track, set *candidateSet) error {
	_, artistName := music.PrimaryArtist(seed)
	if r.Similar == nil || artistName == "" || seed.Name == "" {
		return nil
	}

	pairs, err := r.Similar.SimilarTracks(ctx, artistName, seed.Name)
	if err != nil {
		return err
	}
	if len(pairs) > similarPairsBound {
		pairs = pairs[:similarPairsBound]
	}
	for _, pair := range pairs {
		hits, err := r.Catalog.SearchTracks(ctx, "artist:"+pair.Artist+" track:"+pair.Name, 1)
		if err != nil || len(hits) == 0 {
			// Not every similar track exists in the catalog; skip quietly.
			continue
		}
		set.add(hits[0])
		if set.full() {
			return nil
		}
	}
	return nil
}

// byRelatedArtists searches for top tracks of the seed artist and a handful
// of related artists.
func (r *Recommender) byRelatedArtists(ctx context.Context, seed music.Track, set *candidateSet) error {
	seedArtistID, _ := music.PrimaryArtist(seed)
	if seedArtistID == "" {
		return nil
	}

	ids := []string{seedArtistID}
	related, err := r.Catalog.GetRelatedArtists(ctx, seedArtistID)
	if err != nil {
		r.Log.WithError(err).Warn("related artists lookup failed")
	} else {
		for i, a := range related {
			if i >= maxRelatedArtists {
				break
			}
			ids = append(ids, string(a.ID))
		}
	}

	if len(ids) > maxArtistSearches {
		ids = ids[:maxArtistSearches]
	}
	for _, id := range ids {
		artist, err := r.Catalog.GetArtist(ctx, id)
		if err != nil {
			r.Log.WithError(err).WithField("artist", id).Warn("artist lookup failed")
			continue
		}
		hits, err := r.Catalog.SearchTracks(ctx, "artist:"+artist.Name, artistSearchLimit)
		if err != nil {
			r.Log.WithError(err).WithField("artist", artist.Name).Warn("artist track search failed")
			continue
		}
		set.addAll(hits)
	}
	return nil
}

// byGenre searches the catalog for tracks in the seed artist's genre.
func (r *Recommender) byGenre(ctx context.Context, seed music.Track, set *candidateSet) error {
	genre := r.GenreOf(ctx, seed)
	if genre == "" {
		return nil
	}
	hits, err := r.Catalog.SearchTracks(ctx, "genre:"+genre, genreSearchLimit)
	if err != nil {
		return err
	}
	set.addAll(hits)
	return nil
}

// byArtistName is the last resort: a free-text search on the primary artist
// name.
func (r *Recommender) byArtistName(ctx context.Context, seed music.Track, set *candidateSet) error {
	_, artistName := music.PrimaryArtist(seed)
	if artistName == "" {
		return nil
	}
	hits, err := r.Catalog.SearchTracks(ctx, artistName, nameSearchLimit)
	if err != nil {
		return err
	}
	set.addAll(hits)
	return nil
}

// candidateSet accumulates unique candidates in discovery order. The seed's
// own identifier is always excluded and the first write for an ID wins.
type candidateSet struct {
	seedID string
	limit  int
	seen   map[string]struct{}
	tracks []music.Track
}

func newCandidateSet(seedID string, limit int) *candidateSet {
	return &candidateSet{
		seedID: seedID,
		limit:  limit,
		seen:   make(map[string]struct{}),
	}
}

func (s *candidateSet) add(t music.Track) {
	id := string(t.ID)
	if id == "" || id == s.seedID || s.full() {
		return
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.tracks = append(s.tracks, t)
}

func (s *candidateSet) addAll(tracks []music.Track) {
	for _, t := range tracks {
		if s.full() {
			return
		}
		s.add(t)
	}
}

func (s *candidateSet) full() bool { return len(s.tracks) >= s.limit }
