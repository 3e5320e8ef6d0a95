package recommend

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	libspotify "github.com/zmb3/spotify"

	"github.com/Rami2x/PlaylistLoop/pkg/lastfm"
	"github.com/Rami2x/PlaylistLoop/pkg/music"
)

func track(id, name, artistID, artistName string) music.Track {
	t := music.Track{}
	t.ID = libspotify.ID(id)
	t.Name = name
	t.Artists = []libspotify.SimpleArtist{{ID: libspotify.ID(artistID), Name: artistName}}
	return t
}

// fakeCatalog scripts catalog responses per query and records every search.
type fakeCatalog struct {
	recTracks []music.Track
	recErr    error

	searchResults map[string][]music.Track
	searches      []string

	artists map[string]music.Artist
	related map[string][]music.Artist
}

func (f *fakeCatalog) SearchTracks(_ context.Context, query string, _ int) ([]music.Track, error) {
	f.searches = append(f.searches, query)
	return f.searchResults[query], nil
}

func (f *fakeCatalog) Recommendations(context.Context, string, string, int) ([]music.Track, error) {
	if f.recErr != nil {
		return nil, f.recErr
	}
	return f.recTracks, nil
}

func (f *fakeCatalog) GetArtist(_ context.Context, id string) (music.Artist, error) {
	a, ok := f.artists[id]
	if !ok {
		return music.Artist{}, errors.New("artist not found")
	}
	return a, nil
}

func (f *fakeCatalog) GetRelatedArtists(_ context.Context, id string) ([]music.Artist, error) {
	return f.related[id], nil
}

// fakeSimilar returns a fixed pair list or an error.
type fakeSimilar struct {
	pairs []lastfm.SimilarTrack
	err   error
	calls int
}

func (f *fakeSimilar) SimilarTracks(context.Context, string, string) ([]lastfm.SimilarTrack, error) {
	f.calls++
	return f.pairs, f.err
}

func artist(id, name string, genres ...string) music.Artist {
	a := music.Artist{}
	a.ID = libspotify.ID(id)
	a.Name = name
	a.Genres = genres
	return a
}

func newRecommender(cat *fakeCatalog, sim SimilarSource) *Recommender {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Recommender{Catalog: cat, Similar: sim, Log: log}
}

func TestRecommendPrimaryEndpoint(t *testing.T) {
	cat := &fakeCatalog{
		recTracks: []music.Track{
			track("t1", "One", "a1", "Artist"),
			track("t2", "Two", "a1", "Artist"),
			track("t3", "Three", "a1", "Artist"),
		},
	}
	r := newRecommender(cat, &fakeSimilar{})

	got, err := r.Recommend(context.Background(), track("seed", "Seed", "a1", "Artist"), 2)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t2" {
		t.Errorf("Recommend = %v, want first two primary tracks", ids(got))
	}
	if len(cat.searches) != 0 {
		t.Errorf("fallback searches ran despite primary success: %v", cat.searches)
	}
}

func TestRecommendFallbackDedupAndSeedExclusion(t *testing.T) {
	seed := track("seed", "Seed Song", "a1", "Seed Artist")
	cat := &fakeCatalog{
		recErr: errors.New("recommendations unavailable"),
		searchResults: map[string][]music.Track{
			"artist:Other track:Hit One": {track("t1", "Hit One", "a2", "Other")},
			"artist:Other track:Hit Two": {track("t1", "Hit One", "a2", "Other")},
			"artist:Self track:Own Song": {track("seed", "Seed Song", "a1", "Seed Artist")},
			"artist:Seed Artist":         {track("t2", "Deep Cut", "a1", "Seed Artist")},
		},
		artists: map[string]music.Artist{"a1": artist("a1", "Seed Artist")},
	}
	sim := &fakeSimilar{pairs: []lastfm.SimilarTrack{
		{Artist: "Other", Name: "Hit One", Match: 0.9},
		{Artist: "Other", Name: "Hit Two", Match: 0.8},
		{Artist: "Self", Name: "Own Song", Match: 0.7},
	}}
	r := newRecommender(cat, sim)

	got, err := r.Recommend(context.Background(), seed, 10)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	want := []string{"t1", "t2"}
	if len(got) != len(want) {
		t.Fatalf("Recommend = %v, want ids %v", ids(got), want)
	}
	for i, id := range want {
		if string(got[i].ID) != id {
			t.Errorf("track %d = %s, want %s (discovery order)", i, got[i].ID, id)
		}
	}
}

func TestRecommendSimilarStepStopsAtLimit(t *testing.T) {
	seed := track("seed", "Seed Song", "a1", "Seed Artist")
	cat := &fakeCatalog{
		recErr: errors.New("down"),
		searchResults: map[string][]music.Track{
			"artist:Other track:Hit One": {track("t1", "Hit One", "a2", "Other")},
		},
	}
	sim := &fakeSimilar{pairs: []lastfm.SimilarTrack{
		{Artist: "Other", Name: "Hit One"},
		{Artist: "Other", Name: "Hit Two"},
	}}
	r := newRecommender(cat, sim)

	got, err := r.Recommend(context.Background(), seed, 1)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("Recommend = %v, want [t1]", ids(got))
	}
	// Only the first pair should have been resolved and no later strategy run.
	if len(cat.searches) != 1 {
		t.Errorf("searches = %v, want exactly one lookup", cat.searches)
	}
}

func TestRecommendToleratesFailingSteps(t *testing.T) {
	seed := track("seed", "Seed Song", "a1", "Seed Artist")
	cat := &fakeCatalog{
		recErr: errors.New("down"),
		searchResults: map[string][]music.Track{
			"genre:indie rock": {track("t1", "Genre Hit", "a3", "Someone")},
		},
		artists: map[string]music.Artist{"a1": artist("a1", "Seed Artist", "indie rock")},
	}
	sim := &fakeSimilar{err: errors.New("lastfm down")}
	r := newRecommender(cat, sim)

	got, err := r.Recommend(context.Background(), seed, 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	found := false
	for _, tr := range got {
		if tr.ID == "t1" {
			found = true
		}
	}
	if !found {
		t.Errorf("Recommend = %v, want genre hit t1 despite earlier step failures", ids(got))
	}
}

func TestRecommendNilSimilarSource(t *testing.T) {
	seed := track("seed", "Seed Song", "a1", "Seed Artist")
	cat := &fakeCatalog{recErr: errors.New("down")}
	r := newRecommender(cat, nil)

	got, err := r.Recommend(context.Background(), seed, 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Recommend = %v, want empty with every source dry", ids(got))
	}
}

func TestGenreOf(t *testing.T) {
	cat := &fakeCatalog{artists: map[string]music.Artist{"a1": artist("a1", "Seed Artist", "synthpop", "electro")}}
	r := newRecommender(cat, nil)

	seed := track("seed", "Seed Song", "a1", "Seed Artist")
	if got := r.GenreOf(context.Background(), seed); got != "synthpop" {
		t.Errorf("GenreOf = %q, want synthpop", got)
	}

	unknown := track("x", "X", "missing", "Missing")
	if got := r.GenreOf(context.Background(), unknown); got != "" {
		t.Errorf("GenreOf unknown artist = %q, want empty", got)
	}
}

func TestCandidateSetFirstWriteWins(t *testing.T) {
	set := newCandidateSet("seed", 3)
	first := track("t1", "First Version", "a1", "A")
	set.add(first)
	set.add(track("t1", "Second Version", "a2", "B"))
	set.add(track("seed", "The Seed", "a1", "A"))

	if len(set.tracks) != 1 {
		t.Fatalf("set has %d tracks, want 1", len(set.tracks))
	}
	if set.tracks[0].Name != "First Version" {
		t.Errorf("kept %q, want first write to win", set.tracks[0].Name)
	}
}

func ids(tracks []music.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = string(t.ID)
	}
	return out
}
