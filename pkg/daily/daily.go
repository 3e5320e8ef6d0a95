// Package daily serves the "track of the day". One pick is chosen per
// calendar day by indexing the day-of-year into an externally ranked chart,
// which keeps the selection stable for a whole day and cycles it
// deterministically across days without storing prior picks. The pick is
// cached for the process lifetime; the last successful snapshot is kept
// around indefinitely and served when every upstream source fails, trading
// freshness for availability.
package daily

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Rami2x/PlaylistLoop/pkg/lastfm"
	"github.com/Rami2x/PlaylistLoop/pkg/metrics"
	"github.com/Rami2x/PlaylistLoop/pkg/music"
)

// chartLimit bounds how much of the chart is fetched.
const chartLimit = 50

// newReleasesQuery is the catalog search used when no chart is available.
const newReleasesQuery = "tag:new"

// maxAge is the wall-clock bound on a cache entry. Both this and the
// calendar date are checked, so an entry created late on day D is still
// replaced on day D+1.
const maxAge = 24 * time.Hour

// ErrNoPickAvailable is returned when every source failed and no previous
// pick exists to fall back on.
var ErrNoPickAvailable = errors.New("no daily pick available")

// Catalog is the subset of the catalog client used to resolve chart entries
// into full track metadata.
type Catalog interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]music.Track, error)
	GetArtist(ctx context.Context, id string) (music.Artist, error)
}

// ChartSource yields the externally ranked top-tracks chart. Optional; a nil
// source skips straight to the new-releases fallback.
type ChartSource interface {
	TopTracks(ctx context.Context, limit int) ([]lastfm.ChartTrack, error)
}

// Snapshot is the flattened pick served to the frontend.
type Snapshot struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Artists string `json:"artists"`
	Album   string `json:"album,omitempty"`
	Year    string `json:"year,omitempty"`
	URL     string `json:"url,omitempty"`
	Preview string `json:"preview,omitempty"`
	Image   string `json:"image,omitempty"`
	Genre   string `json:"genre,omitempty"`
}

// entry is one cached pick. date is the calendar day it was computed for.
type entry struct {
	snap    Snapshot
	date    string
	created time.Time
}

// Cache computes and caches the daily pick. The zero value is not usable;
// construct with New.
type Cache struct {
	catalog Catalog
	chart   ChartSource
	log     *logrus.Logger
	now     func() time.Time

	mu  sync.Mutex
	cur *entry
}

// New returns an empty cache. chart may be nil.
func New(catalog Catalog, chart ChartSource, log *logrus.Logger) *Cache {
	return &Cache{catalog: catalog, chart: chart, log: log, now: time.Now}
}

// Pick returns today's track, recomputing it at most once per calendar day.
func (c *Cache) Pick(ctx context.Context) (Snapshot, error) {
	now := c.now()
	today := now.Format("2006-01-02")

	c.mu.Lock()
	cur := c.cur
	c.mu.Unlock()
	if cur != nil && cur.date == today && now.Sub(cur.created) < maxAge {
		return cur.snap, nil
	}

	metrics.DailyPickRefreshes.Inc()
	snap, err := c.compute(ctx, now)
	if err != nil {
		// Freshness is best-effort: a stale pick from any prior day beats
		// an error response.
		if cur != nil {
			c.log.WithError(err).Warn("daily pick refresh failed, serving stale entry")
			return cur.snap, nil
		}
		return Snapshot{}, err
	}

	c.mu.Lock()
	c.cur = &entry{snap: snap, date: today, created: now}
	c.mu.Unlock()
	return snap, nil
}

// compute selects the pick for the given instant, trying the chart source
// first and degrading to a new-releases search.
func (c *Cache) compute(ctx context.Context, now time.Time) (Snapshot, error) {
	dayOfYear := now.YearDay()

	if c.chart != nil {
		snap, err := c.fromChart(ctx, dayOfYear)
		if err == nil {
			return snap, nil
		}
		c.log.WithError(err).Warn("chart source unavailable, trying new releases")
	}

	tracks, err := c.catalog.SearchTracks(ctx, newReleasesQuery, chartLimit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("new releases search: %w", err)
	}
	if len(tracks) == 0 {
		return Snapshot{}, ErrNoPickAvailable
	}
	return c.snapshot(ctx, tracks[dayOfYear%len(tracks)]), nil
}

// fromChart picks the day's chart entry and resolves it against the catalog
// for full metadata.
func (c *Cache) fromChart(ctx context.Context, dayOfYear int) (Snapshot, error) {
	chart, err := c.chart.TopTracks(ctx, chartLimit)
	if err != nil {
		return Snapshot{}, err
	}
	if len(chart) == 0 {
		return Snapshot{}, errors.New("chart is empty")
	}

	pick := chart[dayOfYear%len(chart)]
	hits, err := c.catalog.SearchTracks(ctx, "artist:"+pick.Artist+" track:"+pick.Name, 1)
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolving chart pick: %w", err)
	}
	if len(hits) == 0 {
		return Snapshot{}, fmt.Errorf("chart pick %q by %q not in catalog", pick.Name, pick.Artist)
	}
	return c.snapshot(ctx, hits[0]), nil
}

// snapshot flattens a track and annotates it with the primary artist's first
// genre when one can be resolved. Genre failures are non-fatal.
func (c *Cache) snapshot(ctx context.Context, t music.Track) Snapshot {
	flat := music.Flatten(t)
	snap := Snapshot{
		ID:      flat.ID,
		Title:   flat.Name,
		Artists: flat.Artists,
		Album:   flat.Album,
		Year:    flat.Year,
		URL:     flat.URL,
		Preview: flat.Preview,
		Image:   flat.Image,
	}
	if artistID, _ := music.PrimaryArtist(t); artistID != "" {
		if artist, err := c.catalog.GetArtist(ctx, artistID); err == nil && len(artist.Genres) > 0 {
			snap.Genre = artist.Genres[0]
		}
	}
	return snap
}
