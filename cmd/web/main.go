// Command web initializes the PlaylistLoop application and starts the HTTP
// server. Configuration comes from the environment (optionally a .env file):
// Spotify API credentials are required, the Last.fm key and database path are
// optional. The server serves the static frontend and a JSON API.
package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Rami2x/PlaylistLoop/pkg/auth"
	"github.com/Rami2x/PlaylistLoop/pkg/daily"
	"github.com/Rami2x/PlaylistLoop/pkg/db"
	"github.com/Rami2x/PlaylistLoop/pkg/export"
	"github.com/Rami2x/PlaylistLoop/pkg/handlers"
	"github.com/Rami2x/PlaylistLoop/pkg/lastfm"
	"github.com/Rami2x/PlaylistLoop/pkg/recommend"
	"github.com/Rami2x/PlaylistLoop/pkg/spotify"
)

func main() {
	// A missing .env file is fine; real deployments configure the
	// environment directly.
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	clientID := os.Getenv("SPOTIFY_CLIENT_ID")
	clientSecret := os.Getenv("SPOTIFY_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		log.Fatal("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set")
	}
	// The redirect URI must match the callback registered in the Spotify
	// developer dashboard. The default suits local development.
	redirectURL := os.Getenv("SPOTIFY_REDIRECT_URI")
	if redirectURL == "" {
		redirectURL = "http://localhost:3000/api/spotify/callback"
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "playlistloop.db"
	}
	database, err := db.New(dbPath)
	if err != nil {
		log.WithError(err).Fatal("opening token database")
	}
	defer database.Close()

	tokens := auth.New(auth.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Store:        database,
		Log:          log,
	})
	catalog := spotify.New(tokens, log)

	// Last.fm powers the similar-tracks fallback and the daily chart. The
	// application degrades gracefully without a key.
	var fm *lastfm.Client
	if key := os.Getenv("LASTFM_API_KEY"); key != "" {
		fm = lastfm.New(key)
	} else {
		log.Warn("LASTFM_API_KEY not set, similar-tracks and chart sources disabled")
	}

	app := &handlers.Application{
		Catalog:     catalog,
		Recommender: &recommend.Recommender{Catalog: catalog, Similar: similarSource(fm), Log: log},
		Daily:       daily.New(catalog, chartSource(fm), log),
		Tokens:      tokens,
		Exporter:    &export.Exporter{Tokens: tokens, Catalog: catalog, Log: log},
		Log:         log,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	log.WithField("port", port).Info("starting server")
	if err := http.ListenAndServe(":"+port, routes(app)); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

// similarSource converts a possibly-nil Last.fm client into the interface the
// recommender takes. A typed nil inside a non-nil interface would defeat the
// recommender's nil check, hence the explicit indirection.
func similarSource(fm *lastfm.Client) recommend.SimilarSource {
	if fm == nil {
		return nil
	}
	return fm
}

func chartSource(fm *lastfm.Client) daily.ChartSource {
	if fm == nil {
		return nil
	}
	return fm
}
