package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Rami2x/PlaylistLoop/pkg/handlers"
)

// routes builds the full request router for the application. Factored out of
// main so tests can spin up the exact production routing table.
func routes(app *handlers.Application) http.Handler {
	mux := http.NewServeMux()

	api := func(path string, h http.HandlerFunc) {
		mux.Handle(path, handlers.CountRequests(path, h))
	}
	api("/api/search", app.SearchJSON)
	api("/api/recommendations", app.RecommendationsJSON)
	api("/api/daily-track", app.DailyTrackJSON)
	api("/api/spotify/auth", app.SpotifyAuthURL)
	api("/api/spotify/callback", app.SpotifyCallback)
	api("/api/spotify/me", app.SpotifyMe)
	api("/api/spotify/create-playlist", app.CreatePlaylistJSON)

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", http.FileServer(http.Dir("./ui/static")))

	return handlers.SecurityHeaders(mux)
}
