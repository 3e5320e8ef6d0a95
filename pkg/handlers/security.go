package handlers

import "net/http"

// SecurityHeaders wraps another http.Handler and sets defensive headers on
// every response. The Content Security Policy allows album art and preview
// audio from the Spotify CDN; everything else must come from our own origin.
func SecurityHeaders(next http.Handler) http.Handler {
	const csp = "default-src 'self'; img-src 'self' https://i.scdn.co; media-src 'self' https://p.scdn.co"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", csp)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "same-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
