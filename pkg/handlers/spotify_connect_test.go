package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Rami2x/PlaylistLoop/pkg/auth"
	"github.com/Rami2x/PlaylistLoop/pkg/export"
	"github.com/Rami2x/PlaylistLoop/pkg/spotify"
)

type fakeTokens struct {
	authURL     string
	authErr     error
	exchangeErr error
	exchanged   map[string]string
	token       string
	tokenErr    error
}

func (f *fakeTokens) AuthCodeURL(string) (string, error) { return f.authURL, f.authErr }

func (f *fakeTokens) Exchange(_ context.Context, userID, code string) error {
	if f.exchangeErr != nil {
		return f.exchangeErr
	}
	if f.exchanged == nil {
		f.exchanged = map[string]string{}
	}
	f.exchanged[userID] = code
	return nil
}

func (f *fakeTokens) UserToken(context.Context, string) (string, error) {
	return f.token, f.tokenErr
}

type fakeExporter struct {
	result export.Result
	err    error
	got    struct {
		userID, name, description string
		trackIDs                  []string
	}
}

func (f *fakeExporter) Export(_ context.Context, userID, name, description string, trackIDs []string) (export.Result, error) {
	f.got.userID, f.got.name, f.got.description, f.got.trackIDs = userID, name, description, trackIDs
	return f.result, f.err
}

func TestSpotifyAuthURL(t *testing.T) {
	app := newApp()
	app.Tokens = &fakeTokens{authURL: "https://accounts.spotify.com/authorize?x=1"}

	rr := httptest.NewRecorder()
	app.SpotifyAuthURL(rr, httptest.NewRequest(http.MethodGet, "/api/spotify/auth?userId=u1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["authUrl"] != "https://accounts.spotify.com/authorize?x=1" {
		t.Errorf("body = %v", body)
	}
}

func TestSpotifyAuthURLMissingUser(t *testing.T) {
	app := newApp()
	rr := httptest.NewRecorder()
	app.SpotifyAuthURL(rr, httptest.NewRequest(http.MethodGet, "/api/spotify/auth", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSpotifyAuthURLNotConfigured(t *testing.T) {
	app := newApp()
	app.Tokens = &fakeTokens{authErr: auth.ErrCredentialsMissing}

	rr := httptest.NewRecorder()
	app.SpotifyAuthURL(rr, httptest.NewRequest(http.MethodGet, "/api/spotify/auth?userId=u1", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func redirectLocation(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302: %s", rr.Code, rr.Body.String())
	}
	return rr.Header().Get("Location")
}

func TestSpotifyCallbackSuccess(t *testing.T) {
	app := newApp()
	tokens := &fakeTokens{}
	app.Tokens = tokens

	state := auth.EncodeState("u1")
	rr := httptest.NewRecorder()
	app.SpotifyCallback(rr, httptest.NewRequest(http.MethodGet, "/api/spotify/callback?code=c1&state="+state, nil))

	if loc := redirectLocation(t, rr); loc != "/?spotify_connected=true" {
		t.Errorf("Location = %q", loc)
	}
	if tokens.exchanged["u1"] != "c1" {
		t.Errorf("exchanged = %v, want u1->c1", tokens.exchanged)
	}
}

func TestSpotifyCallbackErrors(t *testing.T) {
	cases := []struct {
		name   string
		url    string
		tokens *fakeTokens
		want   string
	}{
		{"consent denied", "/cb?error=access_denied", &fakeTokens{}, "/?spotify_error=access_denied"},
		{"missing params", "/cb", &fakeTokens{}, "/?spotify_error=missing_params"},
		{"bad state", "/cb?code=c1&state=%21%21", &fakeTokens{}, "/?spotify_error=callback_error"},
		{"exchange failed", "/cb?code=c1&state=" + auth.EncodeState("u1"), &fakeTokens{exchangeErr: auth.ErrUpstreamAuth}, "/?spotify_error=token_exchange_failed"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			app := newApp()
			app.Tokens = c.tokens
			rr := httptest.NewRecorder()
			app.SpotifyCallback(rr, httptest.NewRequest(http.MethodGet, c.url, nil))
			if loc := redirectLocation(t, rr); loc != c.want {
				t.Errorf("Location = %q, want %q", loc, c.want)
			}
		})
	}
}

func TestSpotifyMe(t *testing.T) {
	app := newApp()
	app.Tokens = &fakeTokens{token: "tok"}
	app.Catalog = &fakeCatalog{profile: spotify.UserProfile{
		ID:  "spotify-user",
		Raw: []byte(`{"id":"spotify-user","country":"SE"}`),
	}}

	rr := httptest.NewRecorder()
	app.SpotifyMe(rr, httptest.NewRequest(http.MethodGet, "/api/spotify/me?userId=u1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	// The raw upstream document is proxied untouched.
	if got := rr.Body.String(); got != `{"id":"spotify-user","country":"SE"}` {
		t.Errorf("body = %q", got)
	}
}

func TestSpotifyMeNotConnected(t *testing.T) {
	for _, tokenErr := range []error{auth.ErrNotConnected, auth.ErrReauthRequired} {
		app := newApp()
		app.Tokens = &fakeTokens{tokenErr: tokenErr}

		rr := httptest.NewRecorder()
		app.SpotifyMe(rr, httptest.NewRequest(http.MethodGet, "/api/spotify/me?userId=u1", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%v: status = %d, want 401", tokenErr, rr.Code)
		}
	}
}

func TestSpotifyMeMissingUser(t *testing.T) {
	app := newApp()
	rr := httptest.NewRecorder()
	app.SpotifyMe(rr, httptest.NewRequest(http.MethodGet, "/api/spotify/me", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func postPlaylist(app *Application, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/spotify/create-playlist", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	app.CreatePlaylistJSON(rr, req)
	return rr
}

func TestCreatePlaylistJSON(t *testing.T) {
	app := newApp()
	exp := &fakeExporter{result: export.Result{
		PlaylistID: "pl1",
		URL:        "https://open.spotify.com/playlist/pl1",
		Name:       "Mix",
	}}
	app.Exporter = exp

	rr := postPlaylist(app, `{"userId":"u1","name":"Mix","trackIds":["t1","t2"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["success"] != true || body["playlistId"] != "pl1" || body["playlistUrl"] != "https://open.spotify.com/playlist/pl1" {
		t.Errorf("body = %v", body)
	}
	if exp.got.userID != "u1" || len(exp.got.trackIDs) != 2 {
		t.Errorf("exporter called with %+v", exp.got)
	}
}

func TestCreatePlaylistJSONMethodNotAllowed(t *testing.T) {
	app := newApp()
	rr := httptest.NewRecorder()
	app.CreatePlaylistJSON(rr, httptest.NewRequest(http.MethodGet, "/api/spotify/create-playlist", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestCreatePlaylistJSONValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"empty body", ``},
		{"missing user", `{"name":"Mix","trackIds":["t1"]}`},
		{"missing name", `{"userId":"u1","trackIds":["t1"]}`},
		{"blank name", `{"userId":"u1","name":"  ","trackIds":["t1"]}`},
		{"no tracks", `{"userId":"u1","name":"Mix","trackIds":[]}`},
		{"unknown field", `{"userId":"u1","name":"Mix","trackIds":["t1"],"bogus":1}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			app := newApp()
			app.Exporter = &fakeExporter{}
			if rr := postPlaylist(app, c.body); rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCreatePlaylistJSONReauthRequired(t *testing.T) {
	for _, expErr := range []error{auth.ErrReauthRequired, auth.ErrNotConnected} {
		app := newApp()
		app.Exporter = &fakeExporter{err: expErr}

		rr := postPlaylist(app, `{"userId":"u1","name":"Mix","trackIds":["t1"]}`)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%v: status = %d, want 401", expErr, rr.Code)
		}
	}
}

func TestCreatePlaylistJSONExportFailure(t *testing.T) {
	app := newApp()
	app.Exporter = &fakeExporter{err: errors.New("upstream on fire")}

	rr := postPlaylist(app, `{"userId":"u1","name":"Mix","trackIds":["t1"]}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "could not create playlist" || body["details"] != "upstream on fire" {
		t.Errorf("body = %v", body)
	}
}
