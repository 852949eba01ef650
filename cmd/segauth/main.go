// Package main provides the Spotify authorization helper for the spotify resolver.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

var (
	app          = kingpin.New("segauth", "Obtain a Spotify refresh token for the segue spotify resolver")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
	wait         = app.Flag("wait", "How long to wait for the browser callback").Default("5m").Duration()
)

type result struct {
	token *oauth2.Token
	err   error
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	token, err := authorize()
	if err != nil {
		pterm.Error.Printfln("Authorization failed: %v", err)
		os.Exit(1)
	}

	pterm.Success.Println("Authorization successful")
	pterm.Println()
	pterm.Println("Add this to your segued config:")
	pterm.Println()
	pterm.Println("spotify:")
	pterm.Printfln("  refresh_token: %q", token.RefreshToken)
	pterm.Println()
	pterm.Println("Or set it in the environment:")
	pterm.Printfln("export SPOTIFY_REFRESH_TOKEN=%q", token.RefreshToken)
}

func authorize() (*oauth2.Token, error) {
	state := uuid.New().String()
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(fmt.Sprintf("http://127.0.0.1:%d/callback", *port)),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithClientSecret(*clientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopePlaylistReadPrivate),
	)

	results := make(chan result, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			results <- result{err: errors.Newf("state mismatch: %s", st)}
			return
		}
		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			results <- result{err: errors.Wrap(err, "failed to exchange code")}
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		results <- result{token: token}
	})

	server := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", *port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			results <- result{err: errors.Wrap(err, "callback server failed")}
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	pterm.Info.Println("Open the following URL to authorize segue:")
	pterm.Println(auth.AuthURL(state))

	spinner, _ := pterm.DefaultSpinner.Start("Waiting for authorization...")
	select {
	case r := <-results:
		if r.err != nil {
			_ = spinner.Stop()
			return nil, r.err
		}
		_ = spinner.Stop()
		return r.token, nil
	case <-time.After(*wait):
		_ = spinner.Stop()
		return nil, errors.Newf("no callback within %v", *wait)
	}
}
