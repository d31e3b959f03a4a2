// Command obtain-token runs the one-time OAuth consent flow for the Photos
// Library API and prints the refresh token to put in GOOGLE_REFRESH_TOKEN.
//
// It starts a local HTTP listener for the OAuth redirect, prints the consent
// URL to open in a browser, and exchanges the returned code.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/avelichka/photobridge/photos"
)

func main() {
	clientID := flag.String("client-id", os.Getenv("GOOGLE_CLIENT_ID"), "OAuth 2.0 client ID (default: GOOGLE_CLIENT_ID)")
	clientSecret := flag.String("client-secret", os.Getenv("GOOGLE_CLIENT_SECRET"), "OAuth 2.0 client secret (default: GOOGLE_CLIENT_SECRET)")
	port := flag.Int("port", 8080, "local port for the OAuth redirect")
	flag.Parse()

	if *clientID == "" || *clientSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET in the environment, or pass --client-id and --client-secret.")
		os.Exit(1)
	}

	conf := &oauth2.Config{
		ClientID:     *clientID,
		ClientSecret: *clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  fmt.Sprintf("http://localhost:%d/", *port),
		Scopes:       photos.Scopes,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", *port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot listen on port %d: %v\n", *port, err)
		os.Exit(1)
	}

	codeCh := make(chan string, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "missing code parameter", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authorization received, you can close this tab.")
			codeCh <- code
		}),
	}
	go func() { _ = srv.Serve(ln) }()

	// access_type=offline with forced consent is required to get a refresh
	// token on repeat authorizations.
	url := conf.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Println("Open this URL in a browser and approve access:")
	fmt.Println()
	fmt.Println("  " + url)
	fmt.Println()
	fmt.Println("Waiting for the redirect...")

	code := <-codeCh
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: token exchange failed: %v\n", err)
		os.Exit(1)
	}
	if tok.RefreshToken == "" {
		fmt.Fprintln(os.Stderr, "Error: no refresh token in response; revoke the app's access and try again.")
		os.Exit(1)
	}

	fmt.Println("Add this to your environment:")
	fmt.Println()
	fmt.Printf("  GOOGLE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
}
