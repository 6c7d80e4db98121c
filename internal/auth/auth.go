package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
)

// DefaultScopes are the Drive scopes needed to look up files and edit descriptions
var DefaultScopes = []string{drive.DriveScope, drive.DriveMetadataScope}

// Config describes where OAuth2 material lives on disk
type Config struct {
	ClientSecretsFile string
	TokenFile         string
	Scopes            []string

	// OpenURL is called with the consent URL when a new token is needed.
	// Defaults to printing the URL to stdout.
	OpenURL func(url string)
}

// NewHTTPClient returns an http.Client authorised for Drive. A cached token is
// used when present, otherwise the browser consent flow runs and the result is
// cached. Refreshed tokens are written back to TokenFile.
func NewHTTPClient(ctx context.Context, cfg Config) (*http.Client, error) {
	oauthCfg, err := loadOAuthConfig(cfg)
	if err != nil {
		return nil, err
	}

	tok, err := LoadToken(cfg.TokenFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		slog.Info("No cached token, starting authorization", "token_file", cfg.TokenFile)
		tok, err = authorize(ctx, oauthCfg, cfg.OpenURL)
		if err != nil {
			return nil, err
		}
		if err := SaveToken(cfg.TokenFile, tok); err != nil {
			return nil, err
		}
	}

	src := &savingTokenSource{
		base: oauthCfg.TokenSource(ctx, tok),
		path: cfg.TokenFile,
		last: tok.AccessToken,
	}

	// refresh now so a revoked or unusable token stops the run up front
	if _, err := src.Token(); err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}
	return oauth2.NewClient(ctx, src), nil
}

// Authorize always runs the consent flow and caches the new token
func Authorize(ctx context.Context, cfg Config) (*oauth2.Token, error) {
	oauthCfg, err := loadOAuthConfig(cfg)
	if err != nil {
		return nil, err
	}

	tok, err := authorize(ctx, oauthCfg, cfg.OpenURL)
	if err != nil {
		return nil, err
	}
	if err := SaveToken(cfg.TokenFile, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func loadOAuthConfig(cfg Config) (*oauth2.Config, error) {
	data, err := os.ReadFile(cfg.ClientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secrets file: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	oauthCfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secrets file: %w", err)
	}
	return oauthCfg, nil
}

// authorize runs the installed-app flow with a loopback redirect listener
func authorize(ctx context.Context, oauthCfg *oauth2.Config, openURL func(string)) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start redirect listener: %w", err)
	}
	defer listener.Close()

	cfg := *oauthCfg
	cfg.RedirectURL = fmt.Sprintf("http://%s/", listener.Addr().String())

	state := uuid.NewString()
	codes := make(chan string, 1)
	errs := make(chan error, 1)

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("state") != state {
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			}
			if msg := q.Get("error"); msg != "" {
				http.Error(w, "authorization failed: "+msg, http.StatusBadRequest)
				select {
				case errs <- fmt.Errorf("authorization denied: %s", msg):
				default:
				}
				return
			}
			if _, err := w.Write([]byte("Authorization complete, you can close this window.")); err != nil {
				slog.Error("Unable to write authorization response", "err", err)
			}
			select {
			case codes <- q.Get("code"):
			default:
			}
		}),
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errs <- err:
			default:
			}
		}
	}()
	defer server.Close()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	if openURL == nil {
		openURL = func(u string) {
			fmt.Printf("Open the following URL in your browser to authorize access:\n\n%s\n\n", u)
		}
	}
	openURL(authURL)

	var code string
	select {
	case code = <-codes:
	case err := <-errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

// LoadToken reads a cached token. A missing file yields an error wrapping os.ErrNotExist.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	return tok, nil
}

// SaveToken writes tok to path, readable only by the current user
func SaveToken(path string, tok *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// savingTokenSource persists tokens whenever the underlying source refreshes
type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := SaveToken(s.path, tok); err != nil {
			slog.Warn("Unable to persist refreshed token", "path", s.path, "err", err)
		} else {
			slog.Debug("Persisted refreshed token", "path", s.path)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
