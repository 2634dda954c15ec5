// Package session recovers an authenticated web session for the remote
// usage API from the editor's own state, browser cookie stores, local
// storage, or a key the user configured.
package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tnunamak/gravmeter/internal/api"
)

type Profile struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	StatusProto string `json:"status_proto,omitempty"`
}

type Session struct {
	Cookie  string   `json:"cookie"`
	UserID  string   `json:"user_id,omitempty"`
	Profile *Profile `json:"profile,omitempty"`
	Source  string   `json:"source"`
}

// Source is one credential strategy. Extract returns nil, nil when the
// source simply has nothing to offer.
type Source struct {
	Name    string
	Extract func(ctx context.Context) (*Session, error)
}

type Resolver struct {
	Sources []Source
	// Validate, when set, can reject a session so the next source is tried.
	Validate func(ctx context.Context, s *Session) error
	Logger   zerolog.Logger
}

// NewResolver builds the default chain: editor state store, browser
// cookies, local storage scan, then the configured key.
func NewResolver(paths Paths, dec Decryptor, apiKey string, logger zerolog.Logger) *Resolver {
	profiles := paths.ProfileDirs()
	return &Resolver{
		Sources: []Source{
			StateStore(paths.StateDB),
			BrowserCookies(profiles, dec),
			LocalStorageScan(profiles),
			Manual(apiKey),
		},
		Logger: logger,
	}
}

// Resolve returns the first session any source yields. Source errors are
// logged and skipped; only the absence of every source is an error.
func (r *Resolver) Resolve(ctx context.Context) (*Session, error) {
	for _, src := range r.Sources {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", api.ErrNotFound, err)
		}
		s, err := src.Extract(ctx)
		if err != nil {
			r.Logger.Debug().Err(err).Str("source", src.Name).Msg("session source failed")
			continue
		}
		if s == nil || s.Cookie == "" {
			continue
		}
		s.Source = src.Name
		if r.Validate != nil {
			if err := r.Validate(ctx, s); err != nil {
				r.Logger.Debug().Err(err).Str("source", src.Name).Msg("session rejected")
				continue
			}
		}
		r.Logger.Info().Str("source", src.Name).Msg("session resolved")
		return s, nil
	}
	return nil, fmt.Errorf("%w: no session source produced credentials", api.ErrNotFound)
}

func bearerCookie(key string) string {
	return "Authorization=Bearer " + key
}

// Manual wraps a key the user entered by hand.
func Manual(key string) Source {
	return Source{
		Name: "manual",
		Extract: func(context.Context) (*Session, error) {
			if key == "" {
				return nil, nil
			}
			return &Session{Cookie: bearerCookie(key)}, nil
		},
	}
}
