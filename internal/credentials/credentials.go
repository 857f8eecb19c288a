// Package credentials resolves a client's user token to the key bundle
// its session runs with.
package credentials

import (
	"context"
	"errors"
	"strings"

	"github.com/PolybrainAI/polybrain-core/internal/config"
	"github.com/PolybrainAI/polybrain-core/internal/session"
)

var (
	// ErrUnknownToken is returned for a token with no stored bundle.
	ErrUnknownToken = errors.New("credentials: unknown user token")
	// ErrIncomplete is returned for a bundle missing a required key.
	ErrIncomplete = errors.New("credentials: bundle is incomplete")
)

// Resolver looks up credentials by user token.
type Resolver interface {
	Resolve(ctx context.Context, userToken string) (session.Credentials, error)
}

// Static hands the same bundle to every token.
type Static struct {
	Bundle session.Credentials
}

func (s Static) Resolve(ctx context.Context, _ string) (session.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return session.Credentials{}, err
	}
	return s.Bundle, validate(s.Bundle)
}

// Chain tries resolvers in order and returns the first hit. ErrUnknownToken
// moves on to the next resolver; any other error stops the chain.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, userToken string) (session.Credentials, error) {
	for _, r := range c {
		creds, err := r.Resolve(ctx, userToken)
		if errors.Is(err, ErrUnknownToken) {
			continue
		}
		return creds, err
	}
	return session.Credentials{}, ErrUnknownToken
}

// FromConfig builds the resolver described by cfg. The file store is
// consulted first, then the static bundle.
func FromConfig(cfg config.CredentialsConfig) (Resolver, error) {
	var chain Chain
	if strings.TrimSpace(cfg.Path) != "" {
		store, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		chain = append(chain, store)
	}
	if cfg.Static != nil {
		chain = append(chain, Static{Bundle: session.Credentials{
			ModelAPIKey:  cfg.Static.ModelAPIKey,
			CADAccessKey: cfg.Static.CADAccessKey,
			CADSecretKey: cfg.Static.CADSecretKey,
		}})
	}
	if len(chain) == 0 {
		return nil, errors.New("credentials: neither credentials.path nor credentials.static is configured")
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}

func validate(c session.Credentials) error {
	if c.CADAccessKey == "" || c.CADSecretKey == "" {
		return ErrIncomplete
	}
	return nil
}
