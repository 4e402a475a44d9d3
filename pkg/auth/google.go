package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teslashibe/wingman/internal/httpc"
)

// DefaultScopes are requested by Google.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/generative-language",
}

// Google resolves bearer tokens from Application Default Credentials.
type Google struct {
	Scopes []string

	mu  sync.Mutex
	src oauth2.TokenSource
}

// NewGoogle creates an ADC provider with DefaultScopes.
func NewGoogle(scopes ...string) *Google {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &Google{Scopes: scopes}
}

// Credential implements Provider.
func (g *Google) Credential(ctx context.Context) (Credential, error) {
	src, err := g.tokenSource(ctx)
	if err != nil {
		return Credential{}, err
	}

	tok, err := src.Token()
	if err != nil {
		return Credential{}, fmt.Errorf("%w: google token: %v", ErrAuthRequired, err)
	}
	return Credential{Kind: KindBearer, Value: tok.AccessToken}, nil
}

func (g *Google) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.src != nil {
		return g.src, nil
	}

	// The token source outlives this call, so it must not inherit ctx's deadline.
	creds, err := google.FindDefaultCredentials(httpc.OAuthContext(context.WithoutCancel(ctx)), g.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: application default credentials: %v", ErrAuthRequired, err)
	}
	g.src = oauth2.ReuseTokenSource(nil, creds.TokenSource)
	return g.src, nil
}
