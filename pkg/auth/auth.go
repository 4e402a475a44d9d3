// Package auth resolves the credential used to open a live agent session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrAuthRequired indicates no usable credential is available, or the agent
// rejected the one presented. It is never retried automatically.
var ErrAuthRequired = errors.New("auth: credential required")

// Kind says how a credential is presented to the agent.
type Kind string

const (
	// KindAPIKey is sent as the key query parameter.
	KindAPIKey Kind = "api_key"
	// KindBearer is sent as an Authorization bearer token.
	KindBearer Kind = "bearer"
)

// Credential is an opaque secret plus how to present it.
type Credential struct {
	Kind  Kind
	Value string
}

// Valid reports whether the credential can be presented.
func (c Credential) Valid() bool {
	return c.Value != "" && (c.Kind == KindAPIKey || c.Kind == KindBearer)
}

// String redacts the secret.
func (c Credential) String() string {
	if c.Value == "" {
		return fmt.Sprintf("%s(empty)", c.Kind)
	}
	return fmt.Sprintf("%s(%d chars)", c.Kind, len(c.Value))
}

// APIKey returns an API key credential.
func APIKey(key string) Credential {
	return Credential{Kind: KindAPIKey, Value: strings.TrimSpace(key)}
}

// Provider resolves a credential. Implementations return an error wrapping
// ErrAuthRequired when none is available.
type Provider interface {
	Credential(ctx context.Context) (Credential, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Credential, error)

// Credential implements Provider.
func (f ProviderFunc) Credential(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// Static always returns the same credential.
type Static Credential

// Credential implements Provider.
func (s Static) Credential(context.Context) (Credential, error) {
	c := Credential(s)
	if !c.Valid() {
		return Credential{}, ErrAuthRequired
	}
	return c, nil
}

// DefaultEnvVars are checked in order by Env.
var DefaultEnvVars = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// Env reads an API key from the environment.
type Env struct {
	Vars   []string
	Lookup func(string) (string, bool)
}

// NewEnv returns an Env over DefaultEnvVars.
func NewEnv() *Env {
	return &Env{Vars: DefaultEnvVars, Lookup: os.LookupEnv}
}

// Credential implements Provider.
func (e *Env) Credential(context.Context) (Credential, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, name := range e.Vars {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return APIKey(v), nil
		}
	}
	return Credential{}, fmt.Errorf("%w: none of %s set", ErrAuthRequired, strings.Join(e.Vars, ", "))
}

// Store holds a credential supplied at runtime, for example by a flow.
type Store struct {
	mu   sync.RWMutex
	cred Credential
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the stored credential.
func (s *Store) Set(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = c
}

// SetAPIKey stores an API key.
func (s *Store) SetAPIKey(key string) {
	s.Set(APIKey(key))
}

// Clear forgets the stored credential.
func (s *Store) Clear() {
	s.Set(Credential{})
}

// Credential implements Provider.
func (s *Store) Credential(context.Context) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.cred.Valid() {
		return Credential{}, ErrAuthRequired
	}
	return s.cred, nil
}

// Chain returns the first credential any provider resolves.
type Chain []Provider

// Credential implements Provider.
func (c Chain) Credential(ctx context.Context) (Credential, error) {
	var errs []error
	for _, p := range c {
		cred, err := p.Credential(ctx)
		if err == nil {
			return cred, nil
		}
		if ctx.Err() != nil {
			return Credential{}, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Credential{}, ErrAuthRequired
	}
	return Credential{}, fmt.Errorf("%w: %w", ErrAuthRequired, errors.Join(errs...))
}
