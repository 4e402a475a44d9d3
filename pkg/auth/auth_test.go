package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	c, err := Static(APIKey(" k1 ")).Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credential{Kind: KindAPIKey, Value: "k1"}, c)

	_, err = Static{}.Credential(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestEnv(t *testing.T) {
	vars := map[string]string{"GOOGLE_API_KEY": "google"}
	env := &Env{Vars: DefaultEnvVars, Lookup: func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}}

	c, err := env.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "google", c.Value)

	vars["GEMINI_API_KEY"] = "gemini"
	c, err = env.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gemini", c.Value, "GEMINI_API_KEY takes precedence")

	clear(vars)
	_, err = env.Credential(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestStore(t *testing.T) {
	s := NewStore()
	_, err := s.Credential(context.Background())
	require.ErrorIs(t, err, ErrAuthRequired)

	s.SetAPIKey("secret")
	c, err := s.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret", c.Value)
	assert.NotContains(t, c.String(), "secret")

	s.Clear()
	_, err = s.Credential(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestChain(t *testing.T) {
	store := NewStore()
	failing := ProviderFunc(func(context.Context) (Credential, error) {
		return Credential{}, errors.New("metadata server unreachable")
	})
	chain := Chain{failing, store, Static(APIKey("fallback"))}

	c, err := chain.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fallback", c.Value)

	store.SetAPIKey("stored")
	c, err = chain.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored", c.Value)

	_, err = Chain{failing}.Credential(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)

	_, err = Chain{}.Credential(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestPromptFlow(t *testing.T) {
	store := NewStore()
	var out strings.Builder
	flow := &PromptFlow{In: strings.NewReader("  typed-key \n"), Out: &out, Store: store}

	require.NoError(t, flow.Run(context.Background()))
	assert.Contains(t, out.String(), "API key")

	c, err := store.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "typed-key", c.Value)
}

func TestPromptFlowNoTrailingNewline(t *testing.T) {
	store := NewStore()
	flow := &PromptFlow{In: strings.NewReader("abc"), Store: store}
	require.NoError(t, flow.Run(context.Background()))

	c, _ := store.Credential(context.Background())
	assert.Equal(t, "abc", c.Value)
}

func TestPromptFlowEmpty(t *testing.T) {
	flow := &PromptFlow{In: strings.NewReader(""), Store: NewStore()}
	assert.ErrorIs(t, flow.Run(context.Background()), ErrNoInput)
}
