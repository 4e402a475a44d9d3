package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Flow interactively acquires a credential.
type Flow interface {
	Run(ctx context.Context) error
}

// FlowFunc adapts a function to Flow.
type FlowFunc func(ctx context.Context) error

// Run implements Flow.
func (f FlowFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// ErrNoInput is returned by PromptFlow when the input is exhausted.
var ErrNoInput = errors.New("auth: no credential entered")

// PromptFlow asks for an API key and saves it into Store. When In is a
// terminal the key is read without echo.
type PromptFlow struct {
	In     io.Reader
	Out    io.Writer
	Store  *Store
	Prompt string
}

// NewPromptFlow prompts on the process's standard streams.
func NewPromptFlow(store *Store) *PromptFlow {
	return &PromptFlow{In: os.Stdin, Out: os.Stderr, Store: store}
}

// Run implements Flow.
func (f *PromptFlow) Run(ctx context.Context) error {
	prompt := f.Prompt
	if prompt == "" {
		prompt = "Gemini API key: "
	}
	if f.Out != nil {
		fmt.Fprint(f.Out, prompt)
	}

	type result struct {
		key string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		key, err := f.read()
		ch <- result{key, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r = <-ch:
	}
	if f.Out != nil {
		fmt.Fprintln(f.Out)
	}
	if r.err != nil {
		return fmt.Errorf("auth: read credential: %w", r.err)
	}
	if r.key == "" {
		return ErrNoInput
	}

	f.Store.SetAPIKey(r.key)
	return nil
}

func (f *PromptFlow) read() (string, error) {
	if file, ok := f.In.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		b, err := term.ReadPassword(int(file.Fd()))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(f.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
