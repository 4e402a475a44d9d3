package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/wingman/pkg/auth"
	"github.com/teslashibe/wingman/pkg/extract"
	"github.com/teslashibe/wingman/pkg/session"
)

func newTalkCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "talk",
		Short: "Start a session in the terminal",
		Long: "Start a session immediately and print HUD updates and log entries as they arrive.\n" +
			"Press Ctrl-C once to wind down with a final summary, twice to close at once.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTalk(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func runTalk(ctx context.Context, opts *rootOptions, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a := newApp(opts.cfg)
	console := newConsole(out)
	if err := a.wire(auth.NewPromptFlow(a.store), console); err != nil {
		return err
	}
	defer a.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.ctrl.Run(ctx) })
	g.Go(func() error {
		defer cancel()
		return drive(ctx, a.ctrl, console, sigs)
	})
	return g.Wait()
}

// drive starts the session and reacts to signals and credential prompts
// until the session has wound down.
func drive(ctx context.Context, ctrl *session.Controller, console *console, sigs <-chan os.Signal) error {
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	stops := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-sigs:
			stops++
			if stops > 2 {
				return nil
			}
			if err := ctrl.Stop(ctx); err != nil {
				return err
			}
			if ctrl.State() == session.StateIdle {
				return nil
			}

		case <-console.authRequired:
			if err := ctrl.OpenCredentialFlow(ctx); err != nil {
				if errors.Is(err, auth.ErrNoInput) {
					return err
				}
				fmt.Fprintf(console.out, "credential rejected: %v\n", err)
				continue
			}
			if err := ctrl.Start(ctx); err != nil {
				return err
			}

		case <-console.idle:
			if stops > 0 && ctrl.State() == session.StateIdle {
				return nil
			}
		}
	}
}

// console prints controller output to a terminal.
type console struct {
	mu  sync.Mutex
	out io.Writer

	authRequired chan struct{}
	idle         chan struct{}
}

func newConsole(out io.Writer) *console {
	return &console{
		out:          out,
		authRequired: make(chan struct{}, 1),
		idle:         make(chan struct{}, 1),
	}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) OnState(s session.State) {
	c.printf("[%s]\n", s)
	if s == session.StateIdle {
		notify(c.idle)
	}
}

func (c *console) OnHUD(h extract.HUD) {
	if h.Empty() {
		return
	}
	c.printf("HUD  %s\n%s", h.Topic, bullets(h.Bullets))
}

func (c *console) OnLogEntry(e extract.LogEntry) {
	c.printf("LOG  %s  %s\n%s", e.Timestamp.Format("15:04:05"), e.Topic, bullets(e.Bullets))
}

func (c *console) OnStatus(s session.Status) {
	if s.IsZero() {
		return
	}
	c.printf("!    %s: %s\n", s.Code, s.Message)
	if s.Code == session.StatusAuthRequired {
		notify(c.authRequired)
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func bullets(items []string) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "     - %s\n", item)
	}
	return b.String()
}
