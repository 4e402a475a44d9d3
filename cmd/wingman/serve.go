package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/wingman/pkg/auth"
	"github.com/teslashibe/wingman/pkg/web"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the controller behind the dashboard API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				opts.cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Keys arrive through POST /api/credentials, which fills the store
	// before the flow runs; the controller then checks they resolve.
	flow := auth.FlowFunc(func(context.Context) error { return nil })

	a := newApp(opts.cfg)
	srv := web.New(web.WithStore(a.store), web.WithMetrics(a.metrics), web.WithLogger(a.logger))
	if err := a.wire(flow, srv); err != nil {
		return err
	}
	defer a.Close()
	srv.Bind(a.ctrl)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.ctrl.Run(ctx) })
	g.Go(func() error { return srv.Serve(ctx, opts.cfg.Server.Addr) })
	return g.Wait()
}
