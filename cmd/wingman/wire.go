package main

import (
	"fmt"
	"log/slog"

	"github.com/teslashibe/wingman/internal/config"
	wlog "github.com/teslashibe/wingman/internal/log"
	"github.com/teslashibe/wingman/internal/metrics"
	"github.com/teslashibe/wingman/pkg/audioio"
	"github.com/teslashibe/wingman/pkg/auth"
	"github.com/teslashibe/wingman/pkg/live"
	"github.com/teslashibe/wingman/pkg/session"
)

func audioBackend(s string) audioio.Backend {
	return audioio.Backend(s)
}

// app holds the pieces both commands share.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *auth.Store
	metrics *metrics.Metrics
	speaker audioio.Speaker
	ctrl    *session.Controller
}

func newApp(cfg *config.Config) *app {
	store := auth.NewStore()
	if cfg.Agent.APIKey != "" {
		store.SetAPIKey(cfg.Agent.APIKey)
	}
	return &app{
		cfg:     cfg,
		logger:  wlog.L(),
		store:   store,
		metrics: metrics.New(),
	}
}

// wire builds the controller and its devices. flow and observer are
// supplied by the command.
func (a *app) wire(flow auth.Flow, observer session.Observer) error {
	creds := auth.Chain{a.store, auth.NewEnv()}
	if a.cfg.Agent.UseADC {
		creds = append(creds, auth.NewGoogle())
	}

	mic, err := audioio.NewMicrophone(a.cfg.Audio, a.logger)
	if err != nil {
		return fmt.Errorf("wire microphone: %w", err)
	}
	speaker, err := audioio.NewSpeaker(a.cfg.Audio, a.logger)
	if err != nil {
		return fmt.Errorf("wire speaker: %w", err)
	}

	dialer := live.NewGemini(
		live.WithURL(a.cfg.Agent.URL),
		live.WithSetupTimeout(a.cfg.Agent.SetupTimeout),
		live.WithLogger(a.logger),
	)

	ctrl, err := session.New(a.cfg.SessionConfig(),
		session.WithDialer(dialer),
		session.WithCredentials(creds),
		session.WithCredentialFlow(flow),
		session.WithMicrophone(mic),
		session.WithOutput(speaker),
		session.WithObserver(observer),
		session.WithLogger(a.logger),
		session.WithMetrics(a.metrics),
	)
	if err != nil {
		speaker.Close()
		return fmt.Errorf("wire controller: %w", err)
	}

	a.speaker = speaker
	a.ctrl = ctrl
	return nil
}

func (a *app) Close() error {
	if a.speaker == nil {
		return nil
	}
	return a.speaker.Close()
}
