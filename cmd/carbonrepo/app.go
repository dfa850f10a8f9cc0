package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ochairo/carbonrepo/internal/config"
	"github.com/ochairo/carbonrepo/internal/domain-adapters/gateways"
	"github.com/ochairo/carbonrepo/internal/domain-adapters/limiter"
	orchestrators "github.com/ochairo/carbonrepo/internal/domain-orchestrators"
	"github.com/ochairo/carbonrepo/internal/domain/entities"
	domaingateways "github.com/ochairo/carbonrepo/internal/domain/interfaces/gateways"
	"github.com/ochairo/carbonrepo/internal/domain/services"
	"github.com/ochairo/carbonrepo/internal/external-adapters/gpg"
	"github.com/ochairo/carbonrepo/internal/external-adapters/jsonstore"
	"github.com/ochairo/carbonrepo/internal/logging"
	"github.com/ochairo/carbonrepo/internal/metrics"
)

// app wires the adapters for one command invocation
type app struct {
	cfg      *config.Config
	out      io.Writer
	styles   styles
	recorder *metrics.Recorder
	gateway  *gateways.HTTPGitHubGateway
}

func newApp(cfg *config.Config, out io.Writer) *app {
	lim := limiter.New(cfg.Capacity)
	return &app{
		cfg:      cfg,
		out:      out,
		styles:   newStyles(out),
		recorder: metrics.NewRecorder(),
		gateway: gateways.NewHTTPGitHubGateway(gateways.GatewayOptions{
			APIBase:   cfg.APIBase,
			WebBase:   cfg.WebBase,
			Token:     cfg.Token,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
			MaxConns:  cfg.MaxConns,
			Limiter:   lim,
			Logger:    logging.Get("gateway"),
		}),
	}
}

// signatures returns a checker when a keyring or key IDs are configured
func (a *app) signatures(ctx context.Context) (domaingateways.SignatureChecker, error) {
	if a.cfg.Keyring == "" && len(a.cfg.KeyIDs) == 0 {
		return nil, nil
	}
	v := gpg.NewVerifier()
	if a.cfg.Keyring != "" {
		if err := v.LoadKeyring(ctx, a.cfg.Keyring); err != nil {
			return nil, fmt.Errorf("failed to load keyring: %w", err)
		}
	}
	if len(a.cfg.KeyIDs) > 0 {
		if err := v.ImportKeys(ctx, a.cfg.KeyIDs); err != nil {
			return nil, err
		}
	}
	log := logging.Get("gpg")
	log.Debug().Int("keys", v.GetKeyringSize()).Msg("Keyring loaded")
	return v, nil
}

func (a *app) checksumVerifier(ctx context.Context) (*gateways.ChecksumVerifier, error) {
	sigs, err := a.signatures(ctx)
	if err != nil {
		return nil, err
	}
	return gateways.NewChecksumVerifier(a.gateway, sigs, a.cfg.Capacity, logging.Get("verifier")), nil
}

// engine builds and loads an engine. sink may be nil.
func (a *app) engine(ctx context.Context, pace bool, sink entities.EventSink) (*orchestrators.Engine, error) {
	verifier, err := a.checksumVerifier(ctx)
	if err != nil {
		return nil, err
	}

	cfg := a.cfg
	if pace {
		cfg = cfg.WithInteractivePace()
	}
	engine := orchestrators.NewEngine(
		jsonstore.New(cfg.StorePath),
		a.gateway,
		verifier,
		services.NewSummarizer(a.gateway, a.gateway.WebBase()),
		orchestrators.EngineConfig{
			Fanout:    cfg.Capacity,
			CheckPace: cfg.CheckPace,
			Sink:      a.fanIn(sink),
			Logger:    logging.Get("engine"),
		},
	)
	if err := engine.Load(); err != nil {
		return nil, err
	}
	if !a.gateway.Authenticated() {
		log := logging.Get("engine")
		log.Warn().Msg("No GitHub token configured, requests are unauthenticated and heavily rate limited")
	}
	return engine, nil
}

// fanIn feeds every event to the metrics recorder and then to sink
func (a *app) fanIn(sink entities.EventSink) entities.EventSink {
	return func(ev entities.Event) {
		a.recorder.Observe(ev)
		if sink != nil {
			sink(ev)
		}
	}
}

// writeMetrics exports the recorder when a textfile path is configured
func (a *app) writeMetrics(log zerolog.Logger) {
	if a.cfg.MetricsFile == "" {
		return
	}
	if err := a.recorder.WriteTextfile(a.cfg.MetricsFile); err != nil {
		log.Warn().Err(err).Msg("Failed to export metrics")
	}
}
