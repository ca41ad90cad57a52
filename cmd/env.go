package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tunegate/resolver/internal/authority"
	"github.com/tunegate/resolver/internal/match"
	"github.com/tunegate/resolver/internal/monitoring"
	"github.com/tunegate/resolver/internal/resilience"
	"github.com/tunegate/resolver/internal/resolver"
	"github.com/tunegate/resolver/internal/store"
	"github.com/tunegate/resolver/pkg/deezer"
	"github.com/tunegate/resolver/pkg/musicbrainz"
	"github.com/tunegate/resolver/pkg/spotify"
)

// appEnv bundles the wired subsystems a command needs.
type appEnv struct {
	Store     store.Store
	Registry  *authority.Registry
	Breakers  *resilience.AuthorityBreakers
	Collector *monitoring.Collector
	Resolver  *resolver.Resolver
}

func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("closing store", zap.Error(err))
	}
}

// initEnv builds the full resolution environment from config: store,
// per-authority guards, scorer, collector, orchestrator.
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := newStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	breakers := resilience.NewAuthorityBreakers(cfg.Breaker.BreakerPolicy())
	retry := cfg.Retry.RetryPolicy()
	registry := authority.NewRegistry()

	for name, acfg := range cfg.Authorities {
		if !acfg.Enabled {
			continue
		}
		inner, err := buildAuthority(name)
		if err != nil {
			zap.L().Warn("skipping authority", zap.String("authority", name), zap.Error(err))
			continue
		}
		limiter := rate.NewLimiter(rate.Limit(acfg.RateLimit), max(acfg.Burst, 1))
		registry.Register(authority.NewGuarded(inner, breakers.Get(name), limiter, retry), acfg.Priority)
	}

	scorer := match.NewScorer(cfg.Match, registry.Priorities())
	collector := monitoring.NewCollector(breakers)
	res := resolver.New(registry, scorer, st,
		resolver.WithRecorder(collector),
		resolver.WithSearchLimit(cfg.Resolve.SearchLimit),
		resolver.WithEnrichment(cfg.Resolve.Enrichment),
	)

	return &appEnv{
		Store:     st,
		Registry:  registry,
		Breakers:  breakers,
		Collector: collector,
		Resolver:  res,
	}, nil
}

func buildAuthority(name string) (authority.Authority, error) {
	switch name {
	case authority.SpotifyName:
		if cfg.Spotify.Token == "" {
			return nil, eris.New("RESOLVER_SPOTIFY_TOKEN not set")
		}
		client := spotify.NewClient(spotify.StaticToken(cfg.Spotify.Token), spotify.WithBaseURL(cfg.Spotify.BaseURL))
		return authority.NewSpotify(client), nil
	case authority.DeezerName:
		return authority.NewDeezer(deezer.NewClient(deezer.WithBaseURL(cfg.Deezer.BaseURL))), nil
	case authority.MusicBrainzName:
		client := musicbrainz.NewClient(cfg.MusicBrainz.UserAgent, musicbrainz.WithBaseURL(cfg.MusicBrainz.BaseURL))
		return authority.NewMusicBrainz(client), nil
	default:
		return nil, eris.Errorf("unknown authority %q", name)
	}
}

// newStore opens the configured backend.
func newStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url required for postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		path := cfg.Store.Path
		if path == "" {
			path = "resolver.db"
		}
		return store.NewSQLite(path)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
