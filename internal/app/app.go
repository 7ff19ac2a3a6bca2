package app

import (
	"log/slog"
	"net/http"

	"github.com/dercryptomuslim/umrahcheck-api/internal/config"
	handlers "github.com/dercryptomuslim/umrahcheck-api/internal/http"
	mid "github.com/dercryptomuslim/umrahcheck-api/internal/middleware"
	"github.com/dercryptomuslim/umrahcheck-api/internal/obs"
	"github.com/dercryptomuslim/umrahcheck-api/internal/providers"
	"github.com/dercryptomuslim/umrahcheck-api/internal/resolve"
	"github.com/dercryptomuslim/umrahcheck-api/internal/routes"
	"github.com/prometheus/client_golang/prometheus"
)

type App struct {
	Router   http.Handler
	Resolver *resolve.Resolver
	Cache    *resolve.Cache
	Limiter  *resolve.DomainLimiter
	Metrics  *obs.Metrics

	ipLimiter *mid.IPRateLimiter
	closers   []interface{ Close() }
}

// New wires the whole service. The provider chain is an ordered data
// structure: the official API first when enabled, then one scrape provider
// per configured platform.
func New(cfg *config.Config, logger *slog.Logger) *App {
	registry := prometheus.NewRegistry()
	metrics := obs.NewMetrics(registry)

	var closers []interface{ Close() }

	var primary resolve.Provider
	if cfg.PrimaryEnabled {
		p := providers.NewOfficialProvider(cfg.RapidAPIKey, cfg.SupportedCities)
		primary = p
		closers = append(closers, p)
	}

	var scrapers []resolve.Provider
	if cfg.ScrapeEnabled {
		platforms := []providers.ScrapePlatform{
			providers.BookingPlatform(""),
			providers.HalalBookingPlatform(""),
			providers.HotelsPlatform(""),
		}
		for _, platform := range platforms {
			s := providers.NewScrapeProvider(platform, cfg.ScrapeLocale)
			scrapers = append(scrapers, s)
			closers = append(closers, s)
		}
	}

	cache := resolve.NewCache(cfg.CacheTTL, metrics)
	limiter := resolve.NewDomainLimiter(cfg.RateLimitPerDomain, metrics)
	resolver := resolve.NewResolver(primary, scrapers, cache, limiter, metrics, logger, resolve.Config{
		PrimaryEnabled:  cfg.PrimaryEnabled,
		ScrapeEnabled:   cfg.ScrapeEnabled,
		CacheTTL:        cfg.CacheTTL,
		PrimaryTimeout:  cfg.PrimaryTimeout,
		ScrapeTimeout:   cfg.ScrapeTimeout,
		OverallDeadline: cfg.OverallDeadline,
	})

	h := handlers.NewHandler(resolver)
	rl := mid.NewIPRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
	router := routes.GetRoutes(h, rl, metrics, logger, cfg.HTTP.RequestTimeout)

	return &App{
		Router:    router,
		Resolver:  resolver,
		Cache:     cache,
		Limiter:   limiter,
		Metrics:   metrics,
		ipLimiter: rl,
		closers:   closers,
	}
}

// Close tears down the app's background workers and provider transports.
// Safe to call once in-flight requests have drained.
func (a *App) Close() {
	a.ipLimiter.Stop()
	for _, c := range a.closers {
		c.Close()
	}
}
