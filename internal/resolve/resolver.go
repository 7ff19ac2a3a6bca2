package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dercryptomuslim/umrahcheck-api/internal/models"
	"github.com/dercryptomuslim/umrahcheck-api/internal/obs"
)

// Config carries the resolver's tunables. Zero values are replaced with the
// documented defaults in NewResolver.
type Config struct {
	PrimaryEnabled  bool
	ScrapeEnabled   bool
	CacheTTL        time.Duration
	PrimaryTimeout  time.Duration
	ScrapeTimeout   time.Duration
	OverallDeadline time.Duration
}

const (
	defaultCacheTTL        = 60 * time.Second
	defaultPrimaryTimeout  = 10 * time.Second
	defaultScrapeTimeout   = 30 * time.Second
	defaultOverallDeadline = 40 * time.Second
)

// Resolver orchestrates one price resolution: cache check, primary fetch,
// scraper fan-out, aggregation, deterministic best-offer selection and
// cache write-through. Provider failures degrade the result, they are never
// surfaced to the caller.
type Resolver struct {
	primary  Provider // nil when the official API is disabled
	scrapers []Provider
	cache    *Cache
	limiter  *DomainLimiter
	metrics  *obs.Metrics
	logger   *slog.Logger
	cfg      Config
}

func NewResolver(primary Provider, scrapers []Provider, cache *Cache, limiter *DomainLimiter, m *obs.Metrics, logger *slog.Logger, cfg Config) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.PrimaryTimeout <= 0 {
		cfg.PrimaryTimeout = defaultPrimaryTimeout
	}
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = defaultScrapeTimeout
	}
	if cfg.OverallDeadline <= 0 {
		cfg.OverallDeadline = defaultOverallDeadline
	}
	return &Resolver{
		primary:  primary,
		scrapers: scrapers,
		cache:    cache,
		limiter:  limiter,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// Resolve returns a well-formed ResolutionResult for q. The only errors it
// returns are caller-side: a canceled context. Upstream failures fold into
// BestOffer=nil / DataSourceNone.
func (r *Resolver) Resolve(ctx context.Context, q *models.PriceQuery) (ResolutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.OverallDeadline)
	defer cancel()

	res, hit, err := r.cache.GetOrCompute(ctx, q.CacheKey(), func(ctx context.Context) (ResolutionResult, bool, error) {
		return r.resolve(ctx, q)
	})
	if err != nil {
		return ResolutionResult{}, err
	}
	if hit {
		res.DataSource = DataSourceCache
	}
	r.metrics.IncResolutions(string(res.DataSource))
	return res, nil
}

// resolve runs the provider chain for a cache miss. The second return value
// reports whether the result may be cached.
func (r *Resolver) resolve(ctx context.Context, q *models.PriceQuery) (ResolutionResult, bool, error) {
	var (
		offers   []Offer
		failures []error
	)

	primaryUsable := false
	if r.cfg.PrimaryEnabled && r.primary != nil {
		offer, err := r.fetchOne(ctx, r.primary, r.cfg.PrimaryTimeout, q)
		if err != nil {
			failures = append(failures, err)
			r.logger.Warn("primary provider failed",
				"provider", r.primary.Name(), "hotel", q.HotelName, "error", err)
		} else {
			offers = append(offers, offer)
			primaryUsable = offer.Availability
		}
	}

	// Scrapers run only when the primary produced nothing usable; an
	// available official offer is authoritative.
	if !primaryUsable && r.cfg.ScrapeEnabled && len(r.scrapers) > 0 {
		scraped, scrapeFailures := r.fanOut(ctx, q)
		offers = append(offers, scraped...)
		failures = append(failures, scrapeFailures...)
	}

	best := bestOffer(offers)

	ds := DataSourceNone
	if best != nil {
		switch best.Source {
		case SourceOfficial:
			ds = DataSourceOfficial
		case SourceScrape:
			ds = DataSourceScrape
		}
	}

	now := time.Now()
	result := ResolutionResult{
		Query:          *q,
		Offers:         offers,
		BestOffer:      best,
		DataSource:     ds,
		ResolvedAt:     now,
		CacheExpiresAt: now.Add(r.cfg.CacheTTL),
	}

	// An empty result caused only by transient failures is not cached, so a
	// retry shortly after has a chance to succeed. Everything else is,
	// including "no result", to avoid hammering upstreams within the TTL.
	store := !(len(offers) == 0 && allTransient(failures))
	return result, store, nil
}

// fetchOne runs a single provider under its own timeout, holding a domain
// permit for the duration of the call.
func (r *Resolver) fetchOne(ctx context.Context, p Provider, timeout time.Duration, q *models.PriceQuery) (Offer, error) {
	release, err := r.limiter.Acquire(ctx, p.Domain())
	if err != nil {
		return Offer{}, fmt.Errorf("%s: acquiring permit: %w", p.Name(), ErrTimeout)
	}
	defer release()

	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	offer, err := func() (o Offer, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("provider panic recovered", "provider", p.Name(), "panic", rec)
				err = fmt.Errorf("%s: panic: %w", p.Name(), ErrUpstream)
			}
		}()
		return p.Fetch(fctx, q)
	}()
	r.metrics.ObserveProviderLatency(p.Name(), time.Since(start).Seconds())
	if err != nil {
		r.metrics.IncProviderFailure(p.Name())
		return Offer{}, fmt.Errorf("%s: %w", p.Name(), err)
	}
	return offer, nil
}

type fanOutcome struct {
	provider string
	offer    Offer
	err      error
}

// fanOut invokes every scrape provider concurrently. Partial failures are
// tolerated; collection stops at the overall deadline and stragglers are
// abandoned.
func (r *Resolver) fanOut(ctx context.Context, q *models.PriceQuery) ([]Offer, []error) {
	ch := make(chan fanOutcome, len(r.scrapers))
	var wg sync.WaitGroup
	for _, p := range r.scrapers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("scrape provider panic recovered", "provider", p.Name(), "panic", rec)
					r.metrics.IncProviderFailure(p.Name())
					ch <- fanOutcome{provider: p.Name(), err: fmt.Errorf("%s: panic: %w", p.Name(), ErrUpstream)}
				}
			}()
			offer, err := r.fetchOne(ctx, p, r.cfg.ScrapeTimeout, q)
			ch <- fanOutcome{provider: p.Name(), offer: offer, err: err}
		}(p)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	var offers []Offer
	var failures []error
	collected := 0
	for {
		select {
		case out, ok := <-ch:
			if !ok {
				return offers, failures
			}
			collected++
			if out.err != nil {
				failures = append(failures, out.err)
				r.logger.Warn("scrape provider failed", "provider", out.provider, "hotel", q.HotelName, "error", out.err)
				continue
			}
			offers = append(offers, out.offer)
		case <-ctx.Done():
			// deadline truncates the fan-out to whatever has completed
			remaining := len(r.scrapers) - collected
			if remaining > 0 {
				failures = append(failures, fmt.Errorf("%d scraper(s) abandoned: %w", remaining, ErrTimeout))
			}
			return offers, failures
		}
	}
}

// bestOffer selects the unique minimum of the available offers: lowest
// total price, then official source over scrape, then platform name
// ascending. The result is independent of arrival order.
func bestOffer(offers []Offer) *Offer {
	var best *Offer
	for i := range offers {
		o := &offers[i]
		if !o.Availability {
			continue
		}
		if best == nil || lessOffer(o, best) {
			best = o
		}
	}
	if best == nil {
		return nil
	}
	picked := *best
	return &picked
}

func lessOffer(a, b *Offer) bool {
	if c := a.TotalPrice.Cmp(b.TotalPrice); c != 0 {
		return c < 0
	}
	if a.Source != b.Source {
		return a.Source == SourceOfficial
	}
	return a.Platform < b.Platform
}

func allTransient(failures []error) bool {
	if len(failures) == 0 {
		return false
	}
	for _, err := range failures {
		if !transient(err) {
			return false
		}
	}
	return true
}
