package resolve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dercryptomuslim/umrahcheck-api/internal/models"
	"github.com/shopspring/decimal"
)

type fakeProvider struct {
	mu       sync.Mutex
	name     string
	domain   string
	offer    Offer
	err      error
	delay    time.Duration
	panicMsg string
	calls    int
}

func (f *fakeProvider) Fetch(ctx context.Context, q *models.PriceQuery) (Offer, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Offer{}, fmt.Errorf("%s: %w", f.name, ErrTimeout)
		}
	}
	if f.err != nil {
		return Offer{}, fmt.Errorf("%s: %w", f.name, f.err)
	}
	o := f.offer
	o.FetchedAt = time.Now()
	return o, nil
}

func (f *fakeProvider) Name() string   { return f.name }
func (f *fakeProvider) Domain() string { return f.domain }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testQuery(t *testing.T) *models.PriceQuery {
	t.Helper()
	q, err := models.NewPriceQuery("Conrad Makkah", "Makkah", "2024-03-01", "2024-03-05", "2", "0", "1", "EUR")
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func testOffer(platform string, source Source, perNight float64, nights int, available bool) Offer {
	pn := decimal.NewFromFloat(perNight)
	return Offer{
		Platform:      platform,
		PricePerNight: pn,
		TotalPrice:    pn.Mul(decimal.NewFromInt(int64(nights))),
		Currency:      "EUR",
		Availability:  available,
		Source:        source,
	}
}

func newTestResolver(primary Provider, scrapers []Provider, cfg Config) *Resolver {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Minute
	}
	m := testMetrics()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(primary, scrapers, NewCache(cfg.CacheTTL, m), NewDomainLimiter(2, m), m, logger, cfg)
}

func TestResolveOfficialScenario(t *testing.T) {
	primary := &fakeProvider{
		name:   "booking-api",
		domain: "api.example",
		offer:  testOffer("booking.com", SourceOfficial, 450, 4, true),
	}
	scraper := &fakeProvider{name: "booking.com", domain: "www.example"}

	r := newTestResolver(primary, []Provider{scraper}, Config{PrimaryEnabled: true, ScrapeEnabled: true})
	res, err := r.Resolve(context.Background(), testQuery(t))
	if err != nil {
		t.Fatal(err)
	}

	if res.DataSource != DataSourceOfficial {
		t.Fatalf("data_source = %s, want official", res.DataSource)
	}
	if res.BestOffer == nil {
		t.Fatal("expected a best offer")
	}
	if want := decimal.NewFromInt(1800); !res.BestOffer.TotalPrice.Equal(want) {
		t.Fatalf("total = %s, want 1800", res.BestOffer.TotalPrice)
	}
	if !res.BestOffer.PricePerNight.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("per-night = %s, want 450", res.BestOffer.PricePerNight)
	}
	// an available official offer is authoritative; scrapers must not run
	if scraper.callCount() != 0 {
		t.Fatalf("scraper called %d times, want 0", scraper.callCount())
	}
}

func TestResolveFallbackOnPrimaryFailure(t *testing.T) {
	primary := &fakeProvider{name: "booking-api", domain: "api.example", err: ErrUpstream}
	scraper := &fakeProvider{
		name:   "booking.com",
		domain: "www.example",
		offer:  testOffer("booking.com", SourceScrape, 500, 4, true),
	}

	r := newTestResolver(primary, []Provider{scraper}, Config{PrimaryEnabled: true, ScrapeEnabled: true})
	res, err := r.Resolve(context.Background(), testQuery(t))
	if err != nil {
		t.Fatal(err)
	}

	if res.DataSource != DataSourceScrape {
		t.Fatalf("data_source = %s, want scrape", res.DataSource)
	}
	if res.BestOffer == nil || res.BestOffer.Platform != "booking.com" {
		t.Fatalf("unexpected best offer: %+v", res.BestOffer)
	}
}

func TestResolvePanickingPrimaryFallsBackToScrape(t *testing.T) {
	primary := &fakeProvider{name: "booking-api", domain: "api.example", panicMsg: "nil pointer in response mapping"}
	scraper := &fakeProvider{
		name:   "booking.com",
		domain: "www.example",
		offer:  testOffer("booking.com", SourceScrape, 500, 4, true),
	}

	r := newTestResolver(primary, []Provider{scraper}, Config{PrimaryEnabled: true, ScrapeEnabled: true})
	res, err := r.Resolve(context.Background(), testQuery(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.DataSource != DataSourceScrape {
		t.Fatalf("data_source = %s, want scrape", res.DataSource)
	}

	// the key must not stay marked in-flight: a follow-up request for the
	// same query has to answer promptly from cache, not block on a dead
	// computation until its deadline
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	res, err = r.Resolve(ctx, testQuery(t))
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if res.DataSource != DataSourceCache {
		t.Fatalf("second resolve data_source = %s, want cache", res.DataSource)
	}
}

func TestResolvePanickingScraperTolerated(t *testing.T) {
	primary := &fakeProvider{name: "booking-api", domain: "api.example", err: ErrUpstream}
	bad := &fakeProvider{name: "booking.com", domain: "www.example", panicMsg: "selector index out of range"}
	good := &fakeProvider{
		name:   "halalbooking.com",
		domain: "hb.example",
		offer:  testOffer("halalbooking.com", SourceScrape, 480, 4, true),
	}

	r := newTestResolver(primary, []Provider{bad, good}, Config{PrimaryEnabled: true, ScrapeEnabled: true})
	res, err := r.Resolve(context.Background(), testQuery(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.BestOffer == nil || res.BestOffer.Platform != "halalbooking.com" {
		t.Fatalf("unexpected best offer: %+v", res.BestOffer)
	}
}

func TestResolveUnavailablePrimaryLosesToAvailableScrape(t *testing.T) {
	primary := &fakeProvider{
		name:   "booking-api",
		domain: "api.example",
		offer:  testOffer("booking.com", SourceOfficial, 100, 4, false),
	}
	scraper := &fakeProvider{
		name:   "halalbooking.com",
		domain: "halal.example",
		offer:  testOffer("halalbooking.com", SourceScrape, 600, 4, true),
	}

	r := newTestResolver(primary, []Provider{scraper}, Config{PrimaryEnabled: true, ScrapeEnabled: true})
	res, err := r.Resolve(context.Background(), testQuery(t))
	if err != nil {
		t.Fatal(err)
	}

	if res.DataSource != DataSourceScrape {
		t.Fatalf("data_source = %s, want scrape", res.DataSource)
	}
	if res.BestOffer == nil || !res.BestOffer.Availability {
		t.Fatalf("best offer must be the available one, got %+v", res.BestOffer)
	}
	if len(res.Offers) != 2 {
		t.Fatalf("both offers should be recorded, got %d", len(res.Offers))
	}
}

func TestResolveAllProvidersFail(t *testing.T) {
	primary := &fakeProvider{name: "booking-api", domain: "api.example", err: ErrQuotaExceeded}
	s1 := &fakeProvider{name: "booking.com", domain: "www.example", err: ErrBlocked}
	s2 := &fakeProvider{name: "halalbooking.com", domain: "halal.example", err: ErrParse}

	r := newTestResolver(primary, []Provider{s1, s2}, Config{PrimaryEnabled: true, ScrapeEnabled: true})
	res, err := r.Resolve(context.Background(), testQuery(t))
	if err != nil {
		t.Fatalf("provider failures must not surface to the caller: %v", err)
	}

	if res.DataSource != DataSourceNone {
		t.Fatalf("data_source = %s, want none", res.DataSource)
	}
	if res.BestOffer != nil {
		t.Fatalf("expected no best offer, got %+v", res.BestOffer)
	}
}

func TestResolveCacheIdempotence(t *testing.T) {
	primary := &fakeProvider{
		name:   "booking-api",
		domain: "api.example",
		offer:  testOffer("booking.com", SourceOfficial, 450, 4, true),
	}

	r := newTestResolver(primary, nil, Config{PrimaryEnabled: true})
	first, err := r.Resolve(context.Background(), testQuery(t))
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(context.Background(), testQuery(t))
	if err != nil {
		t.Fatal(err)
	}

	if primary.callCount() != 1 {
		t.Fatalf("provider called %d times, want 1", primary.callCount())
	}
	if second.DataSource != DataSourceCache {
		t.Fatalf("second data_source = %s, want cache", second.DataSource)
	}
	if !second.BestOffer.TotalPrice.Equal(first.BestOffer.TotalPrice) ||
		!second.ResolvedAt.Equal(first.ResolvedAt) {
		t.Fatal("cached result must be identical to the original resolution")
	}
}

func TestResolveCacheExpiryRefetches(t *testing.T) {
	primary := &fakeProvider{
		name:   "booking-api",
		domain: "api.example",
		offer:  testOffer("booking.com", SourceOfficial, 450, 4, true),
	}

	r := newTestResolver(primary, nil, Config{PrimaryEnabled: true, CacheTTL: 30 * time.Millisecond})
	if _, err := r.Resolve(context.Background(), testQuery(t)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	res, err := r.Resolve(context.Background(), testQuery(t))
	if err != nil {
		t.Fatal(err)
	}

	if primary.callCount() != 2 {
		t.Fatalf("provider called %d times after expiry, want 2", primary.callCount())
	}
	if res.DataSource != DataSourceOfficial {
		t.Fatalf("post-expiry data_source = %s, want official", res.DataSource)
	}
}

func TestResolveTransientFailureNotCached(t *testing.T) {
	primary := &fakeProvider{name: "booking-api", domain: "api.example", err: ErrUpstream}
	scraper := &fakeProvider{name: "booking.com", domain: "www.example", err: ErrTimeout}

	r := newTestResolver(primary, []Provider{scraper}, Config{PrimaryEnabled: true, ScrapeEnabled: true})
	for i := 0; i < 2; i++ {
		res, err := r.Resolve(context.Background(), testQuery(t))
		if err != nil {
			t.Fatal(err)
		}
		if res.DataSource != DataSourceNone {
			t.Fatalf("data_source = %s, want none", res.DataSource)
		}
	}

	if primary.callCount() != 2 {
		t.Fatalf("transient failure must not be cached; primary called %d times, want 2", primary.callCount())
	}
}

func TestResolveNoMatchIsCached(t *testing.T) {
	primary := &fakeProvider{name: "booking-api", domain: "api.example", err: ErrNoMatch}

	r := newTestResolver(primary, nil, Config{PrimaryEnabled: true})
	for i := 0; i < 2; i++ {
		if _, err := r.Resolve(context.Background(), testQuery(t)); err != nil {
			t.Fatal(err)
		}
	}

	if primary.callCount() != 1 {
		t.Fatalf("definitive no-result must be cached; primary called %d times, want 1", primary.callCount())
	}
}

func TestResolveCoalescesConcurrentRequests(t *testing.T) {
	primary := &fakeProvider{
		name:   "booking-api",
		domain: "api.example",
		offer:  testOffer("booking.com", SourceOfficial, 450, 4, true),
		delay:  50 * time.Millisecond,
	}

	r := newTestResolver(primary, nil, Config{PrimaryEnabled: true})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), testQuery(t)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if primary.callCount() != 1 {
		t.Fatalf("concurrent identical queries must collapse; provider called %d times", primary.callCount())
	}
}

func TestResolveDeadlineTruncatesFanOut(t *testing.T) {
	fast := &fakeProvider{
		name:   "booking.com",
		domain: "www.example",
		offer:  testOffer("booking.com", SourceScrape, 500, 4, true),
	}
	slow := &fakeProvider{
		name:   "halalbooking.com",
		domain: "halal.example",
		offer:  testOffer("halalbooking.com", SourceScrape, 400, 4, true),
		delay:  5 * time.Second,
	}

	r := newTestResolver(nil, []Provider{fast, slow}, Config{
		ScrapeEnabled:   true,
		ScrapeTimeout:   100 * time.Millisecond,
		OverallDeadline: 150 * time.Millisecond,
	})
	start := time.Now()
	res, err := r.Resolve(context.Background(), testQuery(t))
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("resolution took %s, deadline not enforced", elapsed)
	}

	if res.BestOffer == nil || res.BestOffer.Platform != "booking.com" {
		t.Fatalf("expected the fast scraper's offer, got %+v", res.BestOffer)
	}
}

func TestBestOfferDeterministicUnderArrivalOrder(t *testing.T) {
	offers := []Offer{
		testOffer("zeta.com", SourceScrape, 500, 4, true),
		testOffer("alpha.com", SourceScrape, 450, 4, true),
		testOffer("beta.com", SourceScrape, 450, 4, true),
		testOffer("cheap-but-gone.com", SourceScrape, 100, 4, false),
	}

	// every permutation of arrival order picks the same winner
	for i := 0; i < len(offers); i++ {
		shuffled := append([]Offer{}, offers[i:]...)
		shuffled = append(shuffled, offers[:i]...)
		best := bestOffer(shuffled)
		if best == nil || best.Platform != "alpha.com" {
			t.Fatalf("rotation %d: best = %+v, want alpha.com", i, best)
		}
	}
}

func TestBestOfferPrefersOfficialOnPriceTie(t *testing.T) {
	offers := []Offer{
		testOffer("scrapesite.com", SourceScrape, 450, 4, true),
		testOffer("booking.com", SourceOfficial, 450, 4, true),
	}
	best := bestOffer(offers)
	if best == nil || best.Source != SourceOfficial {
		t.Fatalf("tie must go to the official source, got %+v", best)
	}
}

func TestBestOfferNilWhenNothingAvailable(t *testing.T) {
	offers := []Offer{
		testOffer("booking.com", SourceOfficial, 450, 4, false),
	}
	if best := bestOffer(offers); best != nil {
		t.Fatalf("expected nil best offer, got %+v", best)
	}
}
