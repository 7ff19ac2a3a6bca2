package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dercryptomuslim/umrahcheck-api/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Port:               "8080",
		PrimaryEnabled:     true,
		ScrapeEnabled:      true,
		CacheTTL:           time.Minute,
		PrimaryTimeout:     time.Second,
		ScrapeTimeout:      time.Second,
		OverallDeadline:    2 * time.Second,
		RateLimitPerDomain: 2,
		RapidAPIKey:        "test-key",
		ScrapeLocale:       "de",
	}
	cfg.HTTP.RateLimitRPS = 100
	cfg.HTTP.RateLimitBurst = 100
	cfg.HTTP.RequestTimeout = time.Second
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWiresAllComponents(t *testing.T) {
	a := New(testConfig(), testLogger())
	defer a.Close()

	if a.Router == nil || a.Resolver == nil || a.Cache == nil || a.Limiter == nil || a.Metrics == nil {
		t.Fatal("incomplete app wiring")
	}

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestCloseReleasesProviders(t *testing.T) {
	a := New(testConfig(), testLogger())

	// official client plus one per scrape platform
	if got := len(a.closers); got != 4 {
		t.Fatalf("expected 4 provider teardowns, got %d", got)
	}
	a.Close()
	a.Close() // repeated teardown must be harmless
}
