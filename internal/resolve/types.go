package resolve

import (
	"context"
	"time"

	"github.com/dercryptomuslim/umrahcheck-api/internal/models"
	"github.com/shopspring/decimal"
)

// Source identifies which kind of upstream produced an offer.
type Source string

const (
	SourceOfficial Source = "official"
	SourceScrape   Source = "scrape"
)

// DataSource is the provenance of a resolution as seen by the caller.
type DataSource string

const (
	DataSourceOfficial DataSource = "official"
	DataSourceScrape   DataSource = "scrape"
	DataSourceCache    DataSource = "cache"
	DataSourceNone     DataSource = "none"
)

// Offer is a single priced result from one provider call. Immutable after
// construction; TotalPrice is always PricePerNight multiplied by the stay
// length of the query that produced it.
type Offer struct {
	Platform      string           `json:"platform"`
	PricePerNight decimal.Decimal  `json:"price_per_night"`
	TotalPrice    decimal.Decimal  `json:"total_price"`
	Currency      string           `json:"currency"`
	Availability  bool             `json:"availability"`
	URL           string           `json:"url"`
	Source        Source           `json:"source"`
	ReviewScore   *decimal.Decimal `json:"review_score,omitempty"`
	FetchedAt     time.Time        `json:"fetched_at"`
}

// ResolutionResult is the outcome of one price resolution. Offers keeps
// arrival order; BestOffer, when set, is the deterministic minimum of the
// available offers (see bestOffer). Absence of a price is signaled with a
// nil BestOffer and DataSourceNone, never with an error.
type ResolutionResult struct {
	Query          models.PriceQuery `json:"query"`
	Offers         []Offer           `json:"offers"`
	BestOffer      *Offer            `json:"best_offer,omitempty"`
	DataSource     DataSource        `json:"data_source"`
	ResolvedAt     time.Time         `json:"resolved_at"`
	CacheExpiresAt time.Time         `json:"cache_expires_at"`
}

// Provider is a single upstream price source. Fetch honors ctx exactly and
// never retries internally; retry and fallback policy belong to the
// Resolver. Domain is the upstream host the rate limiter keys permits on.
type Provider interface {
	Fetch(ctx context.Context, q *models.PriceQuery) (Offer, error)
	Name() string
	Domain() string
}
