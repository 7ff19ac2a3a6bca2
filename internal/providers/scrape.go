package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/dercryptomuslim/umrahcheck-api/internal/models"
	"github.com/dercryptomuslim/umrahcheck-api/internal/resolve"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// ScrapePlatform describes one booking platform: how to address a hotel
// page, which selectors may carry the price, and which body markers mean
// the platform's anti-bot defenses kicked in. The slug map covers the
// hotels the service knows a direct page for; everything else goes through
// the platform's search page.
type ScrapePlatform struct {
	Name           string
	Host           string
	Slugs          map[string]string
	PageURL        func(slug string, q *models.PriceQuery, locale string) string
	SearchURL      func(q *models.PriceQuery, locale string) string
	PriceSelectors []string
	BlockMarkers   []string
}

// BookingPlatform targets booking.com hotel pages. A non-empty baseURL
// overrides the public host (used by tests).
func BookingPlatform(baseURL string) ScrapePlatform {
	if baseURL == "" {
		baseURL = "https://www.booking.com"
	}
	return ScrapePlatform{
		Name: "booking.com",
		Host: "www.booking.com",
		Slugs: map[string]string{
			"swissôtel al maqam makkah":      "hotel/sa/swissotel-makkah",
			"conrad makkah":                  "hotel/sa/conrad-makkah",
			"hilton makkah convention hotel": "hotel/sa/hilton-makkah-convention",
		},
		PageURL: func(slug string, q *models.PriceQuery, locale string) string {
			params := url.Values{}
			params.Set("checkin", q.Checkin.Format("2006-01-02"))
			params.Set("checkout", q.Checkout.Format("2006-01-02"))
			params.Set("group_adults", strconv.Itoa(q.Adults))
			params.Set("group_children", strconv.Itoa(q.Children))
			params.Set("no_rooms", strconv.Itoa(q.Rooms))
			params.Set("selected_currency", q.Currency)
			params.Set("lang", locale)
			return fmt.Sprintf("%s/%s.%s.html?%s", baseURL, slug, locale, params.Encode())
		},
		SearchURL: func(q *models.PriceQuery, locale string) string {
			params := url.Values{}
			params.Set("ss", q.HotelName+" "+q.City)
			params.Set("checkin", q.Checkin.Format("2006-01-02"))
			params.Set("checkout", q.Checkout.Format("2006-01-02"))
			params.Set("group_adults", strconv.Itoa(q.Adults))
			params.Set("group_children", strconv.Itoa(q.Children))
			params.Set("no_rooms", strconv.Itoa(q.Rooms))
			params.Set("selected_currency", q.Currency)
			return baseURL + "/search.html?" + params.Encode()
		},
		PriceSelectors: []string{
			`[data-testid="price-and-discounted-price"]`,
			`[data-testid="price-summary"]`,
			`.bui-price-display__value`,
			`.prco-valign-middle-helper`,
		},
		BlockMarkers: []string{"px-captcha", "g-recaptcha", "Pardon Our Interruption"},
	}
}

// HalalBookingPlatform targets halalbooking.com hotel pages.
func HalalBookingPlatform(baseURL string) ScrapePlatform {
	if baseURL == "" {
		baseURL = "https://www.halalbooking.com"
	}
	return ScrapePlatform{
		Name: "halalbooking.com",
		Host: "www.halalbooking.com",
		Slugs: map[string]string{
			"swissôtel al maqam makkah":      "swissotel-al-maqam-makkah",
			"conrad makkah":                  "conrad-makkah",
			"hilton makkah convention hotel": "hilton-makkah-convention-hotel",
		},
		PageURL: func(slug string, q *models.PriceQuery, locale string) string {
			params := url.Values{}
			params.Set("checkin", q.Checkin.Format("2006-01-02"))
			params.Set("checkout", q.Checkout.Format("2006-01-02"))
			params.Set("adults", strconv.Itoa(q.Adults))
			params.Set("children", strconv.Itoa(q.Children))
			params.Set("rooms", strconv.Itoa(q.Rooms))
			params.Set("currency", q.Currency)
			params.Set("lang", locale)
			return fmt.Sprintf("%s/hotels/%s?%s", baseURL, slug, params.Encode())
		},
		SearchURL: func(q *models.PriceQuery, locale string) string {
			params := url.Values{}
			params.Set("q", q.HotelName+" "+q.City)
			params.Set("checkin", q.Checkin.Format("2006-01-02"))
			params.Set("checkout", q.Checkout.Format("2006-01-02"))
			params.Set("adults", strconv.Itoa(q.Adults))
			params.Set("currency", q.Currency)
			return baseURL + "/search?" + params.Encode()
		},
		PriceSelectors: []string{
			`[data-testid="room-price"]`,
			`.room-price__amount`,
			`.price`,
		},
		BlockMarkers: []string{"g-recaptcha", "cf-challenge"},
	}
}

// HotelsPlatform targets hotels.com. The platform has no stable per-hotel
// page URLs, so every lookup goes through its search results.
func HotelsPlatform(baseURL string) ScrapePlatform {
	if baseURL == "" {
		baseURL = "https://www.hotels.com"
	}
	return ScrapePlatform{
		Name: "hotels.com",
		Host: "www.hotels.com",
		SearchURL: func(q *models.PriceQuery, locale string) string {
			params := url.Values{}
			params.Set("q-destination", q.HotelName+" "+q.City)
			params.Set("q-check-in", q.Checkin.Format("2006-01-02"))
			params.Set("q-check-out", q.Checkout.Format("2006-01-02"))
			params.Set("q-rooms", strconv.Itoa(q.Rooms))
			return baseURL + "/search.do?" + params.Encode()
		},
		PriceSelectors: []string{
			`[data-testid="property-listing"] [data-testid="price"]`,
			`[data-testid="price"]`,
			`.price-current`,
		},
		BlockMarkers: []string{"px-captcha", "g-recaptcha"},
	}
}

// ScrapeProvider fetches a live booking-platform page and extracts a price
// offer from it. One instance per platform; slow, higher failure rate,
// subject to anti-bot defenses.
type ScrapeProvider struct {
	platform ScrapePlatform
	client   *resty.Client
	locale   string
}

// browser identity for scrape requests; platforms serve degraded pages to
// unknown clients
const scrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

func NewScrapeProvider(platform ScrapePlatform, locale string) *ScrapeProvider {
	if locale == "" {
		locale = "de"
	}
	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", scrapeUserAgent)
	client.SetHeader("accept-language", acceptLanguage(locale))
	return &ScrapeProvider{platform: platform, client: client, locale: locale}
}

func (p *ScrapeProvider) Name() string   { return p.platform.Name }
func (p *ScrapeProvider) Domain() string { return p.platform.Host }

// Close releases the provider's pooled connections.
func (p *ScrapeProvider) Close() { p.client.GetClient().CloseIdleConnections() }

// Fetch loads the hotel page (or the platform's search page when no slug
// mapping exists) and walks the selector strategies in priority order; the
// first one yielding a plausible numeric price wins.
func (p *ScrapeProvider) Fetch(ctx context.Context, q *models.PriceQuery) (resolve.Offer, error) {
	var pageURL string
	if slug, ok := p.platform.Slugs[q.HotelName]; ok {
		pageURL = p.platform.PageURL(slug, q, p.locale)
	} else {
		pageURL = p.platform.SearchURL(q, p.locale)
	}

	resp, err := p.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return resolve.Offer{}, fmt.Errorf("loading %s: %w", p.platform.Name, resolve.ErrTimeout)
		}
		return resolve.Offer{}, fmt.Errorf("loading %s: %v: %w", p.platform.Name, err, resolve.ErrUpstream)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusTooManyRequests:
		return resolve.Offer{}, fmt.Errorf("%s returned %d: %w", p.platform.Name, resp.StatusCode(), resolve.ErrBlocked)
	default:
		return resolve.Offer{}, fmt.Errorf("%s returned %d: %w", p.platform.Name, resp.StatusCode(), resolve.ErrUpstream)
	}

	body := resp.Body()
	for _, marker := range p.platform.BlockMarkers {
		if bytes.Contains(body, []byte(marker)) {
			return resolve.Offer{}, fmt.Errorf("%s shows %q: %w", p.platform.Name, marker, resolve.ErrBlocked)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return resolve.Offer{}, fmt.Errorf("parsing %s page: %w", p.platform.Name, resolve.ErrParse)
	}

	var parseErr error
	for _, selector := range p.platform.PriceSelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text == "" {
			continue
		}
		amount, currency, perNight, err := ParsePriceText(text, q.Currency)
		if err != nil {
			parseErr = err
			continue
		}
		return p.buildOffer(q, pageURL, amount, currency, perNight)
	}
	if parseErr != nil {
		return resolve.Offer{}, fmt.Errorf("%s: %w", p.platform.Name, parseErr)
	}
	return resolve.Offer{}, fmt.Errorf("no price element on %s page: %w", p.platform.Name, resolve.ErrNoMatch)
}

func (p *ScrapeProvider) buildOffer(q *models.PriceQuery, pageURL string, amount decimal.Decimal, currency string, perNight bool) (resolve.Offer, error) {
	if currency != q.Currency {
		return resolve.Offer{}, fmt.Errorf("%s priced in %s, requested %s: %w", p.platform.Name, currency, q.Currency, resolve.ErrParse)
	}

	nights := decimal.NewFromInt(int64(q.Nights()))
	var nightly, total decimal.Decimal
	if perNight {
		nightly = amount
		total = amount.Mul(nights)
	} else {
		total = amount
		nightly = amount.DivRound(nights, 2)
	}

	return resolve.Offer{
		Platform:      p.platform.Name,
		PricePerNight: nightly,
		TotalPrice:    total,
		Currency:      q.Currency,
		Availability:  true,
		URL:           pageURL,
		Source:        resolve.SourceScrape,
		FetchedAt:     time.Now(),
	}, nil
}

func acceptLanguage(locale string) string {
	if locale == "en" {
		return "en-US,en;q=0.9"
	}
	return fmt.Sprintf("%s-%s,%s;q=0.9,en;q=0.8", locale, strings.ToUpper(locale), locale)
}
