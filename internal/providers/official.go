package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/dercryptomuslim/umrahcheck-api/internal/models"
	"github.com/dercryptomuslim/umrahcheck-api/internal/resolve"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	officialDomain  = "apidojo-booking-v1.p.rapidapi.com"
	officialBaseURL = "https://" + officialDomain

	// minimum Jaro-Winkler similarity for a partial hotel-name match
	matchThreshold = 0.75
)

// defaultDestIDs are the booking.com destination ids for the cities the
// service supports out of the box. Additional mappings come from config.
var defaultDestIDs = map[string]int{
	"makkah":  -3096527,
	"mecca":   -3096527,
	"medina":  -3098025,
	"madinah": -3098025,
	"jeddah":  -3097367,
	"riyadh":  -3098530,
}

// OfficialProvider queries the booking.com apidojo API on RapidAPI. It is
// the authoritative, quota-limited primary source.
type OfficialProvider struct {
	client  *resty.Client
	destIDs map[string]int
}

func NewOfficialProvider(apiKey string, extraCities map[string]int) *OfficialProvider {
	client := resty.New().
		SetBaseURL(officialBaseURL).
		SetHeader("x-rapidapi-host", officialDomain).
		SetHeader("x-rapidapi-key", apiKey)

	destIDs := make(map[string]int, len(defaultDestIDs)+len(extraCities))
	for city, id := range defaultDestIDs {
		destIDs[city] = id
	}
	for city, id := range extraCities {
		destIDs[strings.ToLower(strings.TrimSpace(city))] = id
	}
	return &OfficialProvider{client: client, destIDs: destIDs}
}

func (p *OfficialProvider) Name() string   { return "booking-api" }
func (p *OfficialProvider) Domain() string { return officialDomain }

// Close releases the provider's pooled connections.
func (p *OfficialProvider) Close() { p.client.GetClient().CloseIdleConnections() }

type apiAmount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

type apiHotel struct {
	HotelName      string  `json:"hotel_name"`
	HotelID        int64   `json:"hotel_id"`
	ReviewScore    float64 `json:"review_score"`
	AvailableRooms int     `json:"available_rooms"`
	PriceBreakdown struct {
		GrossAmountPerNight apiAmount `json:"gross_amount_per_night"`
		AllInclusiveAmount  apiAmount `json:"all_inclusive_amount"`
	} `json:"composite_price_breakdown"`
}

type propertiesResponse struct {
	Result []apiHotel `json:"result"`
}

// Fetch issues one properties/list lookup for the query's city and matches
// the returned hotel list against the queried hotel name. It never retries.
func (p *OfficialProvider) Fetch(ctx context.Context, q *models.PriceQuery) (resolve.Offer, error) {
	destID, ok := p.destIDs[q.City]
	if !ok {
		return resolve.Offer{}, fmt.Errorf("no destination id for %q: %w", q.City, resolve.ErrUnsupportedCity)
	}

	params := map[string]string{
		"offset":         "0",
		"arrival_date":   q.Checkin.Format("2006-01-02"),
		"departure_date": q.Checkout.Format("2006-01-02"),
		"guest_qty":      strconv.Itoa(q.Adults),
		"dest_ids":       strconv.Itoa(destID),
		"room_qty":       strconv.Itoa(q.Rooms),
		"search_type":    "city",
		"languagecode":   "en-us",
		"currency_code":  q.Currency,
		"order_by":       "popularity",
	}
	if q.Children > 0 {
		params["children_qty"] = strconv.Itoa(q.Children)
	}

	var out propertiesResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get("/properties/list")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return resolve.Offer{}, fmt.Errorf("properties/list: %w", resolve.ErrTimeout)
		}
		return resolve.Offer{}, fmt.Errorf("properties/list: %v: %w", err, resolve.ErrUpstream)
	}
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return resolve.Offer{}, fmt.Errorf("properties/list: %w", resolve.ErrQuotaExceeded)
	case resp.StatusCode() != http.StatusOK:
		return resolve.Offer{}, fmt.Errorf("properties/list returned %d: %w", resp.StatusCode(), resolve.ErrUpstream)
	}

	match, ok := matchHotel(q.HotelName, out.Result)
	if !ok {
		return resolve.Offer{}, fmt.Errorf("no hotel close to %q among %d results: %w", q.HotelName, len(out.Result), resolve.ErrNoMatch)
	}

	gross := match.PriceBreakdown.GrossAmountPerNight
	if gross.Value <= 0 {
		return resolve.Offer{}, fmt.Errorf("hotel %q has no nightly price: %w", match.HotelName, resolve.ErrParse)
	}
	// A provider must never silently hand back a mismatched currency.
	if cur := strings.ToUpper(gross.Currency); cur != "" && cur != q.Currency {
		return resolve.Offer{}, fmt.Errorf("upstream priced in %s, requested %s: %w", cur, q.Currency, resolve.ErrParse)
	}

	perNight := decimal.NewFromFloat(gross.Value)
	review := decimal.NewFromFloat(match.ReviewScore)
	return resolve.Offer{
		Platform:      "booking.com",
		PricePerNight: perNight,
		TotalPrice:    perNight.Mul(decimal.NewFromInt(int64(q.Nights()))),
		Currency:      q.Currency,
		Availability:  match.AvailableRooms > 0,
		URL:           hotelURL(match.HotelName),
		Source:        resolve.SourceOfficial,
		ReviewScore:   &review,
		FetchedAt:     time.Now(),
	}, nil
}

// matchHotel picks the best candidate for name: an exact case-insensitive
// match wins outright; otherwise the highest Jaro-Winkler similarity above
// the threshold, ties broken by review score then lower nightly price.
func matchHotel(name string, hotels []apiHotel) (apiHotel, bool) {
	candidates := make([]apiHotel, len(hotels))
	copy(candidates, hotels)
	// stable order for deterministic tie-breaks regardless of API ordering
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ReviewScore != candidates[j].ReviewScore {
			return candidates[i].ReviewScore > candidates[j].ReviewScore
		}
		return candidates[i].PriceBreakdown.GrossAmountPerNight.Value < candidates[j].PriceBreakdown.GrossAmountPerNight.Value
	})

	for _, h := range candidates {
		if strings.EqualFold(strings.TrimSpace(h.HotelName), name) {
			return h, true
		}
	}

	bestScore := 0.0
	var best apiHotel
	found := false
	for _, h := range candidates {
		score := matchr.JaroWinkler(strings.ToLower(h.HotelName), name, false)
		if score > bestScore {
			bestScore = score
			best = h
			found = true
		}
	}
	if !found || bestScore < matchThreshold {
		return apiHotel{}, false
	}
	return best, true
}

func hotelURL(hotelName string) string {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(hotelName)), " ", "-")
	return fmt.Sprintf("https://www.booking.com/hotel/sa/%s.html", slug)
}
