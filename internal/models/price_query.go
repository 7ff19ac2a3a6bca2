package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SupportedCurrencies are the currencies a caller may request a price in.
var SupportedCurrencies = map[string]bool{
	"EUR": true,
	"USD": true,
	"SAR": true,
	"GBP": true,
	"AED": true,
}

const dateLayout = "2006-01-02"

// PriceQuery is a normalized hotel price request. It is canonicalized at
// construction time and never mutated afterwards, so two queries that differ
// only in incidental formatting produce the same cache key.
type PriceQuery struct {
	HotelName string    `json:"hotel_name"`
	City      string    `json:"city"`
	Checkin   time.Time `json:"checkin"`
	Checkout  time.Time `json:"checkout"`
	Adults    int       `json:"adults"`
	Children  int       `json:"children"`
	Rooms     int       `json:"rooms"`
	Currency  string    `json:"currency"`
}

// NewPriceQuery builds a PriceQuery from raw request parameters. Occupancy
// and currency fall back to the usual defaults (2 adults, 0 children, 1 room,
// EUR) when left empty.
func NewPriceQuery(hotel, city, checkin, checkout, adults, children, rooms, currency string) (*PriceQuery, error) {
	if strings.TrimSpace(hotel) == "" || strings.TrimSpace(city) == "" {
		return nil, errors.New("hotel and city are required")
	}
	if checkin == "" || checkout == "" {
		return nil, errors.New("checkin and checkout are required")
	}

	in, err := time.Parse(dateLayout, checkin)
	if err != nil {
		return nil, fmt.Errorf("invalid checkin date %q", checkin)
	}
	out, err := time.Parse(dateLayout, checkout)
	if err != nil {
		return nil, fmt.Errorf("invalid checkout date %q", checkout)
	}

	adultsN, err := intOrDefault(adults, 2)
	if err != nil {
		return nil, errors.New("invalid adults")
	}
	childrenN, err := intOrDefault(children, 0)
	if err != nil {
		return nil, errors.New("invalid children")
	}
	roomsN, err := intOrDefault(rooms, 1)
	if err != nil {
		return nil, errors.New("invalid rooms")
	}

	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "" {
		cur = "EUR"
	}

	q := &PriceQuery{
		HotelName: canonicalName(hotel),
		City:      canonicalName(city),
		Checkin:   in,
		Checkout:  out,
		Adults:    adultsN,
		Children:  childrenN,
		Rooms:     roomsN,
		Currency:  cur,
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *PriceQuery) validate() error {
	var errs []string
	if q.Nights() < 1 {
		errs = append(errs, "checkout must be after checkin")
	}
	if q.Adults < 1 || q.Adults > 30 {
		errs = append(errs, "invalid or excessive adults")
	}
	if q.Children < 0 || q.Children > 30 {
		errs = append(errs, "invalid children")
	}
	if q.Rooms < 1 || q.Rooms > 30 {
		errs = append(errs, "invalid or excessive rooms")
	}
	if !SupportedCurrencies[q.Currency] {
		errs = append(errs, fmt.Sprintf("unsupported currency %q", q.Currency))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, ", "))
	}
	return nil
}

// Nights is the stay length in whole nights.
func (q *PriceQuery) Nights() int {
	return int(q.Checkout.Sub(q.Checkin).Hours() / 24)
}

// CacheKey returns the canonical identity of the query. Every field
// participates, so queries for the same hotel with different dates or
// occupancy never collide.
func (q *PriceQuery) CacheKey() string {
	return strings.Join([]string{
		q.HotelName,
		q.City,
		q.Checkin.Format(dateLayout),
		q.Checkout.Format(dateLayout),
		strconv.Itoa(q.Adults),
		strconv.Itoa(q.Children),
		strconv.Itoa(q.Rooms),
		q.Currency,
	}, "|")
}

// canonicalName trims, lowercases and collapses inner whitespace.
func canonicalName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func intOrDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
