package providers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dercryptomuslim/umrahcheck-api/internal/resolve"
	"github.com/shopspring/decimal"
)

var priceNumberRe = regexp.MustCompile(`[0-9][0-9.\s,]*`)

// perNightMarkers are the phrases booking platforms use when a displayed
// amount is a nightly rate rather than the stay total.
var perNightMarkers = []string{"per night", "pro nacht", "/night", "/ nacht"}

// ParsePriceText extracts an amount and currency from a scraped price
// string. Numbers follow the continental format the target platforms render
// ("1.234,56"): dots and spaces are thousand separators, the comma is the
// decimal mark. The currency falls back to fallbackCurrency when the text
// carries no recognizable symbol. perNight reports whether the text marks
// the amount as a nightly rate.
func ParsePriceText(text, fallbackCurrency string) (amount decimal.Decimal, currency string, perNight bool, err error) {
	normalized := strings.TrimSpace(strings.ReplaceAll(text, " ", " "))
	raw := priceNumberRe.FindString(normalized)
	if raw == "" {
		return decimal.Zero, "", false, fmt.Errorf("no number in %q: %w", text, resolve.ErrParse)
	}

	raw = strings.NewReplacer(".", "", " ", "", ",", ".").Replace(strings.TrimSpace(raw))
	amount, err = decimal.NewFromString(strings.TrimSuffix(raw, "."))
	if err != nil {
		return decimal.Zero, "", false, fmt.Errorf("unparseable amount %q: %w", raw, resolve.ErrParse)
	}
	if amount.Sign() <= 0 {
		return decimal.Zero, "", false, fmt.Errorf("non-positive amount in %q: %w", text, resolve.ErrParse)
	}

	currency = detectCurrency(normalized, fallbackCurrency)

	lower := strings.ToLower(normalized)
	for _, marker := range perNightMarkers {
		if strings.Contains(lower, marker) {
			perNight = true
			break
		}
	}
	return amount, currency, perNight, nil
}

func detectCurrency(text, fallback string) string {
	switch {
	case strings.Contains(text, "€") || strings.Contains(text, "EUR"):
		return "EUR"
	case strings.Contains(text, "SAR") || strings.Contains(text, "ر.س"):
		return "SAR"
	case strings.Contains(text, "£") || strings.Contains(text, "GBP"):
		return "GBP"
	case strings.Contains(text, "$") || strings.Contains(text, "USD"):
		return "USD"
	default:
		return fallback
	}
}
