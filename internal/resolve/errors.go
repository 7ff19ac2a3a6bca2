package resolve

import (
	"context"
	"errors"
)

// Provider failure taxonomy. Providers wrap these sentinels so the resolver
// can classify failures with errors.Is without depending on concrete
// provider types.
var (
	// ErrUnsupportedCity: no destination mapping for the queried city.
	ErrUnsupportedCity = errors.New("unsupported city")
	// ErrNoMatch: upstream reachable but no hotel matched the query.
	ErrNoMatch = errors.New("no matching hotel")
	// ErrQuotaExceeded: upstream signaled a request-quota limit.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrTimeout: the provider did not produce a result within its budget.
	ErrTimeout = errors.New("provider timeout")
	// ErrParse: a price element was found but could not be interpreted.
	ErrParse = errors.New("price parse failure")
	// ErrBlocked: anti-bot defenses were detected.
	ErrBlocked = errors.New("blocked by anti-bot defenses")
	// ErrUpstream: any other upstream failure.
	ErrUpstream = errors.New("upstream failure")
)

// transient reports whether a provider failure could plausibly succeed on an
// immediate retry. Resolutions where every failure is transient are not
// cached, so a retry shortly after has a chance.
func transient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUpstream) ||
		errors.Is(err, context.DeadlineExceeded)
}
