package resolve

import (
	"context"
	"sync"
	"time"

	"github.com/dercryptomuslim/umrahcheck-api/internal/obs"
)

// DomainLimiter caps the number of concurrent in-flight requests per
// upstream domain, process-wide. Permits are plain counting-semaphore
// slots; there is no queueing priority, the first ready waiter wins.
type DomainLimiter struct {
	mu        sync.Mutex
	perDomain int
	permits   map[string]chan struct{}
	metrics   *obs.Metrics
}

func NewDomainLimiter(perDomain int, m *obs.Metrics) *DomainLimiter {
	if perDomain < 1 {
		perDomain = 1
	}
	return &DomainLimiter{perDomain: perDomain, permits: make(map[string]chan struct{}), metrics: m}
}

// Acquire blocks until a permit for domain is available or ctx is done. On
// success it returns a release func that is safe to call more than once; a
// caller whose ctx expires while waiting never holds a permit, so a
// timed-out request cannot starve the domain.
func (l *DomainLimiter) Acquire(ctx context.Context, domain string) (func(), error) {
	sem := l.sem(domain)
	start := time.Now()
	select {
	case sem <- struct{}{}:
		if l.metrics != nil {
			l.metrics.ObservePermitWait(domain, time.Since(start).Seconds())
		}
		var once sync.Once
		return func() {
			once.Do(func() { <-sem })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *DomainLimiter) sem(domain string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.permits[domain]
	if !ok {
		s = make(chan struct{}, l.perDomain)
		l.permits[domain] = s
	}
	return s
}
