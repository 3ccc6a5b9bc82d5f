package apply

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
)

const (
	defaultRateLimitRPS = 20
	minRateLimitRPS     = 1
	maxRateLimitRPS     = 100
)

// providerLimiters holds one token-bucket limiter per provider kind, shared
// by every worker targeting that provider during a run.
type providerLimiters struct {
	mu       sync.Mutex
	rps      map[domain.ProviderKind]int
	limiters map[domain.ProviderKind]*rate.Limiter
}

func newProviderLimiters(rps map[domain.ProviderKind]int) *providerLimiters {
	return &providerLimiters{
		rps:      rps,
		limiters: make(map[domain.ProviderKind]*rate.Limiter),
	}
}

func (p *providerLimiters) wait(ctx context.Context, kind domain.ProviderKind) error {
	return p.limiter(kind).Wait(ctx)
}

func (p *providerLimiters) limiter(kind domain.ProviderKind) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[kind]; ok {
		return l
	}
	rps := defaultRateLimitRPS
	if configured, ok := p.rps[kind]; ok && configured >= minRateLimitRPS && configured <= maxRateLimitRPS {
		rps = configured
	}
	l := rate.NewLimiter(rate.Limit(rps), rps)
	p.limiters[kind] = l
	return l
}
