package solana

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// maxFailures is how many failures inside the cooldown window exclude an
	// endpoint from selection.
	maxFailures = 3

	// failureCooldown is how long a tripped endpoint stays excluded.
	failureCooldown = 60 * time.Second
)

// Endpoint is one upstream RPC provider in a pool.
type Endpoint struct {
	URL    string
	Client RPCClient
}

// endpointState tracks the health of one endpoint. Updates are simple
// counter increments and timestamp writes; the mutex on the pool is the only
// coordination required.
type endpointState struct {
	endpoint    *Endpoint
	failures    int
	lastFailure time.Time
}

// EndpointPool selects among candidate RPC endpoints based on recorded
// failures. Two independent pools exist in practice: one for signature
// lookups and one for batched transaction-detail lookups, because not every
// provider supports batched requests.
//
// The pool is owned by the Fetcher that constructed it rather than living in
// package-level state, so adapters stay independently testable.
type EndpointPool struct {
	name   string
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	states []*endpointState
}

// NewEndpointPool builds a pool over the given URLs, constructing one client
// per endpoint with newClient.
func NewEndpointPool(name string, urls []string, newClient func(url string) RPCClient, logger *slog.Logger) *EndpointPool {
	states := make([]*endpointState, 0, len(urls))
	for _, url := range urls {
		states = append(states, &endpointState{
			endpoint: &Endpoint{URL: url, Client: newClient(url)},
		})
	}
	return &EndpointPool{
		name:   name,
		logger: logger,
		now:    time.Now,
		states: states,
	}
}

// Name identifies the pool in logs and metrics.
func (p *EndpointPool) Name() string { return p.name }

// Len returns the number of configured endpoints.
func (p *EndpointPool) Len() int { return len(p.states) }

// Pick returns the healthiest endpoint: among endpoints not in cooldown, the
// one with the fewest recorded failures. If every endpoint is cooling down
// the full list is considered, since a possibly rate-limited endpoint still
// beats refusing to try at all.
func (p *EndpointPool) Pick() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.states) == 0 {
		return nil
	}

	now := p.now()
	var best *endpointState
	for _, s := range p.states {
		coolingDown := s.failures >= maxFailures && now.Sub(s.lastFailure) < failureCooldown
		if coolingDown {
			continue
		}
		if best == nil || s.failures < best.failures {
			best = s
		}
	}
	if best == nil {
		best = p.states[0]
		for _, s := range p.states[1:] {
			if s.failures < best.failures {
				best = s
			}
		}
	}
	return best.endpoint
}

// ReportFailure records one failure against the endpoint with the given URL.
func (p *EndpointPool) ReportFailure(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.states {
		if s.endpoint.URL == url {
			s.failures++
			s.lastFailure = p.now()
			p.logger.Warn("rpc endpoint failure reported",
				"pool", p.name,
				"endpoint", url,
				"failures", s.failures,
			)
			return
		}
	}
}

// Failures returns the recorded failure count for an endpoint URL.
func (p *EndpointPool) Failures(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.states {
		if s.endpoint.URL == url {
			return s.failures
		}
	}
	return 0
}
