package proxy

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateProxy is returned when a proxy already pulls the same
	// vhost/app/stream tuple.
	ErrDuplicateProxy = errors.New("proxy already exists for stream")

	// ErrProxyNotFound is returned for an unknown proxy key.
	ErrProxyNotFound = errors.New("proxy not found")
)

// Registry owns all live pull proxies, keyed by an opaque identifier handed
// back at creation. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	proxies map[string]*Proxy
	opt     Options
	deps    Deps
	extra   []Option
}

// NewRegistry builds a registry whose proxies share the given configuration
// snapshot and collaborators. Any extra options (such as WithClock) are
// forwarded to every proxy it creates.
func NewRegistry(opt Options, deps Deps, extra ...Option) *Registry {
	return &Registry{
		proxies: make(map[string]*Proxy),
		opt:     opt,
		deps:    deps,
		extra:   extra,
	}
}

// Create registers a proxy for the tuple and returns its key. The proxy is
// not started; the caller installs callbacks and invokes Play. retry, when
// non-nil, overrides the configured retry budget.
func (g *Registry) Create(tuple MediaTuple, retry *int) (string, *Proxy, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, p := range g.proxies {
		if p.Tuple() == tuple {
			return "", nil, ErrDuplicateProxy
		}
	}

	opt := g.opt
	if retry != nil {
		opt.RetryCount = *retry
	}
	p := NewProxy(tuple, opt, g.deps, g.extra...)
	key := uuid.NewString()
	g.proxies[key] = p
	return key, p, nil
}

// Get returns the proxy for key.
func (g *Registry) Get(key string) (*Proxy, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.proxies[key]
	return p, ok
}

// Remove deregisters and closes the proxy for key. The close runs outside
// the registry lock so close callbacks may call back in.
func (g *Registry) Remove(key string) bool {
	g.mu.Lock()
	p, ok := g.proxies[key]
	if ok {
		delete(g.proxies, key)
	}
	g.mu.Unlock()

	if ok {
		p.Close()
	}
	return ok
}

// List returns a snapshot of all proxies by key.
func (g *Registry) List() map[string]*Proxy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]*Proxy, len(g.proxies))
	for k, p := range g.proxies {
		out[k] = p
	}
	return out
}

// Len returns the number of registered proxies.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.proxies)
}

// ActiveCount returns the number of proxies currently connected to their
// upstream. Used for metrics.
func (g *Registry) ActiveCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, p := range g.proxies {
		if p.Status() == StatusConnected {
			n++
		}
	}
	return n
}

// CloseAll tears down every proxy, used at server shutdown.
func (g *Registry) CloseAll() {
	g.mu.Lock()
	all := make([]*Proxy, 0, len(g.proxies))
	for _, p := range g.proxies {
		all = append(all, p)
	}
	g.proxies = make(map[string]*Proxy)
	g.mu.Unlock()

	for _, p := range all {
		p.Close()
	}
}
