// Package connectivity carries the preference message protocol between
// the feed pipeline and whatever hosts the preference store.
//
// Services are plain functions, bytes in and bytes out. A service is
// either registered locally (same process, a function call) or routed to
// a remote endpoint through a transport factory:
//
//	router := connectivity.New()
//	router.RegisterTransport("http", connectivity.HTTPFactory())
//	bridge.RegisterConnectivity(router)              // local
//	router.SetRoute(connectivity.Route{
//		Service: "load_filters", Strategy: "http",
//		Endpoint: "http://127.0.0.1:8377/rpc/load_filters",
//	})
//
//	resp, err := router.Call(ctx, "load_filters", nil)
//
// Callers never know which side answered.
package connectivity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Handler is a transport-agnostic service function: bytes in, bytes out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory creates a Handler for a remote endpoint. The returned
// close function is called when the route is replaced or the router
// closes; it may be nil.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

// Route tells the router how to reach one service.
type Route struct {
	Service  string          `yaml:"service" json:"service"`
	Strategy string          `yaml:"strategy" json:"strategy"` // local | noop | <transport>
	Endpoint string          `yaml:"endpoint" json:"endpoint,omitempty"`
	Config   json.RawMessage `yaml:"-" json:"config,omitempty"`
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches service calls. Safe for concurrent use.
type Router struct {
	mu            sync.RWMutex
	localHandlers map[string]Handler
	remoteEntries map[string]remoteEntry
	routes        map[string]Route
	factories     map[string]TransportFactory
	middleware    HandlerMiddleware
	logger        *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware wraps every dispatched call.
func WithMiddleware(mws ...HandlerMiddleware) Option {
	return func(r *Router) { r.middleware = Chain(mws...) }
}

// New creates a Router with no services.
func New(opts ...Option) *Router {
	r := &Router{
		localHandlers: make(map[string]Handler),
		remoteEntries: make(map[string]remoteEntry),
		routes:        make(map[string]Route),
		factories:     make(map[string]TransportFactory),
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-process handler for a service.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.localHandlers[service] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a remote strategy ("http").
func (r *Router) RegisterTransport(strategy string, f TransportFactory) {
	r.mu.Lock()
	r.factories[strategy] = f
	r.mu.Unlock()
}

// SetRoute installs or replaces the route of one service. Strategies
// "local" and "noop" need no factory; anything else must name a
// registered transport.
func (r *Router) SetRoute(rt Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entry remoteEntry
	switch rt.Strategy {
	case "", "local", "noop":
	default:
		f, ok := r.factories[rt.Strategy]
		if !ok {
			return &ErrNoFactory{Service: rt.Service, Strategy: rt.Strategy}
		}
		h, closeFn, err := f(rt.Endpoint, rt.Config)
		if err != nil {
			return &ErrFactoryFailed{Service: rt.Service, Strategy: rt.Strategy, Endpoint: rt.Endpoint, Cause: err}
		}
		entry = remoteEntry{handler: h, close: closeFn}
	}

	if old, ok := r.remoteEntries[rt.Service]; ok {
		if old.close != nil {
			old.close()
		}
		delete(r.remoteEntries, rt.Service)
	}
	if entry.handler != nil {
		r.remoteEntries[rt.Service] = entry
	}
	r.routes[rt.Service] = rt

	r.logger.Info("connectivity: route set",
		"service", rt.Service, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
	return nil
}

// Call dispatches a service call. Resolution order:
//  1. noop route: succeeds with an empty response.
//  2. remote route.
//  3. local handler.
//  4. ErrServiceNotFound.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remoteEntries[service]
	localH := r.localHandlers[service]
	rt, hasRoute := r.routes[service]
	mw := r.middleware
	r.mu.RUnlock()

	var h Handler
	switch {
	case hasRoute && rt.Strategy == "noop":
		r.logger.DebugContext(ctx, "routing noop", "service", service)
		return nil, nil
	case hasRemote:
		r.logger.DebugContext(ctx, "routing remote",
			"service", service, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
		h = entry.handler
	case localH != nil:
		r.logger.DebugContext(ctx, "routing local", "service", service)
		h = localH
	default:
		return nil, &ErrServiceNotFound{Service: service}
	}

	if mw != nil {
		h = mw(h)
	}
	return h(context.WithValue(ctx, serviceKey{}, service), payload)
}

type serviceKey struct{}

// ServiceFromContext returns the service a Call is dispatching, or "".
func ServiceFromContext(ctx context.Context) string {
	s, _ := ctx.Value(serviceKey{}).(string)
	return s
}

// Local returns the locally registered handler of a service, or nil.
func (r *Router) Local(service string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.localHandlers[service]
}

// Services lists every service with a local handler or a route, sorted.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.localHandlers)+len(r.routes))
	for s := range r.localHandlers {
		seen[s] = struct{}{}
	}
	for s := range r.routes {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Close shuts down all remote handlers.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.remoteEntries {
		if entry.close != nil {
			entry.close()
		}
	}
	r.remoteEntries = make(map[string]remoteEntry)
	r.routes = make(map[string]Route)
	return nil
}

// String is used in log lines.
func (rt Route) String() string {
	return fmt.Sprintf("%s→%s(%s)", rt.Service, rt.Strategy, rt.Endpoint)
}
