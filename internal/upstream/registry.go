// Package upstream manages the set of configured upstream resolvers a
// rule table's Query actions can dispatch to, tracking per-upstream
// health so a down resolver is skipped rather than retried on every
// query.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"dnsrouter/internal/dnsmsg"
)

// recoveryDuration is how long an upstream stays in cooldown after a
// failure before it's tried again.
const recoveryDuration = time.Hour

// Transport sends one query to a concrete upstream and returns its
// response. udptransport and dohtransport are the two shipped
// implementations.
type Transport interface {
	Query(ctx context.Context, msg dnsmsg.Packet) (dnsmsg.Packet, error)
}

// DispatchMode selects how a tag bound to more than one Transport
// spreads queries across them.
type DispatchMode int

const (
	// RoundRobin cycles through the tag's transports one at a time.
	RoundRobin DispatchMode = iota
	// Hedge fires the query at every transport under the tag
	// concurrently and takes the first success, cancelling the rest.
	Hedge
)

// HealthStore persists upstream failure bookkeeping across restarts,
// so a resolver that was failing when the process stopped isn't
// immediately retried the moment it starts back up. Satisfied by
// healthstore.Store; Registry never imports that package, keeping the
// dependency one-directional the same way routeengine.Dispatcher is
// satisfied by Registry itself without routeengine importing upstream.
type HealthStore interface {
	MarkFailed(tag string, at time.Time, lastErr string) error
	MarkHealthy(tag string) error
	LoadFailures() (map[string]time.Time, error)
}

// ErrUnknownUpstream is returned when a rule references a tag that was
// never registered.
var ErrUnknownUpstream = errors.New("upstream: unknown tag")

// ErrInCooldown is returned when an upstream's most recent failure is
// still within recoveryDuration.
var ErrInCooldown = errors.New("upstream: in cooldown after recent failure")

type entry struct {
	tag        string
	transports []Transport
	dispatch   DispatchMode
	rrCounter  atomic.Uint64
}

// Registry holds every configured upstream, keyed by its rule-table
// tag, plus the failure timestamp driving its cooldown window.
type Registry struct {
	healthMu  sync.Mutex
	failedAt  map[string]time.Time
	upstreams map[string]*entry
	store     HealthStore
}

// NewRegistry builds an empty Registry; call Register for each
// configured upstream before serving traffic.
func NewRegistry() *Registry {
	return &Registry{
		failedAt:  map[string]time.Time{},
		upstreams: map[string]*entry{},
	}
}

// NewRegistryWithHealthStore builds a Registry that persists failure
// bookkeeping to store and preloads any cooldowns still open from a
// previous run.
func NewRegistryWithHealthStore(store HealthStore) (*Registry, error) {
	r := NewRegistry()
	r.store = store
	failures, err := store.LoadFailures()
	if err != nil {
		return nil, fmt.Errorf("upstream: load persisted failures: %w", err)
	}
	for tag, at := range failures {
		r.failedAt[tag] = at
	}
	return r, nil
}

// Register binds a tag to one or more transports dispatched
// round-robin. Calling Register again for the same tag replaces its
// transport set.
func (r *Registry) Register(tag string, transports ...Transport) {
	r.RegisterMode(tag, RoundRobin, transports...)
}

// RegisterMode binds a tag to one or more transports dispatched
// according to mode.
func (r *Registry) RegisterMode(tag string, mode DispatchMode, transports ...Transport) {
	r.upstreams[tag] = &entry{tag: tag, transports: transports, dispatch: mode}
}

// Query implements routeengine.Dispatcher: it looks up tag, checks its
// cooldown, and forwards the query. A successful query clears any
// cooldown; a failing one starts it, measured from that failure.
func (r *Registry) Query(ctx context.Context, tag string, q dnsmsg.Packet) (dnsmsg.Packet, error) {
	e, ok := r.upstreams[tag]
	if !ok {
		return dnsmsg.Packet{}, fmt.Errorf("%w: %q", ErrUnknownUpstream, tag)
	}
	if !r.canTry(tag) {
		return dnsmsg.Packet{}, fmt.Errorf("%w: %q", ErrInCooldown, tag)
	}
	if len(e.transports) == 0 {
		return dnsmsg.Packet{}, fmt.Errorf("upstream: tag %q has no transports registered", tag)
	}

	var (
		resp dnsmsg.Packet
		err  error
	)
	if e.dispatch == Hedge && len(e.transports) > 1 {
		resp, err = r.hedge(ctx, e, q)
	} else {
		resp, err = r.roundRobin(ctx, e, q)
	}
	if err != nil {
		r.markFailed(tag)
		return dnsmsg.Packet{}, err
	}
	r.markHealthy(tag)
	return resp, nil
}

// roundRobin sends the query to the next transport in e's rotation.
func (r *Registry) roundRobin(ctx context.Context, e *entry, q dnsmsg.Packet) (dnsmsg.Packet, error) {
	n := e.rrCounter.Add(1) - 1
	t := e.transports[n%uint64(len(e.transports))]
	return t.Query(ctx, q)
}

// hedge fires q at every transport under e concurrently and returns
// the first success, cancelling the rest. If none succeed, the first
// error observed is returned.
func (r *Registry) hedge(ctx context.Context, e *entry, q dnsmsg.Packet) (dnsmsg.Packet, error) {
	hctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(hctx)

	var (
		once   sync.Once
		winner dnsmsg.Packet
		won    bool
	)
	for _, t := range e.transports {
		t := t
		g.Go(func() error {
			resp, err := t.Query(gctx, q)
			if err != nil {
				return err
			}
			once.Do(func() {
				winner = resp
				won = true
				cancel()
			})
			return nil
		})
	}

	err := g.Wait()
	if won {
		return winner, nil
	}
	return dnsmsg.Packet{}, err
}

// UpstreamStatus is a point-in-time health snapshot for one registered tag.
type UpstreamStatus struct {
	Tag        string
	Healthy    bool
	Transports int
}

// Statuses returns a health snapshot for every registered upstream tag,
// sorted by tag.
func (r *Registry) Statuses() []UpstreamStatus {
	out := make([]UpstreamStatus, 0, len(r.upstreams))
	for tag, e := range r.upstreams {
		out = append(out, UpstreamStatus{
			Tag:        tag,
			Healthy:    r.canTry(tag),
			Transports: len(e.transports),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Tags returns every registered upstream tag, sorted.
func (r *Registry) Tags() []string {
	out := make([]string, 0, len(r.upstreams))
	for tag := range r.upstreams {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// canTry reports whether tag is healthy or has recovered from its last
// failure.
func (r *Registry) canTry(tag string) bool {
	r.healthMu.Lock()
	defer r.healthMu.Unlock()

	failedAt, ok := r.failedAt[tag]
	if !ok {
		return true
	}
	if time.Since(failedAt) >= recoveryDuration {
		delete(r.failedAt, tag)
		return true
	}
	return false
}

// markFailed records the current time as tag's failure timestamp.
// Subsequent failures before recovery don't push the timestamp
// forward, so cooldown always measures from the first failure in a
// run, not the most recent one.
func (r *Registry) markFailed(tag string) {
	r.healthMu.Lock()
	_, already := r.failedAt[tag]
	if !already {
		r.failedAt[tag] = time.Now()
	}
	r.healthMu.Unlock()

	if !already && r.store != nil {
		_ = r.store.MarkFailed(tag, time.Now(), "")
	}
}

// markHealthy clears any cooldown state for tag.
func (r *Registry) markHealthy(tag string) {
	r.healthMu.Lock()
	_, hadCooldown := r.failedAt[tag]
	delete(r.failedAt, tag)
	r.healthMu.Unlock()

	if hadCooldown && r.store != nil {
		_ = r.store.MarkHealthy(tag)
	}
}
