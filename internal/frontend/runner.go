package frontend

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"dnsrouter/internal/config"
	"dnsrouter/internal/healthstore"
	"dnsrouter/internal/respcache"
	"dnsrouter/internal/routeengine"
	"dnsrouter/internal/ruletable"
	"dnsrouter/internal/transport/dohtransport"
	"dnsrouter/internal/transport/udptransport"
	"dnsrouter/internal/upstream"
)

// Components are the long-lived pieces of a running router that an
// operator surface (internal/adminapi) needs read access to. They're
// handed to Run's onReady callback once built, before the listeners
// start accepting traffic.
type Components struct {
	Stats    *DNSStats
	Cache    *respcache.Cache
	Registry *upstream.Registry
}

// Runner orchestrates router startup, configuration, and shutdown.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a new runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run loads the rule table, builds the upstream registry and route
// engine, and starts the UDP and (if enabled) TCP front ends.
//
// Startup sequence:
//  1. Load the rule table the query state machine will walk
//  2. Build the upstream registry, optionally backed by a durable
//     health store so cooldowns survive a restart
//  3. Check that every upstream tag a rule can reach is actually
//     registered, failing startup on a mismatch instead of letting a
//     typo'd tag surface as a per-query SERVFAIL later
//  4. Wire registry + response cache into a routeengine.Engine
//  5. Invoke onReady (if non-nil) with the built Components, so a
//     caller can wire them into an admin HTTP surface
//  6. Start UDP (always) and TCP (if configured) listeners
//  7. Wait for SIGINT/SIGTERM, then drain in-flight queries
func (r *Runner) Run(cfg *config.Config, onReady func(*Components)) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	table, err := config.LoadRuleTable(cfg.Rules.Path)
	if err != nil {
		return fmt.Errorf("runner: load rule table: %w", err)
	}

	registry, store, err := r.buildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("runner: build upstream registry: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	if err := validateUpstreamClosure(table, registry); err != nil {
		return fmt.Errorf("runner: %w", err)
	}

	cache := respcache.New(cfg.Cache.MaxEntries)
	engine := routeengine.NewEngine(table, registry, cache)

	maxConc := r.calculateMaxConcurrency(cfg)
	stats := NewDNSStats()
	h := &QueryHandler{Logger: r.logger, Engine: engine, Timeout: 4 * time.Second, Stats: stats}
	limiter := NewRateLimiterFromEnv()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	r.logStartup(cfg, addr, maxConc)

	if onReady != nil {
		onReady(&Components{Stats: stats, Cache: cache, Registry: registry})
	}

	udp := &UDPServer{Logger: r.logger, Handler: h, Limiter: limiter, WorkersPerSocket: maxConc}
	var tcp *TCPServer
	if cfg.Server.EnableTCP {
		tcp = &TCPServer{Logger: r.logger, Handler: h}
	}

	errCh := make(chan error, 2)
	go func() { errCh <- udp.Run(ctx, addr) }()
	if tcp != nil {
		go func() { errCh <- tcp.Run(ctx, addr) }()
	}

	select {
	case <-ctx.Done():
		// shutdown requested via signal
	case err := <-errCh:
		if err != nil {
			cancelRun()
			return err
		}
	}

	stopTimeout := 5 * time.Second
	_ = udp.Stop(stopTimeout)
	if tcp != nil {
		_ = tcp.Stop(stopTimeout)
	}
	return nil
}

// validateUpstreamClosure checks that every upstream tag a Query
// action in table can reach is registered in registry, so a rule file
// referencing an undeclared tag fails at startup instead of only on
// the query that happens to walk that branch.
func validateUpstreamClosure(table *ruletable.Table, registry *upstream.Registry) error {
	registered := make(map[string]struct{}, len(registry.Tags()))
	for _, tag := range registry.Tags() {
		registered[tag] = struct{}{}
	}

	var missing []string
	for _, tag := range table.UsedUpstreams() {
		if _, ok := registered[tag]; !ok {
			missing = append(missing, tag)
		}
	}
	if len(missing) > 0 {
		return &ruletable.UnknownUpstreamsError{Tags: missing}
	}
	return nil
}

// buildRegistry wires every configured upstream entry into a
// upstream.Registry, picking udptransport or dohtransport per entry
// protocol. If cfg.HealthStore.Path is set, cooldowns persist there
// across restarts.
func (r *Runner) buildRegistry(cfg *config.Config) (*upstream.Registry, *healthstore.Store, error) {
	var (
		store *healthstore.Store
		err   error
	)
	if cfg.HealthStore.Path != "" {
		store, err = healthstore.Open(cfg.HealthStore.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open health store: %w", err)
		}
	}

	var registry *upstream.Registry
	if store != nil {
		registry, err = upstream.NewRegistryWithHealthStore(store)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
	} else {
		registry = upstream.NewRegistry()
	}

	for _, up := range cfg.Upstreams {
		transports := make([]upstream.Transport, 0, len(up.Servers))
		for _, addr := range up.Servers {
			t, err := buildTransport(up.Protocol, addr)
			if err != nil {
				if store != nil {
					store.Close()
				}
				return nil, nil, fmt.Errorf("upstream %q: %w", up.Tag, err)
			}
			transports = append(transports, t)
		}
		registry.RegisterMode(up.Tag, dispatchMode(up.Dispatch), transports...)
	}

	return registry, store, nil
}

func buildTransport(protocol, addr string) (upstream.Transport, error) {
	switch protocol {
	case "doh":
		return dohtransport.New(addr), nil
	default:
		t, err := udptransport.New(addr)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

func dispatchMode(name string) upstream.DispatchMode {
	if name == "hedge" {
		return upstream.Hedge
	}
	return upstream.RoundRobin
}

// calculateMaxConcurrency picks a worker-pool size scaled to the host,
// capped so a single host can't spin up an unbounded goroutine count.
func (r *Runner) calculateMaxConcurrency(cfg *config.Config) int {
	procs := runtime.GOMAXPROCS(0)
	if procs <= 0 {
		procs = 1
	}
	maxConc := procs * 256
	if maxConc > 2048 {
		maxConc = 2048
	}
	if maxConc < 1 {
		maxConc = 1
	}
	_ = cfg
	return maxConc
}

// logStartup logs router configuration at startup.
func (r *Runner) logStartup(cfg *config.Config, addr string, maxConc int) {
	if r.logger == nil {
		return
	}
	tags := make([]string, 0, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		tags = append(tags, u.Tag)
	}
	r.logger.Info(
		"dns router listening",
		"addr", addr,
		"udp", true,
		"tcp", cfg.Server.EnableTCP,
		"upstream_tags", tags,
		"max_concurrency", maxConc,
		"rate_limits", RateLimitsStartupLog(),
	)
}
