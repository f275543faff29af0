package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// ShutdownHook is one step of the teardown sequence. Lower priorities run
// first, so inbound surfaces (health server, workers) can stop before the
// stores they depend on are closed.
type ShutdownHook struct {
	Name     string
	Priority int
	Run      func(ctx context.Context) error
}

// ShutdownConfig tunes the shutdown handler. The zero value is not usable;
// pass nil to get defaults (30s budget, SIGTERM and SIGINT).
type ShutdownConfig struct {
	Timeout time.Duration
	Signals []os.Signal
}

func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
	}
}

// ShutdownHandler waits for a signal or a manual trigger, then runs the
// registered hooks in priority order under a shared deadline.
type ShutdownHandler struct {
	timeout time.Duration
	signals []os.Signal

	mu    sync.Mutex
	hooks []ShutdownHook

	trigger     chan struct{}
	done        chan struct{}
	triggerOnce sync.Once
	startOnce   sync.Once
}

func NewShutdownHandler(cfg *ShutdownConfig) *ShutdownHandler {
	if cfg == nil {
		cfg = DefaultShutdownConfig()
	}
	return &ShutdownHandler{
		timeout: cfg.Timeout,
		signals: cfg.Signals,
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *ShutdownHandler) AddHook(h ShutdownHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

// Start arms the signal listener. Safe to call more than once.
func (s *ShutdownHandler) Start() {
	s.startOnce.Do(func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, s.signals...)

		go func() {
			select {
			case <-sigCh:
			case <-s.trigger:
			}
			signal.Stop(sigCh)
			s.runHooks()
		}()
	})
}

// Shutdown triggers teardown without a signal.
func (s *ShutdownHandler) Shutdown() {
	s.triggerOnce.Do(func() { close(s.trigger) })
}

// Wait blocks until every hook has run.
func (s *ShutdownHandler) Wait() { <-s.done }

// WaitWithTimeout reports whether teardown finished within d.
func (s *ShutdownHandler) WaitWithTimeout(d time.Duration) bool {
	select {
	case <-s.done:
		return true
	case <-time.After(d):
		return false
	}
}

// Done closes when teardown is complete.
func (s *ShutdownHandler) Done() <-chan struct{} { return s.done }

// ShutdownCh closes when teardown has been requested.
func (s *ShutdownHandler) ShutdownCh() <-chan struct{} { return s.trigger }

func (s *ShutdownHandler) runHooks() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	hooks := make([]ShutdownHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	// Stable sort keeps registration order within a priority band.
	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Priority < hooks[j].Priority })

	for _, h := range hooks {
		if err := h.Run(ctx); err != nil {
			log.Printf("shutdown hook %s: %v", h.Name, err)
		}
	}

	close(s.done)
}

// Hook constructors for the resources a weave process owns. Priorities:
// inbound surfaces stop in the 0-30 band, observability flushes in the 80s,
// stores close in the 90s once nothing is writing to them.

func HTTPServerShutdownHook(name string, stop func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: name, Priority: 10, Run: stop}
}

func TemporalWorkerShutdownHook(stop func()) ShutdownHook {
	return ShutdownHook{
		Name:     "temporal-worker",
		Priority: 20,
		Run: func(context.Context) error {
			stop()
			return nil
		},
	}
}

func TracingShutdownHook(flush func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "tracing", Priority: 80, Run: flush}
}

func MetricsShutdownHook(flush func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "metrics", Priority: 85, Run: flush}
}

func GraphStoreShutdownHook(close func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "graph-store", Priority: 90, Run: close}
}

func VectorStoreShutdownHook(close func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "vector-store", Priority: 90, Run: close}
}

func UsageStoreShutdownHook(close func() error) ShutdownHook {
	return ShutdownHook{
		Name:     "usage-store",
		Priority: 90,
		Run:      func(context.Context) error { return close() },
	}
}

// AuditLoggerShutdownHook runs last so the audit log captures the rest of
// the teardown.
func AuditLoggerShutdownHook(close func() error) ShutdownHook {
	return ShutdownHook{
		Name:     "audit-logger",
		Priority: 95,
		Run:      func(context.Context) error { return close() },
	}
}

// GracefulServer bundles the health endpoints with the shutdown sequence:
// readiness flips to false the moment teardown starts, and the health
// listener itself is the first thing to stop.
type GracefulServer struct {
	Health   *HealthServer
	Shutdown *ShutdownHandler
}

func NewGracefulServer(healthCfg *HealthConfig, shutdownCfg *ShutdownConfig) *GracefulServer {
	g := &GracefulServer{
		Health:   NewHealthServer(healthCfg),
		Shutdown: NewShutdownHandler(shutdownCfg),
	}

	g.Shutdown.AddHook(ShutdownHook{
		Name:     "health-server",
		Priority: 5,
		Run: func(context.Context) error {
			g.Health.Shutdown()
			return nil
		},
	})
	go func() {
		<-g.Shutdown.ShutdownCh()
		g.Health.SetReady(false)
	}()

	return g
}

// Start arms the shutdown listener, serves health endpoints on addr, and
// marks the process ready.
func (g *GracefulServer) Start(addr string) error {
	g.Shutdown.Start()
	go g.Health.ListenAndServe(addr)
	g.Health.SetReady(true)
	return nil
}

func (g *GracefulServer) Wait() { g.Shutdown.Wait() }

func (g *GracefulServer) AddHook(h ShutdownHook) { g.Shutdown.AddHook(h) }
