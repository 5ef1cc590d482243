package prometheus

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// defaultReadHeaderTimeout is the timeout for reading request headers.
	defaultReadHeaderTimeout = 10 * time.Second
)

// ErrExporterRunning is returned by Serve when the exporter is already serving.
var ErrExporterRunning = errors.New("metrics exporter already running")

// Exporter serves Prometheus metrics over HTTP.
type Exporter struct {
	addr     string
	registry *prometheus.Registry

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	stopped  bool
}

// NewExporter creates an exporter serving the callrelay metrics plus Go
// runtime and process collectors at addr.
func NewExporter(addr string) *Exporter {
	reg := prometheus.NewRegistry()
	reg.MustRegister(allMetrics...)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return NewExporterWithRegistry(addr, reg)
}

// NewExporterWithRegistry creates an exporter over a caller-owned registry.
func NewExporterWithRegistry(addr string, registry *prometheus.Registry) *Exporter {
	return &Exporter{
		addr:     addr,
		registry: registry,
	}
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns the /metrics handler for mounting on another mux.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve listens on the configured address and serves /metrics and /healthz.
// It blocks until Shutdown and then returns nil.
func (e *Exporter) Serve() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	if e.server != nil {
		e.mu.Unlock()
		return ErrExporterRunning
	}

	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	e.listener = ln
	srv := e.server
	e.mu.Unlock()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listener address once Serve has started, or the
// configured address before that.
func (e *Exporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener != nil {
		return e.listener.Addr().String()
	}
	return e.addr
}

// Shutdown gracefully stops the exporter. A later Serve returns immediately.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	srv := e.server
	e.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
