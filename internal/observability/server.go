package observability

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// MetricsServer exposes Registry on /metrics.
type MetricsServer struct {
	addr string

	runMutex sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

func NewMetricsServer(addr string) *MetricsServer {
	return &MetricsServer{addr: addr}
}

func (m *MetricsServer) getLogEntry() *log.Entry {
	return log.WithField("object", "MetricsServer")
}

func (m *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	return mux
}

// Addr returns the bound address once started.
func (m *MetricsServer) Addr() string {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *MetricsServer) Start(ctx context.Context) error {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()
	if m.addr == "" || m.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", m.addr)
	if err != nil {
		return errors.Wrap(err, "listen metrics")
	}
	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.done = make(chan struct{})

	go func(server *http.Server, done chan struct{}) {
		defer close(done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.getLogEntry().WithError(err).Error("metrics server failed")
		}
	}(m.server, m.done)

	m.getLogEntry().WithField("addr", listener.Addr().String()).Info("metrics server started")
	return nil
}

func (m *MetricsServer) Stop(ctx context.Context) error {
	m.runMutex.Lock()
	server, done := m.server, m.done
	m.server, m.listener = nil, nil
	m.runMutex.Unlock()
	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown metrics")
	}
	<-done
	return nil
}
