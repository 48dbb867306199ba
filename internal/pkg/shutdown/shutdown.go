// Package shutdown provides graceful shutdown for posterforge services.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"posterforge/internal/pkg/logger"
)

// Manager runs registered cleanup handlers when a shutdown signal arrives.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	handlers []Handler
	mu       sync.Mutex
	done     chan struct{}
}

// Handler is a named cleanup step.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// NewManager creates a shutdown manager with a total cleanup timeout.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		log:     log,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup handler. Handlers run in reverse registration
// order on shutdown.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}

// Wait blocks until SIGINT/SIGTERM/SIGHUP, then runs cleanup.
func (m *Manager) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigChan
	m.log.Info("shutdown signal received", "signal", sig.String())

	m.Shutdown()
}

// Shutdown runs all cleanup handlers LIFO under the manager's timeout.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())

	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		start := time.Now()
		if err := h.Cleanup(ctx); err != nil {
			m.log.Error("shutdown handler failed",
				"name", h.Name,
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		} else {
			m.log.Debug("shutdown handler completed",
				"name", h.Name,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
		if ctx.Err() != nil {
			m.log.Warn("shutdown timeout exceeded, skipping remaining handlers")
			break
		}
	}

	close(m.done)
}

// Done returns a channel closed when shutdown has completed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
