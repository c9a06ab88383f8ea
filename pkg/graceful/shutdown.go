// Package graceful coordinates ordered shutdown of the service's
// long-lived resources.
package graceful

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledger-service/ledger_service/pkg/logger"
)

// Closer releases one resource.
type Closer func(ctx context.Context) error

type registration struct {
	name  string
	close Closer
}

// Manager runs registered closers in reverse registration order on
// shutdown, so dependents close before their dependencies.
type Manager struct {
	timeout time.Duration
	closers []registration
	logger  *logger.Logger
}

// NewManager creates a shutdown manager with the given per-shutdown
// timeout.
func NewManager(timeout time.Duration, log *logger.Logger) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{timeout: timeout, logger: log}
}

// Register adds a named closer. Registration order is startup order.
func (m *Manager) Register(name string, close Closer) {
	m.closers = append(m.closers, registration{name: name, close: close})
}

// Wait blocks until SIGINT or SIGTERM.
func (m *Manager) Wait() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	m.logger.Info("shutdown signal received", "signal", sig.String())
	return sig
}

// Shutdown closes everything in reverse order, continuing past failures.
func (m *Manager) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.closers) - 1; i >= 0; i-- {
		reg := m.closers[i]
		if err := reg.close(ctx); err != nil {
			m.logger.Error("shutdown step failed", "component", reg.name, "error", err)
			continue
		}
		m.logger.Info("shutdown step complete", "component", reg.name)
	}
}
