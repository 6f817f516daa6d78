// Package background implements utilities for managing background
// services.
package background

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nicolaslara/dao-contracts/common/logging"
	"github.com/nicolaslara/dao-contracts/common/service"
)

// ServiceManager manages a group of background services.
type ServiceManager struct {
	logger *logging.Logger

	services []service.BackgroundService
	termCh   chan service.BackgroundService
	termSvc  service.BackgroundService
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Register registers a background service.
func (m *ServiceManager) Register(srv service.BackgroundService) {
	m.services = append(m.services, srv)
	go func() {
		<-srv.Quit()
		select {
		case m.termCh <- srv:
		default:
		}
	}()
}

// RegisterCleanupOnly registers a cleanup only background service.
func (m *ServiceManager) RegisterCleanupOnly(svc service.CleanupAble, name string) {
	m.services = append(m.services, service.NewCleanupOnlyService(svc, name))
}

// Wait waits for interruption via Stop, a signal or a registered service
// terminating, and then stops every other registered service.
func (m *ServiceManager) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case m.termSvc = <-m.termCh:
		m.logger.Info("background task terminated, propagating",
			"svc", m.termSvc.Name(),
		)
	case <-sigCh:
		m.logger.Info("user requested termination")
	case <-m.stopCh:
		m.logger.Info("programmatic termination requested")
	}

	for _, svc := range m.services {
		if svc != m.termSvc {
			m.logger.Debug("stopping service",
				"svc", svc.Name(),
			)
			svc.Stop()
		}
	}
}

// Stop stops all services, unblocking Wait.
func (m *ServiceManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// Cleanup cleans up after all registered services, in reverse
// registration order.
func (m *ServiceManager) Cleanup() {
	m.logger.Debug("terminating, beginning cleanup")

	for i := len(m.services) - 1; i >= 0; i-- {
		m.services[i].Cleanup()
	}

	m.logger.Debug("finished cleanup")
}

// NewServiceManager creates a new ServiceManager with the provided logger.
func NewServiceManager(logger *logging.Logger) *ServiceManager {
	return &ServiceManager{
		logger: logger,
		termCh: make(chan service.BackgroundService, 1),
		stopCh: make(chan struct{}),
	}
}
