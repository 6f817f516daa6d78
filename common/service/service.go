// Package service provides service primitives.
package service

import (
	"sync"

	"github.com/nicolaslara/dao-contracts/common/logging"
)

// CleanupAble provides a Cleanup method.
type CleanupAble interface {
	// Cleanup performs the service specific post-termination cleanup.
	Cleanup()
}

// BackgroundService is a service that runs in the background.
type BackgroundService interface {
	// Name returns the service name.
	Name() string

	// Start starts the service.
	Start() error

	// Stop halts the service.
	Stop()

	// Quit returns a channel that will be closed when the service terminates.
	Quit() <-chan struct{}

	// Cleanup performs the service specific post-termination cleanup.
	Cleanup()
}

// BaseBackgroundService is a base implementation of BackgroundService.
type BaseBackgroundService struct {
	Logger *logging.Logger

	name        string
	stopOnce    sync.Once
	quitChannel chan struct{}
}

// Name returns the service name.
func (b *BaseBackgroundService) Name() string {
	return b.name
}

// Start starts the service.
func (b *BaseBackgroundService) Start() error {
	return nil
}

// Stop halts the service. It is safe to call Stop more than once.
func (b *BaseBackgroundService) Stop() {
	b.stopOnce.Do(func() {
		close(b.quitChannel)
	})
}

// Quit returns a channel that will be closed when the service terminates.
func (b *BaseBackgroundService) Quit() <-chan struct{} {
	return b.quitChannel
}

// Cleanup performs the service specific post-termination cleanup.
func (b *BaseBackgroundService) Cleanup() {
}

// NewBaseBackgroundService creates a new base background service.
func NewBaseBackgroundService(name string) *BaseBackgroundService {
	return &BaseBackgroundService{
		Logger:      logging.GetLogger(name),
		name:        name,
		quitChannel: make(chan struct{}),
	}
}

type cleanupOnlyService struct {
	BaseBackgroundService

	svc CleanupAble
}

func (s *cleanupOnlyService) Cleanup() {
	s.svc.Cleanup()
}

// NewCleanupOnlyService wraps a service that only needs cleanup into a
// BackgroundService that terminates once Stop is called.
func NewCleanupOnlyService(svc CleanupAble, name string) BackgroundService {
	return &cleanupOnlyService{
		BaseBackgroundService: BaseBackgroundService{
			Logger:      logging.GetLogger(name),
			name:        name,
			quitChannel: make(chan struct{}),
		},
		svc: svc,
	}
}
