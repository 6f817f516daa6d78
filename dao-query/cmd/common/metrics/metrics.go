// Package metrics implements a prometheus metrics service.
package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/nicolaslara/dao-contracts/common/service"
	"github.com/nicolaslara/dao-contracts/config"
)

const (
	// MetricUp is the gauge set to 1 while the node is serving.
	MetricUp = "dao_up"

	readHeaderTimeout = 5 * time.Second
)

var (
	// UpGauge reports whether the node is serving queries.
	UpGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricUp,
			Help: "Is the dao-query node serving queries.",
		},
	)

	metricsOnce sync.Once
)

func newStubService() (service.BackgroundService, error) {
	return service.NewBaseBackgroundService("metrics"), nil
}

type pullService struct {
	*service.BaseBackgroundService

	ln net.Listener
	s  *http.Server

	errCh chan error
}

func (s *pullService) Start() error {
	go func() {
		if err := s.s.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
		s.BaseBackgroundService.Stop()
	}()
	return nil
}

func (s *pullService) Stop() {
	if s.s != nil {
		select {
		case err := <-s.errCh:
			s.Logger.Error("metrics terminated uncleanly",
				"err", err,
			)
		default:
			_ = s.s.Close()
		}
		s.s = nil
	}
}

func (s *pullService) Cleanup() {
	if s.ln != nil {
		_ = s.ln.Close()
		s.ln = nil
	}
}

// Addr returns the address the metrics are served on.
func (s *pullService) Addr() net.Addr {
	return s.ln.Addr()
}

func newPullService(cfg *config.MetricsConfig) (*pullService, error) {
	svc := service.NewBaseBackgroundService("metrics")

	svc.Logger.Debug("metrics server params",
		"mode", config.MetricsModePull,
		"addr", cfg.Address,
	)

	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, err
	}

	return &pullService{
		BaseBackgroundService: svc,
		ln:                    ln,
		s:                     &http.Server{Handler: promhttp.Handler(), ReadHeaderTimeout: readHeaderTimeout},
		errCh:                 make(chan error, 1),
	}, nil
}

type pushService struct {
	*service.BaseBackgroundService

	pusher *push.Pusher

	addr     string
	jobName  string
	labels   map[string]string
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

func (s *pushService) Start() error {
	go s.worker()
	return nil
}

func (s *pushService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *pushService) worker() {
	defer s.BaseBackgroundService.Stop()

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
		}

		if err := s.pusher.Push(); err != nil {
			s.Logger.Warn("Push: failed",
				"err", err,
			)

			// A pusher that failed once keeps failing, re-create it.
			s.initPusher(true)
		}
	}
}

func (s *pushService) initPusher(isReinit bool) {
	if !isReinit {
		s.Logger.Debug("initializing metrics push service",
			"mode", config.MetricsModePush,
			"addr", s.addr,
			"job_name", s.jobName,
			"labels", s.labels,
			"push_interval", s.interval,
		)
	}

	pusher := push.New(s.addr, s.jobName)
	for k, v := range s.labels {
		pusher = pusher.Grouping(k, v)
	}
	s.pusher = pusher.Gatherer(prometheus.DefaultGatherer)
}

func newPushService(cfg *config.MetricsConfig) (*pushService, error) {
	if cfg.JobName == "" {
		return nil, fmt.Errorf("metrics: job_name required for push mode")
	}

	svc := &pushService{
		BaseBackgroundService: service.NewBaseBackgroundService("metrics"),
		addr:                  cfg.Address,
		jobName:               cfg.JobName,
		labels:                cfg.Labels,
		interval:              cfg.Interval,
		stopCh:                make(chan struct{}),
	}
	svc.initPusher(false)

	return svc, nil
}

// New constructs a new metrics service.
func New(cfg *config.MetricsConfig) (service.BackgroundService, error) {
	metricsOnce.Do(func() {
		prometheus.MustRegister(UpGauge)
	})

	switch mode := strings.ToLower(cfg.Mode); mode {
	case config.MetricsModeNone:
		return newStubService()
	case config.MetricsModePull:
		return newPullService(cfg)
	case config.MetricsModePush:
		return newPushService(cfg)
	default:
		return nil, fmt.Errorf("metrics: unsupported mode: '%v'", mode)
	}
}
