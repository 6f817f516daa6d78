// Package grpc implements common gRPC helpers: a CBOR codec, coded error
// propagation, a logging and metrics instrumented server and a client dialer.
package grpc

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/grpclog"
	"google.golang.org/grpc/keepalive"

	cmnBackoff "github.com/nicolaslara/dao-contracts/common/backoff"
	"github.com/nicolaslara/dao-contracts/common/logging"
	"github.com/nicolaslara/dao-contracts/common/service"
)

const (
	// CfgLogDebug enables verbose gRPC debug output.
	CfgLogDebug = "grpc.log.debug"

	maxRecvMsgSize = 16 * 1024 * 1024
	maxSendMsgSize = 16 * 1024 * 1024

	dialAttemptTimeout = 2 * time.Second
)

var (
	// Flags has the flags used by the gRPC server and client.
	Flags = flag.NewFlagSet("", flag.ContinueOnError)

	grpcMetricsOnce      sync.Once
	grpcGlobalLoggerOnce sync.Once

	grpcServerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dao_grpc_server_calls",
			Help: "Number of gRPC calls.",
		},
		[]string{"call"},
	)
	grpcServerLatency = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "dao_grpc_server_latency",
			Help: "gRPC call latency (seconds).",
		},
		[]string{"call"},
	)
	grpcClientCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dao_grpc_client_calls",
			Help: "Number of gRPC calls.",
		},
		[]string{"call"},
	)

	grpcCollectors = []prometheus.Collector{
		grpcServerCalls,
		grpcServerLatency,
		grpcClientCalls,
	}

	serverKeepAliveParams = keepalive.ServerParameters{
		MaxConnectionIdle: 600 * time.Second,
	}

	_ grpclog.LoggerV2          = (*grpcLogAdapter)(nil)
	_ service.BackgroundService = (*Server)(nil)
)

type grpcLogAdapter struct {
	logger    *logging.Logger
	reqLogger *logging.Logger

	reqSeq uint64

	verbosity int
	isDebug   bool
}

func (l *grpcLogAdapter) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *grpcLogAdapter) Infoln(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *grpcLogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *grpcLogAdapter) Warning(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *grpcLogAdapter) Warningln(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *grpcLogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *grpcLogAdapter) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *grpcLogAdapter) Errorln(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *grpcLogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *grpcLogAdapter) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}

func (l *grpcLogAdapter) Fatalln(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}

func (l *grpcLogAdapter) Fatalf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (l *grpcLogAdapter) V(level int) bool {
	return l.verbosity >= level
}

func (l *grpcLogAdapter) unaryLogger(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	seq := atomic.AddUint64(&l.reqSeq, 1)
	if l.isDebug {
		l.reqLogger.Debug("request",
			"method", info.FullMethod,
			"req_seq", seq,
			"req", req,
		)
	}

	grpcServerCalls.With(prometheus.Labels{"call": info.FullMethod}).Inc()

	start := time.Now()
	resp, err = handler(ctx, req)
	grpcServerLatency.With(prometheus.Labels{"call": info.FullMethod}).Observe(time.Since(start).Seconds())
	switch err {
	case nil:
		if l.isDebug {
			l.reqLogger.Debug("request succeeded",
				"method", info.FullMethod,
				"req_seq", seq,
			)
		}
	default:
		l.reqLogger.Debug("request failed",
			"method", info.FullMethod,
			"req_seq", seq,
			"err", err,
		)
	}

	return
}

func (l *grpcLogAdapter) unaryClientLogger(ctx context.Context,
	method string,
	req, rsp interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	seq := atomic.AddUint64(&l.reqSeq, 1)
	grpcClientCalls.With(prometheus.Labels{"call": method}).Inc()

	err := invoker(ctx, method, req, rsp, cc, opts...)
	if err != nil {
		l.reqLogger.Debug("request failed",
			"method", method,
			"req_seq", seq,
			"err", err,
		)
	}
	return err
}

func newGrpcLogAdapter(baseLogger *logging.Logger) *grpcLogAdapter {
	// Two extra levels of unwinding: this adapter and the grpclog wrappers.
	return &grpcLogAdapter{
		logger:    logging.GetLoggerEx("grpc", 2),
		reqLogger: baseLogger,
		verbosity: 2,
		isDebug:   logging.GetLevel() == logging.LevelDebug && viper.GetBool(CfgLogDebug),
	}
}

func initGlobals() {
	grpcMetricsOnce.Do(func() {
		prometheus.MustRegister(grpcCollectors...)
	})
	grpcGlobalLoggerOnce.Do(func() {
		grpclog.SetLoggerV2(newGrpcLogAdapter(logging.GetLogger("grpc")))
	})
}

// Server is a gRPC server service.
type Server struct {
	sync.Mutex
	*service.BaseBackgroundService

	listenerCfgs     []listenerConfig
	startedListeners []net.Listener
	server           *grpc.Server
	errCh            chan error
}

// ServerConfig holds the configuration used for creating a server.
type ServerConfig struct {
	// Name of the server being constructed.
	Name string
	// Port is the TCP port to listen on. Zero disables the TCP listener,
	// unless Path is also empty in which case an ephemeral port is used.
	Port uint16
	// Path is the path of the local unix socket. Empty disables it.
	Path string
	// CustomOptions is a list of extra options for the gRPC server.
	CustomOptions []grpc.ServerOption
}

type listenerConfig struct {
	network string
	address string
}

// Start starts the Server.
func (s *Server) Start() error {
	s.Lock()
	defer s.Unlock()

	if s.server == nil {
		return fmt.Errorf("grpc: server has already been stopped")
	}
	server := s.server

	s.Logger.Info("starting gRPC server")

	for _, v := range s.listenerCfgs {
		cfg := v

		ln, err := net.Listen(cfg.network, cfg.address)
		if err != nil {
			s.Logger.Error("error starting gRPC server",
				"err", err,
			)
			return err
		}
		s.Logger.Info("gRPC server started",
			"network", cfg.network,
			"address", ln.Addr().String(),
		)

		s.startedListeners = append(s.startedListeners, ln)

		go func() {
			if err := server.Serve(ln); err != nil {
				s.BaseBackgroundService.Stop()
				s.errCh <- err
			}
		}()
	}

	return nil
}

// Stop stops the Server.
func (s *Server) Stop() {
	s.Lock()
	defer s.Unlock()

	if s.server != nil {
		select {
		case err := <-s.errCh:
			if err != nil {
				s.Logger.Error("gRPC server terminated uncleanly",
					"err", err,
				)
			}
		default:
		}
		s.server.GracefulStop()
		s.server = nil
	}
	s.BaseBackgroundService.Stop()
}

// Cleanup cleans up after the Server.
func (s *Server) Cleanup() {
	s.Lock()
	defer s.Unlock()

	for _, v := range s.startedListeners {
		_ = v.Close()
	}
	s.startedListeners = nil
}

// Server returns the underlying gRPC server instance.
func (s *Server) Server() *grpc.Server {
	return s.server
}

// Addresses returns the addresses of all started listeners.
func (s *Server) Addresses() []net.Addr {
	s.Lock()
	defer s.Unlock()

	var addrs []net.Addr
	for _, ln := range s.startedListeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

// NewServer constructs a new gRPC server service listening on a TCP port,
// a local socket path, or both.
func NewServer(config *ServerConfig) (*Server, error) {
	var listenerParams []listenerConfig
	if config.Path != "" {
		// Remove any stale socket file first.
		_ = os.Remove(config.Path)

		listenerParams = append(listenerParams, listenerConfig{
			network: "unix",
			address: config.Path,
		})
	}
	if config.Port != 0 || config.Path == "" {
		listenerParams = append(listenerParams, listenerConfig{
			network: "tcp",
			address: ":" + strconv.Itoa(int(config.Port)),
		})
	}

	initGlobals()

	svc := service.NewBaseBackgroundService(fmt.Sprintf("grpc/%s", config.Name))
	logAdapter := newGrpcLogAdapter(svc.Logger)

	sOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(logAdapter.unaryLogger, serverUnaryErrorMapper),
		grpc.MaxRecvMsgSize(maxRecvMsgSize),
		grpc.MaxSendMsgSize(maxSendMsgSize),
		grpc.KeepaliveParams(serverKeepAliveParams),
		grpc.ForceServerCodec(&CBORCodec{}),
	}
	sOpts = append(sOpts, config.CustomOptions...)

	return &Server{
		BaseBackgroundService: svc,
		listenerCfgs:          listenerParams,
		server:                grpc.NewServer(sOpts...),
		errCh:                 make(chan error, len(listenerParams)),
	}, nil
}

// Dial creates a client connection to the given target.
//
// The connection is established lazily; use DialContext to block until the
// node is reachable.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	return grpc.Dial(target, dialOptions(opts)...)
}

// DialContext creates a client connection to the given target, retrying
// with exponential backoff until it succeeds, ctx is canceled or maxElapsed
// passes. A zero maxElapsed retries until ctx is done.
func DialContext(ctx context.Context, target string, maxElapsed time.Duration, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	logger := logging.GetLogger("grpc/client")
	dialOpts := append(dialOptions(opts), grpc.WithBlock())

	var conn *grpc.ClientConn
	dial := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, dialAttemptTimeout)
		defer cancel()

		var err error
		conn, err = grpc.DialContext(attemptCtx, target, dialOpts...)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			logger.Debug("failed to connect, retrying",
				"target", target,
				"err", err,
			)
			return err
		}
		return nil
	}

	bo := backoff.WithContext(cmnBackoff.NewBoundedBackOff(maxElapsed), ctx)
	if err := backoff.Retry(dial, bo); err != nil {
		return nil, fmt.Errorf("grpc: failed to connect to '%s': %w", target, err)
	}
	return conn, nil
}

func dialOptions(extra []grpc.DialOption) []grpc.DialOption {
	initGlobals()

	logAdapter := newGrpcLogAdapter(logging.GetLogger("grpc/client"))
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(&CBORCodec{})),
		grpc.WithChainUnaryInterceptor(logAdapter.unaryClientLogger, clientUnaryErrorMapper),
	}
	return append(opts, extra...)
}

func init() {
	Flags.Bool(CfgLogDebug, false, "gRPC request/responses in debug logs (very verbose)")
	_ = Flags.MarkHidden(CfgLogDebug)

	_ = viper.BindPFlags(Flags)
}
