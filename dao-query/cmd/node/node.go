// Package node implements the dao-query node.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/nicolaslara/dao-contracts/common/grpc"
	"github.com/nicolaslara/dao-contracts/common/logging"
	"github.com/nicolaslara/dao-contracts/config"
	cmdCommon "github.com/nicolaslara/dao-contracts/dao-query/cmd/common"
	"github.com/nicolaslara/dao-contracts/dao-query/cmd/common/background"
	cmdGrpc "github.com/nicolaslara/dao-contracts/dao-query/cmd/common/grpc"
	"github.com/nicolaslara/dao-contracts/dao-query/cmd/common/metrics"
	cmdQuery "github.com/nicolaslara/dao-contracts/dao-query/cmd/query"
	"github.com/nicolaslara/dao-contracts/proposal/api"
	"github.com/nicolaslara/dao-contracts/proposal/query"
	"github.com/nicolaslara/dao-contracts/proposal/state"
)

var (
	// Flags has the flags used by the node.
	Flags = flag.NewFlagSet("", flag.ContinueOnError)

	nodeCmd = &cobra.Command{
		Use:   "node",
		Short: "serve proposal queries over gRPC",
		Run:   Run,
	}
)

// Run runs the dao-query node.
func Run(cmd *cobra.Command, args []string) {
	node, err := NewNode()
	if err != nil {
		os.Exit(1)
	}
	defer node.Cleanup()

	node.Wait()
}

// Node is the dao-query node service.
type Node struct {
	svcMgr  *background.ServiceManager
	grpcSrv *grpc.Server

	Store   *state.Store
	Querier *query.Querier
}

// Cleanup cleans up after the node has terminated.
func (n *Node) Cleanup() {
	metrics.UpGauge.Set(0)
	n.svcMgr.Cleanup()
}

// Stop gracefully terminates the node.
func (n *Node) Stop() {
	n.svcMgr.Stop()
}

// Wait waits for the node to gracefully terminate. Callers MUST
// call Cleanup() after wait returns.
func (n *Node) Wait() {
	n.svcMgr.Wait()
}

// GRPCServer returns the node's gRPC server.
func (n *Node) GRPCServer() *grpc.Server {
	return n.grpcSrv
}

// NewNode initializes the common environment and launches the node.
func NewNode() (*Node, error) {
	if err := cmdCommon.Init(); err != nil {
		// Common stuff like logger not correctly initialized. Print to stderr.
		_, _ = fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	dataDir := cmdCommon.DataDir()
	if dataDir == "" {
		cmdCommon.Logger().Error("data directory not configured")
		return nil, errors.New("data directory not configured")
	}

	srv, err := cmdGrpc.NewServer()
	if err != nil {
		cmdCommon.Logger().Error("failed to initialize gRPC server",
			"err", err,
		)
		return nil, err
	}
	return newNode(dataDir, &config.GlobalConfig, srv)
}

func newNode(dataDir string, cfg *config.Config, srv *grpc.Server) (*Node, error) {
	logger := logging.GetLogger("node")

	node := &Node{
		svcMgr:  background.NewServiceManager(logger),
		grpcSrv: srv,
	}

	var startOk bool
	defer func() {
		if !startOk {
			node.svcMgr.Stop()
			node.svcMgr.Cleanup()
		}
	}()

	// Initialize the proposal state.
	var err error
	if node.Store, err = state.New(dataDir); err != nil {
		logger.Error("failed to open proposal state",
			"err", err,
		)
		return nil, err
	}
	node.svcMgr.RegisterCleanupOnly(node.Store, "proposal state")

	block, err := node.Store.Block(context.Background())
	switch {
	case err == nil:
		logger.Info("loaded proposal state",
			"height", block.Height,
			"chain_id", block.ChainID,
		)
	case errors.Is(err, api.ErrNotFound):
		logger.Warn("proposal state is empty, import a genesis first")
	default:
		logger.Error("failed to load proposal state",
			"err", err,
		)
		return nil, err
	}

	// Initialize the metrics server.
	metricsSvc, err := metrics.New(&cfg.Metrics)
	if err != nil {
		logger.Error("failed to initialize metrics server",
			"err", err,
		)
		return nil, err
	}
	node.svcMgr.Register(metricsSvc)

	// Register the query service on the gRPC server.
	node.Querier = query.New(node.Store, cmdQuery.LimitsFromConfig(&cfg.Query))
	api.RegisterService(node.grpcSrv.Server(), node.Querier)
	node.svcMgr.Register(node.grpcSrv)

	if err = metricsSvc.Start(); err != nil {
		logger.Error("failed to start metrics server",
			"err", err,
		)
		return nil, err
	}
	if err = node.grpcSrv.Start(); err != nil {
		logger.Error("failed to start gRPC server",
			"err", err,
		)
		return nil, err
	}

	metrics.UpGauge.Set(1)
	logger.Info("node started",
		"metrics_mode", cfg.Metrics.Mode,
	)

	startOk = true

	return node, nil
}

// Register registers the node sub-command.
func Register(parentCmd *cobra.Command) {
	nodeCmd.Flags().AddFlagSet(Flags)
	parentCmd.AddCommand(nodeCmd)
}

func init() {
	Flags.AddFlagSet(cmdGrpc.ServerFlags)
}
