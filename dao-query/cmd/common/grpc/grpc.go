// Package grpc implements common gRPC command-line flags.
package grpc

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	cmnGrpc "github.com/nicolaslara/dao-contracts/common/grpc"
	"github.com/nicolaslara/dao-contracts/common/logging"
	"github.com/nicolaslara/dao-contracts/config"
)

const (
	// CfgServerPort configures the server port.
	CfgServerPort = "grpc.port"
	// CfgServerSocket configures the server unix socket path.
	CfgServerSocket = "grpc.socket"
	// CfgAddress configures the remote address.
	CfgAddress = "address"
	// CfgWait waits for the remote address to become available.
	CfgWait = "wait"
	// CfgWaitTimeout bounds how long to wait for the remote address.
	CfgWaitTimeout = "wait.timeout"

	defaultAddress = "127.0.0.1:9090"
)

var (
	// ServerFlags has the flags used by the gRPC server.
	ServerFlags = flag.NewFlagSet("", flag.ContinueOnError)
	// ClientFlags has the flags for a gRPC client.
	ClientFlags = flag.NewFlagSet("", flag.ContinueOnError)

	logger = logging.GetLogger("cmd/grpc")
)

// NewServer constructs a new gRPC server service using the global
// configuration, overridden by the server flags.
func NewServer() (*cmnGrpc.Server, error) {
	cfg := config.GlobalConfig.GRPC
	if viper.IsSet(CfgServerPort) {
		cfg.Port = uint16(viper.GetUint(CfgServerPort))
	}
	if viper.IsSet(CfgServerSocket) {
		cfg.Socket = viper.GetString(CfgServerSocket)
	}

	return cmnGrpc.NewServer(&cmnGrpc.ServerConfig{
		Name: "query",
		Port: cfg.Port,
		Path: cfg.Socket,
	})
}

// NewClient connects to the node at the address given by the client flags.
func NewClient(cmd *cobra.Command) (*grpc.ClientConn, error) {
	addr := viper.GetString(CfgAddress)

	if _, err := os.Stat(addr); err == nil && !strings.HasPrefix(addr, "unix:") {
		logger.Warn(fmt.Sprintf("'%s' is a file name. Assuming 'unix:%s'.", addr, addr))
		addr = "unix:" + addr
	}

	if !viper.GetBool(CfgWait) {
		return cmnGrpc.Dial(addr)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return cmnGrpc.DialContext(ctx, addr, viper.GetDuration(CfgWaitTimeout))
}

func init() {
	ServerFlags.Uint16(CfgServerPort, 9090, "gRPC server port (0 disables TCP)")
	ServerFlags.String(CfgServerSocket, "", "gRPC server unix socket path")
	_ = viper.BindPFlags(ServerFlags)
	ServerFlags.AddFlagSet(cmnGrpc.Flags)

	ClientFlags.StringP(CfgAddress, "a", defaultAddress, "remote gRPC address")
	ClientFlags.Bool(CfgWait, false, "wait for gRPC address to become available")
	ClientFlags.Duration(CfgWaitTimeout, time.Minute, "maximum time to wait for the gRPC address (0 waits forever)")
	_ = viper.BindPFlags(ClientFlags)
	ClientFlags.AddFlagSet(cmnGrpc.Flags)
}
