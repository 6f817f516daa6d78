package grpc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	"github.com/nicolaslara/dao-contracts/common/errors"
)

var (
	errTestNotFound = errors.New("grpc/test", 1, "test: not found")

	testServiceName = NewServiceName("Test")
	methodEcho      = testServiceName.NewMethod("Echo")
)

type echoRequest struct {
	Msg []byte `json:"msg"`
}

type echoService interface {
	Echo(ctx context.Context, req *echoRequest) ([]byte, error)
}

type echoer struct{}

func (e *echoer) Echo(ctx context.Context, req *echoRequest) ([]byte, error) {
	switch string(req.Msg) {
	case "missing":
		return nil, errors.WithContext(errTestNotFound, "id 7")
	case "plain":
		return nil, os.ErrInvalid
	}
	return req.Msg, nil
}

var testServiceDesc = grpc.ServiceDesc{
	ServiceName: string(testServiceName),
	HandlerType: (*echoService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodEcho.ShortName(),
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				var req echoRequest
				if err := dec(&req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(echoService).Echo(ctx, &req)
				}
				info := &grpc.UnaryServerInfo{
					Server:     srv,
					FullMethod: methodEcho.FullName(),
				}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(echoService).Echo(ctx, req.(*echoRequest))
				}
				return interceptor(ctx, &req, info, handler)
			},
		},
	},
	Streams: []grpc.StreamDesc{},
}

func TestServiceNames(t *testing.T) {
	require := require.New(t)

	require.Equal("dao-contracts.Test", string(testServiceName))
	require.Equal("/dao-contracts.Test/Echo", methodEcho.FullName())
	require.Panics(func() { testServiceName.NewMethod("Echo") }, "duplicate method")
	require.Panics(func() { NewServiceName("a/b") })
}

func TestServerRoundTrip(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "grpc-test")
	require.NoError(err)
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "test.sock")

	srv, err := NewServer(&ServerConfig{
		Name: "test",
		Path: sock,
	})
	require.NoError(err)
	srv.Server().RegisterService(&testServiceDesc, &echoer{})
	require.NoError(srv.Start())
	defer func() {
		srv.Stop()
		srv.Cleanup()
	}()
	require.Len(srv.Addresses(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := DialContext(ctx, "unix:"+sock, 5*time.Second)
	require.NoError(err)
	defer conn.Close()

	var rsp []byte
	err = conn.Invoke(ctx, methodEcho.FullName(), &echoRequest{Msg: []byte("hello")}, &rsp)
	require.NoError(err)
	require.Equal([]byte("hello"), rsp)

	err = conn.Invoke(ctx, methodEcho.FullName(), &echoRequest{Msg: []byte("missing")}, &rsp)
	require.Error(err)
	require.True(errors.Is(err, errTestNotFound), "coded error should survive the round trip")
	require.Equal("id 7", errors.Context(err))
	module, code := errors.Code(err)
	require.Equal("grpc/test", module)
	require.EqualValues(1, code)

	err = conn.Invoke(ctx, methodEcho.FullName(), &echoRequest{Msg: []byte("plain")}, &rsp)
	require.Error(err)
	require.True(IsErrorCode(err, codes.Unknown), "uncoded errors keep the default status code")
}
