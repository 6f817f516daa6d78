package api

import (
	"context"

	"google.golang.org/grpc"

	cmnGrpc "github.com/nicolaslara/dao-contracts/common/grpc"
)

var (
	// serviceName is the gRPC service name.
	serviceName = cmnGrpc.NewServiceName("ProposalQuery")

	// methodSmartQuery is the SmartQuery method.
	methodSmartQuery = serviceName.NewMethod("SmartQuery")
	// methodGetBlock is the GetBlock method.
	methodGetBlock = serviceName.NewMethod("GetBlock")

	// serviceDesc is the gRPC service descriptor.
	serviceDesc = grpc.ServiceDesc{
		ServiceName: string(serviceName),
		HandlerType: (*QueryService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: methodSmartQuery.ShortName(),
				Handler:    handlerSmartQuery,
			},
			{
				MethodName: methodGetBlock.ShortName(),
				Handler:    handlerGetBlock,
			},
		},
		Streams: []grpc.StreamDesc{},
	}
)

// SmartQueryRequest is a request carrying a JSON encoded QueryMsg.
type SmartQueryRequest struct {
	Msg []byte `json:"msg"`
}

// QueryService answers JSON encoded query messages.
type QueryService interface {
	// SmartQuery decodes, validates and answers a JSON encoded QueryMsg,
	// returning the JSON encoded response.
	SmartQuery(ctx context.Context, msg []byte) ([]byte, error)

	// GetBlock returns the block the answers are computed at.
	GetBlock(ctx context.Context) (*BlockInfo, error)
}

func handlerSmartQuery(
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	var req SmartQueryRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryService).SmartQuery(ctx, req.Msg)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodSmartQuery.FullName(),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QueryService).SmartQuery(ctx, req.(*SmartQueryRequest).Msg)
	}
	return interceptor(ctx, &req, info, handler)
}

func handlerGetBlock(
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	if interceptor == nil {
		return srv.(QueryService).GetBlock(ctx)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodGetBlock.FullName(),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QueryService).GetBlock(ctx)
	}
	return interceptor(ctx, nil, info, handler)
}

// RegisterService registers a new query service with the given gRPC server.
func RegisterService(server *grpc.Server, service QueryService) {
	server.RegisterService(&serviceDesc, service)
}

type queryClient struct {
	conn *grpc.ClientConn
}

func (c *queryClient) SmartQuery(ctx context.Context, msg []byte) ([]byte, error) {
	var rsp []byte
	if err := c.conn.Invoke(ctx, methodSmartQuery.FullName(), &SmartQueryRequest{Msg: msg}, &rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}

func (c *queryClient) GetBlock(ctx context.Context) (*BlockInfo, error) {
	var rsp BlockInfo
	if err := c.conn.Invoke(ctx, methodGetBlock.FullName(), nil, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// NewQueryClient creates a new gRPC query service client.
func NewQueryClient(c *grpc.ClientConn) QueryService {
	return &queryClient{
		conn: c,
	}
}
