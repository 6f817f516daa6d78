package grpc

import (
	"context"

	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/nicolaslara/dao-contracts/common/cbor"
	"github.com/nicolaslara/dao-contracts/common/errors"
)

// IsErrorCode returns true if the given error represents a specific gRPC error code.
func IsErrorCode(err error, code codes.Code) bool {
	var grpcError interface {
		error
		GRPCStatus() *status.Status
	}
	if !errors.As(err, &grpcError) {
		return false
	}

	return grpcError.GRPCStatus().Code() == code
}

// grpcError is the serializable form of a coded error, carried in the
// status details.
type grpcError struct {
	Module string `json:"module,omitempty"`
	Code   uint32 `json:"code,omitempty"`
}

func errorToGrpc(err error) error {
	if err == nil {
		return nil
	}

	module, code := errors.Code(err)
	if module == errors.UnknownModule {
		return err
	}

	// The status is protobuf, but Details carries our CBOR payload as an
	// opaque value so that the coded error can be rebuilt by the client.
	return status.FromProto(&spb.Status{
		Code:    int32(grpcCodeFor(err)),
		Message: err.Error(),
		Details: []*anypb.Any{
			{
				Value: cbor.Marshal(&grpcError{Module: module, Code: code}),
			},
		},
	}).Err()
}

func errorFromGrpc(err error) error {
	if err == nil {
		return nil
	}

	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	sp := s.Proto()
	if len(sp.Details) != 1 {
		return err
	}
	var ge grpcError
	if cerr := cbor.Unmarshal(sp.Details[0].Value, &ge); cerr != nil {
		return err
	}
	if mapped := errors.FromCode(ge.Module, ge.Code, sp.Message); mapped != nil {
		return mapped
	}
	return err
}

func grpcCodeFor(err error) codes.Code {
	if c := status.Code(err); c != codes.Unknown {
		return c
	}
	return codes.FailedPrecondition
}

func serverUnaryErrorMapper(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	rsp, err := handler(ctx, req)
	return rsp, errorToGrpc(err)
}

func clientUnaryErrorMapper(
	ctx context.Context,
	method string,
	req, rsp interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	err := invoker(ctx, method, req, rsp, cc, opts...)
	return errorFromGrpc(err)
}
