package grpc

import (
	"google.golang.org/grpc/encoding"

	"github.com/nicolaslara/dao-contracts/common/cbor"
)

var _ encoding.Codec = (*CBORCodec)(nil)

// CBORCodec implements gRPC's encoding.Codec interface using the canonical
// CBOR encoding, so request and response types need no protobuf definitions.
type CBORCodec struct{}

// Marshal encodes v as CBOR.
func (c *CBORCodec) Marshal(v interface{}) ([]byte, error) {
	return cbor.Marshal(v), nil
}

// Unmarshal decodes CBOR data into v.
func (c *CBORCodec) Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

// Name returns the codec name.
func (c *CBORCodec) Name() string {
	return "cbor"
}
