package base

import (
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of all dMap calls (application/grpc+msgpack)
const CodecName = "msgpack"

// msgpackCodec marshals the wire messages of the common package with msgpack
type msgpackCodec struct{}

// init registers the codec with gRPC, clients select it per call by content-subtype
func init() {
	encoding.RegisterCodec(msgpackCodec{})
}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (msgpackCodec) Name() string {
	return CodecName
}
