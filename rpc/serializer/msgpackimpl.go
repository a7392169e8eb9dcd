package serializer

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// NewMsgpackSerializer creates a new serializer using msgpack encoding.
// Map keys are sorted so equal values always produce equal bytes, which the
// event manager relies on when it groups listeners by serialized key or filter.
func NewMsgpackSerializer() IRPCSerializer {
	return &msgpackSerializerImpl{}
}

// msgpackSerializerImpl implements the IRPCSerializer interface using msgpack encoding
type msgpackSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (m msgpackSerializerImpl) Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m msgpackSerializerImpl) Deserialize(b []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	// strings stay strings when decoding into interface{}
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

func (m msgpackSerializerImpl) Format() string {
	return FormatMsgpack
}
