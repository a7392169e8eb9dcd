package serializer

import "fmt"

// IRPCSerializer is the interface for all serializers of application values.
// Keys, values and filter descriptors are turned into opaque bytes by the
// session serializer before they are put on the wire. The proxy decodes them
// with the serializer named by Format, so every request carries it.
type IRPCSerializer interface {
	// Serialize serializes an arbitrary value into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(v any) ([]byte, error)
	// Deserialize deserializes a byte array into the value pointed to by v
	// It returns an error if any
	Deserialize(b []byte, v any) error
	// Format returns the name of the format, as it is sent to the proxy
	Format() string
}

// Names of the supported formats
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
	FormatGOB     = "gob"
)

// New returns the serializer for the given format name
func New(format string) (IRPCSerializer, error) {
	switch format {
	case FormatJSON:
		return NewJSONSerializer(), nil
	case FormatMsgpack:
		return NewMsgpackSerializer(), nil
	case FormatGOB:
		return NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer format: %q (use json, msgpack or gob)", format)
	}
}
