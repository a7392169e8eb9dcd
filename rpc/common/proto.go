package common

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single unary map operation, used for both requests and responses.
// Which fields are used depends on the type of message. Keys and values are opaque
// byte slices produced by the session serializer named in Format.
type Message struct {
	// Type of message
	MsgType MessageType `msgpack:"t"`

	// Addressing
	Cache  string `msgpack:"c,omitempty"` // Name of the named map
	Scope  string `msgpack:"s,omitempty"` // Optional scope prefix of the cache service
	Format string `msgpack:"f,omitempty"` // Serializer format of Key and Value

	// General fields
	Key   []byte `msgpack:"k,omitempty"`   // Used for: Get, Put, PutIfAbsent, Remove, ContainsKey
	Value []byte `msgpack:"v,omitempty"`   // Used for: Put (request), ContainsValue, previous/current value (response)
	TTL   int64  `msgpack:"ttl,omitempty"` // Used for: Put operations, expiry in milliseconds (0 = cache default)

	// Response only fields
	Ok    bool   `msgpack:"ok,omitempty"`  // Used for: Get, Put, Remove (value present), ContainsKey, ContainsValue, IsEmpty
	Count int64  `msgpack:"n,omitempty"`   // Used for: Size
	Err   string `msgpack:"err,omitempty"` // Empty if no error, otherwise contains the error message
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewGetRequest creates a new Get request
func NewGetRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTGet,
		Key:     key,
	}
}

// NewPutRequest creates a new Put request, ttl is in milliseconds
func NewPutRequest(key, value []byte, ttl int64) *Message {
	return &Message{
		MsgType: MsgTPut,
		Key:     key,
		Value:   value,
		TTL:     ttl,
	}
}

// NewPutIfAbsentRequest creates a new PutIfAbsent request
func NewPutIfAbsentRequest(key, value []byte) *Message {
	return &Message{
		MsgType: MsgTPutIfAbsent,
		Key:     key,
		Value:   value,
	}
}

// NewRemoveRequest creates a new Remove request
func NewRemoveRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTRemove,
		Key:     key,
	}
}

// NewContainsKeyRequest creates a new ContainsKey request
func NewContainsKeyRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTContainsKey,
		Key:     key,
	}
}

// NewContainsValueRequest creates a new ContainsValue request
func NewContainsValueRequest(value []byte) *Message {
	return &Message{
		MsgType: MsgTContainsValue,
		Value:   value,
	}
}

// NewSizeRequest creates a new Size request
func NewSizeRequest() *Message {
	return &Message{MsgType: MsgTSize}
}

// NewIsEmptyRequest creates a new IsEmpty request
func NewIsEmptyRequest() *Message {
	return &Message{MsgType: MsgTIsEmpty}
}

// NewClearRequest creates a new Clear request
func NewClearRequest() *Message {
	return &Message{MsgType: MsgTClear}
}

// NewTruncateRequest creates a new Truncate request
func NewTruncateRequest() *Message {
	return &Message{MsgType: MsgTTruncate}
}

// NewDestroyRequest creates a new Destroy request
func NewDestroyRequest() *Message {
	return &Message{MsgType: MsgTDestroy}
}

// NewValueResponse creates a response carrying an optional value
func NewValueResponse(msgType MessageType, value []byte, ok bool) *Message {
	return &Message{
		MsgType: msgType,
		Value:   value,
		Ok:      ok,
	}
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTError,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// --------------------------------------------------------------------------
// Message Type
// --------------------------------------------------------------------------

// MessageType is the type of unary operation carried by a Message
type MessageType uint8

// String returns a string representation of the message type
func (t MessageType) String() string {
	switch t {
	case MsgTGet:
		return "get"
	case MsgTPut:
		return "put"
	case MsgTPutIfAbsent:
		return "putIfAbsent"
	case MsgTRemove:
		return "remove"
	case MsgTContainsKey:
		return "containsKey"
	case MsgTContainsValue:
		return "containsValue"
	case MsgTSize:
		return "size"
	case MsgTIsEmpty:
		return "isEmpty"
	case MsgTClear:
		return "clear"
	case MsgTTruncate:
		return "truncate"
	case MsgTDestroy:
		return "destroy"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Named map operations

	MsgTGet           // Get a value by key
	MsgTPut           // Put a key-value pair
	MsgTPutIfAbsent   // Put a key-value pair if the key is not mapped
	MsgTRemove        // Remove a mapping
	MsgTContainsKey   // Check if a key is mapped
	MsgTContainsValue // Check if any key maps to a value
	MsgTSize          // Count the mappings
	MsgTIsEmpty       // Check if the map has no mappings
	MsgTClear         // Remove all mappings, raising delete events
	MsgTTruncate      // Remove all mappings without events
	MsgTDestroy       // Destroy the map on the cluster
)
