package common

// --------------------------------------------------------------------------
// Listener Requests (client -> proxy, over the shared event stream)
// --------------------------------------------------------------------------

// ListenerRequestType selects what a ListenerRequest (un)registers
type ListenerRequestType uint8

const (
	ListenerRequestUnknown ListenerRequestType = iota
	ListenerRequestInit                        // Establishes the serializer format of the stream
	ListenerRequestKey                         // (Un)registers interest in a single key
	ListenerRequestFilter                      // (Un)registers interest in a filter
)

// String returns a string representation of the request type
func (t ListenerRequestType) String() string {
	switch t {
	case ListenerRequestInit:
		return "init"
	case ListenerRequestKey:
		return "key"
	case ListenerRequestFilter:
		return "filter"
	default:
		return "unknown"
	}
}

// ListenerRequest is written on the event stream to initialise it or to
// subscribe / unsubscribe a key or filter registration.
// Uid correlates the request with the acknowledgement sent back by the proxy.
type ListenerRequest struct {
	Uid       string              `msgpack:"uid"`
	Cache     string              `msgpack:"c,omitempty"`
	Scope     string              `msgpack:"s,omitempty"`
	Format    string              `msgpack:"f,omitempty"`
	Type      ListenerRequestType `msgpack:"t"`
	Subscribe bool                `msgpack:"sub,omitempty"`
	Key       []byte              `msgpack:"k,omitempty"`   // Used for: ListenerRequestKey
	Filter    []byte              `msgpack:"flt,omitempty"` // Used for: ListenerRequestFilter
	FilterID  int64               `msgpack:"fid,omitempty"` // Used for: ListenerRequestFilter
	Lite      bool                `msgpack:"lite,omitempty"`
}

// --------------------------------------------------------------------------
// Listener Responses (proxy -> client)
// --------------------------------------------------------------------------

// ListenerResponseKind tells which variant of a ListenerResponse is set
type ListenerResponseKind uint8

const (
	ResponseUnknown ListenerResponseKind = iota
	ResponseSubscribed
	ResponseUnsubscribed
	ResponseError
	ResponseDestroyed
	ResponseTruncated
	ResponseEvent
)

// String returns a string representation of the response kind
func (k ListenerResponseKind) String() string {
	switch k {
	case ResponseSubscribed:
		return "subscribed"
	case ResponseUnsubscribed:
		return "unsubscribed"
	case ResponseError:
		return "error"
	case ResponseDestroyed:
		return "destroyed"
	case ResponseTruncated:
		return "truncated"
	case ResponseEvent:
		return "event"
	default:
		return "unknown"
	}
}

// ListenerResponse is a one-of: exactly one of its fields is set.
type ListenerResponse struct {
	Subscribed   *AckResponse      `msgpack:"subscribed,omitempty"`
	Unsubscribed *AckResponse      `msgpack:"unsubscribed,omitempty"`
	Error        *ErrorResponse    `msgpack:"error,omitempty"`
	Destroyed    *CacheResponse    `msgpack:"destroyed,omitempty"`
	Truncated    *CacheResponse    `msgpack:"truncated,omitempty"`
	Event        *MapEventResponse `msgpack:"event,omitempty"`
}

// Kind returns the variant carried by the response
func (r *ListenerResponse) Kind() ListenerResponseKind {
	switch {
	case r == nil:
		return ResponseUnknown
	case r.Subscribed != nil:
		return ResponseSubscribed
	case r.Unsubscribed != nil:
		return ResponseUnsubscribed
	case r.Error != nil:
		return ResponseError
	case r.Destroyed != nil:
		return ResponseDestroyed
	case r.Truncated != nil:
		return ResponseTruncated
	case r.Event != nil:
		return ResponseEvent
	default:
		return ResponseUnknown
	}
}

// AckResponse acknowledges the request with the given uid
type AckResponse struct {
	Uid string `msgpack:"uid"`
}

// ErrorResponse rejects the request with the given uid
type ErrorResponse struct {
	Uid     string `msgpack:"uid"`
	Message string `msgpack:"msg"`
}

// CacheResponse is a lifecycle notification for a cache
type CacheResponse struct {
	Cache string `msgpack:"c"`
}

// MapEventResponse carries one change event. FilterIDs lists every filter
// registration of this stream the event matched. Values are absent for lite
// registrations.
type MapEventResponse struct {
	ID        EventID `msgpack:"id"`
	FilterIDs []int64 `msgpack:"fids,omitempty"`
	Key       []byte  `msgpack:"k"`
	OldValue  []byte  `msgpack:"ov,omitempty"`
	NewValue  []byte  `msgpack:"nv,omitempty"`
}

// EventID identifies the kind of change of a MapEventResponse
type EventID uint8

const (
	EventUnknown  EventID = 0
	EventInserted EventID = 1
	EventUpdated  EventID = 2
	EventDeleted  EventID = 3
)

// String returns a string representation of the event id
func (id EventID) String() string {
	switch id {
	case EventInserted:
		return "inserted"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// NewSubscribedResponse creates a subscribe acknowledgement
func NewSubscribedResponse(uid string) *ListenerResponse {
	return &ListenerResponse{Subscribed: &AckResponse{Uid: uid}}
}

// NewUnsubscribedResponse creates an unsubscribe acknowledgement
func NewUnsubscribedResponse(uid string) *ListenerResponse {
	return &ListenerResponse{Unsubscribed: &AckResponse{Uid: uid}}
}

// NewListenerErrorResponse creates a rejection of the request with the given uid
func NewListenerErrorResponse(uid, msg string) *ListenerResponse {
	return &ListenerResponse{Error: &ErrorResponse{Uid: uid, Message: msg}}
}

// --------------------------------------------------------------------------
// Paging
// --------------------------------------------------------------------------

// PageRequest asks for the page following Cookie (empty = first page).
// The response stream's first element carries the next cookie, an empty
// cookie means the returned page is the last one.
type PageRequest struct {
	Cache  string `msgpack:"c"`
	Scope  string `msgpack:"s,omitempty"`
	Format string `msgpack:"f,omitempty"`
	Cookie []byte `msgpack:"ck,omitempty"`
}

// BytesValue is an element of a key page
type BytesValue struct {
	Value []byte `msgpack:"v,omitempty"`
}

// EntryResult is an element of an entry page. Only the first element of a
// page sets Cookie.
type EntryResult struct {
	Key    []byte `msgpack:"k,omitempty"`
	Value  []byte `msgpack:"v,omitempty"`
	Cookie []byte `msgpack:"ck,omitempty"`
}
