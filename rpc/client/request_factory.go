package client

import (
	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/google/uuid"
)

// requestFactory builds the wire messages of one named map. It is stateless
// apart from the addressing fields, every listener request gets a fresh uid.
type requestFactory struct {
	cache  string
	scope  string
	format string
}

func newRequestFactory(cache, scope, format string) *requestFactory {
	return &requestFactory{cache: cache, scope: scope, format: format}
}

// message fills in the addressing fields of a unary request
func (f *requestFactory) message(m *common.Message) *common.Message {
	m.Cache = f.cache
	m.Scope = f.scope
	m.Format = f.format
	return m
}

func (f *requestFactory) listenerRequest(t common.ListenerRequestType, subscribe bool) *common.ListenerRequest {
	return &common.ListenerRequest{
		Uid:       uuid.NewString(),
		Cache:     f.cache,
		Scope:     f.scope,
		Format:    f.format,
		Type:      t,
		Subscribe: subscribe,
	}
}

// initRequest establishes the serializer format of a new event stream
func (f *requestFactory) initRequest() *common.ListenerRequest {
	return f.listenerRequest(common.ListenerRequestInit, true)
}

// keyRequest (un)subscribes the events of a single key
func (f *requestFactory) keyRequest(key []byte, subscribe, lite bool) *common.ListenerRequest {
	req := f.listenerRequest(common.ListenerRequestKey, subscribe)
	req.Key = key
	req.Lite = lite
	return req
}

// filterRequest (un)subscribes the events matching a filter. The proxy tags
// matching events with filterID.
func (f *requestFactory) filterRequest(filter []byte, filterID int64, subscribe, lite bool) *common.ListenerRequest {
	req := f.listenerRequest(common.ListenerRequestFilter, subscribe)
	req.Filter = filter
	req.FilterID = filterID
	req.Lite = lite
	return req
}

// pageRequest asks for the page following cookie, nil for the first page
func (f *requestFactory) pageRequest(cookie []byte) *common.PageRequest {
	return &common.PageRequest{
		Cache:  f.cache,
		Scope:  f.scope,
		Format: f.format,
		Cookie: cookie,
	}
}
