package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/ValentinKolb/dMap/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
)

// pageFetcher loads the page following cookie. It returns the converters of
// the page items and the cookie of the next page, empty if the page was the last.
type pageFetcher[T any] func(ctx context.Context, cookie []byte) (items []func() (T, error), next []byte, err error)

// Cursor iterates a named map one page at a time. Pages are requested with the
// opaque cookie returned by the previous page, so a cursor never rewinds: create
// a new one to start over. A Cursor is not safe for concurrent use.
type Cursor[T any] struct {
	fetch     pageFetcher[T]
	cookie    []byte
	buffer    []func() (T, error)
	exhausted bool
	err       error
}

func newCursor[T any](fetch pageFetcher[T]) *Cursor[T] {
	return &Cursor[T]{fetch: fetch}
}

// Next returns the next item. It returns common.ErrDone once all pages were
// consumed. A failed page request breaks the cursor, every later call returns
// the same error. A *common.DeserializationError only concerns the returned item.
func (c *Cursor[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		if c.err != nil {
			return zero, c.err
		}
		if len(c.buffer) > 0 {
			item := c.buffer[0]
			c.buffer[0] = nil
			c.buffer = c.buffer[1:]
			return item()
		}
		if c.exhausted {
			return zero, common.ErrDone
		}

		items, next, err := c.fetch(ctx, c.cookie)
		if err != nil {
			c.err = err
			cursorLogger.Warningf("Cursor broken: %v", err)
			return zero, err
		}
		c.buffer = items
		c.cookie = next
		c.exhausted = len(next) == 0
	}
}

// All returns an iterator over the remaining items. Iteration ends after the
// last item or after the first page error, which is yielded.
func (c *Cursor[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			item, err := c.Next(ctx)
			if errors.Is(err, common.ErrDone) {
				return
			}
			if !yield(item, err) {
				return
			}
			if err != nil && c.err != nil {
				return
			}
		}
	}
}

// --------------------------------------------------------------------------
// Page Strategies
// --------------------------------------------------------------------------

// pageStrategy adapts one kind of page stream to a cursor
type pageStrategy[R, T any] struct {
	kind    string
	open    func(ctx context.Context, req *common.PageRequest) (transport.PageStream[R], error)
	request func(cookie []byte) *common.PageRequest
	cookie  func(first *R) []byte
	convert func(item *R) func() (T, error)
}

// fetchPage reads one page stream to its end. The first element only
// carries the cookie of the next page and is never surfaced.
func (s *pageStrategy[R, T]) fetchPage(ctx context.Context, cookie []byte) ([]func() (T, error), []byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := s.open(ctx, s.request(cookie))
	if err != nil {
		return nil, nil, fmt.Errorf("open %s page: %w", s.kind, err)
	}

	first, err := stream.Recv()
	if errors.Is(err, io.EOF) {
		// an empty stream ends the iteration
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s page: %w", s.kind, err)
	}
	next := s.cookie(first)

	var items []func() (T, error)
	for {
		r, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s page: %w", s.kind, err)
		}
		items = append(items, s.convert(r))
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`dmap_pages_fetched_total{kind=%q}`, s.kind)).Inc()
	cursorLogger.Debugf("Fetched %s page with %d items, last=%t", s.kind, len(items), len(next) == 0)
	return items, next, nil
}

// keysStrategy pages the keys of a map
func keysStrategy[K any](t transport.IRPCClientTransport, f *requestFactory, decode func([]byte) (K, error)) *pageStrategy[common.BytesValue, K] {
	return &pageStrategy[common.BytesValue, K]{
		kind:    "keys",
		open:    t.OpenKeysPage,
		request: f.pageRequest,
		cookie:  func(first *common.BytesValue) []byte { return first.Value },
		convert: func(item *common.BytesValue) func() (K, error) {
			return func() (K, error) { return decode(item.Value) }
		},
	}
}

// entriesStrategy pages the entries of a map, convert turns the raw key and
// value into the public item
func entriesStrategy[T any](t transport.IRPCClientTransport, f *requestFactory, kind string, convert func(key, value []byte) (T, error)) *pageStrategy[common.EntryResult, T] {
	return &pageStrategy[common.EntryResult, T]{
		kind:    kind,
		open:    t.OpenEntriesPage,
		request: f.pageRequest,
		cookie:  func(first *common.EntryResult) []byte { return first.Cookie },
		convert: func(item *common.EntryResult) func() (T, error) {
			return func() (T, error) { return convert(item.Key, item.Value) }
		},
	}
}
