package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ccos-project/ccos-core/manifest"
)

// Handle is the live stream handle returned to a caller who resolved a
// stream id from Execute. Actual data flow happens through Handle, not
// through the executor's return value (spec.md §4.3).
type Handle struct {
	ID   string
	Kind manifest.StreamKind

	// Conn is populated for Bidirectional/Duplex streams, backed by
	// gorilla/websocket.
	Conn *websocket.Conn

	// Unidirectional streams use a plain buffered channel instead of a
	// duplex socket, since there is nothing to write back to.
	Channel chan interface{}
}

// registry of live handles, so a later stream-data call can look one up
// by the id this executor returned.
var (
	handlesMu sync.RWMutex
	handles   = map[string]*Handle{}
)

// LookupHandle retrieves a previously created stream handle by id.
func LookupHandle(id string) (*Handle, bool) {
	handlesMu.RLock()
	defer handlesMu.RUnlock()
	h, ok := handles[id]
	return h, ok
}

// CloseHandle releases a stream handle's resources and forgets it.
func CloseHandle(id string) {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	if h, ok := handles[id]; ok {
		if h.Conn != nil {
			h.Conn.Close()
		}
		if h.Channel != nil {
			close(h.Channel)
		}
		delete(handles, id)
	}
}

// StreamExecutor creates a stream handle and returns its id as the
// Execute result; it never returns the data flowing through the stream
// itself (spec.md §4.3).
type StreamExecutor struct {
	// Dialer is overridable for tests; defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

func (s StreamExecutor) Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error) {
	sp, ok := provider.(manifest.StreamProvider)
	if !ok {
		return nil, fmt.Errorf("executor: StreamExecutor received non-stream provider %T", provider)
	}

	id := uuid.NewString()
	handle := &Handle{ID: id, Kind: sp.StreamKind}

	switch sp.StreamKind {
	case manifest.StreamUnidirectional:
		handle.Channel = make(chan interface{}, 64)

	case manifest.StreamBidirectional, manifest.StreamDuplex:
		endpoint, _ := ec.Metadata["stream_endpoint"]
		if endpoint == "" {
			return nil, fmt.Errorf("executor: stream capability %s: metadata missing stream_endpoint", ec.CapabilityID)
		}
		dialer := s.Dialer
		if dialer == nil {
			dialer = websocket.DefaultDialer
		}
		conn, _, err := dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("executor: stream capability %s: dialing %s: %w", ec.CapabilityID, endpoint, err)
		}
		handle.Conn = conn

	default:
		return nil, fmt.Errorf("executor: stream capability %s: unknown stream kind %q", ec.CapabilityID, sp.StreamKind)
	}

	handlesMu.Lock()
	handles[id] = handle
	handlesMu.Unlock()

	return id, nil
}
