package p2p

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"
)

// Request/response paths the node answers (spec.md §6 "Wire —
// request/response").
const (
	PathMinerBlockRange     = "/data/miner_block/range"
	PathMinerBlockCanonical = "/data/miner_block/canonical"
	PathMinerBlockEpoch     = "/data/miner_block/epoch"
	PathInspect             = "/inspect"
)

// Request is the wire envelope carried over the request/response
// protocol, matching modal-node/src/reqres's `{ path, data }` shape.
type Request struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is the wire envelope spec.md §6 specifies for every
// request/response path: `{ ok, data, errors }`.
type Response struct {
	OK     bool            `json:"ok"`
	Data   json.RawMessage `json:"data,omitempty"`
	Errors json.RawMessage `json:"errors,omitempty"`
}

// OKResponse marshals payload into a successful Response.
func OKResponse(payload interface{}) (Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Response{}, errors.Wrap(err, "p2p: marshal response data")
	}
	return Response{OK: true, Data: data}, nil
}

// ErrorResponse builds a failed Response carrying message.
func ErrorResponse(message string) Response {
	errs, _ := json.Marshal(map[string]string{"error": message})
	return Response{OK: false, Errors: errs}
}

// RequestHandler answers one Request from peer from, returning the
// Response to send back.
type RequestHandler func(ctx context.Context, from peer.ID, req Request) Response

// Router dispatches inbound Requests to the handler registered for
// their Path, the `/data/*` and `/inspect` surface spec.md §6 names.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]RequestHandler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]RequestHandler)}
}

func (r *Router) Handle(path string, handler RequestHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[path] = handler
}

// Dispatch routes req to its handler, or an error Response if the path
// isn't registered.
func (r *Router) Dispatch(ctx context.Context, from peer.ID, req Request) Response {
	r.mu.RLock()
	handler, ok := r.handlers[req.Path]
	r.mu.RUnlock()
	if !ok {
		return ErrorResponse("unknown path: " + req.Path)
	}
	return handler(ctx, from, req)
}
