// Package webapi queries the JSON-RPC interface of monitored nodes.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hc1node/forkmonitor/internal/entity"
)

// FrontierMethod is the RPC call returning a node's latest momentum.
const FrontierMethod = "ledger.getFrontierMomentum"

// errNoHash is returned when a node answers with a momentum lacking a hash,
// which is also how a null result decodes.
var errNoHash = errors.New("momentum without hash")

// frontierMomentum is the subset of the node's momentum object the monitor
// cares about.
type frontierMomentum struct {
	Height    uint64 `json:"height"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// NodeWebAPI issues momentum queries over http(s) or ws(s). One client is kept
// per endpoint and dropped whenever the endpoint becomes unreachable, so the
// next query redials.
type NodeWebAPI struct {
	lock    sync.Mutex
	clients map[string]*rpc.Client
}

func New() *NodeWebAPI {
	return &NodeWebAPI{
		clients: make(map[string]*rpc.Client),
	}
}

// FetchLatest retrieves the node's frontier momentum. The call is bounded by the
// context; failures are returned as *entity.FetchError.
func (w *NodeWebAPI) FetchLatest(ctx context.Context, node entity.NodeIdentity) (entity.Momentum, error) {
	client, err := w.client(ctx, node.Endpoint)
	if err != nil {
		return entity.Momentum{}, &entity.FetchError{Kind: entity.Unreachable, Node: node.Name, Err: err}
	}
	var result *frontierMomentum
	if err := client.CallContext(ctx, &result, FrontierMethod); err != nil {
		kind := classify(err)
		if kind == entity.Unreachable {
			w.drop(node.Endpoint, client)
		}
		return entity.Momentum{}, &entity.FetchError{Kind: kind, Node: node.Name, Err: err}
	}
	if result == nil || result.Hash == "" {
		return entity.Momentum{}, &entity.FetchError{Kind: entity.MalformedResponse, Node: node.Name, Err: errNoHash}
	}
	hash, err := entity.ParseHash(result.Hash)
	if err != nil {
		return entity.Momentum{}, &entity.FetchError{Kind: entity.MalformedResponse, Node: node.Name, Err: err}
	}
	log.Trace("Retrieved frontier momentum", "node", node.Name, "height", result.Height, "hash", hash, "timestamp", result.Timestamp)
	return entity.Momentum{Height: result.Height, Hash: hash}, nil
}

// Close tears down all cached node connections.
func (w *NodeWebAPI) Close() {
	w.lock.Lock()
	defer w.lock.Unlock()

	for endpoint, client := range w.clients {
		client.Close()
		delete(w.clients, endpoint)
	}
}

func (w *NodeWebAPI) client(ctx context.Context, endpoint string) (*rpc.Client, error) {
	w.lock.Lock()
	client, ok := w.clients[endpoint]
	w.lock.Unlock()
	if ok {
		return client, nil
	}
	// Dial outside the lock, websocket handshakes may take a while
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	w.lock.Lock()
	defer w.lock.Unlock()

	if existing, ok := w.clients[endpoint]; ok {
		client.Close()
		return existing, nil
	}
	w.clients[endpoint] = client
	return client, nil
}

func (w *NodeWebAPI) drop(endpoint string, client *rpc.Client) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.clients[endpoint] == client {
		delete(w.clients, endpoint)
		client.Close()
	}
}

// classify maps an RPC client error onto the fetch error taxonomy.
func classify(err error) entity.FetchErrorKind {
	var (
		rpcErr    rpc.Error
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &rpcErr):
		return entity.ProtocolError
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, rpc.ErrNoResult):
		return entity.MalformedResponse
	default:
		return entity.Unreachable
	}
}
