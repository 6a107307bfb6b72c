package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/predictgate/polymarket-mcp/pkg/polymarket"
)

var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_rpc_requests_total",
		Help: "Total number of handled JSON-RPC requests by method and outcome",
	}, []string{"method", "outcome"})

	rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_rpc_duration_seconds",
		Help:    "JSON-RPC request handling duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

// MarketService is the market data surface the router dispatches to.
// *polymarket.Client satisfies it.
type MarketService interface {
	ActiveMarkets(ctx context.Context, limit int) ([]polymarket.Market, error)
	MarketByID(ctx context.Context, id string) (polymarket.Market, error)
	Search(ctx context.Context, keyword string, limit int) ([]polymarket.Market, error)
	Prices(ctx context.Context, id string) ([]polymarket.MarketPrice, error)
	Trending(ctx context.Context, limit int) ([]polymarket.Market, error)
}

// Session lifecycle states.
const (
	stateUninitialized int32 = iota
	stateReady
	stateClosed
)

// ServerInfo identifies this server during initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Router dispatches decoded JSON-RPC messages to their handlers and owns
// the session lifecycle. It is safe for concurrent use.
type Router struct {
	service   MarketService
	resources *ResourceReader
	info      ServerInfo
	logger    zerolog.Logger
	state     atomic.Int32
}

// NewRouter creates a router over the given market service. The resource
// store backs resource reads with their own freshness window; a nil store
// disables resource-level caching.
func NewRouter(service MarketService, resources *ResourceReader, info ServerInfo, logger zerolog.Logger) *Router {
	if resources == nil {
		resources = NewResourceReader(service, nil, 0, logger)
	}
	return &Router{
		service:   service,
		resources: resources,
		info:      info,
		logger:    logger,
	}
}

// Closed reports whether the session has shut down.
func (rt *Router) Closed() bool {
	return rt.state.Load() == stateClosed
}

// Dispatch routes one decoded message. It returns nil for notifications and
// for any message arriving after shutdown; requests always get exactly one
// response otherwise.
func (rt *Router) Dispatch(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		rt.handleNotification(req)
		return nil
	}

	start := time.Now()
	resp := rt.dispatchRequest(ctx, req)
	rpcDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if resp != nil && resp.Error != nil {
		outcome = "error"
	}
	rpcRequestsTotal.WithLabelValues(req.Method, outcome).Inc()
	return resp
}

func (rt *Router) dispatchRequest(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error().Interface("panic", r).Str("method", req.Method).Msg("Handler panicked")
			resp = NewErrorResponse(req.ID, CodeInternalError, "internal error")
		}
	}()

	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		return NewErrorResponse(req.ID, CodeInvalidRequest, "invalid request")
	}

	switch rt.state.Load() {
	case stateClosed:
		return nil
	case stateUninitialized:
		if req.Method != "initialize" {
			return NewErrorResponse(req.ID, CodeNotInitialized, "server not initialized")
		}
	case stateReady:
		if req.Method == "initialize" {
			return NewErrorResponse(req.ID, CodeInvalidRequest, "already initialized")
		}
	}

	switch req.Method {
	case "initialize":
		return rt.handleInitialize(req)
	case "ping":
		return NewResponse(req.ID, struct{}{})
	case "shutdown":
		rt.state.Store(stateClosed)
		rt.logger.Info().Msg("Session shut down")
		return NewResponse(req.ID, struct{}{})
	case "tools/list":
		return NewResponse(req.ID, map[string]interface{}{"tools": toolDefinitions()})
	case "tools/call":
		return rt.handleToolCall(ctx, req)
	case "resources/list":
		return NewResponse(req.ID, map[string]interface{}{"resources": resourceDefinitions()})
	case "resources/read":
		return rt.handleResourceRead(ctx, req)
	case "prompts/list":
		return NewResponse(req.ID, map[string]interface{}{"prompts": promptDefinitions()})
	case "prompts/get":
		return rt.handlePromptGet(ctx, req)
	default:
		return NewErrorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// handleNotification processes messages that never get a response. Only the
// lifecycle notification changes state; everything else is ignored.
func (rt *Router) handleNotification(req *Request) {
	if req.Method == "notifications/initialized" {
		if rt.state.CompareAndSwap(stateUninitialized, stateReady) {
			rt.logger.Info().Msg("Session ready")
		}
		return
	}
	rt.logger.Debug().Str("method", req.Method).Msg("Ignoring notification")
}

func (rt *Router) handleInitialize(req *Request) *Response {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, CodeInvalidParams, "invalid initialize params")
		}
	}
	if params.ProtocolVersion != "" && params.ProtocolVersion != ProtocolVersion {
		rt.logger.Warn().
			Str("client_version", params.ProtocolVersion).
			Str("server_version", ProtocolVersion).
			Msg("Client requested a different protocol version")
	}

	result := map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
			"prompts":   map[string]interface{}{},
		},
		"serverInfo": rt.info,
	}
	return NewResponse(req.ID, result)
}

// errorResponse maps a domain error onto the protocol error space. Handlers
// may also return *Error directly for protocol-level failures.
func (rt *Router) errorResponse(id json.RawMessage, err error) *Response {
	var protoErr *Error
	if errors.As(err, &protoErr) {
		return &Response{JSONRPC: jsonRPCVersion, ID: normalizeID(id), Error: protoErr}
	}

	var parseErr *polymarket.ParseError
	switch {
	case errors.Is(err, polymarket.ErrNotFound):
		return NewErrorResponse(id, CodeNotFound, err.Error())
	case errors.Is(err, polymarket.ErrMissingPriceData):
		return NewErrorResponse(id, CodeMissingPriceData, err.Error())
	case errors.As(err, &parseErr):
		return NewErrorResponse(id, CodeUpstreamParse, err.Error())
	case errors.Is(err, polymarket.ErrRetryExhausted),
		errors.As(err, new(*polymarket.StatusError)),
		errors.As(err, new(*polymarket.TransportError)):
		return NewErrorResponse(id, CodeUpstreamFailure, err.Error())
	default:
		return NewErrorResponse(id, CodeInternalError, err.Error())
	}
}
