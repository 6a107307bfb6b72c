package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/predictgate/polymarket-mcp/pkg/cache"
)

// Resource describes one readable resource for resources/list.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

func resourceDefinitions() []Resource {
	return []Resource{
		{
			URI:         "markets:active",
			Name:        "Active Markets",
			Description: "List of currently active prediction markets",
			MimeType:    "application/json",
		},
		{
			URI:         "markets:trending",
			Name:        "Trending Markets",
			Description: "Markets with highest trading volume",
			MimeType:    "application/json",
		},
		{
			URI:         "market:{id}",
			Name:        "Market Details",
			Description: "Details of a single market by id",
			MimeType:    "application/json",
		},
	}
}

// ResourceReader serves resource reads. Resource payloads change slowly, so
// they get their own store with a longer freshness window than tool calls.
type ResourceReader struct {
	service MarketService
	store   cache.Store
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewResourceReader creates the reader used by the router for
// resources/read. A nil store disables resource-level caching.
func NewResourceReader(service MarketService, store cache.Store, ttl time.Duration, logger zerolog.Logger) *ResourceReader {
	return &ResourceReader{service: service, store: store, ttl: ttl, logger: logger}
}

// read resolves a resource URI to its JSON payload.
func (rr *ResourceReader) read(ctx context.Context, uri string) ([]byte, error) {
	key := cache.Key("resource", cache.P("uri", uri))
	if rr.store != nil {
		if data, err := rr.store.Get(ctx, key); err == nil {
			return data, nil
		}
	}

	var (
		payload interface{}
		err     error
	)
	switch {
	case uri == "markets:active":
		payload, err = rr.service.ActiveMarkets(ctx, 0)
	case uri == "markets:trending":
		payload, err = rr.service.Trending(ctx, 0)
	case strings.HasPrefix(uri, "market:"):
		id := strings.TrimPrefix(uri, "market:")
		if id == "" {
			return nil, &Error{Code: CodeInvalidParams, Message: "market uri has no id"}
		}
		payload, err = rr.service.MarketByID(ctx, id)
	default:
		return nil, &Error{Code: CodeNotFound, Message: "unknown resource: " + uri}
	}
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	if rr.store != nil {
		if err := rr.store.Set(ctx, key, data, rr.ttl); err != nil {
			rr.logger.Warn().Err(err).Str("uri", uri).Msg("Failed to cache resource")
		}
	}
	return data, nil
}

func (rt *Router) handleResourceRead(ctx context.Context, req *Request) *Response {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || strings.TrimSpace(params.URI) == "" {
		return NewErrorResponse(req.ID, CodeInvalidParams, "uri is required")
	}

	data, err := rt.resources.read(ctx, params.URI)
	if err != nil {
		return rt.errorResponse(req.ID, err)
	}

	return NewResponse(req.ID, map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"uri":      params.URI,
				"mimeType": "application/json",
				"text":     string(data),
			},
		},
	})
}
