package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/predictgate/polymarket-mcp/pkg/polymarket"
)

// stubService counts calls so tests can assert that invalid requests never
// reach the market data layer.
type stubService struct {
	calls   atomic.Int32
	markets []polymarket.Market
	market  polymarket.Market
	prices  []polymarket.MarketPrice
	err     error
}

func (s *stubService) ActiveMarkets(ctx context.Context, limit int) ([]polymarket.Market, error) {
	s.calls.Add(1)
	return s.markets, s.err
}

func (s *stubService) MarketByID(ctx context.Context, id string) (polymarket.Market, error) {
	s.calls.Add(1)
	return s.market, s.err
}

func (s *stubService) Search(ctx context.Context, keyword string, limit int) ([]polymarket.Market, error) {
	s.calls.Add(1)
	return s.markets, s.err
}

func (s *stubService) Prices(ctx context.Context, id string) ([]polymarket.MarketPrice, error) {
	s.calls.Add(1)
	return s.prices, s.err
}

func (s *stubService) Trending(ctx context.Context, limit int) ([]polymarket.Market, error) {
	s.calls.Add(1)
	return s.markets, s.err
}

func newTestRouter(service MarketService) *Router {
	return NewRouter(service, nil, ServerInfo{Name: "polymarket-mcp", Version: "test"}, zerolog.Nop())
}

func request(id int, method, params string) *Request {
	req := &Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(jsonInt(id)),
		Method:  method,
	}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	return req
}

func jsonInt(id int) string {
	data, _ := json.Marshal(id)
	return string(data)
}

func notification(method string) *Request {
	return &Request{JSONRPC: "2.0", Method: method}
}

// initialize performs the full handshake and returns a ready router.
func initializedRouter(t *testing.T, service MarketService) *Router {
	t.Helper()

	rt := newTestRouter(service)
	resp := rt.Dispatch(context.Background(), request(1, "initialize", `{"protocolVersion":"2024-11-05"}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("initialize response = %+v", resp)
	}
	rt.Dispatch(context.Background(), notification("notifications/initialized"))
	return rt
}

func TestRouter_RejectsRequestsBeforeInitialize(t *testing.T) {
	stub := &stubService{}
	rt := newTestRouter(stub)

	for _, method := range []string{"tools/list", "tools/call", "resources/read", "prompts/get", "ping"} {
		resp := rt.Dispatch(context.Background(), request(1, method, ""))
		if resp == nil || resp.Error == nil || resp.Error.Code != CodeNotInitialized {
			t.Errorf("Dispatch(%s) before initialize = %+v, want NotInitialized", method, resp)
		}
	}
	if stub.calls.Load() != 0 {
		t.Errorf("service calls = %d, want 0", stub.calls.Load())
	}
}

func TestRouter_InitializeHandshake(t *testing.T) {
	rt := newTestRouter(&stubService{})

	resp := rt.Dispatch(context.Background(), request(1, "initialize", `{"protocolVersion":"2024-11-05"}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("initialize response = %+v", resp)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result type = %T", resp.Result)
	}
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("protocolVersion = %v, want %s", result["protocolVersion"], ProtocolVersion)
	}
	if _, ok := result["serverInfo"]; !ok {
		t.Error("initialize result has no serverInfo")
	}

	// The handshake notification moves the session to ready.
	rt.Dispatch(context.Background(), notification("notifications/initialized"))

	resp = rt.Dispatch(context.Background(), request(2, "tools/list", ""))
	if resp == nil || resp.Error != nil {
		t.Errorf("tools/list after handshake = %+v, want success", resp)
	}
}

func TestRouter_DoubleInitializeRejected(t *testing.T) {
	rt := initializedRouter(t, &stubService{})

	resp := rt.Dispatch(context.Background(), request(3, "initialize", `{}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("second initialize = %+v, want InvalidRequest", resp)
	}
}

func TestRouter_NotificationsGetNoResponse(t *testing.T) {
	rt := initializedRouter(t, &stubService{})

	for _, method := range []string{"notifications/initialized", "notifications/cancelled", "unknown/thing"} {
		if resp := rt.Dispatch(context.Background(), notification(method)); resp != nil {
			t.Errorf("Dispatch(notification %s) = %+v, want nil", method, resp)
		}
	}
}

func TestRouter_MethodNotFound(t *testing.T) {
	rt := initializedRouter(t, &stubService{})

	resp := rt.Dispatch(context.Background(), request(4, "markets/teleport", ""))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("unknown method = %+v, want MethodNotFound", resp)
	}
}

func TestRouter_ShutdownClosesSession(t *testing.T) {
	rt := initializedRouter(t, &stubService{})

	resp := rt.Dispatch(context.Background(), request(5, "shutdown", ""))
	if resp == nil || resp.Error != nil {
		t.Fatalf("shutdown response = %+v, want success", resp)
	}
	if !rt.Closed() {
		t.Error("router not closed after shutdown")
	}

	// Messages after shutdown are dropped silently.
	if resp := rt.Dispatch(context.Background(), request(6, "tools/list", "")); resp != nil {
		t.Errorf("Dispatch after shutdown = %+v, want nil", resp)
	}
}

func TestRouter_ToolsList(t *testing.T) {
	rt := initializedRouter(t, &stubService{})

	resp := rt.Dispatch(context.Background(), request(2, "tools/list", ""))
	if resp == nil || resp.Error != nil {
		t.Fatalf("tools/list = %+v", resp)
	}

	tools := resp.Result.(map[string]interface{})["tools"].([]Tool)
	want := map[string]bool{
		"get_active_markets":   false,
		"get_market_details":   false,
		"search_markets":       false,
		"get_market_prices":    false,
		"get_trending_markets": false,
	}
	for _, tool := range tools {
		if _, ok := want[tool.Name]; !ok {
			t.Errorf("unexpected tool %q", tool.Name)
		}
		want[tool.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %q missing from tools/list", name)
		}
	}
}

func TestRouter_ToolCallReturnsContent(t *testing.T) {
	stub := &stubService{markets: []polymarket.Market{{ID: "a", Question: "?"}}}
	rt := initializedRouter(t, stub)

	resp := rt.Dispatch(context.Background(), request(2, "tools/call",
		`{"name":"get_active_markets","arguments":{"limit":5}}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("tools/call = %+v", resp)
	}

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	if len(content) != 1 || content[0]["type"] != "text" {
		t.Fatalf("content = %+v", content)
	}
	if text := content[0]["text"].(string); !strings.Contains(text, `"id": "a"`) {
		t.Errorf("content text = %q, want embedded market JSON", text)
	}
}

func TestRouter_ToolCallValidatesBeforeFetching(t *testing.T) {
	tests := []struct {
		name   string
		params string
	}{
		{name: "missing market_id", params: `{"name":"get_market_details","arguments":{}}`},
		{name: "blank market_id", params: `{"name":"get_market_prices","arguments":{"market_id":"  "}}`},
		{name: "missing keyword", params: `{"name":"search_markets","arguments":{"limit":5}}`},
		{name: "wrong argument type", params: `{"name":"get_active_markets","arguments":{"limit":"ten"}}`},
		{name: "unknown tool", params: `{"name":"place_bet","arguments":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubService{}
			rt := initializedRouter(t, stub)

			resp := rt.Dispatch(context.Background(), request(2, "tools/call", tt.params))
			if resp == nil || resp.Error == nil || resp.Error.Code != CodeInvalidParams {
				t.Fatalf("tools/call = %+v, want InvalidParams", resp)
			}
			if stub.calls.Load() != 0 {
				t.Errorf("service calls = %d, want 0 (validation short-circuits)", stub.calls.Load())
			}
		})
	}
}

func TestRouter_SearchToolTakesKeyword(t *testing.T) {
	stub := &stubService{markets: []polymarket.Market{{ID: "a", Question: "Will the election be close?"}}}
	rt := initializedRouter(t, stub)

	resp := rt.Dispatch(context.Background(), request(2, "tools/call",
		`{"name":"search_markets","arguments":{"keyword":"election"}}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("search_markets with keyword = %+v, want success", resp)
	}
	if stub.calls.Load() != 1 {
		t.Errorf("service calls = %d, want 1", stub.calls.Load())
	}
}

func TestRouter_DomainErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "not found", err: polymarket.ErrNotFound, wantCode: CodeNotFound},
		{name: "missing price data", err: polymarket.ErrMissingPriceData, wantCode: CodeMissingPriceData},
		{name: "retry exhausted", err: polymarket.ErrRetryExhausted, wantCode: CodeUpstreamFailure},
		{name: "status error", err: &polymarket.StatusError{StatusCode: 403}, wantCode: CodeUpstreamFailure},
		{name: "parse error", err: &polymarket.ParseError{Msg: "bad body"}, wantCode: CodeUpstreamParse},
		{name: "unknown error", err: errors.New("boom"), wantCode: CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := initializedRouter(t, &stubService{err: tt.err})

			resp := rt.Dispatch(context.Background(), request(2, "tools/call",
				`{"name":"get_market_details","arguments":{"market_id":"x"}}`))
			if resp == nil || resp.Error == nil {
				t.Fatalf("tools/call = %+v, want error", resp)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("error code = %d, want %d", resp.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestRouter_PanicRecovery(t *testing.T) {
	rt := initializedRouter(t, panickingService{})

	resp := rt.Dispatch(context.Background(), request(2, "tools/call",
		`{"name":"get_active_markets","arguments":{}}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Errorf("panicking handler = %+v, want InternalError response", resp)
	}
}

type panickingService struct{}

func (panickingService) ActiveMarkets(context.Context, int) ([]polymarket.Market, error) {
	panic("unexpected state")
}
func (panickingService) MarketByID(context.Context, string) (polymarket.Market, error) {
	panic("unexpected state")
}
func (panickingService) Search(context.Context, string, int) ([]polymarket.Market, error) {
	panic("unexpected state")
}
func (panickingService) Prices(context.Context, string) ([]polymarket.MarketPrice, error) {
	panic("unexpected state")
}
func (panickingService) Trending(context.Context, int) ([]polymarket.Market, error) {
	panic("unexpected state")
}

func TestRouter_ResourcesListAndRead(t *testing.T) {
	stub := &stubService{markets: []polymarket.Market{{ID: "a", Question: "?"}}}
	rt := initializedRouter(t, stub)

	resp := rt.Dispatch(context.Background(), request(2, "resources/list", ""))
	if resp == nil || resp.Error != nil {
		t.Fatalf("resources/list = %+v", resp)
	}
	resources := resp.Result.(map[string]interface{})["resources"].([]Resource)
	if len(resources) != 3 {
		t.Errorf("len(resources) = %d, want 3", len(resources))
	}

	for _, resource := range resources {
		if strings.Contains(resource.URI, "//") {
			t.Errorf("resource URI %q uses a double-slash scheme, want single-colon form", resource.URI)
		}
	}

	resp = rt.Dispatch(context.Background(), request(3, "resources/read", `{"uri":"markets:active"}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("resources/read = %+v", resp)
	}
	contents := resp.Result.(map[string]interface{})["contents"].([]map[string]interface{})
	if len(contents) != 1 || contents[0]["mimeType"] != "application/json" {
		t.Errorf("contents = %+v", contents)
	}

	resp = rt.Dispatch(context.Background(), request(4, "resources/read", `{"uri":"markets:trending"}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("resources/read trending = %+v", resp)
	}

	resp = rt.Dispatch(context.Background(), request(5, "resources/read", `{"uri":"market:a"}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("resources/read market:a = %+v", resp)
	}

	resp = rt.Dispatch(context.Background(), request(6, "resources/read", `{"uri":"bogus:thing"}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeNotFound {
		t.Errorf("unknown resource = %+v, want NotFound", resp)
	}
}

func TestRouter_PromptsList(t *testing.T) {
	rt := initializedRouter(t, &stubService{})

	resp := rt.Dispatch(context.Background(), request(2, "prompts/list", ""))
	if resp == nil || resp.Error != nil {
		t.Fatalf("prompts/list = %+v", resp)
	}
	prompts := resp.Result.(map[string]interface{})["prompts"].([]Prompt)
	if len(prompts) != 3 {
		t.Fatalf("len(prompts) = %d, want 3", len(prompts))
	}

	args := make(map[string][]string)
	for _, prompt := range prompts {
		for _, arg := range prompt.Arguments {
			args[prompt.Name] = append(args[prompt.Name], arg.Name)
		}
	}
	if got := args["find_arbitrage"]; len(got) != 2 || got[0] != "keyword" || got[1] != "limit" {
		t.Errorf("find_arbitrage arguments = %v, want [keyword limit]", got)
	}
	if got := args["market_summary"]; len(got) != 2 || got[0] != "category" || got[1] != "limit" {
		t.Errorf("market_summary arguments = %v, want [category limit]", got)
	}
	if got := args["analyze_market"]; len(got) != 1 || got[0] != "market_id" {
		t.Errorf("analyze_market arguments = %v, want [market_id]", got)
	}
}

func promptText(t *testing.T, resp *Response) string {
	t.Helper()

	if resp == nil || resp.Error != nil {
		t.Fatalf("prompts/get = %+v, want success", resp)
	}
	messages := resp.Result.(map[string]interface{})["messages"].([]map[string]interface{})
	return messages[0]["content"].(map[string]interface{})["text"].(string)
}

func TestRouter_AnalyzeMarketPromptEmbedsFetchedData(t *testing.T) {
	stub := &stubService{
		market: polymarket.Market{ID: "0x1", Question: "Will it rain?", Liquidity: 1000, Volume: 5000, Active: true},
		prices: []polymarket.MarketPrice{{MarketID: "0x1", Outcome: "Yes", Price: 0.65}},
	}
	rt := initializedRouter(t, stub)

	resp := rt.Dispatch(context.Background(), request(3, "prompts/get",
		`{"name":"analyze_market","arguments":{"market_id":"0x1"}}`))
	text := promptText(t, resp)

	if stub.calls.Load() != 2 {
		t.Errorf("service calls = %d, want 2 (market details and prices)", stub.calls.Load())
	}
	if !strings.Contains(text, "Will it rain?") {
		t.Errorf("prompt text does not embed the market question: %q", text)
	}
	if !strings.Contains(text, "0.65") {
		t.Errorf("prompt text does not embed the fetched prices: %q", text)
	}
}

func TestRouter_FindArbitragePromptSearchesMarkets(t *testing.T) {
	stub := &stubService{markets: []polymarket.Market{
		{ID: "a", Question: "Will the election be close?"},
		{ID: "c", Question: "Will it rain during the election?"},
	}}
	rt := initializedRouter(t, stub)

	resp := rt.Dispatch(context.Background(), request(3, "prompts/get",
		`{"name":"find_arbitrage","arguments":{"keyword":"election","limit":5}}`))
	text := promptText(t, resp)

	if stub.calls.Load() != 1 {
		t.Errorf("service calls = %d, want 1 (keyword search)", stub.calls.Load())
	}
	if !strings.Contains(text, "Keyword: election") || !strings.Contains(text, "Markets found: 2") {
		t.Errorf("prompt text missing search context: %q", text)
	}
	if !strings.Contains(text, "Will the election be close?") {
		t.Errorf("prompt text does not embed the found markets: %q", text)
	}
}

func TestRouter_MarketSummaryPromptFetchesTrendingAndActive(t *testing.T) {
	stub := &stubService{markets: []polymarket.Market{
		{ID: "b", Question: "Will BTC close above 100k?", Category: "Crypto", Volume: 900},
		{ID: "a", Question: "Will it snow?", Category: "Weather", Volume: 100},
	}}
	rt := initializedRouter(t, stub)

	resp := rt.Dispatch(context.Background(), request(3, "prompts/get",
		`{"name":"market_summary","arguments":{}}`))
	text := promptText(t, resp)

	if stub.calls.Load() != 2 {
		t.Errorf("service calls = %d, want 2 (trending and active)", stub.calls.Load())
	}
	if !strings.Contains(text, "Top Trending Markets") || !strings.Contains(text, "Will BTC close above 100k?") {
		t.Errorf("prompt text missing market data: %q", text)
	}

	// A category filter narrows the embedded lists.
	resp = rt.Dispatch(context.Background(), request(4, "prompts/get",
		`{"name":"market_summary","arguments":{"category":"weather","limit":5}}`))
	text = promptText(t, resp)
	if strings.Contains(text, "Will BTC close above 100k?") {
		t.Errorf("category filter did not exclude other categories: %q", text)
	}
	if !strings.Contains(text, "Will it snow?") {
		t.Errorf("category filter dropped matching markets: %q", text)
	}
}

func TestRouter_PromptValidationAndErrors(t *testing.T) {
	stub := &stubService{}
	rt := initializedRouter(t, stub)

	// Missing required arguments short-circuit before any fetch.
	for _, params := range []string{
		`{"name":"analyze_market","arguments":{}}`,
		`{"name":"find_arbitrage","arguments":{"limit":5}}`,
	} {
		resp := rt.Dispatch(context.Background(), request(3, "prompts/get", params))
		if resp == nil || resp.Error == nil || resp.Error.Code != CodeInvalidParams {
			t.Errorf("prompts/get %s = %+v, want InvalidParams", params, resp)
		}
	}
	if stub.calls.Load() != 0 {
		t.Errorf("service calls = %d, want 0", stub.calls.Load())
	}

	resp := rt.Dispatch(context.Background(), request(4, "prompts/get", `{"name":"nonexistent"}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeNotFound {
		t.Errorf("unknown prompt = %+v, want NotFound", resp)
	}

	// Fetch failures map to domain error codes.
	failing := &stubService{err: polymarket.ErrNotFound}
	rt = initializedRouter(t, failing)
	resp = rt.Dispatch(context.Background(), request(5, "prompts/get",
		`{"name":"analyze_market","arguments":{"market_id":"missing"}}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeNotFound {
		t.Errorf("prompts/get with failing fetch = %+v, want NotFound", resp)
	}
}

func TestRouter_InvalidJSONRPCVersion(t *testing.T) {
	rt := initializedRouter(t, &stubService{})

	req := &Request{JSONRPC: "1.0", ID: json.RawMessage("7"), Method: "ping"}
	resp := rt.Dispatch(context.Background(), req)
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("jsonrpc 1.0 request = %+v, want InvalidRequest", resp)
	}
}
