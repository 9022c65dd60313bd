package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/dexcache/pkg/models"
)

// fakeDescriber serves canned lookups.
type fakeDescriber struct {
	results map[string]models.LookupResult
	stats   models.CacheStats
}

func (f *fakeDescriber) Lookup(_ context.Context, name string) (models.LookupResult, error) {
	res, ok := f.results[name]
	if !ok {
		return models.LookupResult{}, models.Errorf(models.KindNotFound, "species.fetch", "species %q not found", name)
	}
	return res, nil
}

func (f *fakeDescriber) CacheStats() (models.CacheStats, error) { return f.stats, nil }

// fakeHistory implements History for testing.
type fakeHistory struct {
	events    []models.LookupEvent
	summaries []models.LookupSummary
	err       error
	lastLimit int
	lastName  string
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]models.LookupEvent, error) {
	f.lastLimit = limit
	return f.events, f.err
}

func (f *fakeHistory) Summary(_ context.Context, name string) ([]models.LookupSummary, error) {
	f.lastName = name
	return f.summaries, f.err
}

func newDescriber() *fakeDescriber {
	return &fakeDescriber{
		results: map[string]models.LookupResult{
			"articuno": {
				Name: "articuno", DisplayName: "Articuno", Habitat: "rare", Legendary: true,
				Description: "Legendary bird, it is.", OriginalDescription: "A legendary bird.",
				Dialect: models.DialectYoda, Translated: true,
			},
			"zubat": {
				Name: "zubat", DisplayName: "Zubat", Habitat: "cave",
				Description: "It lives in caves.", Dialect: models.DialectShakespeare,
			},
		},
		stats: models.CacheStats{Entries: 2, Capacity: 1000, Hits: 3, Misses: 1},
	}
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`7`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(newDescriber(), nil, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "dexcache" {
		t.Errorf("server name = %s, want dexcache", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(newDescriber(), &fakeHistory{}, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"dexcache_describe", "dexcache_cache_stats", "dexcache_history", "dexcache_summary"} {
		if !names[want] {
			t.Errorf("missing tool: %s", want)
		}
	}
}

func TestToolsListWithoutHistory(t *testing.T) {
	srv := New(newDescriber(), nil, "test", nil)
	resp := sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`2`), Method: "tools/list"})

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != 2 {
		t.Errorf("got %d tools, want 2", len(result.Tools))
	}
}

func TestToolCallDescribe(t *testing.T) {
	srv := New(newDescriber(), nil, "test", nil)

	result := callTool(t, srv, "dexcache_describe", `{"name":"articuno"}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	text := result.Content[0].Text
	for _, want := range []string{"Articuno", "Legendary: true", "yoda", "Legendary bird, it is."} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got: %s", want, text)
		}
	}
}

func TestToolCallDescribeRaw(t *testing.T) {
	srv := New(newDescriber(), nil, "test", nil)

	text := callTool(t, srv, "dexcache_describe", `{"name":"articuno","raw":true}`).Content[0].Text
	if !strings.Contains(text, "A legendary bird.") || strings.Contains(text, "it is.") {
		t.Errorf("expected original description, got: %s", text)
	}
	if !strings.Contains(text, "Dialect:   none") {
		t.Errorf("expected no dialect, got: %s", text)
	}
}

func TestToolCallDescribeFallback(t *testing.T) {
	srv := New(newDescriber(), nil, "test", nil)

	result := callTool(t, srv, "dexcache_describe", `{"name":"zubat"}`)
	if !strings.Contains(result.Content[0].Text, "original text") {
		t.Errorf("expected fallback marker, got: %s", result.Content[0].Text)
	}
}

func TestToolCallDescribeErrors(t *testing.T) {
	srv := New(newDescriber(), nil, "test", nil)

	result := callTool(t, srv, "dexcache_describe", `{"name":"missingno"}`)
	if !result.IsError || !strings.Contains(result.Content[0].Text, "No species named missingno") {
		t.Errorf("unexpected result: %+v", result)
	}

	result = callTool(t, srv, "dexcache_describe", `{}`)
	if !result.IsError || !strings.Contains(result.Content[0].Text, "name is required") {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestToolCallCacheStats(t *testing.T) {
	srv := New(newDescriber(), nil, "test", nil)

	text := callTool(t, srv, "dexcache_cache_stats", `{}`).Content[0].Text
	if !strings.Contains(text, "2 / 1000") {
		t.Errorf("expected entries in output, got: %s", text)
	}
	if !strings.Contains(text, "75.0%") {
		t.Errorf("expected 75.0%% hit rate, got: %s", text)
	}
}

func TestToolCallHistory(t *testing.T) {
	h := &fakeHistory{events: []models.LookupEvent{
		{Name: "zubat", Outcome: models.OutcomeMiss, Dialect: models.DialectShakespeare, Fallback: true, Duration: 42 * time.Millisecond, CreatedAt: time.Now()},
	}}
	srv := New(newDescriber(), h, "test", nil)

	text := callTool(t, srv, "dexcache_history", `{"limit":5}`).Content[0].Text
	if !strings.Contains(text, "zubat") || !strings.Contains(text, "shakespeare*") {
		t.Errorf("unexpected history output: %s", text)
	}
	if h.lastLimit != 5 {
		t.Errorf("limit = %d, want 5", h.lastLimit)
	}

	callTool(t, srv, "dexcache_history", ``)
	if h.lastLimit != 20 {
		t.Errorf("default limit = %d, want 20", h.lastLimit)
	}
}

func TestToolCallSummary(t *testing.T) {
	h := &fakeHistory{summaries: []models.LookupSummary{
		{Name: "articuno", RequestCount: 4, Hits: 3, Misses: 1, LastSeen: time.Now()},
	}}
	srv := New(newDescriber(), h, "test", nil)

	text := callTool(t, srv, "dexcache_summary", `{"name":" articuno "}`).Content[0].Text
	if !strings.Contains(text, "articuno") {
		t.Errorf("unexpected summary output: %s", text)
	}
	if h.lastName != "articuno" {
		t.Errorf("name filter = %q, want articuno", h.lastName)
	}
}

func TestToolCallHistoryError(t *testing.T) {
	srv := New(newDescriber(), &fakeHistory{err: errors.New("db closed")}, "test", nil)

	result := callTool(t, srv, "dexcache_summary", `{}`)
	if !result.IsError || !strings.Contains(result.Content[0].Text, "db closed") {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestToolCallHistoryDisabled(t *testing.T) {
	srv := New(newDescriber(), nil, "test", nil)

	result := callTool(t, srv, "dexcache_history", `{}`)
	if !result.IsError || !strings.Contains(result.Content[0].Text, "unknown tool") {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := New(newDescriber(), nil, "test", nil)
	resp := sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`9`), Method: "resources/list"})

	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("expected method not found, got %+v", resp.Error)
	}
}

func TestParseError(t *testing.T) {
	srv := New(newDescriber(), nil, "test", nil)

	var out bytes.Buffer
	if err := srv.Run(context.Background(), strings.NewReader("{not json\n"), &out); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp.Error)
	}
}

func TestNotificationHasNoResponse(t *testing.T) {
	srv := New(newDescriber(), nil, "test", nil)

	var out bytes.Buffer
	in := `{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n"
	if err := srv.Run(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got: %s", out.String())
	}
}
