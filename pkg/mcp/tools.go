package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pario-ai/dexcache/pkg/models"
)

type nameArgs struct {
	Name string `json:"name"`
}

type describeArgs struct {
	Name string `json:"name"`
	Raw  bool   `json:"raw"`
}

type limitArgs struct {
	Limit int `json:"limit"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

type tool struct {
	def          ToolDefinition
	handler      toolHandler
	needsHistory bool
}

var allTools = []tool{
	{
		def: ToolDefinition{
			Name:        "dexcache_describe",
			Description: "Look up a species and return its description, rendered in a dialect chosen from its attributes.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"name"},
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Species name as the registry knows it, e.g. pikachu",
					},
					"raw": map[string]any{
						"type":        "boolean",
						"description": "Return the registry's original description instead of the dialect rendering",
					},
				},
			},
		},
		handler: handleDescribe,
	},
	{
		def: ToolDefinition{
			Name:        "dexcache_cache_stats",
			Description: "Show lookup cache statistics (entries, hits, misses, evictions).",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		handler: handleCacheStats,
	},
	{
		def: ToolDefinition{
			Name:        "dexcache_history",
			Description: "List the most recent lookups with their outcome and dialect.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of lookups to return (optional, default 20)",
					},
				},
			},
		},
		handler:      handleHistory,
		needsHistory: true,
	},
	{
		def: ToolDefinition{
			Name:        "dexcache_summary",
			Description: "Show per-species lookup counts, optionally filtered by name.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Filter by species name (optional)",
					},
				},
			},
		},
		handler:      handleSummary,
		needsHistory: true,
	},
}

func (s *Server) tools() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(allTools))
	for _, t := range allTools {
		if t.needsHistory && s.history == nil {
			continue
		}
		defs = append(defs, t.def)
	}
	return defs
}

func (s *Server) tool(name string) (tool, bool) {
	for _, t := range allTools {
		if t.def.Name != name {
			continue
		}
		if t.needsHistory && s.history == nil {
			return tool{}, false
		}
		return t, true
	}
	return tool{}, false
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleDescribe(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args describeArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if strings.TrimSpace(args.Name) == "" {
		return errorResult("name is required")
	}
	res, err := s.describer.Lookup(ctx, args.Name)
	if err != nil {
		return errorResult(describeError(args.Name, err))
	}
	if args.Raw {
		res = res.Plain()
	}
	return textResult(formatResult(res))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats, err := s.describer.CacheStats()
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleHistory(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	args := limitArgs{Limit: 20}
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	events, err := s.history.Recent(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching history: " + err.Error())
	}
	return textResult(formatEvents(events))
}

func handleSummary(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args nameArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	rows, err := s.history.Summary(ctx, strings.TrimSpace(args.Name))
	if err != nil {
		return errorResult("Error fetching summary: " + err.Error())
	}
	return textResult(formatSummary(rows))
}

func describeError(name string, err error) string {
	switch models.KindOf(err) {
	case models.KindNotFound:
		return "No species named " + name + "."
	case models.KindUnavailable, models.KindRateLimited:
		return "The species registry is unavailable, try again later: " + err.Error()
	default:
		return "Lookup failed: " + err.Error()
	}
}
