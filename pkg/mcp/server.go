// Package mcp serves dexcache lookups and history as MCP tools over stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pario-ai/dexcache/pkg/models"
)

// Describer performs species lookups.
type Describer interface {
	Lookup(ctx context.Context, name string) (models.LookupResult, error)
	CacheStats() (models.CacheStats, error)
}

// History reads recorded lookups. A nil History disables the history tools.
type History interface {
	Recent(ctx context.Context, limit int) ([]models.LookupEvent, error)
	Summary(ctx context.Context, name string) ([]models.LookupSummary, error)
}

// Server is a minimal MCP server speaking line-delimited JSON-RPC 2.0.
type Server struct {
	describer Describer
	history   History
	version   string
	logger    *zap.Logger
}

// New creates an MCP Server. history may be nil.
func New(d Describer, history History, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		describer: d,
		history:   history,
		version:   version,
		logger:    logger,
	}
}

// Run reads requests from r line by line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, Response{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}
		if req.JSONRPC != "2.0" {
			s.writeResponse(w, Response{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &RPCError{Code: CodeInvalidRequest, Message: "jsonrpc must be 2.0"},
			})
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.writeResponse(w, *resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.result(req, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "dexcache", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return s.result(req, map[string]any{})
	case "tools/list":
		return s.result(req, ToolsListResult{Tools: s.tools()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)},
		}
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeInvalidParams, Message: "invalid params"},
		}
	}

	t, ok := s.tool(params.Name)
	if !ok {
		return s.result(req, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	s.logger.Debug("tool call", zap.String("tool", params.Name))
	return s.result(req, t.handler(ctx, s, params.Arguments))
}

func (s *Server) result(req *Request, v any) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: v}
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp marshal", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("mcp write", zap.Error(err))
	}
}
