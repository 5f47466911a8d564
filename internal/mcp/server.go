package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/strata/internal/ingest"
	"github.com/nickcecere/strata/internal/registry"
	"github.com/nickcecere/strata/internal/retriever"
)

const (
	// MCPVersion is the protocol version we support.
	MCPVersion = "2024-11-05"

	// ServerName is the name of this MCP server.
	ServerName = "strata"

	// maxContentChars caps each parent's text in tool output.
	maxContentChars = 1500
)

// Server answers MCP requests read line by line from in.
type Server struct {
	registry  *registry.Registry
	pipeline  *ingest.Pipeline
	sourceDir string
	version   string

	reader *bufio.Reader
	writer io.Writer

	initialized bool
}

// Options configures a Server.
type Options struct {
	Registry  *registry.Registry
	Pipeline  *ingest.Pipeline
	SourceDir string
	Version   string
	In        io.Reader
	Out       io.Writer
}

// NewServer creates an MCP server.
func NewServer(opts Options) *Server {
	return &Server{
		registry:  opts.Registry,
		pipeline:  opts.Pipeline,
		sourceDir: opts.SourceDir,
		version:   opts.Version,
		reader:    bufio.NewReader(opts.In),
		writer:    opts.Out,
	}
}

// Run processes requests until EOF or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read request: %w", err)
		}
		eof := errors.Is(err, io.EOF)

		if line = strings.TrimSpace(line); line != "" {
			var req Request
			if jerr := json.Unmarshal([]byte(line), &req); jerr != nil {
				s.sendError(nil, ErrorCodeParse, "Parse error", jerr.Error())
			} else {
				s.handleRequest(ctx, req)
			}
		}

		if eof {
			log.Info("MCP server received EOF, shutting down")
			return nil
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req Request) {
	log.Debug("Received request", "method", req.Method, "id", req.ID)

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "notifications/initialized", "initialized":
		s.initialized = true
		return
	case "tools/list":
		result = s.handleListTools()
	case "tools/call":
		result, err = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		if req.IsNotification() {
			return
		}
		s.sendError(req.ID, ErrorCodeMethodNotFound, "Method not found", req.Method)
		return
	}

	if err != nil {
		s.sendError(req.ID, ErrorCodeInvalidParams, "Invalid params", err.Error())
		return
	}
	s.sendResult(req.ID, result)
}

func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, error) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	log.Info("Initializing MCP server", "client", p.ClientInfo.Name, "protocolVersion", p.ProtocolVersion)

	return &InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		ServerInfo:      ServerInfo{Name: ServerName, Version: s.version},
	}, nil
}

func (s *Server) handleListTools() *ListToolsResult {
	one := 1
	collection := Property{
		Type:        "string",
		Description: "Collection name (default: the configured default collection)",
	}
	return &ListToolsResult{Tools: []Tool{
		{
			Name:        "strata_retrieve",
			Description: "Find the passages of a collection most relevant to a natural language query.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"query":      {Type: "string", Description: "The query in natural language"},
					"collection": collection,
					"k":          {Type: "integer", Description: "Number of passages to return", Minimum: &one},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "strata_ingest",
			Description: "Index new source files of a collection, or of every collection when none is given.",
			InputSchema: JSONSchema{
				Type:       "object",
				Properties: map[string]Property{"collection": collection},
			},
		},
		{
			Name:        "strata_collections",
			Description: "List the indexed collections.",
			InputSchema: JSONSchema{Type: "object"},
		},
	}}
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	log.Debug("Calling tool", "name", p.Name, "arguments", p.Arguments)

	switch p.Name {
	case "strata_retrieve":
		return s.toolRetrieve(ctx, p.Arguments), nil
	case "strata_ingest":
		return s.toolIngest(ctx, p.Arguments), nil
	case "strata_collections":
		return s.toolCollections(ctx), nil
	default:
		return textResult(fmt.Sprintf("Unknown tool: %s", p.Name), true), nil
	}
}

func (s *Server) toolRetrieve(ctx context.Context, args map[string]any) *CallToolResult {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return textResult("Error: query is required", true)
	}
	name, _ := args["collection"].(string)

	var opts retriever.RetrieveOptions
	switch k := args["k"].(type) {
	case float64:
		opts.TopK = int(k)
	case string:
		if n, err := strconv.Atoi(k); err == nil {
			opts.TopK = n
		}
	}

	ret, err := s.registry.Lookup(ctx, registry.Named(name))
	if errors.Is(err, registry.ErrNotFound) {
		return textResult(fmt.Sprintf("Collection %q does not exist. Run strata_ingest first.", s.registry.Resolve(registry.Named(name))), true)
	}
	if err != nil {
		return textResult(fmt.Sprintf("Error: %v", err), true)
	}

	results, err := ret.RetrieveWithOptions(ctx, query, opts)
	if err != nil {
		return textResult(fmt.Sprintf("Error: retrieve failed: %v", err), true)
	}
	if len(results) == 0 {
		return textResult("No results found.", false)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d passages in %s:\n\n", len(results), ret.Name())
	for i, r := range results {
		source, _ := r.Metadata[retriever.MetaSource].(string)
		fmt.Fprintf(&sb, "[%d] %s (part %d) - %.1f%% match\n", i+1, source, r.Index+1, r.Score*100)
		content := r.Content
		if len(content) > maxContentChars {
			content = content[:maxContentChars] + "..."
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}
	return textResult(sb.String(), false)
}

func (s *Server) toolIngest(ctx context.Context, args map[string]any) *CallToolResult {
	name, _ := args["collection"].(string)

	var results map[string]ingest.Result
	if name == "" {
		var err error
		results, err = s.pipeline.InitAll(ctx, s.sourceDir)
		if err != nil {
			return textResult(fmt.Sprintf("Error: %v", err), true)
		}
	} else {
		if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
			return textResult(fmt.Sprintf("Error: invalid collection name %q", name), true)
		}
		results = map[string]ingest.Result{
			name: s.pipeline.IngestCollection(ctx, name, filepath.Join(s.sourceDir, name)),
		}
	}

	names := make([]string, 0, len(results))
	for n := range results {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	failed := false
	for _, n := range names {
		r := results[n]
		fmt.Fprintf(&sb, "%s: %s (%d indexed, %d failed)\n", n, r.Status, r.FilesIndexed, r.FilesFailed)
		if r.Status == ingest.StatusFailed {
			failed = true
		}
	}
	if len(names) == 0 {
		sb.WriteString("No collections found.\n")
	}
	return textResult(sb.String(), failed)
}

func (s *Server) toolCollections(ctx context.Context) *CallToolResult {
	colls, err := s.registry.List(ctx)
	if err != nil {
		return textResult(fmt.Sprintf("Error: %v", err), true)
	}
	if len(colls) == 0 {
		return textResult("No collections.", false)
	}

	var sb strings.Builder
	for _, c := range colls {
		fmt.Fprintf(&sb, "%s (updated %s)\n", c.Name, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return textResult(sb.String(), false)
}

func (s *Server) sendResult(id any, result any) {
	s.send(Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) sendError(id any, code int, message, data string) {
	s.send(Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: data},
	})
}

func (s *Server) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Failed to marshal response", "error", err)
		return
	}
	fmt.Fprintln(s.writer, string(data))
}
