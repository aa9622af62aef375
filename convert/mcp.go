package convert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docmill/docmill/kit"
)

// RegisterMCP registers conversion tools on an MCP server.
func (c *Converter) RegisterMCP(srv *mcp.Server) {
	c.registerConvertTool(srv)
	c.registerDetectTool(srv)
	c.registerFormatsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- convert ---

type convertReq struct {
	Path string `json:"path"`
}

type convertResp struct {
	Status   string `json:"status"`
	Markdown string `json:"markdown,omitempty"`
	Errors   []any  `json:"errors,omitempty"`
}

func (c *Converter) registerConvertTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docmill_convert",
		Description: "Convert a document file (pdf, docx, pptx, html) to structured Markdown.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to convert"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*convertReq)
		res, err := c.ConvertFile(ctx, r.Path)
		if err != nil {
			return nil, err
		}
		resp := convertResp{Status: string(res.Status)}
		for _, item := range res.Errors {
			resp.Errors = append(resp.Errors, item)
		}
		if res.Status.Usable() && res.Output != nil {
			resp.Markdown = res.Output.Markdown()
		} else if !res.Status.Usable() {
			return nil, fmt.Errorf("conversion of %s failed", r.Path)
		}
		return resp, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r convertReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- detect ---

type detectReq struct {
	Path string `json:"path"`
}

func (c *Converter) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docmill_detect",
		Description: "Detect the format of a document file from its extension and content.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to detect"},
		}, []string{"path"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*detectReq)
		data, err := readHead(r.Path)
		if err != nil {
			return nil, err
		}
		format, err := DetectFormat(r.Path, data)
		if err != nil {
			return nil, err
		}
		return map[string]any{"format": string(format)}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r detectReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- formats ---

func (c *Converter) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docmill_formats",
		Description: "List all supported document formats.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"formats": SupportedFormats()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
