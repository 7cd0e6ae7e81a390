package docpipe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/ocrapi/horosafe"
	"github.com/hazyhaar/ocrapi/kit"
	"github.com/hazyhaar/ocrapi/ocr"
)

// RegisterMCP registers the OCR tools on an MCP server.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerExtractTool(srv)
	p.registerLanguagesTool(srv)
}

// logged logs every call of tool with its transport and duration.
func (p *Pipeline) logged(tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{"tool", tool, "transport", kit.GetTransport(ctx), "duration_ms", time.Since(start).Milliseconds()}
			if err != nil {
				p.logger.Warn("mcp tool failed", append(attrs, "error", err)...)
			} else {
				p.logger.Debug("mcp tool", attrs...)
			}
			return resp, err
		}
	}
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

// --- extract ---

type extractReq struct {
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	Content   string `json:"content"`
	Lang      string `json:"lang"`

	data  []byte
	langs ocr.Languages
}

type extractResp struct {
	Filename    string       `json:"filename"`
	Format      Format       `json:"format"`
	Text        string       `json:"text"`
	Pages       int          `json:"pages"`
	FailedPages int          `json:"failed_pages"`
	Language    string       `json:"language,omitempty"`
	Quality     Quality      `json:"quality"`
	PageResults []PageResult `json:"page_results"`
}

func (p *Pipeline) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "ocr_extract",
		Description: "Extract text from a PNG, JPEG, BMP, TIFF or PDF document with OCR. Pages are joined in order with a newline.",
		InputSchema: inputSchema(map[string]any{
			"content":    map[string]any{"type": "string", "description": "Document bytes, base64 encoded"},
			"filename":   map[string]any{"type": "string", "description": "Original file name, used when the bytes are ambiguous"},
			"media_type": map[string]any{"type": "string", "description": "Declared media type, e.g. application/pdf"},
			"lang":       map[string]any{"type": "string", "description": "Language packs, e.g. kor+eng (default: server setting)"},
		}, []string{"content"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*extractReq)
		res, err := p.Extract(ctx, Upload{
			Filename:  r.Filename,
			MediaType: r.MediaType,
			Data:      r.data,
		}, WithLanguages(r.langs))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KindOf(err), err)
		}
		return extractResp{
			Filename:    res.Filename,
			Format:      res.Format,
			Text:        res.Text,
			Pages:       len(res.Pages),
			FailedPages: res.Failed(),
			Language:    res.Language,
			Quality:     res.Quality,
			PageResults: res.Pages,
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r extractReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Content == "" {
			return nil, errors.New("content is required")
		}
		data, err := base64.StdEncoding.DecodeString(r.Content)
		if err != nil {
			return nil, fmt.Errorf("content: %w", err)
		}
		r.data = data
		r.Filename = horosafe.SafeFilename(r.Filename)
		if r.Lang != "" {
			if r.langs, err = ocr.ParseLanguages(r.Lang); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(p.logged(tool.Name))(endpoint), decode)
}

// --- languages ---

func (p *Pipeline) registerLanguagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "ocr_languages",
		Description: "List the default OCR language set and the installed language packs.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return p.Languages(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(p.logged(tool.Name))(endpoint), decode)
}
