package feedfilter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/feedfilter/activity"
	"github.com/hazyhaar/feedfilter/kit"
)

// RegisterMCP registers feedfilter tools on an MCP server.
func (f *Filter) RegisterMCP(srv *mcp.Server) {
	f.registerClassifyTool(srv)
	f.registerCategoriesTool(srv)
	f.registerLoadFiltersTool(srv)
	f.registerStoreFiltersTool(srv)
	f.registerUnknownsTool(srv)
}

func (f *Filter) logged(name string) kit.Middleware {
	return kit.Logged(f.logger, name)
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

// --- classify ---

type classifyReq struct {
	HTML string `json:"html"`
}

func (f *Filter) registerClassifyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedfilter_classify",
		Description: "Classify feed activity markup (one activity or a whole feed page) into categories, with the extracted signals.",
		InputSchema: inputSchema(map[string]any{
			"html": map[string]any{"type": "string", "description": "HTML of an activity element or of a feed page"},
		}, []string{"html"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*classifyReq)
		res, err := f.Classify(strings.NewReader(r.HTML))
		if err != nil {
			return nil, err
		}
		return map[string]any{"activities": res}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r classifyReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if strings.TrimSpace(r.HTML) == "" {
			return nil, fmt.Errorf("html is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, f.logged(tool.Name)(endpoint), decode)
}

// --- categories ---

func (f *Filter) registerCategoriesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedfilter_categories",
		Description: "List every activity category with its label and whether it is currently shown.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return map[string]any{"categories": f.Categories(ctx)}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, f.logged(tool.Name)(endpoint), decode)
}

// --- load_filters ---

func (f *Filter) registerLoadFiltersTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedfilter_load_filters",
		Description: "Return the stored exclusion set: the category ids hidden from the feed.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return map[string]any{"filters": f.Filters(ctx).Strings()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, f.logged(tool.Name)(endpoint), decode)
}

// --- store_filters ---

type storeFiltersReq struct {
	Filters []string `json:"filters"`
	Reload  bool     `json:"reload"`
}

func (f *Filter) registerStoreFiltersTool(srv *mcp.Server) {
	ids := make([]string, 0, len(activity.Categories()))
	for _, c := range activity.Categories() {
		ids = append(ids, string(c))
	}
	tool := &mcp.Tool{
		Name:        "feedfilter_store_filters",
		Description: "Replace the exclusion set. With reload, the feed is reloaded so the new set takes effect.",
		InputSchema: inputSchema(map[string]any{
			"filters": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string", "enum": ids},
				"description": "Category ids to hide",
			},
			"reload": map[string]any{"type": "boolean", "description": "Reload the feed after storing"},
		}, []string{"filters"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*storeFiltersReq)
		set, bad := activity.ParseExclusionSet(r.Filters)
		if len(bad) > 0 {
			return nil, fmt.Errorf("unrecognized category ids: %s", strings.Join(bad, ", "))
		}
		var err error
		if r.Reload {
			err = f.Apply(ctx, set)
		} else {
			err = f.StoreFilters(ctx, set)
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "stored", "filters": set.Strings()}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r, err := kit.DecodeArgs[storeFiltersReq](req)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, f.logged(tool.Name)(endpoint), decode)
}

// --- unknowns ---

type unknownsReq struct {
	Limit int `json:"limit"`
}

func (f *Filter) registerUnknownsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedfilter_unknowns",
		Description: "List recently seen activities the classifier could not place, most recent first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum entries (default 20)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*unknownsReq)
		entries, err := f.Unknowns(ctx, r.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"unknowns": entries}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r, err := kit.DecodeArgs[unknownsReq](req)
		if err != nil {
			return nil, err
		}
		if r.Limit <= 0 {
			r.Limit = 20
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, f.logged(tool.Name)(endpoint), decode)
}
