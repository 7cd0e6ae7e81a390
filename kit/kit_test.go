package kit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}

	expected := []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}
	if len(order) != len(expected) {
		t.Fatalf("order length: got %d, want %d", len(order), len(expected))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], v)
		}
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) {
		return nil, errFail
	}

	noop := func(next Endpoint) Endpoint { return next }
	_, err := Chain(noop)(base)(context.Background(), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestContext_Transport_Default(t *testing.T) {
	if v := GetTransport(context.Background()); v != "http" {
		t.Fatalf("default transport: got %q, want 'http'", v)
	}
	if v := GetTransport(WithTransport(context.Background(), "cli")); v != "cli" {
		t.Fatalf("transport: got %q", v)
	}
}

func TestContext_IDs(t *testing.T) {
	ctx := context.Background()
	if GetRequestID(ctx) != "" || GetTraceID(ctx) != "" || GetRemoteAddr(ctx) != "" {
		t.Fatal("expected empty defaults")
	}
	ctx = WithRequestID(ctx, "req_abc")
	ctx = WithTraceID(ctx, "9f2c01aa")
	ctx = WithRemoteAddr(ctx, "10.0.0.1:5555")
	if v := GetRequestID(ctx); v != "req_abc" {
		t.Fatalf("request_id: got %q", v)
	}
	if v := GetTraceID(ctx); v != "9f2c01aa" {
		t.Fatalf("trace_id: got %q", v)
	}
	if v := GetRemoteAddr(ctx); v != "10.0.0.1:5555" {
		t.Fatalf("remote_addr: got %q", v)
	}
}

func TestRegisterMCPTool(t *testing.T) {
	impl := &mcp.Implementation{Name: "kit-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)

	type echoReq struct {
		Msg string `json:"msg"`
	}
	var sawTransport string
	RegisterMCPTool(srv, &mcp.Tool{
		Name:        "echo",
		Description: "echo back",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req any) (any, error) {
		sawTransport = GetTransport(ctx)
		r := req.(*echoReq)
		if r.Msg == "" {
			return nil, errors.New("msg is required")
		}
		return map[string]string{"msg": r.Msg}, nil
	}, func(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
		var r echoReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &MCPDecodeResult{Request: &r}, nil
	})

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"msg": "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %v", res.GetError())
	}
	if tc := res.Content[0].(*mcp.TextContent); tc.Text != `{"msg":"hi"}` {
		t.Fatalf("content: got %q", tc.Text)
	}
	if sawTransport != "mcp" {
		t.Fatalf("transport: got %q, want mcp", sawTransport)
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected tool error for empty msg")
	}
}
