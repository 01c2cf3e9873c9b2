package kit

import (
	"context"
	"errors"
	"testing"
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
	if err != nil || resp != "ok" {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	want := []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}
	if len(order) != len(want) {
		t.Fatalf("order: got %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], want[i])
		}
	}
}

func TestEnsureTraceID(t *testing.T) {
	// WHAT: A missing trace id is generated; an incoming one is kept.
	// WHY: MCP tool logs need a trace id to correlate a call's lines.
	var seen string
	ep := EnsureTraceID(func() string { return "mcp_1" })(func(ctx context.Context, _ any) (any, error) {
		seen = GetTraceID(ctx)
		return nil, nil
	})

	ep(context.Background(), nil)
	if seen != "mcp_1" {
		t.Errorf("generated: got %q", seen)
	}
	ep(WithTraceID(context.Background(), "abc"), nil)
	if seen != "abc" {
		t.Errorf("incoming: got %q", seen)
	}
}

func TestWithLogging_PropagatesError(t *testing.T) {
	errFail := errors.New("fail")
	ep := WithLogging(nil, "test")(func(context.Context, any) (any, error) { return nil, errFail })
	if _, err := ep(context.Background(), nil); !errors.Is(err, errFail) {
		t.Fatalf("error: got %v", err)
	}
}

func TestContext_Values(t *testing.T) {
	ctx := context.Background()
	if GetActor(ctx) != "" || GetTraceID(ctx) != "" {
		t.Fatal("empty context should yield empty values")
	}
	if GetTransport(ctx) != "http" {
		t.Fatalf("default transport: got %q", GetTransport(ctx))
	}
	ctx = WithActor(WithTraceID(WithTransport(ctx, "cli"), "trc_1"), "admin")
	if GetActor(ctx) != "admin" || GetTraceID(ctx) != "trc_1" || GetTransport(ctx) != "cli" {
		t.Fatalf("values: actor=%q trace=%q transport=%q", GetActor(ctx), GetTraceID(ctx), GetTransport(ctx))
	}
}
