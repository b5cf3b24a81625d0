package tracing

import (
	"context"
	"testing"
)

func TestChildInheritsTraceID(t *testing.T) {
	ctx, root := Start(context.Background(), "pipeline", "q1")
	cctx, child := Start(ctx, "stage:bm25", "ignored")
	child.Set("results", 10)
	child.End()
	root.End()

	if child.TraceID != "q1" {
		t.Fatalf("child trace id = %q", child.TraceID)
	}
	if FromContext(cctx) != child {
		t.Fatal("FromContext did not return child span")
	}
	if len(root.children) != 1 {
		t.Fatalf("root has %d children", len(root.children))
	}
}
