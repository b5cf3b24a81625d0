package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunWorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.Register("index_dir", Ping(false, func(context.Context) error { return nil }))
	c.Register("run_cache", Ping(true, func(context.Context) error { return errors.New("refused") }))

	report := c.Run(context.Background())
	if report.Status != StatusDegraded {
		t.Fatalf("status = %s, want degraded", report.Status)
	}
	if report.Components["run_cache"].Message != "refused" {
		t.Fatalf("components = %+v", report.Components)
	}

	c.Register("result_store", Ping(false, func(context.Context) error { return errors.New("down") }))
	if got := c.Run(context.Background()).Status; got != StatusDown {
		t.Fatalf("status = %s, want down", got)
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("index_dir", Ping(false, func(context.Context) error { return nil }))
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestNamesSorted(t *testing.T) {
	c := NewChecker()
	c.Register("run_cache", Ping(true, func(context.Context) error { return nil }))
	c.Register("index_dir", Ping(false, func(context.Context) error { return nil }))

	names := c.Names()
	if len(names) != 2 || names[0] != "index_dir" || names[1] != "run_cache" {
		t.Fatalf("names = %v", names)
	}
}
