package kafka

import "testing"

type runEvent struct {
	RunID  string  `json:"run_id"`
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
}

func TestDecodeJSON(t *testing.T) {
	ev, err := DecodeJSON[runEvent]([]byte(`{"run_id":"r1","metric":"map","value":0.25}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.RunID != "r1" || ev.Value != 0.25 {
		t.Fatalf("decoded %+v", ev)
	}
	if _, err := DecodeJSON[runEvent]([]byte(`{`)); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}
