package experiment

import "time"

type EventType string

const (
	EventItem EventType = "item_result"
	EventRun  EventType = "run_summary"
)

// ItemEvent is published once per executed (pipeline, query) pair.
type ItemEvent struct {
	Type        EventType           `json:"type"`
	RunID       string              `json:"run_id"`
	Pipeline    string              `json:"pipeline"`
	Fingerprint string              `json:"fingerprint"`
	QID         string              `json:"qid"`
	Query       string              `json:"query"`
	ExpandedBy  string              `json:"expanded_by,omitempty"`
	Retrieved   int                 `json:"retrieved"`
	TopDocnos   []string            `json:"top_docnos"`
	Values      map[string]*float64 `json:"values"`
	Error       string              `json:"error,omitempty"`
	CacheHit    bool                `json:"cache_hit"`
	LatencyMs   int64               `json:"latency_ms"`
	Timestamp   time.Time           `json:"timestamp"`
}

// RunEvent is published when a run finishes, aborted or not.
type RunEvent struct {
	Type      EventType         `json:"type"`
	RunID     string            `json:"run_id"`
	QuerySet  string            `json:"query_set"`
	Metrics   []string          `json:"metrics"`
	Pipelines []PipelineSummary `json:"pipelines"`
	Aborted   bool              `json:"aborted"`
	StartedAt time.Time         `json:"started_at"`
	Timestamp time.Time         `json:"timestamp"`
}

// topDocnos bounds the ranking carried by an ItemEvent.
const topDocnos = 10

func itemEvent(runID string, it ItemResult) ItemEvent {
	return ItemEvent{
		Type:        EventItem,
		RunID:       runID,
		Pipeline:    it.Pipeline,
		Fingerprint: it.Fingerprint,
		QID:         it.QID,
		Query:       it.Query.Effective(),
		ExpandedBy:  it.Query.ExpandedBy,
		Retrieved:   len(it.Ranking),
		TopDocnos:   it.Ranking.Cutoff(topDocnos).Docnos(),
		Values:      it.Values,
		Error:       it.Err,
		CacheHit:    it.CacheHit,
		LatencyMs:   it.Latency.Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}
}

func runEvent(r *Report) RunEvent {
	return RunEvent{
		Type:      EventRun,
		RunID:     r.RunID,
		QuerySet:  r.QuerySet,
		Metrics:   r.Metrics,
		Pipelines: r.Pipelines,
		Aborted:   r.Aborted,
		StartedAt: r.StartedAt,
		Timestamp: time.Now().UTC(),
	}
}

// Events converts a finished report into the events a run publishes, for
// sinks that were not attached while it ran.
func (r *Report) Events() ([]ItemEvent, RunEvent) {
	items := make([]ItemEvent, len(r.Items))
	for i, it := range r.Items {
		items[i] = itemEvent(r.RunID, it)
	}
	return items, runEvent(r)
}
