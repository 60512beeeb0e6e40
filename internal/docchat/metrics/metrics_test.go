package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEngineMetricsCounters(t *testing.T) {
	m := GetEngineMetrics()
	m.Reset()

	m.RecordSessionCreated()
	m.RecordSessionCreated()
	m.RecordSessionClosed(false)
	m.RecordSessionClosed(true)

	m.RecordQuestion(nil)
	m.RecordQuestion(errors.New("boom"))
	m.RecordRetrieval(100*time.Millisecond, nil)
	m.RecordGeneration(500*time.Millisecond, nil)
	m.RecordGenerationRetry()
	m.RecordIndexing(12, nil)

	stats := m.Stats()

	sessions := stats["sessions"].(map[string]interface{})
	if sessions["created"].(uint64) != 2 {
		t.Errorf("expected 2 sessions created, got %v", sessions["created"])
	}
	if sessions["swept"].(uint64) != 1 {
		t.Errorf("expected 1 session swept, got %v", sessions["swept"])
	}
	if sessions["active"].(int64) != 0 {
		t.Errorf("expected 0 active sessions, got %v", sessions["active"])
	}

	questions := stats["questions"].(map[string]interface{})
	if questions["total"].(uint64) != 2 || questions["answers"].(uint64) != 1 || questions["errors"].(uint64) != 1 {
		t.Errorf("unexpected question stats: %v", questions)
	}

	indexing := stats["indexing"].(map[string]interface{})
	if indexing["chunks_indexed"].(uint64) != 12 {
		t.Errorf("expected 12 chunks indexed, got %v", indexing["chunks_indexed"])
	}
}

func TestEngineMetricsExport(t *testing.T) {
	m := GetEngineMetrics()
	m.Reset()

	m.RecordSessionCreated()
	m.RecordQuestion(nil)
	m.RecordRetrieval(100*time.Millisecond, nil)

	out := m.Export("docchat", "")

	if !strings.Contains(out, "docchat_sessions_created_total 1") {
		t.Errorf("expected sessions_created_total in output:\n%s", out)
	}
	if !strings.Contains(out, "docchat_questions_total 1") {
		t.Errorf("expected questions_total in output:\n%s", out)
	}
	if !strings.Contains(out, "docchat_retrieval_duration_seconds_total 0.1") {
		t.Errorf("expected retrieval duration in output:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE docchat_sessions_active gauge") {
		t.Errorf("expected gauge type line in output:\n%s", out)
	}
}

func TestEngineMetricsErrorsDoNotCountDuration(t *testing.T) {
	m := GetEngineMetrics()
	m.Reset()

	m.RecordRetrieval(time.Second, errors.New("search failed"))
	m.RecordGeneration(time.Second, errors.New("llm failed"))

	stats := m.Stats()
	retrieval := stats["retrieval"].(map[string]interface{})
	if retrieval["total_duration_secs"].(float64) != 0 {
		t.Errorf("errored retrieval should not record duration, got %v", retrieval["total_duration_secs"])
	}
	if retrieval["errors"].(uint64) != 1 {
		t.Errorf("expected 1 retrieval error, got %v", retrieval["errors"])
	}
}
