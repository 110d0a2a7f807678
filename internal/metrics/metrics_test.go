package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ImagesGenerated(3)
	m.ImageEncoded()
	m.BatchDone(time.Second, nil)
	m.SetQueueDepth(4)
	m.ObserveFFmpeg(time.Second)
	m.ObserveRequest("face", time.Second)
	m.CacheLookup(true)
	if m.Registry() != nil {
		t.Error("nil metrics returned a registry")
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read exposition: %v", err)
	}
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()
	m.ImagesGenerated(3)
	m.ImagesGenerated(2)
	m.SetQueueDepth(7)
	m.BatchDone(10*time.Millisecond, nil)
	m.BatchDone(0, errors.New("boom"))
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	out := scrape(t, m)
	for _, line := range []string{
		"image_generating 5",
		"job_queue 7",
		"generator_batches_total 2",
		"generator_batches_failed_total 1",
		`cache_lookups_total{result="miss"} 2`,
		`cache_lookups_total{result="hit"} 1`,
		"generator_network_seconds_count 1",
	} {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("exposition missing %q", line)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ImageEncoded()

	if out := scrape(t, m); !strings.Contains(out, "image_encoding 1\n") {
		t.Errorf("exposition missing counter:\n%s", out)
	}
}
