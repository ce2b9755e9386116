package stats

import (
	"strings"
	"testing"
	"time"
)

func TestParseSample(t *testing.T) {
	tests := []struct {
		line   string
		name   string
		labels map[string]string
		value  float64
		ok     bool
	}{
		{"threadhelper_gateway_connections 12", "threadhelper_gateway_connections", nil, 12, true},
		{`threadhelper_removals_total{reason="duplicate"} 3`, "threadhelper_removals_total",
			map[string]string{"reason": "duplicate"}, 3, true},
		{`threadhelper_triggers_total{outcome="handled",type="CommentCreate"} 7 1700000000000`,
			"threadhelper_triggers_total", map[string]string{"outcome": "handled", "type": "CommentCreate"}, 7, true},
		{`m{msg="a \"quoted\", value"} 1`, "m", map[string]string{"msg": `a "quoted", value`}, 1, true},
		{`m{reason=duplicate} 1`, "", nil, 0, false},
		{"m notanumber", "", nil, 0, false},
		{"lonely", "", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseSample(tt.line)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.name != tt.name || got.value != tt.value {
				t.Fatalf("got %s=%v, want %s=%v", got.name, got.value, tt.name, tt.value)
			}
			if len(got.labels) != len(tt.labels) {
				t.Fatalf("labels = %v, want %v", got.labels, tt.labels)
			}
			for k, v := range tt.labels {
				if got.labels[k] != v {
					t.Fatalf("label %s = %q, want %q", k, got.labels[k], v)
				}
			}
		})
	}
}

func TestScraper_LabelDeltas(t *testing.T) {
	before := `# HELP threadhelper_removals_total Removals.
threadhelper_removals_total{reason="duplicate"} 2
threadhelper_gateway_connections 1
`
	after := `threadhelper_removals_total{reason="duplicate"} 5
threadhelper_removals_total{reason="top_level"} 4
threadhelper_gateway_connections 3
`
	s := NewScraper("http://unused/metrics", time.Second)
	for _, body := range []string{before, after} {
		samples, err := parseExposition(strings.NewReader(body))
		if err != nil {
			t.Fatalf("parseExposition: %v", err)
		}
		s.record(samples)
	}

	got := s.labelDeltas("threadhelper_removals_total", "reason")
	if got["duplicate"] != 3 || got["top_level"] != 4 || len(got) != 2 {
		t.Fatalf("removal deltas = %v", got)
	}
	if s.peakConn != 3 {
		t.Fatalf("peakConn = %v, want 3", s.peakConn)
	}
}

func TestCollector_Observe(t *testing.T) {
	c := NewCollector()
	c.Observe("CommentCreate", "", time.Millisecond)
	c.Observe("CommentCreate", "publish_failed", 2*time.Millisecond)
	c.Observe("Bogus", "invalid_trigger", time.Millisecond)
	c.Observe("", "parse_error", 0)

	codes := c.ErrorCodes()
	if codes["publish_failed"] != 1 || codes["invalid_trigger"] != 1 {
		t.Fatalf("error codes = %v", codes)
	}
	if _, ok := codes["parse_error"]; ok {
		t.Fatal("a reply with no frame waiting should not count toward error codes")
	}
	if len(c.replies["CommentCreate"]) != 2 || c.rejected["CommentCreate"] != 1 {
		t.Fatalf("CommentCreate replies=%d rejected=%d", len(c.replies["CommentCreate"]), c.rejected["CommentCreate"])
	}
	if c.unmatched != 1 {
		t.Fatalf("unmatched = %d, want 1", c.unmatched)
	}
}

func TestSummarize(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	s := summarize(ds)
	if s.n != 100 || s.p50 != 51*time.Millisecond || s.p95 != 95*time.Millisecond ||
		s.p99 != 99*time.Millisecond || s.max != 100*time.Millisecond {
		t.Fatalf("summary = %+v", s)
	}
	if s.avg != 50500*time.Microsecond {
		t.Fatalf("avg = %v, want 50.5ms", s.avg)
	}
	if got := summarize(nil); got.n != 0 {
		t.Fatalf("empty summary = %+v", got)
	}
}
