package stats

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Labeled counters broken down in the report, each by its single label.
var breakdowns = []struct {
	metric string
	label  string
	title  string
}{
	{"threadhelper_removals_total", "reason", "Removals by reason"},
	{"threadhelper_locks_total", "kind", "Locks by kind"},
	{"threadhelper_notifications_total", "result", "Notifications by result"},
}

const (
	metricTriggers     = "threadhelper_triggers_total"
	metricConnections  = "threadhelper_gateway_connections"
	metricLatencySum   = "threadhelper_trigger_latency_seconds_sum"
	metricLatencyCount = "threadhelper_trigger_latency_seconds_count"
)

// sample is one parsed exposition line.
type sample struct {
	name   string
	labels map[string]string
	value  float64
}

// key identifies the series of s.
func (s sample) key() string {
	if len(s.labels) == 0 {
		return s.name
	}
	names := make([]string, 0, len(s.labels))
	for n := range s.labels {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(s.name)
	for _, n := range names {
		fmt.Fprintf(&b, ",%s=%s", n, s.labels[n])
	}
	return b.String()
}

// Scraper polls a helper or gateway /metrics endpoint during a run and
// reports how the server-side counters moved.
type Scraper struct {
	url      string
	interval time.Duration
	client   *http.Client

	mu       sync.Mutex
	first    map[string]sample
	last     map[string]sample
	scrapes  int
	peakConn float64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScraper returns a Scraper for url polling every interval.
func NewScraper(url string, interval time.Duration) *Scraper {
	return &Scraper{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		done:     make(chan struct{}),
	}
}

// Start scrapes once, then keeps scraping in the background until ctx is
// done or Stop is called.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.scrape()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.scrape()
				return
			case <-ticker.C:
				s.scrape()
			}
		}
	}()
}

// Stop ends scraping after one final scrape.
func (s *Scraper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Scraper) scrape() {
	resp, err := s.client.Get(s.url)
	if err != nil {
		// Server not up yet.
		return
	}
	defer resp.Body.Close()

	samples, err := parseExposition(resp.Body)
	if err != nil {
		return
	}
	s.record(samples)
}

func (s *Scraper) record(samples []sample) {
	byKey := make(map[string]sample, len(samples))
	for _, sm := range samples {
		byKey[sm.key()] = sm
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.first == nil {
		s.first = byKey
	}
	s.last = byKey
	s.scrapes++
	if c, ok := byKey[metricConnections]; ok && c.value > s.peakConn {
		s.peakConn = c.value
	}
}

// parseExposition reads Prometheus text format, skipping comments and
// lines it cannot parse.
func parseExposition(r io.Reader) ([]sample, error) {
	var out []sample
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if sm, ok := parseSample(line); ok {
			out = append(out, sm)
		}
	}
	return out, sc.Err()
}

// parseSample parses `name{k="v",...} value [timestamp]`.
func parseSample(line string) (sample, bool) {
	var sm sample
	var rest string
	if i := strings.IndexByte(line, '{'); i >= 0 {
		j := strings.LastIndexByte(line, '}')
		if j < i {
			return sample{}, false
		}
		sm.name = line[:i]
		labels, ok := parseLabels(line[i+1 : j])
		if !ok {
			return sample{}, false
		}
		sm.labels = labels
		rest = line[j+1:]
	} else {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return sample{}, false
		}
		sm.name = fields[0]
		rest = strings.Join(fields[1:], " ")
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return sample{}, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return sample{}, false
	}
	sm.value = v
	return sm, true
}

// parseLabels parses `k="v",k2="v2"` with Go-style escapes in values.
func parseLabels(s string) (map[string]string, bool) {
	labels := make(map[string]string)
	for s = strings.TrimSpace(s); s != ""; s = strings.TrimLeft(s, ", ") {
		eq := strings.IndexByte(s, '=')
		if eq <= 0 || eq+1 >= len(s) || s[eq+1] != '"' {
			return nil, false
		}
		name := strings.TrimSpace(s[:eq])
		quoted, err := strconv.QuotedPrefix(s[eq+1:])
		if err != nil {
			return nil, false
		}
		value, err := strconv.Unquote(quoted)
		if err != nil {
			return nil, false
		}
		labels[name] = value
		s = s[eq+1+len(quoted):]
	}
	return labels, true
}

// delta returns how much the series key grew between the first and last
// scrape. A series that first appeared mid-run counts from zero.
func (s *Scraper) delta(key string) float64 {
	return s.last[key].value - s.first[key].value
}

// labelDeltas sums the growth of every series of metric, grouped by label.
func (s *Scraper) labelDeltas(metric, label string) map[string]float64 {
	out := make(map[string]float64)
	for key, sm := range s.last {
		if sm.name != metric {
			continue
		}
		if d := s.delta(key); d != 0 {
			out[sm.labels[label]] += d
		}
	}
	return out
}

// Report prints server-side counter growth over the run.
func (s *Scraper) Report() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scrapes == 0 {
		fmt.Println("\n--- Server Metrics (no data collected) ---")
		return
	}

	fmt.Printf("\n--- Server Metrics (%d scrapes of %s) ---\n", s.scrapes, s.url)
	if _, ok := s.last[metricConnections]; ok {
		fmt.Printf("  Peak runtime connections: %.0f\n", s.peakConn)
	}

	outcomes := make(map[string]float64)
	for key, sm := range s.last {
		if sm.name != metricTriggers {
			continue
		}
		if d := s.delta(key); d != 0 {
			outcomes[sm.labels["type"]+" / "+sm.labels["outcome"]] += d
		}
	}
	printDeltas("Triggers by type / outcome", outcomes)

	for _, b := range breakdowns {
		printDeltas(b.title, s.labelDeltas(b.metric, b.label))
	}

	if n := s.delta(metricLatencyCount); n > 0 {
		avg := s.delta(metricLatencySum) / n
		fmt.Printf("\n  Trigger handling avg: %.4fs over %.0f triggers\n", avg, n)
	}
}

func printDeltas(title string, deltas map[string]float64) {
	if len(deltas) == 0 {
		return
	}
	fmt.Printf("\n  %s:\n", title)
	for _, k := range sortedKeys(deltas) {
		fmt.Printf("    %-32s %8.0f\n", k, deltas[k])
	}
}
