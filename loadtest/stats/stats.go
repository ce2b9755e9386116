// Package stats aggregates trigger replies from many load test connections
// and prints latency and error breakdowns per trigger type.
package stats

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector records connects and trigger replies. It is safe for concurrent
// use by every connection's read loop.
type Collector struct {
	mu         sync.Mutex
	start      time.Time
	connects   []time.Duration
	dialErrors int
	sendErrors int
	replies    map[string][]time.Duration // trigger type -> reply latencies
	rejected   map[string]int             // trigger type -> error replies
	errorCodes map[string]int             // gateway error code -> count
	unmatched  int
	scraper    *Scraper
}

// NewCollector returns an empty Collector whose clock starts now.
func NewCollector() *Collector {
	return &Collector{
		start:      time.Now(),
		replies:    make(map[string][]time.Duration),
		rejected:   make(map[string]int),
		errorCodes: make(map[string]int),
	}
}

// SetScraper attaches a server metrics scraper whose deltas are printed by
// Report.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddConnect records a successful upgrade and how long it took.
func (c *Collector) AddConnect(d time.Duration) {
	c.mu.Lock()
	c.connects = append(c.connects, d)
	c.mu.Unlock()
}

// AddDialError records a failed upgrade.
func (c *Collector) AddDialError() {
	c.mu.Lock()
	c.dialErrors++
	c.mu.Unlock()
}

// AddSendError records a frame that could not be written.
func (c *Collector) AddSendError() {
	c.mu.Lock()
	c.sendErrors++
	c.mu.Unlock()
}

// Observe records one reply to a frame of the given trigger type. code is
// the gateway error code, empty for an ack. A reply with no trigger type
// arrived without a frame waiting for it.
func (c *Collector) Observe(trigger, code string, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if trigger == "" {
		c.unmatched++
		return
	}
	c.replies[trigger] = append(c.replies[trigger], latency)
	if code != "" {
		c.rejected[trigger]++
		c.errorCodes[code]++
	}
}

// Connected returns the number of successful upgrades so far.
func (c *Collector) Connected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.connects)
}

// DialErrors returns the number of failed upgrades so far.
func (c *Collector) DialErrors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialErrors
}

// ErrorCodes returns a copy of the error reply counts keyed by code.
func (c *Collector) ErrorCodes() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.errorCodes))
	for code, n := range c.errorCodes {
		out[code] = n
	}
	return out
}

// Report prints the run summary to stdout.
func (c *Collector) Report() {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:     %s\n", time.Since(c.start).Round(time.Second))
	fmt.Printf("Connected:    %d (dial errors: %d)\n", len(c.connects), c.dialErrors)
	fmt.Printf("Send errors:  %d\n", c.sendErrors)
	if c.unmatched > 0 {
		fmt.Printf("Unmatched:    %d replies with no frame waiting\n", c.unmatched)
	}

	if len(c.connects) > 0 {
		fmt.Println("\n--- Upgrade Latency ---")
		fmt.Println("  " + summarize(c.connects).String())
	}

	if len(c.replies) > 0 {
		fmt.Println("\n--- Reply Latency by Trigger ---")
		for _, trigger := range sortedKeys(c.replies) {
			lat := c.replies[trigger]
			fmt.Printf("  %-14s %s  rejected=%d\n", trigger, summarize(lat), c.rejected[trigger])
		}
	}

	if len(c.errorCodes) > 0 {
		fmt.Println("\n--- Error Replies by Code ---")
		for _, code := range sortedKeys(c.errorCodes) {
			fmt.Printf("  %-16s %d\n", code, c.errorCodes[code])
		}
	}

	if c.scraper != nil {
		c.scraper.Report()
	}
	fmt.Println()
}

// summary is a latency distribution.
type summary struct {
	n                       int
	avg, p50, p95, p99, max time.Duration
}

// summarize computes the distribution of ds. ds is sorted in place.
func summarize(ds []time.Duration) summary {
	if len(ds) == 0 {
		return summary{}
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })

	var total time.Duration
	for _, d := range ds {
		total += d
	}
	n := len(ds)
	return summary{
		n:   n,
		avg: total / time.Duration(n),
		p50: ds[n/2],
		p95: ds[rank(n, 0.95)],
		p99: ds[rank(n, 0.99)],
		max: ds[n-1],
	}
}

// rank is the nearest-rank index of quantile q in n sorted samples.
func rank(n int, q float64) int {
	i := int(math.Ceil(float64(n)*q)) - 1
	if i < 0 {
		return 0
	}
	return i
}

func (s summary) String() string {
	r := func(d time.Duration) time.Duration { return d.Round(time.Microsecond) }
	return fmt.Sprintf("n=%-6d avg=%v p50=%v p95=%v p99=%v max=%v",
		s.n, r(s.avg), r(s.p50), r(s.p95), r(s.p99), r(s.max))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
