package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/threadhelper/threadhelper/loadtest/client"
	"github.com/threadhelper/threadhelper/loadtest/stats"
)

const (
	triggerCommentCreate = "CommentCreate"
	triggerCommentDelete = "CommentDelete"

	// deleteSourceUser marks a comment deleted by its author.
	deleteSourceUser = 1
)

// commentCreate builds a CommentCreate frame for a top-level comment on the
// load test thread. Every connection posts as its own user so the duplicate
// rule only fires from the second frame on.
func commentCreate(subreddit string, conn, seq int) map[string]interface{} {
	return map[string]interface{}{
		"type": triggerCommentCreate,
		"post": map[string]interface{}{
			"id":        "t3_loadtest",
			"title":     "Weekly Referral Thread",
			"permalink": "/r/" + subreddit + "/comments/loadtest/",
			"flair":     map[string]string{"text": "Megathread"},
		},
		"comment": map[string]interface{}{
			"id":        commentID(conn, seq),
			"parent_id": "t3_loadtest",
			"post_id":   "t3_loadtest",
			"body":      fmt.Sprintf("referral code LT%05d", seq),
		},
		"author":    author(conn),
		"subreddit": map[string]string{"id": "t5_loadtest", "name": subreddit},
	}
}

// commentDelete builds a user deletion of the comment sent as seq, which
// exercises the tracked-comment cleanup path.
func commentDelete(subreddit string, conn, seq int) map[string]interface{} {
	return map[string]interface{}{
		"type":       triggerCommentDelete,
		"comment_id": commentID(conn, seq),
		"post_id":    "t3_loadtest",
		"author":     author(conn),
		"subreddit":  map[string]string{"id": "t5_loadtest", "name": subreddit},
		"source":     deleteSourceUser,
	}
}

func commentID(conn, seq int) string { return fmt.Sprintf("t1_lt%d_%d", conn, seq) }

func author(conn int) map[string]string {
	return map[string]string{
		"id":   fmt.Sprintf("t2_lt%d", conn),
		"name": fmt.Sprintf("loadtest_%d", conn),
	}
}

// triggerOptions configures one run.
type triggerOptions struct {
	url          string
	token        string
	subreddit    string
	connections  int
	concurrency  int
	ramp         time.Duration
	perConn      int
	interval     time.Duration
	deleteEvery  int
	hold         time.Duration
	replyTimeout time.Duration
}

// runTriggers ramps up runtime connections, has each push a fixed number of
// trigger frames, then optionally holds the connections idle so heartbeat
// evictions show up. With -per-conn 0 it only measures connection capacity.
func runTriggers(args []string) {
	var o triggerOptions
	fs := flag.NewFlagSet("triggers", flag.ExitOnError)
	fs.StringVar(&o.url, "url", "ws://localhost:8080/triggers", "Gateway WebSocket URL")
	fs.StringVar(&o.token, "token", "", "Bearer token expected by the gateway")
	fs.StringVar(&o.subreddit, "subreddit", "loadtest", "Subreddit name placed in every frame")
	fs.IntVar(&o.connections, "connections", 10, "Number of runtime connections")
	fs.IntVar(&o.concurrency, "concurrency", 50, "Maximum simultaneous upgrade attempts")
	fs.DurationVar(&o.ramp, "ramp", 0, "Spread connection attempts over this duration")
	fs.IntVar(&o.perConn, "per-conn", 100, "Trigger frames sent per connection (0 sends none)")
	fs.DurationVar(&o.interval, "interval", 10*time.Millisecond, "Delay between frames on one connection")
	fs.IntVar(&o.deleteEvery, "delete-every", 0, "Follow every Nth comment with a CommentDelete (0 disables)")
	fs.DurationVar(&o.hold, "hold", 0, "Keep connections open this long after sending")
	fs.DurationVar(&o.replyTimeout, "reply-timeout", 30*time.Second, "Time to wait for outstanding replies")
	metricsURL := fs.String("metrics-url", "http://localhost:9102/metrics", "Prometheus endpoint of the helper or gateway")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	fmt.Printf("Triggers test: %d connections x %d frames to %s (ramp=%s interval=%s hold=%s)\n",
		o.connections, o.perConn, o.url, o.ramp, o.interval, o.hold)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	clients := dialAll(ctx, o, collector)
	fmt.Printf("Connected %d/%d (%d dial errors)\n", len(clients), o.connections, collector.DialErrors())

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(conn int, c *client.Client) {
			defer wg.Done()
			sendFrames(ctx, o, conn, c, collector)
		}(i, c)
	}
	wg.Wait()

	if o.hold > 0 && ctx.Err() == nil {
		dropped := holdOpen(ctx, clients, o.hold)
		fmt.Printf("Dropped during hold: %d/%d\n", dropped, len(clients))
	}

	var sent, acked, rejected int
	for _, c := range clients {
		m := c.GetMetrics()
		sent += m.Sent
		acked += m.Acked
		rejected += m.Rejected
		c.Close()
	}
	scraper.Stop()

	fmt.Printf("\nFrames sent: %d  acked: %d  rejected: %d\n", sent, acked, rejected)
	collector.Report()
}

// dialAll opens the runtime connections, at most o.concurrency at a time,
// spacing attempts evenly over o.ramp.
func dialAll(ctx context.Context, o triggerOptions, collector *stats.Collector) []*client.Client {
	onReply := func(out client.Outcome) {
		collector.Observe(out.Trigger, out.Reply.Code, out.Latency)
	}

	var spacing time.Duration
	if o.connections > 0 {
		spacing = o.ramp / time.Duration(o.connections)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		clients = make([]*client.Client, 0, o.connections)
		sem     = make(chan struct{}, max(o.concurrency, 1))
	)
	for i := 0; i < o.connections && ctx.Err() == nil; i++ {
		if i > 0 && spacing > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(spacing):
			}
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			c, err := client.New(dialCtx, o.url, o.token, onReply)
			if err != nil {
				collector.AddDialError()
				return
			}
			collector.AddConnect(c.GetMetrics().ConnectLatency)
			mu.Lock()
			clients = append(clients, c)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return clients
}

// sendFrames pushes o.perConn comments on c and waits for their replies.
func sendFrames(ctx context.Context, o triggerOptions, conn int, c *client.Client, collector *stats.Collector) {
	if o.perConn == 0 {
		return
	}
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	send := func(trigger string, frame map[string]interface{}) bool {
		if err := c.Send(trigger, frame); err != nil {
			collector.AddSendError()
			return false
		}
		return true
	}

loop:
	for seq := 0; seq < o.perConn; seq++ {
		if !send(triggerCommentCreate, commentCreate(o.subreddit, conn, seq)) {
			break
		}
		if o.deleteEvery > 0 && (seq+1)%o.deleteEvery == 0 {
			if !send(triggerCommentDelete, commentDelete(o.subreddit, conn, seq)) {
				break
			}
		}
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.replyTimeout)
	defer cancel()
	if err := c.WaitIdle(waitCtx); err != nil {
		fmt.Printf("  [conn %d] %v\n", conn, err)
	}
}

// holdOpen keeps clients idle for d, printing how many the gateway has
// dropped every few seconds, and returns the final drop count.
func holdOpen(ctx context.Context, clients []*client.Client, d time.Duration) int {
	alive := func() int {
		n := 0
		for _, c := range clients {
			select {
			case <-c.Done():
			default:
				n++
			}
		}
		return n
	}

	fmt.Printf("Holding %d connections for %s\n", len(clients), d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	status := time.NewTicker(5 * time.Second)
	defer status.Stop()
	for {
		select {
		case <-ctx.Done():
			return len(clients) - alive()
		case <-timer.C:
			return len(clients) - alive()
		case <-status.C:
			fmt.Printf("  [hold] alive: %d/%d\n", alive(), len(clients))
		}
	}
}
