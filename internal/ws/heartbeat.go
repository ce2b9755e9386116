package ws

import (
	"log"
	"time"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping
	Timeout  time.Duration // grace period after a missed interval
}

// DefaultHeartbeatConfig returns sensible defaults.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// startHeartbeat pings every connection each Interval and drops those with
// no frame received for Interval + Timeout. It stops when the server shuts
// down.
func (s *Server) startHeartbeat(config HeartbeatConfig) {
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.checkConnections(config, time.Now())
			}
		}
	}()
}

// checkConnections evicts stale connections and pings the rest. The runtime
// answers pings with pongs, which refresh LastSeen in handleConn.
func (s *Server) checkConnections(config HeartbeatConfig, now time.Time) {
	deadline := config.Interval + config.Timeout

	for _, c := range s.conns.All() {
		if idle := now.Sub(c.LastSeen()); idle > deadline {
			log.Printf("ws: heartbeat timeout conn=%s idle=%s", c.ID, idle.Round(time.Second))
			s.RemoveConnection(c)
			continue
		}
		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed conn=%s: %v", c.ID, err)
			s.RemoveConnection(c)
		}
	}
}
