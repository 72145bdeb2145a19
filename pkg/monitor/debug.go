package monitor

// DebugInfo is the full observable state of a client in one snapshot,
// intended for the debug endpoint and troubleshooting dumps.
type DebugInfo struct {
	ClientID         string         `json:"client_id"`
	State            ConnState      `json:"state"`
	StreamURL        string         `json:"stream_url"`
	Progress         Progress       `json:"progress"`
	Stats            Stats          `json:"stats"`
	QueueDepth       int            `json:"queue_depth"`
	QueueUnprocessed int            `json:"queue_unprocessed"`
	Subscribers      map[string]int `json:"subscribers"`
}

// DebugSnapshot assembles a DebugInfo from the client's current state.
func (c *Client) DebugSnapshot() DebugInfo {
	return DebugInfo{
		ClientID:         c.id,
		State:            c.State(),
		StreamURL:        c.url,
		Progress:         c.ProgressSnapshot(),
		Stats:            c.StatsSnapshot(),
		QueueDepth:       c.queue.depth(),
		QueueUnprocessed: c.queue.unprocessed(),
		Subscribers:      c.dispatcher.SubscriberCounts(),
	}
}
