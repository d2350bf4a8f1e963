package server

import "github.com/gorilla/websocket"

// recordViolation counts a policy breach against c, reports it, and
// terminates the connection once MaxViolations is reached. The error is
// queued before teardown so the write pump still delivers it.
func (cs *ChatServer) recordViolation(c *Client, id int, reason string) {
	if c.isClosed() {
		return
	}

	n := int(c.violations.Add(1))
	cs.stats.Incr(metricErrors)
	c.log.Warnw("policy violation", "reason", reason, "violations", n)
	c.queueMessage(ErrViolation(id, reason, n))

	if n >= cs.opts.MaxViolations {
		cs.disconnect(c, websocket.ClosePolicyViolation, "too many policy violations")
	}
}
