package client

import (
	"context"
	"time"
)

// DefaultWatchInterval is how often Watch polls when no interval is given.
const DefaultWatchInterval = 10 * time.Second

// pollInterval clamps interval to the allowed polling range.
func (c *Client) pollInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	if interval < c.pollMin {
		return c.pollMin
	}
	if interval > c.pollMax {
		return c.pollMax
	}
	return interval
}

// Watch polls a session and calls fn with every observed state until the
// server reports it ended or ctx is done. Only the server decides expiry;
// Watch never ends a session on its own. Transient and network errors are skipped.
func (c *Client) Watch(ctx context.Context, sessionID string, interval time.Duration, fn func(Session)) error {
	ticker := time.NewTicker(c.pollInterval(interval))
	defer ticker.Stop()
	for {
		s, err := c.GetSession(ctx, sessionID)
		switch {
		case err == nil:
			fn(s)
			if !s.Active() {
				return nil
			}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			if apiErr, ok := asAPIError(err); ok && !apiErr.Temporary() {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
