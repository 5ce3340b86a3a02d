package rest

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/geocoder89/surveyhub/internal/remote"
)

// backoff returns the wait before the next refresh attempt after a transient
// failure.
func backoff(attempt int) time.Duration {
	base := 2 * time.Second

	capDelay := 2 * time.Minute
	// attempt=0 => 2s
	// attempt=1 => 4s
	// attempt=2 => 8s

	multiple := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(base) * multiple)

	if delay > capDelay {
		delay = capDelay
	}

	// small jitter (0–250ms) so many clients do not retry in lockstep
	delay += time.Duration(rand.Intn(250)) * time.Millisecond
	return delay
}

// AutoRefresh keeps the session fresh until ctx is cancelled. Each tick it
// refreshes a session that expires within the refresh margin; transient
// failures back off exponentially, a rejected refresh token signs out.
func (c *Client) AutoRefresh(ctx context.Context) {
	c.log.Info("session auto-refresh started", "interval", c.interval.String(), "margin", c.margin.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	attempt := 0
	var retryAt time.Time

	for {
		select {
		case <-ctx.Done():
			c.log.Info("session auto-refresh stopped")
			return
		case <-ticker.C:
			if !retryAt.IsZero() && c.now().Before(retryAt) {
				continue
			}

			refreshed, err := c.refreshIfDue(ctx)
			switch {
			case err == nil:
				if refreshed {
					c.log.Debug("session refreshed")
				}
				attempt = 0
				retryAt = time.Time{}
			case errors.Is(err, remote.ErrNotAuthenticated), errors.Is(err, context.Canceled):
				attempt = 0
				retryAt = time.Time{}
			default:
				wait := backoff(attempt)
				attempt++
				retryAt = c.now().Add(wait)
				c.log.Warn("session refresh failed", "err", err, "attempt", attempt, "retry_in", wait.String())
			}
		}
	}
}

func (c *Client) refreshIfDue(ctx context.Context) (bool, error) {
	c.mu.Lock()
	s := copySession(c.session)
	c.mu.Unlock()

	if s == nil || s.RefreshToken == "" || s.ExpiresAt.IsZero() {
		return false, nil
	}
	if c.now().Add(c.margin).Before(s.ExpiresAt) {
		return false, nil
	}

	_, err := c.refresh(ctx, s.RefreshToken)
	return err == nil, err
}
