package station

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/screenlink/internal/logging"
	"github.com/muurk/screenlink/internal/radio"
	"github.com/muurk/screenlink/internal/wifi"
)

// Radio is the part of radio.Controller the connector needs.
type Radio interface {
	Join(ctx context.Context, req radio.JoinRequest) error
	Disconnect(ctx context.Context) error
	Link(ctx context.Context) (wifi.Link, error)
}

// Config holds the fast-path wait parameters.
type Config struct {
	// Attempts is how many times the link is polled after a join.
	Attempts int
	// AttemptDelay is the wait before each poll.
	AttemptDelay time.Duration
}

// DefaultConfig returns 10 attempts of 500ms.
func DefaultConfig() Config {
	return Config{Attempts: 10, AttemptDelay: 500 * time.Millisecond}
}

// Connector joins the configured network in station mode.
type Connector struct {
	radio Radio
	cfg   Config

	mu   sync.Mutex
	last wifi.Link

	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Connector using r.
func New(r Radio, cfg Config) *Connector {
	return &Connector{
		radio: r,
		cfg:   cfg,
		sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect starts a join and waits up to Attempts*AttemptDelay for the link.
// It returns nil whether or not the link came up in that window; the caller
// keeps polling IsLinked against its own deadline.
//
// Malformed static addressing is not an error: the join falls back to DHCP.
func (c *Connector) Connect(ctx context.Context, creds wifi.Credentials) error {
	if err := wifi.ValidateSSID(creds.SSID); err != nil {
		return err
	}

	req := radio.JoinRequest{SSID: creds.SSID, Password: creds.Password}
	if !creds.DHCP {
		static, err := wifi.ParseStatic(creds)
		if err != nil {
			logging.Warn("Static IP configuration invalid, using DHCP",
				zap.String("ssid", creds.SSID),
				zap.Error(err),
			)
		} else {
			req.Static = &static
		}
	}

	if err := c.radio.Join(ctx, req); err != nil {
		return err
	}

	for i := 0; i < c.cfg.Attempts; i++ {
		if err := c.sleep(ctx, c.cfg.AttemptDelay); err != nil {
			return nil
		}
		if c.refresh(ctx).Usable() {
			logging.Info("Station linked",
				zap.String("ssid", creds.SSID),
				zap.Int("attempt", i+1),
			)
			return nil
		}
	}

	logging.Debug("Join still pending after fast-path wait",
		zap.String("ssid", creds.SSID),
		zap.Int("attempts", c.cfg.Attempts),
	)
	return nil
}

func (c *Connector) refresh(ctx context.Context) wifi.Link {
	link, err := c.radio.Link(ctx)
	if err != nil {
		logging.Debug("Link query failed", zap.Error(err))
		link = wifi.Link{}
	}
	c.mu.Lock()
	c.last = link
	c.mu.Unlock()
	return link
}

// IsLinked reports whether the station is associated and has an address.
func (c *Connector) IsLinked(ctx context.Context) bool {
	return c.refresh(ctx).Usable()
}

// IPAddress returns the address from the most recent link query.
func (c *Connector) IPAddress() (netip.Addr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.last.Usable() {
		return netip.Addr{}, false
	}
	return c.last.Addr, true
}

// Disconnect drops the station link.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.last = wifi.Link{}
	c.mu.Unlock()
	return c.radio.Disconnect(ctx)
}
