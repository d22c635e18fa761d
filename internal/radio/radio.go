package radio

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/screenlink/internal/logging"
	"github.com/muurk/screenlink/internal/wifi"
)

// Mode is the radio operating mode.
type Mode int

const (
	ModeOff Mode = iota
	ModeStation
	ModeAccessPoint
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeStation:
		return "station"
	case ModeAccessPoint:
		return "access_point"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// AccessPoint describes the network broadcast in setup mode.
type AccessPoint struct {
	SSID     string
	Password string
	Address  netip.Prefix
}

// JoinRequest is a station association request. Static is nil for DHCP.
type JoinRequest struct {
	SSID     string
	Password string
	Static   *wifi.StaticConfig
}

// Driver is the platform-specific radio backend.
type Driver interface {
	StartAccessPoint(ctx context.Context, ap AccessPoint) error
	StopAccessPoint(ctx context.Context) error
	// Join starts an association and returns without waiting for it.
	Join(ctx context.Context, req JoinRequest) error
	Disconnect(ctx context.Context) error
	Link(ctx context.Context) (wifi.Link, error)
	Scan(ctx context.Context) ([]wifi.Network, error)
}

// Controller is the single owner of the radio. Switching modes always stops
// the vacated mode first; when that fails the new mode is not started.
type Controller struct {
	driver Driver
	settle time.Duration

	mu   sync.Mutex
	mode Mode

	// sleep waits out the settle delay; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController returns a controller that waits settle after every mode
// switch.
func NewController(driver Driver, settle time.Duration) *Controller {
	return &Controller{
		driver: driver,
		settle: settle,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// leave stops the current mode. Caller holds c.mu.
func (c *Controller) leave(ctx context.Context) error {
	var err error
	switch c.mode {
	case ModeAccessPoint:
		err = c.driver.StopAccessPoint(ctx)
	case ModeStation:
		err = c.driver.Disconnect(ctx)
	default:
		return nil
	}
	if err != nil {
		return wifi.NewRadioModeError("leave "+c.mode.String(), err)
	}
	logging.LogRadioMode(c.mode.String(), ModeOff.String(), nil)
	c.mode = ModeOff
	return nil
}

// EnterAccessPoint brings up the setup network.
func (c *Controller) EnterAccessPoint(ctx context.Context, ap AccessPoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModeAccessPoint {
		return nil
	}
	from := c.mode
	if err := c.leave(ctx); err != nil {
		logging.LogRadioMode(from.String(), ModeAccessPoint.String(), err)
		return err
	}
	if err := c.driver.StartAccessPoint(ctx, ap); err != nil {
		rerr := wifi.NewRadioModeError("enter access point", err)
		logging.LogRadioMode(from.String(), ModeAccessPoint.String(), rerr)
		return rerr
	}
	c.mode = ModeAccessPoint
	logging.LogRadioMode(from.String(), c.mode.String(), nil)
	return c.sleep(ctx, c.settle)
}

// EnterStation leaves access point mode (if active) and readies the radio
// for a join.
func (c *Controller) EnterStation(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enterStationLocked(ctx)
}

func (c *Controller) enterStationLocked(ctx context.Context) error {
	if c.mode == ModeStation {
		return nil
	}
	from := c.mode
	if err := c.leave(ctx); err != nil {
		logging.LogRadioMode(from.String(), ModeStation.String(), err)
		return err
	}
	c.mode = ModeStation
	logging.LogRadioMode(from.String(), c.mode.String(), nil)
	return c.sleep(ctx, c.settle)
}

// Join switches to station mode if needed and starts an association.
func (c *Controller) Join(ctx context.Context, req JoinRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enterStationLocked(ctx); err != nil {
		return err
	}
	if err := c.driver.Join(ctx, req); err != nil {
		return wifi.NewRadioModeError("join", err)
	}
	logging.Info("Join started", zap.String("ssid", req.SSID), zap.Bool("static", req.Static != nil))
	return nil
}

// Disconnect drops the station link if station mode is active.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeStation {
		return nil
	}
	return c.leave(ctx)
}

// Adopt probes the driver for a station link that came up before the
// controller existed (for example a NetworkManager autoconnect at boot) and
// takes ownership of it.
func (c *Controller) Adopt(ctx context.Context) (Mode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeOff {
		return c.mode, nil
	}
	link, err := c.driver.Link(ctx)
	if err != nil {
		return c.mode, fmt.Errorf("probe link: %w", err)
	}
	if link.Up {
		c.mode = ModeStation
		logging.LogRadioMode(ModeOff.String(), c.mode.String(), nil)
	}
	return c.mode, nil
}

// Off stops whatever mode is active.
func (c *Controller) Off(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leave(ctx)
}

// StopAccessPoint stops the setup network if it is the active mode.
func (c *Controller) StopAccessPoint(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeAccessPoint {
		return nil
	}
	return c.leave(ctx)
}

// Link reports the station link. Outside station mode the link is down.
func (c *Controller) Link(ctx context.Context) (wifi.Link, error) {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()

	if mode != ModeStation {
		return wifi.Link{}, nil
	}
	return c.driver.Link(ctx)
}

// Scan lists visible networks. It is safe to call from any goroutine in any
// mode.
func (c *Controller) Scan(ctx context.Context) ([]wifi.Network, error) {
	nets, err := c.driver.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return nets, nil
}
