package appliance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/muurk/screenlink/internal/announce"
	"github.com/muurk/screenlink/internal/config"
	"github.com/muurk/screenlink/internal/display"
	"github.com/muurk/screenlink/internal/logging"
	"github.com/muurk/screenlink/internal/portal"
	"github.com/muurk/screenlink/internal/radio"
	"github.com/muurk/screenlink/internal/reboot"
	"github.com/muurk/screenlink/internal/station"
	"github.com/muurk/screenlink/internal/store"
	"github.com/muurk/screenlink/internal/supervisor"
	"github.com/muurk/screenlink/internal/wifi"
)

const (
	// Title heads the full-screen view.
	Title = "SCREENLINK"

	shutdownTimeout = 10 * time.Second
)

// Options adjust how a Runner is assembled.
type Options struct {
	// Setup opens the portal on the first tick even when credentials exist.
	Setup bool
	// TUI renders with a full-screen Bubble Tea program instead of
	// printing status cards.
	TUI bool
	// Out receives status cards; nil means stdout.
	Out io.Writer
	// Store overrides the credential store chosen from the config.
	Store store.CredentialStore
	// Restarter overrides the restarter chosen from the config.
	Restarter supervisor.Restarter
}

// Runner wires the radio, portal, supervisor, presenters and announcer
// together and ticks the supervisor until shut down.
type Runner struct {
	cfg  *config.Config
	opts Options

	ctrl      *radio.Controller
	sim       *radio.Simulator
	station   *station.Connector
	store     store.CredentialStore
	feed      *portal.Feed
	portal    *portal.Portal
	sup       *supervisor.Supervisor
	announcer *announce.Announcer
	program   *display.Program
}

// New assembles a runner from cfg. Nothing touches the radio or the network
// until Run.
func New(cfg *config.Config, opts Options) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	apPrefix, err := cfg.APPrefix()
	if err != nil {
		return nil, err
	}

	r := &Runner{cfg: cfg, opts: opts}

	var driver radio.Driver
	switch cfg.Radio.Driver {
	case config.DriverSimulator:
		r.sim, err = newSimulator(cfg.Sim)
		if err != nil {
			return nil, err
		}
		driver = r.sim
	default:
		driver = radio.NewNMCLI(cfg.Radio.Interface)
	}
	r.ctrl = radio.NewController(driver, cfg.Radio.SettleDelay)

	r.station = station.New(r.ctrl, station.Config{
		Attempts:     cfg.Timing.JoinAttempts,
		AttemptDelay: cfg.Timing.JoinAttemptDelay,
	})

	r.store = opts.Store
	if r.store == nil {
		if r.sim != nil {
			r.store = store.NewMemory()
		} else {
			r.store = store.NewFile(cfg.Store.Path)
		}
	}

	r.feed = portal.NewFeed()
	r.portal = portal.New(portal.Config{
		Address:    apPrefix,
		HTTPPort:   cfg.Portal.HTTPPort,
		DNSPort:    cfg.Portal.DNSPort,
		ListenHost: cfg.Portal.ListenHost,
	}, r.ctrl, r.store, r.feed)

	var primary display.Presenter
	if opts.TUI {
		r.program = display.NewProgram(Title, r.requestPortal, tea.WithAltScreen())
		primary = r.program
	} else {
		primary = display.NewTerminal(opts.Out)
	}

	restarter := opts.Restarter
	if restarter == nil {
		restarter = newRestarter(cfg, r.sim != nil)
	}

	r.sup = supervisor.New(supervisorConfig(cfg), supervisor.Deps{
		Station:     r.station,
		Portal:      r.portal,
		Credentials: r.store,
		Presenter:   display.Multi{primary, r.feed},
		Restarter:   restarter,
	})
	r.portal.OnSaved(r.sup.NotifyCredentialsSaved)

	if cfg.Announce.Enabled {
		r.announcer = announce.New(announce.Config{
			Instance: cfg.Announce.Instance,
			Port:     cfg.Announce.StatusPort,
		}, r.sup.Snapshot)
		r.sup.OnTransition(r.announcer.HandleTransition)
	}

	return r, nil
}

func supervisorConfig(cfg *config.Config) supervisor.Config {
	sc := supervisor.DefaultConfig()
	sc.JoinTimeout = cfg.Timing.JoinTimeout
	sc.PortalGrace = cfg.Timing.PortalGrace
	sc.InactivityWindow = cfg.Timing.InactivityWindow
	sc.RestartDelay = cfg.Timing.RestartDelay
	sc.PortalRetry = cfg.Timing.PortalRetry
	sc.APName = cfg.AccessPoint.SSID
	sc.APPassword = cfg.AccessPoint.Password
	return sc
}

func newRestarter(cfg *config.Config, simulated bool) supervisor.Restarter {
	switch {
	case len(cfg.Restart.Command) > 0:
		return reboot.NewCommand(cfg.Restart.Command)
	case simulated:
		return reboot.Disabled{}
	default:
		return reboot.NewExec(logging.Sync)
	}
}

func newSimulator(sc config.SimConfig) (*radio.Simulator, error) {
	addr, err := netip.ParsePrefix(sc.Address)
	if err != nil {
		return nil, fmt.Errorf("sim.address: %w", err)
	}
	nets := make([]radio.SimNetwork, 0, len(sc.Networks))
	for _, n := range sc.Networks {
		nets = append(nets, radio.SimNetwork{
			Network:  wifi.Network{SSID: n.SSID, RSSI: n.RSSI, Secure: n.Password != ""},
			Password: n.Password,
		})
	}
	return radio.NewSimulator(nets, sc.JoinLatency, addr.Addr()), nil
}

// Supervisor returns the state machine being driven.
func (r *Runner) Supervisor() *supervisor.Supervisor {
	return r.sup
}

// Portal returns the setup portal.
func (r *Runner) Portal() *portal.Portal {
	return r.portal
}

// Simulator returns the simulated radio, or nil when driving real hardware.
func (r *Runner) Simulator() *radio.Simulator {
	return r.sim
}

func (r *Runner) requestPortal() {
	logging.Info("Setup portal requested")
	r.sup.RequestPortal()
}

// Run ticks the supervisor until ctx ends, SIGINT or SIGTERM arrives, or
// the TUI is quit. SIGUSR1 opens the setup portal.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	mode, err := r.ctrl.Adopt(ctx)
	if err != nil {
		logging.Warn("Could not probe radio", zap.Error(err))
	}
	logging.Info("Starting",
		zap.String("driver", r.cfg.Radio.Driver),
		zap.String("interface", r.cfg.Radio.Interface),
		zap.String("radio_mode", mode.String()),
		zap.Duration("tick", r.cfg.Timing.Tick),
	)

	if r.opts.Setup {
		r.sup.RequestPortal()
	}

	if r.program == nil {
		r.loop(ctx, usr1)
		return r.shutdown()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.loop(ctx, usr1)
		r.program.Quit()
	}()

	runErr := r.program.Run()
	cancel()
	wg.Wait()

	if err := r.shutdown(); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("display: %w", runErr)
	}
	return nil
}

func (r *Runner) loop(ctx context.Context, usr1 <-chan os.Signal) {
	ticker := time.NewTicker(r.cfg.Timing.Tick)
	defer ticker.Stop()

	r.sup.Tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-usr1:
			r.requestPortal()
		case now := <-ticker.C:
			r.sup.Tick(ctx, now)
		}
	}
}

func (r *Runner) shutdown() error {
	logging.Info("Shutting down")
	defer logging.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if r.announcer != nil {
		r.announcer.Stop()
	}
	r.feed.CloseAll()
	if err := r.portal.Stop(ctx); err != nil {
		return fmt.Errorf("stop portal: %w", err)
	}
	return nil
}
