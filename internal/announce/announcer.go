package announce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/screenlink/internal/logging"
	"github.com/muurk/screenlink/internal/supervisor"
	"github.com/muurk/screenlink/internal/version"
)

// StatusPath is the read-only status endpoint.
const StatusPath = "/status"

const shutdownTimeout = 2 * time.Second

// Status is the JSON body served on StatusPath.
type Status struct {
	State   string    `json:"state"`
	SSID    string    `json:"ssid"`
	IP      string    `json:"ip"`
	Version string    `json:"version"`
	Since   time.Time `json:"since"`
}

// Config controls what the announcer advertises.
type Config struct {
	Instance string
	// Port is the status endpoint port; 0 picks a free one.
	Port int
	// ListenHost is the bind address; empty binds every interface.
	ListenHost string
}

// registration is the part of *zeroconf.Server the announcer uses.
type registration interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, txt []string) (registration, error)

func zeroconfRegister(instance, service, domain string, port int, txt []string) (registration, error) {
	return zeroconf.Register(instance, service, domain, port, txt, nil)
}

// Announcer makes a connected appliance discoverable. While the supervisor
// is Connected it serves StatusPath and registers ServiceType over mDNS;
// both are withdrawn as soon as it leaves Connected.
type Announcer struct {
	cfg      Config
	snapshot func() supervisor.Snapshot
	register registerFunc
	log      *zap.Logger

	mu   sync.Mutex
	srv  *http.Server
	addr net.Addr
	reg  registration
}

// New returns an idle announcer. snapshot supplies the values served on
// StatusPath.
func New(cfg Config, snapshot func() supervisor.Snapshot) *Announcer {
	return &Announcer{
		cfg:      cfg,
		snapshot: snapshot,
		register: zeroconfRegister,
		log:      logging.Named("announce"),
	}
}

// HandleTransition starts or stops announcing. Register it with
// Supervisor.OnTransition.
func (a *Announcer) HandleTransition(t supervisor.Transition) {
	switch {
	case t.To == supervisor.StateConnected:
		if err := a.Start(t.SSID); err != nil {
			a.log.Warn("Announce failed", zap.Error(err))
		}
	case t.From == supervisor.StateConnected:
		a.Stop()
	}
}

// Start serves the status endpoint and registers the mDNS service. Calling
// Start while running is a no-op.
func (a *Announcer) Start(ssid string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(a.cfg.ListenHost, strconv.Itoa(a.cfg.Port)))
	if err != nil {
		return fmt.Errorf("status listener: %w", err)
	}
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("Status server stopped", zap.Error(err))
		}
	}()
	a.srv, a.addr = srv, ln.Addr()

	port := ln.Addr().(*net.TCPAddr).Port
	txt := []string{"ssid=" + ssid, "version=" + version.Version}
	reg, err := a.register(a.cfg.Instance, ServiceType, ServiceDomain, port, txt)
	if err != nil {
		// The status endpoint stays up; only discovery is lost.
		a.log.Warn("mDNS registration failed", zap.Error(err))
	} else {
		a.reg = reg
	}

	a.log.Info("Announcing",
		zap.String("instance", a.cfg.Instance),
		zap.Int("port", port),
		zap.String("ssid", ssid),
	)
	return nil
}

// Stop withdraws the mDNS service and closes the status endpoint.
func (a *Announcer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reg != nil {
		a.reg.Shutdown()
		a.reg = nil
	}
	if a.srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		a.log.Warn("Status server did not shut down cleanly", zap.Error(err))
	}
	a.srv, a.addr = nil, nil
	a.log.Info("Stopped announcing")
}

// Running reports whether the status endpoint is up.
func (a *Announcer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.srv != nil
}

// Addr is the status listener address, nil when stopped.
func (a *Announcer) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Handler serves StatusPath.
func (a *Announcer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(StatusPath, a.handleStatus)
	return mux
}

func (a *Announcer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := a.snapshot()
	st := Status{
		State:   snap.State.String(),
		SSID:    snap.SSID,
		Version: version.Version,
		Since:   snap.Since,
	}
	if snap.IP.IsValid() {
		st.IP = snap.IP.String()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(st)
}
