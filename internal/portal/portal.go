package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/muurk/screenlink/internal/logging"
	"github.com/muurk/screenlink/internal/radio"
	"github.com/muurk/screenlink/internal/store"
	"github.com/muurk/screenlink/internal/wifi"
)

// Radio is the part of radio.Controller the portal needs.
type Radio interface {
	EnterAccessPoint(ctx context.Context, ap radio.AccessPoint) error
	StopAccessPoint(ctx context.Context) error
	Scan(ctx context.Context) ([]wifi.Network, error)
}

// Config holds the portal's network settings.
type Config struct {
	// Address is the access point's own address and subnet. DNS answers
	// point here.
	Address netip.Prefix
	// HTTPPort and DNSPort are the listener ports (80 and 53 normally; 0
	// picks a free port).
	HTTPPort int
	DNSPort  int
	// ListenHost overrides the bind address. Empty binds to Address.
	ListenHost string
}

// Portal is the captive setup portal: an access point, a resolver that
// answers every name with the portal address, and the settings web UI.
//
// The HTTP and DNS servers run on their own goroutines. They only touch the
// store, atomic activity counters and a buffered save channel; Poll moves
// their effects onto the caller's goroutine.
type Portal struct {
	cfg   Config
	radio Radio
	store store.CredentialStore
	feed  *Feed
	now   func() time.Time

	mu          sync.Mutex
	active      bool
	activeSince time.Time
	httpSrv     *http.Server
	dnsSrv      *dns.Server
	dnsConn     net.PacketConn
	httpAddr    net.Addr
	dnsAddr     net.Addr
	wg          sync.WaitGroup

	hits        atomic.Uint64
	hasActivity atomic.Bool
	saved       chan struct{}

	// Poll-side state.
	seenHits     uint64
	lastActivity time.Time
	onSaved      func(now time.Time)
}

// New returns an inactive portal.
func New(cfg Config, r Radio, s store.CredentialStore, feed *Feed) *Portal {
	if feed == nil {
		feed = NewFeed()
	}
	return &Portal{
		cfg:   cfg,
		radio: r,
		store: s,
		feed:  feed,
		now:   time.Now,
		saved: make(chan struct{}, 1),
	}
}

// OnSaved registers fn to be called from Poll after a successful save.
func (p *Portal) OnSaved(fn func(now time.Time)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSaved = fn
}

// Feed returns the status feed served on /events.
func (p *Portal) Feed() *Feed {
	return p.feed
}

func (p *Portal) bindHost() string {
	if p.cfg.ListenHost != "" {
		return p.cfg.ListenHost
	}
	return p.cfg.Address.Addr().String()
}

// Start brings up the access point and the DNS and HTTP servers. Calling
// Start on an active portal is a no-op. Any failure leaves the portal
// inactive and is reported as a radio mode error.
func (p *Portal) Start(ctx context.Context, apName, apPassword string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		return nil
	}

	ap := radio.AccessPoint{SSID: apName, Password: apPassword, Address: p.cfg.Address}
	if err := p.radio.EnterAccessPoint(ctx, ap); err != nil {
		return err
	}

	host := p.bindHost()
	udp, err := net.ListenPacket("udp4", net.JoinHostPort(host, strconv.Itoa(p.cfg.DNSPort)))
	if err != nil {
		p.abortStart(ctx)
		return wifi.NewRadioModeError("bind dns", err)
	}
	tcp, err := net.Listen("tcp4", net.JoinHostPort(host, strconv.Itoa(p.cfg.HTTPPort)))
	if err != nil {
		udp.Close()
		p.abortStart(ctx)
		return wifi.NewRadioModeError("bind http", err)
	}

	started := make(chan struct{})
	p.dnsSrv = &dns.Server{
		PacketConn:        udp,
		Handler:           newResolver(p.cfg.Address.Addr()),
		NotifyStartedFunc: func() { close(started) },
	}
	p.httpSrv = &http.Server{
		Handler:           p.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	p.dnsConn = udp
	p.httpAddr, p.dnsAddr = tcp.Addr(), udp.LocalAddr()

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		if err := p.dnsSrv.ActivateAndServe(); err != nil {
			logging.Warn("DNS server stopped", zap.Error(err))
		}
	}()
	go func() {
		defer p.wg.Done()
		if err := p.httpSrv.Serve(tcp); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn("HTTP server stopped", zap.Error(err))
		}
	}()

	select {
	case <-started:
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		logging.Warn("DNS server slow to start")
	}

	p.active = true
	p.activeSince = p.now()
	p.resetActivityLocked()

	logging.Info("Portal started",
		zap.String("ssid", apName),
		zap.String("http", p.httpAddr.String()),
		zap.String("dns", p.dnsAddr.String()),
	)
	return nil
}

func (p *Portal) abortStart(ctx context.Context) {
	if err := p.radio.StopAccessPoint(ctx); err != nil {
		logging.Warn("Failed to stop access point after portal start failure", zap.Error(err))
	}
}

// Stop shuts the servers down and takes the radio out of access point mode.
// Calling Stop on an inactive portal is a no-op.
func (p *Portal) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return nil
	}

	p.feed.CloseAll()
	if err := p.httpSrv.Shutdown(ctx); err != nil {
		logging.Warn("HTTP shutdown incomplete", zap.Error(err))
		p.httpSrv.Close()
	}
	if err := p.dnsSrv.ShutdownContext(ctx); err != nil {
		logging.Warn("DNS shutdown incomplete", zap.Error(err))
		p.dnsConn.Close()
	}
	p.wg.Wait()

	p.active = false
	p.httpSrv, p.dnsSrv, p.dnsConn = nil, nil, nil
	p.resetActivityLocked()

	if err := p.radio.StopAccessPoint(ctx); err != nil {
		return fmt.Errorf("portal stop: %w", err)
	}
	logging.Info("Portal stopped", zap.Duration("uptime", p.now().Sub(p.activeSince)))
	return nil
}

// Active reports whether the portal is serving.
func (p *Portal) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// ActiveSince returns when the portal last started.
func (p *Portal) ActiveSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeSince
}

// Address returns the address users browse to.
func (p *Portal) Address() netip.Addr {
	return p.cfg.Address.Addr()
}

// HTTPAddr returns the bound HTTP listener address, or nil when inactive.
func (p *Portal) HTTPAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return nil
	}
	return p.httpAddr
}

// DNSAddr returns the bound DNS listener address, or nil when inactive.
func (p *Portal) DNSAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return nil
	}
	return p.dnsAddr
}

// markActivity is called from HTTP handlers.
func (p *Portal) markActivity() {
	p.hits.Add(1)
	p.hasActivity.Store(true)
}

// Poll stamps the activity time when new requests arrived since the last
// call and delivers pending save notifications.
func (p *Portal) Poll(now time.Time) {
	p.mu.Lock()
	if h := p.hits.Load(); h != p.seenHits {
		p.seenHits = h
		p.lastActivity = now
		p.hasActivity.Store(true)
	}
	onSaved := p.onSaved
	p.mu.Unlock()

	select {
	case <-p.saved:
		if onSaved != nil {
			onSaved(now)
		}
	default:
	}
}

// HasActivity reports whether anyone has used the portal since the last
// reset. It stays true until ResetActivity.
func (p *Portal) HasActivity() bool {
	return p.hasActivity.Load()
}

// LastActivity returns the Poll time at which activity was last observed.
func (p *Portal) LastActivity() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActivity
}

// ResetActivity clears the sticky activity flag. Requests that arrived after
// the last Poll keep it set so the next Poll can stamp them.
func (p *Portal) ResetActivity() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hits.Load() != p.seenHits {
		return
	}
	p.hasActivity.Store(false)
}

func (p *Portal) resetActivityLocked() {
	p.hasActivity.Store(false)
	p.seenHits = p.hits.Load()
}

func (p *Portal) notifySaved() {
	select {
	case p.saved <- struct{}{}:
	default:
	}
}

// ScanNetworks returns visible networks, strongest first. Hidden networks
// are dropped and each SSID appears once with its strongest signal; equal
// signals keep scan order.
func (p *Portal) ScanNetworks(ctx context.Context) ([]wifi.Network, error) {
	raw, err := p.radio.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return normalizeScan(raw), nil
}

func normalizeScan(raw []wifi.Network) []wifi.Network {
	nets := make([]wifi.Network, 0, len(raw))
	index := make(map[string]int, len(raw))
	for _, n := range raw {
		if n.SSID == "" {
			continue
		}
		if i, ok := index[n.SSID]; ok {
			if n.RSSI > nets[i].RSSI {
				nets[i] = n
			}
			continue
		}
		index[n.SSID] = len(nets)
		nets = append(nets, n)
	}
	sort.SliceStable(nets, func(i, j int) bool {
		return nets[i].RSSI > nets[j].RSSI
	})
	return nets
}
