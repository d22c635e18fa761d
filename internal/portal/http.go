package portal

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/screenlink/internal/logging"
	"github.com/muurk/screenlink/internal/wifi"
)

//go:embed page.html
var pageHTML []byte

// scanResponse is the body of GET /scan.
type scanResponse struct {
	Networks []scanEntry `json:"networks"`
}

type scanEntry struct {
	wifi.Network
	Level int `json:"level"`
}

// settingsResponse is the body of GET /settings. The password is never
// returned.
type settingsResponse struct {
	WiFi    settingsWiFi         `json:"wifi"`
	Display wifi.DisplaySettings `json:"display"`
}

type settingsWiFi struct {
	Configured bool   `json:"configured"`
	SSID       string `json:"ssid"`
	DHCP       bool   `json:"dhcp"`
	IP         string `json:"ip,omitempty"`
	Gateway    string `json:"gateway,omitempty"`
	Subnet     string `json:"subnet,omitempty"`
	DNS1       string `json:"dns1,omitempty"`
	DNS2       string `json:"dns2,omitempty"`
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (p *Portal) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", p.handleRoot)
	mux.HandleFunc("/scan", p.handleScan)
	mux.HandleFunc("/settings", p.handleSettings)
	mux.HandleFunc("/save", p.handleSave)
	mux.HandleFunc("/events", p.handleEvents)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)
		logging.LogPortalRequest(r, rec.status)
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

// handleRoot serves the setup page on "/" and sends every other path back to
// it. OS connectivity probes (generate_204, hotspot-detect.html, ...) land
// here and trigger the captive sign-in prompt.
func (p *Portal) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Redirect(w, r, "http://"+p.Address().String()+"/", http.StatusFound)
		return
	}
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	p.markActivity()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "-1")
	_, _ = w.Write(pageHTML)
}

func (p *Portal) handleScan(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	p.markActivity()

	nets, err := p.ScanNetworks(r.Context())
	if err != nil {
		logging.Warn("Network scan failed", zap.Error(err))
		http.Error(w, "scan failed", http.StatusServiceUnavailable)
		return
	}

	resp := scanResponse{Networks: make([]scanEntry, 0, len(nets))}
	for _, n := range nets {
		resp.Networks = append(resp.Networks, scanEntry{Network: n, Level: n.SignalLevel()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (p *Portal) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	p.markActivity()

	creds, ok, err := p.store.LoadCredentials()
	if err != nil {
		logging.Error("Failed to load credentials", zap.Error(err))
		http.Error(w, "settings unavailable", http.StatusInternalServerError)
		return
	}
	display, err := p.store.LoadDisplay()
	if err != nil {
		logging.Error("Failed to load display settings", zap.Error(err))
		http.Error(w, "settings unavailable", http.StatusInternalServerError)
		return
	}

	resp := settingsResponse{
		WiFi:    settingsWiFi{DHCP: true},
		Display: display,
	}
	if ok {
		resp.WiFi = settingsWiFi{
			Configured: true,
			SSID:       creds.SSID,
			DHCP:       creds.DHCP,
		}
		if !creds.DHCP {
			resp.WiFi.IP = creds.IP
			resp.WiFi.Gateway = creds.Gateway
			resp.WiFi.Subnet = creds.Subnet
			resp.WiFi.DNS1 = creds.DNS1
			resp.WiFi.DNS2 = creds.DNS2
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func formBool(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.PostFormValue(key))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// handleSave validates and stores the submitted settings. Nothing is written
// unless every field validates. An empty password keeps the stored one.
func (p *Portal) handleSave(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	p.markActivity()

	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	creds := wifi.Credentials{
		SSID:     strings.TrimSpace(r.PostFormValue("ssid")),
		Password: r.PostFormValue("password"),
		DHCP:     formBool(r, "dhcp"),
	}
	if !creds.DHCP {
		creds.IP = strings.TrimSpace(r.PostFormValue("ip"))
		creds.Gateway = strings.TrimSpace(r.PostFormValue("gateway"))
		creds.Subnet = strings.TrimSpace(r.PostFormValue("subnet"))
		creds.DNS1 = strings.TrimSpace(r.PostFormValue("dns1"))
		creds.DNS2 = strings.TrimSpace(r.PostFormValue("dns2"))
	}
	display := wifi.DisplaySettings{
		BattleRomaji:    formBool(r, "battle_romaji"),
		RuleRomaji:      formBool(r, "rule_romaji"),
		StageRomaji:     formBool(r, "stage_romaji"),
		InvertedDisplay: formBool(r, "inverted_display"),
	}

	if errs := wifi.ValidateCredentials(creds); len(errs) > 0 {
		logging.Info("Rejected settings submission", zap.Int("errors", len(errs)))
		http.Error(w, wifi.FormatValidationErrors(errs), http.StatusBadRequest)
		return
	}

	if creds.Password == "" {
		stored, ok, err := p.store.LoadCredentials()
		if err != nil {
			logging.Error("Failed to load stored credentials", zap.Error(err))
			http.Error(w, "could not save settings", http.StatusInternalServerError)
			return
		}
		if ok && stored.IsValid() {
			creds.Password = stored.Password
		}
	}

	if err := p.store.SaveSettings(creds, display); err != nil {
		logging.Error("Failed to save settings", zap.Error(err))
		http.Error(w, "could not save settings", http.StatusInternalServerError)
		return
	}

	logging.Info("Settings saved", zap.Stringer("wifi", creds))
	p.notifySaved()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Settings saved. The display will restart shortly.\n"))
}

func (p *Portal) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	p.markActivity()
	p.feed.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write JSON response", zap.Error(err))
	}
}
