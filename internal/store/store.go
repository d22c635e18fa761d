package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/muurk/screenlink/internal/wifi"
)

// CredentialStore persists WiFi credentials and display preferences.
type CredentialStore interface {
	// LoadCredentials returns the stored credentials and whether any exist.
	LoadCredentials() (wifi.Credentials, bool, error)
	SaveCredentials(c wifi.Credentials) error
	LoadDisplay() (wifi.DisplaySettings, error)
	SaveDisplay(d wifi.DisplaySettings) error
	// SaveSettings stores credentials and display preferences together.
	// Either both are written or neither is.
	SaveSettings(c wifi.Credentials, d wifi.DisplaySettings) error
	Clear() error
}

const documentVersion = 1

// document is the on-disk layout.
type document struct {
	Version int                  `yaml:"version"`
	WiFi    wifiSection          `yaml:"wifi"`
	Display wifi.DisplaySettings `yaml:"display"`
}

type wifiSection struct {
	HasSettings bool             `yaml:"has_settings"`
	Credentials wifi.Credentials `yaml:",inline"`
}

// File is a CredentialStore backed by a single YAML file.
// Writes are atomic (temp file + rename) and the file is created 0600.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a store at path. The file is created on first save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) read() (document, error) {
	doc := document{Version: documentVersion}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, wifi.NewStoreError("read", err)
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, wifi.NewStoreError("parse", err)
	}
	if doc.Version != documentVersion {
		return doc, wifi.NewStoreError("parse", fmt.Errorf("unsupported settings version: %d (expected %d)", doc.Version, documentVersion))
	}
	return doc, nil
}

func (f *File) write(doc document) error {
	doc.Version = documentVersion

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return wifi.NewStoreError("write", fmt.Errorf("failed to create settings directory: %w", err))
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return wifi.NewStoreError("write", fmt.Errorf("failed to marshal settings: %w", err))
	}

	header := []byte(`# screenlink settings
# Written by the setup portal and 'screenlink settings set'.
# Contains the WiFi passphrase; keep this file private.

`)
	data = append(header, data...)

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return wifi.NewStoreError("write", fmt.Errorf("failed to write temporary settings file: %w", err))
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return wifi.NewStoreError("write", fmt.Errorf("failed to save settings file: %w", err))
	}
	return nil
}

// LoadCredentials implements CredentialStore.
func (f *File) LoadCredentials() (wifi.Credentials, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return wifi.Credentials{}, false, err
	}
	if !doc.WiFi.HasSettings {
		return wifi.Credentials{}, false, nil
	}
	return doc.WiFi.Credentials, true, nil
}

// SaveCredentials implements CredentialStore. Static fields are dropped when
// DHCP is enabled.
func (f *File) SaveCredentials(c wifi.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.WiFi = wifiSection{HasSettings: true, Credentials: normalize(c)}
	return f.write(doc)
}

// LoadDisplay implements CredentialStore.
func (f *File) LoadDisplay() (wifi.DisplaySettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return wifi.DisplaySettings{}, err
	}
	return doc.Display, nil
}

// SaveDisplay implements CredentialStore.
func (f *File) SaveDisplay(d wifi.DisplaySettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Display = d
	return f.write(doc)
}

// SaveSettings implements CredentialStore with a single document write.
func (f *File) SaveSettings(c wifi.Credentials, d wifi.DisplaySettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.WiFi = wifiSection{HasSettings: true, Credentials: normalize(c)}
	doc.Display = d
	return f.write(doc)
}

// Clear removes all stored settings.
func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return wifi.NewStoreError("clear", err)
	}
	return nil
}

func normalize(c wifi.Credentials) wifi.Credentials {
	if c.DHCP {
		c.IP, c.Gateway, c.Subnet, c.DNS1, c.DNS2 = "", "", "", "", ""
	}
	return c
}

// Memory is an in-process CredentialStore.
type Memory struct {
	mu      sync.Mutex
	creds   wifi.Credentials
	has     bool
	display wifi.DisplaySettings

	// FailSave makes every save return a store error.
	FailSave bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// LoadCredentials implements CredentialStore.
func (m *Memory) LoadCredentials() (wifi.Credentials, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds, m.has, nil
}

// SaveCredentials implements CredentialStore.
func (m *Memory) SaveCredentials(c wifi.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave {
		return wifi.NewStoreError("write", errors.New("memory store is read-only"))
	}
	m.creds, m.has = normalize(c), true
	return nil
}

// LoadDisplay implements CredentialStore.
func (m *Memory) LoadDisplay() (wifi.DisplaySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.display, nil
}

// SaveDisplay implements CredentialStore.
func (m *Memory) SaveDisplay(d wifi.DisplaySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave {
		return wifi.NewStoreError("write", errors.New("memory store is read-only"))
	}
	m.display = d
	return nil
}

// SaveSettings implements CredentialStore.
func (m *Memory) SaveSettings(c wifi.Credentials, d wifi.DisplaySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave {
		return wifi.NewStoreError("write", errors.New("memory store is read-only"))
	}
	m.creds, m.has, m.display = normalize(c), true, d
	return nil
}

// Clear implements CredentialStore.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds, m.has, m.display = wifi.Credentials{}, false, wifi.DisplaySettings{}
	return nil
}
