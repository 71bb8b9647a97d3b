package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"sync"
	"time"

	"github.com/juju/clock"

	logx "roomcast/pkg/logx"
)

const (
	defaultDebounce   = 250 * time.Millisecond
	validatorDeadline = 5 * time.Second
)

// Manager holds the committed config and fans reloads out to subscribers.
type Manager struct {
	path     string
	clock    clock.Clock
	debounce time.Duration
	log      logx.Logger
	check    func(ctx context.Context, cfg *Config) error

	mu   sync.RWMutex
	cfg  *Config
	hash uint64

	subsMu sync.Mutex
	subs   map[chan *Config]struct{}
}

func NewManager(path string) *Manager {
	return &Manager{
		path:     path,
		clock:    clock.WallClock,
		debounce: defaultDebounce,
		log:      logx.Nop(),
		subs:     map[chan *Config]struct{}{},
	}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// SetValidator adds a check that reloads must pass after Validate.
// The initial Load does not run it.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.check = fn
}

// Parse reads and decodes the file without committing it.
func (m *Manager) Parse() (*Config, error) { return ParseFile(m.path) }

// ParseFile strictly decodes a JSON or YAML config file. Unknown fields and
// trailing documents are errors.
func ParseFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, format, err := coerceToJSONBytes(path, raw)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()

	cfg := new(Config)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s config: %w", format, err)
	}
	switch err := dec.Decode(&struct{}{}); err {
	case io.EOF:
		return cfg, nil
	case nil:
		return nil, fmt.Errorf("invalid config: trailing data")
	default:
		return nil, err
	}
}

// Load parses, validates and commits the file. It does not publish.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", m.path, err)
	}
	m.commit(cfg, fingerprint(cfg))
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) commit(cfg *Config, h uint64) {
	m.mu.Lock()
	m.cfg, m.hash = cfg, h
	m.mu.Unlock()
}

// Subscribe returns a channel of committed reloads. A slow subscriber only
// ever sees the newest pending config.
func (m *Manager) Subscribe(buffer int) (<-chan *Config, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, ch)
			close(ch)
			m.subsMu.Unlock()
		})
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		offerLatest(ch, cfg)
	}
}

// offerLatest sends cfg, evicting the oldest pending value when ch is full.
// Only publish sends, so there is room after one eviction.
func offerLatest(ch chan *Config, cfg *Config) {
	for {
		select {
		case ch <- cfg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Reload re-reads the file and publishes it if it changed and passes
// validation. It reports whether a new config was published.
func (m *Manager) Reload(ctx context.Context) (bool, error) {
	cfg, err := m.Parse()
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", m.path, err)
	}
	h := fingerprint(cfg)
	m.mu.RLock()
	same := h != 0 && h == m.hash
	m.mu.RUnlock()
	if same {
		return false, nil
	}

	if err := Validate(cfg); err != nil {
		return false, fmt.Errorf("rejected %s: %w", m.path, err)
	}
	if m.check != nil {
		vctx, cancel := context.WithTimeout(ctx, validatorDeadline)
		err := m.check(vctx, cfg)
		cancel()
		if err != nil {
			return false, fmt.Errorf("rejected %s: %w", m.path, err)
		}
	}

	m.commit(cfg, h)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h)))
	return true, nil
}

// fingerprint hashes the decoded config, so whitespace-only edits and the
// duplicate write events many editors emit do not republish.
func fingerprint(cfg *Config) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
