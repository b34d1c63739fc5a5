package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	logx "fooddates/pkg/logx"
)

// Validator vets a reloaded config before it replaces the current one.
type Validator func(ctx context.Context, cfg *Config) error

const validateTimeout = 5 * time.Second

// ConfigManager holds the current config and fans reloads out to
// subscribers.
type ConfigManager struct {
	path string

	mu    sync.RWMutex
	cfg   *Config
	print uint64

	subsMu sync.Mutex
	subs   map[chan *Config]struct{}

	log      logx.Logger
	validate Validator
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, subs: map[chan *Config]struct{}{}, log: logx.Nop()}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// SetValidator installs a hook for reloads. Rejected configs are logged and
// the current one stays in place.
func (m *ConfigManager) SetValidator(fn Validator) { m.validate = fn }

// Parse reads the file without committing it.
func (m *ConfigManager) Parse() (*Config, error) { return ReadFile(m.path) }

// Load parses and commits the file.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	fp := fingerprint(cfg)
	m.mu.Lock()
	m.cfg, m.print = cfg, fp
	m.mu.Unlock()
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Subscribe returns a channel that receives every committed reload.
func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(buffer, 1))
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

// publish never blocks. A subscriber that is behind loses its oldest
// pending config, so the latest one is always delivered.
func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		for range 2 {
			select {
			case ch <- cfg:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// reload commits and publishes the file when it decodes, differs from the
// current config and passes the validator.
func (m *ConfigManager) reload(ctx context.Context) {
	log := m.log.With(logx.String("path", m.path))
	cfg, err := m.Parse()
	if err != nil {
		log.Warn("config not reloaded", logx.Err(err))
		return
	}

	fp := fingerprint(cfg)
	m.mu.RLock()
	same := fp != 0 && fp == m.print
	m.mu.RUnlock()
	if same {
		log.Debug("config content unchanged")
		return
	}

	if m.validate != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validate(vctx, cfg)
		cancel()
		if err != nil {
			log.Warn("config rejected", logx.Err(err))
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	log.Info("config reloaded", logx.String("fingerprint", fmt.Sprintf("%016x", fp)))
}
