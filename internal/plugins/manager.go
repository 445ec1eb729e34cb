// Package plugins manages the lifecycle of route-contributing plugins.
package plugins

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"open-blog/internal/database"
	"open-blog/internal/routing"
)

var (
	ErrUnknownPlugin     = errors.New("unknown plugin")
	ErrAlreadyRegistered = errors.New("plugin already registered")
)

// Plugin contributes routes while it is enabled.
type Plugin interface {
	ID() string
	Description() string
	// Activate registers the plugin's routes.
	Activate(routes *routing.PluginRoutes) error
}

// Deactivator is implemented by plugins that hold state beyond their
// routes.
type Deactivator interface {
	Deactivate()
}

// Store persists the set of enabled plugins.
type Store interface {
	GetSetting(key string) (string, bool, error)
	PutSetting(key, value string) error
}

// Info describes a registered plugin.
type Info struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Enabled     bool     `json:"enabled"`
	Routes      []string `json:"routes"`
}

// Manager enables and disables plugins. Disable is the exact inverse of
// Enable: every rule the plugin registered is removed.
type Manager struct {
	reg   *routing.Registrar
	store Store
	log   *logrus.Entry

	mu      sync.Mutex
	plugins map[string]Plugin
	order   []string
	enabled map[string]bool
}

// NewManager creates a Manager. store may be nil, in which case the
// enabled set is not persisted.
func NewManager(reg *routing.Registrar, store Store, log *logrus.Entry) *Manager {
	return &Manager{
		reg:     reg,
		store:   store,
		log:     log,
		plugins: make(map[string]Plugin),
		enabled: make(map[string]bool),
	}
}

// Register makes a plugin known without enabling it.
func (m *Manager) Register(p Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := p.ID()
	if _, ok := m.plugins[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	m.plugins[id] = p
	m.order = append(m.order, id)
	return nil
}

// Enable activates a plugin. Enabling an enabled plugin is a no-op.
func (m *Manager) Enable(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enable(id); err != nil {
		return err
	}
	return m.persist()
}

// Disable deactivates a plugin and removes its routes.
func (m *Manager) Disable(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.disable(id); err != nil {
		return err
	}
	return m.persist()
}

// Reload disables and re-enables a plugin, picking up route changes.
func (m *Manager) Reload(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.disable(id); err != nil {
		return err
	}
	if err := m.enable(id); err != nil {
		_ = m.persist()
		return err
	}
	return nil
}

// Enabled returns the ids of enabled plugins in registration order.
func (m *Manager) Enabled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range m.order {
		if m.enabled[id] {
			out = append(out, id)
		}
	}
	return out
}

// List describes every registered plugin.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.order))
	for _, id := range m.order {
		info := Info{ID: id, Description: m.plugins[id].Description(), Enabled: m.enabled[id], Routes: []string{}}
		for _, r := range m.reg.Owned(id) {
			info.Routes = append(info.Routes, r.Pattern)
		}
		out = append(out, info)
	}
	return out
}

// Restore enables the plugins recorded in the store. Unknown or failing
// plugins are logged and skipped.
func (m *Manager) Restore() error {
	if m.store == nil {
		return nil
	}
	raw, ok, err := m.store.GetSetting(database.SettingActivePlugins)
	if err != nil {
		return fmt.Errorf("load enabled plugins: %w", err)
	}
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := m.enable(id); err != nil {
			m.log.WithError(err).WithField("plugin", id).Warn("plugin not restored")
		}
	}
	return nil
}

func (m *Manager) enable(id string) error {
	p, ok := m.plugins[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	if m.enabled[id] {
		return nil
	}
	routes := m.reg.For(id)
	if err := p.Activate(routes); err != nil {
		routes.UnregisterRoutes()
		return fmt.Errorf("activate %s: %w", id, err)
	}
	m.enabled[id] = true
	m.log.WithFields(logrus.Fields{"plugin": id, "routes": len(m.reg.Owned(id))}).Info("plugin enabled")
	return nil
}

func (m *Manager) disable(id string) error {
	p, ok := m.plugins[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	if !m.enabled[id] {
		return nil
	}
	removed := m.reg.UnregisterAll(id)
	if d, ok := p.(Deactivator); ok {
		d.Deactivate()
	}
	delete(m.enabled, id)
	m.log.WithFields(logrus.Fields{"plugin": id, "routes": removed}).Info("plugin disabled")
	return nil
}

func (m *Manager) persist() error {
	if m.store == nil {
		return nil
	}
	var ids []string
	for _, id := range m.order {
		if m.enabled[id] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if err := m.store.PutSetting(database.SettingActivePlugins, strings.Join(ids, ",")); err != nil {
		return fmt.Errorf("save enabled plugins: %w", err)
	}
	return nil
}
