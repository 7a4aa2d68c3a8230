package addons

import (
	"sync"
)

// Plugin is the lifecycle contract an addon may implement. All hooks are
// optional at call time: a hook failure is logged by the installer and never
// fails the install or update that triggered it.
type Plugin interface {
	OnInstall() error
	OnUpdate(oldVersion, newVersion string) error
	OnUninstall() error
}

// PluginFactory constructs a plugin's lifecycle handler.
type PluginFactory func() Plugin

var (
	pluginsMu      sync.RWMutex
	pluginRegistry = make(map[string]PluginFactory)
)

// RegisterPlugin maps an addon identifier to its lifecycle handler
// constructor. Addons built into the panel binary register themselves in an
// init function; addons without registered Go code simply have no hooks.
func RegisterPlugin(identifier string, factory PluginFactory) {
	pluginsMu.Lock()
	defer pluginsMu.Unlock()
	pluginRegistry[identifier] = factory
}

// LookupPlugin resolves an addon identifier to its lifecycle handler, if
// one is registered.
func LookupPlugin(identifier string) (Plugin, bool) {
	pluginsMu.RLock()
	factory, ok := pluginRegistry[identifier]
	pluginsMu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}

// UnregisterPlugin removes a registered handler. Used by tests.
func UnregisterPlugin(identifier string) {
	pluginsMu.Lock()
	defer pluginsMu.Unlock()
	delete(pluginRegistry, identifier)
}
