package modules

import (
	"fmt"
	"plugin"
	"sync"

	"github.com/funvibe/kiln/internal/config"
)

// Plugins are process-wide in Go: a library can be opened once and is never
// unloaded, so handles are shared between interpreter instances.
var (
	pluginMu sync.Mutex
	plugins  = map[string]*plugin.Plugin{}
)

// OpenNative opens the dynamic library at path and returns its handle and the
// exported init symbol. The caller checks the symbol's type, since the init
// signature refers to VM types this package cannot import.
func OpenNative(path string) (*plugin.Plugin, plugin.Symbol, error) {
	pluginMu.Lock()
	defer pluginMu.Unlock()

	p, ok := plugins[path]
	if !ok {
		var err error
		p, err = plugin.Open(path)
		if err != nil {
			return nil, nil, err
		}
		plugins[path] = p
		log.Infof("opened native module %s", path)
	}

	sym, err := p.Lookup(config.NativeModuleInit)
	if err != nil {
		return nil, nil, fmt.Errorf("missing %s: %w", config.NativeModuleInit, err)
	}
	return p, sym, nil
}
