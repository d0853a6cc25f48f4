package webclient

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/raysh454/auditai/internal/logging"
)

// Constructor builds a backend from its configuration.
type Constructor func(cfg Config, logger logging.Logger) (WebClient, error)

var backends = struct {
	sync.RWMutex
	byName map[Client]Constructor
}{
	byName: map[Client]Constructor{
		ClientNetHTTP: func(cfg Config, logger logging.Logger) (WebClient, error) {
			return NewNetHTTPClient(cfg, logger, nil)
		},
		ClientChromedp: func(cfg Config, logger logging.Logger) (WebClient, error) {
			return NewChromedpClient(cfg, logger)
		},
	},
}

// Register adds or replaces the backend called name.
func Register(name Client, ctor Constructor) {
	name = Client(strings.ToLower(strings.TrimSpace(string(name))))
	if name == "" || ctor == nil {
		return
	}
	backends.Lock()
	backends.byName[name] = ctor
	backends.Unlock()
}

// Backends lists the registered backend names in order.
func Backends() []Client {
	backends.RLock()
	defer backends.RUnlock()
	out := make([]Client, 0, len(backends.byName))
	for name := range backends.byName {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// NewWebClient builds the backend cfg.Client names, net/http when empty.
func NewWebClient(cfg Config, logger logging.Logger) (WebClient, error) {
	name := Client(strings.ToLower(strings.TrimSpace(string(cfg.Client))))
	if name == "" {
		name = ClientNetHTTP
	}

	backends.RLock()
	ctor, ok := backends.byName[name]
	backends.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown webclient backend %q (have %v)", name, Backends())
	}

	wc, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("starting webclient backend %q: %w", name, err)
	}
	if wc == nil {
		return nil, fmt.Errorf("webclient backend %q returned no client", name)
	}
	return wc, nil
}
