package breaker

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry owns one breaker per dependency name for the process lifetime.
type Registry struct {
	mu       sync.Mutex
	settings Settings
	logger   *slog.Logger
	rec      StateRecorder
	breakers map[string]*Breaker
}

func NewRegistry(s Settings, logger *slog.Logger, rec StateRecorder) *Registry {
	return &Registry{
		settings: s,
		logger:   logger,
		rec:      rec,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.settings, r.logger, r.rec)
	r.breakers[name] = b
	return b
}

// DependencyState is one row of States.
type DependencyState struct {
	Name  string `json:"name"`
	State State  `json:"state"`
}

// States snapshots every breaker, sorted by name.
func (r *Registry) States() []DependencyState {
	r.mu.Lock()
	bs := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		bs = append(bs, b)
	}
	r.mu.Unlock()

	out := make([]DependencyState, 0, len(bs))
	for _, b := range bs {
		out = append(out, DependencyState{Name: b.Name(), State: b.State()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
