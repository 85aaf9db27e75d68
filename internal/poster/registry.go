package poster

import (
	"sync"

	"github.com/rs/zerolog"

	"bandaid/internal/blob"
)

// Registry hands out the singleton agent for each poster id.
type Registry struct {
	store     Store
	blobs     blob.Store
	extractor Extractor
	publisher Publisher
	hosts     PublicHosts
	logger    zerolog.Logger

	mu     sync.Mutex
	agents map[string]*Agent
}

// NewRegistry creates a Registry wiring each agent to the shared
// dependencies.
func NewRegistry(store Store, blobs blob.Store, extractor Extractor, publisher Publisher, hosts PublicHosts, logger zerolog.Logger) *Registry {
	return &Registry{
		store:     store,
		blobs:     blobs,
		extractor: extractor,
		publisher: publisher,
		hosts:     hosts,
		logger:    logger,
		agents:    make(map[string]*Agent),
	}
}

// Get returns the agent for id, creating it on first use. The same id
// always yields the same instance, so per-poster serialization holds
// process-wide.
func (r *Registry) Get(id string) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[id]; ok {
		return agent
	}
	agent := &Agent{
		id:        id,
		store:     r.store,
		blobs:     r.blobs,
		extractor: r.extractor,
		publisher: r.publisher,
		hosts:     r.hosts,
		logger:    r.logger,
	}
	r.agents[id] = agent
	return agent
}

// Evict drops the in-memory instance after a Destroy. A later Get recreates
// a fresh agent over whatever rows remain.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}
