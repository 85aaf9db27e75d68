package spotifyuser

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"bandaid/internal/blob"
	"bandaid/internal/spotify"
)

// Registry hands out the singleton agent for each Spotify user id.
type Registry struct {
	store     Store
	refresher Refresher
	sessions  SessionFactory
	posters   PosterDirectory
	blobs     blob.Store
	publisher Publisher
	brand     string
	logger    zerolog.Logger

	mu     sync.Mutex
	agents map[string]*Agent
}

// NewRegistry creates a Registry wiring each agent to the shared
// dependencies. A nil sessions factory defaults to real API sessions.
func NewRegistry(store Store, refresher Refresher, sessions SessionFactory, posters PosterDirectory, blobs blob.Store, publisher Publisher, brand string, logger zerolog.Logger) *Registry {
	if sessions == nil {
		sessions = func(ctx context.Context, token *oauth2.Token) Session {
			return spotify.NewWithToken(ctx, token)
		}
	}
	return &Registry{
		store:     store,
		refresher: refresher,
		sessions:  sessions,
		posters:   posters,
		blobs:     blobs,
		publisher: publisher,
		brand:     brand,
		logger:    logger,
		agents:    make(map[string]*Agent),
	}
}

// Get returns the agent for id, creating it on first use.
func (r *Registry) Get(id string) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[id]; ok {
		return agent
	}
	agent := &Agent{
		id:        id,
		store:     r.store,
		refresher: r.refresher,
		sessions:  r.sessions,
		posters:   r.posters,
		blobs:     r.blobs,
		publisher: r.publisher,
		brand:     r.brand,
		logger:    r.logger,
	}
	r.agents[id] = agent
	return agent
}

// Evict drops the in-memory instance after a Destroy.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}
