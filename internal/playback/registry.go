package playback

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-signage/backend/internal/blobcache"
)

// Registry holds the running playback controller per display and enforces
// at-most-one engine per screen.
type Registry struct {
	catalog  CatalogProvider
	surfaces SurfaceFactory
	cache    *blobcache.Cache
	playlog  PlayLogger
	sink     EventSink
	opts     Options
	popts    PlayerOptions
	logger   *zap.Logger

	mu          sync.RWMutex
	controllers map[uuid.UUID]*Controller
}

// NewRegistry creates a registry sharing the given collaborators across all
// display engines.
func NewRegistry(catalog CatalogProvider, surfaces SurfaceFactory, cache *blobcache.Cache,
	playlog PlayLogger, sink EventSink, opts Options, popts PlayerOptions, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		catalog:     catalog,
		surfaces:    surfaces,
		cache:       cache,
		playlog:     playlog,
		sink:        sink,
		opts:        opts,
		popts:       popts,
		logger:      logger,
		controllers: make(map[uuid.UUID]*Controller),
	}
}

// Start launches the controller for a display if not already running. The
// optional location overrides the registry-wide evaluation zone.
func (r *Registry) Start(displayID uuid.UUID, opts ...func(*Options)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.controllers[displayID] != nil {
		return
	}
	o := r.opts
	for _, fn := range opts {
		fn(&o)
	}
	ctrl := NewController(displayID, r.catalog, r.surfaces, r.cache, r.playlog, r.sink, o, r.popts, r.logger)
	r.controllers[displayID] = ctrl
	ctrl.Start()
}

// Stop halts and removes the controller for a display.
func (r *Registry) Stop(displayID uuid.UUID) {
	r.mu.Lock()
	ctrl := r.controllers[displayID]
	delete(r.controllers, displayID)
	r.mu.Unlock()
	if ctrl != nil {
		ctrl.Stop()
	}
}

// Get returns the running controller for a display, if any.
func (r *Registry) Get(displayID uuid.UUID) *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.controllers[displayID]
}

// StopAll halts every running controller (server shutdown).
func (r *Registry) StopAll() {
	r.mu.Lock()
	controllers := r.controllers
	r.controllers = make(map[uuid.UUID]*Controller)
	r.mu.Unlock()
	for _, ctrl := range controllers {
		ctrl.Stop()
	}
}
