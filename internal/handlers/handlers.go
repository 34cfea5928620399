package handlers

import (
	"time"

	"photonix-core/internal/catalog"
	"photonix-core/internal/eventbus"
	"photonix-core/internal/hls"
	"photonix-core/internal/indexer"
	"photonix-core/internal/scheduler"
	"photonix-core/internal/thumbnail"
)

// Handlers holds every collaborator the HTTP surface dispatches to.
type Handlers struct {
	catalog     *catalog.Registry
	idx         *indexer.Indexer
	thumbEngine *thumbnail.Engine
	hlsEngine   *hls.Engine
	bus         *eventbus.Bus
	sched       *scheduler.Scheduler

	photosDir string
	version   string
	startTime time.Time
}

// New constructs Handlers. version is the build identifier surfaced by
// GetVersion (e.g. a git tag or "dev").
func New(reg *catalog.Registry, idx *indexer.Indexer, thumbEngine *thumbnail.Engine, hlsEngine *hls.Engine, bus *eventbus.Bus, sched *scheduler.Scheduler, photosDir, version string) *Handlers {
	return &Handlers{
		catalog:     reg,
		idx:         idx,
		thumbEngine: thumbEngine,
		hlsEngine:   hlsEngine,
		bus:         bus,
		sched:       sched,
		photosDir:   photosDir,
		version:     version,
		startTime:   time.Now(),
	}
}
