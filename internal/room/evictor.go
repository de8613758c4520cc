package room

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EvictorConfig controls the idle-room sweep.
type EvictorConfig struct {
	Interval time.Duration
	IdleTTL  time.Duration
}

func DefaultEvictorConfig() EvictorConfig {
	return EvictorConfig{
		Interval: time.Minute,
		IdleTTL:  15 * time.Minute,
	}
}

// Evictor periodically unloads rooms with no connections and no recent
// activity, keeping registry growth bounded. Evicted state is persisted
// first and reloads on next access.
type Evictor struct {
	registry *Registry
	config   EvictorConfig
	log      zerolog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewEvictor(registry *Registry, config EvictorConfig, log zerolog.Logger) *Evictor {
	return &Evictor{
		registry: registry,
		config:   config,
		log:      log,
		stop:     make(chan struct{}),
	}
}

func (e *Evictor) Start() {
	e.wg.Add(1)
	go e.run()
	e.log.Info().
		Dur("interval", e.config.Interval).
		Dur("idle_ttl", e.config.IdleTTL).
		Msg("evictor started")
}

func (e *Evictor) Stop() {
	close(e.stop)
	e.wg.Wait()
}

func (e *Evictor) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

func (e *Evictor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	cutoff := time.Now().Add(-e.config.IdleTTL)
	if n := e.registry.evictIdle(ctx, cutoff); n > 0 {
		e.log.Info().Int("rooms", n).Msg("evicted idle rooms")
	}
}
