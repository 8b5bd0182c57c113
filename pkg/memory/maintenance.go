package memory

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Maintenance runs periodic housekeeping: pruning expired embedding cache
// entries and refreshing the chunk gauge.
type Maintenance struct {
	svc  *Service
	cron *cron.Cron
	log  zerolog.Logger
}

func newMaintenance(svc *Service, schedule string, log zerolog.Logger) (*Maintenance, error) {
	m := &Maintenance{
		svc:  svc,
		cron: cron.New(),
		log:  log.With().Str("component", "maintenance").Logger(),
	}
	if _, err := m.cron.AddFunc(schedule, m.run); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Maintenance) Start() {
	m.cron.Start()
	m.log.Info().Msg("Maintenance schedule started")
}

func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

func (m *Maintenance) run() {
	ctx := context.Background()

	if ttl := m.svc.cfg.CacheTTL; ttl > 0 {
		n, err := m.svc.embedder.cache.Prune(ctx, ttl)
		if err != nil {
			m.log.Warn().Err(err).Msg("Cache prune failed")
		} else if n > 0 {
			m.log.Debug().Int64("entries", n).Msg("Pruned expired cache entries")
		}
	}

	m.svc.refreshChunkGauge(ctx)
}
