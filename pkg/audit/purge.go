package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nextsuite/authcore/pkg/observability"
)

// Purger deletes decision events past their retention window on a cron
// schedule. Entitlement change events are never purged.
type Purger struct {
	sink          *DBSink
	retentionDays int
	schedule      string
	logger        *observability.Logger
	metrics       *observability.Metrics
	cron          *cron.Cron
}

// NewPurger creates a retention purger backed by the given sink
func NewPurger(sink *DBSink, retentionDays int, schedule string, logger *observability.Logger) *Purger {
	return &Purger{
		sink:          sink,
		retentionDays: retentionDays,
		schedule:      schedule,
		logger:        logger,
	}
}

// WithMetrics attaches metrics to the purger
func (p *Purger) WithMetrics(m *observability.Metrics) *Purger {
	p.metrics = m
	return p
}

// Start registers the cron entry and begins scheduling
func (p *Purger) Start() error {
	p.cron = cron.New()
	_, err := p.cron.AddFunc(p.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := p.RunOnce(ctx); err != nil {
			p.logger.WithError(err).Error("Audit retention purge failed")
		}
	})
	if err != nil {
		return err
	}
	p.cron.Start()
	p.logger.WithField("schedule", p.schedule).
		WithField("retention_days", p.retentionDays).
		Info("Audit retention purger started")
	return nil
}

// Stop halts scheduling and waits for a running purge to finish
func (p *Purger) Stop() {
	if p.cron != nil {
		stopCtx := p.cron.Stop()
		<-stopCtx.Done()
	}
}

// RunOnce performs a single purge pass
func (p *Purger) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -p.retentionDays)
	purged, err := p.sink.PurgeDecisionEvents(ctx, cutoff)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.AuditPurgedEvents.Add(float64(purged))
	}
	p.logger.WithField("purged", purged).
		WithField("cutoff", cutoff.Format(time.RFC3339)).
		Info("Audit retention purge completed")
	return nil
}
