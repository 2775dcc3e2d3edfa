package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultReaperInterval = 30 * time.Second
	reaperTimeout         = 15 * time.Second
)

// InstanceReaper periodically stops expired instances and retries failed teardowns.
type InstanceReaper struct {
	instances InstanceService
	interval  time.Duration
	logger    zerolog.Logger
}

// NewInstanceReaper constructs a reaper ticking every interval.
func NewInstanceReaper(instances InstanceService, interval time.Duration, logger zerolog.Logger) *InstanceReaper {
	if interval <= 0 {
		interval = defaultReaperInterval
	}

	return &InstanceReaper{
		instances: instances,
		interval:  interval,
		logger:    logger.With().Str("component", "instance_reaper").Logger(),
	}
}

// Run executes the reconciliation loop until ctx is cancelled.
func (r *InstanceReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("instance reaper started")
	r.runIteration(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("instance reaper stopped")
			return
		case <-ticker.C:
			r.runIteration(ctx)
		}
	}
}

func (r *InstanceReaper) runIteration(parent context.Context) {
	timeout := reaperTimeout
	if r.interval < timeout {
		timeout = r.interval
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	expired, err := r.instances.ReapExpired(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to reap expired instances")
	}
	retried, err := r.instances.RetryTeardowns(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to retry pending teardowns")
	}

	if expired > 0 || retried > 0 {
		r.logger.Info().Int("expired", expired).Int("teardowns", retried).Msg("instances reconciled")
	}
}
