package billing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/emberhq/cinder/internal/domain"
	"github.com/emberhq/cinder/internal/observability"
)

const sampleTimeout = 5 * time.Second

// CongestionMonitor periodically samples the billing queue depth and flips
// a degraded flag when it exceeds the threshold. The pipeline reads the
// flag to shed billing work instead of letting a full queue apply
// back-pressure onto request admission.
type CongestionMonitor struct {
	publisher domain.BillingPublisher
	threshold int64
	schedule  string
	metrics   *observability.Metrics

	cron     *cron.Cron
	degraded atomic.Bool
}

// NewCongestionMonitor creates a monitor sampling on the given cron
// schedule (for example "@every 15s").
func NewCongestionMonitor(
	publisher domain.BillingPublisher,
	threshold int64,
	schedule string,
	metrics *observability.Metrics,
) *CongestionMonitor {
	return &CongestionMonitor{
		publisher: publisher,
		threshold: threshold,
		schedule:  schedule,
		metrics:   metrics,
	}
}

// Start begins periodic sampling. The first sample runs immediately so the
// gateway does not serve with a stale default after restart.
func (m *CongestionMonitor) Start() error {
	m.Sample()

	m.cron = cron.New()
	if _, err := m.cron.AddFunc(m.schedule, m.Sample); err != nil {
		return fmt.Errorf("invalid congestion sample schedule %q: %w", m.schedule, err)
	}
	m.cron.Start()

	return nil
}

// Stop halts sampling.
func (m *CongestionMonitor) Stop() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

// Degraded reports whether the billing queue is congested.
func (m *CongestionMonitor) Degraded() bool {
	return m.degraded.Load()
}

// Sample polls the queue depth once and updates the degraded flag.
func (m *CongestionMonitor) Sample() {
	ctx, cancel := context.WithTimeout(context.Background(), sampleTimeout)
	defer cancel()

	logger := observability.FromContext(ctx)

	depth, err := m.publisher.Depth(ctx)
	if err != nil {
		// Keep the last known state; a blind sampler must not flap the flag.
		logger.Warn("failed to sample billing queue depth",
			observability.Error(err))
		return
	}

	degraded := depth > m.threshold
	previous := m.degraded.Swap(degraded)

	if m.metrics != nil {
		m.metrics.SetQueueDepth(depth)
		m.metrics.SetDegraded(degraded)
	}

	if degraded != previous {
		logger.Warn("billing queue congestion state changed",
			observability.Int64("depth", depth),
			observability.Int64("threshold", m.threshold),
			observability.Bool("degraded", degraded))
	}
}
