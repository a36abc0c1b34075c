package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emberhq/cinder/internal/observability"
)

// RequestMeta carries the metering attributes of one request. The caller is
// already authenticated; Scope identifies the API key's counter scope and
// Policy is its raw rate-limit policy string (empty means unthrottled).
type RequestMeta struct {
	Provider string
	Scope    string
	Policy   string
}

// GatewayPipeline orchestrates metering per request: throttle check,
// provider forward, stream reduction, cost resolution, and billing
// publication. The reducer and biller run on a side channel: their faults
// degrade the billing record, never the client-facing response.
type GatewayPipeline struct {
	registry     ProviderRegistry
	gate         *ThrottleGate
	resolver     CostResolver
	counter      TokenCounter
	publisher    BillingPublisher
	congestion   CongestionSignal
	metrics      *observability.Metrics
	countTimeout time.Duration
}

// NewGatewayPipeline creates the pipeline (DI constructor).
func NewGatewayPipeline(
	registry ProviderRegistry,
	gate *ThrottleGate,
	resolver CostResolver,
	counter TokenCounter,
	publisher BillingPublisher,
	congestion CongestionSignal,
	metrics *observability.Metrics,
) *GatewayPipeline {
	return &GatewayPipeline{
		registry:     registry,
		gate:         gate,
		resolver:     resolver,
		counter:      counter,
		publisher:    publisher,
		congestion:   congestion,
		metrics:      metrics,
		countTimeout: 2 * time.Second,
	}
}

// admission is the throttle outcome carried through the request.
type admission struct {
	throttled bool
	policy    RateLimitPolicy
	segment   string
}

// Complete handles a non-streamed completion request.
func (g *GatewayPipeline) Complete(
	ctx context.Context,
	meta RequestMeta,
	req *CompletionRequest,
) (*CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if meta.Provider == "" {
		return nil, errors.New("provider name cannot be empty")
	}

	adm, err := g.admit(ctx, meta, req)
	if err != nil {
		return nil, err
	}

	provider, err := g.registry.Get(ctx, meta.Provider)
	if err != nil {
		return nil, fmt.Errorf("provider not found: %w", err)
	}

	if !provider.IsModelSupported(ctx, req.Model) {
		return nil, fmt.Errorf("%w: %s does not serve %q", ErrModelNotSupported, meta.Provider, req.Model)
	}

	g.record(ctx, meta, adm)

	response, err := provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	g.price(ctx, meta.Provider, response.Model, &response.Usage, &response.Cost, &response.Unpriced)
	g.publish(ctx, &BillingRecord{
		RequestID: observability.GetRequestID(ctx),
		Provider:  meta.Provider,
		Model:     response.Model,
		Scope:     meta.Scope,
		Segment:   adm.segment,
		Usage:     response.Usage,
		Cost:      response.Cost,
		Unpriced:  response.Unpriced,
		CreatedAt: time.Now(),
	})

	return response, nil
}

// Stream handles a streamed completion request. It returns the provider's
// fragments unchanged for the caller to relay to the client, while folding
// a copy of each fragment into a reducer. When the stream ends - or the
// client disconnects mid-stream - the folded fragments are finalized so the
// billing record reflects partial usage rather than none.
func (g *GatewayPipeline) Stream(
	ctx context.Context,
	meta RequestMeta,
	req *CompletionRequest,
) (<-chan StreamFragment, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if meta.Provider == "" {
		return nil, errors.New("provider name cannot be empty")
	}

	adm, err := g.admit(ctx, meta, req)
	if err != nil {
		return nil, err
	}

	provider, err := g.registry.Get(ctx, meta.Provider)
	if err != nil {
		return nil, fmt.Errorf("provider not found: %w", err)
	}

	if !provider.IsModelSupported(ctx, req.Model) {
		return nil, fmt.Errorf("%w: %s does not serve %q", ErrModelNotSupported, meta.Provider, req.Model)
	}

	fragments, err := provider.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to stream from provider: %w", err)
	}

	g.record(ctx, meta, adm)

	reducer := NewStreamReducer(meta.Provider, req, g.counter, g.countTimeout)
	out := make(chan StreamFragment)

	go func() {
		defer close(out)
		logger := observability.FromContext(ctx)

		malformedLogged := false
		for frag := range fragments {
			if frag.Err == nil {
				if foldErr := reducer.Fold(frag); foldErr != nil && !malformedLogged {
					// The reduction is aborted for billing, but the client
					// keeps receiving whatever the provider streamed.
					logger.Warn("stream reduction aborted",
						observability.Error(foldErr))
					if g.metrics != nil {
						g.metrics.RecordMalformedStream(meta.Provider)
					}
					malformedLogged = true
				}
			}
			out <- frag
		}

		// Billing must survive client cancellation.
		finalizeCtx := context.WithoutCancel(ctx)
		consolidated := reducer.Finalize(finalizeCtx)
		consolidated.Provider = meta.Provider

		g.price(finalizeCtx, meta.Provider, consolidated.Model, &consolidated.Usage,
			&consolidated.Cost, &consolidated.Unpriced)
		g.publish(finalizeCtx, &BillingRecord{
			RequestID:       observability.GetRequestID(ctx),
			Provider:        meta.Provider,
			Model:           consolidated.Model,
			Scope:           meta.Scope,
			Segment:         adm.segment,
			Streamed:        true,
			Usage:           consolidated.Usage,
			Cost:            consolidated.Cost,
			Unpriced:        consolidated.Unpriced,
			MalformedStream: reducer.Failed() != nil,
			CreatedAt:       time.Now(),
		})
	}()

	return out, nil
}

// admit parses the policy, resolves the segment, and runs the throttle
// check. Malformed policies and missing segment values are client errors
// rejected before the counter store is touched.
func (g *GatewayPipeline) admit(
	ctx context.Context,
	meta RequestMeta,
	req *CompletionRequest,
) (admission, error) {
	if meta.Policy == "" {
		return admission{}, nil
	}

	policy, err := ParsePolicy(meta.Policy)
	if err != nil {
		return admission{}, err
	}

	segment, err := ResolveSegment(policy, req)
	if err != nil {
		return admission{}, err
	}

	decision, err := g.gate.Check(ctx, policy, meta.Scope, segment)
	if err != nil {
		return admission{}, fmt.Errorf("throttle check failed: %w", err)
	}

	if !decision.Admit {
		if g.metrics != nil {
			g.metrics.RecordDenied()
		}
		return admission{}, &ThrottleDeniedError{Scope: meta.Scope, WindowSeconds: policy.WindowSeconds}
	}

	if g.metrics != nil {
		g.metrics.RecordAdmitted()
		if decision.FailedOpen {
			g.metrics.RecordFailOpen()
		}
	}

	return admission{throttled: true, policy: policy, segment: segment}, nil
}

// record books the admission into the counter store. Failures are warnings:
// the limiter is never a hard dependency for request handling.
func (g *GatewayPipeline) record(ctx context.Context, meta RequestMeta, adm admission) {
	if !adm.throttled {
		return
	}
	if err := g.gate.Record(ctx, adm.policy, meta.Scope, adm.segment, time.Now()); err != nil {
		observability.FromContext(ctx).Warn("failed to record admission",
			observability.Error(err))
	}
}

// price resolves the request cost in place. A missing catalog entry flags
// the request unpriced; it is never a request failure and never zero-cost.
func (g *GatewayPipeline) price(
	ctx context.Context,
	providerID string,
	model string,
	usage *TokenUsage,
	cost *float64,
	unpriced *bool,
) {
	resolved, err := g.resolver.Resolve(ctx, providerID, model, *usage, time.Now())
	if err != nil {
		if errors.Is(err, ErrNoPricing) {
			*unpriced = true
			if g.metrics != nil {
				g.metrics.RecordUnpriced(providerID, model)
			}
			observability.FromContext(ctx).Warn("request is unpriced",
				observability.String("model", model))
			return
		}
		observability.FromContext(ctx).Warn("cost resolution failed",
			observability.Error(err))
		return
	}
	*cost = resolved
}

// publish hands the billing record to the queue, shedding it when the queue
// is congested. A full downstream pipeline drops billing work rather than
// stalling client responses.
func (g *GatewayPipeline) publish(ctx context.Context, record *BillingRecord) {
	if g.publisher == nil {
		return
	}

	record.CatalogVersion = g.resolver.Version()

	if g.congestion != nil && g.congestion.Degraded() {
		observability.FromContext(ctx).Warn("billing queue congested, shedding record",
			observability.String("request_id", record.RequestID))
		if g.metrics != nil {
			g.metrics.RecordBillingDropped()
		}
		return
	}

	if err := g.publisher.Publish(ctx, record); err != nil {
		observability.FromContext(ctx).Warn("failed to publish billing record",
			observability.Error(err))
	}
}
