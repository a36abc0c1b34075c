package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/emberhq/cinder/internal/domain"
	"github.com/emberhq/cinder/internal/observability"
)

const (
	headerProvider = "X-Provider"
	headerScope    = "X-Scope-Id"
	headerPolicy   = "X-Ratelimit-Policy"

	defaultScope = "default"
)

// Handler handles HTTP requests.
type Handler struct {
	pipeline *domain.GatewayPipeline
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(pipeline *domain.GatewayPipeline) *Handler {
	return &Handler{
		pipeline: pipeline,
	}
}

// HandleCompletion processes completion requests.
func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Provider is mandatory: pricing catalogs are per-provider and never
	// searched across providers, so the gateway refuses to guess.
	provider := r.Header.Get(headerProvider)
	if provider == "" {
		http.Error(w, "provider not specified in X-Provider header", http.StatusBadRequest)
		return
	}

	meta := domain.RequestMeta{
		Provider: provider,
		Scope:    r.Header.Get(headerScope),
		Policy:   r.Header.Get(headerPolicy),
	}
	if meta.Scope == "" {
		meta.Scope = defaultScope
	}

	ctx = observability.WithProvider(ctx, provider)
	ctx = observability.WithScope(ctx, meta.Scope)

	var req domain.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx = observability.WithModel(ctx, req.Model)

	// Provider and model are already on the context logger; repeating them
	// here would double the keys in the log line.
	logger := observability.FromContext(ctx)
	logger.Info("completion request received",
		observability.Bool("stream", req.Stream),
	)

	if req.Stream {
		h.handleStream(ctx, w, meta, &req)
		return
	}

	response, err := h.pipeline.Complete(ctx, meta, &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	logger.Info("completion succeeded",
		observability.Int("tokens", response.Usage.TotalTokens),
		observability.Float64("cost", response.Cost),
		observability.Bool("unpriced", response.Unpriced),
	)

	w.Header().Set("Content-Type", "application/json")
	encodeErr := json.NewEncoder(w).Encode(response)
	if encodeErr != nil {
		logger.Error("failed to encode response", observability.Error(encodeErr))
		http.Error(w, fmt.Sprintf("failed to encode response: %v", encodeErr), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) handleStream(
	ctx context.Context,
	w http.ResponseWriter,
	meta domain.RequestMeta,
	req *domain.CompletionRequest,
) {
	logger := observability.FromContext(ctx)
	logger.Info("stream request started")

	fragments, err := h.pipeline.Stream(ctx, meta, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for frag := range fragments {
		if frag.Err != nil {
			logger.Error("stream fragment error", observability.Error(frag.Err))
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", frag.Err.Error())
			flusher.Flush()
			continue
		}

		data, _ := json.Marshal(frag)
		fmt.Fprintf(w, "data: %s\n\n", string(data))
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
	logger.Info("stream completed")
}

// writeError maps domain errors to HTTP statuses: configuration errors are
// the caller's fault, throttle denials are 429, everything else is 500.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := observability.FromContext(ctx)

	switch {
	case errors.Is(err, domain.ErrInvalidPolicy),
		errors.Is(err, domain.ErrMissingSegment),
		errors.Is(err, domain.ErrModelNotSupported):
		logger.Warn("request rejected", observability.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrRateLimited):
		logger.Info("request throttled", observability.Error(err))
		var denied *domain.ThrottleDeniedError
		if errors.As(err, &denied) && denied.WindowSeconds > 0 {
			w.Header().Set("Retry-After", strconv.FormatUint(uint64(denied.WindowSeconds), 10))
		}
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		logger.Error("completion failed", observability.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}
