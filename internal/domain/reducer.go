package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emberhq/cinder/internal/observability"
)

// StreamReducer folds the ordered fragments of one streamed response into a
// single consolidated response plus a best-effort token count. One instance
// serves one in-flight request; Fold must not be called concurrently.
//
// The reducer is a side channel for billing and logging. It never touches
// the client-facing byte stream: aborting a reduction leaves the client's
// response untouched.
type StreamReducer struct {
	provider     string
	req          *CompletionRequest
	counter      TokenCounter
	countTimeout time.Duration

	id      string
	model   string
	choices []*choiceAccumulator
	usage   *TokenUsage
	failed  error
}

type choiceAccumulator struct {
	role         string
	content      strings.Builder
	toolCalls    []*toolCallAccumulator
	finishReason string
}

type toolCallAccumulator struct {
	id        string
	name      string
	arguments strings.Builder
}

// NewStreamReducer creates a reducer for one streamed request. The counter
// is consulted at Finalize only when the provider reported no usage, under
// the given timeout.
func NewStreamReducer(
	provider string,
	req *CompletionRequest,
	counter TokenCounter,
	countTimeout time.Duration,
) *StreamReducer {
	return &StreamReducer{
		provider:     provider,
		req:          req,
		counter:      counter,
		countTimeout: countTimeout,
	}
}

// Fold merges one decoded fragment into the accumulator. Fragments must be
// folded in arrival order. A fragment referencing an index gap returns an
// error wrapping ErrMalformedStream and aborts further reduction for this
// request; data already folded is retained for partial billing.
func (r *StreamReducer) Fold(frag StreamFragment) error {
	if r.failed != nil {
		return r.failed
	}

	// Scalars are fixed by the first non-empty value; later empties never
	// clear them.
	if r.id == "" && frag.ID != "" {
		r.id = frag.ID
	}
	if r.model == "" && frag.Model != "" {
		r.model = frag.Model
	}
	if frag.Usage != nil {
		usage := *frag.Usage
		r.usage = &usage
	}

	for _, choice := range frag.Choices {
		if err := r.foldChoice(choice); err != nil {
			r.failed = err
			return err
		}
	}

	return nil
}

func (r *StreamReducer) foldChoice(choice FragmentChoice) error {
	switch {
	case choice.Index == len(r.choices):
		r.choices = append(r.choices, &choiceAccumulator{})
	case choice.Index > len(r.choices):
		return fmt.Errorf("%w: choice index %d skips past %d known choices",
			ErrMalformedStream, choice.Index, len(r.choices))
	}

	acc := r.choices[choice.Index]

	if acc.role == "" && choice.Role != "" {
		acc.role = choice.Role
	}
	if acc.finishReason == "" && choice.FinishReason != "" {
		acc.finishReason = choice.FinishReason
	}

	if choice.Legacy {
		acc.content.WriteString(choice.Text)
	} else {
		acc.content.WriteString(choice.ContentDelta)
	}

	for _, delta := range choice.ToolCalls {
		switch {
		case delta.Index == len(acc.toolCalls):
			acc.toolCalls = append(acc.toolCalls, &toolCallAccumulator{})
		case delta.Index > len(acc.toolCalls):
			return fmt.Errorf("%w: tool call index %d skips past %d known calls at choice %d",
				ErrMalformedStream, delta.Index, len(acc.toolCalls), choice.Index)
		}

		call := acc.toolCalls[delta.Index]
		if call.id == "" && delta.ID != "" {
			call.id = delta.ID
		}
		if call.name == "" && delta.Name != "" {
			call.name = delta.Name
		}
		call.arguments.WriteString(delta.ArgumentsDelta)
	}

	return nil
}

// Failed returns the malformed-stream error that aborted reduction, if any.
func (r *StreamReducer) Failed() error {
	return r.failed
}

// Finalize builds the consolidated response after the upstream stream ends.
// It is also called after client cancellation so partial usage is still
// billed. When the provider reported no usage, tokens are estimated from the
// request and consolidated text; if estimation fails or times out the usage
// is marked Uncounted rather than zero.
func (r *StreamReducer) Finalize(ctx context.Context) *ConsolidatedResponse {
	resp := &ConsolidatedResponse{
		ID:         r.id,
		Model:      r.model,
		Provider:   r.provider,
		Choices:    make([]ConsolidatedChoice, 0, len(r.choices)),
		FinishTime: time.Now(),
	}

	for _, acc := range r.choices {
		choice := ConsolidatedChoice{
			Role:         acc.role,
			Content:      acc.content.String(),
			FinishReason: acc.finishReason,
		}
		for _, call := range acc.toolCalls {
			choice.ToolCalls = append(choice.ToolCalls, ToolCall{
				ID:        call.id,
				Name:      call.name,
				Arguments: call.arguments.String(),
			})
		}
		resp.Choices = append(resp.Choices, choice)
	}

	if r.usage != nil {
		resp.Usage = *r.usage
		return resp
	}

	resp.Usage = r.estimateUsage(ctx, resp)
	return resp
}

func (r *StreamReducer) estimateUsage(ctx context.Context, resp *ConsolidatedResponse) TokenUsage {
	logger := observability.FromContext(ctx)

	if r.counter == nil {
		logger.Warn("no token counter configured, reporting usage as uncounted")
		return TokenUsage{Uncounted: true}
	}

	// Finalize sits on the response path; the counter call is bounded so a
	// slow tokenizer degrades to an uncounted result instead of stalling.
	countCtx := ctx
	if r.countTimeout > 0 {
		var cancel context.CancelFunc
		countCtx, cancel = context.WithTimeout(ctx, r.countTimeout)
		defer cancel()
	}

	prompt, err := r.counter.CountTokens(countCtx, requestText(r.req), r.model)
	if err != nil {
		logger.Warn("prompt token counting failed, reporting usage as uncounted",
			observability.Error(err),
			observability.Duration("count_timeout", r.countTimeout))
		return TokenUsage{Uncounted: true}
	}

	completion, err := r.counter.CountTokens(countCtx, responseText(resp), r.model)
	if err != nil {
		logger.Warn("completion token counting failed, reporting usage as uncounted",
			observability.Error(err),
			observability.Duration("count_timeout", r.countTimeout))
		return TokenUsage{Uncounted: true}
	}

	return TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}
}

// requestText concatenates the request messages for token counting.
func requestText(req *CompletionRequest) string {
	if req == nil {
		return ""
	}
	var builder strings.Builder
	for _, msg := range req.Messages {
		builder.WriteString(msg.Role)
		builder.WriteString(": ")
		builder.WriteString(msg.Content)
		builder.WriteString("\n")
	}
	return builder.String()
}

// responseText concatenates consolidated content and tool call arguments for
// token counting.
func responseText(resp *ConsolidatedResponse) string {
	var builder strings.Builder
	for _, choice := range resp.Choices {
		builder.WriteString(choice.Content)
		for _, call := range choice.ToolCalls {
			builder.WriteString(call.Name)
			builder.WriteString(call.Arguments)
		}
	}
	return builder.String()
}
