package domain

import "time"

// CompletionRequest represents a unified LLM request.
type CompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
	User        string            `json:"user,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// ToolCall is one consolidated tool invocation in a response choice.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// TokenUsage tracks token consumption for a request.
//
// Uncounted distinguishes "token counting failed" from "zero tokens": billing
// must never read an unknown count as free. Estimated marks counts produced by
// the local estimator rather than reported by the provider.
type TokenUsage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	CacheReadTokens  int  `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int  `json:"cache_write_tokens,omitempty"`
	Images           int  `json:"images,omitempty"`
	Calls            int  `json:"calls,omitempty"`
	Estimated        bool `json:"estimated,omitempty"`
	Uncounted        bool `json:"uncounted,omitempty"`
}

// StreamFragment is one decoded unit of a provider's streamed reply.
// Fragments arrive strictly in emission order for a single request.
type StreamFragment struct {
	ID      string           `json:"id,omitempty"`
	Model   string           `json:"model,omitempty"`
	Choices []FragmentChoice `json:"choices,omitempty"`
	// Usage carries authoritative token counts when the provider emits them,
	// typically on the final fragment.
	Usage *TokenUsage `json:"usage,omitempty"`
	Err   error       `json:"-"`
}

// FragmentChoice is the per-choice payload of a fragment. Delta-style
// fragments fill Role/ContentDelta/ToolCalls; legacy completion-style
// fragments set Legacy and carry a flat Text chunk instead.
type FragmentChoice struct {
	Index        int             `json:"index"`
	Role         string          `json:"role,omitempty"`
	ContentDelta string          `json:"content_delta,omitempty"`
	ToolCalls    []ToolCallDelta `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Legacy       bool            `json:"legacy,omitempty"`
	Text         string          `json:"text,omitempty"`
}

// ToolCallDelta is a partial tool call keyed by a stable array index.
type ToolCallDelta struct {
	Index          int    `json:"index"`
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	ArgumentsDelta string `json:"arguments_delta,omitempty"`
}

// ConsolidatedChoice is one fully reconstructed response choice.
type ConsolidatedChoice struct {
	Role         string     `json:"role,omitempty"`
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// ConsolidatedResponse is a single logical response reconstructed from a
// stream, shaped identically to a non-streamed completion so it can be
// billed and logged the same way.
type ConsolidatedResponse struct {
	ID         string               `json:"id"`
	Model      string               `json:"model"`
	Provider   string               `json:"provider"`
	Choices    []ConsolidatedChoice `json:"choices"`
	Usage      TokenUsage           `json:"usage"`
	Cost       float64              `json:"cost,omitempty"`
	Unpriced   bool                 `json:"unpriced,omitempty"`
	FinishTime time.Time            `json:"finish_time"`
}

// Content returns the first choice's content, empty when there are no choices.
func (r *ConsolidatedResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Content
}

// CompletionResponse represents a unified non-streamed LLM response.
type CompletionResponse struct {
	ID         string     `json:"id"`
	Model      string     `json:"model"`
	Provider   string     `json:"provider"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Usage      TokenUsage `json:"usage"`
	Cost       float64    `json:"cost,omitempty"`
	Unpriced   bool       `json:"unpriced,omitempty"`
	FinishTime time.Time  `json:"finish_time"`
}

// BillingRecord is the per-request metering document handed to the billing
// queue. Degraded outcomes are carried as flags so the warehouse can
// distinguish unpriced, uncounted, and anomalous requests from normal ones.
type BillingRecord struct {
	RequestID       string     `json:"request_id"`
	Provider        string     `json:"provider"`
	Model           string     `json:"model"`
	Scope           string     `json:"scope,omitempty"`
	Segment         string     `json:"segment,omitempty"`
	Streamed        bool       `json:"streamed"`
	Usage           TokenUsage `json:"usage"`
	Cost            float64    `json:"cost"`
	Unpriced        bool       `json:"unpriced,omitempty"`
	MalformedStream bool       `json:"malformed_stream,omitempty"`
	CatalogVersion  string     `json:"catalog_version,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
