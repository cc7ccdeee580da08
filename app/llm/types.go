package llm

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse marks a model reply that could not be parsed into the
// typed analysis result. The article keeps its raw fields in that case.
var ErrMalformedResponse = errors.New("malformed model response")

// ProviderError is a non-2xx reply from the provider. Fatal errors
// (authentication, quota) abort the remaining batch instead of retrying.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// Fatal reports whether retrying the call is pointless: bad credentials or
// an exhausted quota will not recover within a batch.
func (e *ProviderError) Fatal() bool {
	switch e.StatusCode {
	case 401, 402, 403, 429:
		return true
	}
	return false
}

// IsFatal reports whether err is a provider error that must abort the batch.
func IsFatal(err error) bool {
	var provider *ProviderError
	return errors.As(err, &provider) && provider.Fatal()
}

// IsTransient reports whether err is worth a bounded retry: timeouts,
// network failures and 5xx-class provider errors.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var provider *ProviderError
	if errors.As(err, &provider) {
		return !provider.Fatal()
	}
	// Network-level failures (timeouts, connection resets) surface as plain
	// wrapped errors from the HTTP client.
	return true
}

// CategoryOption is one category offered to the model for assignment.
type CategoryOption struct {
	Name        string
	Slug        string
	Description string
}

// AnalysisRequest carries everything one enrichment call needs.
type AnalysisRequest struct {
	Title          string
	Author         string
	Content        string // already image-stripped and truncated
	InterestPrompt string
	Categories     []CategoryOption
}

// Analysis is the typed result of one enrichment call.
type Analysis struct {
	Title          string
	Subtitle       string
	Summary        string
	CategorySlug   string // empty when the model found no match
	RelevanceScore float64
}

// Usage is the token accounting reported by the provider, used to reconcile
// the rate limiter estimate.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
