package model

import (
	"fmt"
	"time"
)

// Field length limits for caller-controlled text. These bound what flows
// into the embedding pipeline and Postgres TEXT columns.
const (
	MaxNameLen   = 500
	MaxDetailLen = 32 * 1024 // 32 KB
	MaxQueries   = 20
)

// AgentProfileSpec is the nested agent configuration submitted at card
// creation.
type AgentProfileSpec struct {
	SystemPrompt string         `json:"system_prompt"`
	Tools        []any          `json:"tools"`
	Sources      []string       `json:"sources"`
	Metadata     map[string]any `json:"metadata"`
}

// CreateCardRequest is the full specification for a new card.
type CreateCardRequest struct {
	Name         string           `json:"name"`
	Detail       string           `json:"detail"`
	Creator      string           `json:"creator"`
	Metadata     map[string]any   `json:"metadata"`
	Status       CardStatus       `json:"status"`
	TalebMade    *bool            `json:"taleb_made,omitempty"`
	AgentProfile AgentProfileSpec `json:"agent_profile"`
}

// Validate checks required fields and the status enumeration. It runs
// before any backend call.
func (r CreateCardRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Name) > MaxNameLen {
		return fmt.Errorf("name exceeds maximum length of %d characters", MaxNameLen)
	}
	if r.Detail == "" {
		return fmt.Errorf("detail is required")
	}
	if len(r.Detail) > MaxDetailLen {
		return fmt.Errorf("detail exceeds maximum length of %d bytes", MaxDetailLen)
	}
	if r.Creator == "" {
		return fmt.Errorf("creator is required")
	}
	return ValidateStatus(r.Status)
}

// UpdateStatusRequest carries a bare status transition.
type UpdateStatusRequest struct {
	Status CardStatus `json:"status"`
}

// SearchRequest carries one or more free-text queries. Each query is
// resolved independently against the index; results are concatenated in
// query order.
type SearchRequest struct {
	Queries []string `json:"queries"`
}

// Validate rejects a missing or oversized query list. An empty (but
// present) list is legal and returns no results.
func (r SearchRequest) Validate() error {
	if r.Queries == nil {
		return fmt.Errorf("queries must be an array")
	}
	if len(r.Queries) > MaxQueries {
		return fmt.Errorf("at most %d queries per request", MaxQueries)
	}
	return nil
}

// CreateCardResponse is returned from card creation: the persisted card
// plus the ledger registration receipt.
type CreateCardResponse struct {
	Card   Card   `json:"card"`
	TxHash string `json:"tx_hash"`
}

// UpdateCardResponse is returned from update and status-change
// operations.
type UpdateCardResponse struct {
	Card   Card   `json:"card"`
	TxHash string `json:"tx_hash"`
}

// ClaimResponse is returned from a claim: the ledger receipt only.
// A claim has no store or index side effects.
type ClaimResponse struct {
	TxHash string `json:"tx_hash"`
}

// APIResponse is the success envelope for all HTTP endpoints.
type APIResponse struct {
	Data any          `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the error envelope for all HTTP endpoints.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ErrorDetail carries a machine-readable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta is attached to every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Error codes used in ErrorDetail.Code.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// HealthResponse is returned from GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Search   string `json:"search"`
	Uptime   int64  `json:"uptime_seconds"`
}
