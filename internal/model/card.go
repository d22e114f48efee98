package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CardStatus represents the settlement status of an insurance card.
type CardStatus string

const (
	StatusFinished CardStatus = "FINISHED"
	StatusActive   CardStatus = "ACTIVE"
	StatusWaiting  CardStatus = "WAITING"
	StatusFailed   CardStatus = "FAILED"
)

// ValidateStatus checks that s is one of the four known statuses.
// The coordinator calls this before touching any backend: an unknown
// status must never reach the store or the ledger.
func ValidateStatus(s CardStatus) error {
	switch s {
	case StatusFinished, StatusActive, StatusWaiting, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid status %q (must be one of FINISHED, ACTIVE, WAITING, FAILED)", s)
	}
}

// AgentProfile is the agent configuration owned by exactly one card.
// It is created atomically with its parent card and has no independent
// lifecycle.
type AgentProfile struct {
	ID           uuid.UUID      `json:"id"`
	SystemPrompt string         `json:"system_prompt"`
	Tools        []any          `json:"tools"`
	Sources      []string       `json:"sources"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Card is an insurance card record. Postgres owns the descriptive fields;
// the ledger owns settlement state; the search index holds a disposable
// text projection (see IndexText).
type Card struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	Detail         string         `json:"detail"`
	Creator        string         `json:"creator"`
	Metadata       map[string]any `json:"metadata"`
	Status         CardStatus     `json:"status"`
	TalebMade      bool           `json:"taleb_made"`
	AgentProfileID uuid.UUID      `json:"-"`
	AgentProfile   *AgentProfile  `json:"agent_profile,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IndexText returns the free text projected into the search index for
// this card.
func (c Card) IndexText() string {
	return c.Name + "\n" + c.Detail
}

// CardPatch is a sparse update to a card. Nil fields are left untouched;
// only non-nil fields are written. Metadata is replaced wholesale when
// non-nil (it is opaque to the coordinator, so no deep merge).
type CardPatch struct {
	Name      *string        `json:"name,omitempty"`
	Detail    *string        `json:"detail,omitempty"`
	Creator   *string        `json:"creator,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Status    *CardStatus    `json:"status,omitempty"`
	TalebMade *bool          `json:"taleb_made,omitempty"`
}

// Validate checks the fields that are present: text fields respect the
// same length bounds as creation and a status must be in the
// enumeration. An empty patch is legal: it touches updated_at and
// nothing else.
func (p CardPatch) Validate() error {
	if p.Name != nil && len(*p.Name) > MaxNameLen {
		return fmt.Errorf("name exceeds maximum length of %d characters", MaxNameLen)
	}
	if p.Detail != nil && len(*p.Detail) > MaxDetailLen {
		return fmt.Errorf("detail exceeds maximum length of %d bytes", MaxDetailLen)
	}
	if p.Status != nil {
		if err := ValidateStatus(*p.Status); err != nil {
			return err
		}
	}
	return nil
}

// IsZero reports whether the patch changes nothing.
func (p CardPatch) IsZero() bool {
	return p.Name == nil && p.Detail == nil && p.Creator == nil &&
		p.Metadata == nil && p.Status == nil && p.TalebMade == nil
}
