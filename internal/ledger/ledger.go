// Package ledger abstracts the append-only settlement ledger for
// insurance cards.
//
// The ledger is the source of truth for settlement state. The
// coordinator only ever writes to it (create, status update, claim) and
// consumes the returned receipts; it never reads ledger state back on a
// write path. Receipts are opaque transaction hashes, unique per call.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ashita-ai/hoken/internal/model"
)

// TxHash is a ledger transaction receipt: "0x" followed by 64 hex
// characters.
type TxHash string

// ErrAlreadyClaimed is returned by TryClaim when the entry was claimed
// by an earlier call. The coordinator surfaces this to the caller
// verbatim; a rejected claim is an error, never a synthesized receipt.
var ErrAlreadyClaimed = errors.New("ledger: already claimed")

// ErrUnknownEntry is returned by TryClaim for an id the ledger has no
// entry for.
var ErrUnknownEntry = errors.New("ledger: unknown entry")

// Ledger is the capability contract for the settlement ledger.
// Implementations must be safe for concurrent use. Every side-effecting
// call returns a fresh receipt or an error, never both.
type Ledger interface {
	// CalculateID derives the canonical on-ledger key for a card. Pure
	// and deterministic: the same card always maps to the same key.
	CalculateID(card model.Card) string

	// Create registers a new card on the ledger.
	Create(ctx context.Context, card model.Card) (TxHash, error)

	// UpdateStatus registers a status transition for the card id.
	UpdateStatus(ctx context.Context, id string, status model.CardStatus) (TxHash, error)

	// TryClaim attempts to mark the card's entry as claimed. The ledger
	// is free to reject (already claimed, not eligible); rejection is
	// reported as an error.
	TryClaim(ctx context.Context, id string) (TxHash, error)

	// GetCard reads a card's ledger entry back. Unused by the
	// coordinator's write paths; exists for operator tooling.
	GetCard(ctx context.Context, calculatedID string) (model.Card, error)
}

// NewTxHash generates a random transaction hash.
func NewTxHash() (TxHash, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("ledger: generate tx hash: %w", err)
	}
	return TxHash("0x" + hex.EncodeToString(b[:])), nil
}
