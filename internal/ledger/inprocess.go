package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashita-ai/hoken/internal/model"
)

// entry is the in-process ledger's record of one card: its last
// registered status, whether it has been claimed, and every receipt
// issued for it in order.
type entry struct {
	status   model.CardStatus
	claimed  bool
	receipts []TxHash
}

// InProcess implements Ledger entirely in memory. It stands in for the
// real distributed ledger in development and tests: receipts are
// random, entries are tracked so a second claim on the same id is
// rejected, and nothing survives a restart.
type InProcess struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewInProcess creates an empty in-process ledger.
func NewInProcess(logger *slog.Logger) *InProcess {
	return &InProcess{
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// CalculateID prefixes the card id with the ledger namespace.
func (l *InProcess) CalculateID(card model.Card) string {
	return "bc_" + card.ID.String()
}

// Create registers a new entry for the card and issues a receipt.
func (l *InProcess) Create(_ context.Context, card model.Card) (TxHash, error) {
	tx, err := NewTxHash()
	if err != nil {
		return "", err
	}

	id := card.ID.String()
	l.mu.Lock()
	l.entries[id] = &entry{status: card.Status, receipts: []TxHash{tx}}
	l.mu.Unlock()

	l.logger.Info("ledger: card registered", "card_id", id, "tx_hash", tx)
	return tx, nil
}

// UpdateStatus appends a status transition. Unknown ids get an entry
// implicitly: the ledger is append-only and derives its key
// deterministically, so a transition can always be recorded.
func (l *InProcess) UpdateStatus(_ context.Context, id string, status model.CardStatus) (TxHash, error) {
	tx, err := NewTxHash()
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &entry{}
		l.entries[id] = e
	}
	e.status = status
	e.receipts = append(e.receipts, tx)
	l.mu.Unlock()

	l.logger.Info("ledger: status updated", "card_id", id, "status", status, "tx_hash", tx)
	return tx, nil
}

// TryClaim marks the entry claimed. Rejects ids without an entry and
// entries already claimed.
func (l *InProcess) TryClaim(_ context.Context, id string) (TxHash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	if e.claimed {
		return "", fmt.Errorf("%w: %s", ErrAlreadyClaimed, id)
	}

	tx, err := NewTxHash()
	if err != nil {
		return "", err
	}
	e.claimed = true
	e.receipts = append(e.receipts, tx)

	l.logger.Info("ledger: card claimed", "card_id", id, "tx_hash", tx)
	return tx, nil
}

// GetCard is not supported by the in-process ledger. Postgres is the
// read path for card fields.
func (l *InProcess) GetCard(context.Context, string) (model.Card, error) {
	return model.Card{}, fmt.Errorf("ledger: GetCard not supported in-process; read from the record store")
}

// Receipts returns every receipt issued for the id, oldest first. Test
// hook.
func (l *InProcess) Receipts(id string) []TxHash {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return nil
	}
	out := make([]TxHash, len(e.receipts))
	copy(out, e.receipts)
	return out
}
