// Package cards provides the write-coordination logic for insurance
// card records.
//
// Every logical operation fans out to up to three backends: the record
// store (Postgres, source of truth for fields), the search index
// (disposable text projection), and the ledger (source of truth for
// settlement state). Both the HTTP API and the MCP server delegate
// here, so the fan-out rules live in exactly one place.
//
// Fan-out is best-effort: concurrent side-effect writes are all
// awaited, but there is no compensation or rollback. A failed ledger
// or index write after a successful store write fails the logical
// operation and leaves the store authoritative. Reconciliation is an
// operator concern, not hidden by this layer.
package cards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/hoken/internal/ledger"
	"github.com/ashita-ai/hoken/internal/model"
	"github.com/ashita-ai/hoken/internal/search"
	"github.com/ashita-ai/hoken/internal/storage"
	"github.com/ashita-ai/hoken/internal/telemetry"
)

// Store is the record store surface the coordinator needs. *storage.DB
// implements it; tests substitute an in-memory fake.
type Store interface {
	CreateAgentProfile(ctx context.Context, spec model.AgentProfileSpec) (model.AgentProfile, error)
	CreateCard(ctx context.Context, card model.Card) (model.Card, error)
	GetCard(ctx context.Context, id uuid.UUID) (model.Card, error)
	UpdateCard(ctx context.Context, id uuid.UUID, patch model.CardPatch) (model.Card, error)
	UpdateCardStatus(ctx context.Context, id uuid.UUID, status model.CardStatus) (model.Card, error)
}

// Service coordinates the three backends. It holds no mutable state of
// its own: all per-operation state lives on the stack, so concurrent
// operations never interleave inside the coordinator itself.
type Service struct {
	store  Store
	index  search.Index
	ledger ledger.Ledger
	logger *slog.Logger

	ledgerDuration metric.Float64Histogram
	searchDuration metric.Float64Histogram
}

// New creates a card coordination service.
func New(store Store, index search.Index, ldg ledger.Ledger, logger *slog.Logger) *Service {
	meter := telemetry.Meter("hoken/cards")
	ledgerDur, _ := meter.Float64Histogram("hoken.ledger.duration",
		metric.WithDescription("Time spent on ledger calls (ms)"),
		metric.WithUnit("ms"),
	)
	searchDur, _ := meter.Float64Histogram("hoken.search.duration",
		metric.WithDescription("Time to execute search queries (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{
		store:          store,
		index:          index,
		ledger:         ldg,
		logger:         logger,
		ledgerDuration: ledgerDur,
		searchDuration: searchDur,
	}
}

// Create persists a new card and registers it with the ledger and the
// search index.
//
// Ordering: the agent profile row must exist before the card row (FK
// constraint), so those two writes are sequential and abort the whole
// operation on failure. The ledger registration and index submission
// have no ordering dependency and run concurrently; both are awaited.
// If either fails the operation fails, but the already-persisted store
// rows are NOT rolled back.
func (s *Service) Create(ctx context.Context, req model.CreateCardRequest) (model.Card, ledger.TxHash, error) {
	if err := req.Validate(); err != nil {
		return model.Card{}, "", fmt.Errorf("cards: %w", err)
	}

	profile, err := s.store.CreateAgentProfile(ctx, req.AgentProfile)
	if err != nil {
		return model.Card{}, "", fmt.Errorf("cards: create agent profile: %w", err)
	}

	talebMade := false
	if req.TalebMade != nil {
		talebMade = *req.TalebMade
	}
	card, err := s.store.CreateCard(ctx, model.Card{
		Name:           req.Name,
		Detail:         req.Detail,
		Creator:        req.Creator,
		Metadata:       req.Metadata,
		Status:         req.Status,
		TalebMade:      talebMade,
		AgentProfileID: profile.ID,
	})
	if err != nil {
		return model.Card{}, "", fmt.Errorf("cards: create card: %w", err)
	}

	var tx ledger.TxHash
	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		var lerr error
		tx, lerr = s.ledger.Create(ctx, card)
		s.ledgerDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
		return lerr
	})
	g.Go(func() error {
		return s.index.AddDocuments(ctx, []search.Document{{
			Content: card.IndexText(),
			Source:  card.ID.String(),
		}})
	})
	if err := g.Wait(); err != nil {
		// The store rows stay: the card exists but the ledger or index
		// is now behind it. Logged so operators can reconcile.
		s.logger.Warn("cards: create fan-out failed, store write retained",
			"card_id", card.ID, "error", err)
		return model.Card{}, "", err
	}

	s.logger.Info("cards: card created", "card_id", card.ID, "tx_hash", tx)
	return card, tx, nil
}

// Update applies a sparse patch to the store and notifies the ledger,
// concurrently. Fields absent from the patch keep their current values.
//
// The ledger is notified on every update, even when the patch carries
// no status; the transition argument is then empty. The search index
// is NOT refreshed here, so renamed cards keep their old index text
// until re-created.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch model.CardPatch) (model.Card, ledger.TxHash, error) {
	if err := patch.Validate(); err != nil {
		return model.Card{}, "", fmt.Errorf("cards: %w", err)
	}

	var status model.CardStatus
	if patch.Status != nil {
		status = *patch.Status
	}

	var card model.Card
	var tx ledger.TxHash
	var g errgroup.Group
	g.Go(func() error {
		var serr error
		card, serr = s.store.UpdateCard(ctx, id, patch)
		return serr
	})
	g.Go(func() error {
		start := time.Now()
		var lerr error
		tx, lerr = s.ledger.UpdateStatus(ctx, id.String(), status)
		s.ledgerDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
		return lerr
	})
	if err := g.Wait(); err != nil {
		return model.Card{}, "", fmt.Errorf("cards: update card: %w", err)
	}
	return card, tx, nil
}

// UpdateStatus moves the card to the given status. The status is
// validated against the enumeration before any backend is touched, but
// no transition table is enforced: any status may follow any other.
// Which transitions settle is the ledger's concern.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status model.CardStatus) (model.Card, ledger.TxHash, error) {
	if err := model.ValidateStatus(status); err != nil {
		return model.Card{}, "", fmt.Errorf("cards: %w", err)
	}

	var card model.Card
	var tx ledger.TxHash
	var g errgroup.Group
	g.Go(func() error {
		var serr error
		card, serr = s.store.UpdateCardStatus(ctx, id, status)
		return serr
	})
	g.Go(func() error {
		start := time.Now()
		var lerr error
		tx, lerr = s.ledger.UpdateStatus(ctx, id.String(), status)
		s.ledgerDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
		return lerr
	})
	if err := g.Wait(); err != nil {
		return model.Card{}, "", fmt.Errorf("cards: update status: %w", err)
	}
	return card, tx, nil
}

// Claim attempts to claim the card's ledger entry. Pure ledger
// operation: no store or index side effects. A ledger rejection
// (already claimed, unknown entry) surfaces as an error.
func (s *Service) Claim(ctx context.Context, id uuid.UUID) (ledger.TxHash, error) {
	start := time.Now()
	tx, err := s.ledger.TryClaim(ctx, id.String())
	s.ledgerDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return "", err
	}
	s.logger.Info("cards: card claimed", "card_id", id, "tx_hash", tx)
	return tx, nil
}

// Get fetches a card with its agent profile from the store.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (model.Card, error) {
	return s.store.GetCard(ctx, id)
}

// Search retrieves up to search.TopK documents per query (all queries
// run concurrently), then resolves each document back to a full card.
//
// Result order is per-query rank, queries in input order; there is no
// global re-ranking and no cross-query de-duplication. Documents whose
// source no longer resolves (the card was deleted after indexing) are
// silently dropped, never an error.
func (s *Service) Search(ctx context.Context, queries []string) ([]model.Card, error) {
	if err := (model.SearchRequest{Queries: queries}).Validate(); err != nil {
		return nil, fmt.Errorf("cards: %w", err)
	}

	start := time.Now()
	defer func() {
		s.searchDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	perQuery := make([][]search.Document, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			docs, err := s.index.Retrieve(ctx, q)
			if err != nil {
				return err
			}
			perQuery[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cards := []model.Card{}
	for _, docs := range perQuery {
		for _, doc := range docs {
			cardID, err := uuid.Parse(doc.Source)
			if err != nil {
				s.logger.Warn("cards: index document with invalid source", "source", doc.Source)
				continue
			}
			card, err := s.store.GetCard(ctx, cardID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					// Stale index entry for a deleted card.
					continue
				}
				return nil, fmt.Errorf("cards: resolve search hit %s: %w", cardID, err)
			}
			cards = append(cards, card)
		}
	}
	return cards, nil
}
