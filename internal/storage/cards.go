package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/hoken/internal/model"
)

// CreateAgentProfile inserts a new agent profile. The coordinator calls
// this before CreateCard: the card row carries a NOT NULL foreign key to
// the profile, so the profile id must exist first.
func (db *DB) CreateAgentProfile(ctx context.Context, spec model.AgentProfileSpec) (model.AgentProfile, error) {
	p := model.AgentProfile{
		ID:           uuid.New(),
		SystemPrompt: spec.SystemPrompt,
		Tools:        spec.Tools,
		Sources:      spec.Sources,
		Metadata:     spec.Metadata,
	}
	if p.Tools == nil {
		p.Tools = []any{}
	}
	if p.Sources == nil {
		p.Sources = []string{}
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO agent_profiles (id, system_prompt, tools, sources, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.SystemPrompt, p.Tools, p.Sources, p.Metadata, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return model.AgentProfile{}, fmt.Errorf("storage: create agent profile: %w", err)
	}
	return p, nil
}

// CreateCard inserts a new card linked to an existing agent profile and
// returns it with the profile attached.
func (db *DB) CreateCard(ctx context.Context, card model.Card) (model.Card, error) {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	if card.Metadata == nil {
		card.Metadata = map[string]any{}
	}
	now := time.Now().UTC()
	card.CreatedAt = now
	card.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO insurance_cards (id, name, detail, creator, metadata, status, taleb_made, agent_profile_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		card.ID, card.Name, card.Detail, card.Creator, card.Metadata,
		string(card.Status), card.TalebMade, card.AgentProfileID, card.CreatedAt, card.UpdatedAt,
	)
	if err != nil {
		return model.Card{}, fmt.Errorf("storage: create card: %w", err)
	}
	return db.GetCard(ctx, card.ID)
}

// GetCard fetches a card with its agent profile. Returns ErrNotFound if
// no card has the given id.
func (db *DB) GetCard(ctx context.Context, id uuid.UUID) (model.Card, error) {
	var (
		c model.Card
		p model.AgentProfile
	)
	err := db.pool.QueryRow(ctx,
		`SELECT c.id, c.name, c.detail, c.creator, c.metadata, c.status, c.taleb_made,
		        c.agent_profile_id, c.created_at, c.updated_at,
		        p.id, p.system_prompt, p.tools, p.sources, p.metadata, p.created_at, p.updated_at
		 FROM insurance_cards c
		 JOIN agent_profiles p ON p.id = c.agent_profile_id
		 WHERE c.id = $1`,
		id,
	).Scan(
		&c.ID, &c.Name, &c.Detail, &c.Creator, &c.Metadata, &c.Status, &c.TalebMade,
		&c.AgentProfileID, &c.CreatedAt, &c.UpdatedAt,
		&p.ID, &p.SystemPrompt, &p.Tools, &p.Sources, &p.Metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Card{}, ErrNotFound
		}
		return model.Card{}, fmt.Errorf("storage: get card: %w", err)
	}
	c.AgentProfile = &p
	return c, nil
}

// UpdateCard applies a sparse patch: only non-nil fields are written,
// everything else keeps its current value. Returns the updated card, or
// ErrNotFound if the id has no row.
func (db *DB) UpdateCard(ctx context.Context, id uuid.UUID, patch model.CardPatch) (model.Card, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, time.Now().UTC()}

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Detail != nil {
		add("detail", *patch.Detail)
	}
	if patch.Creator != nil {
		add("creator", *patch.Creator)
	}
	if patch.Metadata != nil {
		add("metadata", patch.Metadata)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.TalebMade != nil {
		add("taleb_made", *patch.TalebMade)
	}

	tag, err := db.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE insurance_cards SET %s WHERE id = $1`, strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		return model.Card{}, fmt.Errorf("storage: update card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Card{}, ErrNotFound
	}
	return db.GetCard(ctx, id)
}

// UpdateCardStatus sets only the status field.
func (db *DB) UpdateCardStatus(ctx context.Context, id uuid.UUID, status model.CardStatus) (model.Card, error) {
	return db.UpdateCard(ctx, id, model.CardPatch{Status: &status})
}

// DeleteCard removes a card and its agent profile. The search index is
// deliberately not touched: stale index documents are filtered out at
// search time.
func (db *DB) DeleteCard(ctx context.Context, id uuid.UUID) error {
	var profileID uuid.UUID
	err := db.pool.QueryRow(ctx,
		`DELETE FROM insurance_cards WHERE id = $1 RETURNING agent_profile_id`, id,
	).Scan(&profileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: delete card: %w", err)
	}
	if _, err := db.pool.Exec(ctx, `DELETE FROM agent_profiles WHERE id = $1`, profileID); err != nil {
		return fmt.Errorf("storage: delete agent profile: %w", err)
	}
	return nil
}
