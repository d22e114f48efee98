package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hoken/internal/ledger"
	"github.com/ashita-ai/hoken/internal/model"
	"github.com/ashita-ai/hoken/internal/search"
	"github.com/ashita-ai/hoken/internal/service/cards"
	"github.com/ashita-ai/hoken/internal/service/embedding"
	"github.com/ashita-ai/hoken/internal/storage"
	"github.com/ashita-ai/hoken/internal/testutil"
)

// memStore is an in-memory cards.Store for tool handler tests.
type memStore struct {
	profiles map[uuid.UUID]model.AgentProfile
	cards    map[uuid.UUID]model.Card
}

func newMemStore() *memStore {
	return &memStore{
		profiles: make(map[uuid.UUID]model.AgentProfile),
		cards:    make(map[uuid.UUID]model.Card),
	}
}

func (s *memStore) CreateAgentProfile(_ context.Context, spec model.AgentProfileSpec) (model.AgentProfile, error) {
	p := model.AgentProfile{
		ID:           uuid.New(),
		SystemPrompt: spec.SystemPrompt,
		Tools:        spec.Tools,
		Sources:      spec.Sources,
		Metadata:     spec.Metadata,
	}
	s.profiles[p.ID] = p
	return p, nil
}

func (s *memStore) CreateCard(_ context.Context, card model.Card) (model.Card, error) {
	card.ID = uuid.New()
	s.cards[card.ID] = card
	return card, nil
}

func (s *memStore) GetCard(_ context.Context, id uuid.UUID) (model.Card, error) {
	card, ok := s.cards[id]
	if !ok {
		return model.Card{}, storage.ErrNotFound
	}
	return card, nil
}

func (s *memStore) UpdateCard(_ context.Context, id uuid.UUID, patch model.CardPatch) (model.Card, error) {
	card, ok := s.cards[id]
	if !ok {
		return model.Card{}, storage.ErrNotFound
	}
	if patch.Name != nil {
		card.Name = *patch.Name
	}
	if patch.Detail != nil {
		card.Detail = *patch.Detail
	}
	if patch.Creator != nil {
		card.Creator = *patch.Creator
	}
	if patch.Metadata != nil {
		card.Metadata = patch.Metadata
	}
	if patch.Status != nil {
		card.Status = *patch.Status
	}
	if patch.TalebMade != nil {
		card.TalebMade = *patch.TalebMade
	}
	s.cards[id] = card
	return card, nil
}

func (s *memStore) UpdateCardStatus(ctx context.Context, id uuid.UUID, status model.CardStatus) (model.Card, error) {
	return s.UpdateCard(ctx, id, model.CardPatch{Status: &status})
}

func newTestMCPServer() (*Server, *memStore) {
	logger := testutil.TestLogger()
	store := newMemStore()
	index := search.NewSemanticIndex(
		func() (embedding.Provider, error) { return embedding.NewNoopProvider(8), nil },
		search.NewMemoryBackend(),
		logger,
	)
	svc := cards.New(store, index, ledger.NewInProcess(logger), logger)
	return New(svc, logger), store
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func createCardArgs() map[string]any {
	return map[string]any{
		"name":          "Fire insurance",
		"detail":        "Covers fire damage",
		"creator":       "agent-1",
		"status":        "WAITING",
		"system_prompt": "You assess fire claims.",
	}
}

func mustCreateCard(t *testing.T, s *Server) model.CreateCardResponse {
	t.Helper()
	result, err := s.handleCreateCard(context.Background(), callRequest("hoken_create_card", createCardArgs()))
	require.NoError(t, err)
	require.False(t, result.IsError, "create should succeed: %s", parseToolText(t, result))

	var resp model.CreateCardResponse
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	return resp
}

func TestHandleCreateCard(t *testing.T) {
	s, _ := newTestMCPServer()
	resp := mustCreateCard(t, s)

	assert.NotEqual(t, uuid.Nil, resp.Card.ID)
	assert.Equal(t, model.StatusWaiting, resp.Card.Status)
	assert.False(t, resp.Card.TalebMade)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, resp.TxHash)
}

func TestHandleCreateCardDefaultsStatus(t *testing.T) {
	s, _ := newTestMCPServer()

	args := createCardArgs()
	delete(args, "status")
	result, err := s.handleCreateCard(context.Background(), callRequest("hoken_create_card", args))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp model.CreateCardResponse
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, model.StatusWaiting, resp.Card.Status)
}

func TestHandleCreateCardAgentProfile(t *testing.T) {
	s, store := newTestMCPServer()

	args := createCardArgs()
	args["metadata"] = map[string]any{"region": "eu"}
	args["tools"] = []any{map[string]any{"name": "lookup"}}
	args["sources"] = []any{"policies.pdf"}
	args["agent_metadata"] = map[string]any{"version": "1"}

	result, err := s.handleCreateCard(context.Background(), callRequest("hoken_create_card", args))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var resp model.CreateCardResponse
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, map[string]any{"region": "eu"}, resp.Card.Metadata)

	require.Len(t, store.profiles, 1)
	for _, p := range store.profiles {
		assert.Equal(t, "You assess fire claims.", p.SystemPrompt)
		assert.Equal(t, []any{map[string]any{"name": "lookup"}}, p.Tools)
		assert.Equal(t, []string{"policies.pdf"}, p.Sources)
		assert.Equal(t, map[string]any{"version": "1"}, p.Metadata)
	}
}

func TestHandleCreateCardValidation(t *testing.T) {
	s, _ := newTestMCPServer()

	args := createCardArgs()
	args["status"] = "SHIPPED"
	result, err := s.handleCreateCard(context.Background(), callRequest("hoken_create_card", args))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "invalid status")

	result, err = s.handleCreateCard(context.Background(), callRequest("hoken_create_card", map[string]any{
		"detail": "x", "creator": "y",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "name is required")
}

func TestHandleGetCard(t *testing.T) {
	s, _ := newTestMCPServer()
	created := mustCreateCard(t, s)

	result, err := s.handleGetCard(context.Background(), callRequest("hoken_get_card", map[string]any{
		"card_id": created.Card.ID.String(),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var card model.Card
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &card))
	assert.Equal(t, created.Card.ID, card.ID)
}

func TestHandleGetCardNotFound(t *testing.T) {
	s, _ := newTestMCPServer()

	result, err := s.handleGetCard(context.Background(), callRequest("hoken_get_card", map[string]any{
		"card_id": uuid.New().String(),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "not found")
}

func TestHandleUpdateCardSparse(t *testing.T) {
	s, _ := newTestMCPServer()
	created := mustCreateCard(t, s)

	result, err := s.handleUpdateCard(context.Background(), callRequest("hoken_update_card", map[string]any{
		"card_id": created.Card.ID.String(),
		"name":    "Renamed",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var resp model.UpdateCardResponse
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, "Renamed", resp.Card.Name)
	assert.Equal(t, "Covers fire damage", resp.Card.Detail, "omitted fields unchanged")
	assert.NotEmpty(t, resp.TxHash)
}

func TestHandleUpdateCardMetadata(t *testing.T) {
	s, _ := newTestMCPServer()
	created := mustCreateCard(t, s)

	result, err := s.handleUpdateCard(context.Background(), callRequest("hoken_update_card", map[string]any{
		"card_id":  created.Card.ID.String(),
		"metadata": map[string]any{"tier": "gold"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var resp model.UpdateCardResponse
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, map[string]any{"tier": "gold"}, resp.Card.Metadata, "metadata replaced wholesale")
	assert.Equal(t, "Fire insurance", resp.Card.Name, "other fields unchanged")
}

func TestHandleUpdateCardBadStatus(t *testing.T) {
	s, _ := newTestMCPServer()
	created := mustCreateCard(t, s)

	result, err := s.handleUpdateCard(context.Background(), callRequest("hoken_update_card", map[string]any{
		"card_id": created.Card.ID.String(),
		"status":  "SHIPPED",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleUpdateStatus(t *testing.T) {
	s, _ := newTestMCPServer()
	created := mustCreateCard(t, s)

	result, err := s.handleUpdateStatus(context.Background(), callRequest("hoken_update_status", map[string]any{
		"card_id": created.Card.ID.String(),
		"status":  "FINISHED",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp model.UpdateCardResponse
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, model.StatusFinished, resp.Card.Status)
}

func TestHandleUpdateStatusInvalid(t *testing.T) {
	s, _ := newTestMCPServer()
	created := mustCreateCard(t, s)

	result, err := s.handleUpdateStatus(context.Background(), callRequest("hoken_update_status", map[string]any{
		"card_id": created.Card.ID.String(),
		"status":  "BOGUS",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "invalid status")
}

func TestHandleSearchCards(t *testing.T) {
	s, _ := newTestMCPServer()
	created := mustCreateCard(t, s)

	result, err := s.handleSearchCards(context.Background(), callRequest("hoken_search_cards", map[string]any{
		"queries": []any{"Fire insurance\nCovers fire damage"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var results []model.Card
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &results))
	require.NotEmpty(t, results)
	assert.Equal(t, created.Card.ID, results[0].ID)
}

func TestHandleSearchCardsMissingQueries(t *testing.T) {
	s, _ := newTestMCPServer()

	result, err := s.handleSearchCards(context.Background(), callRequest("hoken_search_cards", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "queries")
}

func TestHandleClaim(t *testing.T) {
	s, _ := newTestMCPServer()
	created := mustCreateCard(t, s)

	result, err := s.handleClaim(context.Background(), callRequest("hoken_claim", map[string]any{
		"card_id": created.Card.ID.String(),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp model.ClaimResponse
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, resp.TxHash)

	// Second claim on the same entry is rejected.
	result, err = s.handleClaim(context.Background(), callRequest("hoken_claim", map[string]any{
		"card_id": created.Card.ID.String(),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "already claimed")
}

func TestHandleClaimUnknownEntry(t *testing.T) {
	s, _ := newTestMCPServer()

	result, err := s.handleClaim(context.Background(), callRequest("hoken_claim", map[string]any{
		"card_id": uuid.New().String(),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "no ledger entry")
}
