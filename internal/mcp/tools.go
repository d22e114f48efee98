package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/hoken/internal/ledger"
	"github.com/ashita-ai/hoken/internal/model"
	"github.com/ashita-ai/hoken/internal/storage"
)

func (s *Server) handleCreateCard(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.CreateCardRequest{
		Name:    request.GetString("name", ""),
		Detail:  request.GetString("detail", ""),
		Creator: request.GetString("creator", ""),
		Status:  model.CardStatus(request.GetString("status", string(model.StatusWaiting))),
		AgentProfile: model.AgentProfileSpec{
			SystemPrompt: request.GetString("system_prompt", ""),
			Sources:      request.GetStringSlice("sources", nil),
		},
	}
	args := request.GetArguments()
	if v, ok := args["metadata"].(map[string]any); ok {
		req.Metadata = v
	}
	if v, ok := args["tools"].([]any); ok {
		req.AgentProfile.Tools = v
	}
	if v, ok := args["agent_metadata"].(map[string]any); ok {
		req.AgentProfile.Metadata = v
	}
	if _, ok := args["taleb_made"]; ok {
		talebMade := request.GetBool("taleb_made", false)
		req.TalebMade = &talebMade
	}

	if err := req.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	card, tx, err := s.cards.Create(ctx, req)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to create card: %v", err)), nil
	}

	s.logger.Info("mcp: card created", "card_id", card.ID)
	return jsonResult(model.CreateCardResponse{Card: card, TxHash: string(tx)})
}

func (s *Server) handleGetCard(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := parseCardID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	card, err := s.cards.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errorResult(fmt.Sprintf("card not found: %s", id)), nil
		}
		return errorResult(fmt.Sprintf("failed to fetch card: %v", err)), nil
	}

	return jsonResult(card)
}

func (s *Server) handleUpdateCard(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := parseCardID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	// Only arguments actually present in the call become part of the
	// patch; GetString defaults cannot distinguish absent from empty.
	args := request.GetArguments()
	var patch model.CardPatch
	if _, ok := args["name"]; ok {
		v := request.GetString("name", "")
		patch.Name = &v
	}
	if _, ok := args["detail"]; ok {
		v := request.GetString("detail", "")
		patch.Detail = &v
	}
	if _, ok := args["creator"]; ok {
		v := request.GetString("creator", "")
		patch.Creator = &v
	}
	if v, ok := args["metadata"].(map[string]any); ok {
		patch.Metadata = v
	}
	if _, ok := args["status"]; ok {
		v := model.CardStatus(request.GetString("status", ""))
		patch.Status = &v
	}
	if _, ok := args["taleb_made"]; ok {
		v := request.GetBool("taleb_made", false)
		patch.TalebMade = &v
	}

	if err := patch.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	card, tx, err := s.cards.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errorResult(fmt.Sprintf("card not found: %s", id)), nil
		}
		return errorResult(fmt.Sprintf("failed to update card: %v", err)), nil
	}

	return jsonResult(model.UpdateCardResponse{Card: card, TxHash: string(tx)})
}

func (s *Server) handleUpdateStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := parseCardID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	status := model.CardStatus(request.GetString("status", ""))
	if err := model.ValidateStatus(status); err != nil {
		return errorResult(err.Error()), nil
	}

	card, tx, err := s.cards.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errorResult(fmt.Sprintf("card not found: %s", id)), nil
		}
		return errorResult(fmt.Sprintf("failed to update status: %v", err)), nil
	}

	return jsonResult(model.UpdateCardResponse{Card: card, TxHash: string(tx)})
}

func (s *Server) handleSearchCards(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	queries := request.GetStringSlice("queries", nil)
	if queries == nil {
		return errorResult("queries is required and must be an array of strings"), nil
	}
	if err := (model.SearchRequest{Queries: queries}).Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	results, err := s.cards.Search(ctx, queries)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	return jsonResult(results)
}

func (s *Server) handleClaim(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := parseCardID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	tx, err := s.cards.Claim(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyClaimed) {
			return errorResult(fmt.Sprintf("card already claimed: %s", id)), nil
		}
		if errors.Is(err, ledger.ErrUnknownEntry) {
			return errorResult(fmt.Sprintf("no ledger entry for card: %s", id)), nil
		}
		return errorResult(fmt.Sprintf("claim failed: %v", err)), nil
	}

	return jsonResult(model.ClaimResponse{TxHash: string(tx)})
}

func parseCardID(request mcplib.CallToolRequest) (uuid.UUID, error) {
	idStr := request.GetString("card_id", "")
	if idStr == "" {
		return uuid.Nil, fmt.Errorf("card_id is required")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid card_id: %s", idStr)
	}
	return id, nil
}
