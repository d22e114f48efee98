package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashita-ai/hoken/internal/model"
)

// Client implements Ledger against an HTTP ledger gateway, the service
// that fronts the actual chain. Selected in production via LEDGER_URL.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a ledger gateway client. apiKey may be empty for
// unauthenticated gateways.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CalculateID prefixes the card id with the ledger namespace. Kept in
// lockstep with the gateway's derivation: a pure function of the card
// id on both sides.
func (c *Client) CalculateID(card model.Card) string {
	return "bc_" + card.ID.String()
}

type createEntryRequest struct {
	CardID string           `json:"card_id"`
	Name   string           `json:"name"`
	Status model.CardStatus `json:"status"`
}

type updateStatusRequest struct {
	Status model.CardStatus `json:"status"`
}

type receiptResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
}

// Create registers a new card entry on the ledger.
func (c *Client) Create(ctx context.Context, card model.Card) (TxHash, error) {
	return c.post(ctx, "/v1/entries", createEntryRequest{
		CardID: card.ID.String(),
		Name:   card.Name,
		Status: card.Status,
	})
}

// UpdateStatus registers a status transition.
func (c *Client) UpdateStatus(ctx context.Context, id string, status model.CardStatus) (TxHash, error) {
	return c.post(ctx, "/v1/entries/"+id+"/status", updateStatusRequest{Status: status})
}

// TryClaim attempts to claim the entry. A gateway rejection (409)
// surfaces as ErrAlreadyClaimed.
func (c *Client) TryClaim(ctx context.Context, id string) (TxHash, error) {
	return c.post(ctx, "/v1/entries/"+id+"/claim", struct{}{})
}

// GetCard reads the ledger's view of a card entry.
func (c *Client) GetCard(ctx context.Context, calculatedID string) (model.Card, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/entries/"+calculatedID, nil)
	if err != nil {
		return model.Card{}, fmt.Errorf("ledger: create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Card{}, fmt.Errorf("ledger: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return model.Card{}, fmt.Errorf("%w: %s", ErrUnknownEntry, calculatedID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return model.Card{}, fmt.Errorf("ledger: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var card model.Card
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return model.Card{}, fmt.Errorf("ledger: parse entry: %w", err)
	}
	return card, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (TxHash, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ledger: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ledger: create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("ledger: read response: %w", err)
	}

	var parsed receiptResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("ledger: parse response (status %d): %w", resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return "", fmt.Errorf("%w: %s", ErrAlreadyClaimed, parsed.Error)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("ledger: gateway error (status %d): %s", resp.StatusCode, parsed.Error)
	case parsed.TxHash == "":
		return "", fmt.Errorf("ledger: gateway returned no receipt")
	}
	return TxHash(parsed.TxHash), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
