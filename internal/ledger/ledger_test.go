package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hoken/internal/model"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

func newTestLedger() *InProcess {
	return NewInProcess(slog.New(slog.DiscardHandler))
}

func TestNewTxHashFormat(t *testing.T) {
	a, err := NewTxHash()
	require.NoError(t, err)
	b, err := NewTxHash()
	require.NoError(t, err)

	assert.Regexp(t, txHashPattern, string(a))
	assert.NotEqual(t, a, b, "receipts are unique per call")
}

func TestCalculateIDDeterministic(t *testing.T) {
	l := newTestLedger()
	card := model.Card{ID: uuid.New()}

	assert.Equal(t, "bc_"+card.ID.String(), l.CalculateID(card))
	assert.Equal(t, l.CalculateID(card), l.CalculateID(card))
}

func TestInProcessCreateAndUpdateStatus(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	card := model.Card{ID: uuid.New(), Status: model.StatusWaiting}

	tx1, err := l.Create(ctx, card)
	require.NoError(t, err)
	assert.Regexp(t, txHashPattern, string(tx1))

	tx2, err := l.UpdateStatus(ctx, card.ID.String(), model.StatusFinished)
	require.NoError(t, err)
	assert.NotEqual(t, tx1, tx2)

	receipts := l.Receipts(card.ID.String())
	assert.Equal(t, []TxHash{tx1, tx2}, receipts, "receipts accumulate in order")
}

func TestInProcessTryClaim(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	card := model.Card{ID: uuid.New(), Status: model.StatusActive}

	_, err := l.Create(ctx, card)
	require.NoError(t, err)

	tx, err := l.TryClaim(ctx, card.ID.String())
	require.NoError(t, err)
	assert.Regexp(t, txHashPattern, string(tx))

	_, err = l.TryClaim(ctx, card.ID.String())
	assert.ErrorIs(t, err, ErrAlreadyClaimed, "second claim on the same id is rejected")
}

func TestInProcessTryClaimUnknownEntry(t *testing.T) {
	l := newTestLedger()
	_, err := l.TryClaim(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrUnknownEntry)
}

func TestClientCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/entries", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req createEntryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, model.StatusWaiting, req.Status)

		_ = json.NewEncoder(w).Encode(receiptResponse{TxHash: "0xabc"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	tx, err := c.Create(context.Background(), model.Card{ID: uuid.New(), Status: model.StatusWaiting})
	require.NoError(t, err)
	assert.Equal(t, TxHash("0xabc"), tx)
}

func TestClientTryClaimConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(receiptResponse{Error: "entry already claimed"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.TryClaim(context.Background(), "some-id")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Contains(t, err.Error(), "entry already claimed")
}

func TestClientGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(receiptResponse{Error: "chain unavailable"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.UpdateStatus(context.Background(), "id", model.StatusActive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain unavailable")
}
