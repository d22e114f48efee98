package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/hoken/internal/ledger"
	"github.com/ashita-ai/hoken/internal/model"
	"github.com/ashita-ai/hoken/internal/service/cards"
	"github.com/ashita-ai/hoken/internal/storage"
)

// Pinger reports record store connectivity. Satisfied by *storage.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports vector backend connectivity. Satisfied by
// *search.QdrantBackend and *search.MemoryBackend.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	cards               *cards.Service
	pinger              Pinger
	searchHealth        HealthChecker
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): SearchHealth.
type HandlersDeps struct {
	Cards               *cards.Service
	Pinger              Pinger
	SearchHealth        HealthChecker
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		cards:               d.Cards,
		pinger:              d.Pinger,
		searchHealth:        d.SearchHealth,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleCreateCard handles POST /v1/cards.
func (h *Handlers) HandleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCardRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	card, tx, err := h.cards.Create(r.Context(), req)
	if err != nil {
		// No not-found case on this path; store, ledger, and index
		// failures all surface as a rejected creation.
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "failed to create card: "+err.Error())
		return
	}

	writeJSON(w, r, http.StatusCreated, model.CreateCardResponse{Card: card, TxHash: string(tx)})
}

// HandleGetCard handles GET /v1/cards/{card_id}.
func (h *Handlers) HandleGetCard(w http.ResponseWriter, r *http.Request) {
	id, err := parseCardID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	card, err := h.cards.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "card not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to fetch card")
		return
	}

	writeJSON(w, r, http.StatusOK, card)
}

// HandleUpdateCard handles PUT /v1/cards/{card_id}.
func (h *Handlers) HandleUpdateCard(w http.ResponseWriter, r *http.Request) {
	id, err := parseCardID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var patch model.CardPatch
	if err := decodeJSON(w, r, &patch, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	card, tx, err := h.cards.Update(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "card not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to update card")
		return
	}

	writeJSON(w, r, http.StatusOK, model.UpdateCardResponse{Card: card, TxHash: string(tx)})
}

// HandleUpdateStatus handles PATCH /v1/cards/{card_id}/status.
func (h *Handlers) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseCardID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.UpdateStatusRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if err := model.ValidateStatus(req.Status); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	card, tx, err := h.cards.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "card not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to update status")
		return
	}

	writeJSON(w, r, http.StatusOK, model.UpdateCardResponse{Card: card, TxHash: string(tx)})
}

// HandleSearch handles POST /v1/cards/search.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req model.SearchRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	results, err := h.cards.Search(r.Context(), req.Queries)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "search failed")
		return
	}

	writeJSON(w, r, http.StatusOK, results)
}

// HandleClaim handles POST /v1/cards/{card_id}/claim.
func (h *Handlers) HandleClaim(w http.ResponseWriter, r *http.Request) {
	id, err := parseCardID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	tx, err := h.cards.Claim(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownEntry) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "no ledger entry for card")
			return
		}
		// Claim rejections (already claimed) and gateway failures both
		// surface as 500: the caller cannot distinguish them and the
		// ledger's answer is final either way.
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "claim failed: "+err.Error())
		return
	}

	writeJSON(w, r, http.StatusOK, model.ClaimResponse{TxHash: string(tx)})
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.pinger.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	searchStatus := "disabled"
	if h.searchHealth != nil {
		searchStatus = "connected"
		if err := h.searchHealth.Healthy(r.Context()); err != nil {
			// Search degrades to substring fallback; the service stays up.
			searchStatus = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Search:   searchStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

func parseCardID(r *http.Request) (uuid.UUID, error) {
	idStr := r.PathValue("card_id")
	if idStr == "" {
		return uuid.Nil, fmt.Errorf("card_id is required")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid card_id: %s", idStr)
	}
	return id, nil
}
