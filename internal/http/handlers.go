package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dercryptomuslim/umrahcheck-api/internal/models"
	"github.com/dercryptomuslim/umrahcheck-api/internal/resolve"
	"github.com/google/uuid"
)

// PriceResolver is the inbound contract of the orchestrator.
type PriceResolver interface {
	Resolve(ctx context.Context, q *models.PriceQuery) (resolve.ResolutionResult, error)
}

type Handler struct {
	resolver PriceResolver
}

func NewHandler(resolver PriceResolver) *Handler {
	return &Handler{resolver: resolver}
}

// ResolvePrice answers GET /resolve. A malformed query is the only
// caller-visible error; upstream failures come back as a 200 with
// data_source=none and no best offer.
func (h *Handler) ResolvePrice(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.New().String()
	}

	q := r.URL.Query()
	query, err := models.NewPriceQuery(
		q.Get("hotel"),
		q.Get("city"),
		q.Get("checkin"),
		q.Get("checkout"),
		q.Get("adults"),
		q.Get("children"),
		q.Get("rooms"),
		q.Get("currency"),
	)
	if err != nil {
		BadRequest(w, err.Error(), map[string]string{"request_id": reqID})
		return
	}

	res, err := h.resolver.Resolve(r.Context(), query)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// client went away; nothing sensible to write
			return
		}
		InternalError(w, err.Error(), map[string]string{"request_id": reqID})
		return
	}

	WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
