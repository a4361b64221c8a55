package rest

import (
	"errors"
	"net/http"

	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/service"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/transport/rest/response"
	"github.com/go-chi/render"
)

type Handler struct {
	svc *service.TrafficService
}

func NewHandler(svc *service.TrafficService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RecordVisit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VisitorID    string `json:"visitorId"`
		SessionID    string `json:"sessionId"`
		PageURL      string `json:"pageUrl"`
		Referrer     string `json:"referrer"`
		IsNewVisitor bool   `json:"isNewVisitor"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		response.Err(w, http.StatusBadRequest, "invalid body")
		return
	}

	snap, err := h.svc.RecordVisit(r.Context(), service.VisitInput{
		VisitorID:    req.VisitorID,
		SessionID:    req.SessionID,
		PageURL:      req.PageURL,
		Referrer:     req.Referrer,
		IsNewVisitor: req.IsNewVisitor,
	})
	if err != nil {
		handleErr(w, r, err)
		return
	}

	// bundle a stats snapshot so the page can render without a second call
	response.JSON(w, http.StatusOK, snap)
}

func (h *Handler) UpdateDuration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Duration  int    `json:"duration"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		response.Err(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := h.svc.UpdateDuration(r.Context(), req.SessionID, req.Duration); err != nil {
		handleErr(w, r, err)
		return
	}

	// always success, even when the session id matched nothing
	response.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.svc.Stats(r.Context()))
}

func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"dailyStats": h.svc.Insights(r.Context()),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidVisit), errors.Is(err, domain.ErrInvalidDuration):
		response.Err(w, http.StatusBadRequest, err.Error())
	default:
		// store faults and the unexpected; never leak internals
		logger.WithCtx(r.Context()).Error().Err(err).Msg("request failed")
		response.Err(w, http.StatusInternalServerError, "internal error")
	}
}
