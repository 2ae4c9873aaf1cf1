package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-gatepass/internal/issue"
	"ms-gatepass/internal/logger"
	"ms-gatepass/internal/models"
	"ms-gatepass/internal/monitoring"
	"ms-gatepass/internal/store"
	"ms-gatepass/internal/utils"
	"ms-gatepass/internal/validate"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the issuance and validation core over HTTP for the
// validator devices and the purchase flow. The core itself stays a
// library; this is its operational surface.
type Handler struct {
	Issuer *issue.Issuer
	Engine *validate.Engine
	Store  *store.DB
	Logger *logger.Logger
	// Cache, when set, is warmed with the authoritative status on every
	// status lookup so validator devices go offline with fresh data.
	Cache StatusCache
}

type StatusCache interface {
	SetStatus(ctx context.Context, ticketID string, status models.TicketStatus) error
}

func NewHandler(issuer *issue.Issuer, engine *validate.Engine, db *store.DB, log *logger.Logger) *Handler {
	return &Handler{Issuer: issuer, Engine: engine, Store: db, Logger: log}
}

type issueResponse struct {
	TicketID  string `json:"ticket_id"`
	HumanCode string `json:"human_code"`
	Wire      string `json:"wire"`
}

// IssueTicket handles POST /ticket/issue. The request body is the
// payment-confirmation callback payload; issuance refuses anything not in
// a terminal-success payment state. The new ticket row is persisted here,
// which the caller must treat as part of its purchase transaction.
func (h *Handler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	var purchase models.ConfirmedPurchase
	if err := json.NewDecoder(r.Body).Decode(&purchase); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	iss, err := h.Issuer.Issue(purchase)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnprocessableEntity, utils.ErrorResponse("issuance refused", err.Error()))
		return
	}

	if err := h.Store.InsertNewTicket(r.Context(), iss.Ticket); err != nil {
		h.Logger.Error("ISSUE", fmt.Sprintf("persist ticket %s: %v", iss.Ticket.TicketID, err))
		utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse("ticket store unavailable", err.Error()))
		return
	}

	monitoring.ObserveIssuance()
	h.Logger.LogIssue(iss.Ticket.TicketID, purchase.OrderID)

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("ticket issued", issueResponse{
		TicketID:  iss.Ticket.TicketID,
		HumanCode: iss.HumanCode,
		Wire:      iss.Wire,
	}))
}

// TicketQR handles GET /ticket/{ticketID}/qr and returns the QR PNG for a
// previously issued ticket, re-encoded from the stored record.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	wire, err := h.reencode(r.Context(), ticketID)
	if err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("ticket not found", err.Error()))
		return
	}

	png, err := issue.RenderPNG(wire)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("QR render failed", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

type validateRequest struct {
	Scanned string `json:"scanned"`
	EventID string `json:"event_id"`
	ActorID string `json:"actor_id"`
}

// ValidateTicket handles POST /ticket/validate. Business rejections come
// back 200 with accepted=false; only infrastructure trouble is an error
// status, so the device UI can distinguish "entry denied" from "retry or
// queue offline".
func (h *Handler) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	if req.Scanned == "" || req.EventID == "" || req.ActorID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("scanned, event_id and actor_id are required", ""))
		return
	}

	outcome, err := h.Engine.Validate(r.Context(), req.Scanned, req.EventID, req.ActorID)
	if err != nil {
		h.Logger.Error("VALIDATE", fmt.Sprintf("store unreachable: %v", err))
		utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse("ticket store unavailable", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("validation outcome", outcome))
}

// TicketHistory handles GET /ticket/{ticketID}/history and returns the
// audit trail of scan attempts.
func (h *Handler) TicketHistory(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	history, err := h.Store.ValidationHistory(r.Context(), ticketID)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse("ticket store unavailable", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("validation history", history))
}

type statusResponse struct {
	TicketID string              `json:"ticket_id"`
	Status   models.TicketStatus `json:"status"`
}

// TicketStatus handles GET /ticket/{ticketID}/status. Validator devices
// poll it before going offline; the answer is copied into the status cache
// that backs their provisional offline decisions.
func (h *Handler) TicketStatus(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	ticket, err := h.Store.GetByTicketID(r.Context(), ticketID)
	if err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("ticket not found", err.Error()))
		return
	}

	if h.Cache != nil {
		if cerr := h.Cache.SetStatus(r.Context(), ticket.TicketID, ticket.Status); cerr != nil {
			h.Logger.Warn("CACHE", fmt.Sprintf("warm status for %s: %v", ticket.TicketID, cerr))
		}
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket status", statusResponse{
		TicketID: ticket.TicketID,
		Status:   ticket.Status,
	}))
}

// reencode rebuilds wire content for a stored ticket so its QR can be
// served again without having persisted the original string.
func (h *Handler) reencode(ctx context.Context, ticketID string) (string, error) {
	ticket, err := h.Store.GetByTicketID(ctx, ticketID)
	if err != nil {
		return "", err
	}
	return h.Issuer.Reencode(*ticket)
}
