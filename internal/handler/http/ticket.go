package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/evikzub/CVTransformer/internal/domain"
	"github.com/evikzub/CVTransformer/internal/service"
	apperrors "github.com/evikzub/CVTransformer/pkg/errors"
	"github.com/evikzub/CVTransformer/pkg/httputil"
	"github.com/evikzub/CVTransformer/pkg/pagination"
)

// TicketHandler handles HTTP requests for ticket endpoints.
type TicketHandler struct {
	sessions *service.SessionService
	tickets  *service.TicketService
	logger   *slog.Logger
}

// CreateTicketRequest is the JSON request body for ticket creation.
type CreateTicketRequest struct {
	Subject       string `json:"subject" validate:"max=255"`
	Description   string `json:"description" validate:"max=65535"`
	CandidateName string `json:"candidate_name" validate:"max=120"`
	Stack         string `json:"stack" validate:"max=120"`
	AssigneeID    *int64 `json:"assignee_id" validate:"omitempty,gt=0"`
}

// List handles GET /api/v1/tickets
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status, err := domain.ParseStatusFilter(q.Get("status"))
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}
	date, err := domain.ParseDateFilter(q.Get("date"))
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}
	// Listings are scoped to the caller unless ?mine=false is given.
	mine := true
	if v := q.Get("mine"); v != "" {
		if mine, err = strconv.ParseBool(v); err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("mine must be a boolean"), h.logger)
			return
		}
	}
	params := pagination.FromRequest(r, domain.DefaultPerPage)

	creds, mode := h.authFor(r)
	page, err := h.tickets.Query(r.Context(), userFromContext(r.Context()), creds, domain.TicketQuery{
		Status:       status,
		Date:         date,
		Search:       q.Get("q"),
		Page:         params.Page,
		AssignedToMe: mine,
	}, mode)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, page)
}

// Create handles POST /api/v1/tickets
func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	creds, mode := h.authFor(r)
	ticket, err := h.tickets.CreateTicket(r.Context(), userFromContext(r.Context()), creds, domain.CreateTicketInput{
		Subject:       req.Subject,
		Description:   req.Description,
		CandidateName: req.CandidateName,
		Stack:         req.Stack,
		AssigneeID:    req.AssigneeID,
	}, mode)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, ticket)
}

// Get handles GET /api/v1/tickets/{id}
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("ticket id must be an integer"), h.logger)
		return
	}

	creds, mode := h.authFor(r)
	ticket, err := h.tickets.GetTicket(r.Context(), creds, id, mode)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, ticket)
}

// authFor picks the remote credential for this request from the session cache.
func (h *TicketHandler) authFor(r *http.Request) (domain.Credentials, domain.AuthMode) {
	creds, ok := h.sessions.CachedCredentials(sessionFromContext(r.Context()))
	return creds, h.tickets.SelectAuthMode(ok)
}
