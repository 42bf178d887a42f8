package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/evikzub/CVTransformer/internal/domain"
	"github.com/evikzub/CVTransformer/internal/repository"
	"github.com/evikzub/CVTransformer/internal/tracker"
	apperrors "github.com/evikzub/CVTransformer/pkg/errors"
	"github.com/evikzub/CVTransformer/pkg/pagination"
)

// TicketConfig holds the tracker-side settings of ticket queries.
type TicketConfig struct {
	ProjectID    string
	TrackerIDs   []int64
	PerPage      int
	PreferAPIKey bool
}

// TicketService queries and creates tickets on the remote tracker.
type TicketService struct {
	tracker    tracker.IssueTracker
	users      repository.UserRepository
	identities repository.IdentityCache
	events     EventPublisher
	cfg        TicketConfig
	now        func() time.Time
	logger     *slog.Logger
}

// NewTicketService creates a new ticket service. identities may be nil, in
// which case every shared-key identity resolution goes to the tracker.
func NewTicketService(
	tracker tracker.IssueTracker,
	users repository.UserRepository,
	identities repository.IdentityCache,
	events EventPublisher,
	cfg TicketConfig,
	logger *slog.Logger,
) *TicketService {
	if cfg.PerPage <= 0 {
		cfg.PerPage = domain.DefaultPerPage
	}
	return &TicketService{
		tracker:    tracker,
		users:      users,
		identities: identities,
		events:     events,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
}

// SelectAuthMode picks the auth mode for a session that has, or lacks,
// cached credentials.
func (s *TicketService) SelectAuthMode(hasCachedCredentials bool) domain.AuthMode {
	return domain.SelectAuthMode(hasCachedCredentials, s.cfg.PreferAPIKey)
}

// Query lists one page of tickets. With the shared key the remote total is
// not trusted and is estimated from the page; acting as the user the remote
// total is exact.
func (s *TicketService) Query(ctx context.Context, user *domain.User, creds domain.Credentials, q domain.TicketQuery, mode domain.AuthMode) (*domain.TicketPage, error) {
	if user == nil {
		return nil, apperrors.Unauthorized("login required")
	}
	status, err := domain.ParseStatusFilter(string(q.Status))
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	date, err := domain.ParseDateFilter(string(q.Date))
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	auth, err := authFor(mode, creds)
	if err != nil {
		return nil, err
	}

	params := pagination.New(q.Page, s.cfg.PerPage)
	filter := tracker.IssueFilter{
		ProjectID:  s.cfg.ProjectID,
		Status:     status,
		DateRange:  domain.ComputeDateRange(date, s.now()),
		Search:     strings.TrimSpace(q.Search),
		TrackerIDs: s.cfg.TrackerIDs,
		Limit:      params.PerPage,
		Offset:     params.Offset,
	}

	if q.AssignedToMe {
		switch mode {
		case domain.AuthActAsUser:
			filter.AssignedTo = tracker.AssignToMe
		default:
			remoteID, err := s.resolveRemoteID(ctx, user.Username)
			if err != nil {
				return nil, err
			}
			filter.AssignedTo = strconv.FormatInt(remoteID, 10)
		}
	}

	list, err := s.tracker.ListIssues(ctx, auth, filter)
	if err != nil {
		return nil, err
	}

	tickets := make([]domain.Ticket, 0, len(list.Issues))
	for _, raw := range list.Issues {
		tickets = append(tickets, domain.NormalizeIssue(raw))
	}

	page := &domain.TicketPage{
		Tickets: tickets,
		Page:    params.Page,
		PerPage: params.PerPage,
	}
	if mode == domain.AuthActAsUser && list.TotalCount != nil {
		page.TotalCount = *list.TotalCount
		page.TotalPages = pagination.TotalPages(page.TotalCount, params.PerPage)
		page.HasNext = params.Page < page.TotalPages
	} else {
		page.TotalCount = pagination.EstimateTotal(params, len(tickets))
		page.Estimated = true
		page.TotalPages = pagination.TotalPages(page.TotalCount, params.PerPage)
		page.HasNext = len(tickets) >= params.PerPage
	}

	s.logger.DebugContext(ctx, "tickets queried",
		slog.String("mode", string(mode)),
		slog.Int("page", params.Page),
		slog.Int("count", len(tickets)),
		slog.Int("total", page.TotalCount),
		slog.Bool("estimated", page.Estimated),
	)
	return page, nil
}

// resolveRemoteID maps a login to its remote user id, through the identity
// cache when one is configured.
func (s *TicketService) resolveRemoteID(ctx context.Context, login string) (int64, error) {
	if s.identities != nil {
		identity, err := s.identities.Get(ctx, login)
		if err == nil {
			return identity.ID, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "identity cache read failed",
				slog.String("login", login),
				slog.String("error", err.Error()),
			)
		}
	}

	identity, err := s.tracker.LookupIdentityByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	if s.identities != nil {
		if err := s.identities.Set(ctx, identity); err != nil {
			s.logger.WarnContext(ctx, "identity cache write failed",
				slog.String("login", login),
				slog.String("error", err.Error()),
			)
		}
	}
	return identity.ID, nil
}

// CreateTicket creates a ticket in the configured project. The subject
// follows the candidate naming convention; a ticket naming both a candidate
// and a stack counts as a conversion for its creator.
func (s *TicketService) CreateTicket(ctx context.Context, user *domain.User, creds domain.Credentials, in domain.CreateTicketInput, mode domain.AuthMode) (*domain.Ticket, error) {
	if user == nil {
		return nil, apperrors.Unauthorized("login required")
	}
	subject := strings.TrimSpace(domain.FormatSubject(in.Subject, in.CandidateName, in.Stack))
	if subject == "" {
		return nil, apperrors.InvalidInput("subject is required")
	}
	auth, err := authFor(mode, creds)
	if err != nil {
		return nil, err
	}

	issue := tracker.NewIssue{
		ProjectID:   s.cfg.ProjectID,
		Subject:     subject,
		Description: in.Description,
	}
	if in.AssigneeID != nil {
		issue.AssignedTo = strconv.FormatInt(*in.AssigneeID, 10)
	}

	raw, err := s.tracker.CreateIssue(ctx, auth, issue)
	if err != nil {
		return nil, err
	}
	ticket := domain.NormalizeIssue(*raw)

	conversion := in.IsConversion()
	if conversion {
		// The remote ticket exists at this point; a failed counter update
		// must not turn the creation into an error.
		if err := s.users.IncrementConversionCount(ctx, user.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to record conversion",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.events.PublishTicketCreated(ctx, user, &ticket, mode, conversion); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish ticket created event",
			slog.Int64("ticket_id", ticket.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "ticket created",
		slog.Int64("ticket_id", ticket.ID),
		slog.String("user_id", user.ID),
		slog.Bool("conversion", conversion),
	)
	return &ticket, nil
}

// GetTicket fetches one ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, creds domain.Credentials, id int64, mode domain.AuthMode) (*domain.Ticket, error) {
	if id <= 0 {
		return nil, apperrors.InvalidInput("ticket id must be positive")
	}
	auth, err := authFor(mode, creds)
	if err != nil {
		return nil, err
	}

	raw, err := s.tracker.GetIssue(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	ticket := domain.NormalizeIssue(*raw)
	return &ticket, nil
}

func authFor(mode domain.AuthMode, creds domain.Credentials) (tracker.Auth, error) {
	switch mode {
	case domain.AuthActAsUser:
		if !creds.Valid() {
			return tracker.Auth{}, apperrors.InvalidInput("acting as the user requires cached credentials")
		}
		return tracker.ActAsUser(creds), nil
	case domain.AuthSharedKey:
		return tracker.SharedKey(), nil
	default:
		return tracker.Auth{}, apperrors.InvalidInput(fmt.Sprintf("unknown auth mode %q", mode))
	}
}
