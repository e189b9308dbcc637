package events

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Togather-Foundation/eventdesk/internal/audit"
	"github.com/Togather-Foundation/eventdesk/internal/auth"
	"github.com/Togather-Foundation/eventdesk/internal/domain/ids"
	"github.com/Togather-Foundation/eventdesk/internal/metrics"
	"github.com/Togather-Foundation/eventdesk/internal/sanitize"
	"github.com/Togather-Foundation/eventdesk/internal/validation"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 10000
)

// Input is the canonical event payload after request normalization. Nil
// fields were absent from the request.
type Input struct {
	Title       *string
	Description *string
	Date        *time.Time
	Banner      *string
}

type createRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"required,max=10000"`
	Date        time.Time `json:"date" validate:"required"`
}

type Service struct {
	repo        Repository
	auditLogger *audit.Logger
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo Repository, auditLogger *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
		logger:      logger.With().Str("component", "events").Logger(),
		now:         time.Now,
	}
}

// Create stores a new event owned by actorID. bannerFilename, when set,
// takes precedence over input.Banner.
func (s *Service) Create(ctx context.Context, input Input, actorID, bannerFilename string) (*Event, error) {
	event, err := s.create(ctx, input, actorID, bannerFilename)
	metrics.EventMutations.WithLabelValues("create", mutationResult(err)).Inc()
	return event, err
}

func (s *Service) create(ctx context.Context, input Input, actorID, bannerFilename string) (*Event, error) {
	req := createRequest{
		Title:       sanitize.Text(deref(input.Title)),
		Description: sanitize.HTML(deref(input.Description)),
	}
	if input.Date != nil {
		req.Date = input.Date.UTC()
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if !req.Date.After(s.now()) {
		return nil, ErrDateNotFuture
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	banner := deref(input.Banner)
	if bannerFilename != "" {
		banner = bannerFilename
	}

	event, err := s.repo.Create(ctx, CreateParams{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		CreatedBy:   actorID,
		Banner:      banner,
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.auditLogger.LogSuccess(ctx, "event.create", actorID, "event", event.ID, map[string]string{"title": event.Title})
	return event, nil
}

// List returns one page of events sorted by date ascending.
func (s *Service) List(ctx context.Context, filter Filter) (*Page, error) {
	filter = filter.normalized()

	var (
		total int64
		data  []Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		data, err = s.repo.List(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if data == nil {
		data = []Event{}
	}

	return &Page{
		Data: data,
		Pagination: Pagination{
			Total:      total,
			Page:       filter.Page,
			Limit:      filter.Limit,
			TotalPages: totalPages(total, filter.Limit),
		},
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	if ids.ValidateULID(id) != nil {
		return nil, ErrNotFound
	}
	event, err := s.repo.Get(ctx, ids.Normalize(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// Update applies the present fields of input. Only the creator or an admin
// may update; the store write re-checks ownership atomically.
func (s *Service) Update(ctx context.Context, id string, input Input, actor auth.Identity, bannerFilename string) (*Event, error) {
	event, err := s.update(ctx, id, input, actor, bannerFilename)
	metrics.EventMutations.WithLabelValues("update", mutationResult(err)).Inc()
	return event, err
}

func (s *Service) update(ctx context.Context, id string, input Input, actor auth.Identity, bannerFilename string) (*Event, error) {
	existing, err := s.modifiable(ctx, id, actor, "event.update")
	if err != nil {
		return nil, err
	}

	params, err := s.updateParams(input, bannerFilename)
	if err != nil {
		return nil, err
	}
	if params.IsEmpty() {
		return existing, nil
	}

	updated, err := s.repo.Update(ctx, existing.ID, guardFor(actor), params)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update event: %w", err)
	}

	s.auditLogger.LogSuccess(ctx, "event.update", actor.UserID, "event", updated.ID, changedFields(params))
	return updated, nil
}

func (s *Service) updateParams(input Input, bannerFilename string) (UpdateParams, error) {
	var params UpdateParams
	if input.Title != nil {
		title := sanitize.Text(*input.Title)
		if title == "" {
			return params, validation.Error{Field: "title", Message: "required"}
		}
		if utf8.RuneCountInString(title) > maxTitleLength {
			return params, validation.Error{Field: "title", Message: fmt.Sprintf("must be at most %d characters", maxTitleLength)}
		}
		params.Title = &title
	}
	if input.Description != nil {
		description := sanitize.HTML(*input.Description)
		if description == "" {
			return params, validation.Error{Field: "description", Message: "required"}
		}
		if utf8.RuneCountInString(description) > maxDescriptionLength {
			return params, validation.Error{Field: "description", Message: fmt.Sprintf("must be at most %d characters", maxDescriptionLength)}
		}
		params.Description = &description
	}
	if input.Date != nil {
		date := input.Date.UTC()
		if !date.After(s.now()) {
			return params, ErrDateNotFuture
		}
		params.Date = &date
	}
	switch {
	case bannerFilename != "":
		params.Banner = &bannerFilename
	case input.Banner != nil:
		banner := *input.Banner
		params.Banner = &banner
	}
	return params, nil
}

// AuthorizeUpdate reports whether actor may update the event, without
// touching it. Callers use it to refuse a request before reading its body.
func (s *Service) AuthorizeUpdate(ctx context.Context, id string, actor auth.Identity) error {
	_, err := s.modifiable(ctx, id, actor, "event.update")
	if err != nil {
		metrics.EventMutations.WithLabelValues("update", mutationResult(err)).Inc()
	}
	return err
}

func (s *Service) modifiable(ctx context.Context, id string, actor auth.Identity, action string) (*Event, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModify(existing, actor) {
		s.auditLogger.LogFailure(ctx, action, actor.UserID, "event", existing.ID, map[string]string{"reason": "forbidden"})
		return nil, ErrForbidden
	}
	return existing, nil
}

// Remove deletes the event. Only the creator or an admin may remove it.
func (s *Service) Remove(ctx context.Context, id string, actor auth.Identity) error {
	err := s.remove(ctx, id, actor)
	metrics.EventMutations.WithLabelValues("delete", mutationResult(err)).Inc()
	return err
}

func (s *Service) remove(ctx context.Context, id string, actor auth.Identity) error {
	existing, err := s.modifiable(ctx, id, actor, "event.delete")
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, existing.ID, guardFor(actor)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}

	s.auditLogger.LogSuccess(ctx, "event.delete", actor.UserID, "event", existing.ID, nil)
	return nil
}

// RegisterAttendee adds actorID to the event's attendees exactly once.
func (s *Service) RegisterAttendee(ctx context.Context, eventID, actorID string) (*Event, error) {
	event, err := s.registerAttendee(ctx, eventID, actorID)
	metrics.EventRegistrations.WithLabelValues(registrationResult(err)).Inc()
	return event, err
}

func (s *Service) registerAttendee(ctx context.Context, eventID, actorID string) (*Event, error) {
	if ids.ValidateULID(eventID) != nil {
		return nil, ErrNotFound
	}
	eventID = ids.Normalize(eventID)

	added, err := s.repo.AddAttendee(ctx, eventID, actorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("register attendee: %w", err)
	}
	if !added {
		return nil, ErrAlreadyRegistered
	}

	s.auditLogger.LogSuccess(ctx, "event.register", actorID, "event", eventID, nil)
	return s.Get(ctx, eventID)
}

func canModify(event *Event, actor auth.Identity) bool {
	return actor.IsAdmin() || (actor.UserID != "" && event.CreatedBy.ID == actor.UserID)
}

func guardFor(actor auth.Identity) Guard {
	return Guard{ActorID: actor.UserID, Admin: actor.IsAdmin()}
}

func changedFields(params UpdateParams) map[string]string {
	fields := map[string]string{}
	if params.Title != nil {
		fields["title"] = *params.Title
	}
	if params.Date != nil {
		fields["date"] = params.Date.Format(time.RFC3339)
	}
	if params.Description != nil {
		fields["description"] = "changed"
	}
	if params.Banner != nil {
		fields["banner"] = *params.Banner
	}
	return fields
}

func mutationResult(err error) string {
	var verr validation.Error
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrDateNotFuture), errors.As(err, &verr):
		return "invalid"
	default:
		return "error"
	}
}

func registrationResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, ErrAlreadyRegistered):
		return "duplicate"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
