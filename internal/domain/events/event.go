package events

import (
	"context"
	"errors"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
)

var (
	ErrNotFound          = errors.New("event not found")
	ErrForbidden         = errors.New("only the event creator or an admin may modify this event")
	ErrDateNotFuture     = errors.New("event date must be in the future")
	ErrAlreadyRegistered = errors.New("user is already registered for this event")
)

// Event is an event with its creator and attendees resolved to public user views.
type Event struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Date        time.Time          `json:"date"`
	CreatedBy   users.PublicUser   `json:"createdBy"`
	Attendees   []users.PublicUser `json:"attendees"`
	Banner      string             `json:"banner,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func (e *Event) HasAttendee(userID string) bool {
	for _, a := range e.Attendees {
		if a.ID == userID {
			return true
		}
	}
	return false
}

type CreateParams struct {
	ID          string
	Title       string
	Description string
	Date        time.Time
	CreatedBy   string
	Banner      string
}

// UpdateParams holds the fields to change; nil means unchanged. A non-nil
// empty Banner clears the banner.
type UpdateParams struct {
	Title       *string
	Description *string
	Date        *time.Time
	Banner      *string
}

func (p UpdateParams) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Date == nil && p.Banner == nil
}

// Guard is the ownership predicate applied inside conditional writes: the
// row matches when created_by equals ActorID or Admin is set.
type Guard struct {
	ActorID string
	Admin   bool
}

// Repository is the event store. Update, Delete and AddAttendee are single
// conditional statements; they never read then write.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Event, error)
	Get(ctx context.Context, id string) (*Event, error)
	List(ctx context.Context, filter Filter) ([]Event, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	// Update returns ErrNotFound when no row matched id and guard.
	Update(ctx context.Context, id string, guard Guard, params UpdateParams) (*Event, error)
	// Delete returns ErrNotFound when no row matched id and guard.
	Delete(ctx context.Context, id string, guard Guard) error
	// AddAttendee reports false when userID was already an attendee and
	// ErrNotFound when the event does not exist.
	AddAttendee(ctx context.Context, eventID, userID string) (bool, error)
}
