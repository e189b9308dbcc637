package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/Togather-Foundation/eventdesk/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const foreignKeyViolation = "23503"

type EventRepository struct {
	repo
}

const eventSelect = `
SELECT e.id, e.title, e.description, e.date, e.banner, e.created_at, e.updated_at,
       u.id, u.name, u.email, u.role
  FROM events e
  JOIN users u ON u.id = e.created_by`

func (r *EventRepository) Create(ctx context.Context, params events.CreateParams) (_ *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_create", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var event *events.Event
	err = r.inTx(ctx, func(q queryer) error {
		_, err := q.Exec(ctx, `
INSERT INTO events (id, title, description, date, created_by, banner)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`,
			params.ID, params.Title, params.Description, params.Date, params.CreatedBy, params.Banner)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		event, err = getEvent(ctx, q, params.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (r *EventRepository) Get(ctx context.Context, id string) (_ *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_get", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return getEvent(ctx, r.pool, id)
}

func (r *EventRepository) List(ctx context.Context, filter events.Filter) (_ []events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_list", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	where, args := filterClause(filter)
	args = append(args, filter.Limit, filter.Offset())
	query := fmt.Sprintf(`%s%s
 ORDER BY e.date ASC, e.id ASC
 LIMIT $%d OFFSET $%d`, eventSelect, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var (
		list     []events.Event
		eventIDs []string
	)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		list = append(list, *ev)
		eventIDs = append(eventIDs, ev.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if len(list) == 0 {
		return list, nil
	}

	attendees, err := loadAttendees(ctx, r.pool, eventIDs)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if a, ok := attendees[list[i].ID]; ok {
			list[i].Attendees = a
		}
	}
	return list, nil
}

func (r *EventRepository) Count(ctx context.Context, filter events.Filter) (_ int64, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_count", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	where, args := filterClause(filter)
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM events e`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return total, nil
}

// Update applies params in one statement guarded by the ownership predicate.
func (r *EventRepository) Update(ctx context.Context, id string, guard events.Guard, params events.UpdateParams) (_ *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_update", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var banner pgtype.Text
	if params.Banner != nil {
		banner = pgtype.Text{String: *params.Banner, Valid: true}
	}

	var event *events.Event
	err = r.inTx(ctx, func(q queryer) error {
		tag, err := q.Exec(ctx, `
UPDATE events
   SET title       = COALESCE($4, title),
       description = COALESCE($5, description),
       date        = COALESCE($6, date),
       banner      = CASE WHEN $7::text IS NULL THEN banner ELSE NULLIF($7::text, '') END,
       updated_at  = now()
 WHERE id = $1
   AND (created_by = $2 OR $3::boolean)`,
			id, guard.ActorID, guard.Admin, params.Title, params.Description, params.Date, banner)
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return events.ErrNotFound
		}
		event, err = getEvent(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (r *EventRepository) Delete(ctx context.Context, id string, guard events.Guard) (err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_delete", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1 AND (created_by = $2 OR $3::boolean)`, id, guard.ActorID, guard.Admin)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

// AddAttendee inserts the pair only when the event exists. A conflict on the
// primary key means the user was already registered.
func (r *EventRepository) AddAttendee(ctx context.Context, eventID, userID string) (_ bool, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_add_attendee", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var exists, inserted bool
	err = r.pool.QueryRow(ctx, `
WITH target AS (
    SELECT id FROM events WHERE id = $1
), ins AS (
    INSERT INTO event_attendees (event_id, user_id)
    SELECT id, $2 FROM target
    ON CONFLICT (event_id, user_id) DO NOTHING
    RETURNING 1
)
SELECT EXISTS (SELECT 1 FROM target), EXISTS (SELECT 1 FROM ins)`, eventID, userID).Scan(&exists, &inserted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation && pgErr.ConstraintName == "event_attendees_event_id_fkey" {
			// event deleted between the CTE snapshot and the insert
			return false, events.ErrNotFound
		}
		return false, fmt.Errorf("add attendee: %w", err)
	}
	if !exists {
		return false, events.ErrNotFound
	}
	return inserted, nil
}

func getEvent(ctx context.Context, q queryer, id string) (*events.Event, error) {
	event, err := scanEvent(q.QueryRow(ctx, eventSelect+` WHERE e.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, events.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	attendees, err := loadAttendees(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	if a, ok := attendees[id]; ok {
		event.Attendees = a
	}
	return event, nil
}

func loadAttendees(ctx context.Context, q queryer, eventIDs []string) (map[string][]users.PublicUser, error) {
	rows, err := q.Query(ctx, `
SELECT a.event_id, u.id, u.name, u.email, u.role
  FROM event_attendees a
  JOIN users u ON u.id = a.user_id
 WHERE a.event_id = ANY($1)
 ORDER BY a.event_id, a.seq`, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("load attendees: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]users.PublicUser, len(eventIDs))
	for rows.Next() {
		var (
			eventID string
			u       users.PublicUser
		)
		if err := rows.Scan(&eventID, &u.ID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out[eventID] = append(out[eventID], u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load attendees: %w", err)
	}
	return out, nil
}

func scanEvent(row pgx.Row) (*events.Event, error) {
	var (
		ev     events.Event
		banner pgtype.Text
	)
	err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.Date, &banner, &ev.CreatedAt, &ev.UpdatedAt,
		&ev.CreatedBy.ID, &ev.CreatedBy.Name, &ev.CreatedBy.Email, &ev.CreatedBy.Role)
	if err != nil {
		return nil, err
	}
	ev.Date = ev.Date.UTC()
	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.UpdatedAt = ev.UpdatedAt.UTC()
	if banner.Valid {
		ev.Banner = banner.String
	}
	ev.Attendees = []users.PublicUser{}
	return &ev, nil
}

// filterClause renders the WHERE clause shared by List and Count.
func filterClause(filter events.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Search != "" {
		args = append(args, "%"+escapeILIKEPattern(filter.Search)+"%")
		conds = append(conds, fmt.Sprintf("e.title ILIKE $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conds = append(conds, fmt.Sprintf("e.date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conds = append(conds, fmt.Sprintf("e.date <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return "\n WHERE " + strings.Join(conds, " AND "), args
}

// escapeILIKEPattern escapes LIKE metacharacters so search input matches literally.
func escapeILIKEPattern(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
