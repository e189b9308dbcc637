package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/Togather-Foundation/eventdesk/internal/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// eventDocument stores references by user id; attendees keep insertion order.
type eventDocument struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Date        time.Time `bson:"date"`
	CreatedBy   string    `bson:"createdBy"`
	Attendees   []string  `bson:"attendees"`
	Banner      string    `bson:"banner,omitempty"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

type EventRepository struct {
	repo
}

func (r *EventRepository) Create(ctx context.Context, params events.CreateParams) (_ *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_create", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := eventDocument{
		ID:          params.ID,
		Title:       params.Title,
		Description: params.Description,
		Date:        params.Date.UTC(),
		CreatedBy:   params.CreatedBy,
		Attendees:   []string{},
		Banner:      params.Banner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := r.events.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	resolved, err := r.resolve(ctx, []eventDocument{doc})
	if err != nil {
		return nil, err
	}
	return &resolved[0], nil
}

func (r *EventRepository) Get(ctx context.Context, id string) (_ *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_get", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var doc eventDocument
	if err := r.events.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	resolved, err := r.resolve(ctx, []eventDocument{doc})
	if err != nil {
		return nil, err
	}
	return &resolved[0], nil
}

func (r *EventRepository) List(ctx context.Context, filter events.Filter) (_ []events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_list", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(filter.Offset())).
		SetLimit(int64(filter.Limit))

	cursor, err := r.events.Find(ctx, filterDocument(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []eventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return r.resolve(ctx, docs)
}

func (r *EventRepository) Count(ctx context.Context, filter events.Filter) (_ int64, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_count", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	total, err := r.events.CountDocuments(ctx, filterDocument(filter))
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return total, nil
}

// Update is a single FindOneAndUpdate whose filter carries the ownership predicate.
func (r *EventRepository) Update(ctx context.Context, id string, guard events.Guard, params events.UpdateParams) (_ *events.Event, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_update", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	set := bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)}
	update := bson.M{}
	if params.Title != nil {
		set["title"] = *params.Title
	}
	if params.Description != nil {
		set["description"] = *params.Description
	}
	if params.Date != nil {
		set["date"] = params.Date.UTC()
	}
	if params.Banner != nil {
		if *params.Banner == "" {
			update["$unset"] = bson.M{"banner": ""}
		} else {
			set["banner"] = *params.Banner
		}
	}
	update["$set"] = set

	var doc eventDocument
	err = r.events.FindOneAndUpdate(ctx, guardFilter(id, guard), update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("update event: %w", err)
	}
	resolved, err := r.resolve(ctx, []eventDocument{doc})
	if err != nil {
		return nil, err
	}
	return &resolved[0], nil
}

func (r *EventRepository) Delete(ctx context.Context, id string, guard events.Guard) (err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_delete", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.events.DeleteOne(ctx, guardFilter(id, guard))
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if res.DeletedCount == 0 {
		return events.ErrNotFound
	}
	return nil
}

// AddAttendee pushes userID only when it is not already present.
func (r *EventRepository) AddAttendee(ctx context.Context, eventID, userID string) (_ bool, err error) {
	defer func(start time.Time) { metrics.RecordQuery("events_add_attendee", start, err) }(time.Now())
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.events.UpdateOne(ctx,
		bson.M{"_id": eventID, "attendees": bson.M{"$ne": userID}},
		bson.M{
			"$push": bson.M{"attendees": userID},
			"$set":  bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)},
		})
	if err != nil {
		return false, fmt.Errorf("add attendee: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	exists, err := r.events.CountDocuments(ctx, bson.M{"_id": eventID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check event: %w", err)
	}
	if exists == 0 {
		return false, events.ErrNotFound
	}
	return false, nil
}

// resolve replaces user ids with public user views in one users query.
func (r *EventRepository) resolve(ctx context.Context, docs []eventDocument) ([]events.Event, error) {
	idSet := map[string]struct{}{}
	for _, d := range docs {
		idSet[d.CreatedBy] = struct{}{}
		for _, a := range d.Attendees {
			idSet[a] = struct{}{}
		}
	}
	userIDs := make([]string, 0, len(idSet))
	for id := range idSet {
		userIDs = append(userIDs, id)
	}

	cursor, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}
	var found []userDocument
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	byID := make(map[string]users.PublicUser, len(found))
	for _, u := range found {
		byID[u.ID] = u.public()
	}

	out := make([]events.Event, 0, len(docs))
	for _, d := range docs {
		ev := events.Event{
			ID:          d.ID,
			Title:       d.Title,
			Description: d.Description,
			Date:        d.Date.UTC(),
			CreatedBy:   byID[d.CreatedBy],
			Attendees:   make([]users.PublicUser, 0, len(d.Attendees)),
			Banner:      d.Banner,
			CreatedAt:   d.CreatedAt.UTC(),
			UpdatedAt:   d.UpdatedAt.UTC(),
		}
		if ev.CreatedBy.ID == "" {
			ev.CreatedBy.ID = d.CreatedBy
		}
		for _, a := range d.Attendees {
			// users that no longer exist are dropped from the view
			if u, ok := byID[a]; ok {
				ev.Attendees = append(ev.Attendees, u)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func guardFilter(id string, guard events.Guard) bson.M {
	filter := bson.M{"_id": id}
	if !guard.Admin {
		filter["createdBy"] = guard.ActorID
	}
	return filter
}

func filterDocument(filter events.Filter) bson.M {
	doc := bson.M{}
	if filter.Search != "" {
		doc["title"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
	}
	date := bson.M{}
	if filter.DateFrom != nil {
		date["$gte"] = filter.DateFrom.UTC()
	}
	if filter.DateTo != nil {
		date["$lte"] = filter.DateTo.UTC()
	}
	if len(date) > 0 {
		doc["date"] = date
	}
	return doc
}
