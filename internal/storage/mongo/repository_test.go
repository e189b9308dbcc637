package mongo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/auth"
	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/domain/ids"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/stretchr/testify/require"
)

func createEvent(t *testing.T, store *Store, owner, title string, date time.Time, banner string) *events.Event {
	t.Helper()
	id, err := ids.NewULID()
	require.NoError(t, err)
	ev, err := store.Events().Create(context.Background(), events.CreateParams{
		ID: id, Title: title, Description: "desc " + title, Date: date, CreatedBy: owner, Banner: banner,
	})
	require.NoError(t, err)
	return ev
}

func TestUserRepository_EmailUniqueCaseInsensitive(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	u := seedUser(t, store, "Alice@Example.com", auth.RoleUser)
	require.Equal(t, "alice@example.com", u.Email)

	_, err := store.Users().Create(ctx, users.NewUser{
		ID: "01HX0000000000000000000001", Name: "Dup", Email: "ALICE@example.com",
		PasswordHash: "x", Role: auth.RoleUser,
	})
	require.ErrorIs(t, err, users.ErrEmailTaken)

	got, err := store.Users().GetByEmail(ctx, "alice@EXAMPLE.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = store.Users().GetByID(ctx, "01HX0000000000000000000002")
	require.ErrorIs(t, err, users.ErrUserNotFound)
}

func TestEventRepository_ListFiltersAndPaging(t *testing.T) {
	store := setupStore(t)
	owner := seedUser(t, store, "lister@example.com", auth.RoleAdmin)
	base := time.Date(2031, 3, 1, 18, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		createEvent(t, store, owner.ID, fmt.Sprintf("Concert %02d", i), base.Add(time.Duration(i)*24*time.Hour), "")
	}
	createEvent(t, store, owner.ID, "Jazz (live)", base.Add(-24*time.Hour), "")

	ctx := context.Background()
	filter := events.Filter{Page: 2, Limit: 10, Search: "CONCERT"}
	page, err := store.Events().List(ctx, filter)
	require.NoError(t, err)
	require.Len(t, page, 10)
	require.Equal(t, "Concert 10", page[0].Title)
	require.Equal(t, owner.Email, page[0].CreatedBy.Email)

	total, err := store.Events().Count(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, int64(25), total)

	paren, err := store.Events().Count(ctx, events.Filter{Page: 1, Limit: 10, Search: "(live"})
	require.NoError(t, err)
	require.Equal(t, int64(1), paren)

	from := base.Add(2 * 24 * time.Hour)
	to := base.Add(4 * 24 * time.Hour)
	bounded, err := store.Events().Count(ctx, events.Filter{Page: 1, Limit: 10, DateFrom: &from, DateTo: &to})
	require.NoError(t, err)
	require.Equal(t, int64(3), bounded)

	empty, err := store.Events().List(ctx, events.Filter{Page: 9, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestEventRepository_UpdateAndDeleteGuard(t *testing.T) {
	store := setupStore(t)
	owner := seedUser(t, store, "owner@example.com", auth.RoleUser)
	other := seedUser(t, store, "other@example.com", auth.RoleUser)
	ev := createEvent(t, store, owner.ID, "Original", time.Now().Add(time.Hour), "old.png")
	ctx := context.Background()

	title := "By stranger"
	_, err := store.Events().Update(ctx, ev.ID, events.Guard{ActorID: other.ID}, events.UpdateParams{Title: &title})
	require.ErrorIs(t, err, events.ErrNotFound)

	title = "By owner"
	updated, err := store.Events().Update(ctx, ev.ID, events.Guard{ActorID: owner.ID}, events.UpdateParams{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "By owner", updated.Title)
	require.Equal(t, "old.png", updated.Banner)

	clear := ""
	updated, err = store.Events().Update(ctx, ev.ID, events.Guard{ActorID: other.ID, Admin: true}, events.UpdateParams{Banner: &clear})
	require.NoError(t, err)
	require.Empty(t, updated.Banner)

	require.ErrorIs(t, store.Events().Delete(ctx, ev.ID, events.Guard{ActorID: other.ID}), events.ErrNotFound)
	require.NoError(t, store.Events().Delete(ctx, ev.ID, events.Guard{ActorID: owner.ID}))
	_, err = store.Events().Get(ctx, ev.ID)
	require.ErrorIs(t, err, events.ErrNotFound)
}

func TestEventRepository_AddAttendeeConcurrently(t *testing.T) {
	store := setupStore(t)
	owner := seedUser(t, store, "owner@example.com", auth.RoleAdmin)
	guest := seedUser(t, store, "guest@example.com", auth.RoleUser)
	ev := createEvent(t, store, owner.ID, "Party", time.Now().Add(time.Hour), "")
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Events().AddAttendee(ctx, ev.ID, guest.ID)
			if err != nil {
				t.Errorf("AddAttendee: %v", err)
				return
			}
			if ok {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, added)

	ok, err := store.Events().AddAttendee(ctx, ev.ID, owner.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := store.Events().Get(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, got.Attendees, 2)
	require.Equal(t, guest.ID, got.Attendees[0].ID)
	require.Equal(t, owner.ID, got.Attendees[1].ID)

	_, err = store.Events().AddAttendee(ctx, "01HX0000000000000000000000", guest.ID)
	require.ErrorIs(t, err, events.ErrNotFound)
}

func TestStore_PoolStatsAndPing(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.Ping(context.Background()))

	stats := store.PoolStats()
	require.Equal(t, 10, stats.Max)
	require.GreaterOrEqual(t, stats.Open, 1)
	require.GreaterOrEqual(t, stats.Idle, 0)
}
