package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	st, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStorage(t)

	tz, err := st.UserTimezone(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, tz)

	require.NoError(t, st.SaveUser(ctx, models.User{ID: "u1", Username: "anna"}))
	require.NoError(t, st.SetUserTimezone(ctx, "u1", "Asia/Tokyo"))
	// Saving again refreshes the name but keeps the zone.
	require.NoError(t, st.SaveUser(ctx, models.User{ID: "u1", Username: "anna2"}))

	tz, err = st.UserTimezone(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", tz)
}

func TestDays(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStorage(t)

	_, err := st.CurrentDay(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	created := time.Date(2024, 1, 10, 2, 0, 0, 0, time.UTC)
	first, err := st.CreateFirstDay(ctx, "u1", created)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Number)

	cur, err := st.CurrentDay(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, cur.ID)
	assert.True(t, created.Equal(cur.CreatedAt))

	second, err := st.RolloverDay(ctx, cur, created.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Number)

	// Rolling over a day that is no longer current conflicts.
	_, err = st.RolloverDay(ctx, cur, created.Add(48*time.Hour))
	require.ErrorIs(t, err, ErrConflict)

	old, err := st.DayByID(ctx, "u1", first.ID)
	require.NoError(t, err)
	assert.False(t, old.Current)

	_, err = st.DayByID(ctx, "someone-else", first.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateFirstDay_Duplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStorage(t)

	first, err := st.CreateFirstDay(ctx, "u1", time.Now())
	require.NoError(t, err)

	_, err = st.CreateFirstDay(ctx, "u1", time.Now())
	require.ErrorIs(t, err, ErrConflict)

	cur, err := st.CurrentDay(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, cur.ID)
	assert.Equal(t, 1, cur.Number)

	// Other users are unaffected.
	other, err := st.CreateFirstDay(ctx, "u2", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, other.Number)
}

func TestEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStorage(t)

	day, err := st.CreateFirstDay(ctx, "u1", time.Now())
	require.NoError(t, err)

	ids, err := st.InsertEntries(ctx, "u1", day.ID, []models.Dish{
		{Name: "гречка", Calories: 200, Protein: 7, Fat: 2, Carbs: 40, Grams: 150},
		{Name: "курица", Calories: 250, Protein: 30, Fat: 10, Carbs: 0, Grams: 120},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1])

	e, err := st.FindEntry(ctx, ids[1], "u1")
	require.NoError(t, err)
	assert.Equal(t, "курица", e.Name)
	assert.Equal(t, 120, e.Grams)

	_, err = st.FindEntry(ctx, ids[1], "u2")
	require.ErrorIs(t, err, ErrNotFound)

	n, err := st.CountEntriesForDay(ctx, "u1", day.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	totals, err := st.DayTotals(ctx, "u1", day.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DayTotals{Calories: 450, Protein: 37, Fat: 12, Carbs: 40, Count: 2}, totals)

	recent, err := st.RecentEntries(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ids[1], recent[0].ID)
}

func TestUpdateEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStorage(t)

	day, err := st.CreateFirstDay(ctx, "u1", time.Now())
	require.NoError(t, err)
	ids, err := st.InsertEntries(ctx, "u1", day.ID, []models.Dish{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)

	ok, err := st.UpdateEntry(ctx, ids[0], "u2", models.Dish{Name: "x"})
	require.NoError(t, err)
	assert.False(t, ok)

	err = st.UpdateEntries(ctx, "u1", []int64{ids[0], 9999}, []models.Dish{{Name: "a2"}, {Name: "b2"}})
	require.ErrorIs(t, err, ErrNotFound)

	// Nothing was written by the failed batch.
	e, err := st.FindEntry(ctx, ids[0], "u1")
	require.NoError(t, err)
	assert.Equal(t, "a", e.Name)

	err = st.UpdateEntries(ctx, "u1", ids, []models.Dish{{Name: "a2", Calories: 10}, {Name: "b2", Calories: 20}})
	require.NoError(t, err)

	entries, err := st.EntriesForDay(ctx, "u1", day.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a2", entries[0].Name)
	assert.Equal(t, 20, entries[1].Calories)

	require.Error(t, st.UpdateEntries(ctx, "u1", ids, []models.Dish{{Name: "only"}}))
}

func TestDeleteEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStorage(t)

	day, err := st.CreateFirstDay(ctx, "u1", time.Now())
	require.NoError(t, err)
	ids, err := st.InsertEntries(ctx, "u1", day.ID, []models.Dish{{Name: "a"}, {Name: "b"}, {Name: "c"}})
	require.NoError(t, err)

	// One id does not exist: nothing is removed.
	n, err := st.DeleteEntries(ctx, []int64{ids[0], 9999}, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	count, err := st.CountEntriesForDay(ctx, "u1", day.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Wrong owner.
	n, err = st.DeleteEntries(ctx, ids[:1], "u2")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = st.DeleteEntries(ctx, ids[:2], "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	count, err = st.CountEntriesForDay(ctx, "u1", day.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
