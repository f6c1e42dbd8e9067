// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
)

// ErrNotFound is returned when a row does not exist or belongs to another user.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned when a day transition lost a race with another writer.
var ErrConflict = errors.New("storage: conflicting update")

const timeLayout = time.RFC3339Nano

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers anyway; one connection also keeps
	// ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        user_id TEXT PRIMARY KEY,
        username TEXT NOT NULL DEFAULT '',
        timezone TEXT NOT NULL DEFAULT '',
        created_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS days (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT NOT NULL,
        day_number INTEGER NOT NULL,
        is_current INTEGER NOT NULL DEFAULT 1,
        created_at TEXT NOT NULL,
        UNIQUE(user_id, day_number)
    );

    CREATE TABLE IF NOT EXISTS food_entries (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT NOT NULL,
        day_id INTEGER NOT NULL,
        dish_name TEXT NOT NULL,
        calories INTEGER NOT NULL DEFAULT 0,
        protein INTEGER NOT NULL DEFAULT 0,
        fat INTEGER NOT NULL DEFAULT 0,
        carbs INTEGER NOT NULL DEFAULT 0,
        grams INTEGER NOT NULL DEFAULT 0,
        created_at TEXT NOT NULL,
        FOREIGN KEY (day_id) REFERENCES days(id)
    );

    CREATE INDEX IF NOT EXISTS idx_days_user_current ON days(user_id, is_current);
    CREATE INDEX IF NOT EXISTS idx_entries_user_day ON food_entries(user_id, day_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveUser inserts the user or refreshes its username. The stored timezone
// is never overwritten here.
func (s *SQLiteStorage) SaveUser(ctx context.Context, user models.User) error {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (user_id, username, timezone, created_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET username = excluded.username
    `, user.ID, user.Username, user.Timezone, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// UserTimezone returns the user's configured zone, or "" when unset.
func (s *SQLiteStorage) UserTimezone(ctx context.Context, userID string) (string, error) {
	var tz string
	err := s.db.QueryRowContext(ctx, `SELECT timezone FROM users WHERE user_id = ?`, userID).Scan(&tz)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query timezone: %w", err)
	}
	return tz, nil
}

// SetUserTimezone stores tz for the user, creating the user row if needed.
func (s *SQLiteStorage) SetUserTimezone(ctx context.Context, userID, tz string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (user_id, timezone, created_at)
        VALUES (?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET timezone = excluded.timezone
    `, userID, tz, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set timezone: %w", err)
	}
	return nil
}

// CurrentDay returns the user's current day or ErrNotFound.
func (s *SQLiteStorage) CurrentDay(ctx context.Context, userID string) (models.Day, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, user_id, day_number, is_current, created_at
        FROM days
        WHERE user_id = ? AND is_current = 1
    `, userID)
	return scanDay(row)
}

// DayByID returns a day owned by userID or ErrNotFound.
func (s *SQLiteStorage) DayByID(ctx context.Context, userID string, dayID int64) (models.Day, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, user_id, day_number, is_current, created_at
        FROM days
        WHERE id = ? AND user_id = ?
    `, dayID, userID)
	return scanDay(row)
}

// CreateFirstDay inserts day #1 as the current day.
func (s *SQLiteStorage) CreateFirstDay(ctx context.Context, userID string, createdAt time.Time) (models.Day, error) {
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO days (user_id, day_number, is_current, created_at)
        VALUES (?, 1, 1, ?)
        ON CONFLICT(user_id, day_number) DO NOTHING
    `, userID, formatTime(createdAt))
	if err != nil {
		return models.Day{}, fmt.Errorf("failed to insert first day: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Day{}, fmt.Errorf("failed to check first day insert: %w", err)
	} else if n == 0 {
		return models.Day{}, ErrConflict
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Day{}, fmt.Errorf("failed to read day id: %w", err)
	}
	return models.Day{ID: id, UserID: userID, Number: 1, Current: true, CreatedAt: createdAt.UTC()}, nil
}

// RolloverDay flips from to non-current and inserts the next day in one
// transaction. ErrConflict means from was no longer current.
func (s *SQLiteStorage) RolloverDay(ctx context.Context, from models.Day, createdAt time.Time) (models.Day, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Day{}, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        UPDATE days SET is_current = 0
        WHERE id = ? AND user_id = ? AND is_current = 1
    `, from.ID, from.UserID)
	if err != nil {
		return models.Day{}, fmt.Errorf("failed to close day: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Day{}, fmt.Errorf("failed to read affected rows: %w", err)
	} else if n != 1 {
		return models.Day{}, ErrConflict
	}

	next := from.Number + 1
	res, err = tx.ExecContext(ctx, `
        INSERT INTO days (user_id, day_number, is_current, created_at)
        VALUES (?, ?, 1, ?)
    `, from.UserID, next, formatTime(createdAt))
	if err != nil {
		return models.Day{}, fmt.Errorf("failed to insert day: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Day{}, fmt.Errorf("failed to read day id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Day{}, fmt.Errorf("failed to commit rollover: %w", err)
	}
	return models.Day{ID: id, UserID: from.UserID, Number: next, Current: true, CreatedAt: createdAt.UTC()}, nil
}

// InsertEntries saves a batch and returns the new ids in input order.
func (s *SQLiteStorage) InsertEntries(ctx context.Context, userID string, dayID int64, dishes []models.Dish) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO food_entries (user_id, day_id, dish_name, calories, protein, fat, carbs, grams, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	now := formatTime(time.Now())
	ids := make([]int64, 0, len(dishes))
	for _, d := range dishes {
		res, err := tx.ExecContext(ctx, query,
			userID, dayID, d.Name, d.Calories, d.Protein, d.Fat, d.Carbs, d.Grams, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert entry: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read entry id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit entries: %w", err)
	}
	return ids, nil
}

// FindEntry returns the entry when it exists and is owned by userID.
func (s *SQLiteStorage) FindEntry(ctx context.Context, id int64, userID string) (models.FoodEntry, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, user_id, day_id, dish_name, calories, protein, fat, carbs, grams, created_at
        FROM food_entries
        WHERE id = ? AND user_id = ?
    `, id, userID)
	return scanEntry(row)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateEntry(ctx context.Context, db execer, id int64, userID string, d models.Dish) (bool, error) {
	res, err := db.ExecContext(ctx, `
        UPDATE food_entries
        SET dish_name = ?, calories = ?, protein = ?, fat = ?, carbs = ?, grams = ?
        WHERE id = ? AND user_id = ?
    `, d.Name, d.Calories, d.Protein, d.Fat, d.Carbs, d.Grams, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to update entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// UpdateEntry overwrites one entry. It reports false when no owned row matched.
func (s *SQLiteStorage) UpdateEntry(ctx context.Context, id int64, userID string, d models.Dish) (bool, error) {
	return updateEntry(ctx, s.db, id, userID, d)
}

// UpdateEntries overwrites ids[i] with dishes[i] in a single transaction.
// If any row is missing nothing is written and ErrNotFound is returned.
func (s *SQLiteStorage) UpdateEntries(ctx context.Context, userID string, ids []int64, dishes []models.Dish) error {
	if len(ids) != len(dishes) {
		return fmt.Errorf("update entries: %d ids but %d dishes", len(ids), len(dishes))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for i, id := range ids {
		ok, err := updateEntry(ctx, tx, id, userID, dishes[i])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("entry %d: %w", id, ErrNotFound)
		}
	}
	return tx.Commit()
}

// DeleteEntries removes all ids owned by userID in one transaction and
// returns the number of matched rows. When fewer rows match than ids were
// given, the transaction is rolled back and nothing is deleted.
func (s *SQLiteStorage) DeleteEntries(ctx context.Context, ids []int64, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, userID)

	res, err := tx.ExecContext(ctx,
		`DELETE FROM food_entries WHERE id IN (`+placeholders+`) AND user_id = ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n != int64(len(ids)) {
		return n, nil
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return n, nil
}

// CountEntriesForDay returns how many entries the day holds.
func (s *SQLiteStorage) CountEntriesForDay(ctx context.Context, userID string, dayID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM food_entries WHERE user_id = ? AND day_id = ?
    `, userID, dayID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// EntriesForDay lists a day's entries in insertion order.
func (s *SQLiteStorage) EntriesForDay(ctx context.Context, userID string, dayID int64) ([]models.FoodEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, day_id, dish_name, calories, protein, fat, carbs, grams, created_at
        FROM food_entries
        WHERE user_id = ? AND day_id = ?
        ORDER BY id
    `, userID, dayID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return scanEntries(rows)
}

// RecentEntries lists the user's latest entries across days, newest first.
func (s *SQLiteStorage) RecentEntries(ctx context.Context, userID string, limit int) ([]models.FoodEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, day_id, dish_name, calories, protein, fat, carbs, grams, created_at
        FROM food_entries
        WHERE user_id = ?
        ORDER BY id DESC
        LIMIT ?
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return scanEntries(rows)
}

// DayTotals sums the nutrition values of a day.
func (s *SQLiteStorage) DayTotals(ctx context.Context, userID string, dayID int64) (models.DayTotals, error) {
	var t models.DayTotals
	err := s.db.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(calories), 0), COALESCE(SUM(protein), 0),
               COALESCE(SUM(fat), 0), COALESCE(SUM(carbs), 0), COUNT(*)
        FROM food_entries
        WHERE user_id = ? AND day_id = ?
    `, userID, dayID).Scan(&t.Calories, &t.Protein, &t.Fat, &t.Carbs, &t.Count)
	if err != nil {
		return models.DayTotals{}, fmt.Errorf("failed to sum day: %w", err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDay(row scanner) (models.Day, error) {
	var (
		d         models.Day
		current   int
		createdAt string
	)
	err := row.Scan(&d.ID, &d.UserID, &d.Number, &current, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Day{}, ErrNotFound
	}
	if err != nil {
		return models.Day{}, fmt.Errorf("failed to scan day: %w", err)
	}
	d.Current = current == 1
	if d.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return models.Day{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return d, nil
}

func scanEntry(row scanner) (models.FoodEntry, error) {
	var (
		e         models.FoodEntry
		createdAt string
	)
	err := row.Scan(&e.ID, &e.UserID, &e.DayID, &e.Name,
		&e.Calories, &e.Protein, &e.Fat, &e.Carbs, &e.Grams, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FoodEntry{}, ErrNotFound
	}
	if err != nil {
		return models.FoodEntry{}, fmt.Errorf("failed to scan entry: %w", err)
	}
	if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return models.FoodEntry{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]models.FoodEntry, error) {
	defer rows.Close()

	var entries []models.FoodEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
