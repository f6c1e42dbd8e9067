// Package dayclock decides when a user's logical day ends and performs the
// day transition against the record store.
//
// A logical day starts at [RolloverHour] local time, not at midnight: a meal
// logged at 02:00 still belongs to the previous day.
package dayclock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/storage"
)

// RolloverHour is the local hour at which a new logical day begins.
const RolloverHour = 4

// DefaultTimezone applies to users without a valid zone.
const DefaultTimezone = "Europe/Moscow"

// DayStart returns the start of the logical day containing t, evaluated in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), RolloverHour, 0, 0, 0, loc)
	if local.Hour() < RolloverHour {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// ShouldRollover reports whether now lies in a later logical day than last.
func ShouldRollover(loc *time.Location, last, now time.Time) bool {
	return DayStart(now, loc).After(DayStart(last, loc))
}

// ResolveLocation loads name, falling back to fallback and then to UTC.
// It never fails.
func ResolveLocation(name, fallback string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
		slog.Debug("dayclock: unknown timezone, using fallback", "timezone", name, "fallback", fallback)
	}
	if fallback != "" {
		if loc, err := time.LoadLocation(fallback); err == nil {
			return loc
		}
	}
	return time.UTC
}

// Store is the subset of the record store the clock needs.
type Store interface {
	UserTimezone(ctx context.Context, userID string) (string, error)
	CurrentDay(ctx context.Context, userID string) (models.Day, error)
	CreateFirstDay(ctx context.Context, userID string, createdAt time.Time) (models.Day, error)
	RolloverDay(ctx context.Context, from models.Day, createdAt time.Time) (models.Day, error)
}

// Trigger tells why a day transition happened.
type Trigger string

const (
	TriggerFirst    Trigger = "first"
	TriggerBoundary Trigger = "boundary"
	TriggerManual   Trigger = "manual"
)

// Clock performs day transitions for users. It holds no per-user state; the
// boundary is recomputed from the store on every call.
type Clock struct {
	store       Store
	defaultZone string
	now         func() time.Time
	onRollover  func(ctx context.Context, trigger Trigger)
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow replaces the time source.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithDefaultTimezone overrides DefaultTimezone.
func WithDefaultTimezone(name string) Option {
	return func(c *Clock) {
		if name != "" {
			c.defaultZone = name
		}
	}
}

// WithRolloverHook registers fn to be called after every day creation.
func WithRolloverHook(fn func(ctx context.Context, trigger Trigger)) Option {
	return func(c *Clock) { c.onRollover = fn }
}

// New returns a Clock backed by store.
func New(store Store, opts ...Option) *Clock {
	c := &Clock{
		store:       store,
		defaultZone: DefaultTimezone,
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Location returns the user's zone, or the default zone when it is unset,
// invalid or cannot be read.
func (c *Clock) Location(ctx context.Context, userID string) *time.Location {
	tz, err := c.store.UserTimezone(ctx, userID)
	if err != nil {
		slog.Warn("dayclock: failed to read timezone", "user_id", userID, "err", err)
		tz = ""
	}
	return ResolveLocation(tz, c.defaultZone)
}

// ShouldRollover reports whether a day created at lastDayCreatedAt has ended
// for userID.
func (c *Clock) ShouldRollover(ctx context.Context, userID string, lastDayCreatedAt time.Time) bool {
	return ShouldRollover(c.Location(ctx, userID), lastDayCreatedAt, c.now())
}

// GetOrCreateCurrentDay returns the user's current day, creating day 1 on
// first contact and the next day once the boundary has passed.
func (c *Clock) GetOrCreateCurrentDay(ctx context.Context, userID string) (models.Day, error) {
	day, err := c.store.CurrentDay(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return c.createFirst(ctx, userID)
	}
	if err != nil {
		return models.Day{}, fmt.Errorf("dayclock: current day: %w", err)
	}

	if !c.ShouldRollover(ctx, userID, day.CreatedAt) {
		return day, nil
	}
	return c.rollover(ctx, day, TriggerBoundary)
}

// CreateNextDay advances the user to a new day regardless of the boundary.
func (c *Clock) CreateNextDay(ctx context.Context, userID string) (models.Day, error) {
	day, err := c.store.CurrentDay(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return c.createFirst(ctx, userID)
	}
	if err != nil {
		return models.Day{}, fmt.Errorf("dayclock: current day: %w", err)
	}
	return c.rollover(ctx, day, TriggerManual)
}

func (c *Clock) createFirst(ctx context.Context, userID string) (models.Day, error) {
	day, err := c.store.CreateFirstDay(ctx, userID, c.now())
	if errors.Is(err, storage.ErrConflict) {
		// Another writer created it first.
		cur, cerr := c.store.CurrentDay(ctx, userID)
		if cerr != nil {
			return models.Day{}, fmt.Errorf("dayclock: reload current day: %w", cerr)
		}
		return cur, nil
	}
	if err != nil {
		return models.Day{}, fmt.Errorf("dayclock: create first day: %w", err)
	}
	c.notify(ctx, TriggerFirst)
	return day, nil
}

func (c *Clock) rollover(ctx context.Context, from models.Day, trigger Trigger) (models.Day, error) {
	next, err := c.store.RolloverDay(ctx, from, c.now())
	if errors.Is(err, storage.ErrConflict) {
		// Another writer already advanced the day.
		cur, cerr := c.store.CurrentDay(ctx, from.UserID)
		if cerr != nil {
			return models.Day{}, fmt.Errorf("dayclock: reload current day: %w", cerr)
		}
		return cur, nil
	}
	if err != nil {
		return models.Day{}, fmt.Errorf("dayclock: rollover: %w", err)
	}
	slog.Info("dayclock: new day", "user_id", from.UserID, "day", next.Number, "trigger", string(trigger))
	c.notify(ctx, trigger)
	return next, nil
}

func (c *Clock) notify(ctx context.Context, trigger Trigger) {
	if c.onRollover != nil {
		c.onRollover(ctx, trigger)
	}
}
