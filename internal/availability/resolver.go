// internal/availability/resolver.go
package availability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/models"
)

// Store is the read side the resolver needs. Pass the transactional queries
// when the result guards a write.
type Store interface {
	GetCourt(ctx context.Context, id int64) (models.Court, error)
	ListActiveSlots(ctx context.Context, courtID, weekday int64) ([]models.ScheduleSlot, error)
	ListBlocksForDate(ctx context.Context, courtID int64, date string) ([]models.Block, error)
	ListActiveReservations(ctx context.Context, courtID int64, date string) ([]models.Reservation, error)
}

type Resolver struct {
	loc        *time.Location
	minAdvance time.Duration
	now        func() time.Time
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(loc *time.Location, minAdvance time.Duration, opts ...Option) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	r := &Resolver{loc: loc, minAdvance: minAdvance, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TimeWindow optionally narrows Resolve output.
type TimeWindow struct {
	Start string
	End   string
}

// Request is a candidate booking range.
type Request struct {
	CourtID   int64
	Date      string
	StartTime string
	EndTime   string
	// SlotID pins the request to one schedule slot when set.
	SlotID int64
	// ExcludeReservationID skips the reservation being edited.
	ExcludeReservationID int64
}

type dayState struct {
	court        models.Court
	slots        []models.ScheduleSlot
	blocks       []Interval
	reservations []models.Reservation
}

func (r *Resolver) load(ctx context.Context, q Store, courtID int64, date string) (dayState, error) {
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return dayState{}, apperr.Invalid("date", "must be YYYY-MM-DD")
	}

	court, err := q.GetCourt(ctx, courtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dayState{}, apperr.NotFound("court")
		}
		return dayState{}, fmt.Errorf("load court: %w", err)
	}

	slots, err := q.ListActiveSlots(ctx, courtID, int64(day.Weekday()))
	if err != nil {
		return dayState{}, fmt.Errorf("list schedule slots: %w", err)
	}

	blocks, err := q.ListBlocksForDate(ctx, courtID, date)
	if err != nil {
		return dayState{}, fmt.Errorf("list blocks: %w", err)
	}
	var blocked []Interval
	for _, b := range blocks {
		if b.FullDay() {
			blocked = append(blocked, Interval{Start: 0, End: 24 * 60})
			continue
		}
		iv, err := ParseInterval(b.StartTime.String, b.EndTime.String)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Int64("block_id", b.ID).Msg("Skipping block with unreadable times")
			continue
		}
		blocked = append(blocked, iv)
	}

	reservations, err := q.ListActiveReservations(ctx, courtID, date)
	if err != nil {
		return dayState{}, fmt.Errorf("list reservations: %w", err)
	}

	return dayState{court: court, slots: slots, blocks: blocked, reservations: reservations}, nil
}

// Resolve lists the court's day as ordered ranges. Inactive courts have no
// available ranges.
func (r *Resolver) Resolve(ctx context.Context, q Store, courtID int64, date string, window *TimeWindow) ([]Range, error) {
	state, err := r.load(ctx, q, courtID, date)
	if err != nil {
		return nil, err
	}

	busy := append([]Interval(nil), state.blocks...)
	for _, res := range state.reservations {
		iv, err := ParseInterval(res.StartTime, res.EndTime)
		if err != nil {
			continue
		}
		busy = append(busy, iv)
	}
	if !state.court.Active {
		busy = append(busy, Interval{Start: 0, End: 24 * 60})
	}

	windows := make([]SlotWindow, 0, len(state.slots))
	for _, s := range state.slots {
		iv, err := ParseInterval(s.StartTime, s.EndTime)
		if err != nil {
			continue
		}
		windows = append(windows, SlotWindow{SlotID: s.ID, Interval: iv})
	}

	ranges := BuildRanges(windows, busy)
	if window != nil && (window.Start != "" || window.End != "") {
		start, end := window.Start, window.End
		if start == "" {
			start = "00:00"
		}
		if end == "" {
			end = "23:59"
		}
		clip, err := ParseInterval(start, end)
		if err != nil {
			return nil, apperr.Invalid("window", err.Error())
		}
		ranges = Clip(ranges, clip)
	}
	return ranges, nil
}

// Check validates a booking range against the court's day and returns the
// schedule slot that prices it. The range must fit inside one active slot and
// stay clear of blocks and non-cancelled reservations.
func (r *Resolver) Check(ctx context.Context, q Store, req Request) (models.ScheduleSlot, error) {
	requested, err := ParseInterval(req.StartTime, req.EndTime)
	if err != nil {
		return models.ScheduleSlot{}, apperr.Invalid("start_time", err.Error())
	}
	start, err := Instant(req.Date, req.StartTime, r.loc)
	if err != nil {
		return models.ScheduleSlot{}, apperr.Invalid("date", "must be YYYY-MM-DD")
	}

	state, err := r.load(ctx, q, req.CourtID, req.Date)
	if err != nil {
		return models.ScheduleSlot{}, err
	}
	if !state.court.Active {
		return models.ScheduleSlot{}, apperr.Invalid("court_id", "court is not active")
	}

	if earliest := r.now().Add(r.minAdvance); start.Before(earliest) {
		return models.ScheduleSlot{}, fmt.Errorf("%w: start must be at least %s from now", apperr.ErrAdvanceNotice, r.minAdvance)
	}

	conflict := apperr.ConflictError{CourtID: req.CourtID, Date: req.Date}

	var slot *models.ScheduleSlot
	for i := range state.slots {
		s := state.slots[i]
		if req.SlotID != 0 && s.ID != req.SlotID {
			continue
		}
		iv, err := ParseInterval(s.StartTime, s.EndTime)
		if err != nil {
			continue
		}
		if iv.Contains(requested) {
			slot = &s
			break
		}
	}
	if slot == nil {
		return models.ScheduleSlot{}, apperr.Invalid("start_time", "is outside the court schedule")
	}

	for _, b := range state.blocks {
		if Overlaps(b, requested) {
			conflict.Ranges = append(conflict.Ranges, "blocked "+b.String())
		}
	}
	for _, res := range state.reservations {
		if res.ID == req.ExcludeReservationID {
			continue
		}
		iv, err := ParseInterval(res.StartTime, res.EndTime)
		if err != nil {
			continue
		}
		if Overlaps(iv, requested) {
			conflict.Ranges = append(conflict.Ranges, iv.String())
		}
	}
	if len(conflict.Ranges) > 0 {
		return models.ScheduleSlot{}, conflict
	}
	return *slot, nil
}
