package store

import (
	"context"
	"database/sql"

	"github.com/codr1/quadra/internal/models"
)

type CourtRepository interface {
	CreateCourt(ctx context.Context, arg CreateCourtParams) (models.Court, error)
	GetCourt(ctx context.Context, id int64) (models.Court, error)
	CreateScheduleSlot(ctx context.Context, arg CreateScheduleSlotParams) (models.ScheduleSlot, error)
	GetScheduleSlot(ctx context.Context, id int64) (models.ScheduleSlot, error)
	ListActiveSlots(ctx context.Context, courtID, weekday int64) ([]models.ScheduleSlot, error)
	CreateBlock(ctx context.Context, arg CreateBlockParams) (models.Block, error)
	ListBlocksForDate(ctx context.Context, courtID int64, date string) ([]models.Block, error)
}

type CreateCourtParams struct {
	Name        string
	Type        string
	MaxCapacity int64
	Active      bool
}

const createCourt = `INSERT INTO courts (name, court_type, max_capacity, active) VALUES (?, ?, ?, ?)`

func (q *Queries) CreateCourt(ctx context.Context, arg CreateCourtParams) (models.Court, error) {
	res, err := q.db.ExecContext(ctx, createCourt, arg.Name, arg.Type, arg.MaxCapacity, arg.Active)
	if err != nil {
		return models.Court{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Court{}, err
	}
	return q.GetCourt(ctx, id)
}

const getCourt = `SELECT id, name, court_type, max_capacity, active FROM courts WHERE id = ?`

func (q *Queries) GetCourt(ctx context.Context, id int64) (models.Court, error) {
	var c models.Court
	err := q.db.QueryRowContext(ctx, getCourt, id).Scan(&c.ID, &c.Name, &c.Type, &c.MaxCapacity, &c.Active)
	return c, err
}

type CreateScheduleSlotParams struct {
	CourtID             int64
	Weekday             int64
	StartTime           string
	EndTime             string
	PriceSingleCents    int64
	PriceRecurringCents int64
	Active              bool
}

const createScheduleSlot = `INSERT INTO schedule_slots
    (court_id, weekday, start_time, end_time, price_single_cents, price_recurring_cents, active)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateScheduleSlot(ctx context.Context, arg CreateScheduleSlotParams) (models.ScheduleSlot, error) {
	res, err := q.db.ExecContext(ctx, createScheduleSlot,
		arg.CourtID,
		arg.Weekday,
		arg.StartTime,
		arg.EndTime,
		arg.PriceSingleCents,
		arg.PriceRecurringCents,
		arg.Active,
	)
	if err != nil {
		return models.ScheduleSlot{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.ScheduleSlot{}, err
	}
	return q.GetScheduleSlot(ctx, id)
}

const slotColumns = `id, court_id, weekday, start_time, end_time, price_single_cents, price_recurring_cents, active`

func scanSlot(row rowScanner) (models.ScheduleSlot, error) {
	var s models.ScheduleSlot
	err := row.Scan(&s.ID, &s.CourtID, &s.Weekday, &s.StartTime, &s.EndTime, &s.PriceSingleCents, &s.PriceRecurringCents, &s.Active)
	return s, err
}

func (q *Queries) GetScheduleSlot(ctx context.Context, id int64) (models.ScheduleSlot, error) {
	return scanSlot(q.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM schedule_slots WHERE id = ?`, id))
}

const listActiveSlots = `SELECT ` + slotColumns + ` FROM schedule_slots
WHERE court_id = ? AND weekday = ? AND active = 1
ORDER BY start_time, id`

func (q *Queries) ListActiveSlots(ctx context.Context, courtID, weekday int64) ([]models.ScheduleSlot, error) {
	rows, err := q.db.QueryContext(ctx, listActiveSlots, courtID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.ScheduleSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

type CreateBlockParams struct {
	CourtID   int64
	StartDate string
	EndDate   string
	StartTime sql.NullString
	EndTime   sql.NullString
	Reason    string
}

const createBlock = `INSERT INTO blocks (court_id, start_date, end_date, start_time, end_time, reason) VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateBlock(ctx context.Context, arg CreateBlockParams) (models.Block, error) {
	res, err := q.db.ExecContext(ctx, createBlock, arg.CourtID, arg.StartDate, arg.EndDate, arg.StartTime, arg.EndTime, arg.Reason)
	if err != nil {
		return models.Block{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Block{}, err
	}
	return models.Block{
		ID:        id,
		CourtID:   arg.CourtID,
		StartDate: arg.StartDate,
		EndDate:   arg.EndDate,
		StartTime: arg.StartTime,
		EndTime:   arg.EndTime,
		Reason:    arg.Reason,
	}, nil
}

const listBlocksForDate = `SELECT id, court_id, start_date, end_date, start_time, end_time, reason
FROM blocks
WHERE court_id = ? AND start_date <= ? AND end_date >= ?
ORDER BY start_time, id`

func (q *Queries) ListBlocksForDate(ctx context.Context, courtID int64, date string) ([]models.Block, error) {
	rows, err := q.db.QueryContext(ctx, listBlocksForDate, courtID, date, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Block
	for rows.Next() {
		var b models.Block
		if err := rows.Scan(&b.ID, &b.CourtID, &b.StartDate, &b.EndDate, &b.StartTime, &b.EndTime, &b.Reason); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}
