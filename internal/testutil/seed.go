package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/models"
	"github.com/codr1/quadra/internal/store"
)

// GameDate is a Saturday far enough ahead for every advance-notice rule.
const GameDate = "2030-06-01"

// SaturdayWeekday matches GameDate.
const SaturdayWeekday = int64(time.Saturday)

func SeedCourt(t *testing.T, database *db.DB, capacity int64) models.Court {
	t.Helper()
	court, err := database.Queries.CreateCourt(Ctx(), store.CreateCourtParams{
		Name:        "Quadra 1",
		Type:        "beach_tennis",
		MaxCapacity: capacity,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("seed court: %v", err)
	}
	return court
}

func SeedSlot(t *testing.T, database *db.DB, courtID, weekday int64, start, end string, singleCents, recurringCents int64) models.ScheduleSlot {
	t.Helper()
	slot, err := database.Queries.CreateScheduleSlot(Ctx(), store.CreateScheduleSlotParams{
		CourtID:             courtID,
		Weekday:             weekday,
		StartTime:           start,
		EndTime:             end,
		PriceSingleCents:    singleCents,
		PriceRecurringCents: recurringCents,
		Active:              true,
	})
	if err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	return slot
}

func SeedBlock(t *testing.T, database *db.DB, courtID int64, date, start, end string) models.Block {
	t.Helper()
	arg := store.CreateBlockParams{CourtID: courtID, StartDate: date, EndDate: date, Reason: "maintenance"}
	if start != "" {
		arg.StartTime = sql.NullString{String: start, Valid: true}
		arg.EndTime = sql.NullString{String: end, Valid: true}
	}
	block, err := database.Queries.CreateBlock(Ctx(), arg)
	if err != nil {
		t.Fatalf("seed block: %v", err)
	}
	return block
}

// SeedReservation inserts a pending reservation straight into the store with
// the organizer as its only participant.
func SeedReservation(t *testing.T, database *db.DB, slot models.ScheduleSlot, organizerID int64, date, start, end string) models.Reservation {
	t.Helper()
	res, err := database.Queries.CreateReservation(Ctx(), store.CreateReservationParams{
		OrganizerID:    organizerID,
		CourtID:        slot.CourtID,
		ScheduleSlotID: slot.ID,
		Date:           date,
		StartTime:      start,
		EndTime:        end,
		Type:           models.ReservationSingle,
		TotalCents:     slot.PriceSingleCents,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("seed reservation: %v", err)
	}
	if _, err := database.Queries.CreateParticipant(Ctx(), store.CreateParticipantParams{
		ReservationID: res.ID,
		UserID:        sql.NullInt64{Int64: organizerID, Valid: true},
		Origin:        models.OriginOrganizer,
		SplitCents:    res.TotalCents,
	}); err != nil {
		t.Fatalf("seed organizer participant: %v", err)
	}
	return res
}
