package invitations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/models"
	"github.com/codr1/quadra/internal/notify"
	"github.com/codr1/quadra/internal/testutil"
)

const organizerID = int64(1)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixture struct {
	db    *db.DB
	svc   *Service
	res   models.Reservation
	rec   *recorder
	clock *time.Time
}

func newFixture(t *testing.T, capacity int64) *fixture {
	t.Helper()
	database := testutil.NewTestDB(t)
	court := testutil.SeedCourt(t, database, capacity)
	slot := testutil.SeedSlot(t, database, court.ID, testutil.SaturdayWeekday, "18:00", "22:00", 10000, 8000)
	res := testutil.SeedReservation(t, database, slot, organizerID, testutil.GameDate, "18:00", "19:00")

	now := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{db: database, res: res, rec: &recorder{}, clock: &now}
	f.svc = NewService(database, f.rec, Config{Location: time.UTC, CloseWindow: 2 * time.Hour}).
		WithClock(func() time.Time { return *f.clock })
	return f
}

func (f *fixture) invite(t *testing.T, slots, price int64) models.Invitation {
	t.Helper()
	inv, err := f.svc.Create(testutil.Ctx(), CreateParams{
		ReservationID:     f.res.ID,
		CreatorID:         organizerID,
		Name:              "Sábado na areia",
		TotalSlots:        slots,
		PricePerSlotCents: price,
	})
	require.NoError(t, err)
	return inv
}

func guest(i int) Guest {
	return Guest{Name: fmt.Sprintf("Guest %d", i), Phone: fmt.Sprintf("(11) 98765-432%d", i)}
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	f := newFixture(t, 10)
	inv := f.invite(t, 3, 2500)

	assert.Equal(t, models.InvitationActive, inv.Status)
	assert.Equal(t, int64(3), inv.SlotsRemaining)
	assert.NotEmpty(t, inv.Token)
	assert.True(t, inv.ExpiresAt.Equal(time.Date(2030, 6, 1, 16, 0, 0, 0, time.UTC)), "defaults to game close, got %s", inv.ExpiresAt)

	ctx := testutil.Ctx()
	_, err := f.svc.Create(ctx, CreateParams{ReservationID: f.res.ID, CreatorID: 99, Name: "x", TotalSlots: 1})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Create(ctx, CreateParams{ReservationID: f.res.ID, CreatorID: organizerID, Name: "x", TotalSlots: 0})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// 10 places: organizer + 3 held by the first invitation leave 6.
	_, err = f.svc.Create(ctx, CreateParams{ReservationID: f.res.ID, CreatorID: organizerID, Name: "x", TotalSlots: 7})
	var fe apperr.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "total_slots", fe.Field)

	*f.clock = time.Date(2030, 6, 1, 17, 0, 0, 0, time.UTC)
	_, err = f.svc.Create(ctx, CreateParams{ReservationID: f.res.ID, CreatorID: organizerID, Name: "x", TotalSlots: 1})
	assert.ErrorIs(t, err, apperr.ErrGameClosed)
}

func TestConcurrentAcceptanceNeverOverfills(t *testing.T) {
	f := newFixture(t, 10)
	inv := f.invite(t, 5, 2000)

	var (
		mu        sync.Mutex
		successes int
		full      int
	)
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			_, err := f.svc.Accept(testutil.Ctx(), inv.Token, guest(i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperr.ErrCapacityExceeded):
				full++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 5, successes)
	assert.Equal(t, 1, full)

	got, err := f.db.Queries.GetInvitation(testutil.Ctx(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationFull, got.Status)
	assert.Equal(t, int64(0), got.SlotsRemaining)
	assert.Equal(t, int64(5), got.AcceptanceCount)

	participants, err := f.db.Queries.ListParticipants(testutil.Ctx(), f.res.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 6, "organizer plus five guests")
	assert.Equal(t, 5, f.rec.count())
}

func TestAcceptOutcomes(t *testing.T) {
	f := newFixture(t, 10)
	ctx := testutil.Ctx()
	inv := f.invite(t, 2, 0)

	_, err := f.svc.Accept(ctx, "missing-token", guest(1))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	out, err := f.svc.Accept(ctx, inv.Token, Guest{Name: "Ana", Phone: "+55 11 98765-4321"})
	require.NoError(t, err)
	assert.Equal(t, "+5511987654321", out.Acceptance.GuestPhone.String)
	assert.Equal(t, models.OriginInvite, out.Participant.Origin)
	assert.Equal(t, models.ParticipantPaid, out.Participant.PaymentStatus, "free invitation")

	_, err = f.svc.Accept(ctx, inv.Token, Guest{Name: "Ana again", Phone: "11987654321"})
	assert.ErrorIs(t, err, apperr.ErrConflict, "same phone is the same guest")

	_, err = f.svc.Accept(ctx, inv.Token, Guest{Name: "Bad", Phone: "123"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Accept(ctx, inv.Token, Guest{UserID: organizerID})
	assert.ErrorIs(t, err, apperr.ErrConflict, "organizer already takes part")

	got, err := f.db.Queries.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.SlotsRemaining, "failed attempts roll back the decrement")

	*f.clock = time.Date(2030, 6, 1, 16, 30, 0, 0, time.UTC)
	_, err = f.svc.Accept(ctx, inv.Token, guest(5))
	assert.ErrorIs(t, err, apperr.ErrInvitationExpired)

	got, err = f.db.Queries.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationExpired, got.Status, "expiry is persisted")

	_, err = f.svc.Accept(ctx, inv.Token, guest(6))
	assert.ErrorIs(t, err, apperr.ErrInvitationClosed)
}

func TestCloseIsCreatorOnly(t *testing.T) {
	f := newFixture(t, 10)
	ctx := testutil.Ctx()
	inv := f.invite(t, 3, 1000)

	_, err := f.svc.Close(ctx, inv.ID, 42)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	closed, err := f.svc.Close(ctx, inv.ID, organizerID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationClosed, closed.Status)

	_, err = f.svc.Accept(ctx, inv.Token, guest(1))
	assert.ErrorIs(t, err, apperr.ErrInvitationClosed)

	got, err := f.svc.Get(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.SlotsRemaining, "closing keeps the remaining count")
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("(21) 99876-5432", "BR")
	require.NoError(t, err)
	assert.Equal(t, "+5521998765432", got)

	_, err = NormalizePhone("", "BR")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
