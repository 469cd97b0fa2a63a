package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/credits"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/gateway"
	"github.com/codr1/quadra/internal/models"
	"github.com/codr1/quadra/internal/store"
	"github.com/codr1/quadra/internal/testutil"
)

type refundCall struct {
	ExternalID     string
	AmountCents    int64
	IdempotencyKey string
}

type fakeGateway struct {
	mu       sync.Mutex
	next     int
	byKey    map[string]gateway.Charge
	keys     []string
	status   map[string]string
	refunds  []refundCall
	captures []int64
	cancels  []string
	voids    []string
	fail     error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{byKey: map[string]gateway.Charge{}, status: map[string]string{}}
}

func (g *fakeGateway) newCharge(key string, amount int64, status string) (gateway.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys = append(g.keys, key)
	if g.fail != nil {
		return gateway.Charge{}, g.fail
	}
	if c, ok := g.byKey[key]; ok {
		return c, nil
	}
	g.next++
	c := gateway.Charge{ID: fmt.Sprintf("pay_%d", g.next), Status: status, AmountCents: amount}
	g.byKey[key] = c
	return c, nil
}

func (g *fakeGateway) CreateCharge(_ context.Context, req gateway.ChargeRequest) (gateway.Charge, error) {
	return g.newCharge(req.IdempotencyKey, req.AmountCents, "PENDING")
}

func (g *fakeGateway) CreatePreAuth(_ context.Context, req gateway.PreAuthRequest) (gateway.Charge, error) {
	return g.newCharge(req.IdempotencyKey, req.AmountCents, "AUTHORIZED")
}

func (g *fakeGateway) Capture(_ context.Context, externalID string, amountCents int64) (gateway.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captures = append(g.captures, amountCents)
	return gateway.Charge{ID: externalID, Status: "CONFIRMED", AmountCents: amountCents}, nil
}

func (g *fakeGateway) CancelPreAuth(_ context.Context, externalID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels = append(g.cancels, externalID)
	return nil
}

func (g *fakeGateway) CancelCharge(_ context.Context, externalID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return g.fail
	}
	g.voids = append(g.voids, externalID)
	return nil
}

func (g *fakeGateway) Refund(_ context.Context, externalID string, amountCents int64, key string) (gateway.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return gateway.Charge{}, g.fail
	}
	g.refunds = append(g.refunds, refundCall{externalID, amountCents, key})
	return gateway.Charge{ID: externalID, Status: "REFUNDED"}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, externalID string) (gateway.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gateway.Charge{ID: externalID, Status: g.status[externalID]}, nil
}

type fixture struct {
	db     *db.DB
	svc    *Service
	gw     *fakeGateway
	ledger *credits.Ledger
	res    models.Reservation
	org    models.Participant
	clock  time.Time
}

func newFixture(t *testing.T, policy AutoConfirm) *fixture {
	t.Helper()
	database := testutil.NewTestDB(t)
	court := testutil.SeedCourt(t, database, 4)
	slot := testutil.SeedSlot(t, database, court.ID, testutil.SaturdayWeekday, "18:00", "22:00", 2000, 1500)
	res := testutil.SeedReservation(t, database, slot, 1, testutil.GameDate, "18:00", "19:00")
	parts, err := database.Queries.ListParticipants(testutil.Ctx(), res.ID)
	require.NoError(t, err)

	f := &fixture{db: database, gw: newFakeGateway(), res: res, org: parts[0]}
	f.clock = time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return f.clock }

	cfg := DefaultConfig()
	cfg.AutoConfirm = policy
	f.ledger = credits.NewLedger(database, credits.DefaultConfig()).WithClock(now)
	f.svc = NewService(database, f.gw, f.ledger, nil, cfg).WithClock(now)
	return f
}

func (f *fixture) charge(t *testing.T, participantID, payerID, amount int64) models.Payment {
	t.Helper()
	p, err := f.svc.CreateCharge(testutil.Ctx(), ChargeRequest{
		ReservationID: f.res.ID,
		ParticipantID: participantID,
		PayerID:       payerID,
		AmountCents:   amount,
		Method:        models.MethodPix,
	})
	require.NoError(t, err)
	require.True(t, p.ExternalID.Valid)
	return p
}

func (f *fixture) deliver(t *testing.T, deliveryID, event, externalID, extra string) WebhookResult {
	t.Helper()
	body := fmt.Sprintf(`{"id":%q,"event":%q,"payment":{"id":%q%s}}`, deliveryID, event, externalID, extra)
	d, err := ParseDelivery("", []byte(body))
	require.NoError(t, err)
	out, err := f.svc.HandleWebhook(testutil.Ctx(), d)
	require.NoError(t, err)
	return out
}

func (f *fixture) reservation(t *testing.T) models.Reservation {
	t.Helper()
	res, err := f.db.Queries.GetReservation(testutil.Ctx(), f.res.ID)
	require.NoError(t, err)
	return res
}

func (f *fixture) participant(t *testing.T, id int64) models.Participant {
	t.Helper()
	p, err := f.db.Queries.GetParticipant(testutil.Ctx(), id)
	require.NoError(t, err)
	return p
}

func TestDuplicateConfirmationIsAppliedOnce(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	p := f.charge(t, f.org.ID, 1, 2000)
	assert.Equal(t, models.PaymentPending, p.Status)

	first := f.deliver(t, "evt_1", "PAYMENT_CONFIRMED", p.ExternalID.String, `,"value":20.00`)
	assert.Equal(t, OutcomeApplied, first.Outcome)
	second := f.deliver(t, "evt_1", "PAYMENT_CONFIRMED", p.ExternalID.String, `,"value":20.00`)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	// Same event under a new delivery id hits the state machine and stops there.
	third := f.deliver(t, "evt_2", "PAYMENT_RECEIVED", p.ExternalID.String, `,"value":20.00`)
	assert.Equal(t, OutcomeNoOp, third.Outcome)

	part := f.participant(t, f.org.ID)
	assert.Equal(t, models.ParticipantPaid, part.PaymentStatus)
	assert.Equal(t, int64(2000), part.PaidCents)

	res := f.reservation(t)
	assert.Equal(t, int64(2000), res.PaidCents)
	assert.Equal(t, models.ReservationConfirmed, res.Status)

	delivery, err := f.db.Queries.GetWebhookDelivery(testutil.Ctx(), "evt_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, delivery.Outcome)
}

func TestOutOfOrderAndUnknownEvents(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	p := f.charge(t, f.org.ID, 1, 2000)

	assert.Equal(t, OutcomeUnknownPayment, f.deliver(t, "evt_a", "PAYMENT_CONFIRMED", "pay_missing", "").Outcome)
	assert.Equal(t, OutcomeIgnored, f.deliver(t, "evt_b", "PAYMENT_CREATED", p.ExternalID.String, "").Outcome)
	assert.Equal(t, OutcomeNoOp, f.deliver(t, "evt_c", "PAYMENT_REFUNDED", p.ExternalID.String, "").Outcome, "pending cannot be refunded")

	assert.Equal(t, OutcomeApplied, f.deliver(t, "evt_d", "PAYMENT_CONFIRMED", p.ExternalID.String, "").Outcome)
	assert.Equal(t, OutcomeNoOp, f.deliver(t, "evt_e", "PAYMENT_OVERDUE", p.ExternalID.String, "").Outcome, "confirmed never fails")

	assert.Equal(t, OutcomeApplied, f.deliver(t, "evt_f", "PAYMENT_REFUNDED", p.ExternalID.String, `,"refundedValue":20`).Outcome)
	got, err := f.db.Queries.GetPayment(testutil.Ctx(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, got.Status)
	assert.Equal(t, int64(2000), got.RefundedCents)
	assert.Equal(t, models.ParticipantRefunded, f.participant(t, f.org.ID).PaymentStatus)
	assert.Zero(t, f.reservation(t).PaidCents)
}

func TestFailedPaymentLeavesReservationPending(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	p := f.charge(t, f.org.ID, 1, 2000)
	assert.Equal(t, OutcomeApplied, f.deliver(t, "evt_1", "PAYMENT_REPROVED_BY_RISK_ANALYSIS", p.ExternalID.String, "").Outcome)

	got, err := f.db.Queries.GetPayment(testutil.Ctx(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.Status)
	assert.True(t, got.Metadata.Valid, "raw event is kept")
	assert.Equal(t, models.ReservationPending, f.reservation(t).Status)
}

func TestFullPaymentPolicy(t *testing.T) {
	f := newFixture(t, ConfirmOnFullPayment)
	a := f.charge(t, f.org.ID, 1, 1200)
	b := f.charge(t, 0, 2, 800)

	f.deliver(t, "evt_1", "PAYMENT_CONFIRMED", a.ExternalID.String, "")
	assert.Equal(t, models.ReservationPending, f.reservation(t).Status)
	assert.Equal(t, models.ParticipantPending, f.participant(t, f.org.ID).PaymentStatus, "1200 of 2000 is not the full share")

	f.deliver(t, "evt_2", "PAYMENT_CONFIRMED", b.ExternalID.String, "")
	res := f.reservation(t)
	assert.Equal(t, int64(2000), res.PaidCents)
	assert.Equal(t, models.ReservationConfirmed, res.Status)
}

func TestCreateChargeRetriesWithSameKey(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	ctx := testutil.Ctx()
	f.gw.fail = &apperr.GatewayError{Op: "create_charge", Err: context.DeadlineExceeded}

	req := ChargeRequest{ReservationID: f.res.ID, ParticipantID: f.org.ID, PayerID: 1, AmountCents: 2000, Method: models.MethodCard, IdempotencyKey: "booking-1-org"}
	_, err := f.svc.CreateCharge(ctx, req)
	require.ErrorIs(t, err, apperr.ErrPaymentGateway)

	pending, err := f.db.Queries.GetPaymentByIdempotencyKey(ctx, "booking-1-org")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, pending.Status)
	assert.False(t, pending.ExternalID.Valid)

	f.gw.fail = nil
	p, err := f.svc.CreateCharge(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, p.ID)
	assert.True(t, p.ExternalID.Valid)
	assert.Equal(t, []string{"booking-1-org", "booking-1-org"}, f.gw.keys)

	again, err := f.svc.CreateCharge(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Len(t, f.gw.keys, 2, "a submitted payment is not sent again")

	_, err = f.svc.CreateCharge(ctx, ChargeRequest{ReservationID: f.res.ID, PayerID: 1, AmountCents: 100, Method: models.MethodCollateral})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSyncPayment(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	p := f.charge(t, f.org.ID, 1, 2000)

	f.gw.status[p.ExternalID.String] = "PENDING"
	got, err := f.svc.SyncPayment(testutil.Ctx(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, got.Status)

	f.gw.status[p.ExternalID.String] = "RECEIVED"
	got, err = f.svc.SyncPayment(testutil.Ctx(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, got.Status)
	assert.Equal(t, models.ReservationConfirmed, f.reservation(t).Status)
}

func TestReservationCancelledRefundsLargestFirst(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	ctx := testutil.Ctx()
	small := f.charge(t, 0, 2, 500)
	large := f.charge(t, f.org.ID, 1, 1500)
	f.deliver(t, "evt_1", "PAYMENT_CONFIRMED", small.ExternalID.String, "")
	f.deliver(t, "evt_2", "PAYMENT_CONFIRMED", large.ExternalID.String, "")

	require.NoError(t, f.svc.ReservationCancelled(ctx, f.res.ID, 1800))
	assert.Equal(t, []refundCall{
		{large.ExternalID.String, 1500, fmt.Sprintf("refund-%d", large.ID)},
		{small.ExternalID.String, 300, fmt.Sprintf("refund-%d", small.ID)},
	}, f.gw.refunds)
	assert.Equal(t, int64(200), f.reservation(t).PaidCents)

	// Running it again refunds nothing more.
	require.NoError(t, f.svc.ReservationCancelled(ctx, f.res.ID, 1800))
	assert.Len(t, f.gw.refunds, 2)

	// The gateway's own refund notice arrives later and changes nothing.
	assert.Equal(t, OutcomeNoOp, f.deliver(t, "evt_3", "PAYMENT_REFUNDED", large.ExternalID.String, "").Outcome)
}

func TestReservationCancelledCreditsBalanceBack(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	ctx := testutil.Ctx()
	_, err := f.ledger.Purchase(ctx, 1, 5000)
	require.NoError(t, err)

	p, err := f.svc.CreateCharge(ctx, ChargeRequest{ReservationID: f.res.ID, ParticipantID: f.org.ID, PayerID: 1, AmountCents: 2000, Method: models.MethodBalance})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, p.Status)
	assert.Empty(t, f.gw.keys, "balance never reaches the gateway")

	balance, err := f.ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), balance)

	require.NoError(t, f.svc.ReservationCancelled(ctx, f.res.ID, 2000))
	balance, err = f.ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)
	assert.Empty(t, f.gw.refunds)
}

func TestReservationCancelledReportsGatewayFailure(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	p := f.charge(t, f.org.ID, 1, 2000)
	f.deliver(t, "evt_1", "PAYMENT_CONFIRMED", p.ExternalID.String, "")

	f.gw.fail = errors.New("connection reset")
	require.Error(t, f.svc.ReservationCancelled(testutil.Ctx(), f.res.ID, 2000))

	got, err := f.db.Queries.GetPayment(testutil.Ctx(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, got.Status, "local state is not guessed forward")
}

func (f *fixture) cancelReservation(t *testing.T) {
	t.Helper()
	n, err := f.db.Queries.CancelReservation(testutil.Ctx(), store.CancelReservationParams{
		ID:          f.res.ID,
		Reason:      "rain over the court",
		CancelledAt: f.clock,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestConfirmationAfterCancellationIsRefunded(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	p := f.charge(t, f.org.ID, 1, 2000)
	f.cancelReservation(t)

	out := f.deliver(t, "evt_1", "PAYMENT_CONFIRMED", p.ExternalID.String, `,"value":20.00`)
	assert.Equal(t, OutcomeApplied, out.Outcome)

	res := f.reservation(t)
	assert.Equal(t, models.ReservationCancelled, res.Status)
	assert.Zero(t, res.PaidCents, "never counted towards a cancelled reservation")
	part := f.participant(t, f.org.ID)
	assert.Zero(t, part.PaidCents)
	assert.NotEqual(t, models.ParticipantPaid, part.PaymentStatus)

	got, err := f.db.Queries.GetPayment(testutil.Ctx(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, got.Status)
	assert.True(t, got.Orphaned)
	assert.Equal(t, int64(2000), got.RefundedCents)
	assert.Equal(t, []refundCall{{p.ExternalID.String, 2000, fmt.Sprintf("refund-%d", p.ID)}}, f.gw.refunds)

	// The cancellation refund runs afterwards and owes nothing more.
	require.NoError(t, f.svc.ReservationCancelled(testutil.Ctx(), f.res.ID, 0))
	assert.Len(t, f.gw.refunds, 1)
}

func TestOrphanedPaymentRefundIsRetried(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	ctx := testutil.Ctx()
	p := f.charge(t, f.org.ID, 1, 2000)
	f.cancelReservation(t)

	f.gw.fail = errors.New("connection reset")
	assert.Equal(t, OutcomeApplied, f.deliver(t, "evt_1", "PAYMENT_CONFIRMED", p.ExternalID.String, "").Outcome)
	got, err := f.db.Queries.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, got.Status)
	assert.True(t, got.Orphaned)
	assert.Zero(t, f.reservation(t).PaidCents)

	f.gw.fail = nil
	require.NoError(t, f.svc.ReservationCancelled(ctx, f.res.ID, 0))
	assert.Equal(t, []refundCall{{p.ExternalID.String, 2000, fmt.Sprintf("refund-%d", p.ID)}}, f.gw.refunds)
	got, err = f.db.Queries.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, got.Status)
	assert.Zero(t, f.reservation(t).PaidCents)
}

func TestReservationCancelledVoidsPendingCharges(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	ctx := testutil.Ctx()
	paid := f.charge(t, f.org.ID, 1, 1500)
	unpaid := f.charge(t, 0, 2, 500)
	f.deliver(t, "evt_1", "PAYMENT_CONFIRMED", paid.ExternalID.String, "")
	f.cancelReservation(t)

	require.NoError(t, f.svc.ReservationCancelled(ctx, f.res.ID, 1500))
	assert.Equal(t, []string{unpaid.ExternalID.String}, f.gw.voids)
	assert.Equal(t, []refundCall{{paid.ExternalID.String, 1500, fmt.Sprintf("refund-%d", paid.ID)}}, f.gw.refunds)

	got, err := f.db.Queries.GetPayment(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.Status)

	// A confirmation racing the void can no longer settle the payment.
	assert.Equal(t, OutcomeNoOp, f.deliver(t, "evt_2", "PAYMENT_CONFIRMED", unpaid.ExternalID.String, "").Outcome)
	assert.Zero(t, f.reservation(t).PaidCents)
}

func TestPreAuthLifecycle(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	ctx := testutil.Ctx()
	card := gateway.CardData{Token: "tok_1", HolderName: "Ana"}

	hold, err := f.svc.CreatePreAuth(ctx, PreAuthRequest{ReservationID: f.res.ID, PayerID: 1, AmountCents: 3000, Card: card})
	require.NoError(t, err)
	assert.Equal(t, models.PreAuthOpen, hold.Status)
	assert.True(t, hold.ExternalID.Valid)
	assert.True(t, hold.ReleaseAfter.Equal(time.Date(2030, 6, 1, 20, 0, 0, 0, time.UTC)), "game close plus capture window, got %s", hold.ReleaseAfter)

	_, err = f.svc.CapturePreAuth(ctx, hold.ID, 3001)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	payment, err := f.svc.CapturePreAuth(ctx, hold.ID, 1500)
	require.NoError(t, err)
	assert.Equal(t, models.MethodCollateral, payment.Method)
	assert.Equal(t, models.PaymentConfirmed, payment.Status)
	assert.Equal(t, f.org.ID, payment.ParticipantID.Int64)
	assert.Equal(t, int64(1500), f.reservation(t).PaidCents)

	_, err = f.svc.CapturePreAuth(ctx, hold.ID, 100)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	other, err := f.svc.CreatePreAuth(ctx, PreAuthRequest{ReservationID: f.res.ID, PayerID: 2, AmountCents: 1000, Card: card})
	require.NoError(t, err)
	cancelled, err := f.svc.CancelPreAuth(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PreAuthCancelled, cancelled.Status)
	again, err := f.svc.CancelPreAuth(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PreAuthCancelled, again.Status)
	assert.Equal(t, []string{other.ExternalID.String}, f.gw.cancels)
}

func TestReleaseExpiredHolds(t *testing.T) {
	f := newFixture(t, ConfirmOnFirstPayment)
	ctx := testutil.Ctx()
	hold, err := f.svc.CreatePreAuth(ctx, PreAuthRequest{ReservationID: f.res.ID, PayerID: 1, AmountCents: 3000, Card: gateway.CardData{Token: "tok"}})
	require.NoError(t, err)

	n, err := f.svc.ReleaseExpiredHolds(ctx, hold.ReleaseAfter.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.ReleaseExpiredHolds(ctx, hold.ReleaseAfter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := f.db.Queries.GetPreAuth(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PreAuthCancelled, got.Status, "released with a status update")
}
