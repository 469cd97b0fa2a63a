// internal/models/models.go
package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Court struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	MaxCapacity int64  `json:"max_capacity"`
	Active      bool   `json:"active"`
}

type ScheduleSlot struct {
	ID                  int64  `json:"id"`
	CourtID             int64  `json:"court_id"`
	Weekday             int64  `json:"weekday"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	PriceSingleCents    int64  `json:"price_single_cents"`
	PriceRecurringCents int64  `json:"price_recurring_cents"`
	Active              bool   `json:"active"`
}

// Price returns the slot price for the given reservation type.
func (s ScheduleSlot) Price(t ReservationType) int64 {
	if t == ReservationMonthly || t == ReservationRecurring {
		return s.PriceRecurringCents
	}
	return s.PriceSingleCents
}

// Block removes a court from availability. A block without times covers the
// whole day of every date in [StartDate, EndDate].
type Block struct {
	ID        int64          `json:"id"`
	CourtID   int64          `json:"court_id"`
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	StartTime sql.NullString `json:"-"`
	EndTime   sql.NullString `json:"-"`
	Reason    string         `json:"reason"`
}

func (b Block) FullDay() bool {
	return !b.StartTime.Valid || !b.EndTime.Valid
}

type Reservation struct {
	ID              int64             `json:"id"`
	OrganizerID     int64             `json:"organizer_id"`
	CourtID         int64             `json:"court_id"`
	ScheduleSlotID  int64             `json:"schedule_slot_id"`
	Date            string            `json:"date"`
	StartTime       string            `json:"start_time"`
	EndTime         string            `json:"end_time"`
	Type            ReservationType   `json:"type"`
	Status          ReservationStatus `json:"status"`
	TotalCents      int64             `json:"total_cents"`
	PaidCents       int64             `json:"paid_cents"`
	DiscountPercent int64             `json:"discount_percent,omitempty"`
	TeamID          sql.NullInt64     `json:"-"`
	SplitMode       sql.NullString    `json:"-"`
	Observations    string            `json:"observations,omitempty"`
	CouponCode      sql.NullString    `json:"-"`
	CancelReason    sql.NullString    `json:"-"`
	RefundCents     int64             `json:"refund_cents"`
	CancelledAt     sql.NullTime      `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type Participant struct {
	ID              int64               `json:"id"`
	ReservationID   int64               `json:"reservation_id"`
	UserID          sql.NullInt64       `json:"-"`
	GuestName       sql.NullString      `json:"-"`
	GuestPhone      sql.NullString      `json:"-"`
	Origin          ParticipantOrigin   `json:"origin"`
	SplitCents      int64               `json:"split_cents"`
	SplitPercentage decimal.NullDecimal `json:"-"`
	PaymentStatus   ParticipantStatus   `json:"payment_status"`
	PaidCents       int64               `json:"paid_cents"`
}

// OutstandingCents is what the participant still owes.
func (p Participant) OutstandingCents() int64 {
	if owed := p.SplitCents - p.PaidCents; owed > 0 {
		return owed
	}
	return 0
}

type Team struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	OwnerID int64  `json:"owner_id"`
}

type TeamMember struct {
	TeamID int64 `json:"team_id"`
	UserID int64 `json:"user_id"`
	Fixed  bool  `json:"fixed"`
}

type Coupon struct {
	Code             string       `json:"code"`
	PercentOff       int64        `json:"percent_off"`
	Active           bool         `json:"active"`
	ExpiresAt        sql.NullTime `json:"-"`
	MaxRedemptions   int64        `json:"max_redemptions"`
	RedemptionsCount int64        `json:"redemptions_count"`
}

type Invitation struct {
	ID                int64            `json:"id"`
	ReservationID     int64            `json:"reservation_id"`
	CreatorID         int64            `json:"creator_id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	Token             string           `json:"token"`
	TotalSlots        int64            `json:"total_slots"`
	SlotsRemaining    int64            `json:"slots_remaining"`
	PricePerSlotCents int64            `json:"price_per_slot_cents"`
	Status            InvitationStatus `json:"status"`
	ExpiresAt         time.Time        `json:"expires_at"`
	AcceptanceCount   int64            `json:"acceptance_count"`
	CreatedAt         time.Time        `json:"created_at"`
}

type InvitationAcceptance struct {
	ID            int64          `json:"id"`
	InvitationID  int64          `json:"invitation_id"`
	ParticipantID int64          `json:"participant_id"`
	GuestKey      string         `json:"-"`
	UserID        sql.NullInt64  `json:"-"`
	GuestName     string         `json:"guest_name"`
	GuestPhone    sql.NullString `json:"-"`
	Confirmed     bool           `json:"confirmed"`
	AcceptedAt    time.Time      `json:"accepted_at"`
}

type Payment struct {
	ID             int64          `json:"id"`
	ReservationID  sql.NullInt64  `json:"-"`
	ParticipantID  sql.NullInt64  `json:"-"`
	PayerID        int64          `json:"payer_id"`
	AmountCents    int64          `json:"amount_cents"`
	RefundedCents  int64          `json:"refunded_cents"`
	Method         PaymentMethod  `json:"method"`
	Status         PaymentStatus  `json:"status"`
	Orphaned       bool           `json:"orphaned,omitempty"`
	ExternalID     sql.NullString `json:"-"`
	IdempotencyKey string         `json:"idempotency_key"`
	Metadata       sql.NullString `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type PreAuthorization struct {
	ID              int64          `json:"id"`
	ReservationID   int64          `json:"reservation_id"`
	PayerID         int64          `json:"payer_id"`
	ExternalID      sql.NullString `json:"-"`
	AuthorizedCents int64          `json:"authorized_cents"`
	CapturedCents   int64          `json:"captured_cents"`
	Status          PreAuthStatus  `json:"status"`
	ReleaseAfter    time.Time      `json:"release_after"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type CreditEntry struct {
	ID              int64         `json:"id"`
	UserID          int64         `json:"user_id"`
	Type            CreditType    `json:"type"`
	ValueCents      int64         `json:"value_cents"`
	DiscountPercent int64         `json:"discount_percent,omitempty"`
	Status          CreditStatus  `json:"status"`
	ExpiresAt       sql.NullTime  `json:"-"`
	ReservationID   sql.NullInt64 `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
}

type WebhookDelivery struct {
	DeliveryID string
	EventType  string
	ExternalID string
	Outcome    string
	ReceivedAt time.Time
}
