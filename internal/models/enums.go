package models

type ReservationType string

const (
	ReservationSingle    ReservationType = "single"
	ReservationMonthly   ReservationType = "monthly"
	ReservationRecurring ReservationType = "recurring"
)

func (t ReservationType) Valid() bool {
	switch t {
	case ReservationSingle, ReservationMonthly, ReservationRecurring:
		return true
	}
	return false
}

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

type SplitMode string

const (
	SplitPercentage SplitMode = "percentage"
	SplitFixedValue SplitMode = "fixed_value"
)

func (m SplitMode) Valid() bool {
	return m == SplitPercentage || m == SplitFixedValue
}

type ParticipantOrigin string

const (
	OriginOrganizer ParticipantOrigin = "organizer"
	OriginTeam      ParticipantOrigin = "team"
	OriginInvite    ParticipantOrigin = "invite"
)

type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "pending"
	ParticipantPaid     ParticipantStatus = "paid"
	ParticipantRefunded ParticipantStatus = "refunded"
)

type InvitationStatus string

const (
	InvitationActive  InvitationStatus = "active"
	InvitationClosed  InvitationStatus = "closed"
	InvitationExpired InvitationStatus = "expired"
	// InvitationFull is set when the last slot is taken.
	InvitationFull InvitationStatus = "completo"
)

type PaymentMethod string

const (
	MethodPix        PaymentMethod = "pix"
	MethodCard       PaymentMethod = "card"
	MethodDebit      PaymentMethod = "debit"
	MethodBalance    PaymentMethod = "balance"
	MethodCollateral PaymentMethod = "collateral"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodPix, MethodCard, MethodDebit, MethodBalance, MethodCollateral:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PreAuthStatus string

const (
	PreAuthOpen      PreAuthStatus = "open"
	PreAuthCaptured  PreAuthStatus = "captured"
	PreAuthCancelled PreAuthStatus = "cancelled"
)

type CreditType string

const (
	CreditPurchase   CreditType = "purchase"
	CreditBonus      CreditType = "bonus"
	CreditReferral   CreditType = "referral"
	CreditPromo      CreditType = "promo"
	CreditUse        CreditType = "use"
	CreditExpiration CreditType = "expiration"
	CreditRefund     CreditType = "refund"
)

type CreditStatus string

const (
	CreditActive  CreditStatus = "active"
	CreditUsed    CreditStatus = "used"
	CreditExpired CreditStatus = "expired"
)
