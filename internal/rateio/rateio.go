// Package rateio turns a split request into exact per-participant amounts.
package rateio

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/models"
)

var (
	hundred   = decimal.NewFromInt(100)
	tolerance = decimal.RequireFromString("0.01")
)

// Share is one requested split line. Value is a percentage in percentage mode
// and an amount in reais in fixed_value mode.
type Share struct {
	ParticipantID int64
	Value         decimal.Decimal
}

type Input struct {
	TotalCents int64
	Mode       models.SplitMode
	Shares     []Share
	// Registered lists the participant ids of the reservation.
	Registered []int64
}

type Allocation struct {
	ParticipantID int64
	AmountCents   int64
	// Percentage is set in percentage mode only.
	Percentage decimal.NullDecimal
}

// Calculate validates the input and returns one allocation per share, in the
// order given. Allocations always sum to TotalCents.
func Calculate(in Input) ([]Allocation, error) {
	if in.TotalCents < 0 {
		return nil, apperr.Invalid("total", "must not be negative")
	}
	if !in.Mode.Valid() {
		return nil, apperr.Invalid("split_mode", "must be percentage or fixed_value")
	}
	if len(in.Shares) == 0 {
		return nil, apperr.Invalid("participants", "must not be empty")
	}

	registered := make(map[int64]struct{}, len(in.Registered))
	for _, id := range in.Registered {
		registered[id] = struct{}{}
	}
	seen := make(map[int64]struct{}, len(in.Shares))
	for i, s := range in.Shares {
		if _, ok := registered[s.ParticipantID]; !ok {
			return nil, apperr.Invalid(field(i, "participant_id"), "is not a participant of this reservation")
		}
		if _, dup := seen[s.ParticipantID]; dup {
			return nil, apperr.Invalid(field(i, "participant_id"), "is listed more than once")
		}
		seen[s.ParticipantID] = struct{}{}
	}

	if in.Mode == models.SplitPercentage {
		return byPercentage(in)
	}
	return byFixedValue(in)
}

func field(i int, name string) string {
	return fmt.Sprintf("participants[%d].%s", i, name)
}

func byFixedValue(in Input) ([]Allocation, error) {
	out := make([]Allocation, len(in.Shares))
	var sum int64
	var anyPositive bool
	for i, s := range in.Shares {
		if s.Value.IsNegative() {
			return nil, apperr.Invalid(field(i, "split_value"), "must not be negative")
		}
		cents := s.Value.Mul(hundred)
		if !cents.Equal(cents.Truncate(0)) {
			return nil, apperr.Invalid(field(i, "split_value"), "must have at most two decimal places")
		}
		amount := cents.IntPart()
		if amount > 0 {
			anyPositive = true
		}
		sum += amount
		out[i] = Allocation{ParticipantID: s.ParticipantID, AmountCents: amount}
	}
	if !anyPositive {
		return nil, apperr.Invalid("participants", "at least one participant must pay a value above zero")
	}
	if sum != in.TotalCents {
		return nil, apperr.Invalid("participants", fmt.Sprintf("fixed values sum to %d cents but the total is %d cents", sum, in.TotalCents))
	}
	return out, nil
}

type remainder struct {
	index int
	id    int64
	frac  decimal.Decimal
}

func byPercentage(in Input) ([]Allocation, error) {
	total := decimal.NewFromInt(in.TotalCents)
	sumPct := decimal.Zero
	for i, s := range in.Shares {
		if s.Value.IsNegative() || s.Value.GreaterThan(hundred) {
			return nil, apperr.Invalid(field(i, "split_value"), "must be between 0 and 100")
		}
		sumPct = sumPct.Add(s.Value)
	}
	if sumPct.Sub(hundred).Abs().GreaterThan(tolerance) {
		return nil, apperr.Invalid("participants", fmt.Sprintf("percentages sum to %s, expected 100", sumPct.String()))
	}

	out := make([]Allocation, len(in.Shares))
	rems := make([]remainder, len(in.Shares))
	var allocated int64
	for i, s := range in.Shares {
		raw := total.Mul(s.Value).Div(hundred)
		floor := raw.Floor()
		out[i] = Allocation{
			ParticipantID: s.ParticipantID,
			AmountCents:   floor.IntPart(),
			Percentage:    decimal.NullDecimal{Decimal: s.Value, Valid: true},
		}
		rems[i] = remainder{index: i, id: s.ParticipantID, frac: raw.Sub(floor)}
		allocated += out[i].AmountCents
	}

	distributeLeftover(out, rems, in.TotalCents-allocated)
	return out, nil
}

// distributeLeftover moves the rounding difference one cent at a time. A
// positive leftover goes to the largest remainders; a surplus is taken from
// the smallest remainders, never below zero. Ties go to the lowest id.
func distributeLeftover(out []Allocation, rems []remainder, leftover int64) {
	if leftover == 0 {
		return
	}
	if leftover > 0 {
		sort.SliceStable(rems, func(i, j int) bool {
			if c := rems[i].frac.Cmp(rems[j].frac); c != 0 {
				return c > 0
			}
			return rems[i].id < rems[j].id
		})
		for i := 0; leftover > 0; i = (i + 1) % len(rems) {
			out[rems[i].index].AmountCents++
			leftover--
		}
		return
	}

	sort.SliceStable(rems, func(i, j int) bool {
		if c := rems[i].frac.Cmp(rems[j].frac); c != 0 {
			return c < 0
		}
		return rems[i].id < rems[j].id
	})
	for leftover < 0 {
		progressed := false
		for _, r := range rems {
			if leftover == 0 {
				break
			}
			if out[r.index].AmountCents == 0 {
				continue
			}
			out[r.index].AmountCents--
			leftover++
			progressed = true
		}
		if !progressed {
			return
		}
	}
}
