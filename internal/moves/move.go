// Package moves validates and executes batches of player moves. A batch is
// validated as a greedy, order-dependent fold over each country's treasury
// and then executed as a single all-or-nothing transaction.
package moves

import (
	"fmt"

	"github.com/talgya/tgsim/internal/persistence"
)

// Type is the kind of action a move performs.
type Type string

const (
	Build   Type = "build"
	Recruit Type = "recruit"
)

// Move is one pending player action.
type Move struct {
	ID             int64
	Turn           int64
	Country        string
	Type           Type
	ProvinceID     *int64
	BuildingTypeID *int64
	UnitTypeID     *int64
	Amount         int64
}

// FromRow converts a stored move.
func FromRow(r persistence.MoveRow) Move {
	return Move{
		ID:             r.ID,
		Turn:           r.Turn,
		Country:        r.CountryCode,
		Type:           Type(r.MoveType),
		ProvinceID:     r.TargetProvinceID,
		BuildingTypeID: r.TargetBuildingTypeID,
		UnitTypeID:     r.TargetUnitTypeID,
		Amount:         r.Amount,
	}
}

func (m Move) String() string {
	switch m.Type {
	case Build:
		return fmt.Sprintf("move %d: %s build %dx building %s in province %s",
			m.ID, m.Country, m.Amount, idString(m.BuildingTypeID), idString(m.ProvinceID))
	case Recruit:
		return fmt.Sprintf("move %d: %s recruit %dx unit %s",
			m.ID, m.Country, m.Amount, idString(m.UnitTypeID))
	default:
		return fmt.Sprintf("move %d: %s %q", m.ID, m.Country, string(m.Type))
	}
}

func idString(id *int64) string {
	if id == nil {
		return "<none>"
	}
	return fmt.Sprintf("%d", *id)
}

// Outcome is the single fate of a move in a batch.
type Outcome int

const (
	Approved Outcome = iota
	RejectedInvalidAmount
	RejectedUnknownReference
	RejectedUnauthorized
	RejectedInsufficientFunds
)

var outcomeNames = [...]string{
	Approved:                  "approved",
	RejectedInvalidAmount:     "rejected-invalid-amount",
	RejectedUnknownReference:  "rejected-unknown-reference",
	RejectedUnauthorized:      "rejected-unauthorized",
	RejectedInsufficientFunds: "rejected-insufficient-funds",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// Decision records what validation made of a move. Cost is the locked-in
// price for approved moves.
type Decision struct {
	Move    Move
	Outcome Outcome
	Cost    int64
	Reason  string
}

// Approved reports whether the move goes on to execution.
func (d Decision) Approved() bool { return d.Outcome == Approved }
