package moves

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/tgsim/internal/config"
	"github.com/talgya/tgsim/internal/persistence"
)

// Store opens the transactions a batch runs in. *persistence.DB satisfies it.
type Store interface {
	WithTx(ctx context.Context, fn func(tx *persistence.Tx) error) error
}

// Executor applies approved moves.
type Executor struct {
	logging bool
}

// NewExecutor creates an executor configured by cfg.
func NewExecutor(cfg config.Config) *Executor {
	return &Executor{logging: cfg.Moves.Logging}
}

// Execute applies every approved decision in order inside one transaction:
// mark the move processed, debit the locked cost, add the buildings or
// units. A move that is no longer pending is skipped, so re-running a batch
// never applies a move twice. Any failure rolls the whole batch back and no
// move in it is marked processed.
func (x *Executor) Execute(ctx context.Context, store Store, approved []Decision) (int, error) {
	var executed int
	err := store.WithTx(ctx, func(tx *persistence.Tx) error {
		var err error
		executed, err = x.ExecuteTx(ctx, tx, approved)
		return err
	})
	if err != nil {
		return 0, err
	}
	return executed, nil
}

// ExecuteTx applies approved decisions inside the caller's transaction.
func (x *Executor) ExecuteTx(ctx context.Context, tx *persistence.Tx, approved []Decision) (int, error) {
	var executed int
	for _, d := range approved {
		if !d.Approved() {
			continue
		}
		applied, err := x.apply(ctx, tx, d)
		if err != nil {
			return 0, fmt.Errorf("move %d: %w", d.Move.ID, err)
		}
		if applied {
			executed++
		}
	}
	return executed, nil
}

func (x *Executor) apply(ctx context.Context, tx *persistence.Tx, d Decision) (bool, error) {
	m := d.Move

	marked, err := tx.MarkProcessed(ctx, m.ID)
	if err != nil {
		return false, err
	}
	if !marked {
		slog.Warn("move already processed, skipping", "move", m.ID)
		return false, nil
	}

	if err := tx.DebitTreasury(ctx, m.Country, d.Cost); err != nil {
		return false, err
	}

	switch m.Type {
	case Build:
		if m.ProvinceID == nil || m.BuildingTypeID == nil {
			return false, fmt.Errorf("build without target")
		}
		if err := tx.AddBuildings(ctx, *m.ProvinceID, *m.BuildingTypeID, m.Amount); err != nil {
			return false, err
		}
	case Recruit:
		if m.UnitTypeID == nil {
			return false, fmt.Errorf("recruit without unit type")
		}
		if err := tx.AddUnits(ctx, m.Country, *m.UnitTypeID, m.Amount); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unknown move type %q", string(m.Type))
	}

	if x.logging {
		slog.Info("move executed", "move", m.ID, "country", m.Country, "type", m.Type, "amount", m.Amount, "cost", d.Cost)
	}
	return true, nil
}

// Result summarizes one processed batch.
type Result struct {
	BatchID   string
	Decisions []Decision
	Executed  int
}

// Approved counts approved moves.
func (r Result) Approved() int {
	n := 0
	for _, d := range r.Decisions {
		if d.Approved() {
			n++
		}
	}
	return n
}

// Rejected counts rejected moves.
func (r Result) Rejected() int {
	return len(r.Decisions) - r.Approved()
}

// Processor runs the full cycle over every pending move: load, validate,
// execute.
type Processor struct {
	validator *Validator
	executor  *Executor
	validate  bool
}

// NewProcessor creates a processor configured by cfg.
func NewProcessor(cfg config.Config) *Processor {
	return &Processor{
		validator: NewValidator(cfg),
		executor:  NewExecutor(cfg),
		validate:  cfg.Moves.BatchValidation,
	}
}

// Process resolves every unprocessed move. Loading, validation and
// execution share one transaction, so costs are checked against the same
// treasuries they are debited from. Rejections are recorded in the result; an
// execution failure rolls back the batch and is returned.
func (p *Processor) Process(ctx context.Context, store Store) (Result, error) {
	res := Result{BatchID: uuid.NewString()}
	log := slog.With("batch", res.BatchID)

	err := store.WithTx(ctx, func(tx *persistence.Tx) error {
		res.Executed = 0

		rows, err := tx.PendingMoves(ctx)
		if err != nil {
			return fmt.Errorf("load pending moves: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		batch := make([]Move, len(rows))
		for i, r := range rows {
			batch[i] = FromRow(r)
		}
		log.Info("processing moves", "count", len(batch))

		if p.validate {
			res.Decisions, err = p.validator.Validate(ctx, tx, batch)
		} else {
			res.Decisions, err = p.validator.Price(ctx, tx, batch)
		}
		if err != nil {
			return err
		}
		log.Info("moves validated", "approved", res.Approved(), "rejected", res.Rejected())

		res.Executed, err = p.executor.ExecuteTx(ctx, tx, res.Decisions)
		return err
	})
	if err != nil {
		res.Executed = 0
		log.Error("move processing failed, rolled back", "error", err)
		return res, err
	}
	if len(res.Decisions) == 0 {
		log.Info("no moves to process")
		return res, nil
	}
	log.Info("moves executed", "executed", res.Executed)
	return res, nil
}
