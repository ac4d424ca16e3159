// Package api serves the game state over HTTP.
// GET endpoints are public and read-only.
// POST endpoints resolve turns and require a bearer token.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/talgya/tgsim/internal/config"
	"github.com/talgya/tgsim/internal/engine"
	"github.com/talgya/tgsim/internal/moves"
	"github.com/talgya/tgsim/internal/persistence"
)

// Server serves economy records and pending moves, and runs ticks and move
// batches on request.
type Server struct {
	DB       *persistence.DB
	Config   config.Config
	Addr     string
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// One turn-resolution run at a time.
	runMu sync.Mutex

	limiter *RateLimiter
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.limiter == nil {
		s.limiter = NewRateLimiter(30, time.Hour)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/economy", s.handleEconomy)
	mux.HandleFunc("GET /api/v1/economy/{code}", s.handleCountryEconomy)
	mux.HandleFunc("GET /api/v1/moves", s.handlePendingMoves)

	mux.HandleFunc("POST /api/v1/tick", s.adminOnly(RateLimitMiddleware(s.limiter, s.handleTick)))
	mux.HandleFunc("POST /api/v1/moves/process", s.adminOnly(RateLimitMiddleware(s.limiter, s.handleProcessMoves)))

	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.limiter.RunCleanup(ctx, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("HTTP API stopped")
	return nil
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no TGSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type economyRecord struct {
	Country            string `json:"country"`
	Treasury           int64  `json:"treasury"`
	TaxIncome          int64  `json:"tax_income"`
	BuildingIncome     int64  `json:"building_income"`
	TotalIncome        int64  `json:"total_income"`
	AdministrationCost int64  `json:"administration_cost"`
	MilitaryUpkeep     int64  `json:"military_upkeep"`
	BuildingUpkeep     int64  `json:"building_upkeep"`
	TotalExpenses      int64  `json:"total_expenses"`
	TotalPopulation    int64  `json:"total_population"`
}

func toRecord(code string, e persistence.EconomySnapshot) economyRecord {
	return economyRecord{
		Country:            code,
		Treasury:           e.Treasury,
		TaxIncome:          e.TaxIncome,
		BuildingIncome:     e.BuildingIncome,
		TotalIncome:        e.TotalIncome,
		AdministrationCost: e.AdministrationCost,
		MilitaryUpkeep:     e.MilitaryUpkeep,
		BuildingUpkeep:     e.BuildingUpkeep,
		TotalExpenses:      e.TotalExpenses,
		TotalPopulation:    e.TotalPopulation,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var countries, pending int
	err := s.DB.WithTx(r.Context(), func(tx *persistence.Tx) error {
		codes, err := tx.CountryCodes(r.Context())
		if err != nil {
			return err
		}
		rows, err := tx.PendingMoves(r.Context())
		if err != nil {
			return err
		}
		countries, pending = len(codes), len(rows)
		return nil
	})
	if err != nil {
		serverError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"countries":        countries,
		"pending_moves":    pending,
		"batch_validation": s.Config.Moves.BatchValidation,
	})
}

func (s *Server) handleEconomy(w http.ResponseWriter, r *http.Request) {
	out := []economyRecord{}
	err := s.DB.WithTx(r.Context(), func(tx *persistence.Tx) error {
		codes, err := tx.CountryCodes(r.Context())
		if err != nil {
			return err
		}
		for _, code := range codes {
			e, err := tx.SavedEconomy(r.Context(), code)
			if errors.Is(err, persistence.ErrNoEconomy) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, toRecord(code, e))
		}
		return nil
	})
	if err != nil {
		serverError(w, err)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleCountryEconomy(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	var rec economyRecord
	err := s.DB.WithTx(r.Context(), func(tx *persistence.Tx) error {
		e, err := tx.SavedEconomy(r.Context(), code)
		if err != nil {
			return err
		}
		rec = toRecord(code, e)
		return nil
	})
	if errors.Is(err, persistence.ErrNoEconomy) {
		http.Error(w, "country not found", http.StatusNotFound)
		return
	}
	if err != nil {
		serverError(w, err)
		return
	}
	writeJSON(w, rec)
}

type moveRecord struct {
	ID             int64   `json:"id"`
	Turn           int64   `json:"turn"`
	Country        string  `json:"country"`
	Type           string  `json:"type"`
	ProvinceID     *int64  `json:"province_id,omitempty"`
	BuildingTypeID *int64  `json:"building_type_id,omitempty"`
	UnitTypeID     *int64  `json:"unit_type_id,omitempty"`
	Amount         int64   `json:"amount"`
	Notes          *string `json:"notes,omitempty"`
}

func (s *Server) handlePendingMoves(w http.ResponseWriter, r *http.Request) {
	var rows []persistence.MoveRow
	err := s.DB.WithTx(r.Context(), func(tx *persistence.Tx) error {
		var err error
		rows, err = tx.PendingMoves(r.Context())
		return err
	})
	if err != nil {
		serverError(w, err)
		return
	}

	out := make([]moveRecord, len(rows))
	for i, m := range rows {
		out[i] = moveRecord{
			ID:             m.ID,
			Turn:           m.Turn,
			Country:        m.CountryCode,
			Type:           m.MoveType,
			ProvinceID:     m.TargetProvinceID,
			BuildingTypeID: m.TargetBuildingTypeID,
			UnitTypeID:     m.TargetUnitTypeID,
			Amount:         m.Amount,
			Notes:          m.Notes,
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	rep, err := engine.NewTickEngine(s.Config).Run(r.Context(), s.DB)
	if err != nil {
		serverError(w, err)
		return
	}

	treasuries := make(map[string]int64, len(rep.Countries))
	for _, c := range rep.Countries {
		treasuries[c.Country] = c.Ledger.NewTreasury
	}
	writeJSON(w, map[string]any{
		"run_id":     rep.RunID,
		"treasuries": treasuries,
		"skipped":    rep.Skipped,
	})
}

type decisionRecord struct {
	Move    int64  `json:"move"`
	Outcome string `json:"outcome"`
	Cost    int64  `json:"cost"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleProcessMoves(w http.ResponseWriter, r *http.Request) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res, err := moves.NewProcessor(s.Config).Process(r.Context(), s.DB)
	if err != nil {
		serverError(w, err)
		return
	}

	decisions := make([]decisionRecord, len(res.Decisions))
	for i, d := range res.Decisions {
		decisions[i] = decisionRecord{Move: d.Move.ID, Outcome: d.Outcome.String(), Cost: d.Cost, Reason: d.Reason}
	}
	writeJSON(w, map[string]any{
		"batch_id":  res.BatchID,
		"approved":  res.Approved(),
		"rejected":  res.Rejected(),
		"executed":  res.Executed,
		"decisions": decisions,
	})
}

func serverError(w http.ResponseWriter, err error) {
	slog.Error("api request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Warn("write response", "error", err)
	}
}
