package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/tgsim/internal/config"
	"github.com/talgya/tgsim/internal/persistence"
	"github.com/talgya/tgsim/internal/persistence/dbtest"
)

func newServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.Country(t, db, "ITA", 500, 0.1)
	dbtest.Province(t, db, "Palermo", "ITA", 1000, 0)
	infantry := dbtest.UnitType(t, db, persistence.UnitType{Name: "infantry", RecruitmentCost: 15})
	dbtest.Move(t, db, persistence.MoveRow{
		Turn: 1, CountryCode: "ITA", MoveType: "recruit",
		TargetUnitTypeID: dbtest.Ptr(infantry), Amount: 2,
	})

	cfg := config.Default()
	cfg.Moves.Logging = false
	s := &Server{DB: db, Config: cfg, AdminKey: "secret"}
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestStatus(t *testing.T) {
	_, h := newServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), body["countries"])
	assert.Equal(t, float64(1), body["pending_moves"])
}

func TestCountryEconomy(t *testing.T) {
	_, h := newServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/economy/ITA", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(500), decode[economyRecord](t, rec).Treasury)

	rec = do(t, h, http.MethodGet, "/api/v1/economy/XXX", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPendingMoves(t *testing.T) {
	_, h := newServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/moves", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]moveRecord](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "recruit", got[0].Type)
	assert.Nil(t, got[0].ProvinceID)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	s, h := newServer(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/tick", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/tick", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/tick", "secret-and-more").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/tick", "secre").Code)

	s.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/api/v1/tick", "secret").Code)
}

func TestProcessMovesThenTick(t *testing.T) {
	_, h := newServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/moves/process", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), res["executed"])

	rec = do(t, h, http.MethodPost, "/api/v1/tick", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	tick := decode[struct {
		Treasuries map[string]int64 `json:"treasuries"`
	}](t, rec)
	// 500 - 30 recruitment, then +50 tax - 2 admin - 0 upkeep.
	assert.Equal(t, int64(518), tick.Treasuries["ITA"])

	rec = do(t, h, http.MethodGet, "/api/v1/moves", "")
	assert.Empty(t, decode[[]moveRecord](t, rec))
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))
	assert.Equal(t, 61, rl.RetryAfter("1.2.3.4"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"))

	now = now.Add(3 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.buckets)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	h := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")

	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
