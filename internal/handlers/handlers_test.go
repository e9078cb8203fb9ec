package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/lineup"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/models"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/store"
)

type fakeEngine struct {
	summary    models.ReallocationSummary
	override   models.OverrideResult
	stats      models.ReallocationStats
	history    []models.HistoryEntry
	historyErr error

	freedID      string
	historyLimit int
}

func (f *fakeEngine) PerformReallocationCheck(context.Context) models.ReallocationSummary {
	return f.summary
}

func (f *fakeEngine) ManuallyFreeAllocation(_ context.Context, id string) models.OverrideResult {
	f.freedID = id
	return f.override
}

func (f *fakeEngine) Stats() models.ReallocationStats { return f.stats }

func (f *fakeEngine) History(_ context.Context, limit int) ([]models.HistoryEntry, error) {
	f.historyLimit = limit
	return f.history, f.historyErr
}

type fakeActuator struct {
	requests []models.ActuatorRequest
}

func (f *fakeActuator) Apply(_ context.Context, req models.ActuatorRequest) error {
	f.requests = append(f.requests, req)
	return nil
}

type testDeps struct {
	router   *gin.Engine
	mock     sqlmock.Sqlmock
	engine   *fakeEngine
	actuator *fakeActuator
}

func setupTest(t *testing.T, l *lineup.Lineup) (*testDeps, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	eng := &fakeEngine{}
	act := &fakeActuator{}
	h := New(store.NewStore(db), eng, act, l, logger)

	router := gin.New()
	h.Register(router)

	return &testDeps{router: router, mock: mock, engine: eng, actuator: act}, func() { db.Close() }
}

func performRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTriggerReallocationCheck(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()
	deps.engine.summary = models.ReallocationSummary{
		AllocationsChecked:          3,
		AllocationsCompleted:        1,
		InputSourcesFreed:           1,
		PendingAllocationsTriggered: 1,
	}

	w := performRequest(deps.router, http.MethodPost, "/api/reallocation/check", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var summary models.ReallocationSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, deps.engine.summary, summary)
}

func TestFreeAllocation_Success(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()
	deps.engine.override = models.OverrideResult{Success: true, Message: "input source src-1 freed"}

	w := performRequest(deps.router, http.MethodPost, "/api/allocations/alloc-1/free", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alloc-1", deps.engine.freedID)
	var result models.OverrideResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
}

func TestFreeAllocation_NotFound(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()
	deps.engine.override = models.OverrideResult{Success: false, Message: "allocation missing not found"}
	deps.mock.ExpectQuery(`FROM switchboard\.input_source_allocations`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	w := performRequest(deps.router, http.MethodPost, "/api/allocations/missing/free", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFreeAllocation_ConflictForNonActive(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()
	deps.engine.override = models.OverrideResult{Success: false, Message: "allocation is completed; only active allocations can be freed"}
	now := time.Now()
	deps.mock.ExpectQuery(`FROM switchboard\.input_source_allocations`).
		WithArgs("alloc-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "input_source_id", "game_id", "channel_number", "tv_output_ids",
			"allocated_at", "expected_free_at", "actually_freed_at", "status",
			"created_at", "updated_at",
		}).AddRow("alloc-1", "src-1", "game-1", "206", []byte("{tv-1}"), now, now, now, "completed", now, now))

	w := performRequest(deps.router, http.MethodPost, "/api/allocations/alloc-1/free", "")

	assert.Equal(t, http.StatusConflict, w.Code)
	var result models.OverrideResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Success)
}

func TestGetHistory_DefaultLimit(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()
	deps.engine.history = []models.HistoryEntry{
		{ID: "hist-1", AllocationID: "alloc-1", Event: models.EventReleased, Reason: models.ReasonGameFinal, Success: true},
	}

	w := performRequest(deps.router, http.MethodGet, "/api/reallocation/history", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, deps.engine.historyLimit)
	var body struct {
		History []models.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.History, 1)
	assert.Equal(t, models.ReasonGameFinal, body.History[0].Reason)
}

func TestGetHistory_CapsLimit(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	w := performRequest(deps.router, http.MethodGet, "/api/reallocation/history?limit=9999", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 500, deps.engine.historyLimit)
}

func TestGetHistory_RejectsBadLimit(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	w := performRequest(deps.router, http.MethodGet, "/api/reallocation/history?limit=nope", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStats(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()
	deps.engine.stats = models.ReallocationStats{
		TotalReallocations:      7,
		SuccessfulReallocations: 6,
		FailedReallocations:     1,
		LastCheckTime:           time.Now(),
	}

	w := performRequest(deps.router, http.MethodGet, "/api/reallocation/stats", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var stats models.ReallocationStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(7), stats.TotalReallocations)
	assert.Equal(t, int64(1), stats.FailedReallocations)
}

func sourceRow(id string, class models.DeviceClass) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "device_class", "capabilities", "is_active", "is_allocated",
		"priority_rank", "created_at", "updated_at",
	}).AddRow(id, "Cable Box 1", string(class), []byte("{hd}"), true, false, 5, now, now)
}

func TestCreateAllocation_PendingByDefault(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	now := time.Now()
	deps.mock.ExpectQuery(`FROM switchboard\.input_sources`).
		WithArgs("src-1").
		WillReturnRows(sourceRow("src-1", models.DeviceCable))
	deps.mock.ExpectBegin()
	deps.mock.ExpectQuery(`INSERT INTO switchboard\.input_source_allocations`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "allocated_at", "created_at", "updated_at"}).
			AddRow("alloc-1", now, now, now))
	deps.mock.ExpectCommit()

	body := `{"input_source_id":"src-1","game_id":"game-1","channel_number":"206","tv_output_ids":["tv-1"],"expected_free_at":"2026-08-26T22:00:00Z"}`
	w := performRequest(deps.router, http.MethodPost, "/api/allocations", body)

	assert.Equal(t, http.StatusCreated, w.Code)
	var alloc models.InputSourceAllocation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alloc))
	assert.Equal(t, models.AllocationPending, alloc.Status)
	assert.Empty(t, deps.actuator.requests)
}

func TestCreateAllocation_ActiveNotifiesActuator(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	now := time.Now()
	deps.mock.ExpectQuery(`FROM switchboard\.input_sources`).
		WithArgs("src-1").
		WillReturnRows(sourceRow("src-1", models.DeviceCable))
	deps.mock.ExpectBegin()
	deps.mock.ExpectExec(`UPDATE switchboard\.input_sources\s+SET is_allocated = TRUE`).
		WithArgs("src-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectQuery(`INSERT INTO switchboard\.input_source_allocations`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "allocated_at", "created_at", "updated_at"}).
			AddRow("alloc-1", now, now, now))
	deps.mock.ExpectCommit()

	body := `{"input_source_id":"src-1","game_id":"game-1","channel_number":"206","tv_output_ids":["tv-1","tv-2"],"expected_free_at":"2026-08-26T22:00:00Z","status":"active"}`
	w := performRequest(deps.router, http.MethodPost, "/api/allocations", body)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, deps.actuator.requests, 1)
	assert.Equal(t, "src-1", deps.actuator.requests[0].InputSourceID)
	assert.Equal(t, []string{"tv-1", "tv-2"}, deps.actuator.requests[0].TVOutputIDs)
}

func TestCreateAllocation_ConflictWhenSourceBusy(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	deps.mock.ExpectQuery(`FROM switchboard\.input_sources`).
		WithArgs("src-1").
		WillReturnRows(sourceRow("src-1", models.DeviceCable))
	deps.mock.ExpectBegin()
	deps.mock.ExpectExec(`UPDATE switchboard\.input_sources\s+SET is_allocated = TRUE`).
		WithArgs("src-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	deps.mock.ExpectRollback()

	body := `{"input_source_id":"src-1","game_id":"game-1","channel_number":"206","tv_output_ids":["tv-1"],"expected_free_at":"2026-08-26T22:00:00Z","status":"active"}`
	w := performRequest(deps.router, http.MethodPost, "/api/allocations", body)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateAllocation_RejectsUnknownChannel(t *testing.T) {
	l := &lineup.Lineup{Classes: map[models.DeviceClass][]lineup.Entry{
		models.DeviceCable: {{Channel: "206", Network: "ESPN", HD: true}},
	}}
	deps, cleanup := setupTest(t, l)
	defer cleanup()

	deps.mock.ExpectQuery(`FROM switchboard\.input_sources`).
		WithArgs("src-1").
		WillReturnRows(sourceRow("src-1", models.DeviceCable))

	body := `{"input_source_id":"src-1","game_id":"game-1","channel_number":"999","tv_output_ids":["tv-1"],"expected_free_at":"2026-08-26T22:00:00Z"}`
	w := performRequest(deps.router, http.MethodPost, "/api/allocations", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not in lineup")
}

func TestCreateAllocation_RejectsMissingFields(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	w := performRequest(deps.router, http.MethodPost, "/api/allocations", `{"game_id":"game-1"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAllocation_RejectsCompletedStatus(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	body := `{"input_source_id":"src-1","game_id":"game-1","channel_number":"206","tv_output_ids":["tv-1"],"expected_free_at":"2026-08-26T22:00:00Z","status":"completed"}`
	w := performRequest(deps.router, http.MethodPost, "/api/allocations", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAllocation_UnknownSource(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	deps.mock.ExpectQuery(`FROM switchboard\.input_sources`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	body := `{"input_source_id":"missing","game_id":"game-1","channel_number":"206","tv_output_ids":["tv-1"],"expected_free_at":"2026-08-26T22:00:00Z"}`
	w := performRequest(deps.router, http.MethodPost, "/api/allocations", body)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAllocation_NotFound(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	deps.mock.ExpectQuery(`FROM switchboard\.input_source_allocations`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	w := performRequest(deps.router, http.MethodGet, "/api/allocations/missing", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAllocations_EmptyIsArray(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	deps.mock.ExpectQuery(`FROM switchboard\.input_source_allocations`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "input_source_id", "game_id", "channel_number", "tv_output_ids",
			"allocated_at", "expected_free_at", "actually_freed_at", "status",
			"created_at", "updated_at",
		}))

	w := performRequest(deps.router, http.MethodGet, "/api/allocations", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"allocations":[]}`, w.Body.String())
}

func TestCreateInputSource(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	now := time.Now()
	deps.mock.ExpectQuery(`INSERT INTO switchboard\.input_sources`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_allocated", "created_at", "updated_at"}).
			AddRow("src-1", false, now, now))

	body := `{"name":"Satellite 2","device_class":"satellite","capabilities":["hd"],"priority_rank":8}`
	w := performRequest(deps.router, http.MethodPost, "/api/inputs", body)

	assert.Equal(t, http.StatusCreated, w.Code)
	var src models.InputSource
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &src))
	assert.Equal(t, "src-1", src.ID)
	assert.True(t, src.IsActive)
}

func TestCreateInputSource_RejectsUnknownClass(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	body := `{"name":"VCR","device_class":"vhs"}`
	w := performRequest(deps.router, http.MethodPost, "/api/inputs", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetGame_NotFound(t *testing.T) {
	deps, cleanup := setupTest(t, nil)
	defer cleanup()

	deps.mock.ExpectQuery(`FROM switchboard\.game_schedules`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	w := performRequest(deps.router, http.MethodGet, "/api/games/missing", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
