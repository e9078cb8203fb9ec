// Package handlers exposes the switchboard HTTP API: the reallocation
// trigger, manual override, history/stats, and the read/create surface for
// input sources, games, and allocations.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/lineup"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/models"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/store"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/logging"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Reallocator is the slice of the engine the API surfaces.
type Reallocator interface {
	PerformReallocationCheck(ctx context.Context) models.ReallocationSummary
	ManuallyFreeAllocation(ctx context.Context, allocationID string) models.OverrideResult
	Stats() models.ReallocationStats
	History(ctx context.Context, limit int) ([]models.HistoryEntry, error)
}

// Actuator mirrors the engine's actuator dependency for bindings created
// directly in active state.
type Actuator interface {
	Apply(ctx context.Context, req models.ActuatorRequest) error
}

// Handlers holds the dependencies for the HTTP API.
type Handlers struct {
	store    *store.Store
	engine   Reallocator
	actuator Actuator
	lineup   *lineup.Lineup // nil when no lineup file is configured
	logger   logging.Logger
}

// New creates the API handlers.
func New(s *store.Store, eng Reallocator, act Actuator, l *lineup.Lineup, logger logging.Logger) *Handlers {
	return &Handlers{
		store:    s,
		engine:   eng,
		actuator: act,
		lineup:   l,
		logger:   logger,
	}
}

// Register wires the API routes onto the router.
func (h *Handlers) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.POST("/reallocation/check", h.TriggerReallocationCheck)
	api.GET("/reallocation/history", h.GetHistory)
	api.GET("/reallocation/stats", h.GetStats)

	api.POST("/allocations", h.CreateAllocation)
	api.GET("/allocations", h.ListAllocations)
	api.GET("/allocations/:id", h.GetAllocation)
	api.POST("/allocations/:id/free", h.FreeAllocation)

	api.GET("/inputs", h.ListInputSources)
	api.POST("/inputs", h.CreateInputSource)
	api.GET("/inputs/:id", h.GetInputSource)

	api.GET("/games", h.ListGames)
	api.GET("/games/:id", h.GetGame)
}

// TriggerReallocationCheck runs one sweep and returns its summary.
func (h *Handlers) TriggerReallocationCheck(c *gin.Context) {
	summary := h.engine.PerformReallocationCheck(c.Request.Context())
	c.JSON(http.StatusOK, summary)
}

// FreeAllocation is the manual override: release an active allocation now.
func (h *Handlers) FreeAllocation(c *gin.Context) {
	result := h.engine.ManuallyFreeAllocation(c.Request.Context(), c.Param("id"))
	if result.Success {
		c.JSON(http.StatusOK, result)
		return
	}
	// The target must be active; unknown ids and completed allocations are
	// validation failures, not server errors.
	if _, err := h.store.GetAllocation(c.Request.Context(), c.Param("id")); errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, result)
		return
	}
	c.JSON(http.StatusConflict, result)
}

// GetHistory returns recent release/promotion decisions, most recent first.
func (h *Handlers) GetHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := h.engine.History(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history"})
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// GetStats returns the cumulative engine counters.
func (h *Handlers) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats())
}

type createAllocationRequest struct {
	InputSourceID  string    `json:"input_source_id" binding:"required"`
	GameID         string    `json:"game_id" binding:"required"`
	ChannelNumber  string    `json:"channel_number" binding:"required"`
	TVOutputIDs    []string  `json:"tv_output_ids" binding:"required,min=1"`
	ExpectedFreeAt time.Time `json:"expected_free_at" binding:"required"`
	Status         string    `json:"status"`
}

// CreateAllocation accepts a new binding from an external caller (admin UI
// or game ingestion), in pending or active state.
func (h *Handlers) CreateAllocation(c *gin.Context) {
	var req createAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := models.AllocationStatus(req.Status)
	if status == "" {
		status = models.AllocationPending
	}
	if status != models.AllocationPending && status != models.AllocationActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be pending or active"})
		return
	}

	src, err := h.store.GetInputSource(c.Request.Context(), req.InputSourceID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "input source not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to read input source")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read input source"})
		return
	}

	if h.lineup != nil && !h.lineup.HasChannel(src.DeviceClass, req.ChannelNumber) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel not in lineup for device class " + string(src.DeviceClass)})
		return
	}

	alloc := &models.InputSourceAllocation{
		InputSourceID:  req.InputSourceID,
		GameID:         req.GameID,
		ChannelNumber:  req.ChannelNumber,
		TVOutputIDs:    req.TVOutputIDs,
		AllocatedAt:    time.Now(),
		ExpectedFreeAt: req.ExpectedFreeAt,
		Status:         status,
	}
	if err := h.store.CreateAllocation(c.Request.Context(), alloc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "input source already has an active allocation"})
			return
		}
		h.logger.WithError(err).Error("Failed to create allocation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create allocation"})
		return
	}

	// A binding created directly in active state is made physically
	// effective right away; actuator failure never reverts the ledger.
	if alloc.Status == models.AllocationActive {
		if err := h.actuator.Apply(c.Request.Context(), models.ActuatorRequest{
			InputSourceID: alloc.InputSourceID,
			ChannelNumber: alloc.ChannelNumber,
			TVOutputIDs:   alloc.TVOutputIDs,
		}); err != nil {
			h.logger.WithError(err).WithField("allocation_id", alloc.ID).Error("Hardware actuator rejected new active allocation")
		}
	}

	c.JSON(http.StatusCreated, alloc)
}

// ListAllocations returns allocations filtered by status, source, or game.
func (h *Handlers) ListAllocations(c *gin.Context) {
	filter := store.ListAllocationsFilter{
		Status:        models.AllocationStatus(c.Query("status")),
		InputSourceID: c.Query("input_source_id"),
		GameID:        c.Query("game_id"),
	}
	allocations, err := h.store.ListAllocations(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list allocations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list allocations"})
		return
	}
	if allocations == nil {
		allocations = []models.InputSourceAllocation{}
	}
	c.JSON(http.StatusOK, gin.H{"allocations": allocations})
}

// GetAllocation returns one allocation by id.
func (h *Handlers) GetAllocation(c *gin.Context) {
	alloc, err := h.store.GetAllocation(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "allocation not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to read allocation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read allocation"})
		return
	}
	c.JSON(http.StatusOK, alloc)
}

type createInputSourceRequest struct {
	Name         string   `json:"name" binding:"required"`
	DeviceClass  string   `json:"device_class" binding:"required"`
	Capabilities []string `json:"capabilities"`
	IsActive     *bool    `json:"is_active"`
	PriorityRank int      `json:"priority_rank"`
}

// CreateInputSource registers a new tuning device.
func (h *Handlers) CreateInputSource(c *gin.Context) {
	var req createInputSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	class := models.DeviceClass(req.DeviceClass)
	switch class {
	case models.DeviceCable, models.DeviceSatellite, models.DeviceStreaming:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_class must be cable, satellite, or streaming"})
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	src := &models.InputSource{
		Name:         req.Name,
		DeviceClass:  class,
		Capabilities: req.Capabilities,
		IsActive:     active,
		PriorityRank: req.PriorityRank,
	}
	if err := h.store.CreateInputSource(c.Request.Context(), src); err != nil {
		h.logger.WithError(err).Error("Failed to create input source")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create input source"})
		return
	}
	c.JSON(http.StatusCreated, src)
}

// ListInputSources returns all input sources, or only active ones with
// ?active=true.
func (h *Handlers) ListInputSources(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	sources, err := h.store.ListInputSources(c.Request.Context(), activeOnly)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list input sources")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list input sources"})
		return
	}
	if sources == nil {
		sources = []models.InputSource{}
	}
	c.JSON(http.StatusOK, gin.H{"input_sources": sources})
}

// GetInputSource returns one input source by id.
func (h *Handlers) GetInputSource(c *gin.Context) {
	src, err := h.store.GetInputSource(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "input source not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to read input source")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read input source"})
		return
	}
	c.JSON(http.StatusOK, src)
}

// ListGames returns game schedules, optionally filtered by ?status=.
func (h *Handlers) ListGames(c *gin.Context) {
	games, err := h.store.ListGames(c.Request.Context(), models.GameStatus(c.Query("status")))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list games")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list games"})
		return
	}
	if games == nil {
		games = []models.GameSchedule{}
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

// GetGame returns one game schedule by id.
func (h *Handlers) GetGame(c *gin.Context) {
	game, err := h.store.GetGame(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to read game")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read game"})
		return
	}
	c.JSON(http.StatusOK, game)
}
