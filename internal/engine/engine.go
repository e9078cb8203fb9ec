// Package engine implements the input source reallocation loop: it sweeps
// active allocations, releases the ones whose broadcast is over, and hands
// each freed source to the next queued allocation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/models"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/store"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/logging"
)

// Ledger is the slice of the allocation store the engine drives. The store
// is the only writer of allocation status; the engine only decides.
type Ledger interface {
	ListActiveAllocations(ctx context.Context) ([]models.InputSourceAllocation, error)
	GetAllocation(ctx context.Context, id string) (*models.InputSourceAllocation, error)
	CompleteAllocation(ctx context.Context, id string, reason models.ReleaseReason) (*models.InputSourceAllocation, error)
	PromoteNextPending(ctx context.Context, sourceID string) (*models.InputSourceAllocation, error)
}

// ScheduleSource reads current game state. It is owned by the schedule
// ingestion pipeline and never written from here.
type ScheduleSource interface {
	GetGameState(ctx context.Context, gameID string) (*models.GameState, error)
}

// HistoryLog records release and promotion decisions for audit.
type HistoryLog interface {
	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
	ListHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error)
}

// Actuator makes a promoted binding physically effective. Calls are
// at-least-once; the hardware layer is assumed idempotent.
type Actuator interface {
	Apply(ctx context.Context, req models.ActuatorRequest) error
}

// Metrics holds the Prometheus metrics the engine reports.
type Metrics struct {
	Releases          *prometheus.CounterVec // labels: reason
	Promotions        prometheus.Counter
	SweepFailures     prometheus.Counter
	SweepDuration     prometheus.Observer
	ActiveAllocations prometheus.Gauge
}

// Config holds engine tuning knobs.
type Config struct {
	// ReleaseBuffer is the grace period past an allocation's expected free
	// time before a stale in_progress status forces release. The schedule
	// feed can lag reality, so this is a safety net, not the primary signal.
	ReleaseBuffer time.Duration

	// ScheduleTimeout bounds each game state read.
	ScheduleTimeout time.Duration

	// ActuatorTimeout bounds each hardware notification.
	ActuatorTimeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ReleaseBuffer:   30 * time.Minute,
		ScheduleTimeout: 5 * time.Second,
		ActuatorTimeout: 10 * time.Second,
	}
}

// Engine is the reallocation control loop. Sweeps are single-flight: the
// sweep mutex guarantees a new sweep never runs concurrently with a previous
// one, and manual overrides serialize with sweeps through the store's
// compare-and-set transitions.
type Engine struct {
	ledger   Ledger
	schedule ScheduleSource
	history  HistoryLog
	actuator Actuator
	logger   logging.Logger
	metrics  *Metrics
	cfg      Config

	sweepMu sync.Mutex

	statsMu sync.Mutex
	stats   models.ReallocationStats
}

// New creates a reallocation engine. metrics may be nil.
func New(ledger Ledger, schedule ScheduleSource, history HistoryLog, actuator Actuator, logger logging.Logger, metrics *Metrics, cfg Config) *Engine {
	if cfg.ReleaseBuffer <= 0 {
		cfg.ReleaseBuffer = 30 * time.Minute
	}
	if cfg.ScheduleTimeout <= 0 {
		cfg.ScheduleTimeout = 5 * time.Second
	}
	if cfg.ActuatorTimeout <= 0 {
		cfg.ActuatorTimeout = 10 * time.Second
	}
	return &Engine{
		ledger:   ledger,
		schedule: schedule,
		history:  history,
		actuator: actuator,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// PerformReallocationCheck runs one sweep: evaluate every active allocation,
// release the eligible ones, then promote one pending allocation per freed
// source. It never returns an error; per-allocation failures are isolated,
// recorded, and the sweep carries on. Re-running with no intervening state
// change completes and promotes nothing.
func (e *Engine) PerformReallocationCheck(ctx context.Context) models.ReallocationSummary {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()

	start := time.Now()
	var summary models.ReallocationSummary

	defer func() {
		e.statsMu.Lock()
		e.stats.LastCheckTime = time.Now()
		e.statsMu.Unlock()
		if e.metrics != nil {
			e.metrics.SweepDuration.Observe(time.Since(start).Seconds())
		}
	}()

	active, err := e.ledger.ListActiveAllocations(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Reallocation sweep could not list active allocations")
		e.recordFailure()
		return summary
	}

	if e.metrics != nil {
		e.metrics.ActiveAllocations.Set(float64(len(active)))
	}

	var freedSources []string
	for i := range active {
		alloc := &active[i]
		summary.AllocationsChecked++

		reason, eligible, err := e.evaluateRelease(ctx, alloc)
		if err != nil {
			e.recordAllocationFailure(ctx, alloc.ID, "", err)
			continue
		}
		if !eligible {
			continue
		}

		released, err := e.ledger.CompleteAllocation(ctx, alloc.ID, reason)
		if errors.Is(err, store.ErrConflict) {
			// Already released by a concurrent manual override; nothing lost.
			e.logger.WithField("allocation_id", alloc.ID).Debug("Allocation released elsewhere during sweep")
			continue
		}
		if err != nil {
			e.recordAllocationFailure(ctx, alloc.ID, reason, err)
			continue
		}

		summary.AllocationsCompleted++
		summary.InputSourcesFreed++
		freedSources = append(freedSources, released.InputSourceID)
		e.recordRelease(released, reason)
	}

	for _, sourceID := range freedSources {
		if e.promoteForSource(ctx, sourceID) {
			summary.PendingAllocationsTriggered++
		}
	}

	e.logger.WithFields(logging.Fields{
		"checked":   summary.AllocationsChecked,
		"completed": summary.AllocationsCompleted,
		"freed":     summary.InputSourcesFreed,
		"promoted":  summary.PendingAllocationsTriggered,
		"duration":  time.Since(start),
	}).Info("Reallocation sweep finished")

	return summary
}

// ManuallyFreeAllocation releases an active allocation immediately,
// bypassing the eligibility rule, then runs the same promote path as the
// sweep. A non-active or unknown allocation yields a failure result with no
// state or counter changes.
func (e *Engine) ManuallyFreeAllocation(ctx context.Context, allocationID string) models.OverrideResult {
	alloc, err := e.ledger.GetAllocation(ctx, allocationID)
	if errors.Is(err, store.ErrNotFound) {
		return models.OverrideResult{Success: false, Message: fmt.Sprintf("allocation %s not found", allocationID)}
	}
	if err != nil {
		e.logger.WithError(err).WithField("allocation_id", allocationID).Error("Manual free could not read allocation")
		return models.OverrideResult{Success: false, Message: "allocation lookup failed"}
	}
	if alloc.Status != models.AllocationActive {
		return models.OverrideResult{Success: false, Message: fmt.Sprintf("allocation is %s; only active allocations can be freed", alloc.Status)}
	}

	released, err := e.ledger.CompleteAllocation(ctx, allocationID, models.ReasonManualFree)
	if errors.Is(err, store.ErrConflict) {
		return models.OverrideResult{Success: false, Message: "allocation is no longer active"}
	}
	if err != nil {
		e.recordAllocationFailure(ctx, allocationID, models.ReasonManualFree, err)
		return models.OverrideResult{Success: false, Message: "release failed"}
	}

	e.recordRelease(released, models.ReasonManualFree)
	e.promoteForSource(ctx, released.InputSourceID)

	return models.OverrideResult{Success: true, Message: fmt.Sprintf("input source %s freed", released.InputSourceID)}
}

// Stats returns a snapshot of the cumulative engine counters.
func (e *Engine) Stats() models.ReallocationStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// History returns the most recent release/promotion decisions.
func (e *Engine) History(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	return e.history.ListHistory(ctx, limit)
}

// evaluateRelease applies the eligibility rule in strict priority order: a
// terminal game status always wins, then the timing buffer, otherwise the
// allocation stays active.
func (e *Engine) evaluateRelease(ctx context.Context, alloc *models.InputSourceAllocation) (models.ReleaseReason, bool, error) {
	sctx, cancel := context.WithTimeout(ctx, e.cfg.ScheduleTimeout)
	defer cancel()

	game, err := e.schedule.GetGameState(sctx, alloc.GameID)
	if err != nil {
		return "", false, fmt.Errorf("game state for %s: %w", alloc.GameID, err)
	}

	if game.Status.Terminal() {
		return models.ReasonForTerminalStatus(game.Status), true, nil
	}

	// The schedule feed may have pushed the end time past the value cached
	// on the allocation; trust whichever is later before applying the buffer.
	deadline := alloc.ExpectedFreeAt
	if game.EstimatedEnd.After(deadline) {
		deadline = game.EstimatedEnd
	}
	if !time.Now().Before(deadline.Add(e.cfg.ReleaseBuffer)) {
		return models.ReasonTimeoutBuffer, true, nil
	}

	return "", false, nil
}

// promoteForSource promotes at most one pending allocation for a freed
// source and notifies the actuator. Actuator failure is logged but never
// rolls back the committed promotion; the ledger is the source of truth.
func (e *Engine) promoteForSource(ctx context.Context, sourceID string) bool {
	promoted, err := e.ledger.PromoteNextPending(ctx, sourceID)
	if errors.Is(err, store.ErrNotFound) {
		e.logger.WithField("input_source_id", sourceID).Debug("No pending allocations for freed source")
		return false
	}
	if errors.Is(err, store.ErrConflict) {
		// The source picked up an active binding between release and
		// promotion (external create); leave it be.
		e.logger.WithField("input_source_id", sourceID).Debug("Source re-bound before promotion")
		return false
	}
	if err != nil {
		e.logger.WithError(err).WithField("input_source_id", sourceID).Error("Promotion failed")
		e.recordFailure()
		return false
	}

	e.logger.WithFields(logging.Fields{
		"allocation_id":   promoted.ID,
		"input_source_id": promoted.InputSourceID,
		"game_id":         promoted.GameID,
		"channel":         promoted.ChannelNumber,
		"outputs":         promoted.OutputCount(),
	}).Info("Promoted pending allocation")

	if e.metrics != nil {
		e.metrics.Promotions.Inc()
	}

	actx, cancel := context.WithTimeout(ctx, e.cfg.ActuatorTimeout)
	defer cancel()
	if err := e.actuator.Apply(actx, models.ActuatorRequest{
		InputSourceID: promoted.InputSourceID,
		ChannelNumber: promoted.ChannelNumber,
		TVOutputIDs:   promoted.TVOutputIDs,
	}); err != nil {
		// Physical retry is the actuator's responsibility.
		e.logger.WithError(err).WithFields(logging.Fields{
			"allocation_id":   promoted.ID,
			"input_source_id": promoted.InputSourceID,
		}).Error("Hardware actuator rejected promoted allocation")
	}

	return true
}

func (e *Engine) recordRelease(alloc *models.InputSourceAllocation, reason models.ReleaseReason) {
	e.statsMu.Lock()
	e.stats.TotalReallocations++
	e.stats.SuccessfulReallocations++
	e.statsMu.Unlock()

	if e.metrics != nil {
		e.metrics.Releases.WithLabelValues(string(reason)).Inc()
	}

	e.logger.WithFields(logging.Fields{
		"allocation_id":   alloc.ID,
		"input_source_id": alloc.InputSourceID,
		"game_id":         alloc.GameID,
		"reason":          reason,
	}).Info("Released allocation")
}

// recordAllocationFailure isolates a per-allocation failure: it is written
// to history with success=false and counted, and the sweep moves on.
func (e *Engine) recordAllocationFailure(ctx context.Context, allocationID string, reason models.ReleaseReason, cause error) {
	e.recordFailure()
	e.logger.WithError(cause).WithField("allocation_id", allocationID).Error("Failed to process allocation")

	entry := &models.HistoryEntry{
		AllocationID: allocationID,
		Event:        models.EventReleased,
		Reason:       reason,
		Success:      false,
		Detail:       cause.Error(),
	}
	if err := e.history.AppendHistory(ctx, entry); err != nil {
		e.logger.WithError(err).WithField("allocation_id", allocationID).Error("Failed to append failure history entry")
	}
}

func (e *Engine) recordFailure() {
	e.statsMu.Lock()
	e.stats.FailedReallocations++
	e.statsMu.Unlock()

	if e.metrics != nil {
		e.metrics.SweepFailures.Inc()
	}
}
