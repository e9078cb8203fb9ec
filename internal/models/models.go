// Package models holds the shared data types for the switchboard service:
// input sources (tuners/cable boxes), game schedules, and the allocations
// binding the two to sets of TV outputs.
package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// DeviceClass identifies the kind of tuning device an input source is.
type DeviceClass string

const (
	DeviceCable     DeviceClass = "cable"
	DeviceSatellite DeviceClass = "satellite"
	DeviceStreaming DeviceClass = "streaming"
)

// GameStatus is the lifecycle status of a scheduled broadcast. Game rows are
// owned by the schedule ingestion pipeline; switchboard only reads them.
type GameStatus string

const (
	GameScheduled  GameStatus = "scheduled"
	GameInProgress GameStatus = "in_progress"
	GameFinal      GameStatus = "final"
	GameCancelled  GameStatus = "cancelled"
	GamePostponed  GameStatus = "postponed"
)

// Terminal reports whether the game can no longer need its input source.
func (s GameStatus) Terminal() bool {
	switch s {
	case GameFinal, GameCancelled, GamePostponed:
		return true
	default:
		return false
	}
}

// AllocationStatus is the lifecycle status of an input source allocation.
type AllocationStatus string

const (
	AllocationPending   AllocationStatus = "pending"
	AllocationActive    AllocationStatus = "active"
	AllocationCompleted AllocationStatus = "completed"
)

// ReleaseReason records why an allocation was released or promoted.
type ReleaseReason string

const (
	ReasonGameFinal     ReleaseReason = "game_status_final"
	ReasonGameCancelled ReleaseReason = "game_status_cancelled"
	ReasonGamePostponed ReleaseReason = "game_status_postponed"
	ReasonTimeoutBuffer ReleaseReason = "timeout_buffer_exceeded"
	ReasonManualFree    ReleaseReason = "manual_free"
	ReasonSourceFreed   ReleaseReason = "source_freed"
)

// HistoryEvent distinguishes release entries from promotion entries.
type HistoryEvent string

const (
	EventReleased HistoryEvent = "released"
	EventPromoted HistoryEvent = "promoted"
)

// ReasonForTerminalStatus maps a terminal game status to its release reason.
func ReasonForTerminalStatus(s GameStatus) ReleaseReason {
	switch s {
	case GameCancelled:
		return ReasonGameCancelled
	case GamePostponed:
		return ReasonGamePostponed
	default:
		return ReasonGameFinal
	}
}

// InputSource is a shared tuning device (cable box, satellite receiver,
// streaming device). IsAllocated is a cached derived value: it is true iff
// exactly one active allocation references the source, and is only ever
// written in the same transaction as the allocation status itself.
type InputSource struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	DeviceClass  DeviceClass    `json:"device_class"`
	Capabilities pq.StringArray `json:"capabilities"`
	IsActive     bool           `json:"is_active"`
	IsAllocated  bool           `json:"is_allocated"`
	PriorityRank int            `json:"priority_rank"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// GameSchedule is a broadcast event from the sports schedule feed.
type GameSchedule struct {
	ID                 string     `json:"id"`
	League             string     `json:"league"`
	HomeTeam           string     `json:"home_team"`
	AwayTeam           string     `json:"away_team"`
	ScheduledStart     time.Time  `json:"scheduled_start"`
	EstimatedEnd       time.Time  `json:"estimated_end"`
	Status             GameStatus `json:"status"`
	CalculatedPriority int        `json:"calculated_priority"`
	IsPriorityGame     bool       `json:"is_priority_game"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// GameState is the read-only slice of a game the reallocation engine needs.
type GameState struct {
	GameID             string     `json:"game_id"`
	Status             GameStatus `json:"status"`
	EstimatedEnd       time.Time  `json:"estimated_end"`
	CalculatedPriority int        `json:"calculated_priority"`
}

// InputSourceAllocation binds one input source to one game for a set of TV
// outputs. Per source, at most one allocation is active at any instant; any
// number may be pending. A completed allocation is immutable history.
type InputSourceAllocation struct {
	ID              string           `json:"id"`
	InputSourceID   string           `json:"input_source_id"`
	GameID          string           `json:"game_id"`
	ChannelNumber   string           `json:"channel_number"`
	TVOutputIDs     pq.StringArray   `json:"tv_output_ids"`
	AllocatedAt     time.Time        `json:"allocated_at"`
	ExpectedFreeAt  time.Time        `json:"expected_free_at"`
	ActuallyFreedAt sql.NullTime     `json:"actually_freed_at"`
	Status          AllocationStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// OutputCount returns the number of TV outputs bound to the allocation.
func (a *InputSourceAllocation) OutputCount() int {
	return len(a.TVOutputIDs)
}

// HistoryEntry is an append-only record of a release or promotion decision.
type HistoryEntry struct {
	ID           string        `json:"id"`
	AllocationID string        `json:"allocation_id"`
	Event        HistoryEvent  `json:"event"`
	Reason       ReleaseReason `json:"reason"`
	Success      bool          `json:"success"`
	Detail       string        `json:"detail,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ReallocationSummary reports what a single sweep accomplished.
type ReallocationSummary struct {
	AllocationsChecked          int `json:"allocations_checked"`
	AllocationsCompleted        int `json:"allocations_completed"`
	InputSourcesFreed           int `json:"input_sources_freed"`
	PendingAllocationsTriggered int `json:"pending_allocations_triggered"`
}

// ReallocationStats is a snapshot of cumulative engine counters. All counters
// are monotonically non-decreasing; only LastCheckTime moves freely.
type ReallocationStats struct {
	TotalReallocations      int64     `json:"total_reallocations"`
	SuccessfulReallocations int64     `json:"successful_reallocations"`
	FailedReallocations     int64     `json:"failed_reallocations"`
	LastCheckTime           time.Time `json:"last_check_time"`
}

// OverrideResult is the outcome of a manual free request.
type OverrideResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ActuatorRequest asks the hardware layer to make an allocation physically
// effective (tune the source and route it to the outputs).
type ActuatorRequest struct {
	InputSourceID string   `json:"input_source_id"`
	ChannelNumber string   `json:"channel_number"`
	TVOutputIDs   []string `json:"tv_output_ids"`
}
