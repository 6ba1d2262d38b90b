package nbrly

import (
	"time"

	"go.uber.org/zap"
)

// FlushPolicy selects when the Durability Manager (C2) issues a platform
// sync on registered mapped files.
type FlushPolicy int

const (
	// FlushNone never auto-flushes; the caller must call Flush explicitly.
	FlushNone FlushPolicy = iota
	// FlushImmediate flushes after every recorded operation.
	FlushImmediate
	// FlushBatched flushes every Config.BatchSize recorded operations.
	FlushBatched
	// FlushTimer flushes every Config.TimerInterval iff at least one
	// operation occurred since the last flush.
	FlushTimer
)

// Config configures a Store/DB pair. Zero-valued fields are replaced with
// defaults by Open, following the teacher's defaulting style in its own
// Config (db.go's Open fills unset fields before use).
type Config struct {
	// Capacity is the maximum number of records the store can hold
	// without a caller-initiated resize. Default 1024.
	Capacity int

	// AverageRecordBytes sizes the data file's budget as
	// Capacity * AverageRecordBytes. Spec.md assumes 4096; adjust for the
	// target workload (§9 Open Questions). Default 4096.
	AverageRecordBytes int

	// FlushPolicy controls the Durability Manager's auto-flush behavior.
	FlushPolicy FlushPolicy

	// BatchSize is the operation count used by FlushBatched. Default 100.
	BatchSize int

	// TimerInterval is the duration used by FlushTimer. Default 1s.
	TimerInterval time.Duration

	// DefragThresholdPercent triggers an implicit defragment_batch call
	// from Add/Update/Remove once CalculateFragmentation crosses this
	// value. 0 explicitly disables auto-defragmentation (spec.md §6). A
	// plain zero-valued Config leaves this at 0 — disabled — since Go
	// cannot tell "the caller left this unset" apart from "the caller
	// asked for 0" any other way. Set it to DefragThresholdDefault to
	// request the tuned default (75, suited to SSD-like storage) instead.
	DefragThresholdPercent int

	// ReadOnly opens the store with a shared cross-process lock instead
	// of an exclusive one, admitting any number of concurrent read-only
	// processes. Mutating calls (Add/Update/Remove/Clear/Defragment/
	// AttemptRepair) return ErrReadOnly.
	ReadOnly bool

	// SSDHint is carried in the config; no code in this package reads it.
	SSDHint bool

	// BackgroundIndexDelay is C11's debounce window. Default 5s.
	BackgroundIndexDelay time.Duration

	// MemoryPressureCheckInterval defaults to 30s but is not read by this
	// package: a PressureMonitor polls at the interval passed to
	// NewPressureMonitor.
	MemoryPressureCheckInterval time.Duration

	// PlatformAllowsBackgroundIndex disables C11 entirely when false
	// (spec.md §4.11: "disabled on mobile platforms").
	PlatformAllowsBackgroundIndex bool

	// Logger receives structured diagnostics. Defaults to a no-op logger,
	// following the teacher's nil-fills-in-Open convention (db.go).
	Logger *zap.SugaredLogger

	// Monitor is the process-wide Memory-Pressure Monitor a Store
	// registers with. A nil Monitor disables memory-pressure response for
	// that store (spec.md §9: injected, not global, monitor).
	Monitor *PressureMonitor
}

// withDefaults returns a copy of cfg with zero fields replaced.
func (cfg Config) withDefaults() Config {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	if cfg.AverageRecordBytes <= 0 {
		cfg.AverageRecordBytes = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.TimerInterval <= 0 {
		cfg.TimerInterval = time.Second
	}
	if cfg.DefragThresholdPercent == DefragThresholdDefault {
		cfg.DefragThresholdPercent = 75
	}
	if cfg.BackgroundIndexDelay <= 0 {
		cfg.BackgroundIndexDelay = 5 * time.Second
	}
	if cfg.MemoryPressureCheckInterval <= 0 {
		cfg.MemoryPressureCheckInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return cfg
}

// IndexEntrySize is the on-disk size of one index entry: id(16) ||
// offset(8) || length(4).
const IndexEntrySize = 28

// DefragBatchSize is the default number of records processed per
// DefragmentBatch call (spec.md §4.7).
const DefragBatchSize = 100

// DefragThresholdDefault is the Config.DefragThresholdPercent sentinel
// requesting the tuned default threshold (75) rather than the disabled
// value (0) a zero-valued Config leaves in place.
const DefragThresholdDefault = -1
