// Memory-Pressure Monitor (C5): observes process memory and asks
// registered stores to flush and release their mapped views. Per
// spec.md §9 ("global mutable state in the memory-pressure monitor...
// replace with an explicit process-wide monitor passed into each store"),
// this is an injectable value (Config.Monitor), not a package-level
// singleton, and it holds only weak references so a disposed Store is
// simply reaped rather than kept alive.
package nbrly

import (
	"runtime"
	"sync"
	"time"
	"weak"

	"go.uber.org/zap"
)

// DefaultMemoryPressureDelta is the absolute heap-growth threshold, in
// bytes, that triggers an intervention pass. 256 MiB, a conservative
// default for an embedded store (spec.md §4.5 leaves the exact delta to
// the implementer).
const DefaultMemoryPressureDelta = 256 << 20

// PressureMonitor periodically polls process memory and, when it has
// grown by more than Delta since the last check, flushes and releases the
// mapped views of every live registered store.
type PressureMonitor struct {
	Interval time.Duration
	Delta    uint64
	log      *zap.SugaredLogger

	mu       sync.Mutex
	stores   []weak.Pointer[Store]
	baseline uint64

	stop chan struct{}
	done chan struct{}
}

// NewPressureMonitor starts a monitor polling every interval (default 30s
// if <= 0) and returns it. Call Close to stop the background goroutine.
func NewPressureMonitor(interval time.Duration, log *zap.SugaredLogger) *PressureMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &PressureMonitor{
		Interval: interval,
		Delta:    DefaultMemoryPressureDelta,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.baseline = ms.HeapAlloc
	go m.run()
	return m
}

// Register adds s to the set of stores this monitor watches, holding only
// a weak reference (spec.md §4.5: "must not hold strong references to
// stores").
func (m *PressureMonitor) Register(s *Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores = append(m.stores, weak.Make(s))
}

func (m *PressureMonitor) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.checkOnce()
		}
	}
}

func (m *PressureMonitor) checkOnce() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	grew := ms.HeapAlloc > m.baseline && ms.HeapAlloc-m.baseline > m.Delta
	m.baseline = ms.HeapAlloc
	live := m.stores[:0]
	var targets []*Store
	for _, w := range m.stores {
		if s := w.Value(); s != nil {
			live = append(live, w)
			if grew {
				targets = append(targets, s)
			}
		}
	}
	m.stores = live
	m.mu.Unlock()

	if !grew {
		return
	}
	for _, s := range targets {
		if err := s.Flush(); err != nil {
			m.log.Warnw("memwatch: flush failed", "error", err)
		}
		if err := s.ReleaseMappedMemory(); err != nil {
			m.log.Warnw("memwatch: release failed", "error", err)
		}
	}
}

// Close stops the background polling goroutine.
func (m *PressureMonitor) Close() {
	close(m.stop)
	<-m.done
}
