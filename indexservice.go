// Background Index Service (C11): rebuilds the search index and tag maps
// a fixed debounce window after the last modification. Replaces the
// source's sleep-loop with a goroutine parked on the list's Modified
// channel, falling back to a ticker so the debounce still fires with no
// further writes — the redesign spec.md §9 calls for ("a cooperative task
// or dedicated thread parked on a condition variable... guarantees the
// debounce without busy-waiting"). Disabled entirely when
// Config.PlatformAllowsBackgroundIndex is false (§4.11: "disabled on
// mobile platforms").
package nbrly

import (
	"sync"
	"time"
)

type indexService struct {
	db    *DB
	delay time.Duration

	mu            sync.Mutex
	lastModified  time.Time
	haveUnhandled bool

	stop chan struct{}
	done chan struct{}
}

func newIndexService(db *DB, delay time.Duration) *indexService {
	return &indexService{db: db, delay: delay, stop: make(chan struct{}), done: make(chan struct{})}
}

func (svc *indexService) start() {
	go svc.run()
}

func (svc *indexService) run() {
	defer close(svc.done)
	wake := time.NewTicker(svc.delay)
	defer wake.Stop()

	for {
		select {
		case <-svc.stop:
			return
		case ev, ok := <-svc.db.list.Events():
			if !ok {
				return
			}
			svc.noteModification(ev)
		case <-wake.C:
			svc.maybeRebuild()
		}
	}
}

func (svc *indexService) noteModification(ev Modified) {
	svc.mu.Lock()
	svc.lastModified = time.Now()
	svc.haveUnhandled = true
	svc.mu.Unlock()

	switch ev.Kind {
	case ModifiedAdd, ModifiedUpdate:
		svc.db.markOutdated()
	case ModifiedRemove:
		svc.db.markOutdated()
	case ModifiedClear:
		svc.db.markOutdated()
	}
}

// maybeRebuild checks the debounce window and, if due, rebuilds both the
// tag index and the search index via RebuildTags and RebuildSearchIndexes,
// emitting a telemetry tick either way. The orchestrator's write lock is
// taken only while each rebuild swaps in its result, not for the whole
// rebuild.
func (svc *indexService) maybeRebuild() {
	svc.mu.Lock()
	due := svc.haveUnhandled && time.Since(svc.lastModified) > svc.delay
	svc.mu.Unlock()
	if !due {
		return
	}
	if svc.db.list.Count() == 0 {
		return
	}

	if err := svc.db.RebuildTags(); err != nil {
		svc.db.cfg.Logger.Warnw("index_service: rebuild tags failed", "error", err)
	}
	if err := svc.db.RebuildSearchIndexes(); err != nil {
		svc.db.cfg.Logger.Warnw("index_service: rebuild search index failed", "error", err)
	}

	svc.mu.Lock()
	svc.haveUnhandled = false
	svc.mu.Unlock()
	svc.db.cfg.Logger.Debugw("index_service: rebuild tick", "count", svc.db.list.Count())
}

// Stop signals the service to exit at its next wake — within one ticker
// interval (spec.md §5: "the service exits at its next wake").
func (svc *indexService) Stop() {
	close(svc.stop)
	<-svc.done
}
