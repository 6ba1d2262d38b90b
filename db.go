// Database Orchestrator (C10): holds the list (C9), the tag index (C8),
// and a replaceable search-index handle; exposes the public surface of
// spec.md §6. Grounded on the teacher's DB type in db.go — a central
// struct plus an RWMutex guarding all state, with CRUD methods each a
// thin, locked wrapper over a lower-level helper.
package nbrly

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// DB is the top-level database object. Its own RWMutex covers the search
// index handle and the outdated flags; the list and tag index each carry
// their own internal synchronization (spec.md §5).
type DB struct {
	mu  sync.RWMutex
	cfg Config

	list     *VectorList
	tags     *TagIndex
	search   SearchIndex
	builder  IndexBuilder
	distance DistanceFunc

	indexOutdated bool
	tagsOutdated  bool

	svc *indexService
}

// Open creates or opens a Store at dir/title and wraps it in a DB. builder
// may be nil — Search then always uses the deterministic linear-scan
// fallback.
func Open(dir, title string, cfg Config, builder IndexBuilder) (*DB, error) {
	cfg = cfg.withDefaults()
	store, err := OpenStore(dir, title, cfg)
	if err != nil {
		return nil, err
	}

	db := &DB{
		cfg:      cfg,
		list:     NewVectorList(store, 256),
		tags:     NewTagIndex(),
		builder:  builder,
		distance: SquaredEuclidean,
	}

	if cfg.PlatformAllowsBackgroundIndex {
		db.svc = newIndexService(db, cfg.BackgroundIndexDelay)
		db.svc.start()
	}
	return db, nil
}

// Close stops the background index service (if running) and closes the
// underlying store.
func (db *DB) Close() error {
	if db.svc != nil {
		db.svc.Stop()
	}
	return db.list.store.Close()
}

func (db *DB) markOutdated() {
	db.mu.Lock()
	db.indexOutdated = true
	db.tagsOutdated = true
	db.mu.Unlock()
}

// Add inserts rec, assigning a fresh identifier if rec.ID is the empty or
// tombstone sentinel.
func (db *DB) Add(rec Record) error {
	if rec.ID == Empty || rec.ID == Tombstone {
		rec.ID = NewID()
	}
	return db.list.Add(rec)
}

// AddRange inserts every record in recs, stopping at the first failure.
func (db *DB) AddRange(recs []Record) error {
	for i := range recs {
		if err := db.Add(recs[i]); err != nil {
			return fmt.Errorf("add_range[%d]: %w", i, err)
		}
	}
	return nil
}

// Update replaces the record identified by id with rec (rec.ID is forced
// to id).
func (db *DB) Update(id ID, rec Record) (bool, error) {
	rec.ID = id
	return db.list.Update(rec)
}

// Remove deletes the record identified by id.
func (db *DB) Remove(id ID) (bool, error) {
	return db.list.Remove(id)
}

// Clear empties the store.
func (db *DB) Clear() error {
	return db.list.Clear()
}

// Count returns the number of live records.
func (db *DB) Count() int { return db.list.Count() }

// Exists reports whether id currently identifies a live record.
func (db *DB) Exists(id ID) (bool, error) {
	_, ok, err := db.list.GetByID(id)
	return ok, err
}

// Stats is a snapshot of the orchestrator's current state, supplementing
// the spec's explicit surface with basic operational visibility
// (SPEC_FULL.md §5).
type Stats struct {
	Count           int
	FragmentPercent int
	IndexOutdated   bool
	TagsOutdated    bool
	TagCount        int
}

// Stats reports the current record count, fragmentation percent, and
// whether the search/tag indexes are due for a rebuild.
func (db *DB) Stats() (Stats, error) {
	frag, err := db.list.CalculateFragmentation()
	if err != nil {
		return Stats{}, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return Stats{
		Count:           db.list.Count(),
		FragmentPercent: frag,
		IndexOutdated:   db.indexOutdated,
		TagsOutdated:    db.tagsOutdated,
		TagCount:        len(db.tags.ids),
	}, nil
}

// Get returns the record at logical position i.
func (db *DB) Get(i int) (Record, bool, error) { return db.list.Get(i) }

// GetByID returns the record with the given identifier.
func (db *DB) GetByID(id ID) (Record, bool, error) { return db.list.GetByID(id) }

// Iterate returns every live record in insertion order.
func (db *DB) Iterate() ([]Record, error) { return db.list.Iterate() }

// CalculateFragmentation returns the store's current fragmentation
// percent.
func (db *DB) CalculateFragmentation() (int, error) { return db.list.CalculateFragmentation() }

// Defragment runs one blocking compaction pass.
func (db *DB) Defragment() error { return db.list.store.Defragment() }

// DefragmentBatch runs one bounded compaction batch.
func (db *DB) DefragmentBatch() (int, error) { return db.list.store.DefragmentBatch() }

// Flush forces a durability flush now.
func (db *DB) Flush() error { return db.list.Flush() }

// Search returns up to k candidate identifiers for query. If the current
// search index is outdated or absent, Search falls back to a
// deterministic linear scan over every live record using db.distance —
// the documented policy from SPEC_FULL.md §4 C10 (chosen over blocking on
// rebuild, since readers must never block on the background task per
// spec.md §5).
func (db *DB) Search(query []float32, k int) ([]ID, error) {
	db.mu.RLock()
	idx := db.search
	outdated := db.indexOutdated
	db.mu.RUnlock()

	if idx != nil && !outdated {
		return idx.Search(query, k)
	}
	return db.linearSearch(query, k)
}

// RangeSearch returns every candidate identifier within radius of query,
// with the same outdated-index fallback policy as Search.
func (db *DB) RangeSearch(query []float32, radius float32) ([]ID, error) {
	db.mu.RLock()
	idx := db.search
	outdated := db.indexOutdated
	db.mu.RUnlock()

	if idx != nil && !outdated {
		return idx.RangeSearch(query, radius)
	}
	return db.linearRangeSearch(query, radius)
}

type scoredID struct {
	id   ID
	dist float32
}

func (db *DB) linearSearch(query []float32, k int) ([]ID, error) {
	records, err := db.list.Iterate()
	if err != nil {
		return nil, err
	}
	scores := make([]scoredID, 0, len(records))
	for _, r := range records {
		scores = append(scores, scoredID{id: r.ID, dist: db.distance(query, r.Values)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })
	if k > len(scores) {
		k = len(scores)
	}
	out := make([]ID, k)
	for i := 0; i < k; i++ {
		out[i] = scores[i].id
	}
	return out, nil
}

func (db *DB) linearRangeSearch(query []float32, radius float32) ([]ID, error) {
	records, err := db.list.Iterate()
	if err != nil {
		return nil, err
	}
	var out []ID
	for _, r := range records {
		if db.distance(query, r.Values) <= radius {
			out = append(out, r.ID)
		}
	}
	return out, nil
}

// RebuildTags performs a full scan of every live record and rebuilds the
// tag index's reverse maps, clearing tagsOutdated.
func (db *DB) RebuildTags() error {
	records, err := db.list.Iterate()
	if err != nil {
		return err
	}
	db.tags.BuildMap(records)

	db.mu.Lock()
	db.tagsOutdated = false
	db.mu.Unlock()
	return nil
}

// RebuildSearchIndexes builds a fresh SearchIndex from the current record
// set using the configured IndexBuilder, clearing indexOutdated. A nil
// builder is a no-op — Search continues to use the linear-scan fallback.
func (db *DB) RebuildSearchIndexes() error {
	if db.builder == nil {
		return nil
	}
	records, err := db.list.Iterate()
	if err != nil {
		return err
	}
	idx, err := db.builder(records)
	if err != nil {
		return fmt.Errorf("rebuild_search_indexes: %w", err)
	}

	db.mu.Lock()
	db.search = idx
	db.indexOutdated = false
	db.mu.Unlock()
	return nil
}

// Save writes a gzip-compressed stream to path: u32 record_count, then
// (u32 blob_length, blob_bytes) per record, then the tag index's ToBinary
// block (spec.md §4.10/§6).
func (db *DB) Save(path string) error {
	records, err := db.list.Iterate()
	if err != nil {
		return err
	}
	tagBlock, err := db.tags.ToBinary()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	w := bufio.NewWriter(gz)

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(records)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}

	for _, rec := range records {
		blob, err := rec.Encode()
		if err != nil {
			return fmt.Errorf("save %s: encode %s: %w", path, rec.ID, err)
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(blob)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		if _, err := w.Write(blob); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
	}

	if _, err := w.Write(tagBlock); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return gz.Close()
}

// Load reads a stream produced by Save into a fresh DB backed by a new
// Store at dir/title. A missing file with createOnNew=true yields an
// empty database; a corrupt stream fails with ErrInvalidData.
func Load(path, dir, title string, cfg Config, builder IndexBuilder, createOnNew bool) (*DB, error) {
	db, err := Open(dir, title, cfg, builder)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && createOnNew {
			return db, nil
		}
		db.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load %s: %w: %v", path, ErrInvalidData, err)
	}
	defer gz.Close()
	r := bufio.NewReader(gz)

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		db.Close()
		return nil, fmt.Errorf("load %s: %w: %v", path, ErrInvalidData, err)
	}
	count := binary.LittleEndian.Uint32(countBuf[:])

	for i := uint32(0); i < count; i++ {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			db.Close()
			return nil, fmt.Errorf("load %s: record %d: %w: %v", path, i, ErrInvalidData, err)
		}
		blobLen := binary.LittleEndian.Uint32(lenBuf[:])
		blob := make([]byte, blobLen)
		if _, err := io.ReadFull(r, blob); err != nil {
			db.Close()
			return nil, fmt.Errorf("load %s: record %d: %w: %v", path, i, ErrInvalidData, err)
		}
		rec, err := DecodeRecord(blob)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load %s: record %d: %w", path, i, err)
		}
		if err := db.Add(rec); err != nil {
			db.Close()
			return nil, fmt.Errorf("load %s: record %d: %w", path, i, err)
		}
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load %s: tag index: %w: %v", path, ErrInvalidData, err)
	}
	if len(rest) > 0 {
		tags, err := FromBinary(rest)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load %s: tag index: %w", path, err)
		}
		db.tags = tags
	}
	return db, nil
}
