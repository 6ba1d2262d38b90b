package nbrly

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T, dir, title string) *DB {
	t.Helper()
	cfg := Config{Capacity: 64, AverageRecordBytes: 256, PlatformAllowsBackgroundIndex: false}
	db, err := Open(dir, title, cfg, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDBAddGetRemove(t *testing.T) {
	db := openTestDB(t, t.TempDir(), "orch")

	rec := Record{Values: []float32{1, 2, 3}, OriginalText: "hi"}
	if err := db.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	if db.Count() != 1 {
		t.Fatalf("count = %d, want 1", db.Count())
	}

	records, err := db.Iterate()
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("iterate len = %d, want 1", len(records))
	}
	id := records[0].ID

	exists, err := db.Exists(id)
	if err != nil || !exists {
		t.Fatalf("exists: %v err=%v", exists, err)
	}

	ok, err := db.Remove(id)
	if err != nil || !ok {
		t.Fatalf("remove: ok=%v err=%v", ok, err)
	}
	if exists, _ := db.Exists(id); exists {
		t.Fatal("expected record to be gone after remove")
	}
}

func TestDBLinearSearchFallback(t *testing.T) {
	db := openTestDB(t, t.TempDir(), "search")

	near := Record{Values: []float32{0, 0, 0}}
	far := Record{Values: []float32{100, 100, 100}}
	if err := db.Add(near); err != nil {
		t.Fatalf("add near: %v", err)
	}
	if err := db.Add(far); err != nil {
		t.Fatalf("add far: %v", err)
	}

	records, err := db.Iterate()
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	var nearID ID
	for _, r := range records {
		if r.Values[0] == 0 {
			nearID = r.ID
		}
	}

	// No SearchIndex installed: Search must fall back to the linear scan.
	results, err := db.Search([]float32{0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0] != nearID {
		t.Fatalf("search results = %v, want [%v]", results, nearID)
	}
}

func TestDBRebuildTags(t *testing.T) {
	db := openTestDB(t, t.TempDir(), "tags")

	if err := db.Add(Record{Values: []float32{1}, Tags: []int16{7}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := db.RebuildTags(); err != nil {
		t.Fatalf("rebuild_tags: %v", err)
	}

	ids := db.tags.GetIDsByTag(7)
	if len(ids) != 1 {
		t.Fatalf("expected 1 id tagged 7 after rebuild, got %d", len(ids))
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TagsOutdated {
		t.Fatal("expected tagsOutdated to be cleared after RebuildTags")
	}
	if stats.Count != 1 {
		t.Fatalf("stats.Count = %d, want 1", stats.Count)
	}
}

func TestDBSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "snapshot.nbrly.gz")

	db1 := openTestDB(t, dir, "save")
	rec := Record{Values: []float32{1, 2, 3}, OriginalText: "round trip", Tags: []int16{3}}
	if err := db1.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := db1.tags.AddTagName("blue"); err != nil {
		t.Fatalf("add_tag_name: %v", err)
	}
	if err := db1.Save(snapshotPath); err != nil {
		t.Fatalf("save: %v", err)
	}
	db1.Close()

	cfg := Config{Capacity: 64, AverageRecordBytes: 256}
	db2, err := Load(snapshotPath, dir, "loaded", cfg, nil, true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer db2.Close()

	records, err := db2.Iterate()
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("loaded record count = %d, want 1", len(records))
	}
	if records[0].OriginalText != "round trip" {
		t.Fatalf("loaded text = %q, want %q", records[0].OriginalText, "round trip")
	}
}

func TestDBLoadMissingFileCreatesEmpty(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Capacity: 64, AverageRecordBytes: 256}
	db, err := Load(filepath.Join(dir, "does-not-exist.gz"), dir, "fresh", cfg, nil, true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer db.Close()
	if db.Count() != 0 {
		t.Fatalf("count = %d, want 0 for a fresh database", db.Count())
	}
}
