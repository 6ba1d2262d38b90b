// Tag Index (C8): a bidirectional map {tag -> set of record ids} <-> {id ->
// tags}, maintained separately from the primary index and rebuilt on
// demand by the orchestrator rather than synchronously on every mutation
// (spec.md §4.8). The name table (tag name <-> tag id) is persisted as a
// goccy/go-json control block, grounded on the teacher's JSON-header-
// inside-a-fixed-binary-frame pattern (header.go), followed by a binary
// postings section.
package nbrly

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// MaxTagNames is the maximum number of distinct tag names a TagIndex may
// hold (spec.md §4.8: "2^15 - 1").
const MaxTagNames = 1<<15 - 1

// TagIndex maps tag identifiers to record identifiers and back. Mutators
// of the name table (AddTagName/RemoveTag) take tagMu; BuildMap also takes
// tagMu and replaces the reverse-lookup maps wholesale. The orchestrator's
// lock is not held while BuildMap runs.
type TagIndex struct {
	tagMu sync.Mutex
	names map[string]int16 // normalized name -> tag id
	ids   map[int16]string // tag id -> normalized name
	next  int16

	byTag map[int16][]ID // tag id -> sorted record ids
	byID  map[ID][]int16 // record id -> sorted tag ids
}

// NewTagIndex returns an empty tag index.
func NewTagIndex() *TagIndex {
	return &TagIndex{
		names: make(map[string]int16),
		ids:   make(map[int16]string),
		byTag: make(map[int16][]ID),
		byID:  make(map[ID][]int16),
	}
}

func normalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddTagName registers name, returning its tag id (reusing the existing
// id if already registered). Fails with ErrTooManyTags past MaxTagNames.
func (t *TagIndex) AddTagName(name string) (int16, error) {
	t.tagMu.Lock()
	defer t.tagMu.Unlock()

	norm := normalizeTagName(name)
	if id, ok := t.names[norm]; ok {
		return id, nil
	}
	if len(t.names) >= MaxTagNames {
		return 0, ErrTooManyTags
	}
	id := t.next
	t.next++
	t.names[norm] = id
	t.ids[id] = norm
	return id, nil
}

// GetTagID returns the tag id for name, if registered.
func (t *TagIndex) GetTagID(name string) (int16, bool) {
	t.tagMu.Lock()
	defer t.tagMu.Unlock()
	id, ok := t.names[normalizeTagName(name)]
	return id, ok
}

// RemoveTag unregisters name and drops its postings.
func (t *TagIndex) RemoveTag(name string) {
	t.tagMu.Lock()
	defer t.tagMu.Unlock()
	norm := normalizeTagName(name)
	id, ok := t.names[norm]
	if !ok {
		return
	}
	delete(t.names, norm)
	delete(t.ids, id)
	delete(t.byTag, id)
}

// GetIDsByTag returns the record ids carrying tagID.
func (t *TagIndex) GetIDsByTag(tagID int16) []ID {
	t.tagMu.Lock()
	defer t.tagMu.Unlock()
	return append([]ID(nil), t.byTag[tagID]...)
}

// GetIDsByAllTags returns the intersection of the id sets for every tag in
// tagIDs.
func (t *TagIndex) GetIDsByAllTags(tagIDs []int16) []ID {
	t.tagMu.Lock()
	defer t.tagMu.Unlock()
	if len(tagIDs) == 0 {
		return nil
	}
	counts := make(map[ID]int)
	for _, tid := range tagIDs {
		for _, id := range t.byTag[tid] {
			counts[id]++
		}
	}
	var out []ID
	for id, c := range counts {
		if c == len(tagIDs) {
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

// GetIDsByAnyTag returns the union of the id sets for every tag in tagIDs.
func (t *TagIndex) GetIDsByAnyTag(tagIDs []int16) []ID {
	t.tagMu.Lock()
	defer t.tagMu.Unlock()
	seen := make(map[ID]struct{})
	for _, tid := range tagIDs {
		for _, id := range t.byTag[tid] {
			seen[id] = struct{}{}
		}
	}
	out := make([]ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool {
		for k := 0; k < 16; k++ {
			if ids[i][k] != ids[j][k] {
				return ids[i][k] < ids[j][k]
			}
		}
		return false
	})
}

// BuildMap rebuilds the reverse maps (byTag, byID) from a full scan of
// records, replacing any prior contents. A record carrying several tags
// appears in the postings of each — membership for a given id is exactly
// its record's Tags field.
func (t *TagIndex) BuildMap(records []Record) {
	t.tagMu.Lock()
	defer t.tagMu.Unlock()

	byTag := make(map[int16][]ID)
	byID := make(map[ID][]int16)
	for _, rec := range records {
		if len(rec.Tags) == 0 {
			continue
		}
		tags := append([]int16(nil), rec.Tags...)
		sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
		byID[rec.ID] = tags
		for _, tid := range rec.Tags {
			byTag[tid] = append(byTag[tid], rec.ID)
		}
	}
	for tid := range byTag {
		sortIDs(byTag[tid])
	}
	t.byTag = byTag
	t.byID = byID
}

// tagNameTable is the JSON control block persisted ahead of the binary
// postings, following the teacher's fixed-size-JSON-header idiom.
type tagNameTable struct {
	Names map[string]int16 `json:"names"`
	Next  int16            `json:"next"`
}

// ToBinary serializes the tag index: a u32-length-prefixed JSON name
// table, followed by a u32 postings count and, for each tag,
// `tag_id(2) || id_count(4) || ids(16B each)`.
func (t *TagIndex) ToBinary() ([]byte, error) {
	t.tagMu.Lock()
	defer t.tagMu.Unlock()

	table := tagNameTable{Names: t.names, Next: t.next}
	nameBlock, err := json.Marshal(table)
	if err != nil {
		return nil, fmt.Errorf("tagindex: marshal name table: %w", err)
	}

	var buf []byte
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(nameBlock)))
	buf = append(buf, header...)
	buf = append(buf, nameBlock...)

	countBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(countBuf, uint32(len(t.byTag)))
	buf = append(buf, countBuf...)

	tagIDs := make([]int16, 0, len(t.byTag))
	for tid := range t.byTag {
		tagIDs = append(tagIDs, tid)
	}
	sort.Slice(tagIDs, func(i, j int) bool { return tagIDs[i] < tagIDs[j] })

	for _, tid := range tagIDs {
		ids := t.byTag[tid]
		entry := make([]byte, 2+4+16*len(ids))
		binary.LittleEndian.PutUint16(entry, uint16(tid))
		binary.LittleEndian.PutUint32(entry[2:], uint32(len(ids)))
		for i, id := range ids {
			copy(entry[6+16*i:], id[:])
		}
		buf = append(buf, entry...)
	}
	return buf, nil
}

// FromBinary parses a block produced by ToBinary and rebuilds the name
// table plus postings (byID is derived from byTag afterward).
func FromBinary(blob []byte) (*TagIndex, error) {
	if len(blob) < 4 {
		return nil, fmt.Errorf("tagindex: from_binary: %w: truncated header", ErrInvalidData)
	}
	nameLen := int(binary.LittleEndian.Uint32(blob))
	off := 4
	if off+nameLen > len(blob) {
		return nil, fmt.Errorf("tagindex: from_binary: %w: truncated name table", ErrInvalidData)
	}
	var table tagNameTable
	if err := json.Unmarshal(blob[off:off+nameLen], &table); err != nil {
		return nil, fmt.Errorf("tagindex: from_binary: unmarshal name table: %w", err)
	}
	off += nameLen

	if off+4 > len(blob) {
		return nil, fmt.Errorf("tagindex: from_binary: %w: truncated postings count", ErrInvalidData)
	}
	count := int(binary.LittleEndian.Uint32(blob[off:]))
	off += 4

	t := NewTagIndex()
	t.names = table.Names
	t.next = table.Next
	for name, id := range table.Names {
		t.ids[id] = name
	}

	byID := make(map[ID][]int16)
	for i := 0; i < count; i++ {
		if off+6 > len(blob) {
			return nil, fmt.Errorf("tagindex: from_binary: %w: truncated posting", ErrInvalidData)
		}
		tid := int16(binary.LittleEndian.Uint16(blob[off:]))
		idCount := int(binary.LittleEndian.Uint32(blob[off+2:]))
		off += 6
		if off+16*idCount > len(blob) {
			return nil, fmt.Errorf("tagindex: from_binary: %w: truncated id list", ErrInvalidData)
		}
		ids := make([]ID, idCount)
		for j := range ids {
			copy(ids[j][:], blob[off+16*j:])
			byID[ids[j]] = append(byID[ids[j]], tid)
		}
		off += 16 * idCount
		t.byTag[tid] = ids
	}
	t.byID = byID
	return t, nil
}
