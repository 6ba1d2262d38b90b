package nbrly

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Attributes holds the fixed scalar fields carried alongside a record's
// vector values (§3).
type Attributes struct {
	Priority int8
	UserID   uint32
	OrgID    uint32
}

// Record is the logical vector record (§3). Equality for storage purposes
// is defined by ID; Equal performs the structural, element-wise comparison
// used only in tests.
type Record struct {
	ID           ID
	Values       []float32
	OriginalText string
	Tags         []int16
	Attributes   Attributes
}

// Equal reports whether r and other are structurally identical: same id,
// values, text, tags and attributes. Used only by tests (§3: "structural
// equality is a separate predicate used only in tests").
func (r Record) Equal(other Record) bool {
	if r.ID != other.ID || r.OriginalText != other.OriginalText || r.Attributes != other.Attributes {
		return false
	}
	if len(r.Values) != len(other.Values) || len(r.Tags) != len(other.Tags) {
		return false
	}
	for i := range r.Values {
		if r.Values[i] != other.Values[i] {
			return false
		}
	}
	for i := range r.Tags {
		if r.Tags[i] != other.Tags[i] {
			return false
		}
	}
	return true
}

// Dimension returns the number of vector components in the record.
func (r Record) Dimension() int { return len(r.Values) }

// Encode serializes r into the §4.6 binary layout:
//
//	id(16) || text_len_u32 || text || values_len_u32 || values(4B each) ||
//	tags_len_u16 || tags(2B each) || priority_i8 || user_id_u32 || org_id_u32
//
// followed by a trailing 8-byte xxh3 checksum of the layout bytes (the
// domain-stack wiring decision recorded in SPEC_FULL.md §4 C6: appended
// strictly after the spec-mandated layout, so it never participates in the
// round-trip contract of Encode(Decode(blob)) == blob).
func (r Record) Encode() ([]byte, error) {
	if !utf8.ValidString(r.OriginalText) {
		return nil, fmt.Errorf("encode %s: %w: text is not valid utf-8", r.ID, ErrInvalidData)
	}
	if len(r.Values) > 1<<31-1 || len(r.Tags) > 1<<15-1 {
		return nil, fmt.Errorf("encode %s: %w: dimension or tag count overflow", r.ID, ErrInvalidData)
	}

	textBytes := []byte(r.OriginalText)
	size := 16 + 4 + len(textBytes) + 4 + 4*len(r.Values) + 2 + 2*len(r.Tags) + 1 + 4 + 4
	buf := make([]byte, size+checksumSize)

	off := 0
	copy(buf[off:], r.ID[:])
	off += 16

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(textBytes)))
	off += 4
	copy(buf[off:], textBytes)
	off += len(textBytes)

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Values)))
	off += 4
	for _, v := range r.Values {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}

	binary.LittleEndian.PutUint16(buf[off:], uint16(len(r.Tags)))
	off += 2
	for _, t := range r.Tags {
		binary.LittleEndian.PutUint16(buf[off:], uint16(t))
		off += 2
	}

	buf[off] = byte(r.Attributes.Priority)
	off++
	binary.LittleEndian.PutUint32(buf[off:], r.Attributes.UserID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], r.Attributes.OrgID)
	off += 4

	appendChecksum(buf, off)
	return buf, nil
}

// DecodeRecord parses a blob previously produced by Record.Encode,
// verifying the trailing checksum first. Any framed-length failure or
// checksum mismatch fails with ErrInvalidData / ErrCorrupt respectively.
func DecodeRecord(blob []byte) (Record, error) {
	var rec Record
	if len(blob) < 16+4+4+2+1+4+4+checksumSize {
		return rec, fmt.Errorf("decode: %w: blob too short", ErrInvalidData)
	}
	if !verifyChecksum(blob) {
		return rec, fmt.Errorf("decode: %w: checksum mismatch", ErrCorrupt)
	}
	payload := blob[:len(blob)-checksumSize]

	off := 0
	copy(rec.ID[:], payload[off:off+16])
	off += 16

	if off+4 > len(payload) {
		return rec, fmt.Errorf("decode %s: %w: truncated text length", rec.ID, ErrInvalidData)
	}
	textLen := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if textLen < 0 || off+textLen > len(payload) {
		return rec, fmt.Errorf("decode %s: %w: text length out of range", rec.ID, ErrInvalidData)
	}
	textBytes := payload[off : off+textLen]
	if !utf8.Valid(textBytes) {
		return rec, fmt.Errorf("decode %s: %w: text is not valid utf-8", rec.ID, ErrInvalidData)
	}
	rec.OriginalText = string(textBytes)
	off += textLen

	if off+4 > len(payload) {
		return rec, fmt.Errorf("decode %s: %w: truncated values length", rec.ID, ErrInvalidData)
	}
	valuesLen := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if valuesLen < 0 || off+valuesLen*4 > len(payload) {
		return rec, fmt.Errorf("decode %s: %w: values length out of range", rec.ID, ErrInvalidData)
	}
	rec.Values = make([]float32, valuesLen)
	for i := range rec.Values {
		rec.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
	}

	if off+2 > len(payload) {
		return rec, fmt.Errorf("decode %s: %w: truncated tags length", rec.ID, ErrInvalidData)
	}
	tagsLen := int(binary.LittleEndian.Uint16(payload[off:]))
	off += 2
	if off+tagsLen*2 > len(payload) {
		return rec, fmt.Errorf("decode %s: %w: tags length out of range", rec.ID, ErrInvalidData)
	}
	rec.Tags = make([]int16, tagsLen)
	for i := range rec.Tags {
		rec.Tags[i] = int16(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
	}

	if off+1+4+4 > len(payload) {
		return rec, fmt.Errorf("decode %s: %w: truncated attributes", rec.ID, ErrInvalidData)
	}
	rec.Attributes.Priority = int8(payload[off])
	off++
	rec.Attributes.UserID = binary.LittleEndian.Uint32(payload[off:])
	off += 4
	rec.Attributes.OrgID = binary.LittleEndian.Uint32(payload[off:])
	off += 4

	return rec, nil
}
