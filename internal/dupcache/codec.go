// Package dupcache implements the persistent duplicate-submission cache and
// its background reconciliation against the sync database.
package dupcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/transformahq/transforma-agent/internal/model"
)

// On-disk format: a little-endian header followed by fixed-width records.
// String fields are NUL-padded; values wider than a field are silently
// truncated at write time, which is deliberate and tested behavior.
const (
	formatVersion = 1

	headerSize = 16 // u32 version, u32 record count, u64 last-sync epoch seconds

	fieldFilename  = 256
	fieldReference = 32
	fieldSubmitter = 64

	recordSize = fieldFilename + 8 + fieldReference + fieldSubmitter
)

var (
	errShortHeader    = fmt.Errorf("cache file shorter than header")
	errUnknownVersion = fmt.Errorf("unknown cache format version")
	errCountMismatch  = fmt.Errorf("cache record count does not match file size")
)

// encodeFile serializes entries (sorted by filename for deterministic bytes)
// plus the header.
func encodeFile(entries map[string]model.CacheEntry, lastSync time.Time) []byte {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(names)*recordSize))
	_ = binary.Write(buf, binary.LittleEndian, uint32(formatVersion))
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(names)))
	_ = binary.Write(buf, binary.LittleEndian, epochSeconds(lastSync))

	for _, name := range names {
		encodeRecord(buf, entries[name])
	}
	return buf.Bytes()
}

func encodeRecord(buf *bytes.Buffer, e model.CacheEntry) {
	writePadded(buf, e.Filename, fieldFilename)
	_ = binary.Write(buf, binary.LittleEndian, epochSeconds(e.SubmittedAt))
	writePadded(buf, e.Reference, fieldReference)
	writePadded(buf, e.Submitter, fieldSubmitter)
}

// writePadded writes s into a width-byte NUL-padded field, truncating to
// width-1 so the field always ends in NUL.
func writePadded(buf *bytes.Buffer, s string, width int) {
	field := make([]byte, width)
	copy(field[:width-1], s)
	buf.Write(field)
}

// decodeFile parses a cache file. Callers treat any error as "start empty".
func decodeFile(data []byte) (map[string]model.CacheEntry, time.Time, error) {
	if len(data) < headerSize {
		return nil, time.Time{}, errShortHeader
	}

	version := binary.LittleEndian.Uint32(data[0:4])
	if version != formatVersion {
		return nil, time.Time{}, fmt.Errorf("%w: %d", errUnknownVersion, version)
	}

	count := binary.LittleEndian.Uint32(data[4:8])
	lastSync := timeFromEpoch(binary.LittleEndian.Uint64(data[8:16]))

	if len(data)-headerSize != int(count)*recordSize {
		return nil, time.Time{}, errCountMismatch
	}

	entries := make(map[string]model.CacheEntry, count)
	for i := 0; i < int(count); i++ {
		entry := decodeRecord(data[headerSize+i*recordSize:])
		entries[entry.Filename] = entry
	}
	return entries, lastSync, nil
}

func decodeRecord(rec []byte) model.CacheEntry {
	filename := trimNUL(rec[:fieldFilename])
	ts := binary.LittleEndian.Uint64(rec[fieldFilename : fieldFilename+8])
	reference := trimNUL(rec[fieldFilename+8 : fieldFilename+8+fieldReference])
	submitter := trimNUL(rec[fieldFilename+8+fieldReference : recordSize])

	return model.CacheEntry{
		Filename:    filename,
		SubmittedAt: time.Unix(int64(ts), 0),
		Reference:   reference,
		Submitter:   submitter,
	}
}

func trimNUL(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return string(field[:i])
	}
	return string(field)
}

func epochSeconds(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.Unix())
}

// timeFromEpoch is the inverse of epochSeconds: 0 means never.
func timeFromEpoch(s uint64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(int64(s), 0)
}
