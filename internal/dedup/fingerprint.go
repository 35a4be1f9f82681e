package dedup

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/zeebo/xxh3"
)

// Fingerprints counts rows whose natural key was already seen. It hashes
// the key with xxh3 instead of keeping the keys, so memory stays at eight
// bytes per distinct key. Collisions over-count by a negligible amount; the
// counts are diagnostic and the sweep does the actual removal.
type Fingerprints struct {
	seen map[uint64]struct{}
	dups int64
	buf  []byte
	part []byte
}

func NewFingerprints() *Fingerprints {
	return &Fingerprints{seen: make(map[uint64]struct{})}
}

// Add records key and reports whether it repeats an earlier one. Each part
// is length-prefixed so no split of the same bytes hashes alike.
func (f *Fingerprints) Add(key ...any) bool {
	f.buf = f.buf[:0]
	for _, v := range key {
		f.part = f.part[:0]
		switch t := v.(type) {
		case nil:
			// A NULL part has no length prefix, unlike an empty string.
			f.buf = append(f.buf, 0)
			continue
		case string:
			f.part = append(f.part, t...)
		case time.Time:
			f.part = t.UTC().AppendFormat(f.part, time.RFC3339Nano)
		default:
			f.part = fmt.Append(f.part, t)
		}
		f.buf = append(f.buf, 1)
		f.buf = binary.AppendUvarint(f.buf, uint64(len(f.part)))
		f.buf = append(f.buf, f.part...)
	}
	h := xxh3.Hash(f.buf)
	if _, ok := f.seen[h]; ok {
		f.dups++
		return true
	}
	f.seen[h] = struct{}{}
	return false
}

// Duplicates is the number of Add calls that repeated a key.
func (f *Fingerprints) Duplicates() int64 { return f.dups }

// Distinct is the number of distinct keys seen.
func (f *Fingerprints) Distinct() int { return len(f.seen) }
