package scorestore

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Key layout. All entries for a queue live under one prefix so a single
// bounded iteration yields the full queue in score order:
//
//	sq/{queue}/entry/{score8}/{taskID}#{subIndex}
//
// score8 is the big-endian order-preserving encoding of the float64 score,
// so pebble's key order is ascending score order. Identity (taskID,
// subIndex) is part of the key: re-inserting the same logical entry
// overwrites rather than duplicates, which rules out the ambiguous
// exact-match removal that duplicate members would cause.
func queuePrefix(q Queue) []byte {
	return []byte(fmt.Sprintf("sq/%s/entry/", q))
}

// entryKey builds the key for an entry at its score.
func entryKey(q Queue, e Entry) []byte {
	prefix := queuePrefix(q)
	key := make([]byte, 0, len(prefix)+8+1+len(e.TaskID)+8)
	key = append(key, prefix...)
	var s [8]byte
	binary.BigEndian.PutUint64(s[:], encodeScore(e.Score))
	key = append(key, s[:]...)
	key = append(key, '/')
	key = append(key, e.TaskID...)
	key = append(key, '#')
	key = appendInt(key, e.SubIndex)
	return key
}

// encodeScore maps a float64 to a uint64 whose unsigned big-endian byte
// order matches the float's numeric order (sign bit flipped for
// non-negatives, all bits flipped for negatives).
func encodeScore(s float64) uint64 {
	bits := math.Float64bits(s)
	if bits&(1<<63) == 0 {
		return bits ^ (1 << 63)
	}
	return ^bits
}

// keyRange returns the [lo, hi) bounds for scanning a queue. The upper
// bound is the prefix successor, so keys whose encoded score starts with
// 0xFF (very large or infinite scores) are still inside the range.
func keyRange(q Queue) ([]byte, []byte) {
	lo := queuePrefix(q)
	return lo, prefixSuccessor(lo)
}

// prefixSuccessor returns the smallest key greater than every key with the
// given prefix, or nil when no such bound exists.
func prefixSuccessor(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xFF {
			hi := append([]byte(nil), prefix[:i+1]...)
			hi[i]++
			return hi
		}
	}
	return nil
}

func appendInt(b []byte, n int) []byte {
	if n < 0 {
		// MCQ entries carry subIndex -1; a fixed marker keeps keys parse-free.
		return append(b, '-')
	}
	return fmt.Appendf(b, "%d", n)
}
