package mlstorage

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// writeID computes the blob hash for a put: sha256(time-salt || key ||
// branch || payload). This is a write-id, not a content hash — two puts of
// identical payloads yield distinct hashes because the salt is the
// nanosecond clock at call time. Replays are never deduplicated.
func writeID(key, branch string, payload []byte) string {
	h := sha256.New()
	var salt [8]byte
	binary.BigEndian.PutUint64(salt[:], uint64(time.Now().UnixNano()))
	h.Write(salt[:])
	h.Write([]byte(key))
	h.Write([]byte(branch))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
