package jobs

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

const keyPrefix = "job_"

// Key forms a job key from the creation time and an owner fragment:
// job_<unix nanos>_<first 8 hex digits of BLAKE3(owner)>.
// Callers bump at by a nanosecond and retry on collision.
func Key(owner string, at time.Time) string {
	sum := blake3.Sum256([]byte(owner))
	return fmt.Sprintf("%s%d_%s", keyPrefix, at.UnixNano(), hex.EncodeToString(sum[:4]))
}

// IsKey reports whether s has the shape of a job key.
func IsKey(s string) bool {
	rest, ok := strings.CutPrefix(s, keyPrefix)
	if !ok {
		return false
	}
	nanos, frag, ok := strings.Cut(rest, "_")
	if !ok || nanos == "" || len(frag) != 8 {
		return false
	}
	for _, r := range nanos {
		if (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	_, err := hex.DecodeString(frag)
	return err == nil
}
