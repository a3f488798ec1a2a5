package mirror

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ContentHash computes the desired-secret hash over the canonical
// serializations of all contributing items. Inputs are sorted before hashing,
// so the hash is a pure function of the contributing field sets and stable
// under input reordering. The same function is used when computing and when
// comparing; a mismatch between the two paths is a programming error, not a
// recoverable condition.
func ContentHash(canonicals []string) string {
	sorted := make([]string, len(canonicals))
	copy(sorted, canonicals)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(strings.Join(sorted, "\x1e")))
	return hex.EncodeToString(h.Sum(nil))
}
